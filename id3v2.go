// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"log"
)

// ID3v2TagFlags is the set of flags carried in the ID3v2 tag header.
type ID3v2TagFlags struct {
	Unsynchronisation bool
	ExtendedHeader    bool
	Experimental      bool
	Footer            bool

	// Extended header contents (v3/v4 only).
	CRC          bool
	Restrictions bool
	RestrictData byte
}

// ID3v2Header is a type which represents an ID3v2 tag header.
type ID3v2Header struct {
	Version  Format
	Revision byte
	Flags    ID3v2TagFlags
	Size     int // excluding header and footer
}

// readID3v2Header reads the ID3v2 header from the given io.Reader.
func readID3v2Header(r io.Reader) (*ID3v2Header, error) {
	b, err := readBytes(r, 10)
	if err != nil {
		return nil, fmt.Errorf("expected to read 10 bytes (ID3v2Header): %v", err)
	}

	if string(b[0:3]) != "ID3" {
		return nil, wrapErr(ErrBadMagic, "expected to read \"ID3\"")
	}

	b = b[3:]
	var vers Format
	switch uint(b[0]) {
	case 2:
		vers = ID3v2_2
	case 3:
		vers = ID3v2_3
	case 4:
		vers = ID3v2_4
	default:
		return nil, fmt.Errorf("ID3 version: %v, expected: 2, 3 or 4", uint(b[0]))
	}

	flags := ID3v2TagFlags{Unsynchronisation: getBit(b[2], 7)}
	if vers == ID3v2_2 {
		// The v2.2 compression bit has no defined scheme; bail.
		if getBit(b[2], 6) {
			return nil, wrapErr(ErrUnsupportedFormat, "ID3v2.2 compression")
		}
	} else {
		flags.ExtendedHeader = getBit(b[2], 6)
		flags.Experimental = getBit(b[2], 5)
		flags.Footer = getBit(b[2], 4)
	}

	return &ID3v2Header{
		Version:  vers,
		Revision: b[1],
		Flags:    flags,
		Size:     get7BitChunkedInt(b[3:7]),
	}, nil
}

// readID3v2ExtendedHeader consumes the extended header, returning the
// number of bytes it occupied within the tag.
func readID3v2ExtendedHeader(r io.Reader, h *ID3v2Header) (int, error) {
	b, err := readBytes(r, 4)
	if err != nil {
		return 0, err
	}

	var size int
	if h.Version == ID3v2_4 {
		size = get7BitChunkedInt(b)
	} else {
		// v3 size excludes the four size bytes themselves.
		size = getInt(b) + 4
	}
	if size < 6 {
		return 0, wrapErr(ErrBadExtendedHeaderSize, "%d", size)
	}
	if size >= h.Size {
		return 0, wrapErr(ErrBadExtendedHeaderSize, "%d exceeds tag size %d", size, h.Size)
	}

	body, err := readBytes(r, uint(size-4))
	if err != nil {
		return 0, err
	}

	if h.Version == ID3v2_4 && len(body) >= 2 {
		// number-of-flag-bytes, then the flag byte.
		flags := body[1]
		h.Flags.CRC = getBit(flags, 5)
		h.Flags.Restrictions = getBit(flags, 4)
	} else if h.Version == ID3v2_3 && len(body) >= 2 {
		h.Flags.CRC = getBit(body[0], 7)
	}
	return size, nil
}

// ID3v2Tag holds a parsed ID3v2.{2,3,4} tag: its header fields and the
// ordered frame set.
type ID3v2Tag struct {
	Version Format
	Flags   ID3v2TagFlags
	Frames  []Frame
}

// Frame returns the first frame with the given (upgraded) ID, or nil.
func (t *ID3v2Tag) Frame(id string) *Frame {
	for i := range t.Frames {
		if t.Frames[i].ID == id {
			return &t.Frames[i]
		}
	}
	return nil
}

// AddFrame inserts f, coalescing duplicates per the ID3v2 rules:
// COMM/USLT/TXXX/WXXX are keyed by description (and language where
// applicable), APIC by description; all other IDs
// replace a previous frame with the same ID.
func (t *ID3v2Tag) AddFrame(f Frame) {
	for i := range t.Frames {
		if t.Frames[i].ID != f.ID {
			continue
		}
		if sameFrameSlot(&t.Frames[i], &f) {
			t.Frames[i] = f
			return
		}
	}
	t.Frames = append(t.Frames, f)
}

// RemoveFrames drops every frame with the given ID, returning how many
// were removed.
func (t *ID3v2Tag) RemoveFrames(id string) int {
	kept := t.Frames[:0]
	removed := 0
	for _, f := range t.Frames {
		if f.ID == id {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	t.Frames = kept
	return removed
}

func sameFrameSlot(a, b *Frame) bool {
	switch av := a.Data.(type) {
	case *CommentFrame:
		bv, ok := b.Data.(*CommentFrame)
		return ok && av.Language == bv.Language && av.Description == bv.Description
	case *LyricsFrame:
		bv, ok := b.Data.(*LyricsFrame)
		return ok && av.Language == bv.Language && av.Description == bv.Description
	case *UserTextFrame:
		bv, ok := b.Data.(*UserTextFrame)
		return ok && av.Description == bv.Description
	case *UserURLFrame:
		bv, ok := b.Data.(*UserURLFrame)
		return ok && av.Description == bv.Description
	case *PictureFrame:
		bv, ok := b.Data.(*PictureFrame)
		return ok && av.Picture.Description == bv.Picture.Description
	}
	return true
}

// parseID3v2Tag reads the full tag (header assumed already consumed)
// into an ID3v2Tag.
func parseID3v2Tag(r io.Reader, h *ID3v2Header, opts ParseOptions) (*ID3v2Tag, error) {
	t := &ID3v2Tag{Version: h.Version, Flags: h.Flags}

	var ur io.Reader = r
	if h.Flags.Unsynchronisation {
		ur = &unsynchroniser{Reader: r}
	}

	offset := 0
	if h.Flags.ExtendedHeader {
		n, err := readID3v2ExtendedHeader(ur, h)
		if err != nil {
			return nil, err
		}
		offset += n
	}

	for offset < h.Size {
		f, n, err := readID3v2Frame(ur, h.Version, opts)
		if err != nil {
			if err == errID3v2Padding {
				break
			}
			if opts.Mode == Strict {
				return nil, err
			}
			log.Printf("tag: skipping bad ID3v2 frame at offset %d: %v", offset, err)
			if n == 0 {
				break
			}
			offset += n
			continue
		}
		offset += n
		if f != nil {
			t.Frames = append(t.Frames, *f)
		}
	}
	return t, nil
}

// ReadID3v2Tags parses ID3v2.{2,3,4} tags from the io.ReadSeeker into a
// Metadata, returning non-nil error on failure.
func ReadID3v2Tags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	_, err := r.Seek(0, io.SeekStart)
	if err != nil {
		return nil, err
	}

	h, err := readID3v2Header(r)
	if err != nil {
		return nil, err
	}

	t, err := parseID3v2Tag(r, h, opts)
	if err != nil {
		return nil, err
	}

	m := metadataID3v2{tag: t}

	if opts.ReadProperties {
		if _, err := r.Seek(int64(h.Size+10), io.SeekStart); err == nil {
			if p, err := readMPEGProperties(r, opts); err == nil {
				m.props = p
			}
		}
	}
	return m, nil
}

// decompressFrame inflates a zlib-compressed frame body.
func decompressFrame(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, wrapErr(ErrBadFrame, "zlib: %v", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, allocLimit.Load()))
	if err != nil {
		return nil, wrapErr(ErrBadFrame, "zlib: %v", err)
	}
	return out, nil
}

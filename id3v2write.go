// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"log"
)

// appendFrameBytes emits a whole frame (header + body) for the target
// version. Returns dst unchanged for frames which cannot be represented
// in the target version (Outdated v2.2 IDs).
func appendFrameBytes(dst []byte, f *Frame, version Format, opts WriteOptions) ([]byte, error) {
	if f.Outdated || len(f.ID) != 4 {
		log.Printf("tag: dropping outdated frame %q on ID3v2 write", f.ID)
		return dst, nil
	}
	if !validFrameID(f.ID) {
		return nil, wrapErr(ErrBadFrame, "invalid frame ID %q", f.ID)
	}

	var body []byte
	if f.Flags.GroupIdentity != nil {
		body = append(body, *f.Flags.GroupIdentity)
	}
	if f.Flags.Encryption != nil {
		body = append(body, *f.Flags.Encryption)
	}

	var dli []byte
	if f.Flags.Encryption != nil {
		// Encrypted bodies are opaque; re-emit the stored data length.
		if f.Flags.DataLengthIndicator == nil {
			return nil, ErrMissingDataLengthIndicator
		}
		dli = make([]byte, 4)
		if err := putSynchsafeUint32(dli, *f.Flags.DataLengthIndicator); err != nil {
			return nil, err
		}
	}
	body = append(body, dli...)

	content, err := f.Data.appendBody(nil, version, opts)
	if err != nil {
		return nil, err
	}
	body = append(body, content...)

	// Compression is not re-applied on write; the flag is cleared in the
	// emitted flag bytes below.
	dst = append(dst, f.ID...)

	switch version {
	case ID3v2_3:
		if len(body) > 0x7FFFFFFF {
			return nil, wrapErr(ErrTooMuchData, "frame %q", f.ID)
		}
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	default: // ID3v2_4
		size := make([]byte, 4)
		if err := putSynchsafeUint32(size, uint32(len(body))); err != nil {
			return nil, wrapErr(ErrTooMuchData, "frame %q", f.ID)
		}
		dst = append(dst, size...)
	}

	dst = append(dst, frameFlagBytes(&f.Flags, version)...)
	return append(dst, body...), nil
}

func frameFlagBytes(f *FrameFlags, version Format) []byte {
	var msg, format byte
	switch version {
	case ID3v2_3:
		if f.TagAlterPreservation {
			msg |= 1 << 7
		}
		if f.FileAlterPreservation {
			msg |= 1 << 6
		}
		if f.ReadOnly {
			msg |= 1 << 5
		}
		if f.Encryption != nil {
			format |= 1 << 6
		}
		if f.GroupIdentity != nil {
			format |= 1 << 5
		}

	default: // ID3v2_4
		if f.TagAlterPreservation {
			msg |= 1 << 6
		}
		if f.FileAlterPreservation {
			msg |= 1 << 5
		}
		if f.ReadOnly {
			msg |= 1 << 4
		}
		if f.GroupIdentity != nil {
			format |= 1 << 6
		}
		if f.Encryption != nil {
			format |= 1 << 2
		}
		if f.Encryption != nil && f.DataLengthIndicator != nil {
			format |= 1 << 0
		}
	}
	return []byte{msg, format}
}

// RenderID3v2Tag serialises t to the complete on-disk byte sequence,
// including header, optional extended header with CRC, frames, padding
// and optional footer.
func RenderID3v2Tag(t *ID3v2Tag, opts WriteOptions) ([]byte, error) {
	version := ID3v2_4
	if opts.UseID3v23 {
		version = ID3v2_3
	}

	var frames []byte
	var err error
	for i := range t.Frames {
		frames, err = appendFrameBytes(frames, &t.Frames[i], version, opts)
		if err != nil {
			return nil, err
		}
	}

	padding := int(opts.padding())
	footer := t.Flags.Footer && version == ID3v2_4
	if footer {
		// A footer and padding are mutually exclusive.
		padding = 0
	}

	var ext []byte
	if t.Flags.CRC && version == ID3v2_4 {
		crc := crc32.ChecksumIEEE(append(append([]byte{}, frames...), make([]byte, padding)...))
		// 4-byte synchsafe size (12), 1 flag-byte count, flag byte, then the
		// CRC flag data: length byte + 35-bit synchsafe value.
		ext = make([]byte, 0, 12)
		size := make([]byte, 4)
		putSynchsafeUint32(size, 12)
		ext = append(ext, size...)
		ext = append(ext, 1, 1<<5, 5)
		wide := wideningSynchUint32(crc)
		ext = append(ext, byte(wide>>32), byte(wide>>24), byte(wide>>16), byte(wide>>8), byte(wide))
	}

	tagSize := len(ext) + len(frames) + padding

	out := make([]byte, 0, 10+tagSize+10)
	out = append(out, "ID3"...)
	switch version {
	case ID3v2_3:
		out = append(out, 3, 0)
	default:
		out = append(out, 4, 0)
	}

	var flags byte
	if len(ext) > 0 {
		flags |= 1 << 6
	}
	if footer {
		flags |= 1 << 4
	}
	out = append(out, flags)

	size := make([]byte, 4)
	if err := putSynchsafeUint32(size, uint32(tagSize)); err != nil {
		return nil, err
	}
	out = append(out, size...)
	out = append(out, ext...)
	out = append(out, frames...)
	out = append(out, make([]byte, padding)...)

	if footer {
		out = append(out, "3DI"...)
		out = append(out, out[3:10]...)
	}
	return out, nil
}

// WriteID3v2Tag writes t at the start of the target, replacing any
// existing ID3v2 tag. When the rendered tag fits the existing tag region
// the write happens in place (the remainder of the region becomes
// padding); otherwise the file is spliced.
func WriteID3v2Tag(w Target, t *ID3v2Tag, opts WriteOptions) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var oldLen int64
	if h, err := readID3v2Header(w); err == nil {
		oldLen = int64(h.Size) + 10
		if h.Flags.Footer {
			oldLen += 10
		}
	}

	rendered, err := RenderID3v2Tag(t, opts)
	if err != nil {
		return err
	}

	if oldLen > 0 && int64(len(rendered)) <= oldLen && !t.Flags.Footer {
		// Grow the padding to fill the existing region exactly, so no
		// bytes outside the old tag move.
		extra := oldLen - int64(len(rendered))
		body := rendered[10:]
		body = append(body, make([]byte, extra)...)
		if err := putSynchsafeUint32(rendered[6:10], uint32(len(body))); err != nil {
			return err
		}
		if _, err := w.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, err := w.Write(rendered[:10]); err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}

	return spliceRegion(w, 0, oldLen, rendered)
}

// StripID3v2Tag removes a leading ID3v2 tag from the target, if present.
func StripID3v2Tag(w Target) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h, err := readID3v2Header(w)
	if err != nil {
		return nil // nothing to strip
	}
	oldLen := int64(h.Size) + 10
	if h.Flags.Footer {
		oldLen += 10
	}
	return spliceRegion(w, 0, oldLen, nil)
}

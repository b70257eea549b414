// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"time"
)

// RIFF chunks: FOURCC + 32-bit little-endian length. Chunk payloads are
// padded to even length; the pad byte is not counted in the declared
// size.

// riffChunk locates one chunk in the stream.
type riffChunk struct {
	id    string
	start int64 // of the header
	size  int64 // declared payload size
}

func (c riffChunk) dataStart() int64 { return c.start + 8 }
func (c riffChunk) next() int64      { return c.start + 8 + c.size + c.size&1 }

// readRIFFChunks iterates the chunks of [start, end), little-endian
// sizes.
func readRIFFChunks(r io.ReadSeeker, start, end int64) ([]riffChunk, error) {
	var chunks []riffChunk
	pos := start
	for pos+8 <= end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		hdr, err := readBytes(r, 8)
		if err != nil {
			return nil, err
		}
		c := riffChunk{
			id:    string(hdr[0:4]),
			start: pos,
			size:  int64(binary.LittleEndian.Uint32(hdr[4:8])),
		}
		if c.dataStart()+c.size > end {
			return chunks, wrapErr(ErrSizeMismatch, "chunk %q overruns container", c.id)
		}
		chunks = append(chunks, c)
		pos = c.next()
	}
	return chunks, nil
}

// RIFFInfo is the ordered LIST INFO item set: FOURCC keys mapping to
// null-terminated Latin-1 strings.
type RIFFInfo struct {
	Items []RIFFInfoItem
}

// RIFFInfoItem is one INFO entry.
type RIFFInfoItem struct {
	ID    string // 4-char FOURCC, e.g. "INAM"
	Value string
}

// Get returns the value for the FOURCC, or "".
func (i *RIFFInfo) Get(id string) string {
	for _, it := range i.Items {
		if it.ID == id {
			return it.Value
		}
	}
	return ""
}

// Set replaces or appends the value for the FOURCC.
func (i *RIFFInfo) Set(id, value string) {
	for j := range i.Items {
		if i.Items[j].ID == id {
			i.Items[j].Value = value
			return
		}
	}
	i.Items = append(i.Items, RIFFInfoItem{ID: id, Value: value})
}

// parseRIFFInfo decodes the payload of a LIST chunk of type INFO.
func parseRIFFInfo(b []byte) *RIFFInfo {
	info := &RIFFInfo{}
	for len(b) >= 8 {
		id := string(b[0:4])
		size := int(binary.LittleEndian.Uint32(b[4:8]))
		b = b[8:]
		if size > len(b) {
			break
		}
		value := b[:size]
		if i := bytes.IndexByte(value, 0); i >= 0 {
			value = value[:i]
		}
		info.Items = append(info.Items, RIFFInfoItem{ID: id, Value: decodeLatin1(value)})
		b = b[size+size&1:]
	}
	return info
}

func decodeLatin1(b []byte) string {
	s, err := decodeText(EncodingLatin1, b)
	if err != nil {
		return string(b)
	}
	return s
}

// riffInfoBytes emits a complete LIST chunk for the info set.
func riffInfoBytes(info *RIFFInfo) []byte {
	body := []byte("INFO")
	for _, it := range info.Items {
		if len(it.ID) != 4 {
			continue
		}
		value := append(latin1Replace(it.Value), 0)
		body = append(body, it.ID...)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(value)))
		body = append(body, value...)
		if len(value)&1 == 1 {
			body = append(body, 0)
		}
	}

	out := make([]byte, 0, 8+len(body))
	out = append(out, "LIST"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// WAVProperties is the Properties superset for RIFF WAVE files.
type WAVProperties struct {
	Properties
	FormatTag   uint16
	BytesPerSec uint32
}

// parseWAVFmt decodes a fmt chunk payload together with the data chunk
// size.
func parseWAVFmt(b []byte, dataSize int64) (*WAVProperties, error) {
	if len(b) < 16 {
		return nil, wrapErr(ErrSizeMismatch, "fmt chunk: %d bytes", len(b))
	}
	p := &WAVProperties{
		FormatTag:   binary.LittleEndian.Uint16(b[0:2]),
		BytesPerSec: binary.LittleEndian.Uint32(b[8:12]),
	}
	p.Channels = uint8(binary.LittleEndian.Uint16(b[2:4]))
	p.SampleRate = binary.LittleEndian.Uint32(b[4:8])
	p.BitDepth = uint8(binary.LittleEndian.Uint16(b[14:16]))

	// WAVE_FORMAT_EXTENSIBLE: the channel mask follows the base fields.
	if p.FormatTag == 0xFFFE && len(b) >= 24 {
		p.ChannelMask = binary.LittleEndian.Uint32(b[20:24])
	}

	if p.BytesPerSec > 0 {
		p.Duration = time.Duration(uint64(dataSize) * uint64(time.Second) / uint64(p.BytesPerSec))
		p.AudioBitrate = p.BytesPerSec * 8 / 1000
		p.OverallBitrate = p.AudioBitrate
	}
	return p, nil
}

// metadataWAV is the Metadata implementation for WAV files, which may
// carry both a RIFF INFO list and an embedded ID3v2 chunk.
type metadataWAV struct {
	info  *RIFFInfo
	id3   *ID3v2Tag
	props *WAVProperties
}

// Info exposes the underlying RIFF INFO items.
func (m *metadataWAV) Info() *RIFFInfo { return m.info }

// ID3v2 exposes the embedded ID3v2 tag, or nil.
func (m *metadataWAV) ID3v2() *ID3v2Tag { return m.id3 }

func (m *metadataWAV) Format() Format {
	if m.id3 != nil {
		return m.id3.Version
	}
	return RIFFINFO
}
func (m *metadataWAV) FileType() FileType { return WAV }

func (m *metadataWAV) Properties() Properties {
	if m.props == nil {
		return Properties{}
	}
	return m.props.Properties
}

func (m *metadataWAV) id3meta() metadataID3v2 { return metadataID3v2{tag: m.id3} }

func (m *metadataWAV) Raw() map[string]interface{} {
	raw := make(map[string]interface{}, len(m.info.Items))
	for _, it := range m.info.Items {
		raw[it.ID] = it.Value
	}
	if m.id3 != nil {
		for k, v := range m.id3meta().Raw() {
			raw[k] = v
		}
	}
	return raw
}

func (m *metadataWAV) first(infoID, frameID string) string {
	if m.id3 != nil {
		if s := m.id3meta().text(frameID); s != "" {
			return s
		}
	}
	return m.info.Get(infoID)
}

func (m *metadataWAV) Title() string       { return m.first("INAM", "TIT2") }
func (m *metadataWAV) Album() string       { return m.first("IPRD", "TALB") }
func (m *metadataWAV) Artist() string      { return m.first("IART", "TPE1") }
func (m *metadataWAV) Genre() string       { return m.first("IGNR", "TCON") }
func (m *metadataWAV) Comment() string     { return m.first("ICMT", "COMM") }
func (m *metadataWAV) Composer() string    { return m.first("IMUS", "TCOM") }
func (m *metadataWAV) AlbumArtist() string { return m.first("", "TPE2") }

func (m *metadataWAV) Year() int {
	s := m.first("ICRD", "")
	if len(s) >= 4 {
		y, _ := strconv.Atoi(s[:4])
		if y != 0 {
			return y
		}
	}
	if m.id3 != nil {
		return m.id3meta().Year()
	}
	return 0
}

func (m *metadataWAV) Track() (int, int) {
	if m.id3 != nil {
		if x, n := m.id3meta().Track(); x != 0 {
			return x, n
		}
	}
	return parseXofN(m.info.Get("ITRK"))
}

func (m *metadataWAV) Disc() (int, int) {
	if m.id3 != nil {
		return m.id3meta().Disc()
	}
	return 0, 0
}

func (m *metadataWAV) Lyrics() string { return m.first("", "USLT") }

func (m *metadataWAV) Picture() *Picture {
	if m.id3 != nil {
		return m.id3meta().Picture()
	}
	return nil
}

// ReadWAVTags reads RIFF INFO and embedded ID3v2 metadata plus fmt
// stream properties from a WAV file.
func ReadWAVTags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	hdr, err := readBytes(r, 12)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "RIFF" {
		return nil, wrapErr(ErrBadMagic, "expected 'RIFF'")
	}
	if string(hdr[8:12]) != "WAVE" {
		return nil, wrapErr(ErrBadMagic, "expected 'WAVE' form type")
	}

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	riffEnd := int64(8) + int64(binary.LittleEndian.Uint32(hdr[4:8]))
	if riffEnd > end {
		if opts.Mode == Strict {
			return nil, wrapErr(ErrSizeMismatch, "RIFF size exceeds file")
		}
		riffEnd = end
	}

	chunks, err := readRIFFChunks(r, 12, riffEnd)
	if err != nil && opts.Mode == Strict {
		return nil, err
	}

	m := &metadataWAV{info: &RIFFInfo{}}

	var fmtData []byte
	var dataSize int64
	for _, c := range chunks {
		switch c.id {
		case "fmt ":
			if _, err := r.Seek(c.dataStart(), io.SeekStart); err != nil {
				return nil, err
			}
			fmtData, err = readBytes(r, uint(c.size))
			if err != nil {
				return nil, err
			}

		case "data":
			dataSize = c.size

		case "LIST":
			if !opts.ReadTags {
				continue
			}
			if _, err := r.Seek(c.dataStart(), io.SeekStart); err != nil {
				return nil, err
			}
			b, err := readBytes(r, uint(c.size))
			if err != nil {
				return nil, err
			}
			if len(b) >= 4 && string(b[0:4]) == "INFO" {
				m.info = parseRIFFInfo(b[4:])
			}

		case "ID3 ", "id3 ":
			if !opts.ReadTags {
				continue
			}
			if _, err := r.Seek(c.dataStart(), io.SeekStart); err != nil {
				return nil, err
			}
			h, err := readID3v2Header(r)
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				continue
			}
			t, err := parseID3v2Tag(r, h, opts)
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				continue
			}
			m.id3 = t
		}
	}

	if opts.ReadProperties && fmtData != nil {
		p, err := parseWAVFmt(fmtData, dataSize)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.props = p
		}
	}
	return m, nil
}

// WriteRIFFInfo rebuilds the LIST INFO chunk of a WAV file from info:
// spliced over the existing INFO list when present (the file grows or
// shrinks by the size difference; no JUNK chunk is written), appended at
// EOF otherwise. The outer RIFF size is always updated.
func WriteRIFFInfo(w Target, info *RIFFInfo, opts WriteOptions) error {
	return rewriteWAVChunk(w, "LIST", riffInfoBytes(info))
}

// WriteWAVID3v2 replaces (or appends) the embedded ID3v2 chunk of a WAV
// file. The chunk FOURCC follows WriteOptions.UppercaseID3v2Chunk.
func WriteWAVID3v2(w Target, t *ID3v2Tag, opts WriteOptions) error {
	rendered, err := RenderID3v2Tag(t, opts)
	if err != nil {
		return err
	}
	id := "id3 "
	if opts.UppercaseID3v2Chunk {
		id = "ID3 "
	}
	chunk := make([]byte, 0, 8+len(rendered))
	chunk = append(chunk, id...)
	chunk = binary.LittleEndian.AppendUint32(chunk, uint32(len(rendered)))
	chunk = append(chunk, rendered...)
	if len(rendered)&1 == 1 {
		chunk = append(chunk, 0)
	}
	return rewriteWAVChunk(w, id, chunk)
}

// rewriteWAVChunk splices replacement over the existing chunk with the
// same FOURCC (a LIST chunk only matches when its form type is INFO),
// appending at EOF when absent, then fixes the outer RIFF size.
func rewriteWAVChunk(w Target, id string, replacement []byte) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr, err := readBytes(w, 12)
	if err != nil {
		return err
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return wrapErr(ErrBadMagic, "expected RIFF/WAVE")
	}

	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	riffEnd := int64(8) + int64(binary.LittleEndian.Uint32(hdr[4:8]))
	if riffEnd > end {
		riffEnd = end
	}

	chunks, err := readRIFFChunks(w, 12, riffEnd)
	if err != nil {
		return err
	}

	target := riffChunk{start: -1}
	for _, c := range chunks {
		if c.id != id {
			continue
		}
		if id == "LIST" {
			if _, err := w.Seek(c.dataStart(), io.SeekStart); err != nil {
				return err
			}
			form, err := readString(w, 4)
			if err != nil || form != "INFO" {
				continue
			}
		}
		target = c
		break
	}

	// ID3 chunks may use either case on disk.
	if target.start < 0 && (id == "ID3 " || id == "id3 ") {
		for _, c := range chunks {
			if c.id == "ID3 " || c.id == "id3 " {
				target = c
				break
			}
		}
	}

	if target.start < 0 {
		if err := spliceRegion(w, riffEnd, 0, replacement); err != nil {
			return err
		}
		return patchRIFFSize(w, riffEnd-8+int64(len(replacement)))
	}

	oldLen := target.next() - target.start
	if err := spliceRegion(w, target.start, oldLen, replacement); err != nil {
		return err
	}
	return patchRIFFSize(w, riffEnd-8-oldLen+int64(len(replacement)))
}

func patchRIFFSize(w Target, size int64) error {
	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(size))
	_, err := w.Write(b[:])
	return err
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"time"
)

// AIFF/AIFF-C chunks share the RIFF shape but use big-endian sizes.

type aiffChunk struct {
	id    string
	start int64
	size  int64
}

func (c aiffChunk) dataStart() int64 { return c.start + 8 }
func (c aiffChunk) next() int64      { return c.start + 8 + c.size + c.size&1 }

func readAIFFChunks(r io.ReadSeeker, start, end int64) ([]aiffChunk, error) {
	var chunks []aiffChunk
	pos := start
	for pos+8 <= end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		hdr, err := readBytes(r, 8)
		if err != nil {
			return nil, err
		}
		c := aiffChunk{
			id:    string(hdr[0:4]),
			start: pos,
			size:  int64(binary.BigEndian.Uint32(hdr[4:8])),
		}
		if c.dataStart()+c.size > end {
			return chunks, wrapErr(ErrSizeMismatch, "chunk %q overruns container", c.id)
		}
		chunks = append(chunks, c)
		pos = c.next()
	}
	return chunks, nil
}

// AIFFText is the set of plain-text chunks an AIFF file can carry.
type AIFFText struct {
	Name        string   // NAME
	Author      string   // AUTH
	Copyright   string   // (c)
	Annotations []string // ANNO, repeatable
	Comments    []string // COMT entries
}

// AIFFProperties is the Properties superset for AIFF files.
type AIFFProperties struct {
	Properties
	SampleFrames uint32
	Compression  string // AIFF-C compression type, "" for plain AIFF
}

// parseCOMM decodes a COMM chunk: channels, frame count, bit depth and
// the 80-bit extended-precision sample rate.
func parseCOMM(b []byte, aifc bool) (*AIFFProperties, error) {
	if len(b) < 18 {
		return nil, wrapErr(ErrSizeMismatch, "COMM chunk: %d bytes", len(b))
	}
	p := &AIFFProperties{SampleFrames: binary.BigEndian.Uint32(b[2:6])}
	p.Channels = uint8(binary.BigEndian.Uint16(b[0:2]))
	p.BitDepth = uint8(binary.BigEndian.Uint16(b[6:8]))
	p.SampleRate = uint32(float80(b[8:18]))

	if aifc && len(b) >= 22 {
		p.Compression = string(b[18:22])
	}

	if p.SampleRate > 0 {
		p.Duration = time.Duration(uint64(p.SampleFrames) * uint64(time.Second) / uint64(p.SampleRate))
		bytesPerFrame := uint64(p.Channels) * uint64(p.BitDepth) / 8
		p.AudioBitrate = uint32(uint64(p.SampleRate) * bytesPerFrame * 8 / 1000)
		p.OverallBitrate = p.AudioBitrate
	}
	return p, nil
}

// float80 decodes an IEEE 754 extended-precision (80-bit) float, the
// sample rate representation AIFF inherited from the Apple II toolbox.
func float80(b []byte) float64 {
	signExp := binary.BigEndian.Uint16(b[0:2])
	mantissa := binary.BigEndian.Uint64(b[2:10])
	if signExp == 0 && mantissa == 0 {
		return 0
	}

	sign := 1.0
	if signExp&0x8000 != 0 {
		sign = -1.0
	}
	exp := int(signExp&0x7FFF) - 16383
	return sign * float64(mantissa) * math.Pow(2, float64(exp-63))
}

func float80Bytes(v float64) []byte {
	b := make([]byte, 10)
	if v == 0 {
		return b
	}

	sign := uint16(0)
	if v < 0 {
		sign = 0x8000
		v = -v
	}
	exp := int(math.Floor(math.Log2(v)))
	mantissa := uint64(v * math.Pow(2, float64(63-exp)))
	binary.BigEndian.PutUint16(b[0:2], sign|uint16(exp+16383))
	binary.BigEndian.PutUint64(b[2:10], mantissa)
	return b
}

// metadataAIFF is the Metadata implementation for AIFF files.
type metadataAIFF struct {
	text  *AIFFText
	id3   *ID3v2Tag
	props *AIFFProperties
}

// Text exposes the plain-text chunks.
func (m *metadataAIFF) Text() *AIFFText { return m.text }

// ID3v2 exposes the embedded ID3v2 tag, or nil.
func (m *metadataAIFF) ID3v2() *ID3v2Tag { return m.id3 }

func (m *metadataAIFF) Format() Format {
	if m.id3 != nil {
		return m.id3.Version
	}
	return AIFFTEXT
}
func (m *metadataAIFF) FileType() FileType { return AIFF }

func (m *metadataAIFF) Properties() Properties {
	if m.props == nil {
		return Properties{}
	}
	return m.props.Properties
}

func (m *metadataAIFF) id3meta() metadataID3v2 { return metadataID3v2{tag: m.id3} }

func (m *metadataAIFF) Raw() map[string]interface{} {
	raw := map[string]interface{}{}
	if m.text.Name != "" {
		raw["NAME"] = m.text.Name
	}
	if m.text.Author != "" {
		raw["AUTH"] = m.text.Author
	}
	if m.text.Copyright != "" {
		raw["(c) "] = m.text.Copyright
	}
	for i, a := range m.text.Annotations {
		raw["ANNO_"+strconv.Itoa(i)] = a
	}
	if m.id3 != nil {
		for k, v := range m.id3meta().Raw() {
			raw[k] = v
		}
	}
	return raw
}

func (m *metadataAIFF) Title() string {
	if m.id3 != nil {
		if s := m.id3meta().Title(); s != "" {
			return s
		}
	}
	return m.text.Name
}

func (m *metadataAIFF) Artist() string {
	if m.id3 != nil {
		if s := m.id3meta().Artist(); s != "" {
			return s
		}
	}
	return m.text.Author
}

func (m *metadataAIFF) Comment() string {
	if m.id3 != nil {
		if s := m.id3meta().Comment(); s != "" {
			return s
		}
	}
	if len(m.text.Annotations) > 0 {
		return m.text.Annotations[0]
	}
	if len(m.text.Comments) > 0 {
		return m.text.Comments[0]
	}
	return ""
}

func (m *metadataAIFF) id3text(f func(metadataID3v2) string) string {
	if m.id3 == nil {
		return ""
	}
	return f(m.id3meta())
}

func (m *metadataAIFF) Album() string {
	return m.id3text(func(t metadataID3v2) string { return t.Album() })
}

func (m *metadataAIFF) AlbumArtist() string {
	return m.id3text(func(t metadataID3v2) string { return t.AlbumArtist() })
}

func (m *metadataAIFF) Composer() string {
	return m.id3text(func(t metadataID3v2) string { return t.Composer() })
}

func (m *metadataAIFF) Genre() string {
	return m.id3text(func(t metadataID3v2) string { return t.Genre() })
}

func (m *metadataAIFF) Lyrics() string {
	return m.id3text(func(t metadataID3v2) string { return t.Lyrics() })
}

func (m *metadataAIFF) Year() int {
	if m.id3 == nil {
		return 0
	}
	return m.id3meta().Year()
}

func (m *metadataAIFF) Track() (int, int) {
	if m.id3 == nil {
		return 0, 0
	}
	return m.id3meta().Track()
}

func (m *metadataAIFF) Disc() (int, int) {
	if m.id3 == nil {
		return 0, 0
	}
	return m.id3meta().Disc()
}

func (m *metadataAIFF) Picture() *Picture {
	if m.id3 == nil {
		return nil
	}
	return m.id3meta().Picture()
}

// ReadAIFFTags reads AIFF text chunks, any embedded ID3v2 tag and COMM
// stream properties.
func ReadAIFFTags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	hdr, err := readBytes(r, 12)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "FORM" {
		return nil, wrapErr(ErrBadMagic, "expected 'FORM'")
	}
	form := string(hdr[8:12])
	if form != "AIFF" && form != "AIFC" {
		return nil, wrapErr(ErrBadMagic, "expected AIFF or AIFC form type, got %q", form)
	}

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	formEnd := int64(8) + int64(binary.BigEndian.Uint32(hdr[4:8]))
	if formEnd > end {
		if opts.Mode == Strict {
			return nil, wrapErr(ErrSizeMismatch, "FORM size exceeds file")
		}
		formEnd = end
	}

	chunks, err := readAIFFChunks(r, 12, formEnd)
	if err != nil && opts.Mode == Strict {
		return nil, err
	}

	m := &metadataAIFF{text: &AIFFText{}}

	slurp := func(c aiffChunk) ([]byte, error) {
		if _, err := r.Seek(c.dataStart(), io.SeekStart); err != nil {
			return nil, err
		}
		return readBytes(r, uint(c.size))
	}

	for _, c := range chunks {
		switch c.id {
		case "COMM":
			if !opts.ReadProperties {
				continue
			}
			b, err := slurp(c)
			if err != nil {
				return nil, err
			}
			p, err := parseCOMM(b, form == "AIFC")
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				continue
			}
			m.props = p

		case "NAME", "AUTH", "(c) ", "ANNO":
			if !opts.ReadTags {
				continue
			}
			b, err := slurp(c)
			if err != nil {
				return nil, err
			}
			s := decodeLatin1(b)
			switch c.id {
			case "NAME":
				m.text.Name = s
			case "AUTH":
				m.text.Author = s
			case "(c) ":
				m.text.Copyright = s
			case "ANNO":
				m.text.Annotations = append(m.text.Annotations, s)
			}

		case "COMT":
			if !opts.ReadTags {
				continue
			}
			b, err := slurp(c)
			if err != nil {
				return nil, err
			}
			// numComments u16, then {timestamp u32, marker u16,
			// count u16, text}.
			if len(b) < 2 {
				continue
			}
			n := int(binary.BigEndian.Uint16(b[0:2]))
			b = b[2:]
			for i := 0; i < n && len(b) >= 8; i++ {
				count := int(binary.BigEndian.Uint16(b[6:8]))
				b = b[8:]
				if count > len(b) {
					break
				}
				m.text.Comments = append(m.text.Comments, decodeLatin1(b[:count]))
				b = b[count+count&1:]
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
	return m, nil
}

// WriteAIFFText rewrites the NAME/AUTH/(c) /ANNO chunks of an AIFF file
// from t, dropping existing ones and appending the new set before the
// end of the FORM chunk. The FORM size is updated.
func WriteAIFFText(w Target, t *AIFFText, opts WriteOptions) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr, err := readBytes(w, 12)
	if err != nil {
		return err
	}
	if string(hdr[0:4]) != "FORM" {
		return wrapErr(ErrBadMagic, "expected 'FORM'")
	}

	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	formEnd := int64(8) + int64(binary.BigEndian.Uint32(hdr[4:8]))
	if formEnd > end {
		formEnd = end
	}

	chunks, err := readAIFFChunks(w, 12, formEnd)
	if err != nil {
		return err
	}

	// Drop the existing text chunks back-to-front so earlier offsets
	// stay valid.
	removed := int64(0)
	for i := len(chunks) - 1; i >= 0; i-- {
		c := chunks[i]
		switch c.id {
		case "NAME", "AUTH", "(c) ", "ANNO":
			if err := spliceRegion(w, c.start, c.next()-c.start, nil); err != nil {
				return err
			}
			removed += c.next() - c.start
		}
	}
	formEnd -= removed

	var replacement []byte
	appendText := func(id, value string) {
		if value == "" {
			return
		}
		body := latin1Replace(value)
		replacement = append(replacement, id...)
		replacement = binary.BigEndian.AppendUint32(replacement, uint32(len(body)))
		replacement = append(replacement, body...)
		if len(body)&1 == 1 {
			replacement = append(replacement, 0)
		}
	}
	appendText("NAME", t.Name)
	appendText("AUTH", t.Author)
	appendText("(c) ", t.Copyright)
	for _, a := range t.Annotations {
		appendText("ANNO", a)
	}

	if err := spliceRegion(w, formEnd, 0, replacement); err != nil {
		return err
	}

	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(formEnd-8+int64(len(replacement))))
	_, err = w.Write(b[:])
	return err
}

// WriteAIFFID3v2 replaces (or appends) the embedded ID3v2 chunk of an
// AIFF file.
func WriteAIFFID3v2(w Target, t *ID3v2Tag, opts WriteOptions) error {
	rendered, err := RenderID3v2Tag(t, opts)
	if err != nil {
		return err
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr, err := readBytes(w, 12)
	if err != nil {
		return err
	}
	if string(hdr[0:4]) != "FORM" {
		return wrapErr(ErrBadMagic, "expected 'FORM'")
	}

	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	formEnd := int64(8) + int64(binary.BigEndian.Uint32(hdr[4:8]))
	if formEnd > end {
		formEnd = end
	}

	chunks, err := readAIFFChunks(w, 12, formEnd)
	if err != nil {
		return err
	}

	chunk := make([]byte, 0, 8+len(rendered))
	chunk = append(chunk, "ID3 "...)
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(rendered)))
	chunk = append(chunk, rendered...)
	if len(rendered)&1 == 1 {
		chunk = append(chunk, 0)
	}

	target := aiffChunk{start: -1}
	for _, c := range chunks {
		if c.id == "ID3 " || c.id == "id3 " {
			target = c
			break
		}
	}

	var newFormSize int64
	if target.start < 0 {
		if err := spliceRegion(w, formEnd, 0, chunk); err != nil {
			return err
		}
		newFormSize = formEnd - 8 + int64(len(chunk))
	} else {
		oldLen := target.next() - target.start
		if err := spliceRegion(w, target.start, oldLen, chunk); err != nil {
			return err
		}
		newFormSize = formEnd - 8 - oldLen + int64(len(chunk))
	}

	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(newFormSize))
	_, err = w.Write(b[:])
	return err
}

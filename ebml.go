// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"io"
	"math"
	"math/bits"
	"time"
)

// EBML structures a stream as elements: a VINT ID (length bits kept), a
// VINT size (length bits stripped) and a payload, with master elements
// nesting further elements.
// See https://www.rfc-editor.org/rfc/rfc8794.

// ebmlKind is the value type of an element per the document type
// catalog.
type ebmlKind byte

const (
	ebmlMaster ebmlKind = iota
	ebmlUnsignedInt
	ebmlSignedInt
	ebmlFloat
	ebmlString
	ebmlUTF8
	ebmlDate
	ebmlBinary
)

// ebmlElement is a decoded element header.
type ebmlElement struct {
	id   uint64
	size uint64
	kind ebmlKind
	name string
}

// ebmlCatalog is the static element catalog: the subset of the Matroska
// document type this package interprets. Unknown IDs decode as binary
// and are skipped.
var ebmlCatalog = map[uint64]struct {
	kind ebmlKind
	name string
}{
	0x1A45DFA3: {ebmlMaster, "EBML"},
	0x4286:     {ebmlUnsignedInt, "EBMLVersion"},
	0x4282:     {ebmlString, "DocType"},
	0x4287:     {ebmlUnsignedInt, "DocTypeVersion"},

	0x18538067: {ebmlMaster, "Segment"},

	0x1549A966: {ebmlMaster, "Info"},
	0x2AD7B1:   {ebmlUnsignedInt, "TimestampScale"},
	0x4489:     {ebmlFloat, "Duration"},
	0x4461:     {ebmlDate, "DateUTC"},
	0x7BA9:     {ebmlUTF8, "Title"},
	0x4D80:     {ebmlUTF8, "MuxingApp"},
	0x5741:     {ebmlUTF8, "WritingApp"},

	0x1654AE6B: {ebmlMaster, "Tracks"},
	0xAE:       {ebmlMaster, "TrackEntry"},
	0xD7:       {ebmlUnsignedInt, "TrackNumber"},
	0x73C5:     {ebmlUnsignedInt, "TrackUID"},
	0x83:       {ebmlUnsignedInt, "TrackType"},
	0x86:       {ebmlString, "CodecID"},
	0x22B59C:   {ebmlString, "Language"},
	0xE1:       {ebmlMaster, "Audio"},
	0xB5:       {ebmlFloat, "SamplingFrequency"},
	0x9F:       {ebmlUnsignedInt, "Channels"},
	0x6264:     {ebmlUnsignedInt, "BitDepth"},

	0x1254C367: {ebmlMaster, "Tags"},
	0x7373:     {ebmlMaster, "Tag"},
	0x63C0:     {ebmlMaster, "Targets"},
	0x68CA:     {ebmlUnsignedInt, "TargetTypeValue"},
	0x63CA:     {ebmlString, "TargetType"},
	0x63C5:     {ebmlUnsignedInt, "TagTrackUID"},
	0x67C8:     {ebmlMaster, "SimpleTag"},
	0x45A3:     {ebmlUTF8, "TagName"},
	0x447A:     {ebmlString, "TagLanguage"},
	0x4484:     {ebmlUnsignedInt, "TagDefault"},
	0x4487:     {ebmlUTF8, "TagString"},
	0x4485:     {ebmlBinary, "TagBinary"},

	0x1C53BB6B: {ebmlMaster, "Cues"},
	0x114D9B74: {ebmlMaster, "SeekHead"},
	0x1F43B675: {ebmlMaster, "Cluster"},
	0x1941A469: {ebmlMaster, "Attachments"},
}

// readEBMLID reads an element ID, keeping the length marker bits as the
// ID value (the Matroska convention).
func readEBMLID(r io.Reader) (uint64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	if b[0] == 0 {
		return 0, ErrBadVintSize
	}
	octets := bits.LeadingZeros8(b[0]) + 1
	if octets > 4 {
		return 0, wrapErr(ErrBadVintSize, "element ID of %d octets", octets)
	}

	id := uint64(b[0])
	for i := 1; i < octets; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		id = id<<8 | uint64(b[0])
	}
	return id, nil
}

// readEBMLElement reads the next element header from r.
func readEBMLElement(r io.Reader) (*ebmlElement, error) {
	id, err := readEBMLID(r)
	if err != nil {
		return nil, err
	}
	size, err := readVInt(r, 8)
	if err != nil {
		return nil, err
	}

	e := &ebmlElement{id: id, size: size, kind: ebmlBinary}
	if c, ok := ebmlCatalog[id]; ok {
		e.kind = c.kind
		e.name = c.name
	}
	return e, nil
}

// ebmlChildren iterates the children of a master element whose payload
// occupies [pos, pos+size), calling fn for each. fn receives the
// element and the offset of its payload; a non-nil error from fn stops
// the walk and is returned. Recursing into a child is left to fn; the
// iterator steps over each payload either way.
func ebmlChildren(r io.ReadSeeker, pos, size int64, fn func(e *ebmlElement, payload int64) error) error {
	end := pos + size
	for pos < end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return err
		}
		e, err := readEBMLElement(r)
		if err != nil {
			return err
		}
		payload, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if payload+int64(e.size) > end {
			return wrapErr(ErrSizeMismatch, "element %#x overruns parent", e.id)
		}
		if err := fn(e, payload); err != nil {
			return err
		}
		pos = payload + int64(e.size)
	}
	return nil
}

// ebmlUint decodes a big-endian variable-width (0..8 byte) unsigned
// integer payload.
func ebmlUint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// ebmlFloatValue decodes a 0, 4 or 8 byte float payload; zero length
// means 0.0.
func ebmlFloatValue(b []byte) (float64, error) {
	switch len(b) {
	case 0:
		return 0, nil
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	}
	return 0, wrapErr(ErrSizeMismatch, "float element of %d bytes", len(b))
}

// ebmlStringValue trims any trailing null octets from a string payload.
func ebmlStringValue(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// ebmlEpoch is the EBML date origin; dates are nanoseconds from it.
var ebmlEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func ebmlDateValue(b []byte) (time.Time, error) {
	if len(b) == 0 {
		return ebmlEpoch, nil
	}
	if len(b) != 8 {
		return time.Time{}, wrapErr(ErrSizeMismatch, "date element of %d bytes", len(b))
	}
	return ebmlEpoch.Add(time.Duration(int64(binary.BigEndian.Uint64(b)))), nil
}

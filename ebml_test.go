package tag

import (
	"bytes"
	"testing"
	"time"
)

// ebmlElem emits an element: raw ID bytes, minimal VInt size, payload.
func ebmlElem(id []byte, payload []byte) []byte {
	out := append([]byte{}, id...)
	size, err := appendVInt(nil, uint64(len(payload)), 0)
	if err != nil {
		panic(err)
	}
	out = append(out, size...)
	return append(out, payload...)
}

func ebmlUintPayload(v uint64) []byte {
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v)}, b...)
		v >>= 8
	}
	if b == nil {
		b = []byte{0}
	}
	return b
}

func TestReadEBMLID(t *testing.T) {
	tests := []struct {
		input []byte
		id    uint64
	}{
		{[]byte{0x1A, 0x45, 0xDF, 0xA3}, 0x1A45DFA3},
		{[]byte{0xAE}, 0xAE},
		{[]byte{0x42, 0x86}, 0x4286},
		{[]byte{0x2A, 0xD7, 0xB1}, 0x2AD7B1},
	}
	for _, tt := range tests {
		got, err := readEBMLID(bytes.NewReader(tt.input))
		if err != nil {
			t.Errorf("readEBMLID(% x) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.id {
			t.Errorf("readEBMLID(% x) = %#x, expected %#x", tt.input, got, tt.id)
		}
	}

	if _, err := readEBMLID(bytes.NewReader([]byte{0x00})); err == nil {
		t.Errorf("expected error for zero lead byte")
	}
	if _, err := readEBMLID(bytes.NewReader([]byte{0x08, 0, 0, 0, 0})); err == nil {
		t.Errorf("expected error for a 5-octet ID")
	}
}

func TestEBMLValues(t *testing.T) {
	if got := ebmlUint([]byte{0x01, 0x00}); got != 256 {
		t.Errorf("ebmlUint = %d", got)
	}
	if got := ebmlUint(nil); got != 0 {
		t.Errorf("ebmlUint(nil) = %d", got)
	}

	if v, err := ebmlFloatValue(nil); err != nil || v != 0 {
		t.Errorf("zero-length float: %v, %v", v, err)
	}
	if _, err := ebmlFloatValue([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for 3-byte float")
	}

	if got := ebmlStringValue([]byte("abc\x00\x00")); got != "abc" {
		t.Errorf("ebmlStringValue = %q", got)
	}

	d, err := ebmlDateValue(make([]byte, 8))
	if err != nil {
		t.Fatalf("ebmlDateValue returned error: %v", err)
	}
	if !d.Equal(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("epoch date = %v", d)
	}
}

// buildMatroskaFile assembles a minimal file: EBML header, then a
// Segment holding Info, Tracks and Tags.
func buildMatroskaFile() []byte {
	header := ebmlElem([]byte{0x1A, 0x45, 0xDF, 0xA3},
		ebmlElem([]byte{0x42, 0x82}, []byte("matroska")))

	info := ebmlElem([]byte{0x15, 0x49, 0xA9, 0x66}, bytes.Join([][]byte{
		ebmlElem([]byte{0x2A, 0xD7, 0xB1}, ebmlUintPayload(1000000)),
		ebmlElem([]byte{0x44, 0x89}, []byte{0x46, 0x1C, 0x40, 0x00}), // float32 10000.0
		ebmlElem([]byte{0x7B, 0xA9}, []byte("Segment Title")),
	}, nil))

	audio := ebmlElem([]byte{0xE1}, bytes.Join([][]byte{
		ebmlElem([]byte{0xB5}, []byte{0x47, 0x2C, 0x44, 0x00}), // 44100.0 float32
		ebmlElem([]byte{0x9F}, ebmlUintPayload(2)),
		ebmlElem([]byte{0x62, 0x64}, ebmlUintPayload(16)),
	}, nil))
	trackEntry := ebmlElem([]byte{0xAE}, bytes.Join([][]byte{
		ebmlElem([]byte{0x83}, ebmlUintPayload(2)), // audio track
		ebmlElem([]byte{0x86}, []byte("A_FLAC")),
		audio,
	}, nil))
	tracks := ebmlElem([]byte{0x16, 0x54, 0xAE, 0x6B}, trackEntry)

	simple := func(name, value string) []byte {
		return ebmlElem([]byte{0x67, 0xC8}, bytes.Join([][]byte{
			ebmlElem([]byte{0x45, 0xA3}, []byte(name)),
			ebmlElem([]byte{0x44, 0x87}, []byte(value)),
		}, nil))
	}
	targets30 := ebmlElem([]byte{0x63, 0xC0},
		ebmlElem([]byte{0x68, 0xCA}, ebmlUintPayload(30)))
	tag30 := ebmlElem([]byte{0x73, 0x73}, bytes.Join([][]byte{
		targets30,
		simple("TITLE", "Test Title"),
		simple("ARTIST", "Test Artist"),
	}, nil))
	tag50 := ebmlElem([]byte{0x73, 0x73}, bytes.Join([][]byte{
		ebmlElem([]byte{0x63, 0xC0}, ebmlElem([]byte{0x68, 0xCA}, ebmlUintPayload(50))),
		simple("TITLE", "Test Album"),
	}, nil))
	tags := ebmlElem([]byte{0x12, 0x54, 0xC3, 0x67}, append(tag30, tag50...))

	segment := ebmlElem([]byte{0x18, 0x53, 0x80, 0x67},
		bytes.Join([][]byte{info, tracks, tags}, nil))

	return append(header, segment...)
}

func TestReadMatroskaTags(t *testing.T) {
	file := buildMatroskaFile()

	m, err := ReadMatroskaTags(bytes.NewReader(file), ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("ReadMatroskaTags returned error: %v", err)
	}

	if m.Format() != MATROSKA {
		t.Errorf("Format() = %v", m.Format())
	}
	if m.FileType() != EBML {
		t.Errorf("FileType() = %v", m.FileType())
	}
	if m.Title() != "Test Title" {
		t.Errorf("Title() = %q", m.Title())
	}
	if m.Artist() != "Test Artist" {
		t.Errorf("Artist() = %q", m.Artist())
	}
	if m.Album() != "Test Album" {
		t.Errorf("Album() = %q", m.Album())
	}

	mk := m.(*metadataMatroska)
	if mk.props.DocType != "matroska" {
		t.Errorf("DocType = %q", mk.props.DocType)
	}
	if mk.props.CodecID != "A_FLAC" {
		t.Errorf("CodecID = %q", mk.props.CodecID)
	}

	p := mk.Properties()
	if p.SampleRate != 44100 || p.Channels != 2 || p.BitDepth != 16 {
		t.Errorf("audio properties = %+v", p)
	}
	// 10000 ticks * 1ms timestamp scale = 10s.
	if p.Duration != 10*time.Second {
		t.Errorf("Duration = %v", p.Duration)
	}
}

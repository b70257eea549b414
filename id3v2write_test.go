// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"testing"
)

// renderParse runs a frame through emission and back for the given
// version.
func renderParse(t *testing.T, f Frame, version Format) *Frame {
	t.Helper()

	opts := WriteOptions{}
	if version == ID3v2_3 {
		opts.UseID3v23 = true
	}
	b, err := appendFrameBytes(nil, &f, version, opts)
	if err != nil {
		t.Fatalf("appendFrameBytes(%q) returned error: %v", f.ID, err)
	}

	parsed, _, err := readID3v2Frame(bytes.NewReader(b), version, ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("readID3v2Frame(%q) returned error: %v", f.ID, err)
	}
	return parsed
}

func TestFrameRoundTrips(t *testing.T) {
	frames := []Frame{
		{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"Title"}}},
		{ID: "TPE1", Data: &TextFrame{Encoding: EncodingUTF16, Values: []string{"Ärtist"}}},
		{ID: "TXXX", Data: &UserTextFrame{Encoding: EncodingUTF8, Description: "CATALOG", Value: "X1"}},
		{ID: "WOAF", Data: &URLFrame{URL: "http://example.com"}},
		{ID: "WXXX", Data: &UserURLFrame{Encoding: EncodingUTF8, Description: "site", URL: "http://example.com"}},
		{ID: "COMM", Data: &CommentFrame{Encoding: EncodingUTF8, Language: "eng", Description: "d", Text: "body"}},
		{ID: "USLT", Data: &LyricsFrame{Encoding: EncodingUTF8, Language: "eng", Description: "", Text: "la la"}},
		{ID: "POPM", Data: &PopularimeterFrame{Email: "a@b.c", Rating: 196, Counter: 12}},
		{ID: "PRIV", Data: &PrivateFrame{Owner: "owner", Data: []byte{1, 2}}},
		{ID: "UFID", Data: &UniqueFileIDFrame{Owner: "http://musicbrainz.org", Identifier: []byte("id")}},
		{ID: "ETCO", Data: &EventTimingFrame{Format: TimestampMS, Events: []TimedEvent{{EventType: 3, Timestamp: 100}}}},
		{ID: "TDRC", Data: &TimestampFrame{Encoding: EncodingUTF8, Timestamp: Timestamp{Year: 2024, Month: 6, HasMonth: true}}},
	}

	for _, version := range []Format{ID3v2_3, ID3v2_4} {
		for _, f := range frames {
			if version == ID3v2_3 && f.ID == "TDRC" {
				continue // v4-only frame
			}
			parsed := renderParse(t, f, version)
			if parsed.ID != f.ID {
				t.Errorf("[%v] ID = %q, expected %q", version, parsed.ID, f.ID)
			}

			switch want := f.Data.(type) {
			case *TextFrame:
				got := parsed.Data.(*TextFrame)
				if got.Value() != want.Value() {
					t.Errorf("[%v %s] value = %q, expected %q", version, f.ID, got.Value(), want.Value())
				}
			case *PopularimeterFrame:
				got := parsed.Data.(*PopularimeterFrame)
				if *got != *want {
					t.Errorf("[%v %s] got %+v, expected %+v", version, f.ID, got, want)
				}
			case *CommentFrame:
				got := parsed.Data.(*CommentFrame)
				if *got != *want {
					t.Errorf("[%v %s] got %+v, expected %+v", version, f.ID, got, want)
				}
			}
		}
	}
}

func TestRenderID3v2TagHeader(t *testing.T) {
	tag := &ID3v2Tag{Version: ID3v2_4}
	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"x"}}})

	b, err := RenderID3v2Tag(tag, WriteOptions{})
	if err != nil {
		t.Fatalf("RenderID3v2Tag returned error: %v", err)
	}

	if string(b[0:3]) != "ID3" || b[3] != 4 || b[4] != 0 {
		t.Errorf("bad tag header: % x", b[:10])
	}
	declared := get7BitChunkedInt(b[6:10])
	if declared != len(b)-10 {
		t.Errorf("declared size %d, actual %d", declared, len(b)-10)
	}

	// Default preferred padding is present.
	if declared < int(DefaultPreferredPadding) {
		t.Errorf("expected at least %d bytes of padding, tag size %d", DefaultPreferredPadding, declared)
	}
}

func TestRenderID3v2TagV23(t *testing.T) {
	tag := &ID3v2Tag{Version: ID3v2_4}
	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"x"}}})

	b, err := RenderID3v2Tag(tag, WriteOptions{UseID3v23: true})
	if err != nil {
		t.Fatalf("RenderID3v2Tag returned error: %v", err)
	}
	if b[3] != 3 {
		t.Errorf("version byte = %d, expected 3", b[3])
	}

	// The first frame follows the 10-byte header.
	if string(b[10:14]) != "TIT2" {
		t.Fatalf("first frame is %q", b[10:14])
	}
}

func TestOutdatedFramesDropped(t *testing.T) {
	tag := &ID3v2Tag{Version: ID3v2_2}
	tag.Frames = append(tag.Frames, Frame{ID: "XYZ", Outdated: true, Data: &BinaryFrame{Data: []byte{1}}})
	tag.Frames = append(tag.Frames, Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"x"}}})

	zero := uint32(0)
	b, err := RenderID3v2Tag(tag, WriteOptions{PreferredPadding: &zero})
	if err != nil {
		t.Fatalf("RenderID3v2Tag returned error: %v", err)
	}
	if bytes.Contains(b, []byte("XYZ")) {
		t.Errorf("outdated frame was written")
	}
	if !bytes.Contains(b, []byte("TIT2")) {
		t.Errorf("valid frame missing")
	}
}

// buildS1File produces the scenario input: an ID3v2.4 tag holding
// TPE1=Foo followed by an MPEG frame sync.
func buildS1File() []byte {
	var b []byte
	b = append(b, 0x49, 0x44, 0x33, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x22)

	var frame []byte
	frame = append(frame, "TPE1"...)
	frame = append(frame, 0, 0, 0, 4, 0, 0)
	frame = append(frame, 0x03, 'F', 'o', 'o')
	b = append(b, frame...)
	b = append(b, make([]byte, 0x22-len(frame))...) // pad to declared size

	// MPEG frame sync.
	b = append(b, 0xFF, 0xFB, 0x90, 0x00)
	b = append(b, bytes.Repeat([]byte{0x55}, 32)...)
	return b
}

func TestWriteID3v2TagAddTitle(t *testing.T) {
	f := newMemFile(buildS1File())

	m, err := ReadID3v2Tags(f, ParseOptions{Mode: BestAttempt, ReadTags: true})
	if err != nil {
		t.Fatalf("ReadID3v2Tags returned error: %v", err)
	}
	tag := m.(metadataID3v2).Tag()

	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"NEW"}}})
	if err := WriteID3v2Tag(f, tag, WriteOptions{}); err != nil {
		t.Fatalf("WriteID3v2Tag returned error: %v", err)
	}

	out := f.buf
	if string(out[0:3]) != "ID3" || out[3] != 4 || out[4] != 0 {
		t.Fatalf("output does not start with an ID3v2.4 header: % x", out[:10])
	}

	m2, err := ReadID3v2Tags(newMemFile(out), ParseOptions{Mode: BestAttempt, ReadTags: true})
	if err != nil {
		t.Fatalf("re-read returned error: %v", err)
	}
	tag2 := m2.(metadataID3v2).Tag()

	if v := tag2.Frame("TPE1").Data.(*TextFrame).Value(); v != "Foo" {
		t.Errorf("TPE1 = %q, expected %q", v, "Foo")
	}
	if v := tag2.Frame("TIT2").Data.(*TextFrame).Value(); v != "NEW" {
		t.Errorf("TIT2 = %q, expected %q", v, "NEW")
	}

	// The audio must still follow immediately after the new tag.
	newSize := get7BitChunkedInt(out[6:10])
	audio := out[10+newSize:]
	if audio[0] != 0xFF || audio[1] != 0xFB {
		t.Errorf("MPEG frame sync not found after tag: % x", audio[:4])
	}
}

func TestWriteID3v2TagInPlace(t *testing.T) {
	// A tag with generous padding must be rewritten without changing
	// the file size.
	tag := &ID3v2Tag{Version: ID3v2_4}
	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"x"}}})

	rendered, err := RenderID3v2Tag(tag, WriteOptions{})
	if err != nil {
		t.Fatalf("RenderID3v2Tag returned error: %v", err)
	}
	file := append(rendered, bytes.Repeat([]byte{0xAA}, 64)...)

	f := newMemFile(file)
	tag.AddFrame(Frame{ID: "TALB", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"album"}}})
	zero := uint32(0)
	if err := WriteID3v2Tag(f, tag, WriteOptions{PreferredPadding: &zero}); err != nil {
		t.Fatalf("WriteID3v2Tag returned error: %v", err)
	}

	if len(f.buf) != len(file) {
		t.Errorf("file size changed: %d -> %d", len(file), len(f.buf))
	}
	if !bytes.Equal(f.buf[len(f.buf)-64:], file[len(file)-64:]) {
		t.Errorf("audio bytes moved")
	}
}

func TestStripID3v2Tag(t *testing.T) {
	f := newMemFile(buildS1File())
	if err := StripID3v2Tag(f); err != nil {
		t.Fatalf("StripID3v2Tag returned error: %v", err)
	}
	if f.buf[0] != 0xFF || f.buf[1] != 0xFB {
		t.Errorf("audio does not start at offset 0 after strip: % x", f.buf[:4])
	}
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadID3v2Header(t *testing.T) {
	b := []byte{'I', 'D', '3', 4, 0, 0x80, 0x00, 0x00, 0x00, 0x22}
	h, err := readID3v2Header(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("readID3v2Header returned error: %v", err)
	}
	if h.Version != ID3v2_4 {
		t.Errorf("Version = %v, expected %v", h.Version, ID3v2_4)
	}
	if !h.Flags.Unsynchronisation {
		t.Errorf("expected unsynchronisation flag")
	}
	if h.Size != 0x22 {
		t.Errorf("Size = %d, expected %d", h.Size, 0x22)
	}
}

func TestReadID3v2HeaderBadVersion(t *testing.T) {
	b := []byte{'I', 'D', '3', 5, 0, 0, 0, 0, 0, 0}
	if _, err := readID3v2Header(bytes.NewReader(b)); err == nil {
		t.Errorf("expected error for unknown version")
	}
}

func TestReadID3v2HeaderV2Compression(t *testing.T) {
	b := []byte{'I', 'D', '3', 2, 0, 0x40, 0, 0, 0, 0}
	_, err := readID3v2Header(bytes.NewReader(b))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("got %v, expected ErrUnsupportedFormat", err)
	}
}

func TestParseID3v2Tag(t *testing.T) {
	// A v2.4 tag holding TPE1 and a COMM frame.
	var frames []byte
	frames = append(frames, "TPE1"...)
	frames = append(frames, 0, 0, 0, 4, 0, 0)
	frames = append(frames, 0x03, 'F', 'o', 'o')
	frames = append(frames, "COMM"...)
	frames = append(frames, 0, 0, 0, 10, 0, 0)
	frames = append(frames, 0x03)
	frames = append(frames, "eng"...)
	frames = append(frames, 'd', 0, 't', 'e', 'x', 't')

	h := &ID3v2Header{Version: ID3v2_4, Size: len(frames)}
	tag, err := parseID3v2Tag(bytes.NewReader(frames), h, ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("parseID3v2Tag returned error: %v", err)
	}

	if len(tag.Frames) != 2 {
		t.Fatalf("got %d frames, expected 2", len(tag.Frames))
	}

	tf, ok := tag.Frame("TPE1").Data.(*TextFrame)
	if !ok {
		t.Fatalf("TPE1 frame has wrong type %T", tag.Frame("TPE1").Data)
	}
	if tf.Value() != "Foo" {
		t.Errorf("TPE1 = %q, expected %q", tf.Value(), "Foo")
	}

	cf, ok := tag.Frame("COMM").Data.(*CommentFrame)
	if !ok {
		t.Fatalf("COMM frame has wrong type")
	}
	if cf.Language != "eng" || cf.Description != "d" || cf.Text != "text" {
		t.Errorf("COMM = %+v", cf)
	}
}

func TestParseID3v2TagPadding(t *testing.T) {
	var frames []byte
	frames = append(frames, "TIT2"...)
	frames = append(frames, 0, 0, 0, 4, 0, 0)
	frames = append(frames, 0x03, 'a', 'b', 'c')
	frames = append(frames, make([]byte, 32)...) // padding

	h := &ID3v2Header{Version: ID3v2_4, Size: len(frames)}
	tag, err := parseID3v2Tag(bytes.NewReader(frames), h, ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("parseID3v2Tag returned error: %v", err)
	}
	if len(tag.Frames) != 1 {
		t.Errorf("got %d frames, expected 1", len(tag.Frames))
	}
}

func TestAddFrameCoalescing(t *testing.T) {
	tag := &ID3v2Tag{Version: ID3v2_4}

	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"One"}}})
	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"Two"}}})
	if len(tag.Frames) != 1 {
		t.Errorf("TIT2 did not replace: %d frames", len(tag.Frames))
	}

	tag.AddFrame(Frame{ID: "TXXX", Data: &UserTextFrame{Description: "A", Value: "1"}})
	tag.AddFrame(Frame{ID: "TXXX", Data: &UserTextFrame{Description: "B", Value: "2"}})
	tag.AddFrame(Frame{ID: "TXXX", Data: &UserTextFrame{Description: "A", Value: "3"}})
	if len(tag.Frames) != 3 {
		t.Errorf("TXXX coalescing by description failed: %d frames", len(tag.Frames))
	}

	var aValue string
	for _, f := range tag.Frames {
		if u, ok := f.Data.(*UserTextFrame); ok && u.Description == "A" {
			aValue = u.Value
		}
	}
	if aValue != "3" {
		t.Errorf("TXXX A = %q, expected %q", aValue, "3")
	}
}

func TestGenreExpansion(t *testing.T) {
	var tests = map[string]string{
		"Test":         "Test",
		"((17)":        "(17)",
		"(17) Test":    "Rock Test",
		"(17)Test":     "Rock Test",
		"(17)":         "Rock",
		"Test(17)":     "Test Rock",
		"Test (17)":    "Test Rock",
		"(17)(93)":     "Rock Psychedelic Rock",
		"(17)Test(93)": "Rock Test Psychedelic Rock",
	}
	for g, r := range tests {
		got := id3v2genre(g)

		if got != r {
			t.Errorf("[%v] got: %v, expected %v", g, got, r)
		}
	}
}

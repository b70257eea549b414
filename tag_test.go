// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"testing"
)

func TestIdentify(t *testing.T) {
	mp4File, _ := buildTestMP4(testIlst(), 0)

	wvpk := make([]byte, 64)
	copy(wvpk, "wvpk")

	mac := append([]byte("MAC "), make([]byte, 64)...)

	tests := []struct {
		name string
		data []byte
		want FileType
	}{
		{"flac", buildFLACFile([]flacBlock{{typ: StreamInfoBlock, content: buildStreamInfo(1000)}}), FLAC},
		{"ogg vorbis", buildVorbisFile(&VorbisComments{Vendor: "v"}, defaultSetupPacket()), OGG},
		{"mp4", mp4File, MP4T},
		{"mp3", buildCBRMP3(3), MP3},
		{"wav", buildWAVFile(nil), WAV},
		{"aiff", buildAIFFFile(nil), AIFF},
		{"dsf", buildDSFFile(t, nil), DSF},
		{"matroska", buildMatroskaFile(), EBML},
		{"ape", mac, APEF},
		{"mpc sv7", append(buildSV7Header(10), make([]byte, 32)...), MPC},
		{"mpc sv8", append([]byte("MPCK"), make([]byte, 32)...), MPC},
		{"wavpack", wvpk, WAVPACK},
	}

	for _, tt := range tests {
		r := bytes.NewReader(tt.data)
		got, err := Identify(r)
		if err != nil {
			t.Errorf("[%s] Identify returned error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("[%s] Identify = %v, expected %v", tt.name, got, tt.want)
		}

		// The reader position is reset before returning.
		if pos, _ := r.Seek(0, 1); pos != 0 {
			t.Errorf("[%s] reader not reset, position %d", tt.name, pos)
		}
	}
}

func TestIdentifyID3v2Preceded(t *testing.T) {
	tag := &ID3v2Tag{Version: ID3v2_4}
	tag.AddFrame(Frame{ID: "TIT2", Data: &TextFrame{Encoding: EncodingUTF8, Values: []string{"x"}}})
	rendered, err := RenderID3v2Tag(tag, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}

	mp3 := append(append([]byte{}, rendered...), buildCBRMP3(3)...)
	got, err := Identify(bytes.NewReader(mp3))
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if got != MP3 {
		t.Errorf("Identify = %v, expected MP3", got)
	}

	flac := append(append([]byte{}, rendered...),
		buildFLACFile([]flacBlock{{typ: StreamInfoBlock, content: buildStreamInfo(1000)}})...)
	got, err = Identify(bytes.NewReader(flac))
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if got != FLAC {
		t.Errorf("Identify = %v, expected FLAC", got)
	}
}

func TestIdentifyJunkPreceded(t *testing.T) {
	junk := bytes.Repeat([]byte{0x20}, 100)
	mp3 := append(junk, buildCBRMP3(3)...)

	got, err := Identify(bytes.NewReader(mp3))
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if got != MP3 {
		t.Errorf("Identify = %v, expected MP3", got)
	}
}

func TestIdentifyUnknown(t *testing.T) {
	if _, err := Identify(bytes.NewReader(bytes.Repeat([]byte{0x01}, 64))); err == nil {
		t.Errorf("expected error for unknown data")
	}
}

func TestReadFrom(t *testing.T) {
	c := &VorbisComments{Vendor: "v"}
	c.Add("TITLE", "Test Title")

	mp4File, _ := buildTestMP4(testIlst(), 0)

	flacFile := buildFLACFile([]flacBlock{
		{typ: StreamInfoBlock, content: buildStreamInfo(1000)},
		{typ: VorbisCommentBlock, content: testFLACComments()},
	})

	tests := []struct {
		name  string
		data  []byte
		title string
	}{
		{"flac", flacFile, "Test Title"},
		{"ogg", buildVorbisFile(c, defaultSetupPacket()), "Test Title"},
		{"mp4", mp4File, "Test Title"},
	}

	for _, tt := range tests {
		m, err := ReadFrom(bytes.NewReader(tt.data))
		if err != nil {
			t.Errorf("[%s] ReadFrom returned error: %v", tt.name, err)
			continue
		}
		if m.Title() != tt.title {
			t.Errorf("[%s] Title() = %q, expected %q", tt.name, m.Title(), tt.title)
		}
	}
}

func TestReadFromID3v1Fallback(t *testing.T) {
	file := append(buildCBRMP3(3), buildID3v1("V1 Title", "A", "L", "1999", "C", 1, 8)...)
	m, err := ReadFrom(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("ReadFrom returned error: %v", err)
	}
	if m.Format() != ID3v1 {
		t.Errorf("Format() = %v, expected ID3v1", m.Format())
	}
	if m.Title() != "V1 Title" {
		t.Errorf("Title() = %q", m.Title())
	}
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"testing"
)

func buildID3v1(title, artist, album, year, comment string, track, genre byte) []byte {
	b := make([]byte, id3v1TagSize)
	copy(b[0:3], "TAG")
	copy(b[3:33], title)
	copy(b[33:63], artist)
	copy(b[63:93], album)
	copy(b[93:97], year)
	copy(b[97:125], comment)
	if track != 0 {
		b[125] = 0
		b[126] = track
	}
	b[127] = genre
	return b
}

func TestReadID3v1Tags(t *testing.T) {
	audio := bytes.Repeat([]byte{0xAA}, 64)
	raw := append(audio, buildID3v1("Test Title", "Test Artist", "Test Album", "2000", "Test Comment", 3, 8)...)

	m, err := ReadID3v1Tags(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadID3v1Tags returned error: %v", err)
	}

	if m.Format() != ID3v1 {
		t.Errorf("Format() = %v, expected %v", m.Format(), ID3v1)
	}
	if m.Title() != "Test Title" {
		t.Errorf("Title() = %q, expected %q", m.Title(), "Test Title")
	}
	if m.Artist() != "Test Artist" {
		t.Errorf("Artist() = %q, expected %q", m.Artist(), "Test Artist")
	}
	if m.Album() != "Test Album" {
		t.Errorf("Album() = %q, expected %q", m.Album(), "Test Album")
	}
	if m.Year() != 2000 {
		t.Errorf("Year() = %d, expected %d", m.Year(), 2000)
	}
	if m.Genre() != "Jazz" {
		t.Errorf("Genre() = %q, expected %q", m.Genre(), "Jazz")
	}
	if m.Comment() != "Test Comment" {
		t.Errorf("Comment() = %q, expected %q", m.Comment(), "Test Comment")
	}
	if track, _ := m.Track(); track != 3 {
		t.Errorf("Track() = %d, expected %d", track, 3)
	}
}

func TestReadID3v1TagsNotPresent(t *testing.T) {
	raw := bytes.Repeat([]byte{0x00}, 256)
	_, err := ReadID3v1Tags(bytes.NewReader(raw))
	if err != ErrNotID3v1 {
		t.Errorf("got %v, expected ErrNotID3v1", err)
	}
}

func TestWriteID3v1Tag(t *testing.T) {
	f := newMemFile(bytes.Repeat([]byte{0xAA}, 64))

	err := WriteID3v1Tag(f, map[string]string{
		"title":   "New Title",
		"artist":  "New Artist",
		"album":   "New Album",
		"year":    "2001",
		"comment": "New Comment",
		"track":   "7",
		"genre":   "Jazz",
	})
	if err != nil {
		t.Fatalf("WriteID3v1Tag returned error: %v", err)
	}
	if len(f.buf) != 64+id3v1TagSize {
		t.Fatalf("file size = %d, expected %d", len(f.buf), 64+id3v1TagSize)
	}

	m, err := ReadID3v1Tags(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("ReadID3v1Tags returned error: %v", err)
	}
	if m.Title() != "New Title" {
		t.Errorf("Title() = %q, expected %q", m.Title(), "New Title")
	}
	if m.Genre() != "Jazz" {
		t.Errorf("Genre() = %q, expected %q", m.Genre(), "Jazz")
	}
	if track, _ := m.Track(); track != 7 {
		t.Errorf("Track() = %d, expected %d", track, 7)
	}

	// A second write must overwrite the existing tag in place.
	if err := WriteID3v1Tag(f, map[string]string{"title": "Another"}); err != nil {
		t.Fatalf("second WriteID3v1Tag returned error: %v", err)
	}
	if len(f.buf) != 64+id3v1TagSize {
		t.Errorf("file size changed on rewrite: %d", len(f.buf))
	}
}

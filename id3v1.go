// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"errors"
	"io"
	"strings"
)

// id3v1Genres is the list of genres as defined in the ID3v1 specification,
// including the Winamp extensions.
var id3v1Genres = [...]string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient",
	"Trip-Hop", "Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical",
	"Instrumental", "Acid", "House", "Game", "Sound Clip", "Gospel",
	"Noise", "AlternRock", "Bass", "Soul", "Punk", "Space", "Meditative",
	"Instrumental Pop", "Instrumental Rock", "Ethnic", "Gothic", "Darkwave",
	"Techno-Industrial", "Electronic", "Pop-Folk", "Eurodance", "Dream",
	"Southern Rock", "Comedy", "Cult", "Gangsta", "Top 40", "Christian Rap",
	"Pop/Funk", "Jungle", "Native American", "Cabaret", "New Wave",
	"Psychadelic", "Rave", "Showtunes", "Trailer", "Lo-Fi", "Tribal",
	"Acid Punk", "Acid Jazz", "Polka", "Retro", "Musical", "Rock & Roll",
	"Hard Rock", "Folk", "Folk-Rock", "National Folk", "Swing", "Fast Fusion",
	"Bebob", "Latin", "Revival", "Celtic", "Bluegrass", "Avantgarde",
	"Gothic Rock", "Progressive Rock", "Psychedelic Rock", "Symphonic Rock",
	"Slow Rock", "Big Band", "Chorus", "Easy Listening", "Acoustic",
	"Humour", "Speech", "Chanson", "Opera", "Chamber Music", "Sonata",
	"Symphony", "Booty Bass", "Primus", "Porn Groove", "Satire", "Slow Jam",
	"Club", "Tango", "Samba", "Folklore", "Ballad", "Power Ballad",
	"Rhythmic Soul", "Freestyle", "Duet", "Punk Rock", "Drum Solo",
	"A capella", "Euro-House", "Dance Hall", "Goa", "Drum & Bass",
	"Club-House", "Hardcore", "Terror", "Indie", "BritPop", "Negerpunk",
	"Polsk Punk", "Beat", "Christian Gangsta Rap", "Heavy Metal",
	"Black Metal", "Crossover", "Contemporary Christian", "Christian Rock",
	"Merengue", "Salsa", "Thrash Metal", "Anime", "Jpop", "Synthpop",
}

// id3v1TagSize is the fixed size of an ID3v1 tag at the end of a file.
const id3v1TagSize = 128

// ErrNotID3v1 is an error which is returned when no ID3v1 header is found.
var ErrNotID3v1 = errors.New("invalid ID3v1 header")

// metadataID3v1 is the implementation of Metadata used for ID3v1 tags.
type metadataID3v1 map[string]interface{}

// ReadID3v1Tags reads ID3v1 tags from the io.ReadSeeker.  Returns ErrNotID3v1
// if there are no ID3v1 tags, otherwise non-nil error if there was a problem.
func ReadID3v1Tags(r io.ReadSeeker) (Metadata, error) {
	_, err := r.Seek(-id3v1TagSize, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	if tag, err := readString(r, 3); err != nil {
		return nil, err
	} else if tag != "TAG" {
		return nil, ErrNotID3v1
	}

	title, err := readString(r, 30)
	if err != nil {
		return nil, err
	}

	artist, err := readString(r, 30)
	if err != nil {
		return nil, err
	}

	album, err := readString(r, 30)
	if err != nil {
		return nil, err
	}

	year, err := readString(r, 4)
	if err != nil {
		return nil, err
	}

	commentBytes, err := readBytes(r, 30)
	if err != nil {
		return nil, err
	}

	var comment string
	var track int
	// ID3v1.1: a zero byte at comment[28] means comment[29] carries the
	// track number.
	if commentBytes[28] == 0 && commentBytes[29] != 0 {
		comment = trimString(string(commentBytes[:28]))
		track = int(commentBytes[29])
	} else {
		comment = trimString(string(commentBytes))
	}

	var genre string
	genreID, err := readBytes(r, 1)
	if err != nil {
		return nil, err
	}
	if int(genreID[0]) < len(id3v1Genres) {
		genre = id3v1Genres[genreID[0]]
	}

	m := metadataID3v1{
		"title":   trimString(title),
		"artist":  trimString(artist),
		"album":   trimString(album),
		"year":    trimString(year),
		"comment": comment,
		"track":   track,
		"genre":   genre,
	}
	return m, nil
}

// WriteID3v1Tag appends or overwrites an ID3v1 tag at the end of w.
// An existing tag is overwritten in place; otherwise 128 bytes are
// appended.
func WriteID3v1Tag(w io.ReadWriteSeeker, m map[string]string) error {
	// Locate any existing tag.
	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	pos := end
	if end >= id3v1TagSize {
		if _, err := w.Seek(-id3v1TagSize, io.SeekEnd); err != nil {
			return err
		}
		if magic, err := readString(w, 3); err == nil && magic == "TAG" {
			pos = end - id3v1TagSize
		}
	}

	b := make([]byte, id3v1TagSize)
	copy(b[0:3], "TAG")
	putID3v1Field(b[3:33], m["title"])
	putID3v1Field(b[33:63], m["artist"])
	putID3v1Field(b[63:93], m["album"])
	putID3v1Field(b[93:97], m["year"])
	if t := m["track"]; t != "" {
		putID3v1Field(b[97:125], m["comment"])
		b[125] = 0
		b[126] = byte(atoiDefault(t, 0))
	} else {
		putID3v1Field(b[97:127], m["comment"])
	}
	b[127] = id3v1GenreIndex(m["genre"])

	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func putID3v1Field(dst []byte, s string) {
	// ID3v1 is Latin-1 only; unrepresentable runes become '?'.
	copy(dst, latin1Replace(s))
}

func id3v1GenreIndex(genre string) byte {
	for i, g := range id3v1Genres {
		if strings.EqualFold(g, genre) {
			return byte(i)
		}
	}
	return 255
}

func atoiDefault(s string, def int) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func (metadataID3v1) Format() Format     { return ID3v1 }
func (metadataID3v1) FileType() FileType { return MP3 }

func (m metadataID3v1) Raw() map[string]interface{} { return m }

func (m metadataID3v1) Title() string  { return m["title"].(string) }
func (m metadataID3v1) Album() string  { return m["album"].(string) }
func (m metadataID3v1) Artist() string { return m["artist"].(string) }
func (m metadataID3v1) Genre() string  { return m["genre"].(string) }

func (m metadataID3v1) AlbumArtist() string { return "" }
func (m metadataID3v1) Composer() string    { return "" }
func (metadataID3v1) Lyrics() string        { return "" }

func (m metadataID3v1) Comment() string { return m["comment"].(string) }

func (m metadataID3v1) Year() int {
	y := m["year"].(string)
	return atoiDefault(y, 0)
}

func (m metadataID3v1) Track() (int, int) { return m["track"].(int), 0 }
func (m metadataID3v1) Disc() (int, int)  { return 0, 0 }

func (m metadataID3v1) Picture() *Picture { return nil }

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"strconv"
	"strings"
)

// metadataID3v2 is the implementation of Metadata used for ID3v2 tags.
type metadataID3v2 struct {
	tag   *ID3v2Tag
	props *MPEGProperties
}

// Tag exposes the underlying structured tag.
func (m metadataID3v2) Tag() *ID3v2Tag { return m.tag }

func (m metadataID3v2) Format() Format     { return m.tag.Version }
func (m metadataID3v2) FileType() FileType { return MP3 }

func (m metadataID3v2) Properties() Properties {
	if m.props == nil {
		return Properties{}
	}
	return m.props.Properties
}

func (m metadataID3v2) Raw() map[string]interface{} {
	raw := make(map[string]interface{}, len(m.tag.Frames))
	for i := range m.tag.Frames {
		f := &m.tag.Frames[i]
		name := f.ID
		for _, ok := raw[name]; ok; _, ok = raw[name] {
			name += "_"
		}
		raw[name] = f.Data
	}
	return raw
}

func (m metadataID3v2) text(id string) string {
	f := m.tag.Frame(id)
	if f == nil {
		return ""
	}
	switch v := f.Data.(type) {
	case *TextFrame:
		return v.Value()
	case *TimestampFrame:
		return v.Timestamp.String()
	case *UserTextFrame:
		return v.Value
	}
	return ""
}

func (m metadataID3v2) Title() string  { return m.text("TIT2") }
func (m metadataID3v2) Artist() string { return m.text("TPE1") }
func (m metadataID3v2) Album() string  { return m.text("TALB") }

func (m metadataID3v2) AlbumArtist() string { return m.text("TPE2") }
func (m metadataID3v2) Composer() string    { return m.text("TCOM") }

func (m metadataID3v2) Genre() string {
	return id3v2genre(m.text("TCON"))
}

func (m metadataID3v2) Year() int {
	if m.tag.Version == ID3v2_4 {
		if f := m.tag.Frame("TDRC"); f != nil {
			if ts, ok := f.Data.(*TimestampFrame); ok {
				return ts.Timestamp.Year
			}
		}
	}
	year, _ := strconv.Atoi(m.text("TYER"))
	return year
}

func parseXofN(s string) (x, n int) {
	xn := strings.Split(s, "/")
	if len(xn) != 2 {
		x, _ = strconv.Atoi(strings.TrimSpace(s))
		return x, 0
	}
	x, _ = strconv.Atoi(strings.TrimSpace(xn[0]))
	n, _ = strconv.Atoi(strings.TrimSpace(xn[1]))
	return x, n
}

func (m metadataID3v2) Track() (int, int) { return parseXofN(m.text("TRCK")) }
func (m metadataID3v2) Disc() (int, int)  { return parseXofN(m.text("TPOS")) }

func (m metadataID3v2) Lyrics() string {
	f := m.tag.Frame("USLT")
	if f == nil {
		return ""
	}
	if v, ok := f.Data.(*LyricsFrame); ok {
		return v.Text
	}
	return ""
}

func (m metadataID3v2) Comment() string {
	f := m.tag.Frame("COMM")
	if f == nil {
		return ""
	}
	if v, ok := f.Data.(*CommentFrame); ok {
		if v.Text == "" {
			return trimString(v.Description)
		}
		return trimString(v.Text)
	}
	return ""
}

func (m metadataID3v2) Picture() *Picture {
	for i := range m.tag.Frames {
		if v, ok := m.tag.Frames[i].Data.(*PictureFrame); ok {
			return &v.Picture
		}
	}
	return nil
}

// id3v2genre expands the legacy "(n)" genre references of TCON values
// against the ID3v1 genre table, e.g. "(17) Test" becomes "Rock Test".
// "((" escapes a literal parenthesis.
func id3v2genre(g string) string {
	var parts []string
	cur := ""
	for i := 0; i < len(g); i++ {
		c := g[i]
		if c == '(' {
			if i+1 < len(g) && g[i+1] == '(' {
				cur += g[i+1:]
				break
			}
			if j := strings.IndexByte(g[i:], ')'); j > 1 {
				if id, err := strconv.Atoi(g[i+1 : i+j]); err == nil && id < len(id3v1Genres) {
					if s := strings.TrimSpace(cur); s != "" {
						parts = append(parts, s)
					}
					cur = ""
					parts = append(parts, id3v1Genres[id])
					i += j
					continue
				}
			}
		}
		cur += string(c)
	}
	if s := strings.TrimSpace(cur); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"io"
	"log"
	"strconv"
	"strings"
)

// VorbisComment is a single key=value item. Keys are case-insensitive
// ASCII in 0x20..0x7D excluding '='; values are UTF-8.
type VorbisComment struct {
	Key   string
	Value string
}

// VorbisComments holds a Vorbis comment block: the vendor string and the
// ordered item list. Pictures are carried either in dedicated FLAC
// PICTURE blocks or base64-encoded METADATA_BLOCK_PICTURE items; both
// end up in Pictures here.
type VorbisComments struct {
	Vendor   string
	Items    []VorbisComment
	Pictures []*Picture
}

// Get returns the first value for the (case-insensitive) key.
func (v *VorbisComments) Get(key string) string {
	for _, c := range v.Items {
		if strings.EqualFold(c.Key, key) {
			return c.Value
		}
	}
	return ""
}

// Set replaces every existing value for key with a single new one,
// appending when absent.
func (v *VorbisComments) Set(key, value string) {
	out := v.Items[:0]
	replaced := false
	for _, c := range v.Items {
		if strings.EqualFold(c.Key, key) {
			if !replaced {
				c.Value = value
				out = append(out, c)
				replaced = true
			}
			continue
		}
		out = append(out, c)
	}
	if !replaced {
		out = append(out, VorbisComment{Key: key, Value: value})
	}
	v.Items = out
}

// Add appends a value for key, keeping existing ones.
func (v *VorbisComments) Add(key, value string) {
	v.Items = append(v.Items, VorbisComment{Key: key, Value: value})
}

// Remove drops every value for the key.
func (v *VorbisComments) Remove(key string) {
	out := v.Items[:0]
	for _, c := range v.Items {
		if !strings.EqualFold(c.Key, key) {
			out = append(out, c)
		}
	}
	v.Items = out
}

func validVorbisKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		if k[i] < 0x20 || k[i] > 0x7D || k[i] == '=' {
			return false
		}
	}
	return true
}

// parseVorbisComments reads the wire form of a comment block: vendor
// length + vendor, item count, then length-prefixed "KEY=value" strings,
// all lengths little-endian.
func parseVorbisComments(r io.Reader, opts ParseOptions) (*VorbisComments, error) {
	vendorLen, err := readUint32LittleEndian(r)
	if err != nil {
		return nil, err
	}
	vendor, err := readString(r, uint(vendorLen))
	if err != nil {
		return nil, err
	}

	v := &VorbisComments{Vendor: vendor}

	count, err := readUint32LittleEndian(r)
	if err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		l, err := readUint32LittleEndian(r)
		if err != nil {
			return nil, err
		}
		s, err := readString(r, uint(l))
		if err != nil {
			return nil, err
		}

		k, val, found := strings.Cut(s, "=")
		if !found || !validVorbisKey(k) {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrFakeTag, "malformed vorbis comment %q", s)
			}
			log.Printf("tag: skipping malformed vorbis comment %q", s)
			continue
		}

		if strings.EqualFold(k, "METADATA_BLOCK_PICTURE") {
			p, err := parseBase64Picture(val)
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				log.Printf("tag: skipping bad METADATA_BLOCK_PICTURE: %v", err)
				continue
			}
			if opts.ReadCoverArt {
				v.Pictures = append(v.Pictures, p)
			}
			continue
		}
		v.Items = append(v.Items, VorbisComment{Key: k, Value: val})
	}
	return v, nil
}

// appendVorbisComments emits the wire form of v. Pictures are included
// as METADATA_BLOCK_PICTURE items when includePictures is set (OGG); the
// FLAC writer stores them in dedicated blocks instead.
func appendVorbisComments(dst []byte, v *VorbisComments, includePictures bool) []byte {
	le32 := func(b []byte, n uint32) []byte {
		return binary.LittleEndian.AppendUint32(b, n)
	}

	dst = le32(dst, uint32(len(v.Vendor)))
	dst = append(dst, v.Vendor...)

	count := len(v.Items)
	if includePictures {
		count += len(v.Pictures)
	}
	dst = le32(dst, uint32(count))

	for _, c := range v.Items {
		item := c.Key + "=" + c.Value
		dst = le32(dst, uint32(len(item)))
		dst = append(dst, item...)
	}
	if includePictures {
		for _, p := range v.Pictures {
			item := "METADATA_BLOCK_PICTURE=" + base64Picture(p)
			dst = le32(dst, uint32(len(item)))
			dst = append(dst, item...)
		}
	}
	return dst
}

// metadataVorbis adapts a VorbisComments to the Metadata interface; the
// FLAC and OGG readers embed it.
type metadataVorbis struct {
	c     *VorbisComments
	props Properties
}

func newMetadataVorbis() *metadataVorbis {
	return &metadataVorbis{c: &VorbisComments{}}
}

// Comments exposes the underlying structured comment block.
func (m *metadataVorbis) Comments() *VorbisComments { return m.c }

func (m *metadataVorbis) Format() Format         { return VORBIS }
func (m *metadataVorbis) Properties() Properties { return m.props }

func (m *metadataVorbis) Raw() map[string]interface{} {
	raw := make(map[string]interface{}, len(m.c.Items))
	for _, c := range m.c.Items {
		raw[strings.ToLower(c.Key)] = c.Value
	}
	return raw
}

func (m *metadataVorbis) Title() string  { return m.c.Get("TITLE") }
func (m *metadataVorbis) Album() string  { return m.c.Get("ALBUM") }
func (m *metadataVorbis) Genre() string  { return m.c.Get("GENRE") }
func (m *metadataVorbis) Lyrics() string { return m.c.Get("LYRICS") }

func (m *metadataVorbis) Artist() string {
	// PERFORMER overrides ARTIST where present; in popular music the two
	// are typically the same and PERFORMER is omitted.
	if p := m.c.Get("PERFORMER"); p != "" {
		return p
	}
	return m.c.Get("ARTIST")
}

func (m *metadataVorbis) AlbumArtist() string { return m.c.Get("ALBUMARTIST") }

func (m *metadataVorbis) Composer() string {
	if c := m.c.Get("COMPOSER"); c != "" {
		return c
	}
	if m.c.Get("PERFORMER") == "" {
		return ""
	}
	return m.c.Get("ARTIST")
}

func (m *metadataVorbis) Year() int {
	date := m.c.Get("DATE")
	if len(date) >= 4 {
		y, _ := strconv.Atoi(date[:4])
		return y
	}
	return 0
}

func (m *metadataVorbis) Track() (int, int) {
	x, _ := strconv.Atoi(m.c.Get("TRACKNUMBER"))
	// https://wiki.xiph.org/Field_names
	n, _ := strconv.Atoi(m.c.Get("TRACKTOTAL"))
	if n == 0 {
		n, _ = strconv.Atoi(m.c.Get("TOTALTRACKS"))
	}
	return x, n
}

func (m *metadataVorbis) Disc() (int, int) {
	x, _ := strconv.Atoi(m.c.Get("DISCNUMBER"))
	n, _ := strconv.Atoi(m.c.Get("DISCTOTAL"))
	if n == 0 {
		n, _ = strconv.Atoi(m.c.Get("TOTALDISCS"))
	}
	return x, n
}

func (m *metadataVorbis) Comment() string {
	if c := m.c.Get("COMMENT"); c != "" {
		return c
	}
	return m.c.Get("DESCRIPTION")
}

func (m *metadataVorbis) Picture() *Picture {
	if len(m.c.Pictures) == 0 {
		return nil
	}
	return m.c.Pictures[0]
}

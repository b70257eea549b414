// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// PictureType follows the ID3v2 APIC enumeration; the same codes are
// used by FLAC PICTURE blocks and OGG METADATA_BLOCK_PICTURE.
type PictureType byte

const (
	PictureOther PictureType = iota
	PictureIcon
	PictureOtherIcon
	PictureCoverFront
	PictureCoverBack
	PictureLeaflet
	PictureMedia
	PictureLeadArtist
	PictureArtist
	PictureConductor
	PictureBand
	PictureComposer
	PictureLyricist
	PictureRecordingLocation
	PictureDuringRecording
	PictureDuringPerformance
	PictureScreenCapture
	PictureBrightFish
	PictureIllustration
	PictureBandLogo
	PicturePublisherLogo
)

var pictureTypeNames = map[PictureType]string{
	PictureOther:             "Other",
	PictureIcon:              "32x32 pixels 'file icon' (PNG only)",
	PictureOtherIcon:         "Other file icon",
	PictureCoverFront:        "Cover (front)",
	PictureCoverBack:         "Cover (back)",
	PictureLeaflet:           "Leaflet page",
	PictureMedia:             "Media (e.g. label side of CD)",
	PictureLeadArtist:        "Lead artist/lead performer/soloist",
	PictureArtist:            "Artist/performer",
	PictureConductor:         "Conductor",
	PictureBand:              "Band/Orchestra",
	PictureComposer:          "Composer",
	PictureLyricist:          "Lyricist/text writer",
	PictureRecordingLocation: "Recording Location",
	PictureDuringRecording:   "During recording",
	PictureDuringPerformance: "During performance",
	PictureScreenCapture:     "Movie/video screen capture",
	PictureBrightFish:        "A bright coloured fish",
	PictureIllustration:      "Illustration",
	PictureBandLogo:          "Band/artist logotype",
	PicturePublisherLogo:     "Publisher/Studio logotype",
}

func (t PictureType) String() string {
	if s, ok := pictureTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Reserved (%d)", byte(t))
}

// Picture is a type which represents an attached picture extracted from metadata.
type Picture struct {
	Ext         string      // Extension of the picture file.
	MIMEType    string      // MIMEType of the picture.
	Type        PictureType // Type of the picture (see PictureType values).
	Description string      // Description.
	Data        []byte      // Raw picture data.

	// FLAC PICTURE block fields; zero elsewhere.
	Width      uint32
	Height     uint32
	ColorDepth uint32
	NumColors  uint32
}

// String returns a string representation of the underlying Picture instance.
func (p Picture) String() string {
	return fmt.Sprintf("Picture{Ext: %v, MIMEType: %v, Type: %v, Description: %v, Data.Size: %v}",
		p.Ext, p.MIMEType, p.Type, p.Description, len(p.Data))
}

// Image signatures. Only the few bytes needed to assign a MIME type.
var (
	pngHeader  = []byte{137, 80, 78, 71, 13, 10, 26, 10}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF}
	gifHeader  = []byte("GIF8")
	bmpHeader  = []byte("BM")
	tiffLE     = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffBE     = []byte{0x4D, 0x4D, 0x00, 0x2A}
)

// sniffMIME assigns a MIME type from the picture data's signature.
func sniffMIME(b []byte) (mime, ext string) {
	switch {
	case bytes.HasPrefix(b, pngHeader):
		return "image/png", "png"
	case bytes.HasPrefix(b, jpegHeader):
		return "image/jpeg", "jpg"
	case bytes.HasPrefix(b, gifHeader):
		return "image/gif", "gif"
	case bytes.HasPrefix(b, bmpHeader):
		return "image/bmp", "bmp"
	case bytes.HasPrefix(b, tiffLE), bytes.HasPrefix(b, tiffBE):
		return "image/tiff", "tiff"
	}
	return "", ""
}

func extForMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	}
	return ""
}

// parseFLACPicture decodes the FLAC PICTURE block layout, which is also
// the payload of the Vorbis METADATA_BLOCK_PICTURE comment.
// See https://xiph.org/flac/format.html#metadata_block_picture.
func parseFLACPicture(b []byte) (*Picture, error) {
	r := bytes.NewReader(b)

	picType, err := readUint32BigEndian(r)
	if err != nil {
		return nil, err
	}

	mimeLen, err := readUint32BigEndian(r)
	if err != nil {
		return nil, err
	}
	mime, err := readString(r, uint(mimeLen))
	if err != nil {
		return nil, err
	}

	descLen, err := readUint32BigEndian(r)
	if err != nil {
		return nil, err
	}
	desc, err := readString(r, uint(descLen))
	if err != nil {
		return nil, err
	}

	var dims [4]uint32
	for i := range dims {
		if dims[i], err = readUint32BigEndian(r); err != nil {
			return nil, err
		}
	}

	dataLen, err := readUint32BigEndian(r)
	if err != nil {
		return nil, err
	}
	data, err := readBytes(r, uint(dataLen))
	if err != nil {
		return nil, err
	}

	if mime == "" {
		mime, _ = sniffMIME(data)
	}

	return &Picture{
		Ext:         extForMIME(mime),
		MIMEType:    mime,
		Type:        PictureType(picType),
		Description: desc,
		Data:        data,
		Width:       dims[0],
		Height:      dims[1],
		ColorDepth:  dims[2],
		NumColors:   dims[3],
	}, nil
}

// flacPictureBytes emits the FLAC PICTURE block layout for p.
func flacPictureBytes(p *Picture) []byte {
	mime := p.MIMEType
	if mime == "" {
		mime, _ = sniffMIME(p.Data)
	}

	buf := &bytes.Buffer{}
	be := func(v uint32) { binary.Write(buf, binary.BigEndian, v) }
	be(uint32(p.Type))
	be(uint32(len(mime)))
	buf.WriteString(mime)
	be(uint32(len(p.Description)))
	buf.WriteString(p.Description)
	be(p.Width)
	be(p.Height)
	be(p.ColorDepth)
	be(p.NumColors)
	be(uint32(len(p.Data)))
	buf.Write(p.Data)
	return buf.Bytes()
}

// parseBase64Picture decodes the METADATA_BLOCK_PICTURE comment value
// used to carry pictures inside OGG Vorbis comments.
func parseBase64Picture(s string) (*Picture, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, wrapErr(ErrNotAPicture, "base64: %v", err)
	}
	return parseFLACPicture(raw)
}

// base64Picture encodes p for storage in a Vorbis comment.
func base64Picture(p *Picture) string {
	return base64.StdEncoding.EncodeToString(flacPictureBytes(p))
}

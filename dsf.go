// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"io"
	"time"
)

// DSF layout: a "DSD " chunk with a pointer to trailing metadata, an
// "fmt " chunk with the stream attributes, then the sample data. The
// metadata pointer addresses an ordinary ID3v2 tag.
// See https://dsd-guide.com/sites/default/files/white-papers/DSFFileFormatSpec_E.pdf.

// DSFProperties is the Properties superset for DSD stream files.
type DSFProperties struct {
	Properties
	FormatVersion uint32
	ChannelType   uint32
	SampleCount   uint64
	BlockSize     uint32
}

// metadataDSF is the Metadata implementation for DSF files.
type metadataDSF struct {
	metadataID3v2
	dsfProps *DSFProperties
}

func (m metadataDSF) FileType() FileType { return DSF }

func (m metadataDSF) Properties() Properties {
	if m.dsfProps == nil {
		return Properties{}
	}
	return m.dsfProps.Properties
}

// ReadDSFTags reads the fmt chunk properties and the ID3v2 tag pointed
// to by the DSD chunk.
func ReadDSFTags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	dsd, err := readBytes(r, 28)
	if err != nil {
		return nil, err
	}
	if string(dsd[0:4]) != "DSD " {
		return nil, wrapErr(ErrBadMagic, "expected 'DSD '")
	}
	// chunk size u64, total file size u64, metadata pointer u64; all
	// little-endian.
	metadataPointer := uint64(leUint32(dsd[20:24])) | uint64(leUint32(dsd[24:28]))<<32

	m := metadataDSF{metadataID3v2: metadataID3v2{tag: &ID3v2Tag{Version: ID3v2_4}}}

	if opts.ReadProperties {
		p, err := readDSFFmt(r)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.dsfProps = p
		}
	}

	if opts.ReadTags && metadataPointer > 0 {
		if _, err := r.Seek(int64(metadataPointer), io.SeekStart); err != nil {
			return nil, err
		}
		h, err := readID3v2Header(r)
		if err != nil {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrFakeTag, "DSF metadata pointer: %v", err)
			}
			return m, nil
		}
		t, err := parseID3v2Tag(r, h, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
			return m, nil
		}
		m.tag = t
	}
	return m, nil
}

// readDSFFmt parses the fmt chunk immediately following the DSD chunk.
func readDSFFmt(r io.ReadSeeker) (*DSFProperties, error) {
	b, err := readBytes(r, 52)
	if err != nil {
		return nil, err
	}
	if string(b[0:4]) != "fmt " {
		return nil, wrapErr(ErrBadMagic, "expected 'fmt ' chunk")
	}

	p := &DSFProperties{
		FormatVersion: leUint32(b[12:16]),
		ChannelType:   leUint32(b[20:24]),
		BlockSize:     leUint32(b[44:48]),
	}
	p.Channels = uint8(leUint32(b[24:28]))
	p.SampleRate = leUint32(b[28:32])
	p.BitDepth = uint8(leUint32(b[32:36]))
	p.SampleCount = uint64(leUint32(b[36:40])) | uint64(leUint32(b[40:44]))<<32

	if p.SampleRate > 0 {
		p.Duration = time.Duration(p.SampleCount * uint64(time.Second) / uint64(p.SampleRate))
		bits := uint64(p.SampleRate) * uint64(p.BitDepth) * uint64(p.Channels)
		p.AudioBitrate = uint32(bits / 1000)
		p.OverallBitrate = p.AudioBitrate
	}
	return p, nil
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"io"
	"time"
)

// BlockType is a type which represents an enumeration of valid FLAC blocks.
type BlockType byte

const (
	StreamInfoBlock    BlockType = 0
	PaddingBlock       BlockType = 1
	ApplicationBlock   BlockType = 2
	SeektableBlock     BlockType = 3
	VorbisCommentBlock BlockType = 4
	CueSheetBlock      BlockType = 5
	PictureBlock       BlockType = 6
)

// maxFLACBlockSize is the largest payload a block header can declare.
const maxFLACBlockSize = 1<<24 - 1

// flacBlock is one metadata block: the header byte split into last/type,
// and the payload.
type flacBlock struct {
	typ     BlockType
	last    bool
	content []byte
}

// readFLACBlock reads a single block header and payload.
func readFLACBlock(r io.Reader) (*flacBlock, error) {
	hdr, err := readBytes(r, 1)
	if err != nil {
		return nil, err
	}

	b := &flacBlock{
		typ:  BlockType(hdr[0] & 0x7F),
		last: getBit(hdr[0], 7),
	}

	size, err := readInt(r, 3)
	if err != nil {
		return nil, err
	}
	b.content, err = readBytes(r, uint(size))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// readFLACBlocks slurps the whole chain, stopping after the block marked
// last.
func readFLACBlocks(r io.Reader) ([]flacBlock, error) {
	var blocks []flacBlock
	for {
		b, err := readFLACBlock(r)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
		if b.last {
			return blocks, nil
		}
	}
}

// FLACProperties is the Properties superset for FLAC streams, decoded
// from STREAMINFO.
type FLACProperties struct {
	Properties
	TotalSamples  uint64
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	MD5Signature  [16]byte
}

// parseStreamInfo decodes a STREAMINFO payload (34 bytes).
func parseStreamInfo(b []byte) (*FLACProperties, error) {
	if len(b) < 34 {
		return nil, wrapErr(ErrSizeMismatch, "STREAMINFO: %d bytes", len(b))
	}

	p := &FLACProperties{
		MinBlockSize: uint16(b[0])<<8 | uint16(b[1]),
		MaxBlockSize: uint16(b[2])<<8 | uint16(b[3]),
		MinFrameSize: uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6]),
		MaxFrameSize: uint32(b[7])<<16 | uint32(b[8])<<8 | uint32(b[9]),
	}

	// 20 bits sample rate, 3 bits channels-1, 5 bits bits-per-sample-1,
	// 36 bits total samples.
	p.SampleRate = uint32(b[10])<<12 | uint32(b[11])<<4 | uint32(b[12])>>4
	p.Channels = ((b[12] >> 1) & 0x07) + 1
	p.BitDepth = ((b[12]&0x01)<<4 | b[13]>>4) + 1
	p.TotalSamples = uint64(b[13]&0x0F)<<32 |
		uint64(b[14])<<24 | uint64(b[15])<<16 | uint64(b[16])<<8 | uint64(b[17])
	copy(p.MD5Signature[:], b[18:34])

	if p.SampleRate > 0 {
		p.Duration = time.Duration(p.TotalSamples * uint64(time.Second) / uint64(p.SampleRate))
	}
	return p, nil
}

// metadataFLAC is the Metadata implementation for FLAC files.
type metadataFLAC struct {
	*metadataVorbis
	flacProps *FLACProperties
}

func (m *metadataFLAC) FileType() FileType { return FLAC }

func (m *metadataFLAC) Properties() Properties {
	if m.flacProps == nil {
		return Properties{}
	}
	return m.flacProps.Properties
}

// StreamInfo exposes the decoded STREAMINFO block.
func (m *metadataFLAC) StreamInfo() *FLACProperties { return m.flacProps }

// ReadFLACTags reads FLAC metadata from the io.ReadSeeker, returning the
// resulting metadata in a Metadata implementation, or non-nil error if
// there was a problem.
func ReadFLACTags(r io.ReadSeeker) (Metadata, error) {
	return ReadFLACTagsOptions(r, ParseOptions{}.Defaults())
}

// ReadFLACTagsOptions is ReadFLACTags with explicit ParseOptions.
func ReadFLACTagsOptions(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if err := skipFLACID3(r); err != nil {
		return nil, err
	}

	flac, err := readString(r, 4)
	if err != nil {
		return nil, err
	}
	if flac != "fLaC" {
		return nil, wrapErr(ErrBadMagic, "expected 'fLaC'")
	}

	blocks, err := readFLACBlocks(r)
	if err != nil {
		return nil, err
	}

	m := &metadataFLAC{metadataVorbis: newMetadataVorbis()}
	for i := range blocks {
		b := &blocks[i]
		switch b.typ {
		case StreamInfoBlock:
			if opts.ReadProperties {
				p, err := parseStreamInfo(b.content)
				if err != nil {
					if opts.Mode == Strict {
						return nil, err
					}
					continue
				}
				// Stream end for the bitrate: approximate with the file
				// size minus the current (post-metadata) position.
				if pos, err := r.Seek(0, io.SeekCurrent); err == nil {
					if end, err := r.Seek(0, io.SeekEnd); err == nil && p.Duration > 0 {
						p.AudioBitrate = overallBitrate(uint64(end-pos), p.Duration)
						p.OverallBitrate = overallBitrate(uint64(end), p.Duration)
					}
				}
				m.flacProps = p
			}

		case VorbisCommentBlock:
			if !opts.ReadTags {
				continue
			}
			c, err := parseVorbisComments(bytes.NewReader(b.content), opts)
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				continue
			}
			pics := m.c.Pictures
			m.c = c
			m.c.Pictures = append(pics, c.Pictures...)

		case PictureBlock:
			if !opts.ReadCoverArt {
				continue
			}
			p, err := parseFLACPicture(b.content)
			if err != nil {
				if opts.Mode == Strict {
					return nil, err
				}
				continue
			}
			m.c.Pictures = append(m.c.Pictures, p)
		}
	}
	return m, nil
}

// skipFLACID3 steps over a leading ID3v2 tag; some taggers prepend one
// even though the format does not allow it.
func skipFLACID3(r io.ReadSeeker) error {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	h, err := readID3v2Header(r)
	if err != nil {
		_, err = r.Seek(start, io.SeekStart)
		return err
	}
	skip := int64(h.Size)
	if h.Flags.Footer {
		skip += 10
	}
	_, err = r.Seek(skip, io.SeekCurrent)
	return err
}

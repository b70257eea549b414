// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"io"
	"time"
)

// ADTS framing: a 7-byte fixed header (9 with CRC) in front of every
// raw AAC block.
// See https://wiki.multimedia.cx/index.php/ADTS.

var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader is a decoded ADTS frame header.
type ADTSHeader struct {
	MPEG2            bool
	CRC              bool
	Profile          byte // audio object type - 1
	SampleRateIndex  byte
	ChannelConfig    byte
	FrameLength      int // includes the header itself
	BufferFullness   int
	RawDataBlocks    int
	CopyrightIDBit   bool
	CopyrightIDStart bool
}

// HeaderSize returns 9 when a CRC follows the fixed header, 7 otherwise.
func (h *ADTSHeader) HeaderSize() int {
	if h.CRC {
		return 9
	}
	return 7
}

// SampleRate returns the sample rate in Hz, or 0 for a reserved index.
func (h *ADTSHeader) SampleRate() int {
	if int(h.SampleRateIndex) >= len(adtsSampleRates) {
		return 0
	}
	return adtsSampleRates[h.SampleRateIndex]
}

func parseADTSHeader(b []byte) (*ADTSHeader, error) {
	if len(b) < 7 || b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return nil, wrapErr(ErrBadFrame, "no ADTS sync")
	}
	if b[1]&0x06 != 0 {
		return nil, wrapErr(ErrBadFrame, "ADTS layer must be 0")
	}

	h := &ADTSHeader{
		MPEG2:            getBit(b[1], 3),
		CRC:              !getBit(b[1], 0),
		Profile:          b[2] >> 6,
		SampleRateIndex:  b[2] & 0x3C >> 2,
		ChannelConfig:    b[2]&0x01<<2 | b[3]>>6,
		CopyrightIDBit:   getBit(b[3], 3),
		CopyrightIDStart: getBit(b[3], 2),
		FrameLength:      int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5])>>5,
		BufferFullness:   int(b[5]&0x1F)<<6 | int(b[6])>>2,
		RawDataBlocks:    int(b[6]&0x03) + 1,
	}
	if h.SampleRate() == 0 {
		return nil, wrapErr(ErrBadFrame, "reserved ADTS sample rate index")
	}
	if h.FrameLength < h.HeaderSize() {
		return nil, wrapErr(ErrBadFrame, "ADTS frame length %d below header size", h.FrameLength)
	}
	return h, nil
}

// AACProperties is the Properties superset for ADTS AAC streams.
type AACProperties struct {
	Properties
	Profile       byte
	MPEG2         bool
	CopyrightBit  bool
	FrameCount    int
	HeaderType    string // "ADTS"
}

// adtsSamplesPerFrame is fixed for AAC (1024 per raw data block).
const adtsSamplesPerFrame = 1024

// readADTSProperties walks every ADTS frame from the current position,
// averaging the per-frame bitrate.
func readADTSProperties(r io.ReadSeeker, opts ParseOptions) (*AACProperties, error) {
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	hdr, off, err := searchFrameSync(r, opts.MaxJunkBytes)
	if err != nil {
		return nil, err
	}
	pos := base + off

	var first *ADTSHeader
	var frames, totalBytes, blocks int
	b := make([]byte, 7)
	copy(b, hdr[:4])
	if _, err := io.ReadFull(r, b[4:]); err != nil {
		return nil, err
	}

	for {
		h, err := parseADTSHeader(b)
		if err != nil {
			if opts.Mode == Strict && first == nil {
				return nil, err
			}
			break
		}
		if first == nil {
			first = h
		}
		frames++
		blocks += h.RawDataBlocks
		totalBytes += h.FrameLength

		pos += int64(h.FrameLength)
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			break
		}
		if _, err := io.ReadFull(r, b); err != nil {
			break
		}
	}

	if first == nil {
		return nil, wrapErr(ErrBadFrame, "no ADTS frames found")
	}

	p := &AACProperties{
		Profile:    first.Profile,
		MPEG2:      first.MPEG2,
		FrameCount: frames,
		HeaderType: "ADTS",
	}
	p.SampleRate = uint32(first.SampleRate())
	p.Channels = first.ChannelConfig
	if p.Channels == 7 {
		p.Channels = 8
	}

	samples := uint64(blocks) * adtsSamplesPerFrame
	if p.SampleRate > 0 {
		p.Duration = time.Duration(samples * uint64(time.Second) / uint64(p.SampleRate))
	}
	if ms := uint64(p.Duration / time.Millisecond); ms > 0 {
		p.AudioBitrate = uint32(uint64(totalBytes) * 8 / ms)
	}

	fileEnd, err := r.Seek(0, io.SeekEnd)
	if err == nil {
		p.OverallBitrate = overallBitrate(uint64(fileEnd), p.Duration)
	}
	return p, nil
}

// metadataAAC is the Metadata implementation for ADTS AAC files, which
// carry ID3v2 (and sometimes ID3v1) tags around the raw stream.
type metadataAAC struct {
	metadataID3v2
	aacProps *AACProperties
}

func (m metadataAAC) FileType() FileType { return AAC }

func (m metadataAAC) Properties() Properties {
	if m.aacProps == nil {
		return Properties{}
	}
	return m.aacProps.Properties
}

// ReadAACTags reads the ID3v2 tag and ADTS stream properties from an
// AAC file.
func ReadAACTags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	m := metadataAAC{metadataID3v2: metadataID3v2{tag: &ID3v2Tag{Version: ID3v2_4}}}

	var streamStart int64
	if h, err := readID3v2Header(r); err == nil {
		t, err := parseID3v2Tag(r, h, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.tag = t
		}
		streamStart = int64(h.Size) + 10
		if h.Flags.Footer {
			streamStart += 10
		}
	}

	if opts.ReadProperties {
		if _, err := r.Seek(streamStart, io.SeekStart); err != nil {
			return nil, err
		}
		p, err := readADTSProperties(r, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.aacProps = p
		}
	}
	return m, nil
}

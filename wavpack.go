// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"io"
	"time"
)

// WavPack block header: 32 bytes opening every block.
// See https://www.wavpack.com/WavPack5FileFormat.pdf.

var wavpackSampleRates = [...]uint32{
	6000, 8000, 9600, 11025, 12000, 16000, 22050, 24000,
	32000, 44100, 48000, 64000, 88200, 96000, 192000, 0, // 15 = custom
}

// WavPackProperties is the Properties superset for WavPack streams.
type WavPackProperties struct {
	Properties
	Version      uint16
	TotalSamples uint64
	Lossless     bool
}

// readWavPackProperties decodes the first block header at the current
// position.
func readWavPackProperties(r io.ReadSeeker, fileEnd int64, opts ParseOptions) (*WavPackProperties, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	b, err := readBytes(r, 32)
	if err != nil {
		return nil, err
	}
	if string(b[0:4]) != "wvpk" {
		return nil, wrapErr(ErrBadMagic, "expected 'wvpk'")
	}

	p := &WavPackProperties{
		Version: uint16(b[8]) | uint16(b[9])<<8,
	}

	blockIndexU8 := uint64(b[10])
	totalSamplesU8 := uint64(b[11])
	totalSamples := uint64(leUint32(b[12:16]))
	blockIndex := uint64(leUint32(b[16:20])) | blockIndexU8<<32

	// A value of all ones in the lower 32 bits means unknown.
	if totalSamples != 0xFFFFFFFF && blockIndex == 0 {
		p.TotalSamples = totalSamples | totalSamplesU8<<32
	}

	flags := leUint32(b[24:28])
	p.BitDepth = uint8(flags&0x03+1) * 8
	if flags&0x04 != 0 {
		p.Channels = 1
	} else {
		p.Channels = 2
	}
	p.Lossless = flags&0x08 == 0
	p.SampleRate = wavpackSampleRates[flags>>23&0x0F]

	if p.SampleRate == 0 && opts.Mode == Strict {
		return nil, wrapErr(ErrFakeTag, "custom WavPack sample rate")
	}

	if p.SampleRate > 0 && p.TotalSamples > 0 {
		p.Duration = time.Duration(p.TotalSamples * uint64(time.Second) / uint64(p.SampleRate))
	}

	streamLen := uint64(fileEnd - start)
	if ms := uint64(p.Duration / time.Millisecond); ms > 0 {
		p.AudioBitrate = uint32(streamLen * 8 / ms)
		p.OverallBitrate = p.AudioBitrate
	}
	return p, nil
}

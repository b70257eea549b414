// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"fmt"
	"time"
)

// Properties holds the stream attributes shared by every format.
// Format-specific readers embed it in richer structs (MPEGProperties,
// MP4Properties, ...) adding codec, frame counts and the like.
type Properties struct {
	Duration       time.Duration
	OverallBitrate uint32 // kbps, averaged over the whole file
	AudioBitrate   uint32 // kbps, audio stream only
	SampleRate     uint32 // Hz
	BitDepth       uint8
	Channels       uint8
	ChannelMask    uint32
}

func (p Properties) String() string {
	return fmt.Sprintf("Properties{Duration: %v, Bitrate: %d/%d kbps, SampleRate: %d Hz, Channels: %d}",
		p.Duration, p.AudioBitrate, p.OverallBitrate, p.SampleRate, p.Channels)
}

// AudioProperties is implemented by Metadata values which carry decoded
// stream attributes in addition to tags.
type AudioProperties interface {
	Properties() Properties
}

// durationFrom derives a duration from a stream length in bytes and an
// average bitrate in kbps.
func durationFrom(streamBytes uint64, kbps uint32) time.Duration {
	if kbps == 0 {
		return 0
	}
	ms := streamBytes * 8 / uint64(kbps)
	return time.Duration(ms) * time.Millisecond
}

// overallBitrate derives a whole-file bitrate in kbps from the file size
// and the play length.
func overallBitrate(fileBytes uint64, length time.Duration) uint32 {
	ms := uint64(length / time.Millisecond)
	if ms == 0 {
		return 0
	}
	return uint32(fileBytes * 8 / ms)
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"errors"
	"io"
)

// Synchsafe integers keep the MSB of every byte clear so that tag sizes
// can never contain the 0xFF byte of an MPEG frame sync.
// See https://id3.org/id3v2.4.0-structure §6.2.

// MaxSynchsafeUint32 is the largest value representable in a 4-byte
// synchsafe integer (28 usable bits).
const MaxSynchsafeUint32 = 0x0FFFFFFF

// synchUint32 spreads v over 7-bit chunks. Errors if v exceeds 28 bits.
func synchUint32(v uint32) (uint32, error) {
	if v > MaxSynchsafeUint32 {
		return 0, wrapErr(ErrTooMuchData, "%#x exceeds synchsafe range", v)
	}
	return v&0x7F |
		(v&(0x7F<<7))<<1 |
		(v&(0x7F<<14))<<2 |
		(v&(0x7F<<21))<<3, nil
}

// unsynchUint32 packs the 7-bit chunks of a synchsafe integer back together.
func unsynchUint32(v uint32) uint32 {
	return v&0x7F |
		(v&0x7F00)>>1 |
		(v&0x7F0000)>>2 |
		(v&0x7F000000)>>3
}

// wideningSynchUint32 spreads any 32-bit value over a 64-bit synchsafe
// carrier, so it can never fail.
func wideningSynchUint32(v uint32) uint64 {
	n := uint64(v)
	return n&0x7F |
		(n&(0x7F<<7))<<1 |
		(n&(0x7F<<14))<<2 |
		(n&(0x7F<<21))<<3 |
		(n&(0x0F<<28))<<4
}

// putSynchsafeUint32 writes v as 4 synchsafe big-endian bytes into b.
func putSynchsafeUint32(b []byte, v uint32) error {
	s, err := synchUint32(v)
	if err != nil {
		return err
	}
	b[0] = byte(s >> 24)
	b[1] = byte(s >> 16)
	b[2] = byte(s >> 8)
	b[3] = byte(s)
	return nil
}

// errInvalidUnsync reports a 0xFF byte followed by a byte >= 0xE0 after
// the stuffed zero has been stripped, which no valid unsynchronised
// stream can contain.
var errInvalidUnsync = errors.New("invalid unsynchronised data")

// deunsynchronise strips ID3v2 byte stuffing: every 0xFF 0x00 pair
// becomes 0xFF. See https://id3.org/id3v2.4.0-structure §6.1.
func deunsynchronise(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	discard := false
	for _, x := range b {
		if discard {
			discard = false
			if x >= 0xE0 {
				return nil, errInvalidUnsync
			}
			if x == 0 {
				continue
			}
		}
		out = append(out, x)
		discard = x == 0xFF
	}
	return out, nil
}

// unsynchronise applies ID3v2 byte stuffing: a zero byte is inserted
// after every 0xFF.
func unsynchronise(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/255+1)
	for _, x := range b {
		out = append(out, x)
		if x == 0xFF {
			out = append(out, 0)
		}
	}
	return out
}

// unsynchroniser is a filter io.Reader which strips the stuffed zero
// bytes on the fly, for tag-level unsynchronisation.
type unsynchroniser struct {
	io.Reader
	ff bool
}

func (r *unsynchroniser) Read(p []byte) (int, error) {
	b := make([]byte, 1)
	i := 0
	for i < len(p) {
		if n, err := r.Reader.Read(b); err != nil || n == 0 {
			return i, err
		}
		if r.ff && b[0] == 0x00 {
			r.ff = false
			continue
		}
		p[i] = b[0]
		i++
		r.ff = b[0] == 0xFF
	}
	return i, nil
}

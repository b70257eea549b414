// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import "sync/atomic"

// ParsingMode controls how much spec deviation a parser tolerates.
type ParsingMode int

const (
	// Strict bails on any spec violation.
	Strict ParsingMode = iota

	// BestAttempt logs and elides the offending substructure, continuing
	// at the next frame/chunk/block boundary.
	BestAttempt

	// Relaxed additionally masks some numeric defaults (e.g. a zero
	// sample rate becomes permissible).
	Relaxed
)

// ParseOptions configures the readers.
type ParseOptions struct {
	Mode                ParsingMode
	ReadTags            bool
	ReadProperties      bool
	ReadCoverArt        bool
	MaxJunkBytes        int
	ImplicitConversions bool
}

// DefaultMaxJunkBytes is the cap on the pre-frame-sync scan used when
// the caller does not provide one.
const DefaultMaxJunkBytes = 1024

// Defaults returns the options used when the caller passes none.
func (ParseOptions) Defaults() ParseOptions {
	return ParseOptions{
		Mode:                BestAttempt,
		ReadTags:            true,
		ReadProperties:      true,
		ReadCoverArt:        true,
		MaxJunkBytes:        DefaultMaxJunkBytes,
		ImplicitConversions: true,
	}
}

// WriteOptions configures the writers.
type WriteOptions struct {
	// PreferredPadding is the padding budget in bytes for formats which
	// support in-place growth (ID3v2, MP4 free atoms, FLAC padding).
	// nil selects DefaultPreferredPadding; a pointer to 0 disables padding.
	PreferredPadding *uint32

	// UseID3v23 emits the ID3v2.3 wire format instead of v2.4.
	UseID3v23 bool

	// LossyTextEncoding substitutes '?' for characters that cannot be
	// represented in Latin-1 fields instead of failing the write.
	LossyTextEncoding bool

	// UppercaseID3v2Chunk selects "ID3 " over "id3 " for the WAV chunk
	// FOURCC.
	UppercaseID3v2Chunk bool
}

// DefaultPreferredPadding is used when WriteOptions.PreferredPadding is nil.
const DefaultPreferredPadding uint32 = 1024

func (o WriteOptions) padding() uint32 {
	if o.PreferredPadding == nil {
		return DefaultPreferredPadding
	}
	return *o.PreferredPadding
}

// allocLimit caps any single allocation driven by a size field read from
// a file, so an adversarial input cannot force unbounded memory use.
var allocLimit atomic.Int64

// DefaultAllocationLimit bounds a single declared-size allocation.
const DefaultAllocationLimit = 16 * 1024 * 1024

func init() { allocLimit.Store(DefaultAllocationLimit) }

// SetAllocationLimit replaces the process-wide allocation limit and
// returns the previous value. It may be called concurrently with readers.
func SetAllocationLimit(n int64) int64 {
	return allocLimit.Swap(n)
}

// checkedAlloc returns a zeroed buffer of n bytes, or ErrTooMuchData if n
// exceeds the allocation limit.
func checkedAlloc(n int64) ([]byte, error) {
	if n < 0 || n > allocLimit.Load() {
		return nil, wrapErr(ErrTooMuchData, "%d byte allocation refused", n)
	}
	return make([]byte, n), nil
}

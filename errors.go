// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the parsers and writers in this package.
// They form a closed set: callers can match them with errors.Is.
var (
	// ErrUnknownFormat is returned when no known magic number matched
	// within the probe limits.
	ErrUnknownFormat = errors.New("unknown format")

	// ErrUnsupportedFormat is returned when the format was recognised but
	// cannot be handled (e.g. ID3v2.2 compressed tags).
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrBadMagic is returned when an expected header is not present at
	// the declared position.
	ErrBadMagic = errors.New("bad magic")

	// ErrFakeTag is returned when a tag header is present but its content
	// is not usable as declared.
	ErrFakeTag = errors.New("fake tag")

	// ErrBadAtom indicates a structurally invalid MP4 atom.
	ErrBadAtom = errors.New("bad atom")

	// ErrBadFrame indicates a structurally invalid ID3v2 frame.
	ErrBadFrame = errors.New("bad frame")

	// ErrBadVintSize indicates a variable-length integer with an invalid
	// or over-long octet count.
	ErrBadVintSize = errors.New("bad vint size")

	// ErrBadPacketKey indicates an invalid Musepack SV8 packet key.
	ErrBadPacketKey = errors.New("bad packet key")

	// ErrBadExtendedHeaderSize indicates an ID3v2 extended header whose
	// declared size is impossible.
	ErrBadExtendedHeaderSize = errors.New("bad extended header size")

	// ErrBadTimestampFormat indicates an ID3v2 timestamp which does not
	// follow the ISO 8601 subset YYYY[-MM[-DD[Thh[:mm[:ss]]]]].
	ErrBadTimestampFormat = errors.New("bad timestamp format")

	// ErrBadPictureFormat indicates an attached picture with an
	// unusable format or MIME type declaration.
	ErrBadPictureFormat = errors.New("bad picture format")

	// ErrSizeMismatch indicates declared size exceeding available data.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrTooMuchData is returned when a declared size exceeds the
	// process-wide allocation limit.
	ErrTooMuchData = errors.New("too much data")

	// ErrTextDecode indicates bytes which are not representable in the
	// selected text encoding.
	ErrTextDecode = errors.New("text decode")

	// ErrNotAPicture is returned when picture data carries none of the
	// recognised image signatures.
	ErrNotAPicture = errors.New("not a picture")

	// ErrMissingUfidOwner is returned in strict mode for UFID frames
	// with an empty owner field.
	ErrMissingUfidOwner = errors.New("UFID frame missing owner")

	// ErrMissingDataLengthIndicator is returned for encrypted ID3v2
	// frames which lack the mandatory data length indicator.
	ErrMissingDataLengthIndicator = errors.New("missing data length indicator")
)

// wrapErr attaches context to a sentinel, preserving errors.Is matching.
func wrapErr(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
}

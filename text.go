// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies a text encoding as carried in an ID3v2 encoding byte.
type Encoding byte

const (
	EncodingLatin1  Encoding = 0 // ISO-8859-1
	EncodingUTF16   Encoding = 1 // UTF-16 with byte order mark
	EncodingUTF16BE Encoding = 2 // UTF-16 big-endian, no BOM
	EncodingUTF8    Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case EncodingLatin1:
		return "ISO-8859-1"
	case EncodingUTF16:
		return "UTF-16"
	case EncodingUTF16BE:
		return "UTF-16BE"
	case EncodingUTF8:
		return "UTF-8"
	}
	return fmt.Sprintf("invalid (%d)", byte(e))
}

func (e Encoding) valid() bool { return e <= EncodingUTF8 }

// verifyEncoding maps an ID3v2.3 encoding byte onto the v3 subset: v3
// only knows Latin-1 and UTF-16 w/ BOM, so the v4-only encodings are
// downgraded to UTF-16.
func (e Encoding) verifyEncoding(version Format) Encoding {
	if version == ID3v2_4 {
		return e
	}
	switch e {
	case EncodingUTF16BE, EncodingUTF8:
		return EncodingUTF16
	}
	return e
}

// delim returns the null terminator for the encoding (single byte for
// 8-bit encodings, double for 16-bit).
func (e Encoding) delim() []byte {
	if e == EncodingUTF16 || e == EncodingUTF16BE {
		return []byte{0, 0}
	}
	return []byte{0}
}

func decodeText(enc Encoding, b []byte) (string, error) {
	// Trailing terminators on a non-terminated read are trimmed.
	b = trimTerminator(enc, b)
	if len(b) == 0 {
		return "", nil
	}

	switch enc {
	case EncodingLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", wrapErr(ErrTextDecode, "latin-1: %v", err)
		}
		return string(out), nil

	case EncodingUTF16:
		if len(b) < 2 {
			return "", nil
		}
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", wrapErr(ErrTextDecode, "utf-16: %v", err)
		}
		return string(out), nil

	case EncodingUTF16BE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", wrapErr(ErrTextDecode, "utf-16be: %v", err)
		}
		return string(out), nil

	case EncodingUTF8:
		return string(b), nil
	}
	return "", wrapErr(ErrTextDecode, "invalid encoding byte %#x", byte(enc))
}

func trimTerminator(enc Encoding, b []byte) []byte {
	if enc == EncodingUTF16 || enc == EncodingUTF16BE {
		for len(b) >= 2 && b[len(b)-1] == 0 && b[len(b)-2] == 0 {
			b = b[:len(b)-2]
		}
		return b
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// encodeText produces the on-disk bytes for s in the given encoding.
// UTF-16 output carries a little-endian BOM. When lossy is set,
// unrepresentable Latin-1 characters become '?' instead of failing.
func encodeText(enc Encoding, s string, terminated, lossy bool) ([]byte, error) {
	var out []byte
	switch enc {
	case EncodingLatin1:
		b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
		if err != nil {
			if !lossy {
				return nil, wrapErr(ErrTextDecode, "latin-1 cannot represent %q", s)
			}
			b = latin1Replace(s)
		}
		out = b

	case EncodingUTF16:
		b, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, wrapErr(ErrTextDecode, "utf-16: %v", err)
		}
		out = b

	case EncodingUTF16BE:
		b, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, wrapErr(ErrTextDecode, "utf-16be: %v", err)
		}
		out = b

	case EncodingUTF8:
		out = []byte(s)

	default:
		return nil, wrapErr(ErrTextDecode, "invalid encoding byte %#x", byte(enc))
	}

	if terminated {
		out = append(out, enc.delim()...)
	}
	return out, nil
}

// latin1Replace maps each rune outside Latin-1 to '?'.
func latin1Replace(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

// splitTerminated cuts b at the first terminator for the encoding,
// returning the head and the remainder. 16-bit terminators are searched
// on code-unit boundaries.
func splitTerminated(enc Encoding, b []byte) (head, rest []byte) {
	if enc == EncodingUTF16 || enc == EncodingUTF16BE {
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				return b[:i], b[i+2:]
			}
		}
		return b, nil
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i], b[i+1:]
	}
	return b, nil
}

// decodeTerminated decodes the head of b up to the encoding's terminator
// and returns the decoded string plus the bytes following the terminator.
func decodeTerminated(enc Encoding, b []byte) (string, []byte, error) {
	head, rest := splitTerminated(enc, b)
	s, err := decodeText(enc, head)
	return s, rest, err
}

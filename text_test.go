// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"testing"
)

func TestDecodeTextLatin1(t *testing.T) {
	got, err := decodeText(EncodingLatin1, []byte{'c', 'a', 'f', 0xE9})
	if err != nil {
		t.Fatalf("decodeText returned error: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q, expected %q", got, "café")
	}
}

func TestDecodeTextUTF16BOM(t *testing.T) {
	tests := []struct {
		input  []byte
		output string
	}{
		{[]byte{0xFF, 0xFE, 'a', 0x00, 'b', 0x00}, "ab"},
		{[]byte{0xFE, 0xFF, 0x00, 'a', 0x00, 'b'}, "ab"},
	}
	for ii, tt := range tests {
		got, err := decodeText(EncodingUTF16, tt.input)
		if err != nil {
			t.Errorf("[%d] decodeText returned error: %v", ii, err)
			continue
		}
		if got != tt.output {
			t.Errorf("[%d] got %q, expected %q", ii, got, tt.output)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encodings := []Encoding{EncodingLatin1, EncodingUTF16, EncodingUTF16BE, EncodingUTF8}
	for _, enc := range encodings {
		s := "Test Value"
		b, err := encodeText(enc, s, false, false)
		if err != nil {
			t.Errorf("[%v] encodeText returned error: %v", enc, err)
			continue
		}
		got, err := decodeText(enc, b)
		if err != nil {
			t.Errorf("[%v] decodeText returned error: %v", enc, err)
			continue
		}
		if got != s {
			t.Errorf("[%v] got %q, expected %q", enc, got, s)
		}
	}
}

func TestEncodeTerminated(t *testing.T) {
	b, err := encodeText(EncodingLatin1, "ab", true, false)
	if err != nil {
		t.Fatalf("encodeText returned error: %v", err)
	}
	if !bytes.Equal(b, []byte{'a', 'b', 0}) {
		t.Errorf("got %v, expected %v", b, []byte{'a', 'b', 0})
	}

	b, err = encodeText(EncodingUTF16BE, "a", true, false)
	if err != nil {
		t.Fatalf("encodeText returned error: %v", err)
	}
	if !bytes.Equal(b, []byte{0x00, 'a', 0x00, 0x00}) {
		t.Errorf("got %v, expected %v", b, []byte{0x00, 'a', 0x00, 0x00})
	}
}

func TestEncodeLatin1Lossy(t *testing.T) {
	if _, err := encodeText(EncodingLatin1, "日本", false, false); err == nil {
		t.Errorf("expected error encoding unrepresentable text")
	}

	b, err := encodeText(EncodingLatin1, "a日b", false, true)
	if err != nil {
		t.Fatalf("lossy encode returned error: %v", err)
	}
	if !bytes.Equal(b, []byte{'a', '?', 'b'}) {
		t.Errorf("got %v, expected %v", b, []byte{'a', '?', 'b'})
	}
}

func TestSplitTerminated(t *testing.T) {
	tests := []struct {
		enc  Encoding
		in   []byte
		head []byte
		rest []byte
	}{
		{EncodingLatin1, []byte{'a', 0, 'b'}, []byte{'a'}, []byte{'b'}},
		{EncodingLatin1, []byte{'a', 'b'}, []byte{'a', 'b'}, nil},
		{EncodingUTF16BE, []byte{0, 'a', 0, 0, 0, 'b'}, []byte{0, 'a'}, []byte{0, 'b'}},
		{EncodingUTF8, []byte{0}, []byte{}, []byte{}},
	}

	for ii, tt := range tests {
		head, rest := splitTerminated(tt.enc, tt.in)
		if !bytes.Equal(head, tt.head) || !bytes.Equal(rest, tt.rest) {
			t.Errorf("[%d] got (%v, %v), expected (%v, %v)", ii, head, rest, tt.head, tt.rest)
		}
	}
}

func TestVerifyEncoding(t *testing.T) {
	// ID3v2.3 only knows Latin-1 and UTF-16 with BOM.
	if got := EncodingUTF8.verifyEncoding(ID3v2_3); got != EncodingUTF16 {
		t.Errorf("UTF8 under v3: got %v, expected %v", got, EncodingUTF16)
	}
	if got := EncodingUTF16BE.verifyEncoding(ID3v2_3); got != EncodingUTF16 {
		t.Errorf("UTF16BE under v3: got %v, expected %v", got, EncodingUTF16)
	}
	if got := EncodingUTF8.verifyEncoding(ID3v2_4); got != EncodingUTF8 {
		t.Errorf("UTF8 under v4: got %v, expected %v", got, EncodingUTF8)
	}
}

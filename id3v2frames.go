// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// FrameFlags is a type which represents the flags which can be set on an
// ID3v2 frame.
type FrameFlags struct {
	// Message
	TagAlterPreservation  bool
	FileAlterPreservation bool
	ReadOnly              bool

	// Format
	GroupIdentity       *byte
	Compression         bool
	Encryption          *byte
	Unsynchronisation   bool
	DataLengthIndicator *uint32
}

// Frame is a single ID3v2 frame: its upgraded ID, flags and typed content.
type Frame struct {
	ID       string
	Outdated bool // a v2.2 ID with no upgrade mapping; never written
	Flags    FrameFlags
	Data     FrameData
}

// FrameData is the closed set of frame content types. The concrete types
// are CommentFrame, LyricsFrame, TextFrame, UserTextFrame, URLFrame,
// UserURLFrame, PictureFrame, PopularimeterFrame, KeyValueFrame,
// RelativeVolumeFrame, UniqueFileIDFrame, OwnershipFrame,
// EventTimingFrame, PrivateFrame, TimestampFrame and BinaryFrame.
type FrameData interface {
	appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error)
}

// upgradeID3v2_2 maps 3-character ID3v2.2 frame IDs onto their v2.3/v2.4
// equivalents. IDs absent from the table are preserved as Outdated.
var upgradeID3v2_2 = map[string]string{
	"BUF": "RBUF",
	"CNT": "PCNT",
	"COM": "COMM",
	"CRA": "AENC",
	"ETC": "ETCO",
	"GEO": "GEOB",
	"IPL": "TIPL",
	"MCI": "MCDI",
	"MLL": "MLLT",
	"PIC": "APIC",
	"POP": "POPM",
	"REV": "RVRB",
	"SLT": "SYLT",
	"STC": "SYTC",
	"TAL": "TALB",
	"TBP": "TBPM",
	"TCM": "TCOM",
	"TCO": "TCON",
	"TCP": "TCMP",
	"TCR": "TCOP",
	"TDA": "TDAT",
	"TDY": "TDLY",
	"TEN": "TENC",
	"TFT": "TFLT",
	"TIM": "TIME",
	"TKE": "TKEY",
	"TLA": "TLAN",
	"TLE": "TLEN",
	"TMT": "TMED",
	"TOA": "TOPE",
	"TOF": "TOFN",
	"TOL": "TOLY",
	"TOR": "TORY",
	"TOT": "TOAL",
	"TP1": "TPE1",
	"TP2": "TPE2",
	"TP3": "TPE3",
	"TP4": "TPE4",
	"TPA": "TPOS",
	"TPB": "TPUB",
	"TRC": "TSRC",
	"TRD": "TRDA",
	"TRK": "TRCK",
	"TS2": "TSO2",
	"TSA": "TSOA",
	"TSC": "TSOC",
	"TSP": "TSOP",
	"TSS": "TSSE",
	"TST": "TSOT",
	"TT1": "TIT1",
	"TT2": "TIT2",
	"TT3": "TIT3",
	"TXT": "TEXT",
	"TXX": "TXXX",
	"TYE": "TYER",
	"UFI": "UFID",
	"ULT": "USLT",
	"WAF": "WOAF",
	"WAR": "WOAR",
	"WAS": "WOAS",
	"WCM": "WCOM",
	"WCP": "WCOP",
	"WPB": "WPUB",
	"WXX": "WXXX",
}

func validFrameID(id string) bool {
	if len(id) != 3 && len(id) != 4 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// errID3v2Padding reports a zeroed frame header, i.e. the padding zone
// at the end of a tag.
var errID3v2Padding = errors.New("padding")

func readID3v2_2FrameHeader(r io.Reader) (name string, size int, headerSize int, err error) {
	name, err = readString(r, 3)
	if err != nil {
		return
	}
	size, err = readInt(r, 3)
	if err != nil {
		return
	}
	headerSize = 6
	return
}

func readID3v2_3FrameHeader(r io.Reader) (name string, size int, headerSize int, err error) {
	name, err = readString(r, 4)
	if err != nil {
		return
	}
	size, err = readInt(r, 4)
	if err != nil {
		return
	}
	headerSize = 10
	return
}

func readID3v2_4FrameHeader(r io.Reader) (name string, size int, headerSize int, err error) {
	name, err = readString(r, 4)
	if err != nil {
		return
	}
	size, err = read7BitChunkedInt(r, 4)
	if err != nil {
		return
	}
	headerSize = 10
	return
}

func read7BitChunkedInt(r io.Reader, n uint) (int, error) {
	b, err := readBytes(r, n)
	if err != nil {
		return 0, err
	}
	return get7BitChunkedInt(b), nil
}

// readID3v2FrameFlags reads the 2 flag bytes, decoding the layout for
// the given version. The extra bytes implied by the format flags
// (grouping identity, encryption method, data length) are NOT consumed
// here; they sit at the head of the frame body.
func readID3v2FrameFlags(r io.Reader, version Format) (*FrameFlags, error) {
	b, err := readBytes(r, 2)
	if err != nil {
		return nil, err
	}

	msg, format := b[0], b[1]
	f := &FrameFlags{}

	switch version {
	case ID3v2_3:
		f.TagAlterPreservation = getBit(msg, 7)
		f.FileAlterPreservation = getBit(msg, 6)
		f.ReadOnly = getBit(msg, 5)
		f.Compression = getBit(format, 7)
		if getBit(format, 6) {
			f.Encryption = new(byte)
		}
		if getBit(format, 5) {
			f.GroupIdentity = new(byte)
		}

	case ID3v2_4:
		f.TagAlterPreservation = getBit(msg, 6)
		f.FileAlterPreservation = getBit(msg, 5)
		f.ReadOnly = getBit(msg, 4)
		if getBit(format, 6) {
			f.GroupIdentity = new(byte)
		}
		f.Compression = getBit(format, 3)
		if getBit(format, 2) {
			f.Encryption = new(byte)
		}
		f.Unsynchronisation = getBit(format, 1)
		if getBit(format, 0) {
			f.DataLengthIndicator = new(uint32)
		}
	}
	return f, nil
}

// readID3v2Frame reads a single frame, returning the number of tag bytes
// consumed. A nil frame with nil error means the frame was elided
// (best-effort mode).
func readID3v2Frame(r io.Reader, version Format, opts ParseOptions) (*Frame, int, error) {
	var name string
	var size, headerSize int
	var err error
	flags := &FrameFlags{}

	switch version {
	case ID3v2_2:
		name, size, headerSize, err = readID3v2_2FrameHeader(r)
	case ID3v2_3:
		name, size, headerSize, err = readID3v2_3FrameHeader(r)
		if err == nil {
			flags, err = readID3v2FrameFlags(r, version)
		}
	case ID3v2_4:
		name, size, headerSize, err = readID3v2_4FrameHeader(r)
		if err == nil {
			flags, err = readID3v2FrameFlags(r, version)
		}
	}
	if err != nil {
		return nil, 0, err
	}

	if name == "\x00\x00\x00" || name == "\x00\x00\x00\x00" || size == 0 {
		return nil, 0, errID3v2Padding
	}
	if !validFrameID(name) {
		return nil, 0, wrapErr(ErrBadFrame, "invalid frame ID %q", name)
	}

	b, err := readBytes(r, uint(size))
	if err != nil {
		return nil, 0, err
	}
	consumed := headerSize + size

	// Frame ID upgrade for v2.2 tags.
	outdated := false
	if version == ID3v2_2 {
		if up, ok := upgradeID3v2_2[name]; ok {
			name = up
		} else {
			outdated = true
		}
	}

	// Head-of-body extras declared by the format flags.
	if flags.GroupIdentity != nil {
		if len(b) < 1 {
			return nil, consumed, wrapErr(ErrBadFrame, "%s: missing group identity byte", name)
		}
		*flags.GroupIdentity, b = b[0], b[1:]
	}
	if flags.Encryption != nil {
		if len(b) < 1 {
			return nil, consumed, wrapErr(ErrBadFrame, "%s: missing encryption method byte", name)
		}
		*flags.Encryption, b = b[0], b[1:]
	}
	if flags.DataLengthIndicator != nil {
		if len(b) < 4 {
			return nil, consumed, wrapErr(ErrBadFrame, "%s: missing data length indicator", name)
		}
		*flags.DataLengthIndicator = uint32(get7BitChunkedInt(b[:4]))
		b = b[4:]
	}

	if flags.Unsynchronisation {
		b, err = deunsynchronise(b)
		if err != nil {
			return nil, consumed, wrapErr(ErrBadFrame, "%s: %v", name, err)
		}
	}

	f := &Frame{ID: name, Outdated: outdated, Flags: *flags}

	// Encrypted frames stay opaque, and MUST carry a data length
	// indicator so a writer can round-trip them.
	if flags.Encryption != nil {
		if flags.DataLengthIndicator == nil {
			if opts.Mode == Strict {
				return nil, consumed, ErrMissingDataLengthIndicator
			}
			return nil, consumed, nil
		}
		f.Data = &BinaryFrame{Data: b}
		return f, consumed, nil
	}

	if flags.Compression {
		// v2.3 prefixes the compressed data with a 4-byte decompressed
		// size; v2.4 carries that in the data length indicator instead.
		if version == ID3v2_3 {
			if len(b) < 4 {
				return nil, consumed, wrapErr(ErrBadFrame, "%s: missing decompressed size", name)
			}
			b = b[4:]
		}
		b, err = decompressFrame(b)
		if err != nil {
			return nil, consumed, err
		}
	}

	if outdated {
		f.Data = &BinaryFrame{Data: b}
		return f, consumed, nil
	}

	data, err := parseFrameContent(name, b, version, opts)
	if err != nil {
		return nil, consumed, err
	}
	f.Data = data
	return f, consumed, nil
}

// parseFrameContent dispatches on the upgraded frame ID.
func parseFrameContent(id string, b []byte, version Format, opts ParseOptions) (FrameData, error) {
	switch {
	case id == "APIC":
		return parseAPICFrame(b, version)
	case id == "TXXX":
		return parseUserTextFrame(b)
	case id == "WXXX":
		return parseUserURLFrame(b)
	case id == "COMM":
		c, err := parseCommentBody(b)
		if err != nil {
			return nil, err
		}
		return (*CommentFrame)(c), nil
	case id == "USLT":
		c, err := parseCommentBody(b)
		if err != nil {
			return nil, err
		}
		return (*LyricsFrame)(c), nil
	case id == "TIPL" || id == "TMCL" || id == "IPLS":
		return parseKeyValueFrame(b)
	case id == "UFID":
		return parseUniqueFileIDFrame(b, opts)
	case id == "POPM":
		return parsePopularimeterFrame(b)
	case id == "RVA2":
		return parseRelativeVolumeFrame(b)
	case id == "OWNE":
		return parseOwnershipFrame(b)
	case id == "ETCO":
		return parseEventTimingFrame(b)
	case id == "PRIV":
		return parsePrivateFrame(b)
	case isTimestampFrameID(id):
		return parseTimestampFrame(b, opts)
	case id[0] == 'T':
		return parseTextFrame(b)
	case id[0] == 'W':
		return parseURLFrame(b)
	}
	return &BinaryFrame{Data: b}, nil
}

func isTimestampFrameID(id string) bool {
	switch id {
	case "TDEN", "TDOR", "TDRC", "TDRL", "TDTG":
		return true
	}
	return false
}

// TextFrame is a T*** text information frame (except TXXX). Multiple
// values are separated by the encoding's terminator on disk.
type TextFrame struct {
	Encoding Encoding
	Values   []string
}

func (f *TextFrame) Value() string { return strings.Join(f.Values, "; ") }

func parseTextFrame(b []byte) (FrameData, error) {
	if len(b) == 0 {
		return &TextFrame{Encoding: EncodingUTF8}, nil
	}
	enc := Encoding(b[0])
	if !enc.valid() {
		return nil, wrapErr(ErrBadFrame, "invalid encoding byte %#x", b[0])
	}

	var values []string
	rest := b[1:]
	for len(rest) > 0 {
		var s string
		var err error
		s, rest, err = decodeTerminated(enc, rest)
		if err != nil {
			return nil, err
		}
		values = append(values, s)
	}
	return &TextFrame{Encoding: enc, Values: values}, nil
}

func (f *TextFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	for i, v := range f.Values {
		b, err := encodeText(enc, v, i < len(f.Values)-1, opts.LossyTextEncoding)
		if err != nil {
			return nil, err
		}
		dst = append(dst, b...)
	}
	return dst, nil
}

// UserTextFrame is a TXXX frame.
type UserTextFrame struct {
	Encoding    Encoding
	Description string
	Value       string
}

func parseUserTextFrame(b []byte) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "TXXX: empty body")
	}
	enc := Encoding(b[0])
	desc, rest, err := decodeTerminated(enc, b[1:])
	if err != nil {
		return nil, err
	}
	val, err := decodeText(enc, rest)
	if err != nil {
		return nil, err
	}
	return &UserTextFrame{Encoding: enc, Description: desc, Value: val}, nil
}

func (f *UserTextFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	d, err := encodeText(enc, f.Description, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	v, err := encodeText(enc, f.Value, false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(append(dst, d...), v...), nil
}

// URLFrame is a W*** URL link frame (except WXXX). URLs are always
// Latin-1.
type URLFrame struct {
	URL string
}

func parseURLFrame(b []byte) (FrameData, error) {
	s, err := decodeText(EncodingLatin1, b)
	if err != nil {
		return nil, err
	}
	return &URLFrame{URL: s}, nil
}

func (f *URLFrame) appendBody(dst []byte, _ Format, opts WriteOptions) ([]byte, error) {
	b, err := encodeText(EncodingLatin1, f.URL, false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// UserURLFrame is a WXXX frame: described URL, description in the
// declared encoding, URL in Latin-1.
type UserURLFrame struct {
	Encoding    Encoding
	Description string
	URL         string
}

func parseUserURLFrame(b []byte) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "WXXX: empty body")
	}
	enc := Encoding(b[0])
	desc, rest, err := decodeTerminated(enc, b[1:])
	if err != nil {
		return nil, err
	}
	u, err := decodeText(EncodingLatin1, rest)
	if err != nil {
		return nil, err
	}
	return &UserURLFrame{Encoding: enc, Description: desc, URL: u}, nil
}

func (f *UserURLFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	d, err := encodeText(enc, f.Description, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	u, err := encodeText(EncodingLatin1, f.URL, false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(append(dst, d...), u...), nil
}

// commentBody is the shared shape of COMM and USLT frames.
type commentBody struct {
	Encoding    Encoding
	Language    string // 3 ASCII characters; "XXX" means unspecified
	Description string
	Text        string
}

// CommentFrame is a COMM frame.
type CommentFrame commentBody

// LyricsFrame is a USLT frame.
type LyricsFrame commentBody

func parseCommentBody(b []byte) (*commentBody, error) {
	if len(b) < 4 {
		return nil, wrapErr(ErrBadFrame, "COMM/USLT: body too short")
	}
	enc := Encoding(b[0])
	lang := string(b[1:4])
	desc, rest, err := decodeTerminated(enc, b[4:])
	if err != nil {
		return nil, err
	}
	text, err := decodeText(enc, rest)
	if err != nil {
		return nil, err
	}
	return &commentBody{Encoding: enc, Language: lang, Description: desc, Text: text}, nil
}

func (c *commentBody) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := c.Encoding.verifyEncoding(version)
	lang := c.Language
	if len(lang) != 3 {
		lang = "XXX"
	}
	dst = append(dst, byte(enc))
	dst = append(dst, lang...)
	d, err := encodeText(enc, c.Description, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	t, err := encodeText(enc, c.Text, false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(append(dst, d...), t...), nil
}

func (f *CommentFrame) appendBody(dst []byte, v Format, o WriteOptions) ([]byte, error) {
	return (*commentBody)(f).appendBody(dst, v, o)
}

func (f *LyricsFrame) appendBody(dst []byte, v Format, o WriteOptions) ([]byte, error) {
	return (*commentBody)(f).appendBody(dst, v, o)
}

// PictureFrame is an APIC (or v2.2 PIC) frame.
type PictureFrame struct {
	Encoding Encoding
	Picture  Picture
}

func parseAPICFrame(b []byte, version Format) (FrameData, error) {
	if len(b) < 2 {
		return nil, wrapErr(ErrBadFrame, "APIC: body too short")
	}
	enc := Encoding(b[0])
	b = b[1:]

	var mime string
	if version == ID3v2_2 {
		// v2.2 carries a fixed 3-byte format code instead of a MIME type.
		if len(b) < 3 {
			return nil, wrapErr(ErrBadFrame, "PIC: body too short")
		}
		switch f := strings.ToUpper(string(b[:3])); f {
		case "PNG":
			mime = "image/png"
		case "JPG":
			mime = "image/jpeg"
		default:
			return nil, wrapErr(ErrBadPictureFormat, "%q", f)
		}
		b = b[3:]
	} else {
		var err error
		mime, b, err = decodeTerminated(EncodingLatin1, b)
		if err != nil {
			return nil, err
		}
	}

	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "APIC: missing picture type")
	}
	picType := PictureType(b[0])

	desc, data, err := decodeTerminated(enc, b[1:])
	if err != nil {
		return nil, err
	}

	if mime == "" || mime == "-->" {
		// "-->" declares a locator; leave the bytes as-is.
		if mime == "" {
			mime, _ = sniffMIME(data)
		}
	}

	return &PictureFrame{
		Encoding: enc,
		Picture: Picture{
			Ext:         extForMIME(mime),
			MIMEType:    mime,
			Type:        picType,
			Description: desc,
			Data:        data,
		},
	}, nil
}

func (f *PictureFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))

	mime := f.Picture.MIMEType
	if mime == "" {
		mime, _ = sniffMIME(f.Picture.Data)
	}
	if version == ID3v2_2 {
		switch mime {
		case "image/png":
			dst = append(dst, "PNG"...)
		case "image/jpeg":
			dst = append(dst, "JPG"...)
		default:
			return nil, wrapErr(ErrBadPictureFormat, "%q has no ID3v2.2 format code", mime)
		}
	} else {
		m, err := encodeText(EncodingLatin1, mime, true, opts.LossyTextEncoding)
		if err != nil {
			return nil, err
		}
		dst = append(dst, m...)
	}

	dst = append(dst, byte(f.Picture.Type))
	d, err := encodeText(enc, f.Picture.Description, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	dst = append(dst, d...)
	return append(dst, f.Picture.Data...), nil
}

// PopularimeterFrame is a POPM frame.
type PopularimeterFrame struct {
	Email   string
	Rating  byte
	Counter uint64
}

func parsePopularimeterFrame(b []byte) (FrameData, error) {
	email, rest, err := decodeTerminated(EncodingLatin1, b)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, wrapErr(ErrBadFrame, "POPM: missing rating")
	}
	rating := rest[0]
	counterBytes := rest[1:]
	if len(counterBytes) > 8 {
		return nil, wrapErr(ErrBadFrame, "POPM: counter exceeds 8 bytes")
	}

	var counter uint64
	for _, x := range counterBytes {
		counter = counter<<8 | uint64(x)
	}
	return &PopularimeterFrame{Email: email, Rating: rating, Counter: counter}, nil
}

func (f *PopularimeterFrame) appendBody(dst []byte, _ Format, opts WriteOptions) ([]byte, error) {
	e, err := encodeText(EncodingLatin1, f.Email, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	dst = append(dst, e...)
	dst = append(dst, f.Rating)

	// The counter is 4 bytes minimum, widened as needed.
	n := 4
	for f.Counter >= 1<<uint(8*n) && n < 8 {
		n++
	}
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(f.Counter>>uint(8*i)))
	}
	return dst, nil
}

// KeyValueFrame is a TIPL/TMCL (v3: IPLS) frame: alternating role and
// person strings.
type KeyValueFrame struct {
	Encoding Encoding
	Pairs    [][2]string
}

func parseKeyValueFrame(b []byte) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "TIPL/TMCL: empty body")
	}
	enc := Encoding(b[0])

	var items []string
	rest := b[1:]
	for len(rest) > 0 {
		var s string
		var err error
		s, rest, err = decodeTerminated(enc, rest)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}

	pairs := make([][2]string, 0, (len(items)+1)/2)
	for i := 0; i < len(items); i += 2 {
		p := [2]string{items[i]}
		if i+1 < len(items) {
			p[1] = items[i+1]
		}
		pairs = append(pairs, p)
	}
	return &KeyValueFrame{Encoding: enc, Pairs: pairs}, nil
}

func (f *KeyValueFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	for i, p := range f.Pairs {
		last := i == len(f.Pairs)-1
		k, err := encodeText(enc, p[0], true, opts.LossyTextEncoding)
		if err != nil {
			return nil, err
		}
		v, err := encodeText(enc, p[1], !last, opts.LossyTextEncoding)
		if err != nil {
			return nil, err
		}
		dst = append(append(dst, k...), v...)
	}
	return dst, nil
}

// ChannelVolumeAdjustment is one channel entry of an RVA2 frame.
// VolumeAdjustment is in units of 1/512 dB.
type ChannelVolumeAdjustment struct {
	ChannelType      byte
	VolumeAdjustment int16
	BitsPerPeak      byte
	Peak             []byte
}

// RelativeVolumeFrame is an RVA2 frame.
type RelativeVolumeFrame struct {
	Identification string
	Channels       []ChannelVolumeAdjustment
}

func parseRelativeVolumeFrame(b []byte) (FrameData, error) {
	ident, rest, err := decodeTerminated(EncodingLatin1, b)
	if err != nil {
		return nil, err
	}

	var channels []ChannelVolumeAdjustment
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, wrapErr(ErrBadFrame, "RVA2: truncated channel block")
		}
		adj := ChannelVolumeAdjustment{
			ChannelType:      rest[0],
			VolumeAdjustment: int16(binary.BigEndian.Uint16(rest[1:3])),
			BitsPerPeak:      rest[3],
		}
		peakLen := (int(adj.BitsPerPeak) + 7) / 8
		rest = rest[4:]
		if len(rest) < peakLen {
			return nil, wrapErr(ErrBadFrame, "RVA2: truncated peak")
		}
		adj.Peak = rest[:peakLen]
		rest = rest[peakLen:]
		channels = append(channels, adj)
	}
	return &RelativeVolumeFrame{Identification: ident, Channels: channels}, nil
}

func (f *RelativeVolumeFrame) appendBody(dst []byte, _ Format, opts WriteOptions) ([]byte, error) {
	id, err := encodeText(EncodingLatin1, f.Identification, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	dst = append(dst, id...)
	for _, c := range f.Channels {
		dst = append(dst, c.ChannelType)
		dst = append(dst, byte(uint16(c.VolumeAdjustment)>>8), byte(uint16(c.VolumeAdjustment)))
		dst = append(dst, c.BitsPerPeak)
		dst = append(dst, c.Peak...)
	}
	return dst, nil
}

// UniqueFileIDFrame is a UFID frame.
type UniqueFileIDFrame struct {
	Owner      string
	Identifier []byte
}

func parseUniqueFileIDFrame(b []byte, opts ParseOptions) (FrameData, error) {
	owner, ident, err := decodeTerminated(EncodingLatin1, b)
	if err != nil {
		return nil, err
	}
	if owner == "" && opts.Mode == Strict {
		return nil, ErrMissingUfidOwner
	}
	return &UniqueFileIDFrame{Owner: owner, Identifier: ident}, nil
}

func (f *UniqueFileIDFrame) appendBody(dst []byte, _ Format, opts WriteOptions) ([]byte, error) {
	o, err := encodeText(EncodingLatin1, f.Owner, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(append(dst, o...), f.Identifier...), nil
}

// OwnershipFrame is an OWNE frame.
type OwnershipFrame struct {
	Encoding     Encoding
	PricePaid    string
	PurchaseDate string // YYYYMMDD
	Seller       string
}

func parseOwnershipFrame(b []byte) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "OWNE: empty body")
	}
	enc := Encoding(b[0])
	price, rest, err := decodeTerminated(EncodingLatin1, b[1:])
	if err != nil {
		return nil, err
	}
	if len(rest) < 8 {
		return nil, wrapErr(ErrBadFrame, "OWNE: truncated purchase date")
	}
	date := string(rest[:8])
	seller, err := decodeText(enc, rest[8:])
	if err != nil {
		return nil, err
	}
	return &OwnershipFrame{Encoding: enc, PricePaid: price, PurchaseDate: date, Seller: seller}, nil
}

func (f *OwnershipFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	p, err := encodeText(EncodingLatin1, f.PricePaid, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	dst = append(dst, p...)

	date := f.PurchaseDate
	if len(date) != 8 {
		return nil, wrapErr(ErrBadFrame, "OWNE: purchase date %q is not YYYYMMDD", date)
	}
	dst = append(dst, date...)

	s, err := encodeText(enc, f.Seller, false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(dst, s...), nil
}

// Timestamp formats for ETCO events.
const (
	TimestampMPEGFrames byte = 1
	TimestampMS         byte = 2
)

// TimedEvent is one entry of an ETCO frame.
type TimedEvent struct {
	EventType byte
	Timestamp uint32
}

// EventTimingFrame is an ETCO frame. Events are kept sorted by
// timestamp regardless of their order on disk.
type EventTimingFrame struct {
	Format byte
	Events []TimedEvent
}

func parseEventTimingFrame(b []byte) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "ETCO: empty body")
	}
	format := b[0]
	if format != TimestampMPEGFrames && format != TimestampMS {
		return nil, wrapErr(ErrBadTimestampFormat, "%d", format)
	}

	rest := b[1:]
	if len(rest)%5 != 0 {
		return nil, wrapErr(ErrBadFrame, "ETCO: body is not a whole number of events")
	}
	events := make([]TimedEvent, 0, len(rest)/5)
	for len(rest) >= 5 {
		events = append(events, TimedEvent{
			EventType: rest[0],
			Timestamp: binary.BigEndian.Uint32(rest[1:5]),
		})
		rest = rest[5:]
	}
	sortEvents(events)
	return &EventTimingFrame{Format: format, Events: events}, nil
}

func sortEvents(events []TimedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

func (f *EventTimingFrame) appendBody(dst []byte, _ Format, _ WriteOptions) ([]byte, error) {
	if f.Format != TimestampMPEGFrames && f.Format != TimestampMS {
		return nil, wrapErr(ErrBadTimestampFormat, "%d", f.Format)
	}
	dst = append(dst, f.Format)
	events := make([]TimedEvent, len(f.Events))
	copy(events, f.Events)
	sortEvents(events)
	for _, e := range events {
		dst = append(dst, e.EventType)
		dst = append(dst, byte(e.Timestamp>>24), byte(e.Timestamp>>16), byte(e.Timestamp>>8), byte(e.Timestamp))
	}
	return dst, nil
}

// PrivateFrame is a PRIV frame.
type PrivateFrame struct {
	Owner string
	Data  []byte
}

func parsePrivateFrame(b []byte) (FrameData, error) {
	owner, rest, err := decodeTerminated(EncodingLatin1, b)
	if err != nil {
		return nil, err
	}
	return &PrivateFrame{Owner: owner, Data: rest}, nil
}

func (f *PrivateFrame) appendBody(dst []byte, _ Format, opts WriteOptions) ([]byte, error) {
	o, err := encodeText(EncodingLatin1, f.Owner, true, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(append(dst, o...), f.Data...), nil
}

// Timestamp is the ISO 8601 subset YYYY[-MM[-DD[Thh[:mm[:ss]]]]] used by
// the v2.4 TDEN/TDOR/TDRC/TDRL/TDTG frames. Fields after Year are only
// meaningful when the corresponding presence flag is set.
type Timestamp struct {
	Year                          int
	Month, Day, Hour, Minute, Sec int
	HasMonth, HasDay, HasTime     bool
	HasMinute, HasSec             bool
}

func (t Timestamp) String() string {
	s := fmt.Sprintf("%04d", t.Year)
	if t.HasMonth {
		s += fmt.Sprintf("-%02d", t.Month)
	}
	if t.HasDay {
		s += fmt.Sprintf("-%02d", t.Day)
	}
	if t.HasTime {
		s += fmt.Sprintf("T%02d", t.Hour)
	}
	if t.HasMinute {
		s += fmt.Sprintf(":%02d", t.Minute)
	}
	if t.HasSec {
		s += fmt.Sprintf(":%02d", t.Sec)
	}
	return s
}

// ParseTimestamp parses the ISO 8601 subset used by ID3v2.4 timestamp
// frames.
func ParseTimestamp(s string) (*Timestamp, error) {
	t := &Timestamp{}

	digits := func(part string, n int) (int, bool) {
		if len(part) != n {
			return 0, false
		}
		v := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, false
			}
			v = v*10 + int(c-'0')
		}
		return v, true
	}

	var datePart, timePart string
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
		t.HasTime = true
	} else {
		datePart = s
	}

	dp := strings.Split(datePart, "-")
	if v, ok := digits(dp[0], 4); ok {
		t.Year = v
	} else {
		return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
	}
	if len(dp) > 1 {
		v, ok := digits(dp[1], 2)
		if !ok || v < 1 || v > 12 {
			return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
		}
		t.Month, t.HasMonth = v, true
	}
	if len(dp) > 2 {
		v, ok := digits(dp[2], 2)
		if !ok || v < 1 || v > 31 {
			return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
		}
		t.Day, t.HasDay = v, true
	}
	if len(dp) > 3 || (t.HasDay && !t.HasMonth) {
		return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
	}

	if t.HasTime {
		if !t.HasDay {
			return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
		}
		tp := strings.Split(timePart, ":")
		v, ok := digits(tp[0], 2)
		if !ok || v > 23 {
			return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
		}
		t.Hour = v
		if len(tp) > 1 {
			v, ok := digits(tp[1], 2)
			if !ok || v > 59 {
				return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
			}
			t.Minute, t.HasMinute = v, true
		}
		if len(tp) > 2 {
			v, ok := digits(tp[2], 2)
			if !ok || v > 61 {
				return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
			}
			t.Sec, t.HasSec = v, true
		}
		if len(tp) > 3 {
			return nil, wrapErr(ErrBadTimestampFormat, "%q", s)
		}
	}
	return t, nil
}

// TimestampFrame is a TDEN/TDOR/TDRC/TDRL/TDTG frame.
type TimestampFrame struct {
	Encoding  Encoding
	Timestamp Timestamp
}

func parseTimestampFrame(b []byte, opts ParseOptions) (FrameData, error) {
	if len(b) < 1 {
		return nil, wrapErr(ErrBadFrame, "timestamp frame: empty body")
	}
	enc := Encoding(b[0])
	s, err := decodeText(enc, b[1:])
	if err != nil {
		return nil, err
	}
	ts, err := ParseTimestamp(strings.TrimSpace(s))
	if err != nil {
		if opts.Mode != Strict {
			return &BinaryFrame{Data: b}, nil
		}
		return nil, err
	}
	return &TimestampFrame{Encoding: enc, Timestamp: *ts}, nil
}

func (f *TimestampFrame) appendBody(dst []byte, version Format, opts WriteOptions) ([]byte, error) {
	enc := f.Encoding.verifyEncoding(version)
	dst = append(dst, byte(enc))
	b, err := encodeText(enc, f.Timestamp.String(), false, opts.LossyTextEncoding)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// BinaryFrame carries any frame this package does not interpret.
type BinaryFrame struct {
	Data []byte
}

func (f *BinaryFrame) appendBody(dst []byte, _ Format, _ WriteOptions) ([]byte, error) {
	return append(dst, f.Data...), nil
}

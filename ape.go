// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// apeFooterSize is the fixed size of an APE tag footer (and header).
const apeFooterSize = 32

// APE tag flag bits (footer/header flags field).
const (
	apeFlagHasHeader   = 1 << 31
	apeFlagNoFooter    = 1 << 30
	apeFlagIsHeader    = 1 << 29
	apeFlagReadOnly    = 1 << 0
	apeItemKindMask    = 0x06
)

// APEItemKind is the value type of an APE tag item.
type APEItemKind byte

const (
	APEText APEItemKind = iota
	APEBinary
	APELocator
)

// APEItem is a single key/value item. Keys are case-insensitive ASCII
// of 2..255 printable characters.
type APEItem struct {
	Key      string
	Kind     APEItemKind
	Value    []byte
	ReadOnly bool
}

// APETag is a parsed APEv1/v2 tag: the version (1000 or 2000) and the
// ordered item list.
type APETag struct {
	Version uint32
	Items   []APEItem
}

// Get returns the value of the first item matching key
// (case-insensitively), or nil.
func (t *APETag) Get(key string) *APEItem {
	for i := range t.Items {
		if strings.EqualFold(t.Items[i].Key, key) {
			return &t.Items[i]
		}
	}
	return nil
}

// Set inserts a text item, replacing any existing item with the same
// (case-insensitive) key.
func (t *APETag) Set(key, value string) error {
	return t.SetItem(APEItem{Key: key, Kind: APEText, Value: []byte(value)})
}

// SetItem inserts item, replacing any existing one with the same key.
func (t *APETag) SetItem(item APEItem) error {
	if !validAPEKey(item.Key) {
		return wrapErr(ErrFakeTag, "invalid APE item key %q", item.Key)
	}
	for i := range t.Items {
		if strings.EqualFold(t.Items[i].Key, item.Key) {
			t.Items[i] = item
			return nil
		}
	}
	t.Items = append(t.Items, item)
	return nil
}

// Remove drops every item matching key, reporting whether any matched.
func (t *APETag) Remove(key string) bool {
	kept := t.Items[:0]
	removed := false
	for _, it := range t.Items {
		if strings.EqualFold(it.Key, key) {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	t.Items = kept
	return removed
}

// Reserved key strings which can never be APE item keys.
var apeReservedKeys = []string{"ID3", "TAG", "OggS", "MP+"}

func validAPEKey(k string) bool {
	if len(k) < 2 || len(k) > 255 {
		return false
	}
	for i := 0; i < len(k); i++ {
		if k[i] < 0x20 || k[i] > 0x7E {
			return false
		}
	}
	for _, res := range apeReservedKeys {
		if strings.EqualFold(k, res) {
			return false
		}
	}
	return true
}

// apeFooter is the fixed 32-byte block closing (and optionally opening)
// an APE tag.
type apeFooter struct {
	Version   uint32
	Size      uint32 // includes footer, excludes header
	ItemCount uint32
	Flags     uint32
	HasHeader bool
	IsHeader  bool
}

// readAPEFooter reads a footer (or header) block at the current
// position.
func readAPEFooter(r io.Reader) (*apeFooter, error) {
	b, err := readBytes(r, apeFooterSize)
	if err != nil {
		return nil, err
	}
	if string(b[0:8]) != "APETAGEX" {
		return nil, wrapErr(ErrBadMagic, "expected 'APETAGEX'")
	}

	f := &apeFooter{
		Version:   leUint32(b[8:12]),
		Size:      leUint32(b[12:16]),
		ItemCount: leUint32(b[16:20]),
		Flags:     leUint32(b[20:24]),
	}
	f.HasHeader = f.Flags&apeFlagHasHeader != 0
	f.IsHeader = f.Flags&apeFlagIsHeader != 0

	if f.Size < apeFooterSize {
		return nil, wrapErr(ErrSizeMismatch, "APE tag size %d below footer size", f.Size)
	}
	return f, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// parseAPEItems decodes the item area of a tag.
func parseAPEItems(b []byte, count uint32, opts ParseOptions) ([]APEItem, error) {
	var items []APEItem
	for i := uint32(0); i < count; i++ {
		if len(b) < 8 {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrSizeMismatch, "APE item %d truncated", i)
			}
			break
		}
		size := leUint32(b[0:4])
		flags := leUint32(b[4:8])
		b = b[8:]

		null := bytes.IndexByte(b, 0)
		if null < 0 || uint32(len(b)-null-1) < size {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrSizeMismatch, "APE item %d overruns tag", i)
			}
			break
		}
		key := string(b[:null])
		value := b[null+1 : null+1+int(size)]
		b = b[null+1+int(size):]

		if !validAPEKey(key) {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrFakeTag, "invalid APE item key %q", key)
			}
			continue
		}

		item := APEItem{
			Key:      key,
			Kind:     APEItemKind(flags & apeItemKindMask >> 1),
			Value:    value,
			ReadOnly: flags&apeFlagReadOnly != 0,
		}

		// Case-insensitive dedup: the last occurrence wins.
		replaced := false
		for j := range items {
			if strings.EqualFold(items[j].Key, key) {
				items[j] = item
				replaced = true
				break
			}
		}
		if !replaced {
			items = append(items, item)
		}
	}
	return items, nil
}

// findAPETag locates an APE tag at the end of the stream (stepping over
// a trailing ID3v1 tag) and parses it. Returns nil when absent.
func findAPETag(r io.ReadSeeker, opts ParseOptions) (*APETag, int64, int64, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, 0, err
	}

	tagEnd := end
	if tagEnd >= id3v1TagSize {
		if _, err := r.Seek(tagEnd-id3v1TagSize, io.SeekStart); err == nil {
			if magic, err := readString(r, 3); err == nil && magic == "TAG" {
				tagEnd -= id3v1TagSize
			}
		}
	}

	if tagEnd < apeFooterSize {
		return nil, 0, 0, nil
	}
	if _, err := r.Seek(tagEnd-apeFooterSize, io.SeekStart); err != nil {
		return nil, 0, 0, err
	}
	f, err := readAPEFooter(r)
	if err != nil || f.IsHeader {
		return nil, 0, 0, nil
	}

	tagStart := tagEnd - int64(f.Size)
	if f.HasHeader {
		tagStart -= apeFooterSize
	}
	if tagStart < 0 {
		return nil, 0, 0, wrapErr(ErrSizeMismatch, "APE tag size %d exceeds file", f.Size)
	}

	itemsStart := tagEnd - int64(f.Size)
	if _, err := r.Seek(itemsStart, io.SeekStart); err != nil {
		return nil, 0, 0, err
	}
	itemBytes, err := readBytes(r, uint(int64(f.Size)-apeFooterSize))
	if err != nil {
		return nil, 0, 0, err
	}

	items, err := parseAPEItems(itemBytes, f.ItemCount, opts)
	if err != nil {
		return nil, 0, 0, err
	}
	return &APETag{Version: f.Version, Items: items}, tagStart, tagEnd, nil
}

// RenderAPETag serialises t with both header and footer, as APEv2
// requires for new tags.
func RenderAPETag(t *APETag) ([]byte, error) {
	version := t.Version
	if version == 0 {
		version = 2000
	}

	var items []byte
	for _, it := range t.Items {
		if !validAPEKey(it.Key) {
			return nil, wrapErr(ErrFakeTag, "invalid APE item key %q", it.Key)
		}
		var flags uint32 = uint32(it.Kind) << 1
		if it.ReadOnly {
			flags |= apeFlagReadOnly
		}
		items = appendLEUint32(items, uint32(len(it.Value)))
		items = appendLEUint32(items, flags)
		items = append(items, it.Key...)
		items = append(items, 0)
		items = append(items, it.Value...)
	}

	size := uint32(len(items)) + apeFooterSize

	block := func(isHeader bool) []byte {
		var flags uint32 = apeFlagHasHeader
		if isHeader {
			flags |= apeFlagIsHeader
		}
		b := make([]byte, 0, apeFooterSize)
		b = append(b, "APETAGEX"...)
		b = appendLEUint32(b, version)
		b = appendLEUint32(b, size)
		b = appendLEUint32(b, uint32(len(t.Items)))
		b = appendLEUint32(b, flags)
		return append(b, make([]byte, 8)...)
	}

	out := make([]byte, 0, int(size)+apeFooterSize)
	out = append(out, block(true)...)
	out = append(out, items...)
	out = append(out, block(false)...)
	return out, nil
}

func appendLEUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteAPETag replaces (or appends) the APE tag at the end of the
// target, leaving any trailing ID3v1 tag in place after it.
func WriteAPETag(w Target, t *APETag, opts WriteOptions) error {
	_, tagStart, tagEnd, err := findAPETag(w, ParseOptions{}.Defaults())
	if err != nil {
		return err
	}

	rendered, err := RenderAPETag(t)
	if err != nil {
		return err
	}

	if tagEnd == 0 { // no existing tag: insert before any ID3v1
		end, err := w.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		insert := end
		if end >= id3v1TagSize {
			if _, err := w.Seek(end-id3v1TagSize, io.SeekStart); err == nil {
				if magic, err := readString(w, 3); err == nil && magic == "TAG" {
					insert = end - id3v1TagSize
				}
			}
		}
		return spliceRegion(w, insert, 0, rendered)
	}
	return spliceRegion(w, tagStart, tagEnd-tagStart, rendered)
}

// StripAPETag removes the APE tag, if any.
func StripAPETag(w Target) error {
	_, tagStart, tagEnd, err := findAPETag(w, ParseOptions{}.Defaults())
	if err != nil {
		return err
	}
	if tagEnd == 0 {
		return nil
	}
	return spliceRegion(w, tagStart, tagEnd-tagStart, nil)
}

// APEProperties is the Properties superset for Monkey's Audio files.
type APEProperties struct {
	Properties
	Version uint16
}

// readAPEProperties decodes the MAC header following the "MAC " magic.
func readAPEProperties(r io.ReadSeeker, fileEnd int64, opts ParseOptions) (*APEProperties, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	version, err := readUint16LittleEndian(r)
	if err != nil {
		return nil, err
	}
	p := &APEProperties{Version: version}

	var totalFrames, blocksPerFrame, finalFrameBlocks uint32
	if version >= 3980 {
		// Descriptor: the remaining 46 bytes after magic+version, of
		// which we need only the declared length.
		desc, err := readBytes(r, 46)
		if err != nil {
			return nil, err
		}
		descLen := leUint32(desc[2:6])
		if descLen > 52 {
			if _, err := r.Seek(int64(descLen-52), io.SeekCurrent); err != nil {
				return nil, err
			}
		}

		hdr, err := readBytes(r, 24)
		if err != nil {
			return nil, err
		}
		blocksPerFrame = leUint32(hdr[4:8])
		finalFrameBlocks = leUint32(hdr[8:12])
		totalFrames = leUint32(hdr[12:16])
		p.BitDepth = uint8(leUint32(hdr[16:20]) & 0xFFFF)
		p.Channels = uint8(leUint32(hdr[16:20]) >> 16)
		p.SampleRate = leUint32(hdr[20:24])
	} else {
		hdr, err := readBytes(r, 26)
		if err != nil {
			return nil, err
		}
		compression := uint16(hdr[0]) | uint16(hdr[1])<<8
		formatFlags := uint16(hdr[2]) | uint16(hdr[3])<<8
		switch {
		case formatFlags&0x1 != 0:
			p.BitDepth = 8
		case formatFlags&0x8 != 0:
			p.BitDepth = 24
		default:
			p.BitDepth = 16
		}

		switch {
		case version >= 3950:
			blocksPerFrame = 73728 * 4
		case version >= 3900 || (version >= 3800 && compression >= 4000):
			blocksPerFrame = 73728
		default:
			blocksPerFrame = 9216
		}
		p.Channels = uint8(uint16(hdr[6]) | uint16(hdr[7])<<8)
		p.SampleRate = leUint32(hdr[8:12])
		totalFrames = leUint32(hdr[18:22])
		finalFrameBlocks = leUint32(hdr[22:26])
	}

	if totalFrames == 0 || p.Channels == 0 || p.Channels > 32 {
		if opts.Mode == Strict {
			return nil, wrapErr(ErrFakeTag, "invalid MAC header")
		}
		return p, nil
	}

	totalBlocks := uint64(totalFrames-1)*uint64(blocksPerFrame) + uint64(finalFrameBlocks)
	if p.SampleRate > 0 {
		p.Duration = time.Duration(totalBlocks * uint64(time.Second) / uint64(p.SampleRate))
	}
	streamLen := uint64(fileEnd - start)
	if ms := uint64(p.Duration / time.Millisecond); ms > 0 {
		p.AudioBitrate = uint32(streamLen * 8 / ms)
		p.OverallBitrate = p.AudioBitrate
	}
	return p, nil
}

// metadataAPE is the Metadata implementation for files carrying an APE
// tag (Monkey's Audio, Musepack, WavPack).
type metadataAPE struct {
	fileType FileType
	tag      *APETag
	props    Properties
}

// Tag exposes the underlying structured tag.
func (m *metadataAPE) Tag() *APETag { return m.tag }

func (m *metadataAPE) Format() Format         { return APE }
func (m *metadataAPE) FileType() FileType     { return m.fileType }
func (m *metadataAPE) Properties() Properties { return m.props }

func (m *metadataAPE) Raw() map[string]interface{} {
	raw := make(map[string]interface{}, len(m.tag.Items))
	for _, it := range m.tag.Items {
		if it.Kind == APEBinary {
			raw[strings.ToLower(it.Key)] = it.Value
		} else {
			raw[strings.ToLower(it.Key)] = string(it.Value)
		}
	}
	return raw
}

func (m *metadataAPE) text(key string) string {
	it := m.tag.Get(key)
	if it == nil || it.Kind == APEBinary {
		return ""
	}
	return string(it.Value)
}

func (m *metadataAPE) Title() string       { return m.text("Title") }
func (m *metadataAPE) Album() string       { return m.text("Album") }
func (m *metadataAPE) Artist() string      { return m.text("Artist") }
func (m *metadataAPE) AlbumArtist() string { return m.text("Album Artist") }
func (m *metadataAPE) Composer() string    { return m.text("Composer") }
func (m *metadataAPE) Genre() string       { return m.text("Genre") }
func (m *metadataAPE) Lyrics() string      { return m.text("Lyrics") }
func (m *metadataAPE) Comment() string     { return m.text("Comment") }

func (m *metadataAPE) Year() int {
	y := m.text("Year")
	if len(y) >= 4 {
		v, _ := strconv.Atoi(y[:4])
		return v
	}
	return 0
}

func (m *metadataAPE) Track() (int, int) { return parseXofN(m.text("Track")) }
func (m *metadataAPE) Disc() (int, int)  { return parseXofN(m.text("Disc")) }

func (m *metadataAPE) Picture() *Picture {
	it := m.tag.Get("Cover Art (Front)")
	if it == nil || it.Kind != APEBinary {
		return nil
	}
	// Binary cover art: a null-terminated description, then the image.
	desc, data := "", it.Value
	if i := bytes.IndexByte(it.Value, 0); i >= 0 {
		desc, data = string(it.Value[:i]), it.Value[i+1:]
	}
	mime, ext := sniffMIME(data)
	if mime == "" {
		return nil
	}
	return &Picture{
		Ext:         ext,
		MIMEType:    mime,
		Type:        PictureCoverFront,
		Description: desc,
		Data:        data,
	}
}

// ReadAPETags reads the APE tag and stream properties of an APE,
// Musepack or WavPack file.
func ReadAPETags(r io.ReadSeeker, fileType FileType) (Metadata, error) {
	return ReadAPETagsOptions(r, fileType, ParseOptions{}.Defaults())
}

// ReadAPETagsOptions is ReadAPETags with explicit ParseOptions.
func ReadAPETagsOptions(r io.ReadSeeker, fileType FileType, opts ParseOptions) (Metadata, error) {
	m := &metadataAPE{fileType: fileType, tag: &APETag{Version: 2000}}

	if opts.ReadTags {
		t, _, _, err := findAPETag(r, opts)
		if err != nil {
			return nil, err
		}
		if t != nil {
			m.tag = t
		}
	}

	if !opts.ReadProperties {
		return m, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// A leading ID3v2 tag may precede the stream.
	streamStart := int64(0)
	if h, err := readID3v2Header(r); err == nil {
		streamStart = int64(h.Size) + 10
		if h.Flags.Footer {
			streamStart += 10
		}
	}
	if _, err := r.Seek(streamStart, io.SeekStart); err != nil {
		return nil, err
	}

	fileEnd, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(streamStart, io.SeekStart); err != nil {
		return nil, err
	}

	switch fileType {
	case APEF:
		magic, err := readString(r, 4)
		if err != nil {
			return nil, err
		}
		if magic != "MAC " {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrBadMagic, "expected 'MAC '")
			}
			return m, nil
		}
		p, err := readAPEProperties(r, fileEnd, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.props = p.Properties
		}

	case MPC:
		p, err := readMPCProperties(r, fileEnd, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.props = *p
		}

	case WAVPACK:
		p, err := readWavPackProperties(r, fileEnd, opts)
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
		} else {
			m.props = p.Properties
		}
	}
	return m, nil
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"time"
)

// atomHeaderLen is the length of a plain atom header: 4 size bytes and
// the FOURCC.
const atomHeaderLen = 8

// AtomIdent identifies an ilst child: either a plain FOURCC or a
// freeform "----" pair of mean and name.
type AtomIdent struct {
	Fourcc string
	Mean   string
	Name   string
}

// Freeform reports whether the ident is a "----" freeform atom.
func (i AtomIdent) Freeform() bool { return i.Mean != "" || i.Name != "" }

func (i AtomIdent) String() string {
	if i.Freeform() {
		return i.Mean + ":" + i.Name
	}
	return i.Fourcc
}

// DataType is the well-known type code of a `data` atom.
type DataType uint32

const (
	TypeImplicit   DataType = 0
	TypeUTF8       DataType = 1
	TypeUTF16      DataType = 2
	TypeJPEG       DataType = 13
	TypePNG        DataType = 14
	TypeSignedInt  DataType = 21
	TypeUnsignedInt DataType = 22
	TypeBMP        DataType = 27
)

// AtomData is a single `data` atom value: type code, locale (ignored on
// read, preserved for round-trips) and payload.
type AtomData struct {
	Type   DataType
	Locale uint32
	Data   []byte
}

// String interprets the payload as text, if the type code is textual.
func (d AtomData) String() (string, bool) {
	switch d.Type {
	case TypeUTF8:
		return string(d.Data), true
	case TypeUTF16:
		s, err := decodeText(EncodingUTF16BE, d.Data)
		return s, err == nil
	}
	return "", false
}

// Int interprets the payload as a signed big-endian integer.
func (d AtomData) Int() (int64, bool) {
	if d.Type != TypeSignedInt && d.Type != TypeUnsignedInt && d.Type != TypeImplicit {
		return 0, false
	}
	if len(d.Data) == 0 || len(d.Data) > 8 {
		return 0, false
	}
	var v int64
	for _, b := range d.Data {
		v = v<<8 | int64(b)
	}
	return v, true
}

// Bool interprets the payload as an iTunes flag value.
func (d AtomData) Bool() (bool, bool) {
	v, ok := d.Int()
	return v != 0, ok
}

// IlstAtom is one metadata item: an ident and 1..N data values.
type IlstAtom struct {
	Ident AtomIdent
	Data  []AtomData
}

// Ilst is the ordered item list carried in moov.udta.meta.ilst.
type Ilst struct {
	Atoms []IlstAtom
}

// Atom returns the first atom matching the FOURCC, or nil.
func (l *Ilst) Atom(fourcc string) *IlstAtom {
	for i := range l.Atoms {
		if l.Atoms[i].Ident.Fourcc == fourcc {
			return &l.Atoms[i]
		}
	}
	return nil
}

// FreeformAtom returns the first freeform atom matching mean and name.
func (l *Ilst) FreeformAtom(mean, name string) *IlstAtom {
	for i := range l.Atoms {
		id := l.Atoms[i].Ident
		if id.Mean == mean && id.Name == name {
			return &l.Atoms[i]
		}
	}
	return nil
}

// ReplaceAtom inserts a, replacing an existing atom with the same ident.
func (l *Ilst) ReplaceAtom(a IlstAtom) {
	for i := range l.Atoms {
		if l.Atoms[i].Ident == a.Ident {
			l.Atoms[i] = a
			return
		}
	}
	l.Atoms = append(l.Atoms, a)
}

// RemoveAtom drops every atom with the given ident.
func (l *Ilst) RemoveAtom(ident AtomIdent) {
	kept := l.Atoms[:0]
	for _, a := range l.Atoms {
		if a.Ident != ident {
			kept = append(kept, a)
		}
	}
	l.Atoms = kept
}

// atomInfo locates an atom in the byte stream.
type atomInfo struct {
	start    int64
	length   int64
	extended bool
	name     string
}

func (a atomInfo) headerLen() int64 {
	if a.extended {
		return atomHeaderLen + 8
	}
	return atomHeaderLen
}

func (a atomInfo) end() int64 { return a.start + a.length }

// mp4Containers is the fixed set of containers worth recursing into.
var mp4Containers = map[string]bool{
	"moov": true, "udta": true, "moof": true, "trak": true,
	"mdia": true, "minf": true, "stbl": true, "traf": true,
}

// parseAtomsBuf yields the sibling atoms of buf[start:end].
func parseAtomsBuf(buf []byte, start, end int64) ([]atomInfo, error) {
	var atoms []atomInfo
	pos := start
	for pos+atomHeaderLen <= end {
		size := int64(binary.BigEndian.Uint32(buf[pos : pos+4]))
		name := string(buf[pos+4 : pos+8])
		a := atomInfo{start: pos, length: size, name: name}

		switch size {
		case 0:
			// Atom extends to the end of the enclosing scope.
			a.length = end - pos
		case 1:
			if pos+16 > end {
				return nil, wrapErr(ErrBadAtom, "%q: truncated extended size", name)
			}
			a.extended = true
			a.length = int64(binary.BigEndian.Uint64(buf[pos+8 : pos+16]))
		}

		if a.length < atomHeaderLen || pos+a.length > end {
			return nil, wrapErr(ErrBadAtom, "%q: declared size %d at offset %d overruns parent", name, a.length, pos)
		}
		atoms = append(atoms, a)
		pos += a.length
	}
	return atoms, nil
}

func findAtomBuf(buf []byte, start, end int64, name string) (*atomInfo, error) {
	atoms, err := parseAtomsBuf(buf, start, end)
	if err != nil {
		return nil, err
	}
	for i := range atoms {
		if atoms[i].name == name {
			return &atoms[i], nil
		}
	}
	return nil, nil
}

// metaChildrenStart returns the offset of the first child of a `meta`
// atom, sniffing whether it is a full atom (4 bytes of version+flags
// before children) by checking the bytes for a known child FOURCC.
func metaChildrenStart(buf []byte, meta *atomInfo) int64 {
	pos := meta.start + meta.headerLen()
	if pos+12 > meta.end() {
		return pos
	}
	switch string(buf[pos+4 : pos+8]) {
	case "hdlr", "ilst", "mhdr", "ctry", "lang", "free":
		// Plain (non-full) meta: children start immediately.
		return pos
	}
	return pos + 4
}

// booleanAtoms collapse their integer payload to a flag.
var booleanAtoms = map[string]bool{
	"cpil": true, "hdvd": true, "pcst": true, "pgap": true, "shwm": true,
}

// Flag reads one of the iTunes boolean atoms (cpil, hdvd, pcst, pgap,
// shwm). The second return reports whether the atom was present with a
// usable payload.
func (l *Ilst) Flag(fourcc string) (bool, bool) {
	if !booleanAtoms[fourcc] {
		return false, false
	}
	a := l.Atom(fourcc)
	if a == nil || len(a.Data) == 0 {
		return false, false
	}
	return a.Data[0].Bool()
}

// parseIlst decodes the children of an ilst payload.
func parseIlst(buf []byte, start, end int64, opts ParseOptions) (*Ilst, error) {
	items, err := parseAtomsBuf(buf, start, end)
	if err != nil {
		return nil, err
	}

	l := &Ilst{}
	for _, item := range items {
		a := IlstAtom{Ident: AtomIdent{Fourcc: item.name}}
		childStart := item.start + item.headerLen()

		children, err := parseAtomsBuf(buf, childStart, item.end())
		if err != nil {
			if opts.Mode == Strict {
				return nil, err
			}
			continue
		}

		for _, c := range children {
			body := buf[c.start+c.headerLen() : c.end()]
			switch c.name {
			case "mean":
				if len(body) >= 4 {
					a.Ident.Mean = string(body[4:])
				}
			case "name":
				if len(body) >= 4 {
					a.Ident.Name = string(body[4:])
				}
			case "data":
				if len(body) < 8 {
					if opts.Mode == Strict {
						return nil, wrapErr(ErrBadAtom, "%q: data atom too short", item.name)
					}
					continue
				}
				a.Data = append(a.Data, AtomData{
					Type:   DataType(binary.BigEndian.Uint32(body[0:4]) & 0x00FFFFFF),
					Locale: binary.BigEndian.Uint32(body[4:8]),
					Data:   body[8:],
				})
			}
		}

		if item.name == "----" && !a.Ident.Freeform() {
			if opts.Mode == Strict {
				return nil, wrapErr(ErrBadAtom, "freeform atom missing mean/name")
			}
			continue
		}
		if a.Ident.Freeform() {
			// Freeform idents are keyed by mean and name alone.
			a.Ident.Fourcc = ""
		}
		if len(a.Data) == 0 {
			continue
		}

		// gnre carries an ID3v1 genre index plus one; upgrade it to a
		// textual ©gen atom.
		if item.name == "gnre" {
			if idx, ok := a.Data[0].Int(); ok && idx >= 1 && int(idx) <= len(id3v1Genres) {
				l.Atoms = append(l.Atoms, IlstAtom{
					Ident: AtomIdent{Fourcc: "\xa9gen"},
					Data:  []AtomData{{Type: TypeUTF8, Data: []byte(id3v1Genres[idx-1])}},
				})
				continue
			}
		}
		l.Atoms = append(l.Atoms, a)
	}
	return l, nil
}

// ilstBytes serialises the item list back to a complete ilst atom.
func ilstBytes(l *Ilst) []byte {
	if l == nil || len(l.Atoms) == 0 {
		return nil
	}

	child := &bytes.Buffer{}
	for _, a := range l.Atoms {
		item := &bytes.Buffer{}
		if a.Ident.Freeform() {
			writeChildAtom(item, "mean", append(make([]byte, 4), a.Ident.Mean...))
			writeChildAtom(item, "name", append(make([]byte, 4), a.Ident.Name...))
		}
		for _, d := range a.Data {
			body := make([]byte, 8, 8+len(d.Data))
			binary.BigEndian.PutUint32(body[0:4], uint32(d.Type))
			binary.BigEndian.PutUint32(body[4:8], d.Locale)
			body = append(body, d.Data...)
			writeChildAtom(item, "data", body)
		}

		name := a.Ident.Fourcc
		if a.Ident.Freeform() {
			name = "----"
		}
		writeChildAtom(child, name, item.Bytes())
	}

	out := &bytes.Buffer{}
	writeChildAtom(out, "ilst", child.Bytes())
	return out.Bytes()
}

func writeChildAtom(w *bytes.Buffer, name string, body []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(body)+atomHeaderLen))
	copy(hdr[4:8], name)
	w.Write(hdr[:])
	w.Write(body)
}

// MP4Properties is the Properties superset for MP4 files.
type MP4Properties struct {
	Properties
	Codec     string // "AAC", "ALAC" or the sample entry FOURCC
	Timescale uint32
}

// readMP4Properties derives the stream attributes from mvhd and the
// first audio sample entry.
func readMP4Properties(buf []byte, moov *atomInfo) (*MP4Properties, error) {
	p := &MP4Properties{}

	mvhd, err := findAtomBuf(buf, moov.start+moov.headerLen(), moov.end(), "mvhd")
	if err != nil {
		return nil, err
	}
	if mvhd != nil {
		body := buf[mvhd.start+mvhd.headerLen() : mvhd.end()]
		if len(body) >= 4 {
			var timescale uint32
			var duration uint64
			if body[0] == 1 && len(body) >= 28 {
				timescale = binary.BigEndian.Uint32(body[20:24])
				duration = binary.BigEndian.Uint64(body[24:32])
			} else if len(body) >= 24 {
				timescale = binary.BigEndian.Uint32(body[12:16])
				duration = uint64(binary.BigEndian.Uint32(body[16:20]))
			}
			p.Timescale = timescale
			if timescale > 0 {
				p.Duration = time.Duration(duration * uint64(time.Second) / uint64(timescale))
			}
		}
	}

	// Locate the first audio sample entry:
	// moov.trak.mdia.minf.stbl.stsd.
	stsd := descend(buf, moov, "trak", "mdia", "minf", "stbl", "stsd")
	if stsd != nil {
		body := buf[stsd.start+stsd.headerLen() : stsd.end()]
		// version/flags (4) + entry count (4), then sample entries.
		if len(body) >= 16 {
			entry := body[8:]
			fourcc := string(entry[4:8])
			switch fourcc {
			case "mp4a":
				p.Codec = "AAC"
			case "alac":
				p.Codec = "ALAC"
			default:
				p.Codec = fourcc
			}
			// AudioSampleEntry: 8 header + 8 reserved + version(2) +
			// revision(2) + vendor(4) + channels(2) + bit depth(2) +
			// predefined(2) + reserved(2) + sample rate (16.16).
			if len(entry) >= 36 {
				p.Channels = uint8(binary.BigEndian.Uint16(entry[24:26]))
				p.BitDepth = uint8(binary.BigEndian.Uint16(entry[26:28]))
				p.SampleRate = binary.BigEndian.Uint32(entry[32:36]) >> 16
			}
			if avg := esdsAvgBitrate(entry); avg > 0 {
				p.AudioBitrate = avg / 1000
			}
		}
	}

	if p.AudioBitrate == 0 && p.Duration > 0 {
		p.AudioBitrate = overallBitrate(uint64(len(buf)), p.Duration)
	}
	p.OverallBitrate = overallBitrate(uint64(len(buf)), p.Duration)
	return p, nil
}

// descend follows a chain of first-matching children from parent.
func descend(buf []byte, parent *atomInfo, names ...string) *atomInfo {
	cur := parent
	for _, name := range names {
		start := cur.start + cur.headerLen()
		next, err := findAtomBuf(buf, start, cur.end(), name)
		if err != nil || next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// esdsAvgBitrate digs the average bitrate out of an esds decoder config
// descriptor, if the sample entry carries one.
func esdsAvgBitrate(entry []byte) uint32 {
	i := bytes.Index(entry, []byte("esds"))
	if i < 0 || i+8 > len(entry) {
		return 0
	}
	// version/flags, then descriptors: tag 0x03 (ES), nested tag 0x04
	// (DecoderConfig) whose payload carries avgBitrate at offset 9.
	d := entry[i+8:]
	for len(d) > 1 {
		dtag := d[0]
		d = d[1:]
		// Expandable length: 1-4 bytes of 7-bit chunks.
		var size int
		for n := 0; n < 4 && len(d) > 0; n++ {
			size = size<<7 | int(d[0]&0x7F)
			more := d[0]&0x80 != 0
			d = d[1:]
			if !more {
				break
			}
		}
		switch dtag {
		case 0x03:
			// ES descriptor: ES_ID(2) + flags(1), then nested.
			if len(d) < 3 {
				return 0
			}
			d = d[3:]
		case 0x04:
			if len(d) < 13 || size < 13 {
				return 0
			}
			return binary.BigEndian.Uint32(d[9:13])
		default:
			if size > len(d) {
				return 0
			}
			d = d[size:]
		}
	}
	return 0
}

// metadataMP4 is the implementation of Metadata for MP4 tag (atom) data.
type metadataMP4 struct {
	fileType FileType
	ilst     *Ilst
	props    *MP4Properties
}

// ReadAtoms reads MP4 metadata atoms from the io.ReadSeeker into a Metadata,
// returning non-nil error if there was a problem.
func ReadAtoms(r io.ReadSeeker) (Metadata, error) {
	return ReadAtomsOptions(r, ParseOptions{}.Defaults())
}

// ReadAtomsOptions is ReadAtoms with explicit ParseOptions.
func ReadAtomsOptions(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// Random-access edits and offset math need the whole atom tree;
	// buffer the file.
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m := &metadataMP4{fileType: MP4T, ilst: &Ilst{}}

	ftyp, err := findAtomBuf(buf, 0, int64(len(buf)), "ftyp")
	if err != nil {
		return nil, err
	}
	if ftyp == nil {
		return nil, wrapErr(ErrBadMagic, "no ftyp atom")
	}

	moov, err := findAtomBuf(buf, 0, int64(len(buf)), "moov")
	if err != nil {
		return nil, err
	}
	if moov == nil {
		return nil, wrapErr(ErrBadAtom, "no moov atom")
	}

	if opts.ReadProperties {
		if p, err := readMP4Properties(buf, moov); err == nil {
			m.props = p
		}
	}

	if !opts.ReadTags {
		return m, nil
	}

	udta, err := findAtomBuf(buf, moov.start+moov.headerLen(), moov.end(), "udta")
	if err != nil || udta == nil {
		return m, err
	}
	meta, err := findAtomBuf(buf, udta.start+udta.headerLen(), udta.end(), "meta")
	if err != nil || meta == nil {
		return m, err
	}
	ilst, err := findAtomBuf(buf, metaChildrenStart(buf, meta), meta.end(), "ilst")
	if err != nil || ilst == nil {
		return m, err
	}

	l, err := parseIlst(buf, ilst.start+ilst.headerLen(), ilst.end(), opts)
	if err != nil {
		return nil, err
	}
	m.ilst = l
	return m, nil
}

func (m *metadataMP4) Format() Format     { return MP4 }
func (m *metadataMP4) FileType() FileType { return m.fileType }

// Ilst exposes the underlying structured item list.
func (m *metadataMP4) Ilst() *Ilst { return m.ilst }

func (m *metadataMP4) Properties() Properties {
	if m.props == nil {
		return Properties{}
	}
	return m.props.Properties
}

func (m *metadataMP4) Raw() map[string]interface{} {
	raw := make(map[string]interface{}, len(m.ilst.Atoms))
	for _, a := range m.ilst.Atoms {
		if len(a.Data) == 0 {
			continue
		}
		d := a.Data[0]
		if s, ok := d.String(); ok {
			raw[a.Ident.String()] = s
		} else if v, ok := d.Int(); ok {
			raw[a.Ident.String()] = int(v)
		} else {
			raw[a.Ident.String()] = d.Data
		}
	}
	return raw
}

func (m *metadataMP4) text(fourcc string) string {
	a := m.ilst.Atom(fourcc)
	if a == nil || len(a.Data) == 0 {
		return ""
	}
	s, _ := a.Data[0].String()
	return s
}

func (m *metadataMP4) Title() string       { return m.text("\xa9nam") }
func (m *metadataMP4) Album() string       { return m.text("\xa9alb") }
func (m *metadataMP4) AlbumArtist() string { return m.text("aART") }
func (m *metadataMP4) Composer() string    { return m.text("\xa9wrt") }
func (m *metadataMP4) Lyrics() string      { return m.text("\xa9lyr") }
func (m *metadataMP4) Comment() string     { return m.text("\xa9cmt") }

func (m *metadataMP4) Artist() string {
	if s := m.text("\xa9art"); s != "" {
		return s
	}
	return m.text("\xa9ART")
}

func (m *metadataMP4) Genre() string {
	return m.text("\xa9gen")
}

func (m *metadataMP4) Year() int {
	date := m.text("\xa9day")
	if len(date) >= 4 {
		year, _ := strconv.Atoi(date[:4])
		return year
	}
	return 0
}

func (m *metadataMP4) pair(fourcc string) (int, int) {
	a := m.ilst.Atom(fourcc)
	if a == nil || len(a.Data) == 0 {
		return 0, 0
	}
	b := a.Data[0].Data
	if len(b) < 6 {
		return 0, 0
	}
	return int(binary.BigEndian.Uint16(b[2:4])), int(binary.BigEndian.Uint16(b[4:6]))
}

func (m *metadataMP4) Track() (int, int) { return m.pair("trkn") }
func (m *metadataMP4) Disc() (int, int)  { return m.pair("disk") }

func (m *metadataMP4) Picture() *Picture {
	a := m.ilst.Atom("covr")
	if a == nil || len(a.Data) == 0 {
		return nil
	}
	d := a.Data[0]

	mime := ""
	switch d.Type {
	case TypeJPEG:
		mime = "image/jpeg"
	case TypePNG:
		mime = "image/png"
	case TypeBMP:
		mime = "image/bmp"
	default:
		mime, _ = sniffMIME(d.Data)
	}
	return &Picture{
		Ext:      extForMIME(mime),
		MIMEType: mime,
		Type:     PictureCoverFront,
		Data:     d.Data,
	}
}

// NewTextAtom builds a UTF-8 text item for the given FOURCC.
func NewTextAtom(fourcc, value string) IlstAtom {
	return IlstAtom{
		Ident: AtomIdent{Fourcc: fourcc},
		Data:  []AtomData{{Type: TypeUTF8, Data: []byte(value)}},
	}
}

// NewFreeformAtom builds a UTF-8 freeform ("----") item.
func NewFreeformAtom(mean, name, value string) IlstAtom {
	return IlstAtom{
		Ident: AtomIdent{Mean: mean, Name: name},
		Data:  []AtomData{{Type: TypeUTF8, Data: []byte(value)}},
	}
}

// NewPairAtom builds a trkn/disk style n-of-total item.
func NewPairAtom(fourcc string, n, total int) IlstAtom {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[2:4], uint16(n))
	binary.BigEndian.PutUint16(b[4:6], uint16(total))
	return IlstAtom{
		Ident: AtomIdent{Fourcc: fourcc},
		Data:  []AtomData{{Type: TypeImplicit, Data: b}},
	}
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"
)

// OGG page header type flags.
// See https://www.xiph.org/ogg/doc/framing.html.
const (
	oggContinuedPacket = 0x01
	oggFirstPage       = 0x02 // bos
	oggLastPage        = 0x04 // eos
)

// oggMaxPageContent caps the content bytes emitted per page: 255
// segments of at most 255 bytes each.
const (
	oggMaxSegments    = 255
	oggMaxPageContent = 255 * 255
)

// oggPage is a parsed page: header fields, the segment table and the
// content bytes.
type oggPage struct {
	start      int64
	headerType byte
	abgp       uint64
	serial     uint32
	sequence   uint32
	segments   []byte
	content    []byte
}

func (p *oggPage) size() int64 {
	return int64(27 + len(p.segments) + len(p.content))
}

// completesPacket reports whether the final packet on the page
// terminates (last segment < 255).
func (p *oggPage) completesPacket() bool {
	return len(p.segments) > 0 && p.segments[len(p.segments)-1] < 255
}

// oggCRCTable is the page checksum table: polynomial 0x04C11DB7,
// zero-initialised, no final XOR.
var oggCRCTable [256]uint32

func init() {
	for i := range oggCRCTable {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04C11DB7
			} else {
				r <<= 1
			}
		}
		oggCRCTable[i] = r
	}
}

func oggCRC(b []byte) uint32 {
	var crc uint32
	for _, x := range b {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^x]
	}
	return crc
}

// readOGGPage parses one page starting at the current position.
func readOGGPage(r io.ReadSeeker) (*oggPage, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	hdr, err := readBytes(r, 27)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "OggS" {
		return nil, wrapErr(ErrBadMagic, "expected 'OggS' at offset %d", start)
	}
	if hdr[4] != 0 {
		return nil, wrapErr(ErrUnsupportedFormat, "OGG page version %d", hdr[4])
	}

	p := &oggPage{
		start:      start,
		headerType: hdr[5],
		abgp:       binary.LittleEndian.Uint64(hdr[6:14]),
		serial:     binary.LittleEndian.Uint32(hdr[14:18]),
		sequence:   binary.LittleEndian.Uint32(hdr[18:22]),
	}

	nSegs := int(hdr[26])
	p.segments, err = readBytes(r, uint(nSegs))
	if err != nil {
		return nil, err
	}

	contentLen := 0
	for _, s := range p.segments {
		contentLen += int(s)
	}
	p.content, err = readBytes(r, uint(contentLen))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// appendOGGPage emits the page with a freshly computed checksum.
func appendOGGPage(dst []byte, p *oggPage) []byte {
	base := len(dst)
	dst = append(dst, "OggS"...)
	dst = append(dst, 0, p.headerType)
	dst = binary.LittleEndian.AppendUint64(dst, p.abgp)
	dst = binary.LittleEndian.AppendUint32(dst, p.serial)
	dst = binary.LittleEndian.AppendUint32(dst, p.sequence)
	dst = append(dst, 0, 0, 0, 0) // crc, patched below
	dst = append(dst, byte(len(p.segments)))
	dst = append(dst, p.segments...)
	dst = append(dst, p.content...)

	crc := oggCRC(dst[base:])
	binary.LittleEndian.PutUint32(dst[base+22:base+26], crc)
	return dst
}

// segmentTable produces the lacing values for a packet of n bytes.
// A packet whose length is a multiple of 255 terminates with a zero
// lacing value.
func segmentTable(n int) []byte {
	segs := make([]byte, 0, n/255+1)
	for n >= 255 {
		segs = append(segs, 255)
		n -= 255
	}
	return append(segs, byte(n))
}

// paginatePackets lays the packets out over fresh pages. Pages carry at
// most 255 segments; abgp is set only on pages where a packet
// terminates, all others carry ^uint64(0). firstFlags is OR-ed into the
// first page's header type (bos), lastFlags into the final page (eos).
func paginatePackets(packets [][]byte, serial uint32, firstSeq uint32, abgp uint64, firstFlags, lastFlags byte) []*oggPage {
	var pages []*oggPage

	cur := &oggPage{serial: serial, abgp: ^uint64(0)}
	flush := func() {
		pages = append(pages, cur)
		cur = &oggPage{serial: serial, abgp: ^uint64(0)}
	}

	for _, packet := range packets {
		segs := segmentTable(len(packet))
		content := packet

		for i, s := range segs {
			if len(cur.segments) == oggMaxSegments {
				flush()
				if i > 0 {
					// The page break fell inside this packet.
					cur.headerType |= oggContinuedPacket
				}
			}
			cur.segments = append(cur.segments, s)
			take := int(s)
			if take > len(content) {
				take = len(content)
			}
			cur.content = append(cur.content, content[:take]...)
			content = content[take:]

			if i == len(segs)-1 {
				// Packet ends on this page.
				cur.abgp = abgp
			}
		}
	}
	if len(cur.segments) > 0 || len(pages) == 0 {
		flush()
	}

	for i, p := range pages {
		p.sequence = firstSeq + uint32(i)
	}
	pages[0].headerType |= firstFlags
	pages[len(pages)-1].headerType |= lastFlags
	return pages
}

// packetsFromPages reassembles the packet stream carried by pages; a
// segment below 255 terminates the current packet. The final packet is
// returned even when unterminated.
func packetsFromPages(pages []*oggPage) [][]byte {
	var packets [][]byte
	var cur []byte
	for _, p := range pages {
		content := p.content
		for _, s := range p.segments {
			take := int(s)
			if take > len(content) {
				take = len(content)
			}
			cur = append(cur, content[:take]...)
			content = content[take:]
			if s < 255 {
				packets = append(packets, cur)
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		packets = append(packets, cur)
	}
	return packets
}

// OGG codec header magics.
var (
	vorbisIDMagic      = []byte("\x01vorbis")
	vorbisCommentMagic = []byte("\x03vorbis")
	opusHeadMagic      = []byte("OpusHead")
	opusTagsMagic      = []byte("OpusTags")
	speexHeadMagic     = []byte("Speex   ")
)

// OGGProperties is the Properties superset for OGG streams.
type OGGProperties struct {
	Properties
	Codec   FileType // OGG (Vorbis), OPUS or SPEEX
	Version uint32
}

// metadataOGG is the Metadata implementation for OGG streams.
type metadataOGG struct {
	*metadataVorbis
	fileType FileType
	oggProps *OGGProperties
}

func (m *metadataOGG) FileType() FileType { return m.fileType }

func (m *metadataOGG) Properties() Properties {
	if m.oggProps == nil {
		return Properties{}
	}
	return m.oggProps.Properties
}

// ReadOGGTags reads OGG metadata from the io.ReadSeeker, returning the
// resulting metadata in a Metadata implementation, or non-nil error if
// there was a problem.
// See http://www.xiph.org/vorbis/doc/Vorbis_I_spec.html
// and http://www.xiph.org/ogg/doc/framing.html for details.
func ReadOGGTags(r io.ReadSeeker) (Metadata, error) {
	return ReadOGGTagsOptions(r, ParseOptions{}.Defaults())
}

// ReadOGGTagsOptions is ReadOGGTags with explicit ParseOptions.
func ReadOGGTagsOptions(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	idPage, err := readOGGPage(r)
	if err != nil {
		return nil, err
	}
	idPacket := packetsFromPages([]*oggPage{idPage})
	if len(idPacket) == 0 {
		return nil, wrapErr(ErrFakeTag, "empty identification page")
	}

	m := &metadataOGG{metadataVorbis: newMetadataVorbis(), fileType: OGG}

	id := idPacket[0]
	p := &OGGProperties{Codec: OGG}
	var preSkip uint16
	switch {
	case bytes.HasPrefix(id, vorbisIDMagic):
		// version u32, channels u8, sample rate u32, bitrates i32 x3.
		if len(id) >= 28 {
			p.Version = binary.LittleEndian.Uint32(id[7:11])
			p.Channels = id[11]
			p.SampleRate = binary.LittleEndian.Uint32(id[12:16])
			p.AudioBitrate = binary.LittleEndian.Uint32(id[20:24]) / 1000
		}

	case bytes.HasPrefix(id, opusHeadMagic):
		m.fileType = OPUS
		p.Codec = OPUS
		if len(id) >= 19 {
			p.Version = uint32(id[8])
			p.Channels = id[9]
			preSkip = binary.LittleEndian.Uint16(id[10:12])
			p.SampleRate = binary.LittleEndian.Uint32(id[12:16])
		}

	case bytes.HasPrefix(id, speexHeadMagic):
		m.fileType = SPEEX
		p.Codec = SPEEX
		if len(id) >= 60 {
			p.SampleRate = binary.LittleEndian.Uint32(id[36:40])
			p.Channels = uint8(binary.LittleEndian.Uint32(id[48:52]))
			p.AudioBitrate = binary.LittleEndian.Uint32(id[52:56]) / 1000
		}

	default:
		return nil, wrapErr(ErrUnsupportedFormat, "unknown OGG codec")
	}

	// Collect header pages until the comment packet terminates.
	pages := []*oggPage{}
	for {
		pg, err := readOGGPage(r)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pg)
		if pg.completesPacket() {
			break
		}
	}

	packets := packetsFromPages(pages)
	if len(packets) == 0 {
		return nil, wrapErr(ErrFakeTag, "no comment packet")
	}
	comment := packets[0]

	switch m.fileType {
	case OGG:
		if !bytes.HasPrefix(comment, vorbisCommentMagic) {
			return nil, wrapErr(ErrFakeTag, "expected vorbis comment header type 3")
		}
		comment = comment[7:]
	case OPUS:
		if !bytes.HasPrefix(comment, opusTagsMagic) {
			return nil, wrapErr(ErrFakeTag, "expected OpusTags packet")
		}
		comment = comment[8:]
	case SPEEX:
		// Speex comment packets carry the bare comment structure.
	}

	if opts.ReadTags {
		c, err := parseVorbisComments(bytes.NewReader(comment), opts)
		if err != nil {
			return nil, err
		}
		m.c = c
	}

	if opts.ReadProperties {
		if g, ok := lastGranule(r, idPage.serial); ok && p.SampleRate > 0 {
			switch m.fileType {
			case OPUS:
				// Opus granules always tick at 48 kHz.
				g -= uint64(preSkip)
				p.Duration = time.Duration(g * uint64(time.Second) / 48000)
			default:
				p.Duration = time.Duration(g * uint64(time.Second) / uint64(p.SampleRate))
			}
		}
		if end, err := r.Seek(0, io.SeekEnd); err == nil {
			p.OverallBitrate = overallBitrate(uint64(end), p.Duration)
			if p.AudioBitrate == 0 {
				p.AudioBitrate = p.OverallBitrate
			}
		}
		m.oggProps = p
	}
	return m, nil
}

// lastGranule scans backwards from EOF for the final page of the
// bitstream and returns its absolute granule position.
func lastGranule(r io.ReadSeeker, serial uint32) (uint64, bool) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}

	const window = 64 * 1024
	size := int64(window)
	if size > end {
		size = end
	}
	if _, err := r.Seek(end-size, io.SeekStart); err != nil {
		return 0, false
	}
	buf, err := readBytes(r, uint(size))
	if err != nil {
		return 0, false
	}

	for i := len(buf) - 27; i >= 0; i-- {
		if string(buf[i:i+4]) != "OggS" {
			continue
		}
		if binary.LittleEndian.Uint32(buf[i+14:i+18]) != serial {
			continue
		}
		abgp := binary.LittleEndian.Uint64(buf[i+6 : i+14])
		if abgp == ^uint64(0) {
			continue
		}
		return abgp, true
	}
	return 0, false
}

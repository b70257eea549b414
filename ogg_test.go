package tag

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildVorbisID produces a minimal Vorbis identification packet:
// 44100 Hz, 2 channels, 128 kbps nominal.
func buildVorbisID() []byte {
	p := make([]byte, 30)
	copy(p, "\x01vorbis")
	binary.LittleEndian.PutUint32(p[7:11], 0) // version
	p[11] = 2
	binary.LittleEndian.PutUint32(p[12:16], 44100)
	binary.LittleEndian.PutUint32(p[20:24], 128000)
	p[29] = 0x01 // framing
	return p
}

func buildVorbisComment(c *VorbisComments) []byte {
	p := append([]byte{}, vorbisCommentMagic...)
	p = appendVorbisComments(p, c, true)
	return append(p, 0x01)
}

// buildVorbisFile assembles identification, comment and setup packets
// plus one audio page.
func buildVorbisFile(c *VorbisComments, setup []byte) []byte {
	const serial = 0xBEEF

	var out []byte
	idPages := paginatePackets([][]byte{buildVorbisID()}, serial, 0, 0, oggFirstPage, 0)
	for _, p := range idPages {
		out = appendOGGPage(out, p)
	}

	hdrPages := paginatePackets([][]byte{buildVorbisComment(c), setup}, serial, 1, 0, 0, 0)
	for _, p := range hdrPages {
		out = appendOGGPage(out, p)
	}

	audio := paginatePackets([][]byte{bytes.Repeat([]byte{0x5A}, 100)}, serial,
		hdrPages[len(hdrPages)-1].sequence+1, 44100, 0, oggLastPage)
	for _, p := range audio {
		out = appendOGGPage(out, p)
	}
	return out
}

func defaultSetupPacket() []byte {
	p := append([]byte{}, "\x05vorbis"...)
	return append(p, bytes.Repeat([]byte{0x33}, 64)...)
}

func TestOGGCRC(t *testing.T) {
	// CRC over the page with a zeroed checksum field must equal the
	// stored checksum after appendOGGPage.
	page := &oggPage{serial: 1, sequence: 0, abgp: 0, segments: []byte{4}, content: []byte("test")}
	b := appendOGGPage(nil, page)

	stored := binary.LittleEndian.Uint32(b[22:26])
	zeroed := append([]byte{}, b...)
	zeroed[22], zeroed[23], zeroed[24], zeroed[25] = 0, 0, 0, 0
	if got := oggCRC(zeroed); got != stored {
		t.Errorf("stored CRC %#x, recomputed %#x", stored, got)
	}
}

func TestSegmentTable(t *testing.T) {
	tests := []struct {
		n    int
		segs []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{254, []byte{254}},
		{255, []byte{255, 0}},
		{256, []byte{255, 1}},
		{510, []byte{255, 255, 0}},
	}
	for _, tt := range tests {
		got := segmentTable(tt.n)
		if !bytes.Equal(got, tt.segs) {
			t.Errorf("segmentTable(%d) = %v, expected %v", tt.n, got, tt.segs)
		}
	}
}

func TestPaginatePackets(t *testing.T) {
	// A packet spanning multiple pages: only the final page carries the
	// real granule position.
	big := bytes.Repeat([]byte{0xAB}, oggMaxPageContent+100)
	pages := paginatePackets([][]byte{big}, 7, 0, 999, oggFirstPage, oggLastPage)

	if len(pages) != 2 {
		t.Fatalf("got %d pages, expected 2", len(pages))
	}
	if pages[0].abgp != ^uint64(0) {
		t.Errorf("page 0 abgp = %#x, expected ^0", pages[0].abgp)
	}
	if pages[1].abgp != 999 {
		t.Errorf("page 1 abgp = %d, expected 999", pages[1].abgp)
	}
	if pages[0].headerType&oggFirstPage == 0 {
		t.Errorf("page 0 missing bos flag")
	}
	if pages[1].headerType&oggContinuedPacket == 0 {
		t.Errorf("page 1 missing continued flag")
	}
	if pages[1].headerType&oggLastPage == 0 {
		t.Errorf("page 1 missing eos flag")
	}
	if len(pages[0].segments) != oggMaxSegments {
		t.Errorf("page 0 has %d segments", len(pages[0].segments))
	}

	// Reassembly returns the original packet.
	packets := packetsFromPages(pages)
	if len(packets) != 1 || !bytes.Equal(packets[0], big) {
		t.Errorf("reassembly failed: %d packets", len(packets))
	}
}

func TestReadOGGTags(t *testing.T) {
	c := &VorbisComments{Vendor: "test vendor"}
	c.Add("TITLE", "Test Title")
	c.Add("ARTIST", "Test Artist")
	file := buildVorbisFile(c, defaultSetupPacket())

	m, err := ReadOGGTags(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("ReadOGGTags returned error: %v", err)
	}
	if m.FileType() != OGG {
		t.Errorf("FileType() = %v", m.FileType())
	}
	if m.Title() != "Test Title" {
		t.Errorf("Title() = %q", m.Title())
	}
	if m.Artist() != "Test Artist" {
		t.Errorf("Artist() = %q", m.Artist())
	}

	p := m.(*metadataOGG).oggProps
	if p == nil {
		t.Fatalf("no properties")
	}
	if p.SampleRate != 44100 || p.Channels != 2 {
		t.Errorf("properties = %+v", p)
	}
	// Final granule 44100 at 44100 Hz -> 1s.
	if p.Duration.Seconds() != 1 {
		t.Errorf("Duration = %v", p.Duration)
	}
}

func TestWriteOGGCommentsGrow(t *testing.T) {
	small := &VorbisComments{Vendor: "vendor12"}
	setup := defaultSetupPacket()
	file := buildVorbisFile(small, setup)

	idPageLen := 27 + 1 + len(buildVorbisID())

	f := newMemFile(file)
	grown := &VorbisComments{Vendor: "vendor12"}
	grown.Add("COMMENT", string(bytes.Repeat([]byte{'c'}, 4096)))
	if err := WriteOGGComments(f, grown, WriteOptions{}); err != nil {
		t.Fatalf("WriteOGGComments returned error: %v", err)
	}

	// The identification page is bit-identical.
	if !bytes.Equal(f.buf[:idPageLen], file[:idPageLen]) {
		t.Errorf("identification page changed")
	}

	// Walk every page: magic, contiguous sequence numbers, valid CRC.
	r := newMemFile(f.buf)
	var pages []*oggPage
	for {
		pg, err := readOGGPage(r)
		if err != nil {
			break
		}
		pages = append(pages, pg)
	}
	if len(pages) < 3 {
		t.Fatalf("only %d pages", len(pages))
	}
	for i, pg := range pages {
		if pg.sequence != uint32(i) {
			t.Errorf("page %d has sequence %d", i, pg.sequence)
		}
		start := pg.start
		end := start + pg.size()
		raw := append([]byte{}, f.buf[start:end]...)
		stored := binary.LittleEndian.Uint32(raw[22:26])
		raw[22], raw[23], raw[24], raw[25] = 0, 0, 0, 0
		if got := oggCRC(raw); got != stored {
			t.Errorf("page %d CRC mismatch: stored %#x, computed %#x", i, stored, got)
		}
	}

	// The grown comment reads back intact.
	m, err := ReadOGGTags(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("re-read returned error: %v", err)
	}
	if len(m.(*metadataOGG).Comments().Get("COMMENT")) != 4096 {
		t.Errorf("comment not preserved")
	}

	// The setup packet rode along byte for byte.
	hdrPackets := packetsFromPages(pages[1:])
	found := false
	for _, p := range hdrPackets {
		if bytes.Equal(p, setup) {
			found = true
		}
	}
	if !found {
		t.Errorf("setup packet not preserved")
	}
}

func TestIdentifyOGGCodecs(t *testing.T) {
	opus := make([]byte, 19)
	copy(opus, "OpusHead")
	opus[8] = 1
	opus[9] = 2
	binary.LittleEndian.PutUint16(opus[10:12], 312)
	binary.LittleEndian.PutUint32(opus[12:16], 48000)

	pages := paginatePackets([][]byte{opus}, 1, 0, 0, oggFirstPage, 0)
	var buf []byte
	for _, p := range pages {
		buf = appendOGGPage(buf, p)
	}

	ft, err := Identify(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if ft != OPUS {
		t.Errorf("Identify = %v, expected OPUS", ft)
	}
}

package tag

import (
	"bytes"
	"testing"
)

// buildStreamInfo produces a STREAMINFO payload for 44100 Hz, 2
// channels, 16 bits, totalSamples samples.
func buildStreamInfo(totalSamples uint64) []byte {
	b := make([]byte, 34)
	b[0], b[1] = 0x10, 0x00 // min block size 4096
	b[2], b[3] = 0x10, 0x00
	// sample rate 44100 = 0xAC44: 20 bits.
	b[10] = 0x0A
	b[11] = 0xC4
	b[12] = 0x40       // low nibble of the sample rate
	b[12] |= 0x01 << 1 // channels - 1 = 1
	b[13] = 0xF0       // bits per sample - 1 = 15
	b[13] |= byte(totalSamples >> 32 & 0x0F)
	b[14] = byte(totalSamples >> 24)
	b[15] = byte(totalSamples >> 16)
	b[16] = byte(totalSamples >> 8)
	b[17] = byte(totalSamples)
	return b
}

func buildFLACFile(blocks []flacBlock) []byte {
	out := []byte("fLaC")
	out = append(out, renderFLACBlocks(blocks)...)
	return append(out, []byte("frame-data-follows")...)
}

func testFLACComments() []byte {
	c := &VorbisComments{Vendor: "test vendor"}
	c.Add("TITLE", "Test Title")
	c.Add("ARTIST", "Test Artist")
	c.Add("ALBUM", "Test Album")
	c.Add("TRACKNUMBER", "3")
	c.Add("TRACKTOTAL", "6")
	c.Add("GENRE", "Jazz")
	return appendVorbisComments(nil, c, false)
}

func TestParseStreamInfo(t *testing.T) {
	p, err := parseStreamInfo(buildStreamInfo(441000))
	if err != nil {
		t.Fatalf("parseStreamInfo returned error: %v", err)
	}
	if p.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, expected 44100", p.SampleRate)
	}
	if p.Channels != 2 {
		t.Errorf("Channels = %d, expected 2", p.Channels)
	}
	if p.BitDepth != 16 {
		t.Errorf("BitDepth = %d, expected 16", p.BitDepth)
	}
	if p.TotalSamples != 441000 {
		t.Errorf("TotalSamples = %d, expected 441000", p.TotalSamples)
	}
	if p.Duration.Seconds() != 10 {
		t.Errorf("Duration = %v, expected 10s", p.Duration)
	}
}

func TestReadFLACTags(t *testing.T) {
	file := buildFLACFile([]flacBlock{
		{typ: StreamInfoBlock, content: buildStreamInfo(441000)},
		{typ: VorbisCommentBlock, content: testFLACComments()},
		{typ: PaddingBlock, content: make([]byte, 64)},
	})

	m, err := ReadFLACTags(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("ReadFLACTags returned error: %v", err)
	}
	if m.FileType() != FLAC {
		t.Errorf("FileType() = %v", m.FileType())
	}
	if m.Title() != "Test Title" {
		t.Errorf("Title() = %q", m.Title())
	}
	if m.Artist() != "Test Artist" {
		t.Errorf("Artist() = %q", m.Artist())
	}
	if track, total := m.Track(); track != 3 || total != 6 {
		t.Errorf("Track() = %d/%d", track, total)
	}

	flac := m.(*metadataFLAC)
	if flac.StreamInfo() == nil || flac.StreamInfo().TotalSamples != 441000 {
		t.Errorf("StreamInfo missing or wrong")
	}
	if flac.Comments().Vendor != "test vendor" {
		t.Errorf("Vendor = %q", flac.Comments().Vendor)
	}
}

func TestReadFLACTagsPicture(t *testing.T) {
	pic := &Picture{MIMEType: "image/png", Type: PictureCoverFront, Data: pngHeader}
	file := buildFLACFile([]flacBlock{
		{typ: StreamInfoBlock, content: buildStreamInfo(1000)},
		{typ: PictureBlock, content: flacPictureBytes(pic)},
	})

	m, err := ReadFLACTags(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("ReadFLACTags returned error: %v", err)
	}
	got := m.Picture()
	if got == nil {
		t.Fatalf("no picture")
	}
	if got.MIMEType != "image/png" || !bytes.Equal(got.Data, pngHeader) {
		t.Errorf("picture = %v", got)
	}
}

func TestWriteFLACComments(t *testing.T) {
	seektable := bytes.Repeat([]byte{0x11}, 36)
	file := buildFLACFile([]flacBlock{
		{typ: StreamInfoBlock, content: buildStreamInfo(441000)},
		{typ: SeektableBlock, content: seektable},
		{typ: VorbisCommentBlock, content: testFLACComments()},
		{typ: PaddingBlock, content: make([]byte, 256)},
	})

	f := newMemFile(file)
	c := &VorbisComments{Vendor: "test vendor"}
	c.Add("TITLE", "New Title")
	if err := WriteFLACComments(f, c, WriteOptions{}); err != nil {
		t.Fatalf("WriteFLACComments returned error: %v", err)
	}

	// The new chain fits the old one: same file length, audio frames
	// unchanged, STREAMINFO and SEEKTABLE preserved byte for byte.
	if len(f.buf) != len(file) {
		t.Errorf("file size changed: %d -> %d", len(file), len(f.buf))
	}
	if !bytes.HasSuffix(f.buf, []byte("frame-data-follows")) {
		t.Errorf("audio frames damaged")
	}
	if !bytes.Contains(f.buf, seektable) {
		t.Errorf("seektable not preserved")
	}
	if !bytes.Equal(f.buf[8:8+34], file[8:8+34]) {
		t.Errorf("STREAMINFO bytes changed")
	}

	m, err := ReadFLACTags(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("re-read returned error: %v", err)
	}
	if m.Title() != "New Title" {
		t.Errorf("Title() = %q", m.Title())
	}
}

func TestWriteFLACCommentsGrow(t *testing.T) {
	file := buildFLACFile([]flacBlock{
		{typ: StreamInfoBlock, content: buildStreamInfo(441000)},
		{typ: VorbisCommentBlock, content: testFLACComments()},
	})

	f := newMemFile(file)
	c := &VorbisComments{Vendor: "test vendor"}
	c.Add("LYRICS", string(bytes.Repeat([]byte{'x'}, 4096)))
	if err := WriteFLACComments(f, c, WriteOptions{}); err != nil {
		t.Fatalf("WriteFLACComments returned error: %v", err)
	}

	if !bytes.HasSuffix(f.buf, []byte("frame-data-follows")) {
		t.Errorf("audio frames damaged")
	}
	m, err := ReadFLACTags(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("re-read returned error: %v", err)
	}
	if len(m.(*metadataFLAC).Comments().Get("LYRICS")) != 4096 {
		t.Errorf("lyrics not preserved")
	}
}

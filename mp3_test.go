package tag

import (
	"bytes"
	"testing"
)

func TestParseMPEGHeader(t *testing.T) {
	// MPEG1 Layer III, 128 kbps, 44100 Hz, joint stereo.
	h, err := parseMPEGHeader([]byte{0xFF, 0xFB, 0x90, 0x40}, BestAttempt)
	if err != nil {
		t.Fatalf("parseMPEGHeader returned error: %v", err)
	}
	if h.Version != MPEGVersion1 {
		t.Errorf("Version = %v, expected 1", h.Version)
	}
	if h.Layer != MPEGLayerIII {
		t.Errorf("Layer = %v, expected III", h.Layer)
	}
	if h.Bitrate != 128 {
		t.Errorf("Bitrate = %d, expected 128", h.Bitrate)
	}
	if h.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, expected 44100", h.SampleRate)
	}
	if h.ChannelMode != JointStereo {
		t.Errorf("ChannelMode = %v, expected JointStereo", h.ChannelMode)
	}
	if h.Samples != 1152 {
		t.Errorf("Samples = %d, expected 1152", h.Samples)
	}
	// frame length = 1152/8 * 128000 / 44100 = 417
	if h.FrameLength != 417 {
		t.Errorf("FrameLength = %d, expected 417", h.FrameLength)
	}
}

func TestParseMPEGHeaderReserved(t *testing.T) {
	bad := [][]byte{
		{0xFF, 0xEB, 0x90, 0x40}, // reserved version
		{0xFF, 0xF9, 0x90, 0x40}, // reserved layer
		{0xFF, 0xFB, 0xF0, 0x40}, // bad bitrate index
		{0xFF, 0xFB, 0x9C, 0x40}, // reserved sample rate
		{0x00, 0x00, 0x00, 0x00}, // no sync
	}
	for ii, b := range bad {
		if _, err := parseMPEGHeader(b, BestAttempt); err == nil {
			t.Errorf("[%d] parseMPEGHeader(% x) did not fail", ii, b)
		}
	}
}

func TestSearchFrameSync(t *testing.T) {
	data := append(bytes.Repeat([]byte{0x20}, 10), 0xFF, 0xFB, 0x90, 0x40, 0x00)
	r := bytes.NewReader(data)

	hdr, off, err := searchFrameSync(r, 64)
	if err != nil {
		t.Fatalf("searchFrameSync returned error: %v", err)
	}
	if off != 10 {
		t.Errorf("offset = %d, expected 10", off)
	}
	if !bytes.Equal(hdr, []byte{0xFF, 0xFB, 0x90, 0x40}) {
		t.Errorf("header = % x", hdr)
	}
}

func TestSearchFrameSyncBounded(t *testing.T) {
	data := bytes.Repeat([]byte{0x20}, 64)
	if _, _, err := searchFrameSync(bytes.NewReader(data), 32); err == nil {
		t.Errorf("expected failure within junk limit")
	}
}

// buildCBRMP3 builds n identical MPEG1 Layer III 128kbps/44100 frames.
func buildCBRMP3(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x40})
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

func TestReadMPEGProperties(t *testing.T) {
	data := buildCBRMP3(50)
	r := bytes.NewReader(data)

	p, err := readMPEGProperties(r, ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("readMPEGProperties returned error: %v", err)
	}
	if p.AudioBitrate != 128 {
		t.Errorf("AudioBitrate = %d, expected 128", p.AudioBitrate)
	}
	if p.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, expected 44100", p.SampleRate)
	}
	if p.Channels != 2 {
		t.Errorf("Channels = %d, expected 2", p.Channels)
	}

	// 50 frames * 417 bytes * 8 bits / 128 kbps ~ 1.3s
	if p.Duration.Milliseconds() < 1200 || p.Duration.Milliseconds() > 1400 {
		t.Errorf("Duration = %v", p.Duration)
	}
}

func TestReadMPEGPropertiesXing(t *testing.T) {
	data := buildCBRMP3(2)
	// Xing header at side-info offset 32 for MPEG1 non-mono.
	copy(data[4+32:], "Xing")
	data[4+32+7] = 0x03 // frames + bytes present
	// 1000 frames, 417000 bytes.
	data[4+32+8+3] = 0xE8
	data[4+32+8+2] = 0x03
	data[4+32+12+0] = 0x00
	data[4+32+12+1] = 0x06
	data[4+32+12+2] = 0x5C
	data[4+32+12+3] = 0xE8

	p, err := readMPEGProperties(bytes.NewReader(data), ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("readMPEGProperties returned error: %v", err)
	}
	if p.Xing == nil || p.Xing.ID != "Xing" {
		t.Fatalf("Xing header not found")
	}
	if p.Xing.Frames != 1000 {
		t.Errorf("Frames = %d, expected 1000", p.Xing.Frames)
	}

	// 1000 frames * 1152 samples / 44100 Hz ~ 26.1s
	if p.Duration.Seconds() < 26 || p.Duration.Seconds() > 27 {
		t.Errorf("Duration = %v", p.Duration)
	}
}

func TestLocateAudioEndID3v1(t *testing.T) {
	audio := buildCBRMP3(2)
	file := append(append([]byte{}, audio...), buildID3v1("T", "A", "L", "2000", "C", 1, 8)...)

	end, err := locateAudioEnd(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("locateAudioEnd returned error: %v", err)
	}
	if end != int64(len(audio)) {
		t.Errorf("end = %d, expected %d", end, len(audio))
	}
}

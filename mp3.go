package tag

import (
	"encoding/binary"
	"io"
	"strconv"
	"time"
)

// Some documentation:
// https://www.codeproject.com/Articles/8295/MPEG-Audio-Frame-Header
// http://gabriel.mp3-tech.org/mp3infotag.html

// MPEGVersion is the MPEG audio version field of a frame header.
type MPEGVersion string

const (
	MPEGVersion1   MPEGVersion = "1"
	MPEGVersion2   MPEGVersion = "2"
	MPEGVersion2_5 MPEGVersion = "2.5"
)

// MPEGLayer is the layer field of a frame header.
type MPEGLayer string

const (
	MPEGLayerI   MPEGLayer = "I"
	MPEGLayerII  MPEGLayer = "II"
	MPEGLayerIII MPEGLayer = "III"
)

// ChannelMode is the channel mode field of a frame header.
type ChannelMode byte

const (
	Stereo ChannelMode = iota
	JointStereo
	DualChannel
	Mono
)

func (c ChannelMode) String() string {
	return [...]string{"Stereo", "Joint Stereo", "Dual Channel", "Mono"}[c&3]
}

var (
	mpegVersions = [4]MPEGVersion{MPEGVersion2_5, "", MPEGVersion2, MPEGVersion1}
	mpegLayers   = [4]MPEGLayer{"", MPEGLayerIII, MPEGLayerII, MPEGLayerI}

	mpegBitrates = map[string][16]int{
		"1I":     {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448},
		"1II":    {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},
		"1III":   {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},
		"2I":     {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
		"2II":    {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		"2III":   {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		"2.5I":   {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
		"2.5II":  {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		"2.5III": {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
	}

	mpegSampleRates = map[MPEGVersion][4]int{
		MPEGVersion1:   {44100, 48000, 32000, 0},
		MPEGVersion2:   {22050, 24000, 16000, 0},
		MPEGVersion2_5: {11025, 12000, 8000, 0},
	}
)

// MPEGHeader is a decoded 4-byte MPEG audio frame header.
type MPEGHeader struct {
	Version       MPEGVersion
	Layer         MPEGLayer
	Bitrate       int // kbps
	SampleRate    int // Hz
	Padding       bool
	HasCRC        bool
	ChannelMode   ChannelMode
	ModeExtension byte
	Copyright     bool
	Original      bool
	Emphasis      byte
	FrameLength   int
	Samples       int
}

// parseMPEGHeader decodes b as an MPEG frame header. Reserved field
// values return ErrBadFrame.
func parseMPEGHeader(b []byte, mode ParsingMode) (*MPEGHeader, error) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return nil, wrapErr(ErrBadFrame, "no frame sync")
	}

	verBits := b[1] & 0x18 >> 3
	layerBits := b[1] & 0x06 >> 1
	bitrateBits := b[2] & 0xF0 >> 4
	sampleBits := b[2] & 0x0C >> 2

	if verBits == 1 || layerBits == 0 || bitrateBits == 15 || sampleBits == 3 {
		return nil, wrapErr(ErrBadFrame, "reserved header value")
	}

	h := &MPEGHeader{
		Version:       mpegVersions[verBits],
		Layer:         mpegLayers[layerBits],
		Padding:       getBit(b[2], 1),
		HasCRC:        !getBit(b[1], 0),
		ChannelMode:   ChannelMode(b[3] & 0xC0 >> 6),
		ModeExtension: b[3] & 0x30 >> 4,
		Copyright:     getBit(b[3], 3),
		Original:      getBit(b[3], 2),
		Emphasis:      b[3] & 0x03,
	}

	h.Bitrate = mpegBitrates[string(h.Version)+string(h.Layer)][bitrateBits]
	h.SampleRate = mpegSampleRates[h.Version][sampleBits]
	if h.Bitrate == 0 || h.SampleRate == 0 {
		if mode == Strict || mode == BestAttempt {
			return nil, wrapErr(ErrBadFrame, "free bitrate or zero sample rate")
		}
		return h, nil
	}

	h.Samples = samplesPerFrame(h.Version, h.Layer)
	pad := 0
	if h.Padding {
		pad = 1
	}
	switch h.Layer {
	case MPEGLayerI:
		h.FrameLength = (12*h.Bitrate*1000/h.SampleRate + pad) * 4
	default:
		h.FrameLength = h.Samples/8*h.Bitrate*1000/h.SampleRate + pad
	}
	return h, nil
}

func samplesPerFrame(v MPEGVersion, l MPEGLayer) int {
	switch {
	case l == MPEGLayerI:
		return 384
	case l == MPEGLayerII:
		return 1152
	case v == MPEGVersion1:
		return 1152
	default:
		return 576
	}
}

// searchFrameSync scans forward for 11 set bits (0xFF then a byte with
// the top 3 bits set), bounded by maxBytes. On success it returns the
// first 4 header bytes and the sync offset relative to the starting
// position; the reader is left positioned immediately after those 4
// bytes.
func searchFrameSync(r io.ReadSeeker, maxBytes int) ([]byte, int64, error) {
	var prev byte
	buf := make([]byte, 1)
	for i := 0; i < maxBytes+1; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, err
		}
		if prev == 0xFF && buf[0]&0xE0 == 0xE0 {
			hdr := make([]byte, 4)
			hdr[0], hdr[1] = 0xFF, buf[0]
			if _, err := io.ReadFull(r, hdr[2:]); err != nil {
				return nil, 0, err
			}
			return hdr, int64(i - 1), nil
		}
		prev = buf[0]
	}
	return nil, 0, wrapErr(ErrUnknownFormat, "no frame sync within %d bytes", maxBytes)
}

// headerCompatible reports whether two frame headers belong to the same
// stream: version, layer, sample rate and emphasis must match.
func headerCompatible(a, b *MPEGHeader) bool {
	return a.Version == b.Version && a.Layer == b.Layer &&
		a.SampleRate == b.SampleRate && a.Emphasis == b.Emphasis
}

// XingHeader carries the VBR information of a Xing/Info/VBRI header.
type XingHeader struct {
	ID      string // "Xing", "Info" or "VBRI"
	Frames  uint32
	Bytes   uint32
	Quality int

	// LAME extension, when present.
	Encoder string
}

// xingOffset is the position of the Xing header within the first frame,
// which depends on version and channel mode.
func xingOffset(v MPEGVersion, c ChannelMode) int64 {
	switch {
	case v == MPEGVersion1 && c != Mono:
		return 32
	case v != MPEGVersion1 && c == Mono:
		return 9
	default:
		return 17
	}
}

// readXing looks for a Xing/Info or VBRI header inside the first frame.
// frameStart is the offset of the frame sync. Returns nil when absent.
func readXing(r io.ReadSeeker, h *MPEGHeader, frameStart int64) *XingHeader {
	if _, err := r.Seek(frameStart+4+xingOffset(h.Version, h.ChannelMode), io.SeekStart); err != nil {
		return nil
	}
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil
	}

	if string(magic) == "Xing" || string(magic) == "Info" {
		x := &XingHeader{ID: string(magic)}
		var flags uint32
		if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
			return nil
		}
		if flags&0x1 != 0 {
			binary.Read(r, binary.BigEndian, &x.Frames)
		}
		if flags&0x2 != 0 {
			binary.Read(r, binary.BigEndian, &x.Bytes)
		}
		if flags&0x4 != 0 {
			r.Seek(100, io.SeekCurrent) // TOC
		}
		if flags&0x8 != 0 {
			var q uint32
			binary.Read(r, binary.BigEndian, &q)
			x.Quality = int(q)
		}

		// LAME tail: a 9-byte printable encoder string.
		enc := make([]byte, 9)
		if _, err := io.ReadFull(r, enc); err == nil && isPrintableASCII(enc) {
			x.Encoder = trimString(string(enc))
		}
		return x
	}

	// VBRI sits at a fixed 32 bytes after the side info start.
	if _, err := r.Seek(frameStart+4+32, io.SeekStart); err != nil {
		return nil
	}
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != "VBRI" {
		return nil
	}
	x := &XingHeader{ID: "VBRI"}
	hdr := make([]byte, 22)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil
	}
	// version(2) delay(2) quality(2) bytes(4) frames(4) ...
	x.Quality = int(binary.BigEndian.Uint16(hdr[4:6]))
	x.Bytes = binary.BigEndian.Uint32(hdr[6:10])
	x.Frames = binary.BigEndian.Uint32(hdr[10:14])
	return x
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if !strconv.IsPrint(rune(c)) || c > 0x7E {
			return false
		}
	}
	return true
}

// MPEGProperties is the Properties superset for MPEG audio streams.
type MPEGProperties struct {
	Properties
	Version       MPEGVersion
	Layer         MPEGLayer
	ChannelMode   ChannelMode
	ModeExtension byte
	Copyright     bool
	Original      bool
	Emphasis      byte
	Xing          *XingHeader
}

// readMPEGProperties locates the first audio frame from the current
// position and derives the stream properties. The first frame must be
// confirmed by a compatible header exactly one frame length later,
// unless EOF intervenes.
func readMPEGProperties(r io.ReadSeeker, opts ParseOptions) (*MPEGProperties, error) {
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	h, frameStart, err := findConfirmedFrame(r, base, opts)
	if err != nil {
		return nil, err
	}

	p := &MPEGProperties{
		Version:       h.Version,
		Layer:         h.Layer,
		ChannelMode:   h.ChannelMode,
		ModeExtension: h.ModeExtension,
		Copyright:     h.Copyright,
		Original:      h.Original,
		Emphasis:      h.Emphasis,
	}
	p.SampleRate = uint32(h.SampleRate)
	p.Channels = 2
	if h.ChannelMode == Mono {
		p.Channels = 1
	}

	// The end of the audio stream: EOF minus any ID3v1, APE tag or
	// Lyrics3v2 block.
	streamEnd, err := locateAudioEnd(r)
	if err != nil {
		return nil, err
	}
	streamBytes := uint64(streamEnd - frameStart)

	p.Xing = readXing(r, h, frameStart)
	if x := p.Xing; x != nil && x.Frames > 0 && h.SampleRate > 0 {
		samples := uint64(x.Frames) * uint64(h.Samples)
		p.Duration = time.Duration(samples * uint64(time.Second) / uint64(h.SampleRate))
		bytes := uint64(x.Bytes)
		if bytes == 0 {
			bytes = streamBytes
		}
		if ms := uint64(p.Duration / time.Millisecond); ms > 0 {
			p.AudioBitrate = uint32(bytes * 8 / ms)
		}
	} else {
		p.AudioBitrate = uint32(h.Bitrate)
		p.Duration = durationFrom(streamBytes, p.AudioBitrate)
	}

	fileEnd, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	p.OverallBitrate = overallBitrate(uint64(fileEnd), p.Duration)
	return p, nil
}

func findConfirmedFrame(r io.ReadSeeker, base int64, opts ParseOptions) (*MPEGHeader, int64, error) {
	search := base
	for {
		if _, err := r.Seek(search, io.SeekStart); err != nil {
			return nil, 0, err
		}
		hdr, off, err := searchFrameSync(r, opts.MaxJunkBytes)
		if err != nil {
			return nil, 0, err
		}
		frameStart := search + off

		h, err := parseMPEGHeader(hdr, opts.Mode)
		if err != nil || h.FrameLength < 4 {
			search = frameStart + 1
			continue
		}

		// Validate against the next header, one frame length later.
		if _, err := r.Seek(frameStart+int64(h.FrameLength), io.SeekStart); err == nil {
			next := make([]byte, 4)
			if _, err := io.ReadFull(r, next); err == nil {
				h2, err := parseMPEGHeader(next, opts.Mode)
				if err != nil || !headerCompatible(h, h2) {
					search = frameStart + 1
					continue
				}
			}
		}
		return h, frameStart, nil
	}
}

// locateAudioEnd returns the offset just past the last audio byte,
// stepping back over an ID3v1 tag, a Lyrics3v2 block and an APE tag.
func locateAudioEnd(r io.ReadSeeker) (int64, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	// ID3v1 at EOF-128.
	if end >= id3v1TagSize {
		if _, err := r.Seek(end-id3v1TagSize, io.SeekStart); err == nil {
			if magic, err := readString(r, 3); err == nil && magic == "TAG" {
				end -= id3v1TagSize
			}
		}
	}

	// Lyrics3v2: "LYRICS200" preceded by a 6-digit size.
	if end >= 15 {
		if _, err := r.Seek(end-15, io.SeekStart); err == nil {
			b, err := readBytes(r, 15)
			if err == nil && string(b[6:]) == "LYRICS200" {
				if size, err := strconv.Atoi(string(b[:6])); err == nil {
					end -= int64(size) + 15
				}
			}
		}
	}

	// APE tag footer at the (possibly adjusted) end.
	if end >= apeFooterSize {
		if _, err := r.Seek(end-apeFooterSize, io.SeekStart); err == nil {
			if f, err := readAPEFooter(r); err == nil {
				end -= int64(f.Size)
				if f.HasHeader {
					end -= apeFooterSize
				}
			}
		}
	}
	return end, nil
}

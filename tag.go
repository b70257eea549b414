// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tag reads and writes audio file metadata tags (ID3v1, ID3v2.{2,3,4},
// APE, MP4 ilst, Vorbis Comments, RIFF INFO, AIFF text, Matroska tags) and
// decodes stream properties across MPEG, AAC-ADTS, MP4, FLAC, OGG
// (Vorbis/Opus/Speex), WavPack, Musepack, APE, AIFF, WAV, DSF and Matroska
// containers.
package tag

import (
	"errors"
	"io"
)

// ErrNoTagsFound is the error returned by ReadFrom when the metadata format
// cannot be identified.
var ErrNoTagsFound = errors.New("no tags found")

// Format is an enumeration of tag schemas supported by this package.
type Format string

const (
	UnknownFormat Format = ""         // Unknown Format.
	ID3v1         Format = "ID3v1"    // ID3v1 tag format.
	ID3v2_2       Format = "ID3v2.2"  // ID3v2.2 tag format.
	ID3v2_3       Format = "ID3v2.3"  // ID3v2.3 tag format (most common).
	ID3v2_4       Format = "ID3v2.4"  // ID3v2.4 tag format.
	APE           Format = "APE"      // APEv1/v2 tag format.
	MP4           Format = "MP4"      // MP4 tag (ilst atom) format.
	VORBIS        Format = "VORBIS"   // Vorbis Comment tag format.
	RIFFINFO      Format = "RIFFINFO" // RIFF LIST INFO tag format.
	AIFFTEXT      Format = "AIFFTEXT" // AIFF NAME/AUTH/ANNO/COMT chunks.
	MATROSKA      Format = "MATROSKA" // Matroska/WebM Tags element.
)

// FileType is an enumeration of the audio file types supported by this
// package; several file types share tag formats and this type is used to
// distinguish between them.
type FileType string

const (
	UnknownFileType FileType = ""        // Unknown FileType.
	AAC             FileType = "AAC"     // AAC-ADTS stream
	AIFF            FileType = "AIFF"    // AIFF / AIFF-C file
	APEF            FileType = "APE"     // Monkey's Audio file
	DSF             FileType = "DSF"     // DSD stream file
	EBML            FileType = "EBML"    // Matroska / WebM file
	FLAC            FileType = "FLAC"    // FLAC file
	MP3             FileType = "MP3"     // MPEG audio file
	MP4T            FileType = "MP4"     // MP4 / M4A file
	MPC             FileType = "MPC"     // Musepack file
	OGG             FileType = "OGG"     // OGG Vorbis file
	OPUS            FileType = "OPUS"    // OGG Opus file
	SPEEX           FileType = "SPEEX"   // OGG Speex file
	WAV             FileType = "WAV"     // RIFF WAVE file
	WAVPACK         FileType = "WAVPACK" // WavPack file
)

// Metadata is an interface which is used to describe metadata retrieved by this package.
type Metadata interface {
	// Format returns the metadata Format used to encode the data.
	Format() Format

	// FileType returns the file type of the audio file.
	FileType() FileType

	// Title returns the title of the track.
	Title() string

	// Album returns the album name of the track.
	Album() string

	// Artist returns the artist name of the track.
	Artist() string

	// AlbumArtist returns the album artist name of the track.
	AlbumArtist() string

	// Composer returns the composer of the track.
	Composer() string

	// Year returns the year of the track.
	Year() int

	// Genre returns the genre of the track.
	Genre() string

	// Track returns the track number and total tracks, or zero values if unavailable.
	Track() (int, int)

	// Disc returns the disc number and total discs, or zero values if unavailable.
	Disc() (int, int)

	// Picture returns a picture, or nil if not available.
	Picture() *Picture

	// Lyrics returns the lyrics, or an empty string if unavailable.
	Lyrics() string

	// Comment returns the comment, or an empty string if unavailable.
	Comment() string

	// Raw returns the raw mapping of retrieved tag names and associated values.
	// NB: tag/atom names are not standardised between formats.
	Raw() map[string]interface{}
}

// ReadFrom parses audio file metadata tags. This method attempts to determine
// the format of the data provided by the io.ReadSeeker, and then chooses the
// appropriate reader. Returns non-nil error if the format of the given data
// could not be determined, or if there was a problem parsing the data.
func ReadFrom(r io.ReadSeeker) (Metadata, error) {
	return ReadFromOptions(r, ParseOptions{}.Defaults())
}

// ReadFromOptions is ReadFrom with explicit ParseOptions.
func ReadFromOptions(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	t, err := Identify(r)
	if err != nil {
		return nil, err
	}

	switch t {
	case FLAC:
		return ReadFLACTags(r)
	case OGG, OPUS, SPEEX:
		return ReadOGGTags(r)
	case MP4T:
		return ReadAtoms(r)
	case MP3:
		m, err := ReadID3v2Tags(r, opts)
		if err == nil {
			return m, nil
		}
		return readID3v1Fallback(r)
	case AAC:
		return ReadAACTags(r, opts)
	case APEF, MPC, WAVPACK:
		return ReadAPETags(r, t)
	case WAV:
		return ReadWAVTags(r, opts)
	case AIFF:
		return ReadAIFFTags(r, opts)
	case DSF:
		return ReadDSFTags(r, opts)
	case EBML:
		return ReadMatroskaTags(r, opts)
	}

	return readID3v1Fallback(r)
}

func readID3v1Fallback(r io.ReadSeeker) (Metadata, error) {
	m, err := ReadID3v1Tags(r)
	if err != nil {
		if err == ErrNotID3v1 {
			err = ErrNoTagsFound
		}
		return nil, err
	}
	return m, nil
}

// probeBufferSize is how much Identify reads to classify a stream.
const probeBufferSize = 36

// Identify determines the FileType of the data provided by the
// io.ReadSeeker. It reads at most probeBufferSize bytes from the current
// position; where the stream opens with an ID3v2 tag or junk bytes it
// seeks ahead to find the stream underneath. The reader is reset to its
// original position before returning.
func Identify(r io.ReadSeeker) (FileType, error) {
	return IdentifyOptions(r, ParseOptions{}.Defaults())
}

// IdentifyOptions is Identify with explicit ParseOptions (MaxJunkBytes
// bounds the pre-frame-sync scan).
func IdentifyOptions(r io.ReadSeeker, opts ParseOptions) (FileType, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return UnknownFileType, err
	}

	buf := make([]byte, probeBufferSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return UnknownFileType, err
	}
	buf = buf[:n]

	t, err := identifyBuffer(r, buf, start, opts.MaxJunkBytes)

	// Reset the reader position regardless of the outcome.
	if _, serr := r.Seek(start, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return t, err
}

func identifyBuffer(r io.ReadSeeker, b []byte, start int64, maxJunkBytes int) (FileType, error) {
	if len(b) < 4 {
		return UnknownFileType, ErrUnknownFormat
	}

	switch {
	case string(b[0:4]) == "fLaC":
		return FLAC, nil

	case string(b[0:4]) == "OggS":
		return identifyOGG(r, start)

	case string(b[0:4]) == "MAC ":
		return APEF, nil

	case string(b[0:4]) == "FORM":
		return AIFF, nil

	case string(b[0:4]) == "RIFF":
		return WAV, nil

	case len(b) >= 8 && string(b[4:8]) == "ftyp":
		return MP4T, nil

	case string(b[0:4]) == "DSD ":
		return DSF, nil

	case string(b[0:4]) == "MPCK" || string(b[0:3]) == "MP+":
		return MPC, nil

	case string(b[0:4]) == "wvpk":
		return WAVPACK, nil

	case b[0] == 0x1A && b[1] == 0x45 && b[2] == 0xDF && b[3] == 0xA3:
		return EBML, nil

	case string(b[0:3]) == "ID3":
		return identifyAfterID3(r, b, start, maxJunkBytes)
	}

	// No magic matched: the stream may open with junk before an MPEG or
	// AAC frame sync.
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return UnknownFileType, err
	}
	if t, err := identifyMPEGorAAC(r, maxJunkBytes); err == nil {
		return t, nil
	}
	return UnknownFileType, ErrUnknownFormat
}

// identifyAfterID3 seeks past a leading ID3v2 tag and re-sniffs the
// stream underneath; APE, FLAC and Musepack streams may also carry a
// leading ID3v2 tag.
func identifyAfterID3(r io.ReadSeeker, b []byte, start int64, maxJunkBytes int) (FileType, error) {
	if len(b) < 10 {
		return UnknownFileType, ErrUnknownFormat
	}
	size := int64(get7BitChunkedInt(b[6:10])) + 10
	if getBit(b[5], 4) {
		size += 10 // footer
	}

	if _, err := r.Seek(start+size, io.SeekStart); err != nil {
		return UnknownFileType, err
	}
	ident := make([]byte, 4)
	if _, err := io.ReadFull(r, ident); err != nil {
		return UnknownFileType, ErrUnknownFormat
	}

	switch {
	case string(ident[0:3]) == "MAC":
		return APEF, nil
	case string(ident) == "fLaC":
		return FLAC, nil
	case string(ident) == "MPCK" || string(ident[0:3]) == "MP+":
		return MPC, nil
	}

	if _, err := r.Seek(start+size, io.SeekStart); err != nil {
		return UnknownFileType, err
	}
	return identifyMPEGorAAC(r, maxJunkBytes)
}

// identifyMPEGorAAC scans forward (bounded by maxJunkBytes) for a frame
// sync of 11 set bits, then disambiguates ADTS AAC from MPEG audio by
// the layer bits: an MPEG version with layer 0 is only valid as ADTS.
func identifyMPEGorAAC(r io.ReadSeeker, maxJunkBytes int) (FileType, error) {
	hdr, _, err := searchFrameSync(r, maxJunkBytes)
	if err != nil {
		return UnknownFileType, ErrUnknownFormat
	}

	if hdr[1]&0x10 > 0 && hdr[1]&0x06 == 0 {
		return AAC, nil
	}
	return MP3, nil
}

// identifyOGG inspects the first page's packet to pick the codec.
func identifyOGG(r io.ReadSeeker, start int64) (FileType, error) {
	// Skip the 27-byte page header plus the segment table, then sniff
	// the first packet's magic.
	if _, err := r.Seek(start+26, io.SeekStart); err != nil {
		return UnknownFileType, err
	}
	nSegs, err := readUint(r, 1)
	if err != nil {
		return UnknownFileType, err
	}
	if _, err := r.Seek(int64(nSegs), io.SeekCurrent); err != nil {
		return UnknownFileType, err
	}

	magic := make([]byte, 8)
	if _, err := io.ReadFull(r, magic); err != nil {
		return UnknownFileType, ErrUnknownFormat
	}

	switch {
	case string(magic[0:7]) == "\x01vorbis":
		return OGG, nil
	case string(magic[0:8]) == "OpusHead":
		return OPUS, nil
	case string(magic[0:8]) == "Speex   ":
		return SPEEX, nil
	}
	return OGG, nil
}

package tag

import (
	"crypto/sha1"
	"fmt"
	"hash"
	"io"
)

// Sum creates a checksum of the audio file data provided by the
// io.ReadSeeker which is metadata invariant: the same audio with
// different tags hashes identically.
func Sum(r io.ReadSeeker) (string, error) {
	t, err := Identify(r)
	if err != nil {
		return "", err
	}

	switch t {
	case MP4T:
		return SumAtoms(r)
	case MP3, AAC, APEF, MPC, WAVPACK:
		return sumTrailingTagged(r)
	case FLAC:
		return SumFLAC(r)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return SumAll(r)
}

// SumAll returns a checksum of the content from the reader (until EOF).
func SumAll(r io.ReadSeeker) (string, error) {
	h := sha1.New()
	_, err := io.Copy(h, r)
	if err != nil {
		return "", err
	}
	return hashSum(h), nil
}

// SumAtoms constructs a checksum of MP4 audio file data provided by the
// io.ReadSeeker which is metadata invariant: only the mdat payload is
// hashed.
func SumAtoms(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return "", err
	}

	pos := int64(0)
	for pos+atomHeaderLen <= end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return "", err
		}
		hdr, err := readBytes(r, atomHeaderLen)
		if err != nil {
			return "", err
		}
		size := int64(getInt(hdr[0:4]))
		name := string(hdr[4:8])

		dataStart := pos + atomHeaderLen
		if size == 1 {
			ext, err := readBytes(r, 8)
			if err != nil {
				return "", err
			}
			size = int64(getInt(ext))
			dataStart += 8
		}
		if size < atomHeaderLen || pos+size > end {
			return "", wrapErr(ErrBadAtom, "%q: bad size %d", name, size)
		}

		if name == "mdat" {
			h := sha1.New()
			if _, err := io.CopyN(h, r, pos+size-dataStart); err != nil {
				return "", fmt.Errorf("error reading audio data: %v", err)
			}
			return hashSum(h), nil
		}
		pos += size
	}
	return "", fmt.Errorf("reached EOF before audio data")
}

// sumTrailingTagged hashes a stream delimited by a leading ID3v2 tag and
// any trailing ID3v1/APE/Lyrics3v2 region, which covers the MPEG, AAC,
// APE, Musepack and WavPack layouts.
func sumTrailingTagged(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	var start int64
	if h, err := readID3v2Header(r); err == nil {
		start = int64(h.Size) + 10
		if h.Flags.Footer {
			start += 10
		}
	}

	end, err := locateAudioEnd(r)
	if err != nil {
		return "", err
	}
	if end <= start {
		return "", fmt.Errorf("no audio data between metadata regions")
	}

	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	h := sha1.New()
	if _, err := io.CopyN(h, r, end-start); err != nil {
		return "", fmt.Errorf("error reading %v bytes: %v", end-start, err)
	}
	return hashSum(h), nil
}

// SumFLAC hashes the frame region of a FLAC file, past the metadata
// block chain.
func SumFLAC(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if err := skipFLACID3(r); err != nil {
		return "", err
	}

	magic, err := readString(r, 4)
	if err != nil {
		return "", err
	}
	if magic != "fLaC" {
		return "", wrapErr(ErrBadMagic, "expected 'fLaC'")
	}
	if _, err := readFLACBlocks(r); err != nil {
		return "", err
	}

	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hashSum(h), nil
}

func hashSum(h hash.Hash) string {
	return fmt.Sprintf("%x", h.Sum([]byte{}))
}

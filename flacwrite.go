// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"io"
)

// WriteFLACComments rebuilds the FLAC metadata block chain with the
// given comments and pictures. STREAMINFO stays first and every block
// this package does not manage (SEEKTABLE, APPLICATION, CUESHEET) is
// preserved in order; trailing padding is coalesced into one block.
// When the new blocks fit in the old chain, that block fills the old
// chain length so the audio frames do not move; otherwise it is sized
// by WriteOptions.PreferredPadding.
func WriteFLACComments(w Target, c *VorbisComments, opts WriteOptions) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	// A leading ID3v2 tag is preserved untouched.
	var chainStart int64
	if h, err := readID3v2Header(w); err == nil {
		chainStart = int64(h.Size) + 10
		if h.Flags.Footer {
			chainStart += 10
		}
	}
	if _, err := w.Seek(chainStart, io.SeekStart); err != nil {
		return err
	}

	magic, err := readString(w, 4)
	if err != nil {
		return err
	}
	if magic != "fLaC" {
		return wrapErr(ErrBadMagic, "expected 'fLaC'")
	}

	blocks, err := readFLACBlocks(w)
	if err != nil {
		return err
	}
	chainEnd, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if len(blocks) == 0 || blocks[0].typ != StreamInfoBlock {
		return wrapErr(ErrFakeTag, "first FLAC block is not STREAMINFO")
	}

	// Rebuild: STREAMINFO, preserved blocks, then our comment and
	// picture blocks, then padding.
	out := make([]flacBlock, 0, len(blocks)+2)
	out = append(out, blocks[0])
	for _, b := range blocks[1:] {
		switch b.typ {
		case VorbisCommentBlock, PictureBlock, PaddingBlock:
			// replaced below
		default:
			out = append(out, b)
		}
	}

	if c != nil {
		comment := appendVorbisComments(nil, c, false)
		if len(comment) > maxFLACBlockSize {
			return wrapErr(ErrTooMuchData, "vorbis comment block")
		}
		out = append(out, flacBlock{typ: VorbisCommentBlock, content: comment})

		for _, p := range c.Pictures {
			pic := flacPictureBytes(p)
			if len(pic) > maxFLACBlockSize {
				return wrapErr(ErrTooMuchData, "picture block")
			}
			out = append(out, flacBlock{typ: PictureBlock, content: pic})
		}
	}

	// Pad to the existing chain length when possible so the audio frames
	// do not move; otherwise append the preferred padding.
	existing := chainEnd - chainStart - 4
	needed := int64(len(renderFLACBlocks(out)))
	var padding int64
	switch {
	case needed == existing:
		// Exact fit already.
	case needed+4 <= existing:
		padding = existing - needed - 4
	case opts.padding() > 4:
		padding = int64(opts.padding()) - 4
	}
	if padding > maxFLACBlockSize {
		padding = maxFLACBlockSize
	}
	if padding > 0 {
		out = append(out, flacBlock{typ: PaddingBlock, content: make([]byte, padding)})
	}
	rendered := renderFLACBlocks(out)

	if int64(len(rendered)) == chainEnd-chainStart-4 {
		// In-place overwrite, nothing after the chain moves.
		if _, err := w.Seek(chainStart+4, io.SeekStart); err != nil {
			return err
		}
		_, err = w.Write(rendered)
		return err
	}
	return spliceRegion(w, chainStart+4, chainEnd-chainStart-4, rendered)
}

// renderFLACBlocks emits the chain with correct last-block markers.
func renderFLACBlocks(blocks []flacBlock) []byte {
	var out []byte
	for i, b := range blocks {
		hdr := byte(b.typ)
		if i == len(blocks)-1 {
			hdr |= 0x80
		}
		out = append(out, hdr,
			byte(len(b.content)>>16), byte(len(b.content)>>8), byte(len(b.content)))
		out = append(out, b.content...)
	}
	return out
}

// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"io"
)

// WriteOGGComments replaces the comment packet of an OGG Vorbis, Opus or
// Speex stream with one built from c, re-paginating the header packets.
// The identification page is untouched; any setup packets ride along
// unchanged. Sequence numbers of the remaining pages are rewritten so
// the stream stays contiguous, and every touched page gets a fresh
// checksum.
func WriteOGGComments(w Target, c *VorbisComments, opts WriteOptions) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	idPage, err := readOGGPage(w)
	if err != nil {
		return err
	}
	idPackets := packetsFromPages([]*oggPage{idPage})
	if len(idPackets) == 0 {
		return wrapErr(ErrFakeTag, "empty identification page")
	}
	id := idPackets[0]

	// Collect the header pages holding the comment packet and any setup
	// packets which must ride along (the Vorbis setup packet shares its
	// pages with the comment packet).
	headerStart := idPage.start + idPage.size()
	var headerPages []*oggPage
	wantPackets := 1
	if bytes.HasPrefix(id, vorbisIDMagic) {
		wantPackets = 2 // comment + setup
	}
	finished := 0
	for finished < wantPackets {
		pg, err := readOGGPage(w)
		if err != nil {
			return err
		}
		headerPages = append(headerPages, pg)
		for _, s := range pg.segments {
			if s < 255 {
				finished++
			}
		}
	}
	headerEnd := headerPages[len(headerPages)-1].start + headerPages[len(headerPages)-1].size()

	packets := packetsFromPages(headerPages)

	// Build the replacement comment packet.
	var comment []byte
	switch {
	case bytes.HasPrefix(id, vorbisIDMagic):
		comment = append(comment, vorbisCommentMagic...)
		comment = appendVorbisComments(comment, c, true)
		comment = append(comment, 0x01) // framing bit
	case bytes.HasPrefix(id, opusHeadMagic):
		comment = append(comment, opusTagsMagic...)
		comment = appendVorbisComments(comment, c, true)
	case bytes.HasPrefix(id, speexHeadMagic):
		comment = appendVorbisComments(comment, c, true)
	default:
		return wrapErr(ErrUnsupportedFormat, "unknown OGG codec")
	}
	packets[0] = comment

	newPages := paginatePackets(packets, idPage.serial, idPage.sequence+1, 0, 0, 0)

	var replacement []byte
	for _, p := range newPages {
		replacement = appendOGGPage(replacement, p)
	}

	// Renumber the remaining pages; their byte offsets shift but their
	// count does not change.
	rest, err := renumberedPages(w, headerEnd, idPage.sequence+1+uint32(len(newPages)))
	if err != nil {
		return err
	}
	replacement = append(replacement, rest...)

	if _, err := w.Seek(headerStart, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(replacement); err != nil {
		return err
	}
	return w.Truncate(headerStart + int64(len(replacement)))
}

// renumberedPages reads every page from offset on, rewriting sequence
// numbers to run contiguously from firstSeq and recomputing checksums.
func renumberedPages(r io.ReadSeeker, offset int64, firstSeq uint32) ([]byte, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	var out []byte
	seq := firstSeq
	for {
		pg, err := readOGGPage(r)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		pg.sequence = seq
		seq++
		out = appendOGGPage(out, pg)
	}
}

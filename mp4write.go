// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"encoding/binary"
	"io"
)

// WriteIlst replaces the moov.udta.meta.ilst atom of the target with the
// serialised form of l, creating the udta/meta hierarchy when missing.
// Adjacent `free` atoms are absorbed so that, whenever the new list fits,
// the file size does not change and no sample offsets move; otherwise
// every stco/co64/tfhd offset at or after the edit point is shifted by
// the size difference.
//
// An empty (or nil) list strips the tag.
func WriteIlst(w Target, l *Ilst, opts WriteOptions) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf, err := io.ReadAll(w)
	if err != nil {
		return err
	}

	out, changed, err := rewriteIlst(buf, l, opts)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	return w.Truncate(int64(len(out)))
}

// StripIlst removes the tag entirely.
func StripIlst(w Target, opts WriteOptions) error {
	return WriteIlst(w, nil, opts)
}

// rewriteIlst performs the edit on an in-memory copy of the file,
// returning the new contents and whether anything changed.
func rewriteIlst(buf []byte, l *Ilst, opts WriteOptions) ([]byte, bool, error) {
	fileEnd := int64(len(buf))

	ftyp, err := findAtomBuf(buf, 0, fileEnd, "ftyp")
	if err != nil {
		return nil, false, err
	}
	if ftyp == nil {
		return nil, false, wrapErr(ErrBadMagic, "no ftyp atom")
	}

	moov, err := findAtomBuf(buf, 0, fileEnd, "moov")
	if err != nil {
		return nil, false, err
	}
	if moov == nil {
		return nil, false, wrapErr(ErrBadAtom, "no moov atom")
	}

	ilstB := ilstBytes(l)
	removeTag := len(ilstB) == 0

	udta, err := findAtomBuf(buf, moov.start+moov.headerLen(), moov.end(), "udta")
	if err != nil {
		return nil, false, err
	}

	if udta == nil {
		if removeTag {
			return nil, false, nil
		}
		// Synthesize udta(meta(hdlr, ilst)) as the first child of moov.
		sub := wrapAtom("udta", newMetaAtom(ilstB))
		insert := moov.start + moov.headerLen()
		return applyIlstEdit(buf, moov, nil, nil, insert, insert, sub, int64(len(sub)))
	}

	meta, err := findAtomBuf(buf, udta.start+udta.headerLen(), udta.end(), "meta")
	if err != nil {
		return nil, false, err
	}

	if meta == nil {
		if removeTag {
			return nil, false, nil
		}
		sub := newMetaAtom(ilstB)
		insert := udta.start + udta.headerLen()
		return applyIlstEdit(buf, moov, udta, nil, insert, insert, sub, int64(len(sub)))
	}

	tree, err := parseAtomsBuf(buf, metaChildrenStart(buf, meta), meta.end())
	if err != nil {
		return nil, false, err
	}

	ilstIdx := -1
	for i := range tree {
		if tree[i].name == "ilst" {
			ilstIdx = i
			break
		}
	}

	if ilstIdx < 0 {
		if removeTag {
			return nil, false, nil
		}
		// Append the new list at the end of meta.
		return applyIlstEdit(buf, moov, udta, meta, meta.end(), meta.end(), ilstB, int64(len(ilstB)))
	}

	existing := tree[ilstIdx]
	rangeStart, rangeEnd := existing.start, existing.end()

	// Absorb free padding adjacent to the ilst atom, both before and
	// after.
	availableSpace := existing.length
	for i := ilstIdx - 1; i >= 0 && tree[i].name == "free"; i-- {
		availableSpace += tree[i].length
		rangeStart = tree[i].start
	}
	for i := ilstIdx + 1; i < len(tree) && tree[i].name == "free"; i++ {
		availableSpace += tree[i].length
		rangeEnd = tree[i].end()
	}

	if removeTag {
		// Leave a single free atom covering the reclaimed region, so
		// stripping a tag never moves the audio data.
		putFreeAtom(buf[rangeStart:rangeEnd], uint32(availableSpace))
		return buf, true, nil
	}

	newLen := int64(len(ilstB))
	if availableSpace > newLen && availableSpace-newLen >= atomHeaderLen {
		// The tag fits the reclaimed padding with room for a trailing
		// free atom: overwrite in place, file size unchanged.
		copy(buf[rangeStart:], ilstB)
		putFreeAtom(buf[rangeStart+newLen:rangeEnd], uint32(availableSpace-newLen))
		return buf, true, nil
	}

	difference := newLen - (rangeEnd - rangeStart)
	if difference != 0 {
		if difference < 0 && -difference >= atomHeaderLen {
			// Make up the shortfall with an exact-fit free atom so the
			// file size still does not change.
			pad := make([]byte, -difference)
			putFreeAtom(pad, uint32(-difference))
			ilstB = append(ilstB, pad...)
			difference = 0
		} else if difference < 0 && opts.padding() >= atomHeaderLen {
			// Too small a gap for a free atom: grow by the preferred
			// padding so later edits can stay in place.
			pad := make([]byte, opts.padding())
			putFreeAtom(pad, opts.padding())
			ilstB = append(ilstB, pad...)
			difference += int64(opts.padding())
		}
	}

	return applyIlstEdit(buf, moov, udta, meta, rangeStart, rangeEnd, ilstB, difference)
}

// applyIlstEdit updates ancestor sizes and sample offsets, then splices
// replacement over buf[rangeStart:rangeEnd].
func applyIlstEdit(buf []byte, moov, udta, meta *atomInfo, rangeStart, rangeEnd int64, replacement []byte, difference int64) ([]byte, bool, error) {
	if difference != 0 {
		// Offsets are shifted while the ancestor sizes still describe
		// buf, so the atom walk stays within bounds.
		if err := shiftSampleOffsets(buf, rangeStart, difference); err != nil {
			return nil, false, err
		}
		for _, a := range []*atomInfo{meta, udta, moov} {
			if a == nil {
				continue
			}
			if err := patchAtomSize(buf, a, a.length+difference); err != nil {
				return nil, false, err
			}
		}
	}

	out := make([]byte, 0, int64(len(buf))+difference)
	out = append(out, buf[:rangeStart]...)
	out = append(out, replacement...)
	out = append(out, buf[rangeEnd:]...)
	return out, true, nil
}

func patchAtomSize(buf []byte, a *atomInfo, newLen int64) error {
	if a.extended {
		binary.BigEndian.PutUint64(buf[a.start+8:a.start+16], uint64(newLen))
		return nil
	}
	if newLen > 0xFFFFFFFF {
		return wrapErr(ErrTooMuchData, "%q atom would need an extended size", a.name)
	}
	binary.BigEndian.PutUint32(buf[a.start:a.start+4], uint32(newLen))
	return nil
}

func putFreeAtom(dst []byte, size uint32) {
	binary.BigEndian.PutUint32(dst[0:4], size)
	copy(dst[4:8], "free")
	for i := uint32(atomHeaderLen); i < size; i++ {
		dst[i] = 0
	}
}

// newMetaAtom wraps ilst in a full `meta` atom together with the
// standard "mdir"/"appl" handler.
func newMetaAtom(ilst []byte) []byte {
	hdlr := make([]byte, 33)
	binary.BigEndian.PutUint32(hdlr[0:4], 33)
	copy(hdlr[4:8], "hdlr")
	copy(hdlr[16:20], "mdir")
	copy(hdlr[20:24], "appl")

	body := make([]byte, 4, 4+len(hdlr)+len(ilst)) // version + flags
	body = append(body, hdlr...)
	body = append(body, ilst...)
	return wrapAtom("meta", body)
}

func wrapAtom(name string, body []byte) []byte {
	out := make([]byte, atomHeaderLen, atomHeaderLen+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(atomHeaderLen+len(body)))
	copy(out[4:8], name)
	return append(out, body...)
}

// shiftSampleOffsets adds difference to every sample offset at or after
// editStart: stco and co64 entries under moov, and tfhd base data
// offsets under moof.
func shiftSampleOffsets(buf []byte, editStart, difference int64) error {
	fileEnd := int64(len(buf))
	top, err := parseAtomsBuf(buf, 0, fileEnd)
	if err != nil {
		return err
	}

	for i := range top {
		switch top[i].name {
		case "moov":
			for _, stco := range collectAtoms(buf, &top[i], "stco") {
				if err := shiftChunkOffsets(buf, stco, editStart, difference, false); err != nil {
					return err
				}
			}
			for _, co64 := range collectAtoms(buf, &top[i], "co64") {
				if err := shiftChunkOffsets(buf, co64, editStart, difference, true); err != nil {
					return err
				}
			}
		case "moof":
			for _, tfhd := range collectAtoms(buf, &top[i], "tfhd") {
				if err := shiftTfhdOffset(buf, tfhd, editStart, difference); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// collectAtoms recursively gathers every atom with the given name below
// root, descending only into the known container atoms.
func collectAtoms(buf []byte, root *atomInfo, name string) []atomInfo {
	var found []atomInfo
	children, err := parseAtomsBuf(buf, root.start+root.headerLen(), root.end())
	if err != nil {
		return nil
	}
	for i := range children {
		if children[i].name == name {
			found = append(found, children[i])
			continue
		}
		if mp4Containers[children[i].name] {
			found = append(found, collectAtoms(buf, &children[i], name)...)
		}
	}
	return found
}

func shiftChunkOffsets(buf []byte, a atomInfo, editStart, difference int64, wide bool) error {
	body := buf[a.start+a.headerLen() : a.end()]
	if len(body) < 8 {
		return wrapErr(ErrBadAtom, "%q atom too short", a.name)
	}
	count := int(binary.BigEndian.Uint32(body[4:8]))
	entries := body[8:]

	width := 4
	if wide {
		width = 8
	}
	if count*width > len(entries) {
		return wrapErr(ErrBadAtom, "%q atom declares %d entries", a.name, count)
	}

	for i := 0; i < count; i++ {
		e := entries[i*width : (i+1)*width]
		if wide {
			off := binary.BigEndian.Uint64(e)
			if int64(off) >= editStart {
				binary.BigEndian.PutUint64(e, uint64(int64(off)+difference))
			}
		} else {
			off := binary.BigEndian.Uint32(e)
			if int64(off) >= editStart {
				binary.BigEndian.PutUint32(e, uint32(int64(off)+difference))
			}
		}
	}
	return nil
}

func shiftTfhdOffset(buf []byte, a atomInfo, editStart, difference int64) error {
	body := buf[a.start+a.headerLen() : a.end()]
	if len(body) < 8 {
		return wrapErr(ErrBadAtom, "tfhd atom too short")
	}
	flags := uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	if flags&0x1 == 0 {
		return nil
	}
	// version/flags (4) + track_ID (4), then the 64-bit base offset.
	if len(body) < 16 {
		return wrapErr(ErrBadAtom, "tfhd atom missing base data offset")
	}
	off := binary.BigEndian.Uint64(body[8:16])
	if int64(off) >= editStart {
		binary.BigEndian.PutUint64(body[8:16], uint64(int64(off)+difference))
	}
	return nil
}

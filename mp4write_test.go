// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func stcoEntry(t *testing.T, buf []byte) uint32 {
	t.Helper()
	i := bytes.Index(buf, []byte("stco"))
	if i < 0 {
		t.Fatalf("no stco atom")
	}
	return binary.BigEndian.Uint32(buf[i+4+8 : i+4+12])
}

func mdatPayload(t *testing.T, buf []byte) int64 {
	t.Helper()
	i := bytes.Index(buf, []byte("mdat"))
	if i < 0 {
		t.Fatalf("no mdat atom")
	}
	return int64(i) + 4
}

func TestStripIlstReusesFree(t *testing.T) {
	file, _ := buildTestMP4(testIlst(), 256)
	f := newMemFile(file)

	if err := StripIlst(f, WriteOptions{}); err != nil {
		t.Fatalf("StripIlst returned error: %v", err)
	}

	// File size unchanged, ilst gone, one free atom covering the whole
	// reclaimed region, sample offsets untouched.
	if len(f.buf) != len(file) {
		t.Fatalf("file size changed: %d -> %d", len(file), len(f.buf))
	}
	if bytes.Contains(f.buf, []byte("ilst")) {
		t.Errorf("ilst atom still present")
	}
	if stcoEntry(t, f.buf) != stcoEntry(t, file) {
		t.Errorf("stco offset changed on free reuse")
	}

	ilstLen := len(ilstBytes(testIlst()))
	i := bytes.Index(f.buf, []byte("free"))
	if i < 0 {
		t.Fatalf("no free atom after strip")
	}
	freeSize := binary.BigEndian.Uint32(f.buf[i-4 : i])
	if int(freeSize) != ilstLen+256 {
		t.Errorf("free size = %d, expected %d", freeSize, ilstLen+256)
	}
}

func TestWriteIlstInPadding(t *testing.T) {
	file, _ := buildTestMP4(testIlst(), 256)
	f := newMemFile(file)

	l := testIlst()
	l.ReplaceAtom(NewTextAtom("\xa9nam", "Longer Replacement Title"))
	if err := WriteIlst(f, l, WriteOptions{}); err != nil {
		t.Fatalf("WriteIlst returned error: %v", err)
	}

	if len(f.buf) != len(file) {
		t.Fatalf("file size changed despite padding: %d -> %d", len(file), len(f.buf))
	}
	if stcoEntry(t, f.buf) != stcoEntry(t, file) {
		t.Errorf("stco offset changed despite padding fit")
	}

	m, err := ReadAtoms(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("ReadAtoms returned error: %v", err)
	}
	if m.Title() != "Longer Replacement Title" {
		t.Errorf("Title() = %q", m.Title())
	}

	// The media bytes must be identical.
	if !bytes.Equal(f.buf[mdatPayload(t, f.buf):], file[mdatPayload(t, file):]) {
		t.Errorf("mdat payload changed")
	}
}

func TestWriteIlstGrowShiftsOffsets(t *testing.T) {
	file, oldMdat := buildTestMP4(testIlst(), 0)
	f := newMemFile(file)

	l := testIlst()
	l.ReplaceAtom(NewTextAtom("\xa9lyr", strings.Repeat("la ", 300)))
	zero := uint32(0)
	if err := WriteIlst(f, l, WriteOptions{PreferredPadding: &zero}); err != nil {
		t.Fatalf("WriteIlst returned error: %v", err)
	}

	difference := len(f.buf) - len(file)
	if difference <= 0 {
		t.Fatalf("expected the file to grow, difference = %d", difference)
	}

	newMdat := mdatPayload(t, f.buf)
	if newMdat != oldMdat+int64(difference) {
		t.Errorf("mdat payload moved to %d, expected %d", newMdat, oldMdat+int64(difference))
	}
	if got := stcoEntry(t, f.buf); got != uint32(oldMdat)+uint32(difference) {
		t.Errorf("stco offset = %d, expected %d", got, uint32(oldMdat)+uint32(difference))
	}

	// The media bytes themselves are preserved.
	if !bytes.Equal(f.buf[newMdat:], file[oldMdat:]) {
		t.Errorf("mdat payload changed")
	}

	m, err := ReadAtoms(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("ReadAtoms returned error: %v", err)
	}
	if !strings.HasPrefix(m.Lyrics(), "la la") {
		t.Errorf("Lyrics() = %q", m.Lyrics())
	}
}

func TestWriteIlstShrinkKeepsSize(t *testing.T) {
	file, _ := buildTestMP4(testIlst(), 0)
	f := newMemFile(file)

	// A much smaller list leaves a gap >= 8 bytes which must be filled
	// with an exact-fit free atom instead of moving the audio.
	l := &Ilst{}
	l.ReplaceAtom(NewTextAtom("\xa9nam", "x"))
	zero := uint32(0)
	if err := WriteIlst(f, l, WriteOptions{PreferredPadding: &zero}); err != nil {
		t.Fatalf("WriteIlst returned error: %v", err)
	}

	if len(f.buf) != len(file) {
		t.Errorf("file size changed on shrink: %d -> %d", len(file), len(f.buf))
	}
	if stcoEntry(t, f.buf) != stcoEntry(t, file) {
		t.Errorf("stco offset changed on shrink")
	}

	m, err := ReadAtoms(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("ReadAtoms returned error: %v", err)
	}
	if m.Title() != "x" {
		t.Errorf("Title() = %q", m.Title())
	}
}

func TestWriteIlstCreatesHierarchy(t *testing.T) {
	// A file whose moov has no udta at all.
	ftyp := wrapAtom("ftyp", []byte("M4A \x00\x00\x02\x00M4A mp42isom"))
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:16], 1000)
	moov := wrapAtom("moov", wrapAtom("mvhd", mvhd))
	mdat := wrapAtom("mdat", []byte("payload"))
	file := append(append(append([]byte{}, ftyp...), moov...), mdat...)

	f := newMemFile(file)
	l := &Ilst{}
	l.ReplaceAtom(NewTextAtom("\xa9nam", "Created"))
	if err := WriteIlst(f, l, WriteOptions{}); err != nil {
		t.Fatalf("WriteIlst returned error: %v", err)
	}

	m, err := ReadAtoms(newMemFile(f.buf))
	if err != nil {
		t.Fatalf("ReadAtoms returned error: %v", err)
	}
	if m.Title() != "Created" {
		t.Errorf("Title() = %q", m.Title())
	}

	// moov size must cover the synthesized udta subtree.
	atoms, err := parseAtomsBuf(f.buf, 0, int64(len(f.buf)))
	if err != nil {
		t.Fatalf("parseAtomsBuf returned error: %v", err)
	}
	var checked bool
	for _, a := range atoms {
		if a.name == "moov" {
			children, err := parseAtomsBuf(f.buf, a.start+8, a.end())
			if err != nil {
				t.Fatalf("moov children: %v", err)
			}
			var total int64 = 8
			for _, c := range children {
				total += c.length
			}
			if total != a.length {
				t.Errorf("moov size %d does not equal children total %d", a.length, total)
			}
			checked = true
		}
	}
	if !checked {
		t.Fatalf("no moov atom found")
	}
}

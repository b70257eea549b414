// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// errStopWalk halts a segment walk early without reporting failure.
var errStopWalk = errors.New("stop walk")

// MatroskaSimpleTag is one SimpleTag element: a name with either a
// string or binary value.
type MatroskaSimpleTag struct {
	Name     string
	Language string
	Default  bool
	String   string
	Binary   []byte
}

// MatroskaTarget describes what a Tag element applies to.
type MatroskaTarget struct {
	TypeValue uint64 // 50 = album, 30 = track, ...
	Type      string
	TrackUIDs []uint64
}

// MatroskaTag is one Tag element: a target plus its simple tags.
type MatroskaTag struct {
	Target MatroskaTarget
	Simple []MatroskaSimpleTag
}

// MatroskaTags is the decoded Tags element.
type MatroskaTags struct {
	Tags []MatroskaTag
}

// Get returns the first string value with the given (case-insensitive)
// name across all targets.
func (t *MatroskaTags) Get(name string) string {
	for _, tag := range t.Tags {
		for _, s := range tag.Simple {
			if strings.EqualFold(s.Name, name) {
				return s.String
			}
		}
	}
	return ""
}

// getTarget returns a string value restricted to a target type value.
func (t *MatroskaTags) getTarget(name string, typeValue uint64) string {
	for _, tag := range t.Tags {
		if tag.Target.TypeValue != typeValue {
			continue
		}
		for _, s := range tag.Simple {
			if strings.EqualFold(s.Name, name) {
				return s.String
			}
		}
	}
	return ""
}

// MatroskaProperties is the Properties superset for Matroska/WebM files.
type MatroskaProperties struct {
	Properties
	DocType        string
	TimestampScale uint64
	CodecID        string
	MuxingApp      string
	WritingApp     string
	SegmentTitle   string
	Date           time.Time
}

// metadataMatroska is the Metadata implementation for Matroska files.
type metadataMatroska struct {
	tags  *MatroskaTags
	props *MatroskaProperties
}

// Tags exposes the structured tag tree.
func (m *metadataMatroska) Tags() *MatroskaTags { return m.tags }

func (m *metadataMatroska) Format() Format     { return MATROSKA }
func (m *metadataMatroska) FileType() FileType { return EBML }

func (m *metadataMatroska) Properties() Properties {
	if m.props == nil {
		return Properties{}
	}
	return m.props.Properties
}

func (m *metadataMatroska) Raw() map[string]interface{} {
	raw := map[string]interface{}{}
	for _, tag := range m.tags.Tags {
		for _, s := range tag.Simple {
			if s.String != "" {
				raw[strings.ToUpper(s.Name)] = s.String
			} else {
				raw[strings.ToUpper(s.Name)] = s.Binary
			}
		}
	}
	return raw
}

func (m *metadataMatroska) Title() string {
	if s := m.tags.getTarget("TITLE", 30); s != "" {
		return s
	}
	if m.props != nil && m.props.SegmentTitle != "" {
		return m.props.SegmentTitle
	}
	return m.tags.Get("TITLE")
}

func (m *metadataMatroska) Album() string { return m.tags.getTarget("TITLE", 50) }

func (m *metadataMatroska) Artist() string      { return m.tags.Get("ARTIST") }
func (m *metadataMatroska) AlbumArtist() string { return m.tags.getTarget("ARTIST", 50) }
func (m *metadataMatroska) Composer() string    { return m.tags.Get("COMPOSER") }
func (m *metadataMatroska) Genre() string       { return m.tags.Get("GENRE") }
func (m *metadataMatroska) Lyrics() string      { return m.tags.Get("LYRICS") }
func (m *metadataMatroska) Comment() string     { return m.tags.Get("COMMENT") }

func (m *metadataMatroska) Year() int {
	date := m.tags.Get("DATE_RELEASED")
	if date == "" {
		date = m.tags.Get("DATE_RECORDED")
	}
	if len(date) >= 4 {
		y, _ := strconv.Atoi(date[:4])
		return y
	}
	return 0
}

func (m *metadataMatroska) Track() (int, int) {
	x, _ := strconv.Atoi(m.tags.getTarget("PART_NUMBER", 30))
	n, _ := strconv.Atoi(m.tags.getTarget("TOTAL_PARTS", 50))
	return x, n
}

func (m *metadataMatroska) Disc() (int, int) { return 0, 0 }

func (m *metadataMatroska) Picture() *Picture { return nil }

// ReadMatroskaTags walks the EBML header and Segment of a Matroska or
// WebM file, decoding the Tags element and the segment/track info into
// properties.
func ReadMatroskaTags(r io.ReadSeeker, opts ParseOptions) (Metadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	m := &metadataMatroska{tags: &MatroskaTags{}, props: &MatroskaProperties{TimestampScale: 1000000}}

	// EBML header.
	head, err := readEBMLElement(r)
	if err != nil {
		return nil, err
	}
	if head.name != "EBML" {
		return nil, wrapErr(ErrBadMagic, "expected EBML header")
	}
	headStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	err = ebmlChildren(r, headStart, int64(head.size), func(e *ebmlElement, payload int64) error {
		if e.name == "DocType" {
			b, err := readBytes(r, uint(e.size))
			if err != nil {
				return err
			}
			m.props.DocType = ebmlStringValue(b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Segment.
	if _, err := r.Seek(headStart+int64(head.size), io.SeekStart); err != nil {
		return nil, err
	}
	segment, err := readEBMLElement(r)
	if err != nil {
		return nil, err
	}
	if segment.name != "Segment" {
		return nil, wrapErr(ErrBadMagic, "expected Segment element")
	}
	segStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	fileEnd, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	segSize := int64(segment.size)
	if segment.size == MaxVInt || segStart+segSize > fileEnd {
		// Unknown or overlong segment size: bound by the file.
		segSize = fileEnd - segStart
	}

	var durationTicks float64
	err = ebmlChildren(r, segStart, segSize, func(e *ebmlElement, payload int64) error {
		switch e.name {
		case "Cluster":
			// Tags and Info precede the clusters in every muxer this
			// package cares about; clusters may carry unknown sizes, so
			// stop walking here.
			return errStopWalk
		case "Info":
			return ebmlChildren(r, payload, int64(e.size), func(c *ebmlElement, p int64) error {
				b, err := readBytes(r, uint(c.size))
				if err != nil {
					return err
				}
				switch c.name {
				case "TimestampScale":
					m.props.TimestampScale = ebmlUint(b)
				case "Duration":
					v, err := ebmlFloatValue(b)
					if err != nil {
						return err
					}
					durationTicks = v
				case "Title":
					m.props.SegmentTitle = ebmlStringValue(b)
				case "MuxingApp":
					m.props.MuxingApp = ebmlStringValue(b)
				case "WritingApp":
					m.props.WritingApp = ebmlStringValue(b)
				case "DateUTC":
					t, err := ebmlDateValue(b)
					if err == nil {
						m.props.Date = t
					}
				}
				return nil
			})

		case "Tracks":
			if !opts.ReadProperties {
				return nil
			}
			return ebmlChildren(r, payload, int64(e.size), func(entry *ebmlElement, ep int64) error {
				if entry.name != "TrackEntry" {
					return nil
				}
				return m.readTrackEntry(r, ep, int64(entry.size))
			})

		case "Tags":
			if !opts.ReadTags {
				return nil
			}
			return ebmlChildren(r, payload, int64(e.size), func(tag *ebmlElement, tp int64) error {
				if tag.name != "Tag" {
					return nil
				}
				parsed, err := readMatroskaTag(r, tp, int64(tag.size))
				if err != nil {
					return err
				}
				m.tags.Tags = append(m.tags.Tags, *parsed)
				return nil
			})
		}
		return nil
	})
	if err == errStopWalk {
		err = nil
	}
	if err != nil && opts.Mode == Strict {
		return nil, err
	}

	if durationTicks > 0 {
		m.props.Duration = time.Duration(durationTicks * float64(m.props.TimestampScale))
	}
	if end, err := r.Seek(0, io.SeekEnd); err == nil {
		m.props.OverallBitrate = overallBitrate(uint64(end), m.props.Duration)
	}
	return m, nil
}

// readTrackEntry picks the audio attributes off the first audio track.
func (m *metadataMatroska) readTrackEntry(r io.ReadSeeker, pos, size int64) error {
	var isAudio bool
	var codec string
	var sampleRate float64
	var channels, bitDepth uint64

	err := ebmlChildren(r, pos, size, func(e *ebmlElement, payload int64) error {
		switch e.name {
		case "TrackType":
			b, err := readBytes(r, uint(e.size))
			if err != nil {
				return err
			}
			isAudio = ebmlUint(b) == 2
		case "CodecID":
			b, err := readBytes(r, uint(e.size))
			if err != nil {
				return err
			}
			codec = ebmlStringValue(b)
		case "Audio":
			return ebmlChildren(r, payload, int64(e.size), func(c *ebmlElement, p int64) error {
				b, err := readBytes(r, uint(c.size))
				if err != nil {
					return err
				}
				switch c.name {
				case "SamplingFrequency":
					v, err := ebmlFloatValue(b)
					if err != nil {
						return err
					}
					sampleRate = v
				case "Channels":
					channels = ebmlUint(b)
				case "BitDepth":
					bitDepth = ebmlUint(b)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if isAudio && m.props.CodecID == "" {
		m.props.CodecID = codec
		m.props.SampleRate = uint32(sampleRate)
		m.props.Channels = uint8(channels)
		m.props.BitDepth = uint8(bitDepth)
	}
	return nil
}

// readMatroskaTag decodes one Tag element.
func readMatroskaTag(r io.ReadSeeker, pos, size int64) (*MatroskaTag, error) {
	tag := &MatroskaTag{}
	err := ebmlChildren(r, pos, size, func(e *ebmlElement, payload int64) error {
		switch e.name {
		case "Targets":
			return ebmlChildren(r, payload, int64(e.size), func(c *ebmlElement, p int64) error {
				b, err := readBytes(r, uint(c.size))
				if err != nil {
					return err
				}
				switch c.name {
				case "TargetTypeValue":
					tag.Target.TypeValue = ebmlUint(b)
				case "TargetType":
					tag.Target.Type = ebmlStringValue(b)
				case "TagTrackUID":
					tag.Target.TrackUIDs = append(tag.Target.TrackUIDs, ebmlUint(b))
				}
				return nil
			})

		case "SimpleTag":
			s := MatroskaSimpleTag{Language: "und"}
			err := ebmlChildren(r, payload, int64(e.size), func(c *ebmlElement, p int64) error {
				b, err := readBytes(r, uint(c.size))
				if err != nil {
					return err
				}
				switch c.name {
				case "TagName":
					s.Name = ebmlStringValue(b)
				case "TagLanguage":
					s.Language = ebmlStringValue(b)
				case "TagDefault":
					s.Default = ebmlUint(b) != 0
				case "TagString":
					s.String = ebmlStringValue(b)
				case "TagBinary":
					s.Binary = b
				}
				return nil
			})
			if err != nil {
				return err
			}
			tag.Simple = append(tag.Simple, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tag.Target.TypeValue == 0 {
		tag.Target.TypeValue = 50
	}
	return tag, nil
}

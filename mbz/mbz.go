// Package mbz extracts MusicBrainz Picard-specific tags from general tag metadata.
// See https://picard.musicbrainz.org/docs/mappings/ for more information.
package mbz

import (
	"strings"

	tag "github.com/audioform/tag"
)

// Info is a structure which contains MusicBrainz identifier information.
type Info struct {
	AcoustID     string
	Album        string
	AlbumArtist  string
	Artist       string
	ReleaseGroup string
	Track        string
}

// Supported MusicBrainz tag names.
const (
	TagAcoustID     = "acoustid_id"
	TagAlbum        = "musicbrainz_albumid"
	TagAlbumArtist  = "musicbrainz_albumartistid"
	TagArtist       = "musicbrainz_artistid"
	TagReleaseGroup = "musicbrainz_releasegroupid"
	TagTrack        = "musicbrainz_recordingid"
)

// UFIDProviderURL is the URL that we match inside a UFID frame.
const UFIDProviderURL = "http://musicbrainz.org"

// Mapping between the internal picard tag names and aliases.
var tags = map[string]string{
	TagAcoustID:     "Acoustid Id",
	TagAlbum:        "MusicBrainz Album Id",
	TagAlbumArtist:  "MusicBrainz Album Artist Id",
	TagArtist:       "MusicBrainz Artist Id",
	TagReleaseGroup: "MusicBrainz Release Group Id",
	TagTrack:        "MusicBrainz Track Id",
}

func (i *Info) set(t, v string) {
	switch t {
	case TagAcoustID:
		i.AcoustID = v
	case TagAlbum:
		i.Album = v
	case TagAlbumArtist:
		i.AlbumArtist = v
	case TagArtist:
		i.Artist = v
	case TagReleaseGroup:
		i.ReleaseGroup = v
	case TagTrack:
		i.Track = v
	}
}

// Set the MusicBrainz tag to the given value.
func (i *Info) Set(t, v string) {
	if _, ok := tags[t]; ok {
		i.set(t, v)
		return
	}

	for k, tt := range tags {
		if tt == t {
			i.set(k, v)
			return
		}
	}
}

// extractID3 pulls Picard tags out of the TXXX and UFID frames of an
// ID3v2 tag.
func extractID3(m tag.Metadata) *Info {
	i := &Info{}
	for _, v := range m.Raw() {
		switch f := v.(type) {
		case *tag.UserTextFrame:
			i.Set(f.Description, f.Value)
		case *tag.UniqueFileIDFrame:
			if f.Owner == UFIDProviderURL {
				i.Set(TagTrack, string(f.Identifier))
			}
		}
	}
	return i
}

// extractGeneric pulls Picard tags out of a string-keyed Raw mapping,
// which covers the MP4, Vorbis and APE cases.
func extractGeneric(m tag.Metadata) *Info {
	i := &Info{}
	for t, v := range m.Raw() {
		if s, ok := v.(string); ok {
			i.Set(strings.ToLower(t), s)
			i.Set(t, s)
		}
	}
	return i
}

// Extract tags created by MusicBrainz Picard which can be used with the
// MusicBrainz and LastFM APIs.
// See https://picard.musicbrainz.org/docs/mappings/ for more information.
func Extract(m tag.Metadata) *Info {
	switch m.Format() {
	case tag.ID3v2_2, tag.ID3v2_3, tag.ID3v2_4:
		return extractID3(m)
	}
	return extractGeneric(m)
}

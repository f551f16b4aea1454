package tidal

import (
	"regexp"
)

// urlRegex matches track, album and playlist links on tidal.com, optionally
// under the listen./www. subdomains and the browse/ prefix.
var urlRegex = regexp.MustCompile(`^https?://(?:listen\.|www\.)?tidal\.com/(?:browse/)?(track|album|playlist)/([a-zA-Z0-9_-]+)`)

// Kind is the type of catalog entity a link points at.
type Kind int

const (
	KindUnknown Kind = iota
	KindTrack
	KindAlbum
	KindPlaylist
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindAlbum:
		return "album"
	case KindPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

func parseKind(s string) Kind {
	switch s {
	case "track":
		return KindTrack
	case "album":
		return KindAlbum
	case "playlist":
		return KindPlaylist
	default:
		return KindUnknown
	}
}

// Link is a parsed TIDAL URL.
type Link struct {
	Kind Kind
	ID   string
}

// ParseURL extracts the entity kind and id from a TIDAL URL.
func ParseURL(raw string) (Link, bool) {
	m := urlRegex.FindStringSubmatch(raw)
	if m == nil {
		return Link{}, false
	}
	return Link{Kind: parseKind(m[1]), ID: m[2]}, true
}

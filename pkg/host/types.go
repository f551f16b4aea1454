// Package host defines the search contract between the playback manager and its plugins.
package host

import (
	"context"
)

// LoadType describes the outcome class of a search.
type LoadType string

const (
	LoadTypeTrackLoaded    LoadType = "TRACK_LOADED"
	LoadTypePlaylistLoaded LoadType = "PLAYLIST_LOADED"
	LoadTypeSearchResult   LoadType = "SEARCH_RESULT"
	LoadTypeNoMatches      LoadType = "NO_MATCHES"
	LoadTypeLoadFailed     LoadType = "LOAD_FAILED"
)

// SeverityCommon is the severity reported for user-facing search failures.
const SeverityCommon = "COMMON"

// SearchQuery is a search string with an optional source prefix (e.g. "ytsearch").
type SearchQuery struct {
	Source string `json:"source,omitempty"`
	Query  string `json:"query"`
}

// UnresolvedQuery identifies a track by metadata only. Duration is in milliseconds.
type UnresolvedQuery struct {
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// PlaylistInfo is set for playlist-shaped results only.
type PlaylistInfo struct {
	Name     string `json:"name"`
	Duration int64  `json:"duration"`
}

// Exception is set for failed results only.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// SearchResult is what every Searcher in the chain returns.
type SearchResult struct {
	LoadType  LoadType      `json:"loadType"`
	Tracks    []*Track      `json:"tracks"`
	Playlist  *PlaylistInfo `json:"playlist"`
	Exception *Exception    `json:"exception"`
}

// Searcher is the search entry point of the manager. Plugins decorate it.
type Searcher interface {
	Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error)
}

// SearchFunc adapts a plain function to Searcher.
type SearchFunc func(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error)

// Search calls f.
func (f SearchFunc) Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error) {
	return f(ctx, query, requester)
}

// Plugin is loaded once by the manager during Init.
type Plugin interface {
	Load(ctx context.Context, manager *Manager) error
}

// FailedResult builds a failed result with an empty track list.
func FailedResult(loadType LoadType, message string) *SearchResult {
	return &SearchResult{
		LoadType: loadType,
		Tracks:   []*Track{},
		Exception: &Exception{
			Message:  message,
			Severity: SeverityCommon,
		},
	}
}

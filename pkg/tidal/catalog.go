package tidal

import (
	"context"
	"net/url"

	"golang.org/x/sync/errgroup"

	"tidalresolver/pkg/host"
)

// CatalogTrack is a track as returned by the catalog API. Duration is in seconds.
type CatalogTrack struct {
	Title  string `json:"title"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Duration int64 `json:"duration"`
}

type catalogInfo struct {
	Title string `json:"title"`
}

type catalogTrackList struct {
	Items []CatalogTrack `json:"items"`
}

// Result is the metadata fetched for one link. Name is empty for tracks.
type Result struct {
	Tracks []host.UnresolvedQuery
	Name   string
}

// ToQuery converts a catalog track into the host's unresolved query.
func (t CatalogTrack) ToQuery() host.UnresolvedQuery {
	return host.UnresolvedQuery{
		Title:    t.Title,
		Author:   t.Artist.Name,
		Duration: t.Duration * 1000,
	}
}

// GetTrack fetches a single track.
func (p *Plugin) GetTrack(ctx context.Context, id string) (*Result, error) {
	var track CatalogTrack
	if err := p.makeRequest(ctx, "tracks", "/tracks/"+url.PathEscape(id), &track); err != nil {
		return nil, err
	}
	return &Result{Tracks: []host.UnresolvedQuery{track.ToQuery()}}, nil
}

// GetAlbum fetches an album's title and tracks.
func (p *Plugin) GetAlbum(ctx context.Context, id string) (*Result, error) {
	return p.getContainer(ctx, "albums", id)
}

// GetPlaylist fetches a playlist's title and tracks.
func (p *Plugin) GetPlaylist(ctx context.Context, id string) (*Result, error) {
	return p.getContainer(ctx, "playlists", id)
}

// getContainer issues the info and items requests concurrently; both must succeed.
func (p *Plugin) getContainer(ctx context.Context, collection, id string) (*Result, error) {
	base := "/" + collection + "/" + url.PathEscape(id)

	var (
		info catalogInfo
		list catalogTrackList
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.makeRequest(gCtx, collection, base, &info)
	})
	g.Go(func() error {
		return p.makeRequest(gCtx, collection+"/tracks", base+"/tracks", &list)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracks := make([]host.UnresolvedQuery, 0, len(list.Items))
	for _, item := range list.Items {
		tracks = append(tracks, item.ToQuery())
	}

	return &Result{Tracks: tracks, Name: info.Title}, nil
}

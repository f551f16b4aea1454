// Package tidal resolves TIDAL track, album and playlist links into unresolved
// tracks for the playback manager.
//
// The plugin decorates the manager's search function: queries that are not
// TIDAL links are passed through unchanged, links are looked up in the TIDAL
// catalog and returned as unresolved tracks carrying title, author and duration.
package tidal

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tidalresolver/pkg/host"
)

// Plugin is a host.Plugin and host.Searcher for TIDAL links.
type Plugin struct {
	opts    Options
	client  *http.Client
	logger  *zap.Logger
	metrics *Metrics
	mainURL string
	apiURL  string

	tokens  *tokenSource
	manager *host.Manager
	next    host.Searcher
}

var (
	_ host.Plugin   = (*Plugin)(nil)
	_ host.Searcher = (*Plugin)(nil)
)

// New creates a plugin. It does not touch the network until loaded.
func New(opts Options, options ...Option) *Plugin {
	p := &Plugin{
		opts:    opts,
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		logger:  zap.NewNop(),
		mainURL: MainURL,
		apiURL:  APIURL,
	}
	for _, o := range options {
		o(p)
	}
	p.logger = p.logger.Named("tidal")

	p.tokens = &tokenSource{
		mainURL: p.mainURL,
		client:  p.client,
		logger:  p.logger,
		metrics: p.metrics,
	}
	return p
}

// Load wraps the manager's search function and fetches the initial token.
// A failed token fetch is returned; the wrapper stays installed and retries
// the fetch on the first catalog request.
func (p *Plugin) Load(ctx context.Context, manager *host.Manager) error {
	p.manager = manager
	manager.Use(func(next host.Searcher) host.Searcher {
		p.next = next
		return p
	})

	_, err := p.FetchToken(ctx)
	return err
}

// FetchToken scrapes a fresh token from the web player.
func (p *Plugin) FetchToken(ctx context.Context) (string, error) {
	token, _, err := p.tokens.Refresh(ctx, p.tokens.generation())
	return token, err
}

// Ready reports whether the plugin is loaded and holds a token.
func (p *Plugin) Ready() bool {
	return p.next != nil && p.tokens.ready()
}

// Search resolves TIDAL links and delegates every other query to the wrapped
// search function. Failures while resolving a link are reported in the result,
// never as an error.
func (p *Plugin) Search(ctx context.Context, query host.SearchQuery, requester any) (*host.SearchResult, error) {
	if p.next == nil || p.manager == nil {
		return nil, ErrNotLoaded
	}

	link, ok := ParseURL(query.Query)
	if !ok {
		return p.next.Search(ctx, query, requester)
	}

	p.logger.Debug("Matched TIDAL url",
		zap.Stringer("kind", link.Kind),
		zap.String("id", link.ID))

	res, err := p.load(ctx, link, requester)
	if err != nil {
		p.logger.Error("Failed to load TIDAL url",
			zap.String("url", query.Query),
			zap.Error(err))
		p.metrics.recordSearch(link.Kind, "failure")
		return failedResult(err), nil
	}

	p.metrics.recordSearch(link.Kind, "success")
	return res, nil
}

func (p *Plugin) load(ctx context.Context, link Link, requester any) (*host.SearchResult, error) {
	var (
		data     *Result
		err      error
		loadType host.LoadType
	)

	switch link.Kind {
	case KindTrack:
		data, err = p.GetTrack(ctx, link.ID)
		loadType = host.LoadTypeTrackLoaded
	case KindAlbum:
		data, err = p.GetAlbum(ctx, link.ID)
		loadType = host.LoadTypePlaylistLoaded
	case KindPlaylist:
		data, err = p.GetPlaylist(ctx, link.ID)
		loadType = host.LoadTypePlaylistLoaded
	default:
		return nil, ErrInvalidURL
	}
	if err != nil {
		return nil, err
	}

	tracks := make([]*host.Track, 0, len(data.Tracks))
	for _, q := range data.Tracks {
		tracks = append(tracks, p.manager.BuildUnresolved(q, requester))
	}

	if p.opts.ConvertUnresolved {
		if err := resolveAll(ctx, tracks); err != nil {
			return nil, err
		}
	}

	res := &host.SearchResult{
		LoadType: loadType,
		Tracks:   tracks,
	}
	if link.Kind != KindTrack {
		var total int64
		for _, t := range tracks {
			total += t.Duration
		}
		res.Playlist = &host.PlaylistInfo{Name: data.Name, Duration: total}
	}

	return res, nil
}

// resolveAll resolves every track concurrently and returns the first error.
// Tracks that resolved before a failure keep their playable source.
func resolveAll(ctx context.Context, tracks []*host.Track) error {
	var g errgroup.Group
	for _, t := range tracks {
		g.Go(func() error {
			return t.Resolve(ctx)
		})
	}
	return g.Wait()
}

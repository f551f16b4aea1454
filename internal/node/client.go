// Package node is a REST client for a Lavalink-style audio node. It is the
// manager's default search, used for plain queries and for resolving tracks
// that plugins produced from metadata.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"tidalresolver/internal/core"
	"tidalresolver/pkg/host"
)

var (
	// ErrUnexpectedStatus is wrapped by Search when the node does not answer 200.
	ErrUnexpectedStatus = errors.New("node returned unexpected status")
)

type Client struct {
	config *core.NodeConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a node client. The HTTP timeout comes from config.Timeout.
func NewClient(config *core.NodeConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

type loadResponse struct {
	LoadType     string `json:"loadType"`
	PlaylistInfo struct {
		Name string `json:"name"`
	} `json:"playlistInfo"`
	Tracks    []nodeTrack `json:"tracks"`
	Exception *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
}

type nodeTrack struct {
	Info struct {
		Identifier string `json:"identifier"`
		Author     string `json:"author"`
		Length     int64  `json:"length"`
		IsStream   bool   `json:"isStream"`
		Title      string `json:"title"`
		URI        string `json:"uri"`
	} `json:"info"`
}

// Identifier builds the node's identifier for query. An explicit source wins,
// URLs pass through unchanged and anything else becomes a default-source search.
func (c *Client) Identifier(query host.SearchQuery) string {
	if query.Source != "" {
		return query.Source + ":" + query.Query
	}
	if isURL(query.Query) {
		return query.Query
	}
	return c.config.SearchSource + ":" + query.Query
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Search implements host.Searcher.
func (c *Client) Search(ctx context.Context, query host.SearchQuery, requester any) (*host.SearchResult, error) {
	identifier := c.Identifier(query)
	reqURL := strings.TrimSuffix(c.config.URL, "/") + "/loadtracks?identifier=" + url.QueryEscape(identifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create node request: %w", err)
	}
	req.Header.Set("Authorization", c.config.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("node request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode node response: %w", err)
	}

	c.logger.Debug("Node search",
		zap.String("identifier", identifier),
		zap.String("load_type", body.LoadType),
		zap.Int("tracks", len(body.Tracks)))

	return body.toResult(requester), nil
}

func (r *loadResponse) toResult(requester any) *host.SearchResult {
	res := &host.SearchResult{
		LoadType: host.LoadType(r.LoadType),
		Tracks:   make([]*host.Track, 0, len(r.Tracks)),
	}

	for _, t := range r.Tracks {
		res.Tracks = append(res.Tracks, &host.Track{
			Identifier: t.Info.Identifier,
			Title:      t.Info.Title,
			Author:     t.Info.Author,
			URI:        t.Info.URI,
			Duration:   t.Info.Length,
			IsStream:   t.Info.IsStream,
			Requester:  requester,
		})
	}

	switch res.LoadType {
	case host.LoadTypePlaylistLoaded:
		var total int64
		for _, t := range res.Tracks {
			total += t.Duration
		}
		res.Playlist = &host.PlaylistInfo{Name: r.PlaylistInfo.Name, Duration: total}
	case host.LoadTypeLoadFailed:
		res.Exception = &host.Exception{Severity: host.SeverityCommon}
		if r.Exception != nil {
			res.Exception.Message = r.Exception.Message
			if r.Exception.Severity != "" {
				res.Exception.Severity = r.Exception.Severity
			}
		}
	case host.LoadTypeTrackLoaded, host.LoadTypeSearchResult, host.LoadTypeNoMatches:
	default:
		res.LoadType = host.LoadTypeNoMatches
	}

	return res
}

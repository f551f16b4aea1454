package host

import (
	"context"
	"errors"
	"sync"
)

// ErrNotBound is returned when resolving a track that was not built by a Manager.
var ErrNotBound = errors.New("track is not bound to a manager")

// Track is a queue entry. Tracks built from an UnresolvedQuery carry only
// metadata until Resolve locates a playable source for them.
type Track struct {
	Identifier string `json:"identifier,omitempty"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri,omitempty"`
	Duration   int64  `json:"duration"`
	IsStream   bool   `json:"isStream,omitempty"`
	Requester  any    `json:"-"`

	mu      sync.Mutex
	query   *UnresolvedQuery
	manager *Manager
}

// Unresolved reports whether the track still lacks a playable source.
func (t *Track) Unresolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query != nil
}

// Query returns the metadata the track was built from, or nil once resolved.
func (t *Track) Query() *UnresolvedQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.query == nil {
		return nil
	}
	q := *t.query
	return &q
}

// Resolve replaces the track's metadata with the best playable match found by
// the manager. Resolving an already resolved track is a no-op.
func (t *Track) Resolve(ctx context.Context) error {
	t.mu.Lock()
	query, manager := t.query, t.manager
	t.mu.Unlock()

	if query == nil {
		return nil
	}
	if manager == nil {
		return ErrNotBound
	}

	found, err := manager.resolve(ctx, *query)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Identifier = found.Identifier
	t.Title = found.Title
	t.Author = found.Author
	t.URI = found.URI
	t.Duration = found.Duration
	t.IsStream = found.IsStream
	t.query = nil
	return nil
}

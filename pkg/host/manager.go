package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tidalresolver/pkg/fuzzy"
)

const (
	// durationMatchWindow is how far a candidate's duration may drift from the
	// requested one and still count as the same recording.
	durationMatchWindow = 1500 * time.Millisecond
)

var (
	// ErrNoMatches is returned by Resolve when the base search found nothing.
	ErrNoMatches = errors.New("no matches found")
)

// Manager owns the search chain. The base searcher is the default search
// behaviour; plugins wrap it during Init through Use.
type Manager struct {
	base       Searcher
	search     Searcher
	plugins    []Plugin
	logger     *zap.Logger
	normalizer *fuzzy.Normalizer

	mu          sync.RWMutex
	initialized bool
}

// NewManager creates a manager whose default search is base.
func NewManager(base Searcher, logger *zap.Logger, plugins ...Plugin) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		base:       base,
		search:     base,
		plugins:    plugins,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
	}
}

// Init loads every plugin in registration order. It is safe to call once.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	for i, p := range m.plugins {
		if err := p.Load(ctx, m); err != nil {
			return fmt.Errorf("failed to load plugin %d (%T): %w", i, p, err)
		}
		m.logger.Debug("Loaded plugin", zap.String("plugin", fmt.Sprintf("%T", p)))
	}
	return nil
}

// Use wraps the current search function. The wrapper receives the previous
// search function and must fall back to it for queries it does not handle.
func (m *Manager) Use(wrap func(next Searcher) Searcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.search = wrap(m.search)
}

// Search runs the composed search chain.
func (m *Manager) Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error) {
	m.mu.RLock()
	s := m.search
	m.mu.RUnlock()

	res, err := s.Search(ctx, query, requester)
	if err != nil {
		return nil, err
	}
	if res.Tracks == nil {
		res.Tracks = []*Track{}
	}
	return res, nil
}

// BuildUnresolved creates a track bound to m that resolves lazily from q.
func (m *Manager) BuildUnresolved(q UnresolvedQuery, requester any) *Track {
	query := q
	return &Track{
		Title:     q.Title,
		Author:    q.Author,
		Duration:  q.Duration,
		Requester: requester,
		query:     &query,
		manager:   m,
	}
}

func (m *Manager) resolve(ctx context.Context, q UnresolvedQuery) (*Track, error) {
	term := q.Title
	if q.Author != "" {
		term = q.Author + " - " + q.Title
	}

	res, err := m.base.Search(ctx, SearchQuery{Query: term}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", term, err)
	}
	if res.Exception != nil {
		return nil, fmt.Errorf("failed to resolve %q: %s", term, res.Exception.Message)
	}
	if len(res.Tracks) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoMatches, term)
	}

	best := m.pickBest(q, res.Tracks)
	m.logger.Debug("Resolved track",
		zap.String("query", term),
		zap.String("identifier", best.Identifier),
		zap.String("title", best.Title))
	return best, nil
}

func (m *Manager) pickBest(q UnresolvedQuery, candidates []*Track) *Track {
	wantTitle := m.normalizer.NormalizeTitle(q.Title)
	wantArtist := m.normalizer.NormalizeArtist(q.Author)

	if q.Author != "" {
		for _, c := range candidates {
			if m.normalizer.NormalizeTitle(c.Title) == wantTitle &&
				m.normalizer.NormalizeArtist(c.Author) == wantArtist {
				return c
			}
		}
	}

	if q.Duration > 0 {
		want := time.Duration(q.Duration) * time.Millisecond
		for _, c := range candidates {
			got := time.Duration(c.Duration) * time.Millisecond
			if diff := want - got; diff >= -durationMatchWindow && diff <= durationMatchWindow {
				return c
			}
		}
	}

	want := fuzzy.Candidate{
		Title:    q.Title,
		Artist:   q.Author,
		Duration: time.Duration(q.Duration) * time.Millisecond,
	}
	best, bestScore := candidates[0], 0.0
	for _, c := range candidates {
		score := m.normalizer.Score(want, fuzzy.Candidate{
			Title:    c.Title,
			Artist:   c.Author,
			Duration: time.Duration(c.Duration) * time.Millisecond,
		})
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

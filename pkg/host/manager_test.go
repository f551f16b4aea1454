package host

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type stubSearcher struct {
	queries []SearchQuery
	results map[string]*SearchResult
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query SearchQuery, _ any) (*SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.results[query.Query]; ok {
		return res, nil
	}
	return &SearchResult{LoadType: LoadTypeNoMatches}, nil
}

type prefixPlugin struct {
	prefix string
	loads  int
	err    error
}

func (p *prefixPlugin) Load(_ context.Context, m *Manager) error {
	p.loads++
	m.Use(func(next Searcher) Searcher {
		return SearchFunc(func(ctx context.Context, q SearchQuery, requester any) (*SearchResult, error) {
			if strings.HasPrefix(q.Query, p.prefix) {
				return &SearchResult{LoadType: LoadTypeTrackLoaded, Tracks: []*Track{{Title: p.prefix}}}, nil
			}
			return next.Search(ctx, q, requester)
		})
	})
	return p.err
}

func TestManager_Init_ComposesPlugins(t *testing.T) {
	base := &stubSearcher{}
	first := &prefixPlugin{prefix: "a:"}
	second := &prefixPlugin{prefix: "b:"}
	m := NewManager(base, zap.NewNop(), first, second)

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if first.loads != 1 || second.loads != 1 {
		t.Errorf("plugin loads = %d/%d, want 1/1", first.loads, second.loads)
	}

	tests := []struct {
		query     string
		wantTitle string
		wantBase  int
	}{
		{query: "a:x", wantTitle: "a:", wantBase: 0},
		{query: "b:x", wantTitle: "b:", wantBase: 0},
		{query: "plain", wantTitle: "", wantBase: 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			base.queries = nil
			res, err := m.Search(context.Background(), SearchQuery{Query: tt.query}, nil)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(base.queries) != tt.wantBase {
				t.Errorf("base calls = %d, want %d", len(base.queries), tt.wantBase)
			}
			if res.Tracks == nil {
				t.Fatal("Search() tracks = nil, want non-nil slice")
			}
			if tt.wantTitle != "" && (len(res.Tracks) != 1 || res.Tracks[0].Title != tt.wantTitle) {
				t.Errorf("Search() tracks = %+v, want title %q", res.Tracks, tt.wantTitle)
			}
		})
	}
}

func TestManager_Init_PluginError(t *testing.T) {
	loadErr := errors.New("boom")
	m := NewManager(&stubSearcher{}, nil, &prefixPlugin{prefix: "a:", err: loadErr})

	err := m.Init(context.Background())
	if !errors.Is(err, loadErr) {
		t.Errorf("Init() error = %v, want wrapped %v", err, loadErr)
	}
}

func TestManager_BuildUnresolved(t *testing.T) {
	m := NewManager(&stubSearcher{}, nil)

	track := m.BuildUnresolved(UnresolvedQuery{Title: "Song", Author: "Artist", Duration: 1000}, "me")
	if !track.Unresolved() {
		t.Error("BuildUnresolved() track should be unresolved")
	}
	if track.Title != "Song" || track.Author != "Artist" || track.Duration != 1000 || track.Requester != "me" {
		t.Errorf("BuildUnresolved() = %+v, want fields copied from query", track)
	}
	if q := track.Query(); q == nil || q.Title != "Song" {
		t.Errorf("Query() = %+v, want original query", q)
	}
}

func TestTrack_Resolve(t *testing.T) {
	candidates := []*Track{
		{Identifier: "acoustic", Title: "Song Acoustic", Author: "Artist", Duration: 400000},
		{Identifier: "lyric", Title: "Song lyric video", Author: "Uploader", Duration: 201000},
		{Identifier: "official", Title: "Song", Author: "Artist", Duration: 200000},
	}

	tests := []struct {
		name  string
		query UnresolvedQuery
		want  string
	}{
		{
			name:  "Exact title and author",
			query: UnresolvedQuery{Title: "Song", Author: "Artist", Duration: 200000},
			want:  "official",
		},
		{
			name:  "Duration within window",
			query: UnresolvedQuery{Title: "Song", Author: "Nobody", Duration: 202000},
			want:  "lyric",
		},
		{
			name:  "Best fuzzy score",
			query: UnresolvedQuery{Title: "Song", Author: "Artist Band", Duration: 10000},
			want:  "official",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := tt.query.Author + " - " + tt.query.Title
			base := &stubSearcher{results: map[string]*SearchResult{
				term: {LoadType: LoadTypeSearchResult, Tracks: candidates},
			}}
			m := NewManager(base, nil)

			track := m.BuildUnresolved(tt.query, nil)
			if err := track.Resolve(context.Background()); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if track.Identifier != tt.want {
				t.Errorf("Resolve() picked %q, want %q", track.Identifier, tt.want)
			}
			if track.Unresolved() {
				t.Error("Resolve() left track unresolved")
			}

			if err := track.Resolve(context.Background()); err != nil {
				t.Errorf("second Resolve() error = %v", err)
			}
			if len(base.queries) != 1 {
				t.Errorf("base calls = %d, want 1", len(base.queries))
			}
		})
	}
}

func TestTrack_Resolve_Errors(t *testing.T) {
	t.Run("No matches", func(t *testing.T) {
		m := NewManager(&stubSearcher{}, nil)
		err := m.BuildUnresolved(UnresolvedQuery{Title: "Nothing"}, nil).Resolve(context.Background())
		if !errors.Is(err, ErrNoMatches) {
			t.Errorf("Resolve() error = %v, want ErrNoMatches", err)
		}
	})

	t.Run("Failed search", func(t *testing.T) {
		base := &stubSearcher{results: map[string]*SearchResult{
			"Nothing": FailedResult(LoadTypeLoadFailed, "node down"),
		}}
		m := NewManager(base, nil)
		err := m.BuildUnresolved(UnresolvedQuery{Title: "Nothing"}, nil).Resolve(context.Background())
		if err == nil || !strings.Contains(err.Error(), "node down") {
			t.Errorf("Resolve() error = %v, want node failure", err)
		}
	})

	t.Run("Unbound", func(t *testing.T) {
		track := &Track{Title: "x", query: &UnresolvedQuery{Title: "x"}}
		if err := track.Resolve(context.Background()); !errors.Is(err, ErrNotBound) {
			t.Errorf("Resolve() error = %v, want ErrNotBound", err)
		}
	})

	t.Run("Already playable", func(t *testing.T) {
		track := &Track{Identifier: "id", Title: "x"}
		if err := track.Resolve(context.Background()); err != nil {
			t.Errorf("Resolve() error = %v, want nil", err)
		}
	})
}

package tidal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"tidalresolver/pkg/host"
)

const (
	testScriptID = "8f2c1a0b"
	testToken    = "gsFXkJqGrUNoYMQPZe4k3WKwijnrp8iGSwn3bApe"
)

// fakeTidal serves the web player page, its app bundle and the catalog API.
type fakeTidal struct {
	server *httptest.Server

	mainStatus   int
	mainDelay    time.Duration
	mainPage     string
	scriptStatus int
	script       string
	apiStatus    int
	bodies       map[string]any

	rejectNext atomic.Int32
	// rejectTogether holds each 401 until every pending rejection was handed out.
	rejectTogether bool
	scrapes    atomic.Int32
	apiCalls   atomic.Int32

	mu        sync.Mutex
	countries []string
	tokens    []string
	agents    []string
}

// newFakeTidal starts the fake; configure runs before the server accepts requests.
func newFakeTidal(t *testing.T, configure ...func(*fakeTidal)) *fakeTidal {
	t.Helper()

	f := &fakeTidal{
		mainPage: `<html><head><script defer="defer" src="/app.` + testScriptID + `.js"></script></head></html>`,
		script:   `var e=Xy()?"tR2fRnoAmvWF6qeN":"` + testToken + `",n=1;`,
		bodies:   map[string]any{},
	}
	for _, c := range configure {
		c(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		f.scrapes.Add(1)
		if f.mainDelay > 0 {
			time.Sleep(f.mainDelay)
		}
		if f.mainStatus != 0 {
			w.WriteHeader(f.mainStatus)
			return
		}
		_, _ = w.Write([]byte(f.mainPage))
	})
	mux.HandleFunc("/app."+testScriptID+".js", func(w http.ResponseWriter, _ *http.Request) {
		if f.scriptStatus != 0 {
			w.WriteHeader(f.scriptStatus)
			return
		}
		_, _ = w.Write([]byte(f.script))
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)

		f.mu.Lock()
		f.countries = append(f.countries, r.URL.Query().Get("countryCode"))
		f.tokens = append(f.tokens, r.Header.Get("x-tidal-token"))
		f.agents = append(f.agents, r.Header.Get("User-Agent"))
		f.mu.Unlock()

		if f.rejectNext.Load() > 0 {
			f.rejectNext.Add(-1)
			for deadline := time.Now().Add(time.Second); f.rejectTogether && f.rejectNext.Load() > 0 && time.Now().Before(deadline); {
				time.Sleep(time.Millisecond)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.apiStatus != 0 {
			w.WriteHeader(f.apiStatus)
			return
		}

		body, ok := f.bodies[strings.TrimPrefix(r.URL.Path, "/v1")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTidal) lastCountry() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.countries) == 0 {
		return ""
	}
	return f.countries[len(f.countries)-1]
}

func (f *fakeTidal) plugin(opts Options, extra ...Option) *Plugin {
	options := append([]Option{
		WithEndpoints(f.server.URL, f.server.URL+"/v1"),
		WithHTTPClient(f.server.Client()),
	}, extra...)
	return New(opts, options...)
}

func trackBody(title, artist string, seconds int64) map[string]any {
	return map[string]any{
		"id":       1,
		"title":    title,
		"artist":   map[string]any{"name": artist},
		"duration": seconds,
	}
}

// fakeSearcher stands in for the manager's default search.
type fakeSearcher struct {
	mu         sync.Mutex
	queries    []host.SearchQuery
	requesters []any
	byQuery    map[string]*host.SearchResult
	err        error
}

func (s *fakeSearcher) Search(_ context.Context, query host.SearchQuery, requester any) (*host.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, query)
	s.requesters = append(s.requesters, requester)

	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.byQuery[query.Query]; ok {
		return res, nil
	}
	return &host.SearchResult{LoadType: host.LoadTypeNoMatches, Tracks: []*host.Track{}}, nil
}

func (s *fakeSearcher) calls() []host.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]host.SearchQuery(nil), s.queries...)
}

// loadPlugin builds a manager around base and loads p into it.
func loadPlugin(t *testing.T, p *Plugin, base host.Searcher) *host.Manager {
	t.Helper()

	manager := host.NewManager(base, zap.NewNop(), p)
	if err := manager.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return manager
}

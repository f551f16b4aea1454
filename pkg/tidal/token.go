package tidal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// maxScrapeSize caps how much of the web player page or bundle is read.
	maxScrapeSize = 16 << 20
)

var (
	scriptRegex = regexp.MustCompile(`src="/app\.([a-zA-Z0-9_-]+)\.js"`)
	tokenRegex  = regexp.MustCompile(`[a-zA-Z0-9_-]{2}\(\)\?"[a-zA-Z0-9_-]+":"([a-zA-Z0-9_-]+)"`)
)

type tokenState int

const (
	tokenStateNone tokenState = iota
	tokenStateFetching
	tokenStateReady
)

// tokenSource scrapes the web player for the client token used by the
// catalog API. The token lives until the API rejects it.
//
// The scrape depends on the current bundling of listen.tidal.com: the main
// page must reference src="/app.<id>.js" and that bundle must inline the
// token as the second literal of a `xx()?"a":"token"` ternary.
type tokenSource struct {
	mainURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *Metrics

	mu    sync.RWMutex
	token string
	gen   uint64
	state tokenState

	group singleflight.Group
}

// Token returns the current token and its generation, scraping one first if
// none is held.
func (s *tokenSource) Token(ctx context.Context) (string, uint64, error) {
	s.mu.RLock()
	token, gen, state := s.token, s.gen, s.state
	s.mu.RUnlock()

	if state == tokenStateReady {
		return token, gen, nil
	}
	return s.fetch(ctx)
}

func (s *tokenSource) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == tokenStateReady
}

func (s *tokenSource) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Refresh discards the token of generation stale and scrapes a new one. If
// another caller already replaced it, the newer token is returned without
// scraping again.
func (s *tokenSource) Refresh(ctx context.Context, stale uint64) (string, uint64, error) {
	s.mu.Lock()
	if s.state == tokenStateReady && s.gen != stale {
		token, gen := s.token, s.gen
		s.mu.Unlock()
		return token, gen, nil
	}
	if s.state == tokenStateReady {
		s.token = ""
		s.state = tokenStateNone
	}
	s.mu.Unlock()

	return s.fetch(ctx)
}

type tokenLease struct {
	token string
	gen   uint64
}

// fetch coalesces concurrent scrapes into one. The scrape outlives a caller
// that gives up, so one cancelled request cannot fail the others waiting on it.
func (s *tokenSource) fetch(ctx context.Context) (string, uint64, error) {
	ch := s.group.DoChan("token", func() (any, error) {
		s.mu.Lock()
		if s.state == tokenStateReady {
			lease := tokenLease{token: s.token, gen: s.gen}
			s.mu.Unlock()
			return lease, nil
		}
		s.state = tokenStateFetching
		s.mu.Unlock()

		scrapeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultRequestTimeout)
		defer cancel()

		token, err := s.scrape(scrapeCtx)
		s.metrics.recordTokenRefresh(err)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.state = tokenStateNone
			s.token = ""
			return nil, err
		}
		s.gen++
		s.state = tokenStateReady
		s.token = token
		s.logger.Info("Fetched TIDAL token", zap.Uint64("generation", s.gen))
		return tokenLease{token: token, gen: s.gen}, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Joined in-flight TIDAL token fetch")
		}
		if res.Err != nil {
			return "", 0, res.Err
		}
		lease := res.Val.(tokenLease)
		return lease.token, lease.gen, nil
	case <-ctx.Done():
		return "", 0, fmt.Errorf("gave up waiting for TIDAL token: %w", ctx.Err())
	}
}

func (s *tokenSource) scrape(ctx context.Context) (string, error) {
	status, page, err := s.get(ctx, s.mainURL+"/")
	if err != nil {
		return "", fmt.Errorf("failed to fetch TIDAL main page: %w", err)
	}
	if status != http.StatusOK {
		return "", &ScrapeError{
			Reason:     "Main TIDAL page didn't return a 200 (OK) status code.",
			StatusCode: status,
		}
	}

	script := scriptRegex.FindStringSubmatch(page)
	if script == nil || script[1] == "" {
		return "", &ScrapeError{Reason: "Script id not found on main TIDAL page.", StatusCode: status}
	}
	s.logger.Debug("Found TIDAL app script", zap.String("script_id", script[1]))

	status, source, err := s.get(ctx, fmt.Sprintf("%s/app.%s.js", s.mainURL, script[1]))
	if err != nil {
		return "", fmt.Errorf("failed to fetch TIDAL app script: %w", err)
	}
	if status != http.StatusOK {
		return "", &ScrapeError{
			Reason:     "Script page didn't return a 200 (OK) status code.",
			StatusCode: status,
		}
	}

	token := tokenRegex.FindStringSubmatch(source)
	if token == nil || token[1] == "" {
		return "", &ScrapeError{Reason: "Token not found on script page.", StatusCode: status}
	}

	return token[1], nil
}

func (s *tokenSource) get(ctx context.Context, pageURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeSize))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, string(body), nil
}

package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	// userAgent is sent on every request; the web player serves the token bundle to browsers only.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/99.0.4844.84 Safari/537.36 OPR/85.0.4341.68"

	// MainURL is the TIDAL web player the token is scraped from.
	MainURL = "https://listen.tidal.com"
	// APIURL is the base of the TIDAL v1 catalog API.
	APIURL = "https://api.tidal.com/v1"
)

// makeRequest GETs path from the catalog API and decodes the JSON body into dest.
// A 401 refreshes the token and retries once; a second 401 is returned as *APIError.
func (p *Plugin) makeRequest(ctx context.Context, endpoint, path string, dest any) error {
	token, gen, err := p.tokens.Token(ctx)
	if err != nil {
		return err
	}

	status, err := p.doRequest(ctx, endpoint, path, token, dest)
	if status != http.StatusUnauthorized {
		return err
	}

	p.logger.Warn("TIDAL api rejected token, refreshing",
		zap.String("path", path))

	token, _, err = p.tokens.Refresh(ctx, gen)
	if err != nil {
		return err
	}

	_, err = p.doRequest(ctx, endpoint, path, token, dest)
	return err
}

// doRequest performs one authenticated GET. It returns the status code (0 on
// transport failure) and an error for anything but 200 OK.
func (p *Plugin) doRequest(ctx context.Context, endpoint, path, token string, dest any) (int, error) {
	params := url.Values{}
	params.Set("countryCode", p.opts.countryCode())
	reqURL := p.apiURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("x-tidal-token", token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.metrics.recordAPIRequest(endpoint, 0, time.Since(start))
		return 0, fmt.Errorf("TIDAL api request %s failed: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	p.metrics.recordAPIRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, &APIError{Path: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode TIDAL api response for %s: %w", path, err)
	}

	return resp.StatusCode, nil
}

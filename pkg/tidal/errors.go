package tidal

import (
	"errors"
	"fmt"
	"net/http"

	"tidalresolver/pkg/host"
)

var (
	// ErrInvalidURL is reported when a matched URL kind has no fetch routine.
	ErrInvalidURL = errors.New("Invalid TIDAL url.")
	// ErrNotLoaded is returned by Search before the plugin was loaded into a manager.
	ErrNotLoaded = errors.New("TIDALPlugin#search plugin has not been loaded into a manager")
)

const scrapeErrorPrefix = "TIDALPlugin#fetchToken failed to fetch token. "

// OptionError reports an option value of the wrong type.
type OptionError struct {
	Option string
	Want   string
	Got    any
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("TIDALPlugin#options %s must be a %s.", e.Option, e.Want)
}

// ScrapeError reports a failure to extract the web player token.
type ScrapeError struct {
	Reason     string
	StatusCode int
}

func (e *ScrapeError) Error() string {
	return scrapeErrorPrefix + e.Reason
}

// APIError reports a catalog response other than 200 OK.
type APIError struct {
	Path       string
	StatusCode int
}

func (e *APIError) Error() string {
	return "TIDALPlugin#makeRequest TIDAL api didn't return 200 (OK) as status code."
}

// LoadType maps a missing catalog entry to NO_MATCHES; everything else failed to load.
func (e *APIError) LoadType() host.LoadType {
	if e.StatusCode == http.StatusNotFound {
		return host.LoadTypeNoMatches
	}
	return host.LoadTypeLoadFailed
}

// loadTyper is implemented by errors that pick the load type of a failed search.
type loadTyper interface {
	LoadType() host.LoadType
}

// failedResult converts an error reaching the search boundary into a result.
func failedResult(err error) *host.SearchResult {
	loadType := host.LoadTypeLoadFailed
	var lt loadTyper
	if errors.As(err, &lt) {
		loadType = lt.LoadType()
	}
	return host.FailedResult(loadType, err.Error())
}

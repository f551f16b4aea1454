package tidal

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCountryCode is sent when Options.CountryCode is empty.
	DefaultCountryCode = "US"
	// DefaultRequestTimeout bounds every request made by the plugin.
	DefaultRequestTimeout = 10 * time.Second

	optionConvertUnresolved = "convertUnresolved"
	optionCountryCode       = "countryCode"
)

// Options configures the plugin. It is copied on construction.
type Options struct {
	// ConvertUnresolved resolves every produced track before Search returns.
	ConvertUnresolved bool
	// CountryCode localises catalog responses. Defaults to "US".
	CountryCode string
}

func (o Options) countryCode() string {
	if o.CountryCode == "" {
		return DefaultCountryCode
	}
	return o.CountryCode
}

// OptionsFromMap builds Options from loosely typed configuration such as a
// decoded JSON or YAML document. Keys match case-insensitively; unknown keys
// are ignored. A value of the wrong type fails with *OptionError.
func OptionsFromMap(raw map[string]any) (Options, error) {
	var opts Options
	for key, value := range raw {
		switch strings.ToLower(key) {
		case strings.ToLower(optionConvertUnresolved):
			if value == nil {
				continue
			}
			b, ok := value.(bool)
			if !ok {
				return Options{}, &OptionError{Option: optionConvertUnresolved, Want: "boolean", Got: value}
			}
			opts.ConvertUnresolved = b
		case strings.ToLower(optionCountryCode):
			if value == nil {
				continue
			}
			s, ok := value.(string)
			if !ok {
				return Options{}, &OptionError{Option: optionCountryCode, Want: "string", Got: value}
			}
			opts.CountryCode = s
		}
	}
	return opts, nil
}

// Option customises a Plugin beyond its user-facing Options.
type Option func(*Plugin)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Plugin) {
		if client != nil {
			p.client = client
		}
	}
}

// WithLogger sets the logger. The plugin logs under the "tidal" name.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records plugin activity on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Plugin) {
		p.metrics = m
	}
}

// WithEndpoints points the plugin at a different web player and API base URL.
func WithEndpoints(mainURL, apiURL string) Option {
	return func(p *Plugin) {
		if mainURL != "" {
			p.mainURL = strings.TrimSuffix(mainURL, "/")
		}
		if apiURL != "" {
			p.apiURL = strings.TrimSuffix(apiURL, "/")
		}
	}
}

// Package core holds the service configuration shared by the CLI, the HTTP server and the node client.
package core

import (
	"time"

	"tidalresolver/pkg/tidal"
)

const (
	// DefaultServerPort is the port the HTTP server listens on.
	DefaultServerPort = 8080
	// DefaultNodeURL is the audio node's REST endpoint.
	DefaultNodeURL = "http://localhost:2333"
	// DefaultNodePassword is the stock audio node password.
	DefaultNodePassword = "youshallnotpass"
	// DefaultNodeTimeout bounds a single node search.
	DefaultNodeTimeout = 10 * time.Second
	// DefaultSearchSource is prefixed to plain text node searches.
	DefaultSearchSource = "ytsearch"
	// DefaultSearchLimitPerMinute caps /search calls per client address.
	DefaultSearchLimitPerMinute = 30
)

type Config struct {
	Tidal  TidalConfig
	Node   NodeConfig
	Server ServerConfig
	Log    LogConfig
}

type TidalConfig struct {
	ConvertUnresolved bool
	CountryCode       string

	// OptionsFile is an optional JSON/YAML document with plugin options. Its
	// values are type-checked and override the flags above.
	OptionsFile string
}

type NodeConfig struct {
	URL          string
	Password     string
	Timeout      time.Duration
	SearchSource string
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	SearchLimitPerMinute int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func DefaultConfig() *Config {
	return &Config{
		Tidal: TidalConfig{
			CountryCode: tidal.DefaultCountryCode,
		},
		Node: NodeConfig{
			URL:          DefaultNodeURL,
			Password:     DefaultNodePassword,
			Timeout:      DefaultNodeTimeout,
			SearchSource: DefaultSearchSource,
		},
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 DefaultServerPort,
			ReadTimeout:          10 * time.Second,
			WriteTimeout:         30 * time.Second,
			SearchLimitPerMinute: DefaultSearchLimitPerMinute,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// PluginOptions returns the TIDAL plugin options described by c.
func (c TidalConfig) PluginOptions() tidal.Options {
	return tidal.Options{
		ConvertUnresolved: c.ConvertUnresolved,
		CountryCode:       c.CountryCode,
	}
}

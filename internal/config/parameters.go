// Package config provides a centralized entrypoint for the application parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"go.yaml.in/yaml/v3"
)

var (
	// Global is a struct that contains the global configuration.
	Global global
	// Webhook is a struct that contains the configuration for the webhook ingest server.
	Webhook webhook
	// Gateway is a struct that contains the configuration for the upstream WAHA gateway.
	Gateway gateway
	// Tunnel is a struct that contains the configuration for the tunnel provider.
	Tunnel tunnel
	// Cache is a struct that contains the configuration for the resource cache.
	Cache cache
)

type global struct {
	// Logging is a struct that contains the logging configuration.
	Logging struct {
		// Verbosity is the verbosity level of the application. It represents slog levels.
		Verbosity int `yaml:"verbosity,omitempty"`
		// CallerTrace is a flag that enables the caller trace in the logger.
		CallerTrace bool `yaml:"callerTrace,omitempty"`
	} `yaml:"logging,omitempty"`
}

type webhook struct {
	// Enabled toggles the whole event pipeline. When false, only the resource read path is served.
	Enabled bool `yaml:"enabled,omitempty" default:"true"`
	// Addr is the address to bind the ingest listener to.
	Addr string `yaml:"addr,omitempty"`
	// Port is the port to bind the ingest listener to.
	Port string `yaml:"port,omitempty" default:"8085"`
	// Path is the path the upstream gateway posts events to.
	Path string `yaml:"path,omitempty" default:"/webhook"`
	// Secret is the shared HMAC-SHA256 secret. If empty, signature verification is skipped.
	Secret string `yaml:"secret,omitempty"`
	// Events is the set of gateway event types subscribed to at registration time.
	Events []string `yaml:"events,omitempty" default:"[\"message\", \"message.ack\", \"state.change\"]"`
	// Timeout is the read/write/idle timeout of the HTTP server.
	Timeout time.Duration `yaml:"timeout,omitempty" default:"15s"`
	// DispatchTimeout bounds the authenticate-parse-dispatch chain of a single delivery.
	DispatchTimeout time.Duration `yaml:"dispatchTimeout,omitempty" default:"10s"`
	// MaxBodyBytes caps the accepted request body size.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" default:"4194304"`
	// RateLimit is the per-IP sustained request rate. Zero disables rate limiting.
	RateLimit float64 `yaml:"rateLimit,omitempty" default:"25"`
	// RateBurst is the per-IP burst capacity.
	RateBurst int `yaml:"rateBurst,omitempty" default:"50"`
}

type gateway struct {
	// URL is the base URL of the upstream WAHA gateway.
	URL string `yaml:"url,omitempty" default:"http://localhost:3000"`
	// APIKey authenticates calls to the gateway. Optional.
	APIKey string `yaml:"apiKey,omitempty"`
	// Session is the default gateway session name.
	Session string `yaml:"session,omitempty" default:"default"`
	// Timeout bounds individual gateway calls.
	Timeout time.Duration `yaml:"timeout,omitempty" default:"30s"`
}

type tunnel struct {
	// Enabled toggles tunnel acquisition and webhook registration at startup.
	Enabled bool `yaml:"enabled,omitempty"`
	// AuthToken authenticates against the tunnel provider.
	AuthToken string `yaml:"authToken,omitempty"`
	// ProviderURL is the local API endpoint of the tunnel provider agent.
	ProviderURL string `yaml:"providerUrl,omitempty" default:"http://127.0.0.1:4040"`
}

type cache struct {
	// Enabled toggles the resource cache. When false, every read goes upstream.
	Enabled bool `yaml:"enabled,omitempty" default:"true"`
	// TTL is the time-to-live of a cache entry.
	TTL time.Duration `yaml:"ttl,omitempty" default:"5m"`
	// MaxEntries bounds the number of cached entries before LRU eviction.
	MaxEntries int `yaml:"maxEntries,omitempty" default:"256"`
	// PruneInterval is how often expired entries are swept regardless of access.
	PruneInterval time.Duration `yaml:"pruneInterval,omitempty" default:"1m"`
}

// SetDefaults sets the default values for the configuration.
func SetDefaults() error {
	return errors.Join(
		defaults.Set(&Global),
		defaults.Set(&Webhook),
		defaults.Set(&Gateway),
		defaults.Set(&Tunnel),
		defaults.Set(&Cache),
	)
}

// LoadFromFile loads the configuration from a file.
func LoadFromFile(path string) error {
	if len(path) == 0 {
		return nil
	}
	fstat, err := os.Stat(path)
	if err != nil {
		return nil //nolint:nilerr // If the file does not exist, we ignore it.
	}
	if fstat.IsDir() {
		return fmt.Errorf("configuration file %s is a directory", path)
	}
	if !fstat.Mode().IsRegular() {
		return fmt.Errorf("configuration file %s is not a regular file", path)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	type all struct {
		Global  global  `yaml:"global,omitempty"`
		Webhook webhook `yaml:"webhook,omitempty"`
		Gateway gateway `yaml:"gateway,omitempty"`
		Tunnel  tunnel  `yaml:"tunnel,omitempty"`
		Cache   cache   `yaml:"cache,omitempty"`
	}
	var a all
	if err = yaml.Unmarshal(content, &a); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file %s: %w", path, err)
	}
	Global = a.Global
	Webhook = a.Webhook
	Gateway = a.Gateway
	Tunnel = a.Tunnel
	Cache = a.Cache

	return nil
}

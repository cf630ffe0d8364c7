// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

const (
	backendRemote = "remote"
	backendLocal  = "local"
)

// Config is the statikv-server runtime configuration. It is loaded
// from a single YAML file named by --config or STATIKV_SERVER_CONFIG;
// there is no discovery and no hidden overrides, so a deployment's
// behavior is fully determined by one auditable file. The only
// substitution is ${VAR} expansion in path and endpoint fields, so
// the same file can move between environments.
type Config struct {
	// Listen is the TCP listen address (e.g. ":7676").
	Listen string `yaml:"listen"`

	// PublishID and Collection select what to serve.
	PublishID  string `yaml:"publish_id"`
	Collection string `yaml:"collection"`

	// CacheTTL bounds how stale the cached collection state may be;
	// a new publish becomes visible within this window. A duration
	// string ("30s", "2m"). Empty means the engine default.
	CacheTTL string `yaml:"cache_ttl"`

	// ShutdownTimeout bounds the graceful-shutdown drain. A duration
	// string. Empty means the server default.
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// InlineDir optionally points at a publish output's inline
	// bundle; assets found there are served from disk.
	InlineDir string `yaml:"inline_dir"`

	// Storage selects the backend holding the published records.
	Storage StorageConfig `yaml:"storage"`

	// Parsed duration fields, populated by validate.
	cacheTTL        time.Duration
	shutdownTimeout time.Duration
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is "remote" or "local". Required: a serving daemon
	// must name its store explicitly.
	Backend string `yaml:"backend"`

	// URL and Store configure the remote key/value service.
	URL   string `yaml:"url"`
	Store string `yaml:"store"`

	// Dir is the local store directory (local backend).
	Dir string `yaml:"dir"`
}

func defaultConfig() *Config {
	return &Config{
		Listen:          ":7676",
		Collection:      "default",
		CacheTTL:        "30s",
		ShutdownTimeout: "10s",
	}
}

// loadConfig reads, parses, expands, and validates the config file
// at path.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// parseConfig parses YAML config bytes over the defaults. Absent
// fields keep their defaults.
func parseConfig(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	for _, field := range []*string{&c.Storage.URL, &c.Storage.Store, &c.Storage.Dir, &c.InlineDir} {
		*field = expandVars(*field)
	}
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// validate checks the configuration and reports every problem found,
// not just the first.
func (c *Config) validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.PublishID == "" {
		errs = append(errs, fmt.Errorf("publish_id is required"))
	} else if err := schema.ValidateName(c.PublishID); err != nil {
		errs = append(errs, fmt.Errorf("publish_id: %w", err))
	}
	if err := schema.ValidateName(c.Collection); err != nil {
		errs = append(errs, fmt.Errorf("collection: %w", err))
	}

	for _, field := range []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"cache_ttl", c.CacheTTL, &c.cacheTTL},
		{"shutdown_timeout", c.ShutdownTimeout, &c.shutdownTimeout},
	} {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		case parsed <= 0:
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field.name, field.value))
		default:
			*field.out = parsed
		}
	}

	switch c.Storage.Backend {
	case backendLocal:
		if c.Storage.Dir == "" {
			errs = append(errs, fmt.Errorf("storage.dir is required for the local backend"))
		}
	case backendRemote:
		if c.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage.url is required for the remote backend"))
		}
		if c.Storage.Store == "" {
			errs = append(errs, fmt.Errorf("storage.store is required for the remote backend"))
		}
	case "":
		errs = append(errs, fmt.Errorf("storage.backend is required (%q or %q)", backendRemote, backendLocal))
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q",
			backendRemote, backendLocal, c.Storage.Backend))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// provider constructs the storage backend the config selects.
func (c *Config) provider(logger *slog.Logger) (kvstore.Provider, error) {
	switch c.Storage.Backend {
	case backendLocal:
		return kvstore.NewLocal(c.Storage.Dir)
	case backendRemote:
		return kvstore.NewRemote(kvstore.RemoteConfig{
			URL:    c.Storage.URL,
			Store:  c.Storage.Store,
			Logger: logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

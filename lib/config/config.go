// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/statikv/statikv/lib/assetindex"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
	"github.com/statikv/statikv/lib/variant"
)

const (
	// DefaultFileName is the config file looked for in the working
	// directory when --config is not given.
	DefaultFileName = "statikv.jsonc"

	// Storage backend names accepted in the "storage.backend" field.
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Config is the project configuration parsed from statikv.jsonc.
type Config struct {
	// PublishID namespaces every storage key this project writes.
	// Letters, digits, dots, and hyphens only: the underscore is the
	// key namespace separator and must not appear in the ID.
	PublishID string `json:"publishId"`

	// DefaultCollection is the collection a publish writes to when no
	// --collection flag is given. It is exempt from expiration
	// enforcement.
	DefaultCollection string `json:"defaultCollection"`

	// RootDir is the directory whose files are published. Relative
	// paths are resolved against the config file's directory.
	RootDir string `json:"rootDir"`

	// OutputDir holds publish staging state (compression variants,
	// chunk sets, inline bundles) and the local store in local mode.
	OutputDir string `json:"outputDir"`

	// ExcludeDirs lists paths under RootDir skipped by the scan, as
	// root-relative forward-slash paths. OutputDir is always excluded
	// when it sits under RootDir.
	ExcludeDirs []string `json:"excludeDirs"`

	// ExcludeDotFiles skips files and directories whose name starts
	// with a dot.
	ExcludeDotFiles bool `json:"excludeDotFiles"`

	// IncludeWellKnown exempts .well-known from the dot-file rule.
	IncludeWellKnown bool `json:"includeWellKnown"`

	// ContentCompression lists the encodings built at publish time
	// ("br", "gzip", "zstd"). Variants are kept only when strictly
	// smaller than the original.
	ContentCompression []string `json:"contentCompression"`

	// CompressTextOnly restricts variant building to assets whose
	// content-type rule marks them as text.
	CompressTextOnly bool `json:"compressTextOnly"`

	// ContentTypes holds content-type rules tried in order before the
	// built-in defaults; first match wins.
	ContentTypes []TypeRule `json:"contentTypes"`

	// SkipItems lists assets excluded from the publish. Entries are
	// matched against the root-relative asset key (no leading slash):
	// "re:" prefixes a regular expression, a trailing "/" matches a
	// path prefix, anything else matches exactly.
	SkipItems []string `json:"skipItems"`

	// InlineItems selects assets additionally written to the inline
	// bundle under OutputDir for embedded serving. Same entry grammar
	// as SkipItems.
	InlineItems []string `json:"inlineItems"`

	// Server is the serving configuration published as the
	// collection's settings record.
	Server schema.ServerConfig `json:"server"`

	// Storage selects and configures the storage backend.
	Storage StorageConfig `json:"storage"`
}

// TypeRule is one content-type rule in the "contentTypes" list.
// Pattern, when set, takes precedence over Suffix.
type TypeRule struct {
	// Suffix matches asset keys ending with this string (".woff2").
	Suffix string `json:"suffix,omitempty"`
	// Pattern is a regular expression matched against the asset key.
	Pattern string `json:"pattern,omitempty"`
	// ContentType is the Content-Type value stored for matches.
	ContentType string `json:"contentType"`
	// Text marks matches as text for compression gating.
	Text bool `json:"text,omitempty"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is "remote" or "local".
	Backend string `json:"backend"`
	// URL is the key/value service base URL (remote backend).
	URL string `json:"url,omitempty"`
	// Store is the store name all keys live under (remote backend).
	Store string `json:"store,omitempty"`
	// Dir overrides the local store directory (local backend).
	// Defaults to OutputDir/store.
	Dir string `json:"dir,omitempty"`
}

// Default returns a Config with development defaults: local backend,
// brotli+gzip compression, dot-files excluded except .well-known.
func Default() *Config {
	return &Config{
		DefaultCollection:  "default",
		OutputDir:          ".statikv",
		ExcludeDotFiles:    true,
		IncludeWellKnown:   true,
		ContentCompression: []string{variant.EncodingBrotli, variant.EncodingGzip},
		Server: schema.ServerConfig{
			AutoExt:   []string{".html", ".htm"},
			AutoIndex: []string{"index.html", "index.htm"},
		},
		Storage: StorageConfig{Backend: BackendLocal},
	}
}

// Load reads, parses, resolves, and validates the config file at
// path. Relative path fields are resolved against path's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses JSONC config bytes over the defaults from [Default].
// Absent fields keep their defaults; explicitly empty lists override.
// The caller still needs Validate (Load does both).
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	// An absent allowedEncodings serves whatever publish built; an
	// explicit empty list disables negotiated encodings entirely.
	if cfg.Server.AllowedEncodings == nil {
		cfg.Server.AllowedEncodings = append([]string(nil), cfg.ContentCompression...)
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.RootDir, &c.OutputDir, &c.Storage.Dir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks the configuration and reports every problem found,
// not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.PublishID == "" {
		errs = append(errs, fmt.Errorf("publishId is required"))
	} else if err := schema.ValidateName(c.PublishID); err != nil {
		errs = append(errs, fmt.Errorf("publishId: %w", err))
	}
	if c.DefaultCollection == "" {
		errs = append(errs, fmt.Errorf("defaultCollection must not be empty"))
	} else if err := schema.ValidateName(c.DefaultCollection); err != nil {
		errs = append(errs, fmt.Errorf("defaultCollection: %w", err))
	}
	if c.RootDir == "" {
		errs = append(errs, fmt.Errorf("rootDir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("outputDir must not be empty"))
	}
	if c.RootDir != "" && c.OutputDir != "" &&
		filepath.Clean(c.RootDir) == filepath.Clean(c.OutputDir) {
		errs = append(errs, fmt.Errorf("outputDir must not equal rootDir"))
	}

	if err := variant.ValidateEncodings(c.ContentCompression); err != nil {
		errs = append(errs, fmt.Errorf("contentCompression: %w", err))
	}
	if err := variant.ValidateEncodings(c.Server.AllowedEncodings); err != nil {
		errs = append(errs, fmt.Errorf("server.allowedEncodings: %w", err))
	}

	for i, rule := range c.ContentTypes {
		if rule.ContentType == "" {
			errs = append(errs, fmt.Errorf("contentTypes[%d]: contentType is required", i))
		}
		if rule.Suffix == "" && rule.Pattern == "" {
			errs = append(errs, fmt.Errorf("contentTypes[%d]: needs a suffix or a pattern", i))
		}
		if rule.Pattern != "" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("contentTypes[%d]: pattern: %w", i, err))
			}
		}
	}

	if _, err := schema.CompileItemList(c.SkipItems); err != nil {
		errs = append(errs, fmt.Errorf("skipItems: %w", err))
	}
	if _, err := schema.CompileItemList(c.InlineItems); err != nil {
		errs = append(errs, fmt.Errorf("inlineItems: %w", err))
	}
	if _, err := schema.CompileItemList(c.Server.StaticItems); err != nil {
		errs = append(errs, fmt.Errorf("server.staticItems: %w", err))
	}

	if p := c.Server.PublicDirPrefix; p != "" {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("server.publicDirPrefix %q must start with /", p))
		}
		if strings.HasSuffix(p, "/") {
			errs = append(errs, fmt.Errorf("server.publicDirPrefix %q must not end with /", p))
		}
	}
	for _, field := range []struct{ name, value string }{
		{"server.spaFile", c.Server.SPAFile},
		{"server.notFoundPageFile", c.Server.NotFoundPageFile},
	} {
		if field.value != "" && !strings.HasPrefix(field.value, "/") {
			errs = append(errs, fmt.Errorf("%s %q must be a full public path starting with /", field.name, field.value))
		}
	}

	switch c.Storage.Backend {
	case BackendLocal:
	case BackendRemote:
		if c.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage.url is required for the remote backend"))
		}
		if c.Storage.Store == "" {
			errs = append(errs, fmt.Errorf("storage.store is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q",
			BackendRemote, BackendLocal, c.Storage.Backend))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LocalStoreDir returns the directory of the local store backend.
func (c *Config) LocalStoreDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(c.OutputDir, "store")
}

// InlineDir returns the directory publish writes the inline bundle
// to, and serving reads it from.
func (c *Config) InlineDir() string {
	return filepath.Join(c.OutputDir, "inline")
}

// Provider constructs the storage backend the config selects. The
// --local CLI flag is implemented by setting Storage.Backend to
// BackendLocal before calling this.
func (c *Config) Provider(logger *slog.Logger) (kvstore.Provider, error) {
	switch c.Storage.Backend {
	case BackendLocal:
		return kvstore.NewLocal(c.LocalStoreDir())
	case BackendRemote:
		return kvstore.NewRemote(kvstore.RemoteConfig{
			URL:    c.Storage.URL,
			Store:  c.Storage.Store,
			Logger: logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

// CompiledTypeRules compiles the configured content-type rules and
// appends the built-in defaults, so project rules always win.
func (c *Config) CompiledTypeRules() ([]assetindex.TypeRule, error) {
	rules := make([]assetindex.TypeRule, 0, len(c.ContentTypes))
	for i, rule := range c.ContentTypes {
		compiled := assetindex.TypeRule{
			Suffix:      rule.Suffix,
			ContentType: rule.ContentType,
			Text:        rule.Text,
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("contentTypes[%d]: pattern: %w", i, err)
			}
			compiled.Pattern = re
		}
		rules = append(rules, compiled)
	}
	return append(rules, assetindex.DefaultTypeRules()...), nil
}

// IncludeFunc compiles SkipItems and InlineItems into the inclusion
// predicate the scanner applies per asset.
func (c *Config) IncludeFunc() (assetindex.IncludeFunc, error) {
	skip, err := schema.CompileItemList(c.SkipItems)
	if err != nil {
		return nil, fmt.Errorf("skipItems: %w", err)
	}
	inline, err := schema.CompileItemList(c.InlineItems)
	if err != nil {
		return nil, fmt.Errorf("inlineItems: %w", err)
	}
	return func(assetKey, contentType string) assetindex.Inclusion {
		if skip.Match(assetKey) {
			return assetindex.Inclusion{}
		}
		return assetindex.Inclusion{Include: true, Inline: inline.Match(assetKey)}
	}, nil
}

// ScanOptions assembles the scanner options: compiled rules, the
// inclusion predicate, and the exclusion list extended with OutputDir
// and the local store directory when they sit under RootDir.
func (c *Config) ScanOptions(warn func(string)) (assetindex.Options, error) {
	rules, err := c.CompiledTypeRules()
	if err != nil {
		return assetindex.Options{}, err
	}
	include, err := c.IncludeFunc()
	if err != nil {
		return assetindex.Options{}, err
	}
	excludes := append([]string(nil), c.ExcludeDirs...)
	for _, dir := range []string{c.OutputDir, c.LocalStoreDir()} {
		if rel, ok := pathUnder(c.RootDir, dir); ok {
			excludes = append(excludes, rel)
		}
	}
	return assetindex.Options{
		ExcludeDirs:      excludes,
		ExcludeDotFiles:  c.ExcludeDotFiles,
		IncludeWellKnown: c.IncludeWellKnown,
		TypeRules:        rules,
		Include:          include,
		Warn:             warn,
	}, nil
}

// pathUnder reports dir's root-relative forward-slash path when dir
// sits strictly below root.
func pathUnder(root, dir string) (string, bool) {
	if root == "" || dir == "" {
		return "", false
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package serve resolves HTTP requests against a published collection
// and assembles static-file responses from content-addressed storage.
// It implements the request-time half of statikv: path resolution
// (direct, auto-extension, auto-index), Accept-Encoding negotiation
// across stored compression variants, RFC 9110 conditional requests,
// and SPA/not-found fallbacks.
package serve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/statikv/statikv/lib/chunk"
	"github.com/statikv/statikv/lib/clock"
	"github.com/statikv/statikv/lib/contenthash"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// ErrNotPublished reports that the collection's settings or index
// record is missing from the store: nothing has been published under
// this collection name, or a clean removed it.
var ErrNotPublished = errors.New("collection not published")

const (
	// DefaultCacheTTL bounds how stale cached collection state may be.
	// A new publish becomes visible to a serving instance within this
	// window; in-flight requests keep the state they started with.
	DefaultCacheTTL = 30 * time.Second

	// stateCacheSize bounds the collection-state cache. State is one
	// entry per collection (settings and index decoded together), so
	// a handful covers an engine plus any neighbors sharing the
	// process.
	stateCacheSize = 4
)

// Engine serves one published collection. Safe for concurrent use.
type Engine struct {
	provider   kvstore.Provider
	publishID  string
	collection string
	inlineDir  string
	cacheTTL   time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	// cache holds decoded collection state, keyed by collection name.
	// Entries past cacheTTL are discarded on lookup.
	cache *lru.Cache[string, cachedState]
}

// collectionState is the decoded settings + index pair requests are
// served against. Immutable once loaded.
type collectionState struct {
	config      schema.ServerConfig
	index       schema.Index
	staticItems *schema.ItemList
}

type cachedState struct {
	state    *collectionState
	storedAt time.Time
}

// Options configures an Engine.
type Options struct {
	// Provider is the storage backend holding the published records.
	Provider kvstore.Provider

	// PublishID namespaces every key the engine reads.
	PublishID string

	// Collection names the collection to serve.
	Collection string

	// InlineDir optionally points at a publish output's inline bundle
	// directory. Assets found there are served from disk without
	// touching the provider.
	InlineDir string

	// CacheTTL bounds collection-state staleness. Zero means
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// Clock drives cache expiry. Nil means the real clock.
	Clock clock.Clock

	// Logger receives serving diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// NewEngine validates options and returns an engine ready to serve.
func NewEngine(options Options) (*Engine, error) {
	if options.Provider == nil {
		return nil, fmt.Errorf("serve: storage provider is required")
	}
	if err := schema.ValidateName(options.PublishID); err != nil {
		return nil, fmt.Errorf("serve: publish id: %w", err)
	}
	if err := schema.ValidateName(options.Collection); err != nil {
		return nil, fmt.Errorf("serve: collection: %w", err)
	}
	cacheTTL := options.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, cachedState](stateCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		provider:   options.Provider,
		publishID:  options.PublishID,
		collection: options.Collection,
		inlineDir:  options.InlineDir,
		cacheTTL:   cacheTTL,
		clock:      clk,
		logger:     logger,
		cache:      cache,
	}, nil
}

// ServeRequest resolves the request against the collection and builds
// the response. A nil response with a nil error means the engine has
// nothing to say and the caller decides the final fallback. Errors
// wrap ErrNotPublished when the collection has no published records.
func (e *Engine) ServeRequest(r *http.Request) (*Response, error) {
	state, err := e.state(r.Context())
	if err != nil {
		return nil, err
	}

	if res, ok := resolveAsset(state, r.URL.Path); ok {
		policy := CacheControlNever
		if state.staticItems.Match(res.path) {
			policy = CacheControlStatic
		}
		return e.serveAsset(r, state, res.indexKey, res.entry, serveOptions{
			status:          http.StatusOK,
			cacheControl:    policy,
			contentLocation: res.path,
			conditionals:    true,
		})
	}

	// Unresolved path: the SPA shell when the client accepts HTML,
	// then the published not-found page, then nothing. Fallbacks keep
	// the request's own path and are never cacheable.
	if spa := state.config.SPAFile; spa != "" && acceptsHTML(r.Header.Get("Accept")) {
		if entry, ok := state.index[spa]; ok {
			return e.serveAsset(r, state, spa, entry, serveOptions{
				status:       http.StatusOK,
				cacheControl: CacheControlNever,
			})
		}
	}
	if notFoundPage := state.config.NotFoundPageFile; notFoundPage != "" {
		if entry, ok := state.index[notFoundPage]; ok {
			return e.serveAsset(r, state, notFoundPage, entry, serveOptions{
				status:       http.StatusNotFound,
				cacheControl: CacheControlNever,
			})
		}
	}
	return nil, nil
}

// serveOptions carries the per-response decisions ServeRequest makes
// before the asset's bytes are located.
type serveOptions struct {
	status          int
	cacheControl    string
	contentLocation string // "" omits the header
	conditionals    bool   // fallback responses skip conditional evaluation
}

// serveAsset locates the entry's bytes (inline bundle, then the
// store), negotiates the encoding, evaluates conditionals, and builds
// the response.
func (e *Engine) serveAsset(r *http.Request, state *collectionState, indexKey string, entry schema.AssetEntry, opts serveOptions) (*Response, error) {
	if response, ok := e.serveInline(r, state, indexKey, entry, opts); ok {
		return response, nil
	}

	ctx := r.Context()
	digest, err := contenthash.ParseContentKey(entry.Key)
	if err != nil {
		return nil, fmt.Errorf("index entry for %s: %w", indexKey, err)
	}
	baseKey := schema.ContentBaseKey(e.publishID, contenthash.Format(digest))

	encoding := e.selectEncoding(ctx, state.config.AllowedEncodings, entry.Variants, baseKey, r.Header.Get("Accept-Encoding"))
	servedKey := baseKey
	if encoding != "" {
		servedKey = schema.VariantKey(baseKey, encoding)
	}

	head := r.Method == http.MethodHead
	meta, body, err := e.openBlob(ctx, servedKey, head)
	if err != nil && encoding != "" {
		// A variant the index advertises but the store cannot produce
		// must not fail the request: fall back to the original bytes.
		e.logger.Warn("stored variant unusable, serving original",
			"key", servedKey, "error", err)
		encoding, servedKey = "", baseKey
		meta, body, err = e.openBlob(ctx, servedKey, head)
	}
	if err != nil {
		return nil, fmt.Errorf("content for %s: %w", indexKey, err)
	}

	etag := formatETag(meta.Hash)
	lastModified := time.Unix(entry.LastModifiedTime, 0)
	header := responseHeader(entry, opts, meta.Size, etag, encoding)
	if opts.conditionals && notModified(r, etag, lastModified) {
		if body != nil {
			body.Close()
		}
		return &Response{StatusCode: http.StatusNotModified, Header: notModifiedHeaders(header)}, nil
	}
	return &Response{StatusCode: opts.status, Header: header, Body: body}, nil
}

// serveInline serves entries present in the inline bundle directory
// straight from disk. The bundle holds original bytes only, so inline
// responses skip encoding negotiation. An entry missing from the
// bundle, or whose size disagrees with the index, falls through to
// the store.
func (e *Engine) serveInline(r *http.Request, state *collectionState, indexKey string, entry schema.AssetEntry, opts serveOptions) (*Response, bool) {
	if e.inlineDir == "" {
		return nil, false
	}
	assetKey := strings.TrimPrefix(strings.TrimPrefix(indexKey, state.config.PublicDirPrefix), "/")
	if assetKey == "" {
		return nil, false
	}
	path := filepath.Join(e.inlineDir, filepath.FromSlash(assetKey))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() != entry.Size {
		return nil, false
	}
	digest, err := contenthash.ParseContentKey(entry.Key)
	if err != nil {
		return nil, false
	}

	etag := formatETag(contenthash.Format(digest))
	lastModified := time.Unix(entry.LastModifiedTime, 0)
	header := responseHeader(entry, opts, entry.Size, etag, "")
	if opts.conditionals && notModified(r, etag, lastModified) {
		return &Response{StatusCode: http.StatusNotModified, Header: notModifiedHeaders(header)}, true
	}
	if r.Method == http.MethodHead {
		return &Response{StatusCode: opts.status, Header: header}, true
	}
	file, err := os.Open(path)
	if err != nil {
		e.logger.Warn("inline bundle file unreadable, serving from store",
			"path", path, "error", err)
		return nil, false
	}
	return &Response{StatusCode: opts.status, Header: header, Body: file}, true
}

// openBlob fetches a stored blob's record and, unless head, its body.
// Chunked blobs come back as a single reader crossing chunk
// boundaries, reusing the already-open chunk 0 body.
func (e *Engine) openBlob(ctx context.Context, key string, head bool) (schema.VariantMetadata, io.ReadCloser, error) {
	if head {
		metadata, err := e.provider.Metadata(ctx, key)
		if err != nil {
			return schema.VariantMetadata{}, nil, err
		}
		meta, err := schema.ParseVariantMetadata(metadata)
		if err != nil {
			return schema.VariantMetadata{}, nil, fmt.Errorf("record %s: %w", key, err)
		}
		return meta, nil, nil
	}

	object, err := e.provider.Get(ctx, key)
	if err != nil {
		return schema.VariantMetadata{}, nil, err
	}
	meta, err := schema.ParseVariantMetadata(object.Metadata)
	if err != nil {
		object.Body.Close()
		return schema.VariantMetadata{}, nil, fmt.Errorf("record %s: %w", key, err)
	}
	if meta.NumChunks > 1 {
		return meta, chunk.NewReaderFrom(ctx, e.provider, key, meta.NumChunks, object.Body), nil
	}
	return meta, object.Body, nil
}

// state returns the collection's decoded settings and index, loading
// through the cache. Entries older than the TTL are discarded, so a
// new publish becomes visible within CacheTTL.
func (e *Engine) state(ctx context.Context) (*collectionState, error) {
	if entry, ok := e.cache.Get(e.collection); ok {
		if e.clock.Now().Sub(entry.storedAt) < e.cacheTTL {
			return entry.state, nil
		}
		e.cache.Remove(e.collection)
	}
	state, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	e.cache.Add(e.collection, cachedState{state: state, storedAt: e.clock.Now()})
	return state, nil
}

// loadState fetches and decodes the collection's settings and index
// records. Either one missing means ErrNotPublished.
func (e *Engine) loadState(ctx context.Context) (*collectionState, error) {
	settingsData, err := e.readAll(ctx, schema.SettingsKey(e.publishID, e.collection))
	if err != nil {
		if kvstore.IsNotFound(err) {
			return nil, fmt.Errorf("settings for collection %q: %w", e.collection, ErrNotPublished)
		}
		return nil, fmt.Errorf("reading settings for collection %q: %w", e.collection, err)
	}
	config, err := schema.DecodeServerConfig(settingsData)
	if err != nil {
		return nil, fmt.Errorf("settings for collection %q: %w", e.collection, err)
	}

	indexData, err := e.readAll(ctx, schema.IndexKey(e.publishID, e.collection))
	if err != nil {
		if kvstore.IsNotFound(err) {
			return nil, fmt.Errorf("index for collection %q: %w", e.collection, ErrNotPublished)
		}
		return nil, fmt.Errorf("reading index for collection %q: %w", e.collection, err)
	}
	index, err := schema.DecodeIndex(indexData)
	if err != nil {
		return nil, fmt.Errorf("index for collection %q: %w", e.collection, err)
	}

	staticItems, err := schema.CompileItemList(config.StaticItems)
	if err != nil {
		return nil, fmt.Errorf("static items for collection %q: %w", e.collection, err)
	}
	return &collectionState{config: config, index: index, staticItems: staticItems}, nil
}

func (e *Engine) readAll(ctx context.Context, key string) ([]byte, error) {
	object, err := e.provider.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer object.Body.Close()
	return io.ReadAll(object.Body)
}

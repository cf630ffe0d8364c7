// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/statikv/statikv/lib/schema"
)

// Response is a fully assembled static-file response. Body is nil for
// 304 responses and HEAD requests; otherwise the caller owns it and
// must close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Cache policy is explicit on every response. Assets under a
// static-item path are content-addressed build artifacts that never
// change behind their URL, so they get the year-long immutable
// directive; everything else, fallback pages included, must come back
// to the server every time.
const (
	CacheControlStatic = "public, max-age=31536000, immutable"
	CacheControlNever  = "no-store, no-cache"
)

// responseHeader assembles the full-response header set for an asset
// entry. size and etag describe the representation actually served,
// which for a compressed variant differ from the entry's own.
func responseHeader(entry schema.AssetEntry, opts serveOptions, size int64, etag, encoding string) http.Header {
	header := make(http.Header)
	header.Set("Content-Type", entry.ContentType)
	header.Set("Content-Length", strconv.FormatInt(size, 10))
	header.Set("Vary", "Accept-Encoding")
	header.Set("ETag", etag)
	header.Set("Last-Modified", time.Unix(entry.LastModifiedTime, 0).UTC().Format(http.TimeFormat))
	header.Set("Cache-Control", opts.cacheControl)
	if encoding != "" {
		header.Set("Content-Encoding", encoding)
	}
	if opts.contentLocation != "" {
		header.Set("Content-Location", opts.contentLocation)
	}
	return header
}

// notModified304Fields is the header subset a 304 carries, per RFC
// 9110 §15.4.5.
var notModified304Fields = []string{"Content-Location", "ETag", "Vary", "Cache-Control", "Expires"}

// notModifiedHeaders pares a full-response header set down to the
// fields allowed on a 304.
func notModifiedHeaders(full http.Header) http.Header {
	header := make(http.Header, len(notModified304Fields))
	for _, name := range notModified304Fields {
		if value := full.Get(name); value != "" {
			header.Set(name, value)
		}
	}
	return header
}

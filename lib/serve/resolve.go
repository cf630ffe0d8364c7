// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"strings"

	"github.com/statikv/statikv/lib/schema"
)

// resolvedAsset names the index entry a request path landed on.
type resolvedAsset struct {
	// indexKey is the full asset-index key, publicDirPrefix included.
	indexKey string

	// path is the resolved path in request space (indexKey with the
	// prefix stripped): what Content-Location reports and what the
	// static-item list is matched against.
	path string

	entry schema.AssetEntry
}

// resolveAsset maps a request path to an asset entry, trying in
// order: the path itself, the path with each auto-extension appended
// (both only for paths without a trailing slash), then each
// auto-index filename under the path normalized to end in exactly one
// slash. First match wins.
func resolveAsset(state *collectionState, requestPath string) (resolvedAsset, bool) {
	prefix := state.config.PublicDirPrefix
	lookup := func(path string) (resolvedAsset, bool) {
		key := prefix + path
		entry, found := state.index[key]
		return resolvedAsset{indexKey: key, path: path, entry: entry}, found
	}

	if !strings.HasSuffix(requestPath, "/") {
		if res, found := lookup(requestPath); found {
			return res, true
		}
		for _, ext := range state.config.AutoExt {
			if res, found := lookup(requestPath + ext); found {
				return res, true
			}
		}
	}

	dir := strings.TrimRight(requestPath, "/") + "/"
	for _, name := range state.config.AutoIndex {
		if res, found := lookup(dir + name); found {
			return res, true
		}
	}
	return resolvedAsset{}, false
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the statikv.jsonc project configuration.
//
// Configuration is loaded from a single JSONC file (JSON plus
// comments and trailing commas) named on the command line or found at
// the default path "statikv.jsonc". There are no fallbacks, no
// ~/.config discovery, and no automatic file search: a publish is
// reproducible only if its inputs are explicit.
//
// Absent fields keep the defaults from [Default]; an explicitly empty
// list overrides its default. Relative paths (rootDir, outputDir,
// storage.dir) are resolved against the directory containing the
// config file, so a project can be published from any working
// directory.
//
// Key exports:
//
//   - [Config] -- master struct with server and storage sections
//   - [Default] -- a Config with development defaults (local backend)
//   - [Load] -- read, parse, resolve paths, validate
//   - [Config.ScanOptions] -- compiled form consumed by assetindex
//   - [Config.Provider] -- storage backend factory
//
// This package depends on lib/assetindex, lib/kvstore, lib/schema,
// and lib/variant for the compiled forms it hands out.
package config

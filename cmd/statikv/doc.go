// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Statikv is the CLI for publishing and serving KV-backed static
// sites. It provides subcommands for publishing a project directory
// into a named collection (publish), managing published collections
// (collections list, promote, expiration), reclaiming storage no live
// collection references (clean), and running a local development
// server over any published collection (serve).
package main

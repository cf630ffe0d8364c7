// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements statikv-server, the standalone serving
// daemon. It runs the same serving engine as "statikv serve" but
// from a deployment-oriented YAML runtime config instead of a
// project publish config: one process, one publish ID, one
// collection, one storage backend.
//
// The daemon is stateless apart from a short-TTL cache of the
// collection's decoded index and settings, so instances can be
// scaled horizontally behind any TCP load balancer. A new publish
// becomes visible within the cache TTL without a restart.
package main

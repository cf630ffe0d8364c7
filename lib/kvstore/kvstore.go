// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore abstracts the key/value backend that published
// assets live in. The publish pipeline and the serving engine both
// speak to a Provider and never to a concrete backend, so the same
// code publishes to the remote store and to a local
// filesystem-simulated store used for development.
//
// Two implementations conform: RemoteStore (an HTTP key/value
// service) and LocalStore (a directory with a JSON manifest). Both
// expose identical existence, read, write, list, and delete
// semantics, including ErrNotFound for absent keys.
package kvstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that a key is absent from the store. Check with
// errors.Is; implementations wrap it with the key for context.
var ErrNotFound = errors.New("key not found")

// IsNotFound reports whether err indicates an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Object is a stored blob opened for reading. The caller owns Body
// and must close it.
type Object struct {
	// Body streams the blob's bytes.
	Body io.ReadCloser

	// Metadata is the string stored alongside the blob; empty if none
	// was set.
	Metadata string

	// Size is the blob's byte length, or -1 when the backend did not
	// report it.
	Size int64
}

// Provider is the storage backend interface. Implementations must be
// safe for concurrent use: the publish pipeline fans out over a
// worker pool and the serving engine handles requests in parallel.
type Provider interface {
	// Get opens the blob at key. Returns an error wrapping
	// ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (*Object, error)

	// Metadata returns the metadata string of the blob at key without
	// transferring its body. Returns an error wrapping ErrNotFound
	// when the key is absent. This is the existence probe the dedup
	// check rides on.
	Metadata(ctx context.Context, key string) (string, error)

	// Put stores size bytes read from body under key, replacing any
	// existing blob. metadata may be empty.
	Put(ctx context.Context, key string, body io.Reader, size int64, metadata string) error

	// List returns all keys starting with prefix, sorted. An empty
	// result is a nil or empty slice, not an error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob at key. Deleting an absent key is not
	// an error: deletes are idempotent so a garbage-collection retry
	// never fails on its own earlier progress.
	Delete(ctx context.Context, key string) error
}

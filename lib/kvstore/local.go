// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	localManifestName = "manifest.json"
	localBlobDir      = "blobs"
)

// LocalStore is a Provider backed by a local directory: blob bytes
// under blobs/, and a manifest.json mapping keys to blob files,
// metadata, and sizes. It simulates the remote store for development
// and tests with identical visible semantics, including ErrNotFound.
//
// The manifest is rewritten atomically (temp file + rename) on every
// mutation, so a crashed process never leaves a half-written
// manifest. Blob files orphaned by a crash between blob write and
// manifest write are invisible and harmless.
type LocalStore struct {
	root string

	mu       sync.Mutex
	manifest localManifest
}

type localManifest struct {
	Version int                   `json:"version"`
	Entries map[string]localEntry `json:"entries"`
}

type localEntry struct {
	// File is the blob's path relative to the store root.
	File     string `json:"file"`
	Metadata string `json:"metadata,omitempty"`
	Size     int64  `json:"size"`
}

// NewLocal opens (creating if necessary) a LocalStore rooted at dir.
func NewLocal(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, localBlobDir), 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: creating local store at %s: %w", dir, err)
	}

	store := &LocalStore{
		root:     dir,
		manifest: localManifest{Version: 1, Entries: map[string]localEntry{}},
	}

	data, err := os.ReadFile(filepath.Join(dir, localManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("kvstore: reading local manifest: %w", err)
	}
	if err := json.Unmarshal(data, &store.manifest); err != nil {
		return nil, fmt.Errorf("kvstore: parsing local manifest at %s: %w", dir, err)
	}
	if store.manifest.Entries == nil {
		store.manifest.Entries = map[string]localEntry{}
	}
	return store, nil
}

// Root returns the store's directory.
func (s *LocalStore) Root() string { return s.root }

// blobFile maps a key to its blob path relative to the root. Keys are
// hashed so that key strings never have to be valid file names.
func blobFile(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(localBlobDir, hex.EncodeToString(sum[:]))
}

// Get opens the blob at key. The caller must close the returned
// Object's Body.
func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	entry, ok := s.manifest.Entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("kvstore: get %s: %w", key, ErrNotFound)
	}

	file, err := os.Open(filepath.Join(s.root, entry.File))
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: manifest entry without blob file: %w", key, err)
	}
	return &Object{Body: file, Metadata: entry.Metadata, Size: entry.Size}, nil
}

// Metadata returns the metadata string of the blob at key.
func (s *LocalStore) Metadata(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.manifest.Entries[key]
	if !ok {
		return "", fmt.Errorf("kvstore: head %s: %w", key, ErrNotFound)
	}
	return entry.Metadata, nil
}

// Put stores size bytes read from body under key, replacing any
// existing blob.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, metadata string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.root, "blob-*")
	if err != nil {
		return fmt.Errorf("kvstore: creating temp blob file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, body)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("kvstore: writing blob for %s: %w", key, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("kvstore: closing temp blob file: %w", err)
	}
	if written != size {
		return fmt.Errorf("kvstore: put %s: body is %d bytes, expected %d", key, written, size)
	}

	relPath := blobFile(key)
	if err := os.Rename(tmpPath, filepath.Join(s.root, relPath)); err != nil {
		return fmt.Errorf("kvstore: renaming blob for %s: %w", key, err)
	}
	success = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Entries[key] = localEntry{File: relPath, Metadata: metadata, Size: size}
	return s.persistLocked()
}

// List returns all keys starting with prefix, sorted.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.manifest.Entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the blob at key. Deleting an absent key is not an
// error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.manifest.Entries[key]
	if !ok {
		return nil
	}

	if err := os.Remove(filepath.Join(s.root, entry.File)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kvstore: deleting blob for %s: %w", key, err)
	}
	delete(s.manifest.Entries, key)
	return s.persistLocked()
}

// persistLocked atomically rewrites the manifest. Must be called with
// s.mu held. The manifest is indented so a developer can inspect the
// simulated store directly.
func (s *LocalStore) persistLocked() error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: encoding local manifest: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.root, "manifest-*.json")
	if err != nil {
		return fmt.Errorf("kvstore: creating temp manifest file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("kvstore: writing local manifest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("kvstore: closing temp manifest file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.root, localManifestName)); err != nil {
		return fmt.Errorf("kvstore: renaming local manifest: %w", err)
	}

	success = true
	return nil
}

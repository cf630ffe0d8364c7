// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package collection manages published collections: listing them with
// their expiration state, promoting one to a new name, rewriting
// expiration metadata, and garbage-collecting storage no live
// collection references.
//
// A collection is two records — the asset index and the settings —
// plus the content blobs the index references. Content is
// content-addressed and shared between collections, so lifecycle
// operations never copy or touch content; only Clean deletes it, and
// only once no live collection references it.
package collection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/statikv/statikv/lib/clock"
	"github.com/statikv/statikv/lib/contenthash"
	"github.com/statikv/statikv/lib/expiry"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// Manager runs lifecycle operations for one publish ID against one
// storage provider. Provider, PublishID, and DefaultCollection are
// required; a nil Clock falls back to the real clock.
type Manager struct {
	Provider          kvstore.Provider
	PublishID         string
	DefaultCollection string
	Clock             clock.Clock
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock.Now()
}

func (m *Manager) check() error {
	if m.Provider == nil {
		return fmt.Errorf("collection: storage provider is required")
	}
	if err := schema.ValidateName(m.PublishID); err != nil {
		return fmt.Errorf("collection: publish ID: %w", err)
	}
	if err := schema.ValidateName(m.DefaultCollection); err != nil {
		return fmt.Errorf("collection: default collection: %w", err)
	}
	return nil
}

// Info describes one published collection in a listing.
type Info struct {
	// Name is the collection name.
	Name string

	// PublishedTime is when the collection was last written. Zero when
	// the stored metadata predates metadata stamping.
	PublishedTime time.Time

	// ExpirationTime is the expiration instant; zero means never.
	ExpirationTime time.Time

	// Expired reports whether ExpirationTime has passed. Always false
	// for the default collection, which is exempt from expiration
	// enforcement regardless of its stored value.
	Expired bool

	// Default marks the configured default collection.
	Default bool
}

// List enumerates the publish ID's collections with their expiration
// state, sorted by name. A collection whose index metadata does not
// parse is skipped with an error recorded per key in the returned
// warnings — a bad record must not hide the rest of the listing.
func (m *Manager) List(ctx context.Context) ([]Info, []error, error) {
	if err := m.check(); err != nil {
		return nil, nil, err
	}

	keys, err := m.Provider.List(ctx, schema.IndexPrefix(m.PublishID))
	if err != nil {
		return nil, nil, fmt.Errorf("listing collections: %w", err)
	}

	now := m.now()
	var infos []Info
	var warnings []error
	for _, key := range keys {
		name, ok := schema.CollectionFromIndexKey(m.PublishID, key)
		if !ok {
			continue
		}
		metadata, err := m.Provider.Metadata(ctx, key)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("reading metadata of %s: %w", key, err))
			continue
		}
		indexMeta, err := schema.ParseIndexMetadata(metadata)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("collection %q: %w", name, err))
			continue
		}

		info := Info{
			Name:    name,
			Default: name == m.DefaultCollection,
		}
		if indexMeta.PublishedTime != 0 {
			info.PublishedTime = time.Unix(indexMeta.PublishedTime, 0).UTC()
		}
		if expires, ok := indexMeta.ExpiresAt(); ok {
			info.ExpirationTime = expires
			info.Expired = !info.Default && indexMeta.Expired(now)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, warnings, nil
}

// Promote copies the src collection's index and settings records to
// dst, stamping a fresh published time. Content blobs are untouched:
// they are content-addressed and shared, so promotion is two record
// copies regardless of collection size. expiration, when non-zero,
// replaces the expiration on the promoted copy; otherwise src's
// stored expiration carries over.
func (m *Manager) Promote(ctx context.Context, src, dst string, expiration expiry.Spec) error {
	if err := m.check(); err != nil {
		return err
	}
	if err := schema.ValidateName(src); err != nil {
		return fmt.Errorf("source collection: %w", err)
	}
	if err := schema.ValidateName(dst); err != nil {
		return fmt.Errorf("destination collection: %w", err)
	}
	if src == dst {
		return fmt.Errorf("promote: source and destination are both %q", src)
	}

	now := m.now()
	expiresAt, err := expiration.Resolve(now)
	if err != nil {
		return err
	}

	index, err := m.readRecord(ctx, schema.IndexKey(m.PublishID, src))
	if err != nil {
		if kvstore.IsNotFound(err) {
			return fmt.Errorf("collection %q is not published: %w", src, err)
		}
		return err
	}
	srcMeta, err := schema.ParseIndexMetadata(index.metadata)
	if err != nil {
		return fmt.Errorf("collection %q: %w", src, err)
	}
	settings, err := m.readRecord(ctx, schema.SettingsKey(m.PublishID, src))
	if err != nil {
		return err
	}

	dstMeta := schema.IndexMetadata{
		PublishedTime:  now.Unix(),
		ExpirationTime: srcMeta.ExpirationTime,
	}
	if !expiration.IsZero() {
		dstMeta.ExpirationTime = 0
		if !expiresAt.IsZero() {
			dstMeta.ExpirationTime = expiresAt.Unix()
		}
	}
	metadata, err := dstMeta.Encode()
	if err != nil {
		return err
	}

	// Settings first: a reader that finds the dst index must find its
	// settings too, and the index is what makes dst visible to List.
	if err := m.writeRecord(ctx, schema.SettingsKey(m.PublishID, dst), settings.data, ""); err != nil {
		return err
	}
	return m.writeRecord(ctx, schema.IndexKey(m.PublishID, dst), index.data, metadata)
}

// UpdateExpiration rewrites a collection's index metadata with the
// resolved expiration, preserving the record bytes. The published
// time is preserved too: updating expiration is not a publish.
func (m *Manager) UpdateExpiration(ctx context.Context, name string, expiration expiry.Spec) error {
	if err := m.check(); err != nil {
		return err
	}
	if err := schema.ValidateName(name); err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	if expiration.IsZero() {
		return fmt.Errorf("expiration update requires an expiration input: a relative spec, an absolute time, or never")
	}
	expiresAt, err := expiration.Resolve(m.now())
	if err != nil {
		return err
	}

	key := schema.IndexKey(m.PublishID, name)
	record, err := m.readRecord(ctx, key)
	if err != nil {
		if kvstore.IsNotFound(err) {
			return fmt.Errorf("collection %q is not published: %w", name, err)
		}
		return err
	}
	indexMeta, err := schema.ParseIndexMetadata(record.metadata)
	if err != nil {
		return fmt.Errorf("collection %q: %w", name, err)
	}

	indexMeta.ExpirationTime = 0
	if !expiresAt.IsZero() {
		indexMeta.ExpirationTime = expiresAt.Unix()
	}
	metadata, err := indexMeta.Encode()
	if err != nil {
		return err
	}
	return m.writeRecord(ctx, key, record.data, metadata)
}

type record struct {
	data     []byte
	metadata string
}

func (m *Manager) readRecord(ctx context.Context, key string) (record, error) {
	object, err := m.Provider.Get(ctx, key)
	if err != nil {
		return record{}, err
	}
	defer object.Body.Close()
	data, err := io.ReadAll(object.Body)
	if err != nil {
		return record{}, fmt.Errorf("reading %s: %w", key, err)
	}
	return record{data: data, metadata: object.Metadata}, nil
}

func (m *Manager) writeRecord(ctx context.Context, key string, data []byte, metadata string) error {
	if err := m.Provider.Put(ctx, key, bytes.NewReader(data), int64(len(data)), metadata); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// referencedKeys returns every content-address digest a collection's
// index references: the original of each entry plus each listed
// variant. Variants of a hash share the digest, so the live set is a
// set of digests, not storage keys — Clean maps stored keys back to
// digests with schema.ContentKeyHash.
func referencedKeys(index schema.Index) (map[string]struct{}, error) {
	digests := make(map[string]struct{})
	for assetKey, entry := range index {
		digest, err := contenthash.ParseContentKey(entry.Key)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", assetKey, err)
		}
		digests[contenthash.Format(digest)] = struct{}{}
	}
	return digests, nil
}

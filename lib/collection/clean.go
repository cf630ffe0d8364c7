// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"context"
	"fmt"

	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// CleanOptions tune a Clean run.
type CleanOptions struct {
	// DeleteExpired marks expired collections (and everything only
	// they reference) for deletion. Without it, Clean only removes
	// orphans: settings without an index and content no index
	// references.
	DeleteExpired bool

	// DryRun computes and returns the plan without deleting anything.
	DryRun bool

	// Workers and MaxAttempts tune the deletion pool; zero means the
	// kvstore defaults.
	Workers     int
	MaxAttempts int

	// OnDeleted observes each successful deletion.
	OnDeleted func(key string)
}

// CleanPlan is the deletion plan of a Clean run: everything the
// three scan phases marked, in storage-key form. On a dry run the
// plan is returned unexecuted; otherwise Executed reports what the
// deletion pass did.
type CleanPlan struct {
	// LiveCollections are the collections whose references are
	// protected, the default collection always among them.
	LiveCollections []string

	// ExpiredCollections are the expired, non-default index keys
	// marked for deletion. Empty unless DeleteExpired was set.
	ExpiredCollections []string

	// OrphanedSettings are settings keys without a live index.
	OrphanedSettings []string

	// UnreferencedContent are content keys (originals, variants,
	// chunks) whose base digest no live index references.
	UnreferencedContent []string

	// ContentBytes estimates the content bytes the plan reclaims,
	// summed from the Size of each unreferenced key's base record.
	// Continuation chunks carry no size of their own, so the estimate
	// counts whole logical blobs.
	ContentBytes int64

	// Executed summarizes the deletion pass. Zero value on dry runs.
	Executed kvstore.DeleteResult
}

// Keys returns every storage key the plan would delete: content,
// then settings, then indexes. An interrupted clean leaves some keys
// behind but never invents references, so re-running Clean finishes
// the job.
func (p *CleanPlan) Keys() []string {
	keys := make([]string, 0, len(p.UnreferencedContent)+len(p.OrphanedSettings)+len(p.ExpiredCollections))
	keys = append(keys, p.UnreferencedContent...)
	keys = append(keys, p.OrphanedSettings...)
	keys = append(keys, p.ExpiredCollections...)
	return keys
}

// Empty reports whether the plan deletes nothing.
func (p *CleanPlan) Empty() bool {
	return len(p.UnreferencedContent) == 0 && len(p.OrphanedSettings) == 0 && len(p.ExpiredCollections) == 0
}

// Clean garbage-collects the publish ID's storage with a three-phase
// mark-and-sweep:
//
//  1. Scan index keys. A collection is live when it is the default,
//     has no expiration, has not expired yet, or expiration deletion
//     was not requested. Read every live collection's index and
//     collect the content digests it references.
//  2. Scan settings keys. Settings whose collection has no live index
//     are orphans.
//  3. Scan content keys. Any key whose base digest is not in the live
//     set is unreferenced — this covers originals, variants, and
//     continuation chunks alike, since all embed the digest.
//
// No deletion happens during the scans; the plan executes only after
// all three phases complete, and not at all on a dry run. Deletions
// fan out over the bounded worker pool with per-key retry; per-key
// failures are collected in the plan's Executed result.
func (m *Manager) Clean(ctx context.Context, opts CleanOptions) (*CleanPlan, error) {
	if err := m.check(); err != nil {
		return nil, err
	}

	plan := &CleanPlan{}
	liveDigests := make(map[string]struct{})
	liveNames := make(map[string]struct{})
	now := m.now()

	// Phase 1: indexes.
	indexKeys, err := m.Provider.List(ctx, schema.IndexPrefix(m.PublishID))
	if err != nil {
		return nil, fmt.Errorf("listing collection indexes: %w", err)
	}
	for _, key := range indexKeys {
		name, ok := schema.CollectionFromIndexKey(m.PublishID, key)
		if !ok {
			continue
		}

		record, err := m.readRecord(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading index of collection %q: %w", name, err)
		}
		indexMeta, metaErr := schema.ParseIndexMetadata(record.metadata)

		isDefault := name == m.DefaultCollection
		expired := metaErr == nil && !isDefault && indexMeta.Expired(now)
		if expired && opts.DeleteExpired {
			plan.ExpiredCollections = append(plan.ExpiredCollections, key)
			continue
		}

		// Live. Unparseable metadata also lands here: a collection
		// with a bad timestamp must be protected, not collected.
		index, err := schema.DecodeIndex(record.data)
		if err != nil {
			return nil, fmt.Errorf("decoding index of collection %q: %w", name, err)
		}
		digests, err := referencedKeys(index)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
		for digest := range digests {
			liveDigests[digest] = struct{}{}
		}
		liveNames[name] = struct{}{}
		plan.LiveCollections = append(plan.LiveCollections, name)
	}

	// Phase 2: settings.
	settingsKeys, err := m.Provider.List(ctx, schema.SettingsPrefix(m.PublishID))
	if err != nil {
		return nil, fmt.Errorf("listing collection settings: %w", err)
	}
	for _, key := range settingsKeys {
		name, ok := schema.CollectionFromSettingsKey(m.PublishID, key)
		if !ok {
			continue
		}
		if _, live := liveNames[name]; !live {
			plan.OrphanedSettings = append(plan.OrphanedSettings, key)
		}
	}

	// Phase 3: content.
	contentKeys, err := m.Provider.List(ctx, schema.ContentPrefix(m.PublishID))
	if err != nil {
		return nil, fmt.Errorf("listing content keys: %w", err)
	}
	for _, key := range contentKeys {
		digest, err := schema.ContentKeyHash(m.PublishID, key)
		if err != nil {
			// A key under the content prefix that does not parse was
			// not written by this pipeline. Leave it alone.
			continue
		}
		if _, live := liveDigests[digest]; live {
			continue
		}
		plan.UnreferencedContent = append(plan.UnreferencedContent, key)

		metadata, err := m.Provider.Metadata(ctx, key)
		if err != nil {
			continue
		}
		if meta, err := schema.ParseVariantMetadata(metadata); err == nil && meta.ChunkIndex == 0 {
			plan.ContentBytes += meta.Size
		}
	}

	if opts.DryRun || plan.Empty() {
		return plan, nil
	}

	plan.Executed = kvstore.BatchDelete(ctx, m.Provider, plan.Keys(), kvstore.BatchOptions{
		Workers:     opts.Workers,
		MaxAttempts: opts.MaxAttempts,
		Clock:       m.Clock,
		OnDeleted:   opts.OnDeleted,
	})
	if err := plan.Executed.Err(); err != nil {
		return plan, fmt.Errorf("clean: %w", err)
	}
	return plan, nil
}

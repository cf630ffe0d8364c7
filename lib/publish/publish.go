// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish implements the publish pipeline: scan the root
// directory, hash and compress each asset, split oversized blobs into
// chunks, deduplicate against the store by content address, upload
// over a bounded worker pool, and commit the collection's index and
// settings records.
//
// Content uploads happen before the index and settings records are
// written, and the records are withheld entirely when any content
// upload fails: a collection must never reference content the store
// does not hold. The reverse — content without a referencing index —
// is harmless and reclaimed by the clean operation.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/statikv/statikv/lib/assetindex"
	"github.com/statikv/statikv/lib/chunk"
	"github.com/statikv/statikv/lib/clock"
	"github.com/statikv/statikv/lib/config"
	"github.com/statikv/statikv/lib/contenthash"
	"github.com/statikv/statikv/lib/expiry"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
	"github.com/statikv/statikv/lib/variant"
)

// Publisher runs publishes for one project against one storage
// provider. Project and Provider are required; nil Clock and
// Reporter fall back to the real clock and a no-op reporter.
type Publisher struct {
	Project  *config.Config
	Provider kvstore.Provider
	Clock    clock.Clock
	Reporter Reporter
}

// Options select the target collection and run mode for one publish.
type Options struct {
	// Collection names the target collection. Empty means the
	// project's default collection.
	Collection string

	// Expiration sets the collection's expiration. The zero value
	// publishes without one.
	Expiration expiry.Spec

	// Overwrite uploads every blob without existence probes.
	Overwrite bool

	// DryRun plans, builds variants, and probes the store, but
	// writes nothing to it.
	DryRun bool

	// CleanStaging removes the staging directory after a fully
	// successful run. Subsequent publishes of unchanged large files
	// lose chunk-set reuse.
	CleanStaging bool

	// Workers and MaxAttempts tune the upload pool; zero means the
	// kvstore defaults.
	Workers     int
	MaxAttempts int
}

// Result summarizes one publish run. Planned counts the content
// storage keys in the upload plan; the index and settings records are
// written on top of it and counted in Uploaded.
type Result struct {
	Collection    string
	Files         int
	Inlined       int
	Planned       int
	PlannedBytes  int64
	Uploaded      int
	Skipped       int
	UploadedBytes int64
	Failed        []kvstore.KeyError
	DryRun        bool
}

// contentPlan is the per-content-address work product, shared by
// every asset path with identical bytes.
type contentPlan struct {
	contentKey string   // "sha256:<hex>", referenced by index entries
	variants   []string // encodings kept under the retention rule
	entries    []kvstore.BatchEntry
}

// Publish runs the pipeline once. A scan, hash, encode, or chunking
// failure aborts the run; per-key upload failures are collected in
// the Result and reported together with a summary error after the
// remaining keys finish.
func (p *Publisher) Publish(ctx context.Context, opts Options) (*Result, error) {
	if p.Project == nil || p.Provider == nil {
		return nil, fmt.Errorf("publish: project config and storage provider are required")
	}
	cfg := p.Project
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	reporter := p.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	collection := opts.Collection
	if collection == "" {
		collection = cfg.DefaultCollection
	}
	if err := schema.ValidateName(collection); err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}

	// Expiration inputs are validated before any side effect so a
	// contradictory invocation cannot half-publish.
	now := clk.Now()
	expiresAt, err := opts.Expiration.Resolve(now)
	if err != nil {
		return nil, err
	}

	scanOpts, err := cfg.ScanOptions(func(message string) { reporter.Warning(message) })
	if err != nil {
		return nil, err
	}
	assets, err := assetindex.Scan(cfg.RootDir, scanOpts)
	if err != nil {
		return nil, err
	}
	reporter.ScanComplete(len(assets))

	result := &Result{Collection: collection, Files: len(assets), DryRun: opts.DryRun}

	var precheck func(string) bool
	if !opts.Overwrite {
		precheck = baseRecordUsable
	}

	index := schema.Index{}
	plans := map[string]*contentPlan{}
	var entries []kvstore.BatchEntry
	for _, asset := range assets {
		reporter.FileQueued(asset.Key, asset.ContentType)

		digest, size, err := contenthash.HashFile(asset.Path)
		if err != nil {
			return nil, err
		}
		hexDigest := contenthash.Format(digest)

		plan, ok := plans[hexDigest]
		if !ok {
			plan, err = p.planContent(asset, hexDigest, size, precheck, reporter)
			if err != nil {
				return nil, err
			}
			plans[hexDigest] = plan
			entries = append(entries, plan.entries...)
		}

		index[publicPath(cfg.Server.PublicDirPrefix, asset.Key)] = schema.AssetEntry{
			Key:              plan.contentKey,
			Size:             size,
			ContentType:      asset.ContentType,
			LastModifiedTime: asset.ModTime.Unix(),
			Variants:         plan.variants,
		}

		if asset.Inline && !opts.DryRun {
			if err := copyFile(asset.Path, filepath.Join(cfg.InlineDir(), filepath.FromSlash(asset.Key))); err != nil {
				return nil, fmt.Errorf("writing inline bundle copy of %s: %w", asset.Key, err)
			}
			result.Inlined++
		}
	}

	result.Planned = len(entries)
	for _, entry := range entries {
		result.PlannedBytes += entry.Size
	}

	if opts.DryRun {
		for _, entry := range entries {
			if entry.Precheck == nil {
				continue
			}
			metadata, err := p.Provider.Metadata(ctx, entry.Key)
			if err == nil && entry.Precheck(metadata) {
				result.Skipped++
				reporter.UploadSkipped(entry.Key)
			}
		}
		return result, nil
	}

	var uploadedBytes atomic.Int64
	batchOpts := kvstore.BatchOptions{
		Workers:     opts.Workers,
		MaxAttempts: opts.MaxAttempts,
		Clock:       clk,
		OnSkipped:   func(key string) { reporter.UploadSkipped(key) },
		OnUploaded: func(key string, size int64) {
			uploadedBytes.Add(size)
			reporter.Uploaded(key, size)
		},
		OnRetry: func(key string, attempt int, err error) { reporter.Retry(key, attempt, err) },
	}

	batchResult := kvstore.BatchPut(ctx, p.Provider, entries, batchOpts)
	result.Uploaded = batchResult.Uploaded
	result.Skipped = batchResult.Skipped
	result.UploadedBytes = uploadedBytes.Load()
	result.Failed = batchResult.Failed
	for _, failure := range batchResult.Failed {
		reporter.Failed(failure.Key, failure.Err)
	}
	if len(batchResult.Failed) > 0 {
		return result, fmt.Errorf("%d of %d uploads failed; records for collection %q not written",
			len(batchResult.Failed), len(entries), collection)
	}

	commitErr := p.commitRecords(ctx, collection, index, expiresAt, now.Unix(), batchOpts, result)
	result.UploadedBytes = uploadedBytes.Load()
	if commitErr != nil {
		return result, commitErr
	}

	if opts.CleanStaging {
		if err := os.RemoveAll(stagingRoot(cfg.OutputDir)); err != nil {
			reporter.Warning(fmt.Sprintf("removing staging directory: %v", err))
		}
	}
	return result, nil
}

// planContent builds the upload plan for one content address: the
// original blob, each retained compression variant, and the chunk
// sets of any of them above the chunking threshold.
func (p *Publisher) planContent(asset assetindex.Asset, hexDigest string, size int64, precheck func(string) bool, reporter Reporter) (*contentPlan, error) {
	cfg := p.Project
	baseKey := schema.ContentBaseKey(cfg.PublishID, hexDigest)
	stagingDir := filepath.Join(stagingRoot(cfg.OutputDir), hexDigest)

	plan := &contentPlan{
		contentKey: contenthash.ContentKeyPrefix + hexDigest,
		variants:   []string{},
	}

	entries, err := planBlob(baseKey, asset.Path, size, hexDigest, "", filepath.Join(stagingDir, "chunks"), precheck)
	if err != nil {
		return nil, err
	}
	plan.entries = entries

	encodings := cfg.ContentCompression
	if cfg.CompressTextOnly && !asset.Text {
		encodings = nil
	}
	if len(encodings) > 0 {
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating staging directory %s: %w", stagingDir, err)
		}
	}
	for _, encoding := range encodings {
		variantPath := filepath.Join(stagingDir, encoding)
		encoded, err := variant.Encode(encoding, asset.Path, variantPath, size)
		if variant.IsIncompressible(err) {
			reporter.VariantSkipped(asset.Key, encoding, "not smaller than the original")
			continue
		}
		if err != nil {
			return nil, err
		}
		reporter.VariantBuilt(asset.Key, encoding, size, encoded.Size)
		plan.variants = append(plan.variants, encoding)

		variantEntries, err := planBlob(
			schema.VariantKey(baseKey, encoding),
			variantPath,
			encoded.Size,
			contenthash.Format(encoded.Hash),
			encoding,
			filepath.Join(stagingDir, "chunks-"+encoding),
			precheck,
		)
		if err != nil {
			return nil, err
		}
		plan.entries = append(plan.entries, variantEntries...)
	}
	sort.Strings(plan.variants)
	return plan, nil
}

// planBlob produces the batch entries for one stored blob: a single
// entry when it fits under the chunk threshold, otherwise one entry
// per chunk with the base record on chunk 0 and a continuation
// record on each later chunk.
func planBlob(key, filePath string, size int64, blobHexHash, encoding, chunkDir string, precheck func(string) bool) ([]kvstore.BatchEntry, error) {
	meta := schema.VariantMetadata{Size: size, Hash: blobHexHash, ContentEncoding: encoding}

	if !chunk.Needed(size) {
		metadata, err := meta.Encode()
		if err != nil {
			return nil, err
		}
		return []kvstore.BatchEntry{{
			Key:      key,
			FilePath: filePath,
			Size:     size,
			Metadata: metadata,
			Precheck: precheck,
		}}, nil
	}

	manifest, err := chunk.Split(filePath, size, chunkDir)
	if err != nil {
		return nil, err
	}
	meta.NumChunks = manifest.Count
	metadata, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	entries := make([]kvstore.BatchEntry, 0, manifest.Count)
	for i, chunkEntry := range manifest.Chunks {
		entry := kvstore.BatchEntry{
			Key:      schema.ChunkKey(key, i),
			FilePath: chunk.FilePath(chunkDir, i),
			Size:     chunkEntry.Size,
		}
		if i == 0 {
			entry.Metadata = metadata
			entry.Precheck = precheck
		} else {
			continuation, err := schema.ContinuationMetadata(i).Encode()
			if err != nil {
				return nil, err
			}
			entry.Metadata = continuation
			if precheck != nil {
				entry.Precheck = continuationRecordUsable(i)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// commitRecords writes the collection's index and settings. Both are
// always written fresh: they are collection-specific, never
// content-addressed.
func (p *Publisher) commitRecords(ctx context.Context, collection string, index schema.Index, expiresAt time.Time, publishedUnix int64, batchOpts kvstore.BatchOptions, result *Result) error {
	cfg := p.Project

	indexData, err := schema.EncodeIndex(index)
	if err != nil {
		return err
	}
	settingsData, err := schema.EncodeServerConfig(cfg.Server)
	if err != nil {
		return err
	}
	indexMeta := schema.IndexMetadata{PublishedTime: publishedUnix}
	if !expiresAt.IsZero() {
		indexMeta.ExpirationTime = expiresAt.Unix()
	}
	metadata, err := indexMeta.Encode()
	if err != nil {
		return err
	}

	records := []kvstore.BatchEntry{
		{Key: schema.IndexKey(cfg.PublishID, collection), Bytes: indexData, Size: int64(len(indexData)), Metadata: metadata},
		{Key: schema.SettingsKey(cfg.PublishID, collection), Bytes: settingsData, Size: int64(len(settingsData))},
	}
	commit := kvstore.BatchPut(ctx, p.Provider, records, batchOpts)
	result.Uploaded += commit.Uploaded
	result.Failed = append(result.Failed, commit.Failed...)
	if err := commit.Err(); err != nil {
		return fmt.Errorf("writing collection %q records: %w", collection, err)
	}
	return nil
}

// baseRecordUsable is the dedup acceptance test for originals,
// variants, and chunk-0 keys: the stored record must parse and be
// internally consistent. A malformed record means the key cannot be
// trusted and the blob is re-uploaded.
func baseRecordUsable(metadata string) bool {
	m, err := schema.ParseVariantMetadata(metadata)
	return err == nil && m.Validate(chunk.Threshold) == nil
}

// continuationRecordUsable accepts a stored continuation chunk whose
// record names the expected chunk index. Probing every chunk, not
// just chunk 0, lets a publish heal a partially uploaded chunk set.
func continuationRecordUsable(i int) func(string) bool {
	return func(metadata string) bool {
		m, err := schema.ParseVariantMetadata(metadata)
		return err == nil && m.ChunkIndex == i
	}
}

func stagingRoot(outputDir string) string {
	return filepath.Join(outputDir, "staging")
}

func publicPath(prefix, assetKey string) string {
	return prefix + "/" + assetKey
}

// copyFile copies src to dst, creating parent directories. Used for
// the inline bundle.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			os.Remove(dst)
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	success = true
	return nil
}

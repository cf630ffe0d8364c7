// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/statikv/statikv/lib/clock"
)

// DefaultWorkers bounds concurrent in-flight store operations during
// batch puts and deletes. The bound is deliberate backpressure
// against backend rate limits, not an incidental limitation.
const DefaultWorkers = 12

// BatchEntry is one planned write in a publish batch.
type BatchEntry struct {
	// Key is the storage key to write.
	Key string

	// FilePath is the local file whose bytes are uploaded. Ignored
	// when Bytes is set.
	FilePath string

	// Bytes is an in-memory body, used for small records (index,
	// settings) that never touch disk.
	Bytes []byte

	// Size is the exact byte length of the body.
	Size int64

	// Metadata is the metadata string stored with the blob.
	Metadata string

	// Precheck, when set, makes the worker probe the key's stored
	// metadata before uploading; returning true counts the entry as
	// skipped instead of uploaded. A missing key, a malformed stored
	// record, or a failed probe all fall through to the upload:
	// content-addressed keys are immutable, so writing when in doubt
	// is safe while trusting a bad record is not.
	Precheck func(metadata string) bool
}

// KeyError records one key's terminal failure inside a batch.
type KeyError struct {
	Key string
	Err error
}

// BatchOptions tunes batch fan-out. The zero value is usable:
// DefaultWorkers workers, DefaultMaxAttempts attempts, the real
// clock, no callbacks.
type BatchOptions struct {
	// Workers is the worker-pool size.
	Workers int

	// MaxAttempts bounds per-operation retries.
	MaxAttempts int

	// Clock drives retry backoff. Tests inject a fake.
	Clock clock.Clock

	// Callbacks observe per-key outcomes as they happen. They may be
	// invoked concurrently from multiple workers. OnSkipped fires
	// when an entry's Precheck accepted the stored record.
	OnSkipped  func(key string)
	OnUploaded func(key string, size int64)
	OnDeleted  func(key string)
	OnRetry    func(key string, attempt int, err error)
}

func (o *BatchOptions) normalize() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
}

// BatchResult summarizes a BatchPut.
type BatchResult struct {
	Uploaded int
	Skipped  int
	Failed   []KeyError
}

// Err returns nil when every entry succeeded, else a summary error.
// Per-key detail stays in Failed.
func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	total := r.Uploaded + r.Skipped + len(r.Failed)
	return fmt.Errorf("%d of %d batch entries failed", len(r.Failed), total)
}

// BatchPut uploads entries over a fixed worker pool, each worker
// running its entry's Precheck probe (if any) and then the upload
// with independent retry on transient errors. Probes share the pool
// with uploads so the backend never sees more than Workers in-flight
// requests of either kind. A key that still fails is recorded in the
// result and does not block or abort the others. Entries not yet
// dispatched when the context cancels are recorded as failed with
// the context's error.
func BatchPut(ctx context.Context, provider Provider, entries []BatchEntry, options BatchOptions) BatchResult {
	options.normalize()

	jobs := make(chan BatchEntry)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result BatchResult

	for i := 0; i < options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				skipped, err := putEntry(ctx, provider, entry, options)
				mu.Lock()
				switch {
				case skipped:
					result.Skipped++
				case err != nil:
					result.Failed = append(result.Failed, KeyError{Key: entry.Key, Err: err})
				default:
					result.Uploaded++
				}
				mu.Unlock()
				switch {
				case skipped:
					if options.OnSkipped != nil {
						options.OnSkipped(entry.Key)
					}
				case err == nil:
					if options.OnUploaded != nil {
						options.OnUploaded(entry.Key, entry.Size)
					}
				}
			}
		}()
	}

feed:
	for i, entry := range entries {
		select {
		case jobs <- entry:
		case <-ctx.Done():
			mu.Lock()
			for _, rest := range entries[i:] {
				result.Failed = append(result.Failed, KeyError{Key: rest.Key, Err: ctx.Err()})
			}
			mu.Unlock()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sortKeyErrors(result.Failed)
	return result
}

// putEntry probes and uploads one entry with retry. The body is
// opened once and rewound per attempt; an unreadable file is a local
// I/O failure reported immediately, never retried.
func putEntry(ctx context.Context, provider Provider, entry BatchEntry, options BatchOptions) (skipped bool, err error) {
	if entry.Precheck != nil {
		metadata, err := provider.Metadata(ctx, entry.Key)
		if err == nil && entry.Precheck(metadata) {
			return true, nil
		}
	}

	var body io.ReadSeeker
	if entry.Bytes != nil {
		body = bytes.NewReader(entry.Bytes)
	} else {
		file, err := os.Open(entry.FilePath)
		if err != nil {
			return false, fmt.Errorf("opening %s for upload: %w", entry.FilePath, err)
		}
		defer file.Close()
		body = file
	}

	var onRetry func(attempt int, err error)
	if options.OnRetry != nil {
		onRetry = func(attempt int, err error) { options.OnRetry(entry.Key, attempt, err) }
	}

	return false, withRetry(ctx, options.Clock, options.MaxAttempts, onRetry, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding the %s body: %w", entry.Key, err)
		}
		return provider.Put(ctx, entry.Key, body, entry.Size, entry.Metadata)
	})
}

// DeleteResult summarizes a BatchDelete.
type DeleteResult struct {
	Deleted int
	Failed  []KeyError
}

// Err returns nil when every key was deleted, else a summary error.
func (r DeleteResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d deletions failed", len(r.Failed), r.Deleted+len(r.Failed))
}

// BatchDelete removes keys over the same bounded worker pool and
// retry policy as BatchPut.
func BatchDelete(ctx context.Context, provider Provider, keys []string, options BatchOptions) DeleteResult {
	options.normalize()

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result DeleteResult

	for i := 0; i < options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				var onRetry func(attempt int, err error)
				if options.OnRetry != nil {
					k := key
					onRetry = func(attempt int, err error) { options.OnRetry(k, attempt, err) }
				}
				err := withRetry(ctx, options.Clock, options.MaxAttempts, onRetry, func() error {
					return provider.Delete(ctx, key)
				})
				mu.Lock()
				if err != nil {
					result.Failed = append(result.Failed, KeyError{Key: key, Err: err})
				} else {
					result.Deleted++
				}
				mu.Unlock()
				if err == nil && options.OnDeleted != nil {
					options.OnDeleted(key)
				}
			}
		}()
	}

feed:
	for i, key := range keys {
		select {
		case jobs <- key:
		case <-ctx.Done():
			mu.Lock()
			for _, rest := range keys[i:] {
				result.Failed = append(result.Failed, KeyError{Key: rest, Err: ctx.Err()})
			}
			mu.Unlock()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sortKeyErrors(result.Failed)
	return result
}

func sortKeyErrors(failed []KeyError) {
	sort.Slice(failed, func(i, j int) bool { return failed[i].Key < failed[j].Key })
}

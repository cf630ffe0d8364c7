// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package publish

// Reporter receives progress events from a publish run. The pipeline
// never prints; rendering is the caller's concern. Methods may be
// called concurrently from upload workers.
type Reporter interface {
	// ScanComplete fires once after the root directory scan.
	ScanComplete(fileCount int)

	// FileQueued fires per asset before hashing starts.
	FileQueued(assetKey, contentType string)

	// VariantBuilt fires when an encoding produced a strictly smaller
	// form that will be stored.
	VariantBuilt(assetKey, encoding string, fromSize, toSize int64)

	// VariantSkipped fires when an encoding was attempted but its
	// output is not stored.
	VariantSkipped(assetKey, encoding, reason string)

	// UploadSkipped fires when the dedup check found the key already
	// stored with a valid record.
	UploadSkipped(storageKey string)

	// Uploaded fires after a key is stored.
	Uploaded(storageKey string, size int64)

	// Retry fires before a failed store operation is retried.
	Retry(storageKey string, attempt int, err error)

	// Failed fires when a key's upload failed terminally. The run
	// continues with the remaining keys.
	Failed(storageKey string, err error)

	// Warning reports a non-fatal irregularity (an asset without a
	// content-type rule, staging cleanup trouble).
	Warning(message string)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) ScanComplete(int)                          {}
func (NopReporter) FileQueued(string, string)                 {}
func (NopReporter) VariantBuilt(string, string, int64, int64) {}
func (NopReporter) VariantSkipped(string, string, string)     {}
func (NopReporter) UploadSkipped(string)                      {}
func (NopReporter) Uploaded(string, int64)                    {}
func (NopReporter) Retry(string, int, error)                  {}
func (NopReporter) Failed(string, error)                      {}
func (NopReporter) Warning(string)                            {}

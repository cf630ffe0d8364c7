// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire records shared by the publish
// pipeline and the serving engine: asset index entries, stored-blob
// metadata, per-collection server settings, and the storage key
// namespace they live under. Records are JSON on the wire; changing a
// field name here changes the storage format.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/statikv/statikv/lib/contenthash"
)

// AssetEntry describes one published file in a collection's asset
// index. The index record is a JSON map from asset key (the public
// path, forward-slash normalized) to AssetEntry.
type AssetEntry struct {
	// Key is the content address of the original bytes, in
	// "sha256:<hex>" form.
	Key string `json:"key"`

	// Size is the original (uncompressed) byte size.
	Size int64 `json:"size"`

	// ContentType is the MIME type resolved at scan time.
	ContentType string `json:"contentType"`

	// LastModifiedTime is the filesystem mtime at scan time, in unix
	// seconds.
	LastModifiedTime int64 `json:"lastModifiedTime"`

	// Variants lists the compression encodings for which a stored
	// variant blob exists and is strictly smaller than the original.
	// Sorted, never nil.
	Variants []string `json:"variants"`
}

// Index is a collection's asset index record: asset key to entry.
type Index map[string]AssetEntry

// EncodeIndex serializes an index record for storage.
func EncodeIndex(index Index) ([]byte, error) {
	data, err := json.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encoding asset index: %w", err)
	}
	return data, nil
}

// DecodeIndex parses a stored index record.
func DecodeIndex(data []byte) (Index, error) {
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding asset index: %w", err)
	}
	return index, nil
}

// VariantMetadata is the metadata string attached to every stored
// content blob: the original, each compression variant, and each
// continuation chunk. For originals and variants it describes the
// whole logical blob; for continuation chunks (index >= 1) it carries
// only ChunkIndex, because the base record under the unsuffixed key
// already describes the whole.
type VariantMetadata struct {
	Size int64 `json:"size,omitempty"`

	// Hash is the hex digest of this blob's bytes (the variant's
	// bytes for a compressed variant, not the original's).
	Hash string `json:"hash,omitempty"`

	// ContentEncoding is absent for the original blob.
	ContentEncoding string `json:"contentEncoding,omitempty"`

	// NumChunks is present only when the blob was split. It counts
	// all chunks including chunk 0.
	NumChunks int `json:"numChunks,omitempty"`

	// ChunkIndex is present only on continuation-chunk records.
	ChunkIndex int `json:"chunkIndex,omitempty"`
}

// ContinuationMetadata returns the metadata record for continuation
// chunk i of a split blob. Panics if i < 1: chunk 0 is described by
// the base record.
func ContinuationMetadata(i int) VariantMetadata {
	if i < 1 {
		panic("schema: continuation chunk index must be >= 1")
	}
	return VariantMetadata{ChunkIndex: i}
}

// Encode serializes the metadata for the storage provider's metadata
// string.
func (m VariantMetadata) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding blob metadata: %w", err)
	}
	return string(data), nil
}

// ParseVariantMetadata parses a stored metadata string. An empty
// string is an error: every blob written by the publish pipeline
// carries metadata, so its absence means the key was written by
// something else.
func ParseVariantMetadata(metadata string) (VariantMetadata, error) {
	var m VariantMetadata
	if metadata == "" {
		return m, fmt.Errorf("blob metadata is empty")
	}
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return m, fmt.Errorf("decoding blob metadata: %w", err)
	}
	return m, nil
}

// Validate checks that a base (chunk 0) record is internally
// consistent against the chunking threshold: small blobs carry no
// chunk count, split blobs carry exactly ceil(size/threshold). Used
// by the dedup check — a record that fails validation is treated as
// not usable and the blob is re-uploaded.
func (m VariantMetadata) Validate(chunkThreshold int64) error {
	if m.ChunkIndex != 0 {
		return fmt.Errorf("base record carries chunkIndex %d", m.ChunkIndex)
	}
	if m.Size < 0 {
		return fmt.Errorf("negative size %d", m.Size)
	}
	if _, err := contenthash.Parse(m.Hash); err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}
	if m.NumChunks == 0 {
		if m.Size > chunkThreshold {
			return fmt.Errorf("unchunked record declares %d bytes, above the %d-byte chunk threshold", m.Size, chunkThreshold)
		}
		return nil
	}
	want := int((m.Size + chunkThreshold - 1) / chunkThreshold)
	if m.NumChunks != want {
		return fmt.Errorf("record declares %d chunks for %d bytes, want %d", m.NumChunks, m.Size, want)
	}
	return nil
}

// ServerConfig is a collection's serving settings record, written at
// publish time and immutable until the next publish.
type ServerConfig struct {
	// PublicDirPrefix is prepended to request paths before index
	// lookup (for example "/public").
	PublicDirPrefix string `json:"publicDirPrefix"`

	// StaticItems selects assets that receive a long-lived immutable
	// cache policy. Entries starting with "re:" are regular
	// expressions; entries ending in "/" are path prefixes; anything
	// else matches exactly.
	StaticItems []string `json:"staticItems"`

	// AllowedEncodings lists the compression encodings the serving
	// engine may negotiate for this collection.
	AllowedEncodings []string `json:"allowedEncodings"`

	// SPAFile, when set, is the asset served (status 200) for
	// unresolved paths whose Accept header admits HTML.
	SPAFile string `json:"spaFile,omitempty"`

	// NotFoundPageFile, when set, is the asset served with status 404
	// for unresolved paths.
	NotFoundPageFile string `json:"notFoundPageFile,omitempty"`

	// AutoExt lists suffixes tried in order when a path has no direct
	// match (for example ".html").
	AutoExt []string `json:"autoExt"`

	// AutoIndex lists index filenames tried in order for
	// directory-style paths (for example "index.html").
	AutoIndex []string `json:"autoIndex"`
}

// EncodeServerConfig serializes a settings record for storage.
func EncodeServerConfig(config ServerConfig) ([]byte, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encoding server config: %w", err)
	}
	return data, nil
}

// DecodeServerConfig parses a stored settings record.
func DecodeServerConfig(data []byte) (ServerConfig, error) {
	var config ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("decoding server config: %w", err)
	}
	return config, nil
}

// IndexMetadata is the metadata string attached to a collection's
// index key. ExpirationTime zero means the collection never expires.
type IndexMetadata struct {
	PublishedTime  int64 `json:"publishedTime"`
	ExpirationTime int64 `json:"expirationTime,omitempty"`
}

// Encode serializes the metadata for the storage provider's metadata
// string.
func (m IndexMetadata) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding index metadata: %w", err)
	}
	return string(data), nil
}

// ParseIndexMetadata parses a stored index metadata string. An empty
// string yields the zero value (published time unknown, no
// expiration) rather than an error, so collections written by older
// tooling remain listable.
func ParseIndexMetadata(metadata string) (IndexMetadata, error) {
	var m IndexMetadata
	if metadata == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return m, fmt.Errorf("decoding index metadata: %w", err)
	}
	return m, nil
}

// ExpiresAt returns the expiration instant and whether one is set.
func (m IndexMetadata) ExpiresAt() (time.Time, bool) {
	if m.ExpirationTime == 0 {
		return time.Time{}, false
	}
	return time.Unix(m.ExpirationTime, 0).UTC(), true
}

// Expired reports whether the collection's expiration instant has
// passed. Collections without an expiration never expire. The default
// collection's exemption is enforced by the lifecycle manager, not
// here.
func (m IndexMetadata) Expired(now time.Time) bool {
	expires, ok := m.ExpiresAt()
	if !ok {
		return false
	}
	return !expires.After(now)
}

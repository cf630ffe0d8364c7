// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/statikv/statikv/lib/contenthash"
)

// ManifestName is the staging-manifest filename written next to the
// chunk files.
const ManifestName = "chunks.cbor"

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Manifest records a completed chunk split. It is stored in the
// staging directory as CBOR using Core Deterministic Encoding. Its
// presence marks the chunk set as complete, so it is always written
// last; a split interrupted before the manifest lands is discarded by
// the next run.
type Manifest struct {
	// Version is the manifest format version. Currently 1.
	Version int `json:"version"`

	// SourceSize is the total source byte length.
	SourceSize int64 `json:"sourceSize"`

	// ChunkSize is the size every chunk but the last was cut to.
	ChunkSize int64 `json:"chunkSize"`

	// Count is the total number of chunks.
	Count int `json:"count"`

	// Chunks holds per-chunk size and content hash, in chunk order.
	// The stored records carry a hash only for chunk 0, so these
	// per-chunk hashes are the only way to verify a single chunk
	// without reconstructing the whole blob.
	Chunks []Entry `json:"chunks"`
}

// Entry is one chunk's record within a Manifest.
type Entry struct {
	// Size is the chunk's byte length.
	Size int64 `json:"size"`

	// SHA256 is the chunk's content hash.
	SHA256 contenthash.Digest `json:"sha256"`
}

// cborEncMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes.
var cborEncMode cbor.EncMode

// cborDecMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility.
var cborDecMode cbor.DecMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("chunk: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("chunk: CBOR decoder initialization failed: " + err.Error())
	}
}

// Validate checks that a Manifest is internally consistent: the count
// matches the layout arithmetic for its source and chunk sizes, and
// every entry carries the exact planned size and a non-zero hash.
func (m *Manifest) Validate() error {
	if m.Version < 1 {
		return fmt.Errorf("version %d is invalid (minimum 1)", m.Version)
	}
	if m.SourceSize < 0 {
		return fmt.Errorf("source size %d is negative", m.SourceSize)
	}
	if m.ChunkSize < 1 {
		return fmt.Errorf("chunk size %d is invalid (minimum 1)", m.ChunkSize)
	}
	if m.Count < 1 {
		return fmt.Errorf("chunk count %d is invalid (minimum 1)", m.Count)
	}

	plan := planFor(m.SourceSize, m.ChunkSize)
	if m.Count != plan.Count {
		return fmt.Errorf("chunk count %d, want %d for %d bytes in %d-byte chunks",
			m.Count, plan.Count, m.SourceSize, m.ChunkSize)
	}
	if len(m.Chunks) != m.Count {
		return fmt.Errorf("manifest lists %d chunks, but count is %d", len(m.Chunks), m.Count)
	}

	var zeroDigest contenthash.Digest
	for i, entry := range m.Chunks {
		if entry.Size != plan.Size(i) {
			return fmt.Errorf("chunk %d: size %d, want %d", i, entry.Size, plan.Size(i))
		}
		if entry.SHA256 == zeroDigest {
			return fmt.Errorf("chunk %d: hash is zero", i)
		}
	}
	return nil
}

// ManifestPath returns the manifest location within stagingDir.
func ManifestPath(stagingDir string) string {
	return filepath.Join(stagingDir, ManifestName)
}

func loadManifest(stagingDir string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(stagingDir))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := cborDecMode.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding chunk manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk manifest: %w", err)
	}
	return &manifest, nil
}

// writeManifest encodes the manifest and writes it atomically: temp
// file in the same directory, then rename.
func writeManifest(stagingDir string, manifest *Manifest) error {
	data, err := cborEncMode.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding chunk manifest: %w", err)
	}

	tmp, err := os.CreateTemp(stagingDir, ManifestName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, ManifestPath(stagingDir)); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	success = true
	return nil
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits blobs that exceed the storage size threshold
// into ordered fixed-size parts and reassembles them transparently on
// read.
//
// The publish pipeline calls [Split] to stage chunk files for upload;
// [Split] is idempotent across runs, reusing a staged chunk set when
// its manifest and on-disk sizes still match so an unchanged large
// file is never re-read. The serving side calls [NewReader] to stream
// the chunks of a stored blob back as one logical byte stream.
package chunk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/statikv/statikv/lib/contenthash"
)

// Threshold is the chunk-size threshold: blobs strictly larger are
// split into Threshold-sized chunks, with the last chunk taking the
// remainder. This is a protocol constant — changing it invalidates
// the chunk-count arithmetic of every record already stored.
const Threshold int64 = 20 << 20 // 20 MiB

// Needed reports whether a blob of the given size must be chunked
// before storage.
func Needed(size int64) bool {
	return size > Threshold
}

// Plan is the chunk layout for a source of a known size.
type Plan struct {
	// SourceSize is the total source byte length.
	SourceSize int64

	// ChunkSize is the size of every chunk except the last.
	ChunkSize int64

	// Count is the number of chunks.
	Count int
}

// PlanFor computes the chunk layout for a source of the given size:
// ceil(size/Threshold) chunks. A zero-byte source plans zero chunks.
func PlanFor(sourceSize int64) Plan {
	return planFor(sourceSize, Threshold)
}

func planFor(sourceSize, chunkSize int64) Plan {
	return Plan{
		SourceSize: sourceSize,
		ChunkSize:  chunkSize,
		Count:      int((sourceSize + chunkSize - 1) / chunkSize),
	}
}

// Size returns the byte length of the chunk at index: ChunkSize for
// every chunk except the last, which takes the remainder.
func (p Plan) Size(index int) int64 {
	if index == p.Count-1 {
		return p.SourceSize - p.ChunkSize*int64(p.Count-1)
	}
	return p.ChunkSize
}

// FilePath returns the staging path of the chunk at index.
func FilePath(stagingDir string, index int) string {
	return filepath.Join(stagingDir, fmt.Sprintf("chunk_%06d", index))
}

// Split ensures stagingDir holds a complete chunk set for the source
// file and returns its manifest. When a manifest from a previous run
// matches the source size and every chunk file's on-disk size matches
// its manifest entry, the existing set is reused without reading the
// source. Otherwise the old set is discarded and the source is split
// again in one sequential pass, hashing each chunk as it is written.
func Split(sourcePath string, sourceSize int64, stagingDir string) (*Manifest, error) {
	return split(sourcePath, sourceSize, stagingDir, Threshold)
}

func split(sourcePath string, sourceSize int64, stagingDir string, chunkSize int64) (*Manifest, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	if manifest, ok := reusable(stagingDir, sourceSize, chunkSize); ok {
		return manifest, nil
	}
	if err := discardChunks(stagingDir); err != nil {
		return nil, err
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for chunking: %w", sourcePath, err)
	}
	defer source.Close()

	plan := planFor(sourceSize, chunkSize)
	manifest := &Manifest{
		Version:    ManifestVersion,
		SourceSize: sourceSize,
		ChunkSize:  chunkSize,
		Count:      plan.Count,
	}
	for index := 0; index < plan.Count; index++ {
		entry, err := writeChunk(source, FilePath(stagingDir, index), plan.Size(index))
		if err != nil {
			return nil, fmt.Errorf("writing chunk %d of %s: %w", index, sourcePath, err)
		}
		manifest.Chunks = append(manifest.Chunks, entry)
	}

	// The declared size must cover the whole source: trailing bytes
	// mean the file changed after it was measured.
	var probe [1]byte
	if _, err := source.Read(probe[:]); err != io.EOF {
		return nil, fmt.Errorf("source %s is larger than the declared %d bytes", sourcePath, sourceSize)
	}

	if err := writeManifest(stagingDir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// reusable reports whether the staging directory already holds a
// complete chunk set for a source of the given size. The check never
// reads chunk contents: the manifest plus exact on-disk sizes decide.
func reusable(stagingDir string, sourceSize, chunkSize int64) (*Manifest, bool) {
	manifest, err := loadManifest(stagingDir)
	if err != nil {
		return nil, false
	}
	if manifest.SourceSize != sourceSize || manifest.ChunkSize != chunkSize {
		return nil, false
	}
	for index, entry := range manifest.Chunks {
		info, err := os.Stat(FilePath(stagingDir, index))
		if err != nil || info.Size() != entry.Size {
			return nil, false
		}
	}
	return manifest, true
}

// discardChunks removes the manifest and every chunk file so a
// partial split can never be mistaken for a complete set. The
// manifest goes first: its presence is what marks a set as complete.
func discardChunks(stagingDir string) error {
	if err := os.Remove(ManifestPath(stagingDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale chunk manifest: %w", err)
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "chunk_") {
			continue
		}
		if err := os.Remove(filepath.Join(stagingDir, entry.Name())); err != nil {
			return fmt.Errorf("removing stale chunk file: %w", err)
		}
	}
	return nil
}

// writeChunk copies exactly size bytes from source into a new file at
// path, hashing the bytes as they pass through. A short or failed
// copy removes the partial file.
func writeChunk(source io.Reader, path string, size int64) (Entry, error) {
	file, err := os.Create(path)
	if err != nil {
		return Entry{}, err
	}

	hasher := contenthash.NewWriter()
	written, copyErr := io.CopyN(io.MultiWriter(file, hasher), source, size)
	closeErr := file.Close()
	if copyErr != nil {
		os.Remove(path)
		if copyErr == io.EOF {
			return Entry{}, fmt.Errorf("source ended after %d of %d bytes", written, size)
		}
		return Entry{}, copyErr
	}
	if closeErr != nil {
		os.Remove(path)
		return Entry{}, closeErr
	}
	return Entry{Size: size, SHA256: hasher.Sum()}, nil
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/statikv/statikv/lib/contenthash"
)

// testChunkSize keeps split tests fast; the production threshold is
// exercised through the layout arithmetic tests.
const testChunkSize = 1024

func patternBytes(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i) + byte(i>>8)*31
	}
	return data
}

func writeSourceFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readChunkFiles(t *testing.T, stagingDir string, count int) [][]byte {
	t.Helper()
	parts := make([][]byte, count)
	for i := 0; i < count; i++ {
		data, err := os.ReadFile(FilePath(stagingDir, i))
		if err != nil {
			t.Fatalf("reading chunk %d: %v", i, err)
		}
		parts[i] = data
	}
	return parts
}

func TestNeeded(t *testing.T) {
	tests := []struct {
		size int64
		want bool
	}{
		{0, false},
		{1, false},
		{Threshold, false},
		{Threshold + 1, true},
		{3 * Threshold, true},
	}
	for _, test := range tests {
		if got := Needed(test.size); got != test.want {
			t.Errorf("Needed(%d) = %v, want %v", test.size, got, test.want)
		}
	}
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		size     int64
		count    int
		lastSize int64
	}{
		{1, 1, 1},
		{Threshold, 1, Threshold},
		{Threshold + 1, 2, 1},
		{2 * Threshold, 2, Threshold},
		{2*Threshold + 5, 3, 5},
	}
	for _, test := range tests {
		plan := PlanFor(test.size)
		if plan.Count != test.count {
			t.Errorf("PlanFor(%d).Count = %d, want %d", test.size, plan.Count, test.count)
			continue
		}
		if got := plan.Size(plan.Count - 1); got != test.lastSize {
			t.Errorf("PlanFor(%d) last chunk = %d, want %d", test.size, got, test.lastSize)
		}
		for i := 0; i < plan.Count-1; i++ {
			if got := plan.Size(i); got != Threshold {
				t.Errorf("PlanFor(%d).Size(%d) = %d, want full threshold", test.size, i, got)
			}
		}
	}
}

func TestPlanForZeroBytes(t *testing.T) {
	if got := PlanFor(0).Count; got != 0 {
		t.Errorf("PlanFor(0).Count = %d, want 0", got)
	}
}

func TestSplitProducesOrderedChunks(t *testing.T) {
	source := patternBytes(2500, 1)
	sourcePath := writeSourceFile(t, source)
	stagingDir := t.TempDir()

	manifest, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if manifest.Count != 3 {
		t.Fatalf("Count = %d, want 3", manifest.Count)
	}
	if manifest.SourceSize != 2500 || manifest.ChunkSize != testChunkSize {
		t.Errorf("manifest sizes = %d/%d, want 2500/%d", manifest.SourceSize, manifest.ChunkSize, testChunkSize)
	}

	parts := readChunkFiles(t, stagingDir, 3)
	wantSizes := []int64{1024, 1024, 452}
	var reassembled []byte
	for i, part := range parts {
		if int64(len(part)) != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, len(part), wantSizes[i])
		}
		if manifest.Chunks[i].Size != wantSizes[i] {
			t.Errorf("manifest chunk %d size = %d, want %d", i, manifest.Chunks[i].Size, wantSizes[i])
		}
		if want := contenthash.Digest(sha256.Sum256(part)); manifest.Chunks[i].SHA256 != want {
			t.Errorf("manifest chunk %d hash does not match file contents", i)
		}
		reassembled = append(reassembled, part...)
	}
	if !bytes.Equal(reassembled, source) {
		t.Error("concatenated chunks do not reproduce the source")
	}
}

func TestSplitExactMultiple(t *testing.T) {
	source := patternBytes(2*testChunkSize, 2)
	sourcePath := writeSourceFile(t, source)
	stagingDir := t.TempDir()

	manifest, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if manifest.Count != 2 {
		t.Fatalf("Count = %d, want 2", manifest.Count)
	}
	for i := 0; i < 2; i++ {
		if manifest.Chunks[i].Size != testChunkSize {
			t.Errorf("chunk %d size = %d, want full chunk", i, manifest.Chunks[i].Size)
		}
	}
}

func TestSplitReusesExistingChunks(t *testing.T) {
	source := patternBytes(2500, 3)
	sourcePath := writeSourceFile(t, source)
	stagingDir := t.TempDir()

	first, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}

	// Rewrite the source with different bytes of the same length. A
	// reused chunk set keeps the original bytes, proving the source
	// was not re-read.
	if err := os.WriteFile(sourcePath, patternBytes(2500, 200), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if second.Count != first.Count {
		t.Fatalf("second split Count = %d, want %d", second.Count, first.Count)
	}
	for i := range first.Chunks {
		if second.Chunks[i].SHA256 != first.Chunks[i].SHA256 {
			t.Errorf("chunk %d hash changed across reuse", i)
		}
	}

	parts := readChunkFiles(t, stagingDir, first.Count)
	if !bytes.Equal(bytes.Join(parts, nil), source) {
		t.Error("reused chunk set no longer holds the original bytes")
	}
}

func TestSplitDetectsMissingChunk(t *testing.T) {
	source := patternBytes(2500, 4)
	sourcePath := writeSourceFile(t, source)
	stagingDir := t.TempDir()

	if _, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize); err != nil {
		t.Fatalf("first split: %v", err)
	}
	if err := os.Remove(FilePath(stagingDir, 1)); err != nil {
		t.Fatal(err)
	}

	replacement := patternBytes(2500, 100)
	if err := os.WriteFile(sourcePath, replacement, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize); err != nil {
		t.Fatalf("second split: %v", err)
	}
	parts := readChunkFiles(t, stagingDir, 3)
	if !bytes.Equal(bytes.Join(parts, nil), replacement) {
		t.Error("incomplete chunk set was not re-split from the current source")
	}
}

func TestSplitDetectsTruncatedChunk(t *testing.T) {
	source := patternBytes(2500, 5)
	sourcePath := writeSourceFile(t, source)
	stagingDir := t.TempDir()

	if _, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize); err != nil {
		t.Fatalf("first split: %v", err)
	}
	if err := os.Truncate(FilePath(stagingDir, 0), 100); err != nil {
		t.Fatal(err)
	}

	replacement := patternBytes(2500, 101)
	if err := os.WriteFile(sourcePath, replacement, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := split(sourcePath, int64(len(source)), stagingDir, testChunkSize); err != nil {
		t.Fatalf("second split: %v", err)
	}
	parts := readChunkFiles(t, stagingDir, 3)
	if !bytes.Equal(bytes.Join(parts, nil), replacement) {
		t.Error("size-mismatched chunk set was not re-split")
	}
}

func TestSplitRemovesStaleChunks(t *testing.T) {
	big := patternBytes(5000, 6)
	sourcePath := writeSourceFile(t, big)
	stagingDir := t.TempDir()

	if _, err := split(sourcePath, int64(len(big)), stagingDir, testChunkSize); err != nil {
		t.Fatalf("first split: %v", err)
	}

	small := patternBytes(1500, 7)
	if err := os.WriteFile(sourcePath, small, 0o644); err != nil {
		t.Fatal(err)
	}
	manifest, err := split(sourcePath, int64(len(small)), stagingDir, testChunkSize)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if manifest.Count != 2 {
		t.Fatalf("Count = %d, want 2", manifest.Count)
	}
	for i := 2; i < 5; i++ {
		if _, err := os.Stat(FilePath(stagingDir, i)); !os.IsNotExist(err) {
			t.Errorf("stale chunk %d still present", i)
		}
	}
}

func TestSplitSourceShorterThanDeclared(t *testing.T) {
	source := patternBytes(2000, 8)
	sourcePath := writeSourceFile(t, source)

	if _, err := split(sourcePath, 2500, t.TempDir(), testChunkSize); err == nil {
		t.Fatal("split with an overdeclared size succeeded")
	}
}

func TestSplitSourceLongerThanDeclared(t *testing.T) {
	source := patternBytes(2500, 9)
	sourcePath := writeSourceFile(t, source)

	if _, err := split(sourcePath, 2048, t.TempDir(), testChunkSize); err == nil {
		t.Fatal("split with an underdeclared size succeeded")
	}
}

func TestSplitMissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := split(filepath.Join(dir, "absent.bin"), 2500, dir, testChunkSize); err == nil {
		t.Fatal("split of a missing source succeeded")
	}
}

func TestManifestValidate(t *testing.T) {
	valid := func() *Manifest {
		return &Manifest{
			Version:    ManifestVersion,
			SourceSize: 2500,
			ChunkSize:  1024,
			Count:      3,
			Chunks: []Entry{
				{Size: 1024, SHA256: contenthash.Digest(sha256.Sum256([]byte("a")))},
				{Size: 1024, SHA256: contenthash.Digest(sha256.Sum256([]byte("b")))},
				{Size: 452, SHA256: contenthash.Digest(sha256.Sum256([]byte("c")))},
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"zero version", func(m *Manifest) { m.Version = 0 }},
		{"negative source size", func(m *Manifest) { m.SourceSize = -1 }},
		{"zero chunk size", func(m *Manifest) { m.ChunkSize = 0 }},
		{"count arithmetic mismatch", func(m *Manifest) { m.Count = 2 }},
		{"entry list shorter than count", func(m *Manifest) { m.Chunks = m.Chunks[:2] }},
		{"wrong middle chunk size", func(m *Manifest) { m.Chunks[1].Size = 500 }},
		{"wrong last chunk size", func(m *Manifest) { m.Chunks[2].Size = 1024 }},
		{"zero hash", func(m *Manifest) { m.Chunks[0].SHA256 = contenthash.Digest{} }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			manifest := valid()
			test.mutate(manifest)
			if err := manifest.Validate(); err == nil {
				t.Error("Validate accepted an inconsistent manifest")
			}
		})
	}
}

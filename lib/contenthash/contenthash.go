// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package contenthash computes and formats the SHA-256 digests that
// address all published content. Every stored blob — original file,
// compression variant, or chunk — is keyed by the digest of the
// original file's bytes, so hashing is the first step of every publish
// and the anchor for deduplication.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ContentKeyPrefix precedes the hex digest in asset content keys.
// The prefix names the algorithm so the key format can survive a
// future algorithm change without ambiguity.
const ContentKeyPrefix = "sha256:"

// Digest is a 32-byte SHA-256 digest of original file content.
type Digest [32]byte

// HashFile computes the SHA-256 digest and byte length of the file at
// path in a single pass. The file is streamed through the hash
// function (via io.Copy) to keep memory usage constant regardless of
// file size.
func HashFile(path string) (Digest, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, file)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, n, nil
}

// Format returns the hex-encoded string representation of a digest.
// This is the form embedded in storage key names.
func Format(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// Parse parses a hex-encoded digest string into a Digest. Returns an
// error if the string is not a valid 64-character hex encoding of 32
// bytes.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing content digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("content digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// FormatContentKey returns the content key form of a digest:
// "sha256:" followed by the hex digest. Asset index entries reference
// stored content by this form.
func FormatContentKey(digest Digest) string {
	return ContentKeyPrefix + Format(digest)
}

// ParseContentKey parses a content key of the form "sha256:<hex>".
func ParseContentKey(key string) (Digest, error) {
	rest, ok := strings.CutPrefix(key, ContentKeyPrefix)
	if !ok {
		return Digest{}, fmt.Errorf("content key %q does not start with %q", key, ContentKeyPrefix)
	}
	return Parse(rest)
}

// Writer accumulates a SHA-256 digest and byte count of everything
// written to it. Used to hash encoder output while it streams to a
// staging file, avoiding a second read pass.
type Writer struct {
	hasher hash.Hash
	size   int64
}

// NewWriter returns a Writer with an empty digest state.
func NewWriter() *Writer {
	return &Writer{hasher: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.hasher.Write(p)
	w.size += int64(len(p))
	return len(p), nil
}

// Sum returns the digest of all bytes written so far.
func (w *Writer) Sum() Digest {
	var digest Digest
	copy(digest[:], w.hasher.Sum(nil))
	return digest
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

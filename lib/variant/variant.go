// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package variant produces the compressed alternate encodings of a
// published asset. Each encoding is written to a staging file and
// retained only when the encoded form is strictly smaller than the
// original — a variant that does not save bytes is never stored or
// served.
package variant

import (
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/statikv/statikv/lib/contenthash"
)

// Content-coding names as they appear in Accept-Encoding and
// Content-Encoding headers and in stored variant keys. Protocol
// constants — a stored variant key embeds the name.
const (
	EncodingGzip   = "gzip"
	EncodingBrotli = "br"
	EncodingZstd   = "zstd"
)

// Encodings returns the supported content codings in canonical order.
func Encodings() []string {
	return []string{EncodingBrotli, EncodingGzip, EncodingZstd}
}

// Known reports whether name is a supported content coding.
func Known(name string) bool {
	switch name {
	case EncodingGzip, EncodingBrotli, EncodingZstd:
		return true
	}
	return false
}

// ValidateEncodings checks a configured encoding list. Unknown names
// are a configuration error, not a silent skip: a typo would
// otherwise quietly publish without compression.
func ValidateEncodings(names []string) error {
	for _, name := range names {
		if !Known(name) {
			return fmt.Errorf("unknown content coding %q (supported: %v)", name, Encodings())
		}
	}
	return nil
}

// Result describes one produced variant: the encoded byte size and
// the digest of the encoded bytes (not the original's).
type Result struct {
	Size int64
	Hash contenthash.Digest
}

// errIncompressible is returned by Encode when the encoded output is
// not smaller than the original. The staging file is removed; the
// caller drops the encoding from the asset's variant list.
var errIncompressible = fmt.Errorf("encoded form is not smaller than the original")

// IsIncompressible reports whether the error indicates that encoding
// did not save bytes. This is the expected outcome for
// already-compressed content (images, archives, video), not a
// failure.
func IsIncompressible(err error) bool {
	return err == errIncompressible
}

// Encode compresses the file at srcPath with the named encoding into
// a staging file at dstPath, hashing the encoded bytes as they are
// written. If the encoded size is not strictly less than
// originalSize, the staging file is removed and errIncompressible is
// returned. Any other error also removes the staging file.
func Encode(encoding, srcPath, dstPath string, originalSize int64) (Result, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return Result{}, fmt.Errorf("creating staging file %s: %w", dstPath, err)
	}
	dstClosed := false
	success := false
	defer func() {
		if !dstClosed {
			dst.Close()
		}
		if !success {
			os.Remove(dstPath)
		}
	}()

	hasher := contenthash.NewWriter()
	encoder, err := newEncoder(encoding, io.MultiWriter(dst, hasher))
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(encoder, src); err != nil {
		return Result{}, fmt.Errorf("encoding %s as %s: %w", srcPath, encoding, err)
	}
	if err := encoder.Close(); err != nil {
		return Result{}, fmt.Errorf("flushing %s encoder for %s: %w", encoding, srcPath, err)
	}
	if err := dst.Close(); err != nil {
		return Result{}, fmt.Errorf("closing staging file %s: %w", dstPath, err)
	}
	dstClosed = true

	if hasher.Size() >= originalSize {
		return Result{}, errIncompressible
	}

	success = true
	return Result{Size: hasher.Size(), Hash: hasher.Sum()}, nil
}

// newEncoder returns a streaming encoder for the named content
// coding. Encoder settings favor ratio over speed: assets are encoded
// once at publish time and served many times.
func newEncoder(encoding string, w io.Writer) (io.WriteCloser, error) {
	switch encoding {
	case EncodingGzip:
		encoder, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip encoder: %w", err)
		}
		return encoder, nil

	case EncodingBrotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil

	case EncodingZstd:
		encoder, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil

	default:
		return nil, fmt.Errorf("unknown content coding %q", encoding)
	}
}

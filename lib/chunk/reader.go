// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// NewReader returns a reader that streams the logical blob stored as
// numChunks sequential chunk keys derived from baseKey. Chunks are
// fetched lazily in index order and the reader crosses chunk
// boundaries transparently. The caller must close it.
func NewReader(ctx context.Context, provider kvstore.Provider, baseKey string, numChunks int) io.ReadCloser {
	return &chunkReader{
		ctx:       ctx,
		provider:  provider,
		baseKey:   baseKey,
		numChunks: numChunks,
	}
}

// NewReaderFrom is NewReader for a caller that already holds chunk
// 0's body open. The serving path learns a blob is chunked from the
// same fetch that returned the first chunk; handing that body over
// here continues with chunks 1..numChunks-1 instead of fetching
// chunk 0 twice.
func NewReaderFrom(ctx context.Context, provider kvstore.Provider, baseKey string, numChunks int, chunk0 io.ReadCloser) io.ReadCloser {
	return &chunkReader{
		ctx:       ctx,
		provider:  provider,
		baseKey:   baseKey,
		numChunks: numChunks,
		current:   chunk0,
		next:      1,
	}
}

type chunkReader struct {
	ctx       context.Context
	provider  kvstore.Provider
	baseKey   string
	numChunks int
	next      int           // index of the next chunk to fetch
	current   io.ReadCloser // body of the chunk being read, nil between chunks
	err       error         // sticky terminal state, io.EOF included
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for {
		if r.current == nil {
			if r.next >= r.numChunks {
				r.err = io.EOF
				return 0, io.EOF
			}
			object, err := r.provider.Get(r.ctx, schema.ChunkKey(r.baseKey, r.next))
			if err != nil {
				r.err = fmt.Errorf("fetching chunk %d of %d for %s: %w", r.next, r.numChunks, r.baseKey, err)
				return 0, r.err
			}
			r.current = object.Body
			r.next++
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			closeErr := r.current.Close()
			r.current = nil
			if closeErr != nil {
				r.err = closeErr
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.err = err
			return n, err
		}
		return n, nil
	}
}

func (r *chunkReader) Close() error {
	if r.err == nil {
		r.err = fs.ErrClosed
	}
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}

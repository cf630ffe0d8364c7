// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// metadataHeader carries a blob's metadata string on GET, HEAD, and
// PUT requests to the key/value service.
const metadataHeader = "X-Store-Metadata"

// maxResponseSize bounds non-streaming response body reads (list
// pages, error bodies) to prevent unbounded allocation from a
// misbehaving server. Blob bodies are streamed, not read whole, so
// the bound does not apply to them.
const maxResponseSize int64 = 256 << 20

// RemoteConfig holds configuration for creating a RemoteStore.
type RemoteConfig struct {
	// URL is the base URL of the key/value service (e.g.
	// "https://kv.example.com").
	URL string
	// Store is the store name all keys live under.
	Store string
	// HTTPClient is used for all requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// RemoteStore is a Provider backed by an HTTP key/value service.
// Blobs live at /v1/stores/{store}/keys/{key} with the metadata
// string in the X-Store-Metadata header; key listings are paginated
// under /v1/stores/{store}/keys.
type RemoteStore struct {
	baseURL    string
	store      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemote creates a RemoteStore.
func NewRemote(config RemoteConfig) (*RemoteStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("kvstore: URL is required")
	}
	// Validate the URL structure. We store the string form (with
	// trailing slash stripped) and build request URLs by direct
	// concatenation, which avoids double-encoding issues with Go's
	// url.URL.String().
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("kvstore: invalid URL %q: %w", config.URL, err)
	}
	if config.Store == "" {
		return nil, fmt.Errorf("kvstore: Store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RemoteStore{
		baseURL:    strings.TrimRight(config.URL, "/"),
		store:      config.Store,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's pool. Call after a network disruption to force fresh
// TCP connections instead of reusing a poisoned pooled connection.
func (s *RemoteStore) CloseIdleConnections() {
	s.httpClient.CloseIdleConnections()
}

func (s *RemoteStore) keysURL() string {
	return s.baseURL + "/v1/stores/" + url.PathEscape(s.store) + "/keys"
}

func (s *RemoteStore) keyURL(key string) string {
	return s.keysURL() + "/" + url.PathEscape(key)
}

// Get opens the blob at key, streaming its body. The caller must
// close the returned Object's Body.
func (s *RemoteStore) Get(ctx context.Context, key string) (*Object, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keyURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: creating get request for %s: %w", key, err)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: %w", key, err)
	}

	if response.StatusCode == http.StatusNotFound {
		response.Body.Close()
		return nil, fmt.Errorf("kvstore: get %s: %w", key, ErrNotFound)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return nil, fmt.Errorf("kvstore: get %s: %w", key, errorFromResponse(response))
	}

	return &Object{
		Body:     response.Body,
		Metadata: response.Header.Get(metadataHeader),
		Size:     response.ContentLength,
	}, nil
}

// Metadata returns the metadata string of a blob via a HEAD request,
// without transferring the body.
func (s *RemoteStore) Metadata(ctx context.Context, key string) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, s.keyURL(key), nil)
	if err != nil {
		return "", fmt.Errorf("kvstore: creating head request for %s: %w", key, err)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("kvstore: head %s: %w", key, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("kvstore: head %s: %w", key, ErrNotFound)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		// HEAD responses carry no body to decode; report the status
		// line.
		return "", fmt.Errorf("kvstore: head %s: %w", key, &StoreError{
			StatusCode: response.StatusCode,
			Message:    response.Status,
		})
	}

	return response.Header.Get(metadataHeader), nil
}

// Put stores size bytes read from body under key.
func (s *RemoteStore) Put(ctx context.Context, key string, body io.Reader, size int64, metadata string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, s.keyURL(key), body)
	if err != nil {
		return fmt.Errorf("kvstore: creating put request for %s: %w", key, err)
	}
	request.ContentLength = size
	request.Header.Set("Content-Type", "application/octet-stream")
	if metadata != "" {
		request.Header.Set(metadataHeader, metadata)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("kvstore: put %s: %w", key, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("kvstore: put %s: %w", key, errorFromResponse(response))
	}
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseSize))
	return nil
}

// listPage is one page of a paginated key listing.
type listPage struct {
	Keys       []string `json:"keys"`
	NextCursor string   `json:"nextCursor"`
}

// List returns all keys starting with prefix, following pagination
// cursors until the service reports no more pages. The result is
// sorted.
func (s *RemoteStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for {
		query := url.Values{}
		query.Set("prefix", prefix)
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keysURL()+"?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("kvstore: creating list request for prefix %s: %w", prefix, err)
		}

		response, err := s.httpClient.Do(request)
		if err != nil {
			return nil, fmt.Errorf("kvstore: list %s: %w", prefix, err)
		}

		var page listPage
		func() {
			defer response.Body.Close()
			if response.StatusCode < 200 || response.StatusCode >= 300 {
				err = fmt.Errorf("kvstore: list %s: %w", prefix, errorFromResponse(response))
				return
			}
			body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
			if readErr != nil {
				err = fmt.Errorf("kvstore: reading list response for %s: %w", prefix, readErr)
				return
			}
			if jsonErr := json.Unmarshal(body, &page); jsonErr != nil {
				err = fmt.Errorf("kvstore: parsing list response for %s: %w", prefix, jsonErr)
			}
		}()
		if err != nil {
			return nil, err
		}

		keys = append(keys, page.Keys...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	sort.Strings(keys)
	return keys, nil
}

// Delete removes the blob at key. A 404 from the service is success:
// the key is gone either way.
func (s *RemoteStore) Delete(ctx context.Context, key string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.keyURL(key), nil)
	if err != nil {
		return fmt.Errorf("kvstore: creating delete request for %s: %w", key, err)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", key, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("kvstore: delete %s: %w", key, errorFromResponse(response))
	}
	io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseSize))
	return nil
}

// errorFromResponse turns a non-2xx response into a *StoreError. The
// standard error shape is {"code","message"}; anything else (an HTML
// error page from a proxy, say) lands in Message raw, so the status
// code still drives retry classification.
func errorFromResponse(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))

	storeErr := StoreError{StatusCode: response.StatusCode}
	if err := json.Unmarshal(body, &storeErr); err != nil || storeErr.Message == "" {
		storeErr.Code = ""
		storeErr.Message = strings.TrimSpace(string(body))
		if storeErr.Message == "" {
			storeErr.Message = response.Status
		}
	}
	return &storeErr
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"errors"
	"fmt"
)

// StoreError is a structured error response from the remote key/value
// service. Callers use errors.As to extract it:
//
//	var storeErr *kvstore.StoreError
//	if errors.As(err, &storeErr) {
//	    if storeErr.StatusCode == 429 { ... }
//	}
type StoreError struct {
	// Code is the service's machine-readable error code, empty when
	// the response body was not the standard error shape.
	Code string `json:"code"`
	// Message is the human-readable description from the service.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *StoreError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("store: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("store: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsTransient reports whether an operation failure is worth retrying:
// connection failures, HTTP 429 (rate limit), and HTTP 5xx (server
// error). Client errors (4xx except 429) indicate a permanent problem
// and are returned to the caller immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		// 429 Too Many Requests — rate limit, transient.
		if storeErr.StatusCode == 429 {
			return true
		}
		// 5xx — server error, transient.
		if storeErr.StatusCode >= 500 {
			return true
		}
		// 4xx (except 429) — client error, permanent.
		if storeErr.StatusCode >= 400 {
			return false
		}
	}

	// Transport-level errors (connection refused, timeout, EOF) are
	// transient.
	return true
}

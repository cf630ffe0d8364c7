// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// publishRequiredText is the plain-text body returned when the
// collection has no published records. Deliberately instructive: an
// empty or generic 500 here costs people real debugging time.
const publishRequiredText = "This application requires publishing. Run `statikv publish` and try again."

// Handler adapts an Engine to net/http. Requests the engine produces
// no response for go to Fallback, or to a plain 404 when Fallback is
// nil.
type Handler struct {
	Engine   *Engine
	Fallback http.Handler
	Logger   *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response, err := h.Engine.ServeRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if response == nil {
		if h.Fallback != nil {
			h.Fallback.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}
	if response.Body != nil {
		defer response.Body.Close()
	}

	header := w.Header()
	for name, values := range response.Header {
		header[name] = values
	}
	w.WriteHeader(response.StatusCode)
	if response.Body != nil {
		if _, err := io.Copy(w, response.Body); err != nil {
			// The client hung up or the store broke mid-stream; the
			// status line is already on the wire.
			h.logger().Debug("response body interrupted",
				"path", r.URL.Path, "error", err)
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotPublished) {
		h.logger().Warn("collection not published",
			"path", r.URL.Path, "error", err)
		http.Error(w, publishRequiredText, http.StatusInternalServerError)
		return
	}
	h.logger().Error("request failed",
		"path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

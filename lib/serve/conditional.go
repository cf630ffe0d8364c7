// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"net/http"
	"strings"
	"time"
)

// formatETag renders a served blob's entity tag: its content hash as
// an opaque quoted string. Variants carry their own hash, so each
// encoding of an asset has a distinct tag.
func formatETag(hexHash string) string {
	return `"` + hexHash + `"`
}

// notModified evaluates the request's conditional headers against the
// representation about to be served, with RFC 9110 §13.2.2
// precedence: If-None-Match is evaluated first and, when present,
// If-Modified-Since is never consulted. An If-Modified-Since value
// that does not parse as an HTTP-date is ignored.
func notModified(r *http.Request, etag string, lastModified time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		return ifNoneMatchSatisfied(inm, etag)
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !lastModified.After(since)
	}
	return false
}

// ifNoneMatchSatisfied reports whether an If-None-Match value bars
// the full response: "*" matches any representation, otherwise each
// listed entity tag is weak-compared against the representation's
// tag (weakness prefixes ignored, opaque values compared).
func ifNoneMatchSatisfied(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, candidate := range scanETags(header) {
		if candidate == etag {
			return true
		}
	}
	return false
}

// scanETags extracts the quoted entity tags from a header list,
// dropping W/ weakness prefixes. Unquoted garbage is skipped member
// by member.
func scanETags(header string) []string {
	var tags []string
	rest := header
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t,")
		if rest == "" {
			break
		}
		if strings.HasPrefix(rest, "W/") || strings.HasPrefix(rest, "w/") {
			rest = rest[2:]
		}
		if !strings.HasPrefix(rest, `"`) {
			next := strings.IndexByte(rest, ',')
			if next < 0 {
				break
			}
			rest = rest[next+1:]
			continue
		}
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			break
		}
		tags = append(tags, rest[:end+2])
		rest = rest[end+2:]
	}
	return tags
}

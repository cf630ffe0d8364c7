// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"context"
	"sort"
	"strings"

	"github.com/statikv/statikv/lib/schema"
)

// selectEncoding negotiates the content coding to serve. Quality
// groups are walked highest first; within a group only codings the
// server allows and the asset has stored variants for are candidates,
// and the smallest stored variant wins. Probe failures drop the
// candidate, an unusable group falls through to the next, and no
// usable group at all means the original bytes. Negotiation never
// fails a request.
func (e *Engine) selectEncoding(ctx context.Context, allowed, variants []string, baseKey, acceptEncoding string) string {
	if acceptEncoding == "" || len(variants) == 0 {
		return ""
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	available := make(map[string]bool, len(variants))
	for _, name := range variants {
		if allowedSet[name] {
			available[name] = true
		}
	}
	if len(available) == 0 {
		return ""
	}

	for _, group := range groupByQuality(parseAcceptEncoding(acceptEncoding)) {
		var candidates []string
		for _, name := range group.names {
			if available[name] {
				candidates = append(candidates, name)
				available[name] = false // dedupe repeated list members
			}
		}
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0]
		}
		if best, ok := e.smallestVariant(ctx, baseKey, candidates); ok {
			return best
		}
	}
	return ""
}

// smallestVariant sizes each candidate with a metadata probe and
// returns the one with the fewest stored bytes. Candidates whose
// record is missing or malformed drop out; ok is false when none
// survive.
func (e *Engine) smallestVariant(ctx context.Context, baseKey string, candidates []string) (string, bool) {
	best, bestSize := "", int64(-1)
	for _, name := range candidates {
		key := schema.VariantKey(baseKey, name)
		metadata, err := e.provider.Metadata(ctx, key)
		if err != nil {
			e.logger.Debug("variant probe failed", "key", key, "error", err)
			continue
		}
		meta, err := schema.ParseVariantMetadata(metadata)
		if err != nil {
			e.logger.Warn("variant metadata malformed", "key", key, "error", err)
			continue
		}
		if bestSize < 0 || meta.Size < bestSize {
			best, bestSize = name, meta.Size
		}
	}
	return best, bestSize >= 0
}

// acceptedEncoding is one Accept-Encoding list member: a content
// coding and its quality in thousandths.
type acceptedEncoding struct {
	name string
	q    int
}

// parseAcceptEncoding parses an Accept-Encoding value into
// coding/quality pairs. Quality defaults to 1.0; members whose
// quality does not parse are dropped.
func parseAcceptEncoding(header string) []acceptedEncoding {
	var list []acceptedEncoding
	for _, member := range strings.Split(header, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		name, params, _ := strings.Cut(member, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q, ok := memberQuality(params)
		if !ok {
			continue
		}
		list = append(list, acceptedEncoding{name: name, q: q})
	}
	return list
}

// encodingGroup is the set of codings sharing one quality, in header
// order.
type encodingGroup struct {
	q     int
	names []string
}

// groupByQuality buckets parsed codings by quality, highest group
// first. Codings at q=0 are explicitly unacceptable and dropped.
func groupByQuality(list []acceptedEncoding) []encodingGroup {
	byQuality := make(map[int][]string)
	for _, accepted := range list {
		if accepted.q <= 0 {
			continue
		}
		byQuality[accepted.q] = append(byQuality[accepted.q], accepted.name)
	}
	groups := make([]encodingGroup, 0, len(byQuality))
	for q, names := range byQuality {
		groups = append(groups, encodingGroup{q: q, names: names})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].q > groups[j].q })
	return groups
}

// acceptsHTML reports whether an Accept header value admits an HTML
// response, which gates the SPA fallback. An absent header accepts
// anything; otherwise text/html, text/* or */* with quality above
// zero counts.
func acceptsHTML(header string) bool {
	if strings.TrimSpace(header) == "" {
		return true
	}
	for _, member := range strings.Split(header, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		mediaRange, params, _ := strings.Cut(member, ";")
		switch strings.ToLower(strings.TrimSpace(mediaRange)) {
		case "text/html", "text/*", "*/*":
		default:
			continue
		}
		if q, ok := memberQuality(params); ok && q > 0 {
			return true
		}
	}
	return false
}

// memberQuality extracts a list member's q parameter in thousandths
// from its parameter segment. Missing quality defaults to 1.0; a
// quality that does not parse reports ok=false and the member should
// be ignored.
func memberQuality(params string) (int, bool) {
	for _, param := range strings.Split(params, ";") {
		key, value, found := strings.Cut(param, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "q") {
			continue
		}
		return parseQValue(strings.TrimSpace(value))
	}
	return 1000, true
}

// parseQValue parses an RFC 9110 qvalue into thousandths. Values
// outside [0, 1] clamp to the range and precision beyond three
// decimals is truncated, reading sloppy clients leniently.
func parseQValue(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, false
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, false
	}
	if negative {
		return 0, true
	}
	for i := 0; i < len(intPart); i++ {
		if intPart[i] != '0' {
			return 1000, true
		}
	}
	milli := 0
	for i := 0; i < 3; i++ {
		milli *= 10
		if i < len(fracPart) {
			milli += int(fracPart[i] - '0')
		}
	}
	return milli, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

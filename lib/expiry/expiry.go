// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package expiry parses collection expiration inputs: relative
// duration specs like "1w2d12h", absolute RFC 3339 timestamps, and
// the explicit "never expires" flag. The three forms are mutually
// exclusive wherever they are accepted.
package expiry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxDuration = time.Duration(1<<63 - 1)

// ParseDuration parses a relative expiration spec: a sum of
// <number><unit> tokens where unit is one of w, d, h, m, s, ms.
// "1w2d" is nine days; "90s" and "1m30s" are ninety seconds.
func ParseDuration(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty expiration spec")
	}

	var total time.Duration
	rest := spec
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("expiration spec %q: expected a number at %q", spec, rest)
		}
		value, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expiration spec %q: %w", spec, err)
		}
		rest = rest[i:]
		if rest == "" {
			return 0, fmt.Errorf("expiration spec %q: number without a unit", spec)
		}

		var unit time.Duration
		switch {
		// "ms" before "m": the longer unit wins.
		case strings.HasPrefix(rest, "ms"):
			unit, rest = time.Millisecond, rest[2:]
		case rest[0] == 'w':
			unit, rest = 7*24*time.Hour, rest[1:]
		case rest[0] == 'd':
			unit, rest = 24*time.Hour, rest[1:]
		case rest[0] == 'h':
			unit, rest = time.Hour, rest[1:]
		case rest[0] == 'm':
			unit, rest = time.Minute, rest[1:]
		case rest[0] == 's':
			unit, rest = time.Second, rest[1:]
		default:
			return 0, fmt.Errorf("expiration spec %q: unknown unit %q", spec, rest[:1])
		}

		if value != 0 && time.Duration(value) > maxDuration/unit {
			return 0, fmt.Errorf("expiration spec %q overflows", spec)
		}
		total += time.Duration(value) * unit
		if total < 0 {
			return 0, fmt.Errorf("expiration spec %q overflows", spec)
		}
	}
	return total, nil
}

// ParseAbsolute parses an absolute expiration timestamp in RFC 3339
// form, for example "2026-06-01T00:00:00Z".
func ParseAbsolute(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expiration time %q is not RFC 3339 (want e.g. 2026-06-01T00:00:00Z): %w", value, err)
	}
	return parsed, nil
}

// Spec carries the expiration inputs exactly as the user supplied
// them. At most one field may be set.
type Spec struct {
	// In is a relative spec accepted by ParseDuration.
	In string

	// At is an absolute RFC 3339 timestamp.
	At string

	// Never explicitly requests no expiration.
	Never bool
}

// IsZero reports whether no expiration input was supplied at all.
// Callers that distinguish "leave unchanged" from "explicitly never"
// check IsZero before Resolve.
func (s Spec) IsZero() bool {
	return s.In == "" && s.At == "" && !s.Never
}

// Resolve validates mutual exclusivity and returns the expiration
// instant. The zero time means no expiration — returned both for
// Never and for an empty Spec. Supplying more than one input is an
// input error, reported before any side effect.
func (s Spec) Resolve(now time.Time) (time.Time, error) {
	set := 0
	if s.In != "" {
		set++
	}
	if s.At != "" {
		set++
	}
	if s.Never {
		set++
	}
	if set > 1 {
		return time.Time{}, fmt.Errorf("expiration inputs are mutually exclusive: supply one of a relative spec, an absolute time, or never")
	}

	switch {
	case s.In != "":
		d, err := ParseDuration(s.In)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	case s.At != "":
		return ParseAbsolute(s.At)
	default:
		return time.Time{}, nil
	}
}

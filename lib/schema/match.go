// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ItemList is a compiled path-matching list, the grammar used by
// ServerConfig.StaticItems and the publish-side skip/inline lists.
// Each entry takes one of three forms:
//
//	"re:^/img/.*\\.png$"  — regular expression, matched anywhere in
//	                        the path unless anchored
//	"/assets/"            — trailing slash: path-prefix match
//	"/favicon.ico"        — anything else: exact match
//
// Compile once with CompileItemList; Match is safe for concurrent
// use.
type ItemList struct {
	entries []itemEntry
}

// RegexpItemPrefix marks an item-list entry as a regular expression.
const RegexpItemPrefix = "re:"

type itemEntry struct {
	exact   string
	prefix  string
	pattern *regexp.Regexp
}

// CompileItemList compiles entries into a matcher. A regular
// expression that does not compile is a configuration error naming
// the offending entry.
func CompileItemList(entries []string) (*ItemList, error) {
	list := &ItemList{entries: make([]itemEntry, 0, len(entries))}
	for _, entry := range entries {
		if source, ok := strings.CutPrefix(entry, RegexpItemPrefix); ok {
			pattern, err := regexp.Compile(source)
			if err != nil {
				return nil, fmt.Errorf("item entry %q: %w", entry, err)
			}
			list.entries = append(list.entries, itemEntry{pattern: pattern})
			continue
		}
		if strings.HasSuffix(entry, "/") {
			list.entries = append(list.entries, itemEntry{prefix: entry})
			continue
		}
		list.entries = append(list.entries, itemEntry{exact: entry})
	}
	return list, nil
}

// Match reports whether path matches any entry. A nil list matches
// nothing.
func (l *ItemList) Match(path string) bool {
	if l == nil {
		return false
	}
	for _, entry := range l.entries {
		switch {
		case entry.pattern != nil:
			if entry.pattern.MatchString(path) {
				return true
			}
		case entry.prefix != "":
			if strings.HasPrefix(path, entry.prefix) {
				return true
			}
		default:
			if path == entry.exact {
				return true
			}
		}
	}
	return false
}

// Len returns the number of compiled entries.
func (l *ItemList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

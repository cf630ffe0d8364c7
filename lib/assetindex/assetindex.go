// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetindex scans a publish root into the flat list of
// assets a publish run operates on.
//
// The walk applies exclusions in a fixed order: configured exclude
// paths first, then the dot-file rule (with an optional .well-known
// exemption), then the caller's inclusion test. Asset keys are the
// paths relative to the scan root, forward-slash normalized on every
// host OS, and the returned list is sorted by key so a publish run is
// deterministic.
package assetindex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Asset is one file selected for publishing.
type Asset struct {
	// Path is the file's location on disk.
	Path string

	// Key is the asset key: the path relative to the scan root with
	// forward slashes.
	Key string

	// ContentType is the resolved MIME type.
	ContentType string

	// Text marks text content per the matching type rule.
	Text bool

	// Inline marks the asset for embedding into the serve bundle in
	// addition to normal storage.
	Inline bool

	// Size is the file's byte length at scan time.
	Size int64

	// ModTime is the file's modification time at scan time.
	ModTime time.Time
}

// Inclusion is the normalized result of an inclusion test.
type Inclusion struct {
	// Include reports whether the asset is published at all.
	Include bool

	// Inline additionally marks the asset for the inline bundle.
	// Meaningless when Include is false.
	Inline bool
}

// IncludeFunc decides inclusion per asset, after content-type
// resolution. A nil func includes everything.
type IncludeFunc func(assetKey, contentType string) Inclusion

// TypeRule resolves the content type of matching asset keys. Exactly
// one of Suffix or Pattern should be set; Pattern wins when both are.
type TypeRule struct {
	// Suffix matches asset keys ending with this string.
	Suffix string

	// Pattern matches asset keys against a compiled regexp.
	Pattern *regexp.Regexp

	// ContentType is the MIME type assigned on match.
	ContentType string

	// Text marks the content as textual.
	Text bool
}

func (r TypeRule) matches(assetKey string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(assetKey)
	}
	return r.Suffix != "" && strings.HasSuffix(assetKey, r.Suffix)
}

// ResolveType applies rules in order and returns the first match.
// Unmatched keys fall back to application/octet-stream with
// matched=false so the caller can warn.
func ResolveType(rules []TypeRule, assetKey string) (contentType string, text, matched bool) {
	for _, rule := range rules {
		if rule.matches(assetKey) {
			return rule.ContentType, rule.Text, true
		}
	}
	return "application/octet-stream", false, false
}

// Options configure a scan. The zero value scans everything with the
// default type rules.
type Options struct {
	// ExcludeDirs are root-relative paths skipped entirely,
	// subdirectories included. The publish output directory always
	// appears here when it sits under the root, preventing a publish
	// from ingesting its own staging output.
	ExcludeDirs []string

	// ExcludeDotFiles skips files and directories whose name starts
	// with a dot.
	ExcludeDotFiles bool

	// IncludeWellKnown exempts the .well-known tree from the
	// dot-file rule.
	IncludeWellKnown bool

	// TypeRules resolve content types, first match wins. Empty means
	// DefaultTypeRules.
	TypeRules []TypeRule

	// Include filters assets after type resolution. nil includes
	// everything.
	Include IncludeFunc

	// Warn receives scan warnings, such as files no type rule
	// matches. nil discards them.
	Warn func(message string)
}

// Scan walks rootDir and returns the included assets sorted by key.
// I/O errors abort the scan.
func Scan(rootDir string, options Options) ([]Asset, error) {
	rules := options.TypeRules
	if len(rules) == 0 {
		rules = DefaultTypeRules()
	}
	excludes := normalizeExcludes(options.ExcludeDirs)

	var assets []Asset
	err := filepath.WalkDir(rootDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(rootDir, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		key := filepath.ToSlash(relPath)

		if excluded(key, excludes) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if options.ExcludeDotFiles && strings.HasPrefix(entry.Name(), ".") && !wellKnownExempt(key, options.IncludeWellKnown) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		contentType, text, matched := ResolveType(rules, key)
		if !matched && options.Warn != nil {
			options.Warn(fmt.Sprintf("no content-type rule matches %q, storing as %s", key, contentType))
		}

		inclusion := Inclusion{Include: true}
		if options.Include != nil {
			inclusion = options.Include(key, contentType)
		}
		if !inclusion.Include {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		assets = append(assets, Asset{
			Path:        path,
			Key:         key,
			ContentType: contentType,
			Text:        text,
			Inline:      inclusion.Inline,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rootDir, err)
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Key < assets[j].Key })
	return assets, nil
}

func normalizeExcludes(dirs []string) []string {
	normalized := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		cleaned := strings.Trim(filepath.ToSlash(dir), "/")
		if cleaned == "" || cleaned == "." {
			continue
		}
		normalized = append(normalized, cleaned)
	}
	return normalized
}

func excluded(key string, excludes []string) bool {
	for _, exclude := range excludes {
		if key == exclude || strings.HasPrefix(key, exclude+"/") {
			return true
		}
	}
	return false
}

func wellKnownExempt(key string, includeWellKnown bool) bool {
	if !includeWellKnown {
		return false
	}
	return key == ".well-known" || strings.HasPrefix(key, ".well-known/")
}

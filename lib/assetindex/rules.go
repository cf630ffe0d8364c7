// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package assetindex

// DefaultTypeRules covers the usual output of a static-site build.
// Projects with unusual layouts override the list in configuration;
// rules are applied in order, so overrides for special cases (like a
// minified-bundle suffix) belong before the general ones.
func DefaultTypeRules() []TypeRule {
	return []TypeRule{
		{Suffix: ".html", ContentType: "text/html; charset=utf-8", Text: true},
		{Suffix: ".htm", ContentType: "text/html; charset=utf-8", Text: true},
		{Suffix: ".css", ContentType: "text/css; charset=utf-8", Text: true},
		{Suffix: ".js", ContentType: "text/javascript; charset=utf-8", Text: true},
		{Suffix: ".mjs", ContentType: "text/javascript; charset=utf-8", Text: true},
		{Suffix: ".json", ContentType: "application/json", Text: true},
		{Suffix: ".map", ContentType: "application/json", Text: true},
		{Suffix: ".webmanifest", ContentType: "application/manifest+json", Text: true},
		{Suffix: ".txt", ContentType: "text/plain; charset=utf-8", Text: true},
		{Suffix: ".md", ContentType: "text/markdown; charset=utf-8", Text: true},
		{Suffix: ".xml", ContentType: "application/xml", Text: true},
		{Suffix: ".svg", ContentType: "image/svg+xml", Text: true},
		{Suffix: ".png", ContentType: "image/png"},
		{Suffix: ".jpg", ContentType: "image/jpeg"},
		{Suffix: ".jpeg", ContentType: "image/jpeg"},
		{Suffix: ".gif", ContentType: "image/gif"},
		{Suffix: ".webp", ContentType: "image/webp"},
		{Suffix: ".avif", ContentType: "image/avif"},
		{Suffix: ".ico", ContentType: "image/x-icon"},
		{Suffix: ".woff2", ContentType: "font/woff2"},
		{Suffix: ".woff", ContentType: "font/woff"},
		{Suffix: ".ttf", ContentType: "font/ttf"},
		{Suffix: ".otf", ContentType: "font/otf"},
		{Suffix: ".wasm", ContentType: "application/wasm"},
		{Suffix: ".pdf", ContentType: "application/pdf"},
		{Suffix: ".mp4", ContentType: "video/mp4"},
		{Suffix: ".webm", ContentType: "video/webm"},
		{Suffix: ".mp3", ContentType: "audio/mpeg"},
	}
}

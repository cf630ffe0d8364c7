// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Storage key namespace. Every record in the key/value backend lives
// under one of these forms:
//
//	{publishId}_index_{collection}              asset index (JSON map)
//	{publishId}_settings_{collection}           server config (JSON)
//	{publishId}_files_sha256_{hash}             original content blob
//	{publishId}_files_sha256_{hash}_{encoding}  compression variant
//	{baseKey}_{n}                               continuation chunk, n >= 1
//
// Chunk 0 of a split blob uses the unsuffixed base key.

const (
	indexInfix    = "_index_"
	settingsInfix = "_settings_"
	filesInfix    = "_files_"
	hashAlgInfix  = "sha256_"

	hexDigestLen = 64
)

// IndexKey returns the storage key of a collection's asset index.
func IndexKey(publishID, collection string) string {
	return publishID + indexInfix + collection
}

// SettingsKey returns the storage key of a collection's server config.
func SettingsKey(publishID, collection string) string {
	return publishID + settingsInfix + collection
}

// IndexPrefix returns the list prefix covering all index keys of a
// publish ID.
func IndexPrefix(publishID string) string {
	return publishID + indexInfix
}

// SettingsPrefix returns the list prefix covering all settings keys
// of a publish ID.
func SettingsPrefix(publishID string) string {
	return publishID + settingsInfix
}

// ContentPrefix returns the list prefix covering all content blob
// keys (originals, variants, and chunks) of a publish ID.
func ContentPrefix(publishID string) string {
	return publishID + filesInfix
}

// ContentBaseKey returns the storage key of an original content blob
// addressed by its hex digest.
func ContentBaseKey(publishID, hexDigest string) string {
	return publishID + filesInfix + hashAlgInfix + hexDigest
}

// VariantKey returns the storage key of a compression variant of the
// blob stored under baseKey.
func VariantKey(baseKey, encoding string) string {
	return baseKey + "_" + encoding
}

// ChunkKey returns the storage key of chunk i of the blob stored
// under baseKey. Chunk 0 is the base key itself.
func ChunkKey(baseKey string, i int) string {
	if i == 0 {
		return baseKey
	}
	return baseKey + "_" + strconv.Itoa(i)
}

// CollectionFromIndexKey extracts the collection name from an index
// key listed under IndexPrefix(publishID). Returns false when the key
// is not an index key of that publish ID.
func CollectionFromIndexKey(publishID, key string) (string, bool) {
	return strings.CutPrefix(key, IndexPrefix(publishID))
}

// CollectionFromSettingsKey extracts the collection name from a
// settings key listed under SettingsPrefix(publishID).
func CollectionFromSettingsKey(publishID, key string) (string, bool) {
	return strings.CutPrefix(key, SettingsPrefix(publishID))
}

// ContentKeyHash extracts the hex digest of the original content from
// any content blob key: original, variant, or chunk. All three forms
// embed the digest immediately after the algorithm marker, so the
// garbage collector can map every stored key back to the content
// address that owns it.
func ContentKeyHash(publishID, key string) (string, error) {
	rest, ok := strings.CutPrefix(key, ContentPrefix(publishID))
	if !ok {
		return "", fmt.Errorf("key %q is not a content key of publish ID %q", key, publishID)
	}
	rest, ok = strings.CutPrefix(rest, hashAlgInfix)
	if !ok {
		return "", fmt.Errorf("content key %q uses an unknown hash algorithm", key)
	}
	if len(rest) < hexDigestLen {
		return "", fmt.Errorf("content key %q carries a truncated digest", key)
	}
	digest := rest[:hexDigestLen]
	if !isHexLower(digest) {
		return "", fmt.Errorf("content key %q carries a malformed digest", key)
	}
	if suffix := rest[hexDigestLen:]; suffix != "" && !strings.HasPrefix(suffix, "_") {
		return "", fmt.Errorf("content key %q carries an unrecognized digest suffix", key)
	}
	return digest, nil
}

func isHexLower(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ValidateName checks a publish ID or collection name for key
// safety. The underscore is reserved as the namespace separator;
// allowing it in names would make stored keys ambiguous to parse
// back apart.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case (r == '.' || r == '-') && i > 0:
		default:
			return fmt.Errorf("name %q may only contain letters, digits, dots, and hyphens (and must not start with a dot or hyphen)", name)
		}
	}
	return nil
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/statikv/statikv/lib/clock"
	"github.com/statikv/statikv/lib/expiry"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// memProvider is an in-memory store for lifecycle tests.
type memProvider struct {
	mu       sync.Mutex
	stored   map[string][]byte
	metadata map[string]string
	deleted  []string
}

func newMemProvider() *memProvider {
	return &memProvider{
		stored:   make(map[string][]byte),
		metadata: make(map[string]string),
	}
}

func (p *memProvider) Get(ctx context.Context, key string) (*kvstore.Object, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.stored[key]
	if !ok {
		return nil, fmt.Errorf("getting %s: %w", key, kvstore.ErrNotFound)
	}
	return &kvstore.Object{
		Body:     io.NopCloser(bytes.NewReader(data)),
		Metadata: p.metadata[key],
		Size:     int64(len(data)),
	}, nil
}

func (p *memProvider) Metadata(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stored[key]; !ok {
		return "", fmt.Errorf("probing %s: %w", key, kvstore.ErrNotFound)
	}
	return p.metadata[key], nil
}

func (p *memProvider) Put(ctx context.Context, key string, body io.Reader, size int64, metadata string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stored[key] = data
	p.metadata[key] = metadata
	return nil
}

func (p *memProvider) List(ctx context.Context, prefix string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for key := range p.stored {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *memProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stored, key)
	delete(p.metadata, key)
	p.deleted = append(p.deleted, key)
	return nil
}

func (p *memProvider) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for key := range p.stored {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

const testPublishID = "site"

// digestFor returns a deterministic fake hex digest. Content keys in
// these tests never resolve to real bytes, only to record plumbing.
func digestFor(seed byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", seed), 32)
}

// putCollection writes a complete collection: index record (with
// metadata), settings record, and one stored content blob per digest.
func putCollection(t *testing.T, provider *memProvider, name string, meta schema.IndexMetadata, digests ...string) {
	t.Helper()
	ctx := context.Background()

	index := schema.Index{}
	for i, digest := range digests {
		index[fmt.Sprintf("/file%d.html", i)] = schema.AssetEntry{
			Key:              "sha256:" + digest,
			Size:             100,
			ContentType:      "text/html; charset=utf-8",
			LastModifiedTime: 1700000000,
			Variants:         []string{},
		}
	}
	indexData, err := schema.EncodeIndex(index)
	if err != nil {
		t.Fatalf("EncodeIndex: %v", err)
	}
	metadata, err := meta.Encode()
	if err != nil {
		t.Fatalf("IndexMetadata.Encode: %v", err)
	}
	if err := provider.Put(ctx, schema.IndexKey(testPublishID, name), bytes.NewReader(indexData), int64(len(indexData)), metadata); err != nil {
		t.Fatalf("putting index: %v", err)
	}

	settingsData, err := schema.EncodeServerConfig(schema.ServerConfig{PublicDirPrefix: "/public"})
	if err != nil {
		t.Fatalf("EncodeServerConfig: %v", err)
	}
	if err := provider.Put(ctx, schema.SettingsKey(testPublishID, name), bytes.NewReader(settingsData), int64(len(settingsData)), ""); err != nil {
		t.Fatalf("putting settings: %v", err)
	}

	for _, digest := range digests {
		putContent(t, provider, digest)
	}
}

// putContent stores a content blob with a well-formed base record.
func putContent(t *testing.T, provider *memProvider, digest string) {
	t.Helper()
	body := []byte("blob-" + digest[:8])
	metadata, err := schema.VariantMetadata{Size: int64(len(body)), Hash: digest}.Encode()
	if err != nil {
		t.Fatalf("VariantMetadata.Encode: %v", err)
	}
	key := schema.ContentBaseKey(testPublishID, digest)
	if err := provider.Put(context.Background(), key, bytes.NewReader(body), int64(len(body)), metadata); err != nil {
		t.Fatalf("putting content %s: %v", key, err)
	}
}

func newManager(provider kvstore.Provider, clk clock.Clock) *Manager {
	return &Manager{
		Provider:          provider,
		PublishID:         testPublishID,
		DefaultCollection: "production",
		Clock:             clk,
	}
}

func TestListReportsExpirationState(t *testing.T) {
	provider := newMemProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(now)

	putCollection(t, provider, "production", schema.IndexMetadata{
		PublishedTime:  now.Add(-48 * time.Hour).Unix(),
		ExpirationTime: now.Add(-24 * time.Hour).Unix(), // stored but exempt
	}, digestFor(1))
	putCollection(t, provider, "preview", schema.IndexMetadata{
		PublishedTime:  now.Add(-48 * time.Hour).Unix(),
		ExpirationTime: now.Add(-1 * time.Hour).Unix(),
	}, digestFor(2))
	putCollection(t, provider, "staging", schema.IndexMetadata{
		PublishedTime: now.Add(-1 * time.Hour).Unix(),
	}, digestFor(3))

	infos, warnings, err := newManager(provider, clk).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("List warnings = %v, want none", warnings)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d collections, want 3", len(infos))
	}

	byName := map[string]Info{}
	for _, info := range infos {
		byName[info.Name] = info
	}

	production := byName["production"]
	if !production.Default {
		t.Errorf("production.Default = false, want true")
	}
	if production.Expired {
		t.Errorf("production.Expired = true, want false: the default collection is exempt")
	}
	if production.ExpirationTime.IsZero() {
		t.Errorf("production.ExpirationTime is zero, want the stored value reported")
	}

	if !byName["preview"].Expired {
		t.Errorf("preview.Expired = false, want true")
	}
	staging := byName["staging"]
	if staging.Expired || !staging.ExpirationTime.IsZero() {
		t.Errorf("staging = %+v, want no expiration", staging)
	}

	// Sorted by name.
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if !slices.IsSorted(names) {
		t.Errorf("collections not sorted: %v", names)
	}
}

func TestListSkipsMalformedMetadataWithWarning(t *testing.T) {
	provider := newMemProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	putCollection(t, provider, "production", schema.IndexMetadata{PublishedTime: now.Unix()}, digestFor(1))
	key := schema.IndexKey(testPublishID, "broken")
	if err := provider.Put(context.Background(), key, bytes.NewReader([]byte("{}")), 2, "not json"); err != nil {
		t.Fatalf("putting broken index: %v", err)
	}

	infos, warnings, err := newManager(provider, clock.Fake(now)).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "production" {
		t.Fatalf("infos = %+v, want production only", infos)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Error(), "broken") {
		t.Fatalf("warnings = %v, want one naming the broken collection", warnings)
	}
}

func TestPromoteCopiesRecordsNotContent(t *testing.T) {
	provider := newMemProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(now)

	putCollection(t, provider, "preview", schema.IndexMetadata{
		PublishedTime:  now.Add(-time.Hour).Unix(),
		ExpirationTime: now.Add(time.Hour).Unix(),
	}, digestFor(1))
	before := len(provider.keys())

	manager := newManager(provider, clk)
	if err := manager.Promote(context.Background(), "preview", "production", expiry.Spec{Never: true}); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	// Two new records: production's index and settings. No content
	// keys were copied.
	after := provider.keys()
	if len(after) != before+2 {
		t.Fatalf("store has %d keys after promote, want %d", len(after), before+2)
	}

	srcIndex, err := provider.Get(context.Background(), schema.IndexKey(testPublishID, "preview"))
	if err != nil {
		t.Fatalf("reading source index: %v", err)
	}
	srcData, _ := io.ReadAll(srcIndex.Body)
	srcIndex.Body.Close()

	dstIndex, err := provider.Get(context.Background(), schema.IndexKey(testPublishID, "production"))
	if err != nil {
		t.Fatalf("reading promoted index: %v", err)
	}
	dstData, _ := io.ReadAll(dstIndex.Body)
	dstIndex.Body.Close()

	if !bytes.Equal(srcData, dstData) {
		t.Errorf("promoted index bytes differ from the source")
	}

	meta, err := schema.ParseIndexMetadata(dstIndex.Metadata)
	if err != nil {
		t.Fatalf("parsing promoted metadata: %v", err)
	}
	if meta.ExpirationTime != 0 {
		t.Errorf("promoted ExpirationTime = %d, want 0 (promoted with Never)", meta.ExpirationTime)
	}
	if meta.PublishedTime != now.Unix() {
		t.Errorf("promoted PublishedTime = %d, want %d (fresh stamp)", meta.PublishedTime, now.Unix())
	}
}

func TestPromoteCarriesSourceExpirationByDefault(t *testing.T) {
	provider := newMemProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiration := now.Add(6 * time.Hour).Unix()

	putCollection(t, provider, "preview", schema.IndexMetadata{
		PublishedTime:  now.Add(-time.Hour).Unix(),
		ExpirationTime: expiration,
	}, digestFor(1))

	manager := newManager(provider, clock.Fake(now))
	if err := manager.Promote(context.Background(), "preview", "candidate", expiry.Spec{}); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	metadata, err := provider.Metadata(context.Background(), schema.IndexKey(testPublishID, "candidate"))
	if err != nil {
		t.Fatalf("reading promoted metadata: %v", err)
	}
	meta, err := schema.ParseIndexMetadata(metadata)
	if err != nil {
		t.Fatalf("parsing promoted metadata: %v", err)
	}
	if meta.ExpirationTime != expiration {
		t.Errorf("promoted ExpirationTime = %d, want %d carried from the source", meta.ExpirationTime, expiration)
	}
}

func TestPromoteMissingSource(t *testing.T) {
	manager := newManager(newMemProvider(), clock.Fake(time.Now()))
	err := manager.Promote(context.Background(), "ghost", "production", expiry.Spec{})
	if err == nil {
		t.Fatal("Promote of a missing collection succeeded, want error")
	}
	if !kvstore.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound in the chain", err)
	}
}

func TestPromoteRejectsSameName(t *testing.T) {
	manager := newManager(newMemProvider(), clock.Fake(time.Now()))
	if err := manager.Promote(context.Background(), "preview", "preview", expiry.Spec{}); err == nil {
		t.Fatal("Promote with identical names succeeded, want error")
	}
}

func TestUpdateExpirationPreservesRecordAndPublishedTime(t *testing.T) {
	provider := newMemProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-24 * time.Hour).Unix()

	putCollection(t, provider, "preview", schema.IndexMetadata{PublishedTime: published}, digestFor(1), digestFor(2))

	key := schema.IndexKey(testPublishID, "preview")
	original, err := provider.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	originalData, _ := io.ReadAll(original.Body)
	original.Body.Close()

	manager := newManager(provider, clock.Fake(now))
	if err := manager.UpdateExpiration(context.Background(), "preview", expiry.Spec{In: "2d"}); err != nil {
		t.Fatalf("UpdateExpiration: %v", err)
	}

	updated, err := provider.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("reading updated index: %v", err)
	}
	updatedData, _ := io.ReadAll(updated.Body)
	updated.Body.Close()

	if !bytes.Equal(originalData, updatedData) {
		t.Errorf("index record bytes changed during an expiration update")
	}
	meta, err := schema.ParseIndexMetadata(updated.Metadata)
	if err != nil {
		t.Fatalf("parsing updated metadata: %v", err)
	}
	if want := now.Add(48 * time.Hour).Unix(); meta.ExpirationTime != want {
		t.Errorf("ExpirationTime = %d, want %d", meta.ExpirationTime, want)
	}
	if meta.PublishedTime != published {
		t.Errorf("PublishedTime = %d, want %d preserved", meta.PublishedTime, published)
	}
}

func TestUpdateExpirationRequiresAnInput(t *testing.T) {
	manager := newManager(newMemProvider(), clock.Fake(time.Now()))
	if err := manager.UpdateExpiration(context.Background(), "preview", expiry.Spec{}); err == nil {
		t.Fatal("UpdateExpiration with an empty spec succeeded, want error")
	}
}

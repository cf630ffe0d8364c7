// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/statikv/statikv/lib/chunk"
	"github.com/statikv/statikv/lib/clock"
	"github.com/statikv/statikv/lib/config"
	"github.com/statikv/statikv/lib/expiry"
	"github.com/statikv/statikv/lib/kvstore"
	"github.com/statikv/statikv/lib/schema"
)

// memProvider is an in-memory store with per-key call accounting.
type memProvider struct {
	mu         sync.Mutex
	stored     map[string][]byte
	metadata   map[string]string
	putCalls   map[string]int
	probeCalls map[string]int
	putErrs    map[string][]error
}

func newMemProvider() *memProvider {
	return &memProvider{
		stored:     make(map[string][]byte),
		metadata:   make(map[string]string),
		putCalls:   make(map[string]int),
		probeCalls: make(map[string]int),
		putErrs:    make(map[string][]error),
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
	p.probeCalls[key]++
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
	p.putCalls[key]++
	if queue := p.putErrs[key]; len(queue) > 0 {
		scripted := queue[0]
		p.putErrs[key] = queue[1:]
		return scripted
	}
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
	return nil
}

func (p *memProvider) totalPuts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.putCalls {
		total += n
	}
	return total
}

// recordingReporter captures events for assertions.
type recordingReporter struct {
	mu           sync.Mutex
	scanned      int
	queued       []string
	built        []string
	variantSkips []string
	uploadSkips  []string
	uploads      []string
	failures     []string
	warnings     []string
}

func (r *recordingReporter) ScanComplete(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanned = n
}

func (r *recordingReporter) FileQueued(assetKey, contentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, assetKey)
}

func (r *recordingReporter) VariantBuilt(assetKey, encoding string, fromSize, toSize int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = append(r.built, assetKey+"/"+encoding)
}

func (r *recordingReporter) VariantSkipped(assetKey, encoding, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variantSkips = append(r.variantSkips, assetKey+"/"+encoding)
}

func (r *recordingReporter) UploadSkipped(storageKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploadSkips = append(r.uploadSkips, storageKey)
}

func (r *recordingReporter) Uploaded(storageKey string, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, storageKey)
}

func (r *recordingReporter) Retry(storageKey string, attempt int, err error) {}

func (r *recordingReporter) Failed(storageKey string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, storageKey)
}

func (r *recordingReporter) Warning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, message)
}

// testProject returns a validated config over fresh temp dirs with
// gzip-only compression for deterministic variant counts.
func testProject(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.PublishID = "site"
	cfg.RootDir = t.TempDir()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.ContentCompression = []string{"gzip"}
	cfg.Server.AllowedEncodings = []string{"gzip"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func writeAsset(t *testing.T, cfg *config.Config, name string, content []byte) {
	t.Helper()
	path := filepath.Join(cfg.RootDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

// compressibleBytes is repetitive text that every encoder shrinks.
func compressibleBytes(n int) []byte {
	phrase := []byte("the quick brown fox jumps over the lazy dog. ")
	buf := bytes.Repeat(phrase, n/len(phrase)+1)
	return buf[:n]
}

// incompressibleBytes is a SHA-256 chain: high-entropy output that no
// encoder can shrink, so compression variants are always dropped.
func incompressibleBytes(n int) []byte {
	buf := make([]byte, 0, n+sha256.Size)
	var seed [sha256.Size]byte
	for len(buf) < n {
		seed = sha256.Sum256(seed[:])
		buf = append(buf, seed[:]...)
	}
	return buf[:n]
}

func contentBaseKey(publishID string, content []byte) string {
	digest := sha256.Sum256(content)
	return publishID + "_files_sha256_" + hex.EncodeToString(digest[:])
}

func newPublisher(cfg *config.Config, provider kvstore.Provider, reporter Reporter) *Publisher {
	return &Publisher{
		Project:  cfg,
		Provider: provider,
		Clock:    clock.Fake(time.Unix(1700000000, 0)),
		Reporter: reporter,
	}
}

func decodeStoredIndex(t *testing.T, provider *memProvider, key string) schema.Index {
	t.Helper()
	provider.mu.Lock()
	data, ok := provider.stored[key]
	provider.mu.Unlock()
	if !ok {
		t.Fatalf("index record %s not stored", key)
	}
	index, err := schema.DecodeIndex(data)
	if err != nil {
		t.Fatalf("decoding stored index: %v", err)
	}
	return index
}

func TestPublishEndToEnd(t *testing.T) {
	cfg := testProject(t)
	htmlContent := compressibleBytes(500)
	photoContent := incompressibleBytes(50 * 1024)
	writeAsset(t, cfg, "index.html", htmlContent)
	writeAsset(t, cfg, "photo.png", photoContent)

	provider := newMemProvider()
	reporter := &recordingReporter{}
	publisher := newPublisher(cfg, provider, reporter)

	result, err := publisher.Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Collection != "default" || result.Files != 2 {
		t.Errorf("result = %+v, want collection default with 2 files", result)
	}

	htmlKey := contentBaseKey("site", htmlContent)
	photoKey := contentBaseKey("site", photoContent)
	for _, key := range []string{htmlKey, htmlKey + "_gzip", photoKey, "site_index_default", "site_settings_default"} {
		if provider.putCalls[key] != 1 {
			t.Errorf("putCalls[%s] = %d, want 1", key, provider.putCalls[key])
		}
	}
	if _, ok := provider.stored[photoKey+"_gzip"]; ok {
		t.Error("incompressible photo.png gained a gzip variant blob")
	}
	if !slices.Contains(reporter.variantSkips, "photo.png/gzip") {
		t.Errorf("variant skips = %v, want photo.png/gzip", reporter.variantSkips)
	}

	index := decodeStoredIndex(t, provider, "site_index_default")
	html, ok := index["/index.html"]
	if !ok {
		t.Fatalf("index keys = %v, want /index.html", index)
	}
	if !slices.Equal(html.Variants, []string{"gzip"}) {
		t.Errorf("index.html variants = %v, want [gzip]", html.Variants)
	}
	if html.Key != "sha256:"+strings.TrimPrefix(htmlKey, "site_files_sha256_") {
		t.Errorf("index.html content key = %q", html.Key)
	}
	if html.Size != 500 || html.ContentType != "text/html; charset=utf-8" {
		t.Errorf("index.html entry = %+v", html)
	}
	photo, ok := index["/photo.png"]
	if !ok || len(photo.Variants) != 0 {
		t.Errorf("photo.png entry = %+v (present %v), want empty variants", photo, ok)
	}

	meta, err := schema.ParseIndexMetadata(provider.metadata["site_index_default"])
	if err != nil || meta.PublishedTime != 1700000000 {
		t.Errorf("index metadata = %+v (%v), want publishedTime 1700000000", meta, err)
	}
	settings, err := schema.DecodeServerConfig(provider.stored["site_settings_default"])
	if err != nil || !slices.Equal(settings.AllowedEncodings, []string{"gzip"}) {
		t.Errorf("settings record = %+v (%v)", settings, err)
	}

	// Re-publishing unchanged content uploads only the two records.
	second, err := newPublisher(cfg, provider, &recordingReporter{}).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if second.Uploaded != 2 || second.Skipped != 3 {
		t.Errorf("second run uploaded=%d skipped=%d, want 2 records and 3 content skips", second.Uploaded, second.Skipped)
	}
	for _, key := range []string{htmlKey, htmlKey + "_gzip", photoKey} {
		if provider.putCalls[key] != 1 {
			t.Errorf("putCalls[%s] = %d after republish, want still 1", key, provider.putCalls[key])
		}
	}
	if provider.putCalls["site_index_default"] != 2 {
		t.Errorf("index record written %d times, want 2", provider.putCalls["site_index_default"])
	}
}

func TestPublishDeduplicatesIdenticalContent(t *testing.T) {
	cfg := testProject(t)
	content := compressibleBytes(300)
	writeAsset(t, cfg, "a/copy.txt", content)
	writeAsset(t, cfg, "b/copy.txt", content)

	provider := newMemProvider()
	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	baseKey := contentBaseKey("site", content)
	if provider.putCalls[baseKey] != 1 || provider.putCalls[baseKey+"_gzip"] != 1 {
		t.Errorf("putCalls = %d/%d, want one upload per blob for duplicate content",
			provider.putCalls[baseKey], provider.putCalls[baseKey+"_gzip"])
	}
	if result.Planned != 2 {
		t.Errorf("Planned = %d, want 2 content keys for two identical files", result.Planned)
	}

	index := decodeStoredIndex(t, provider, "site_index_default")
	if index["/a/copy.txt"].Key != index["/b/copy.txt"].Key {
		t.Error("identical files reference different content keys")
	}
}

func TestPublishOverwriteSkipsProbes(t *testing.T) {
	cfg := testProject(t)
	content := compressibleBytes(200)
	writeAsset(t, cfg, "page.html", content)

	provider := newMemProvider()
	if _, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite Publish: %v", err)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0 with overwrite", result.Skipped)
	}

	baseKey := contentBaseKey("site", content)
	if provider.probeCalls[baseKey] != 1 {
		t.Errorf("probeCalls = %d, want only the first run's probe", provider.probeCalls[baseKey])
	}
	if provider.putCalls[baseKey] != 2 {
		t.Errorf("putCalls = %d, want re-upload under overwrite", provider.putCalls[baseKey])
	}
}

func TestPublishReuploadsOnMalformedMetadata(t *testing.T) {
	cfg := testProject(t)
	content := incompressibleBytes(100)
	writeAsset(t, cfg, "blob.bin", content)

	baseKey := contentBaseKey("site", content)
	provider := newMemProvider()
	provider.stored[baseKey] = []byte("stale bytes")
	provider.metadata[baseKey] = "{not json"

	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0 for a malformed stored record", result.Skipped)
	}
	if provider.putCalls[baseKey] != 1 {
		t.Errorf("putCalls = %d, want the blob re-uploaded", provider.putCalls[baseKey])
	}
	if !bytes.Equal(provider.stored[baseKey], content) {
		t.Error("stored bytes not replaced")
	}
	meta, err := schema.ParseVariantMetadata(provider.metadata[baseKey])
	if err != nil || meta.Size != 100 {
		t.Errorf("re-uploaded metadata = %+v (%v)", meta, err)
	}
}

func TestPublishValidRecordSkipped(t *testing.T) {
	cfg := testProject(t)
	content := incompressibleBytes(100)
	writeAsset(t, cfg, "blob.bin", content)

	provider := newMemProvider()
	if _, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("seed Publish: %v", err)
	}

	reporter := &recordingReporter{}
	result, err := newPublisher(cfg, provider, reporter).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	baseKey := contentBaseKey("site", content)
	if !slices.Contains(reporter.uploadSkips, baseKey) {
		t.Errorf("upload skips = %v, want %s", reporter.uploadSkips, baseKey)
	}
}

func TestPublishDryRun(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "index.html", compressibleBytes(400))

	provider := newMemProvider()
	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run Publish: %v", err)
	}
	if !result.DryRun || result.Uploaded != 0 {
		t.Errorf("result = %+v, want a dry run with no uploads", result)
	}
	if result.Planned != 2 {
		t.Errorf("Planned = %d, want base + gzip variant", result.Planned)
	}
	if provider.totalPuts() != 0 {
		t.Errorf("store received %d puts during dry run", provider.totalPuts())
	}
	if _, ok := provider.stored["site_index_default"]; ok {
		t.Error("dry run wrote the index record")
	}
}

func TestPublishDryRunReportsDedupSkips(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "index.html", compressibleBytes(400))

	provider := newMemProvider()
	if _, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("seed Publish: %v", err)
	}
	putsAfterSeed := provider.totalPuts()

	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run Publish: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want both planned keys already stored", result.Skipped)
	}
	if provider.totalPuts() != putsAfterSeed {
		t.Error("dry run wrote to the store")
	}
}

func TestPublishFailureWithholdsRecords(t *testing.T) {
	cfg := testProject(t)
	goodContent := incompressibleBytes(64)
	badContent := incompressibleBytes(65)
	writeAsset(t, cfg, "good.bin", goodContent)
	writeAsset(t, cfg, "bad.bin", badContent)

	badKey := contentBaseKey("site", badContent)
	provider := newMemProvider()
	provider.putErrs[badKey] = []error{&kvstore.StoreError{Code: "forbidden", Message: "denied", StatusCode: 403}}

	reporter := &recordingReporter{}
	result, err := newPublisher(cfg, provider, reporter).Publish(context.Background(), Options{})
	if err == nil {
		t.Fatal("Publish succeeded despite a failed upload")
	}
	if len(result.Failed) != 1 || result.Failed[0].Key != badKey {
		t.Errorf("Failed = %v, want %s", result.Failed, badKey)
	}
	if !slices.Contains(reporter.failures, badKey) {
		t.Errorf("reporter failures = %v, want %s", reporter.failures, badKey)
	}

	// The other blob still uploaded; the records did not.
	goodKey := contentBaseKey("site", goodContent)
	if provider.putCalls[goodKey] != 1 {
		t.Errorf("putCalls[good] = %d, want the unaffected blob uploaded", provider.putCalls[goodKey])
	}
	for _, key := range []string{"site_index_default", "site_settings_default"} {
		if _, ok := provider.stored[key]; ok {
			t.Errorf("%s written despite upload failures", key)
		}
	}
}

func TestPublishExpirationMetadata(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "index.html", compressibleBytes(100))

	provider := newMemProvider()
	_, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{
		Collection: "preview",
		Expiration: expiry.Spec{In: "1w"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	meta, err := schema.ParseIndexMetadata(provider.metadata["site_index_preview"])
	if err != nil {
		t.Fatalf("parsing index metadata: %v", err)
	}
	want := int64(1700000000 + 7*24*3600)
	if meta.ExpirationTime != want {
		t.Errorf("ExpirationTime = %d, want %d", meta.ExpirationTime, want)
	}
}

func TestPublishConflictingExpirationAborts(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "index.html", compressibleBytes(100))

	provider := newMemProvider()
	_, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{
		Expiration: expiry.Spec{In: "1d", Never: true},
	})
	if err == nil {
		t.Fatal("conflicting expiration inputs accepted")
	}
	if provider.totalPuts() != 0 {
		t.Error("store written despite the input error")
	}
}

func TestPublishRejectsBadCollectionName(t *testing.T) {
	cfg := testProject(t)
	provider := newMemProvider()
	_, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{Collection: "bad_name"})
	if err == nil {
		t.Fatal("underscore collection name accepted")
	}
}

func TestPublishInlineBundle(t *testing.T) {
	cfg := testProject(t)
	cfg.InlineItems = []string{"index.html"}
	content := compressibleBytes(120)
	writeAsset(t, cfg, "index.html", content)
	writeAsset(t, cfg, "other.html", compressibleBytes(130))

	provider := newMemProvider()
	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Inlined != 1 {
		t.Errorf("Inlined = %d, want 1", result.Inlined)
	}
	copied, err := os.ReadFile(filepath.Join(cfg.OutputDir, "inline", "index.html"))
	if err != nil || !bytes.Equal(copied, content) {
		t.Errorf("inline bundle copy wrong: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "inline", "other.html")); !os.IsNotExist(err) {
		t.Error("non-inline asset copied to the bundle")
	}
}

func TestPublishCompressTextOnly(t *testing.T) {
	cfg := testProject(t)
	cfg.CompressTextOnly = true
	// Compressible bytes under a binary content type: the gate, not
	// the retention rule, must prevent the variant.
	writeAsset(t, cfg, "page.html", compressibleBytes(300))
	writeAsset(t, cfg, "blob.png", compressibleBytes(300*2)[:400])

	provider := newMemProvider()
	reporter := &recordingReporter{}
	if _, err := newPublisher(cfg, provider, reporter).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	index := decodeStoredIndex(t, provider, "site_index_default")
	if !slices.Equal(index["/page.html"].Variants, []string{"gzip"}) {
		t.Errorf("page.html variants = %v, want [gzip]", index["/page.html"].Variants)
	}
	if len(index["/blob.png"].Variants) != 0 {
		t.Errorf("blob.png variants = %v, want none under compressTextOnly", index["/blob.png"].Variants)
	}
	for _, event := range reporter.built {
		if strings.HasPrefix(event, "blob.png/") {
			t.Errorf("variant built for binary asset: %v", reporter.built)
		}
	}
}

func TestPublishChunkedUpload(t *testing.T) {
	cfg := testProject(t)
	cfg.ContentCompression = nil
	cfg.Server.AllowedEncodings = nil
	content := make([]byte, chunk.Threshold+1)
	writeAsset(t, cfg, "huge.bin", content)

	provider := newMemProvider()
	result, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Planned != 2 {
		t.Errorf("Planned = %d, want 2 chunk keys", result.Planned)
	}

	baseKey := contentBaseKey("site", content)
	if int64(len(provider.stored[baseKey])) != chunk.Threshold {
		t.Errorf("chunk 0 size = %d, want the full threshold", len(provider.stored[baseKey]))
	}
	if len(provider.stored[baseKey+"_1"]) != 1 {
		t.Errorf("chunk 1 size = %d, want the 1-byte remainder", len(provider.stored[baseKey+"_1"]))
	}

	meta, err := schema.ParseVariantMetadata(provider.metadata[baseKey])
	if err != nil || meta.NumChunks != 2 || meta.Size != chunk.Threshold+1 {
		t.Errorf("base metadata = %+v (%v), want numChunks 2", meta, err)
	}
	if provider.metadata[baseKey+"_1"] != `{"chunkIndex":1}` {
		t.Errorf("continuation metadata = %q, want the bare chunk index", provider.metadata[baseKey+"_1"])
	}

	// Republishing skips every chunk, not only chunk 0.
	second, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if second.Skipped != 2 {
		t.Errorf("second run Skipped = %d, want both chunks", second.Skipped)
	}
}

func TestPublishWarnsOnUnknownType(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "data.xyz", compressibleBytes(64))

	provider := newMemProvider()
	reporter := &recordingReporter{}
	if _, err := newPublisher(cfg, provider, reporter).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	found := false
	for _, warning := range reporter.warnings {
		if strings.Contains(warning, "data.xyz") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want one naming data.xyz", reporter.warnings)
	}

	index := decodeStoredIndex(t, provider, "site_index_default")
	if index["/data.xyz"].ContentType != "application/octet-stream" {
		t.Errorf("content type = %q, want the octet-stream fallback", index["/data.xyz"].ContentType)
	}
}

func TestPublishCleanStaging(t *testing.T) {
	cfg := testProject(t)
	writeAsset(t, cfg, "index.html", compressibleBytes(256))

	provider := newMemProvider()
	if _, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	stagingDir := filepath.Join(cfg.OutputDir, "staging")
	if _, err := os.Stat(stagingDir); err != nil {
		t.Fatalf("staging dir missing after default run: %v", err)
	}

	if _, err := newPublisher(cfg, provider, nil).Publish(context.Background(), Options{CleanStaging: true}); err != nil {
		t.Fatalf("CleanStaging Publish: %v", err)
	}
	if _, err := os.Stat(stagingDir); !os.IsNotExist(err) {
		t.Errorf("staging dir still present after CleanStaging: %v", err)
	}
}

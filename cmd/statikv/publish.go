// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/statikv/statikv/cmd/statikv/cli"
	"github.com/statikv/statikv/lib/publish"
)

type publishParams struct {
	projectFlags
	expirationFlags
	collection   string
	overwrite    bool
	dryRun       bool
	cleanStaging bool
}

func publishCommand() *cli.Command {
	var params publishParams

	return &cli.Command{
		Name:    "publish",
		Summary: "Publish the project to a collection",
		Usage:   "statikv publish [flags]",
		Description: `Scan the project's root directory and publish it as a collection.

Content is deduplicated against the store by SHA-256, so republishing
uploads only what changed. Compression variants are built per the
project config and kept only when strictly smaller than the original.
The collection's index and settings records are written last, and not
at all when any content upload failed.`,
		Examples: []cli.Example{
			{
				Description: "Publish to the default collection",
				Command:     "statikv publish",
			},
			{
				Description: "Publish a preview that expires in nine days",
				Command:     "statikv publish --collection preview --expires-in 1w2d",
			},
			{
				Description: "See what would be uploaded without writing anything",
				Command:     "statikv publish --dry-run",
			},
			{
				Description: "Re-upload everything, ignoring the dedup probes",
				Command:     "statikv publish --kv-overwrite",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			params.projectFlags.addFlags(flagSet)
			params.expirationFlags.addFlags(flagSet)
			flagSet.StringVar(&params.collection, "collection", "", "target collection (default: the project's defaultCollection)")
			flagSet.BoolVar(&params.overwrite, "kv-overwrite", false, "upload every key without store existence probes")
			flagSet.BoolVar(&params.dryRun, "dry-run", false, "plan and probe but write nothing")
			flagSet.BoolVar(&params.cleanStaging, "clean-staging", false, "remove the staging directory after a successful publish")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("publish takes no positional arguments, got %q", args)
			}
			expiration, err := params.expirationSpec()
			if err != nil {
				return err
			}

			cfg, err := params.load()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "publish")
			provider, err := cfg.Provider(logger)
			if err != nil {
				return err
			}

			publisher := &publish.Publisher{
				Project:  cfg,
				Provider: provider,
				Reporter: &consoleReporter{w: os.Stderr},
			}
			result, err := publisher.Publish(context.Background(), publish.Options{
				Collection:   params.collection,
				Expiration:   expiration,
				Overwrite:    params.overwrite,
				DryRun:       params.dryRun,
				CleanStaging: params.cleanStaging,
			})
			if result != nil {
				renderPublishResult(os.Stdout, result)
			}
			if err != nil {
				if result != nil && len(result.Failed) > 0 {
					// Per-key failures were already reported line by
					// line; the summary above counts them.
					fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			return nil
		},
	}
}

func renderPublishResult(w io.Writer, result *publish.Result) {
	if result.DryRun {
		fmt.Fprintf(w, "dry run: collection %q would write %d content keys (%s); %d already stored\n",
			result.Collection, result.Planned, humanize.IBytes(uint64(result.PlannedBytes)), result.Skipped)
		return
	}
	fmt.Fprintf(w, "published collection %q: %d files, %d keys uploaded (%s), %d already stored",
		result.Collection, result.Files, result.Uploaded,
		humanize.IBytes(uint64(result.UploadedBytes)), result.Skipped)
	if result.Inlined > 0 {
		fmt.Fprintf(w, ", %d inlined", result.Inlined)
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(w, ", %d failed", len(result.Failed))
	}
	fmt.Fprintln(w)
}

// consoleReporter renders publish progress line by line. Upload
// workers call it concurrently; the mutex keeps lines whole.
type consoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *consoleReporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *consoleReporter) ScanComplete(fileCount int) {
	r.printf("scanned %d files\n", fileCount)
}

// FileQueued is deliberately quiet: one line per file drowns the
// signal on any real site. Per-file work surfaces through the variant
// and upload events instead.
func (r *consoleReporter) FileQueued(assetKey, contentType string) {}

func (r *consoleReporter) VariantBuilt(assetKey, encoding string, fromSize, toSize int64) {
	r.printf("  %s: %s %s -> %s\n", assetKey, encoding,
		humanize.IBytes(uint64(fromSize)), humanize.IBytes(uint64(toSize)))
}

func (r *consoleReporter) VariantSkipped(assetKey, encoding, reason string) {
	r.printf("  %s: %s skipped (%s)\n", assetKey, encoding, reason)
}

func (r *consoleReporter) UploadSkipped(storageKey string) {
	r.printf("  already stored: %s\n", storageKey)
}

func (r *consoleReporter) Uploaded(storageKey string, size int64) {
	r.printf("  stored: %s (%s)\n", storageKey, humanize.IBytes(uint64(size)))
}

func (r *consoleReporter) Retry(storageKey string, attempt int, err error) {
	r.printf("  retry %d: %s: %v\n", attempt, storageKey, err)
}

func (r *consoleReporter) Failed(storageKey string, err error) {
	r.printf("  failed: %s: %v\n", storageKey, err)
}

func (r *consoleReporter) Warning(message string) {
	r.printf("warning: %s\n", message)
}

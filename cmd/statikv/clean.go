// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/statikv/statikv/cmd/statikv/cli"
	"github.com/statikv/statikv/lib/collection"
)

type cleanParams struct {
	projectFlags
	deleteExpired bool
	dryRun        bool
}

func cleanCommand() *cli.Command {
	var params cleanParams

	return &cli.Command{
		Name:    "clean",
		Summary: "Garbage-collect storage no live collection references",
		Usage:   "statikv clean [flags]",
		Description: `Remove stored keys nothing references anymore.

Clean scans every collection of the project's publish ID, marks the
live ones, and deletes orphaned settings records and content whose
digest no live index references. With --delete-expired, collections
past their expiration are deleted too, along with anything only they
referenced. The default collection is never deleted.

Deletion starts only after all scans complete, so an interrupted run
leaves keys behind but never dangling references; re-running clean
finishes the job.`,
		Examples: []cli.Example{
			{
				Description: "Remove orphans left by failed or superseded publishes",
				Command:     "statikv clean",
			},
			{
				Description: "Also remove expired collections, but only show the plan",
				Command:     "statikv clean --delete-expired --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clean", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.BoolVar(&params.deleteExpired, "delete-expired", false, "delete expired collections as well as orphans")
			flagSet.BoolVar(&params.dryRun, "dry-run", false, "compute and print the plan without deleting")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("clean takes no positional arguments, got %q", args)
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "clean")
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}

			plan, err := manager.Clean(context.Background(), collection.CleanOptions{
				DeleteExpired: params.deleteExpired,
				DryRun:        params.dryRun,
			})
			if plan != nil {
				renderCleanPlan(os.Stdout, plan, params.dryRun)
			}
			if err != nil {
				if plan != nil && len(plan.Executed.Failed) > 0 {
					for _, failure := range plan.Executed.Failed {
						fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", failure.Key, failure.Err)
					}
					fmt.Fprintf(os.Stderr, "clean incomplete: %v\n", err)
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			return nil
		},
	}
}

func renderCleanPlan(w io.Writer, plan *collection.CleanPlan, dryRun bool) {
	if len(plan.LiveCollections) > 0 {
		fmt.Fprintf(w, "live collections: %s\n", strings.Join(plan.LiveCollections, ", "))
	}
	if plan.Empty() {
		fmt.Fprintln(w, "nothing to clean")
		return
	}

	if dryRun {
		fmt.Fprintln(w, "clean would delete:")
	} else {
		fmt.Fprintf(w, "deleted %d keys:\n", plan.Executed.Deleted)
	}
	if n := len(plan.ExpiredCollections); n > 0 {
		fmt.Fprintf(w, "  %d expired %s\n", n, plural(n, "collection", "collections"))
	}
	if n := len(plan.OrphanedSettings); n > 0 {
		fmt.Fprintf(w, "  %d orphaned settings %s\n", n, plural(n, "record", "records"))
	}
	if n := len(plan.UnreferencedContent); n > 0 {
		fmt.Fprintf(w, "  %d unreferenced content %s (about %s)\n",
			n, plural(n, "key", "keys"), humanize.IBytes(uint64(plan.ContentBytes)))
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/statikv/statikv/cmd/statikv/cli"
)

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "collections",
		Summary: "List and manage published collections",
		Description: `Inspect and manage the project's published collections.

A collection is an immutable snapshot: an asset index plus serving
settings. Content blobs are content-addressed and shared between
collections, so promoting one is two record copies regardless of its
size, and deleting one frees only what nothing else references.`,
		Subcommands: []*cli.Command{
			collectionsListCommand(),
			collectionsPromoteCommand(),
			collectionsExpirationCommand(),
		},
	}
}

// --- list ---

type collectionsListParams struct {
	projectFlags
	jsonOutput bool
}

// collectionItem is the JSON shape of one listed collection.
// Timestamps are RFC 3339; an absent expires means never.
type collectionItem struct {
	Name      string `json:"name"`
	Published string `json:"published,omitempty"`
	Expires   string `json:"expires,omitempty"`
	Expired   bool   `json:"expired,omitempty"`
	Default   bool   `json:"default,omitempty"`
}

func collectionsListCommand() *cli.Command {
	var params collectionsListParams

	return &cli.Command{
		Name:    "list",
		Summary: "List published collections with their expiration state",
		Usage:   "statikv collections list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.BoolVar(&params.jsonOutput, "json", false, "emit JSON instead of a table")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("list takes no positional arguments, got %q", args)
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "collections/list")
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}

			infos, warnings, err := manager.List(context.Background())
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %v\n", warning)
			}

			if params.jsonOutput {
				items := make([]collectionItem, 0, len(infos))
				for _, info := range infos {
					item := collectionItem{
						Name:    info.Name,
						Expired: info.Expired,
						Default: info.Default,
					}
					if !info.PublishedTime.IsZero() {
						item.Published = info.PublishedTime.Format(time.RFC3339)
					}
					if !info.ExpirationTime.IsZero() {
						item.Expires = info.ExpirationTime.Format(time.RFC3339)
					}
					items = append(items, item)
				}
				encoded, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			if len(infos) == 0 {
				fmt.Println("no published collections")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPUBLISHED\tEXPIRES")
			for _, info := range infos {
				name := info.Name
				if info.Default {
					name += " (default)"
				}
				published := "unknown"
				if !info.PublishedTime.IsZero() {
					published = humanize.Time(info.PublishedTime)
				}
				expires := "never"
				if !info.ExpirationTime.IsZero() {
					expires = humanize.Time(info.ExpirationTime)
					if info.Expired {
						expires += " (expired)"
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, published, expires)
			}
			return tw.Flush()
		},
	}
}

// --- promote ---

type collectionsPromoteParams struct {
	projectFlags
	expirationFlags
}

func collectionsPromoteCommand() *cli.Command {
	var params collectionsPromoteParams

	return &cli.Command{
		Name:    "promote",
		Summary: "Copy a collection's records to a new name",
		Usage:   "statikv collections promote SRC DST [flags]",
		Description: `Promote copies the source collection's index and settings records
to the destination name, stamping a fresh published time.

Content is shared by address, so promotion never copies blobs. The
source's expiration carries over unless an expiration flag replaces
it; --no-expiration makes the destination permanent.`,
		Examples: []cli.Example{
			{
				Description: "Make the current preview the production collection",
				Command:     "statikv collections promote preview production --no-expiration",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("promote", pflag.ContinueOnError)
			params.projectFlags.addFlags(flagSet)
			params.expirationFlags.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return cli.Usagef("promote takes SRC and DST, got %d arguments", len(args))
			}
			src, dst := args[0], args[1]
			expiration, err := params.expirationSpec()
			if err != nil {
				return err
			}

			cfg, err := params.load()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "collections/promote")
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}

			if err := manager.Promote(context.Background(), src, dst, expiration); err != nil {
				return err
			}
			fmt.Printf("promoted %q to %q\n", src, dst)
			return nil
		},
	}
}

// --- expiration ---

type collectionsExpirationParams struct {
	projectFlags
	expirationFlags
}

func collectionsExpirationCommand() *cli.Command {
	var params collectionsExpirationParams

	return &cli.Command{
		Name:    "expiration",
		Summary: "Rewrite a collection's expiration",
		Usage:   "statikv collections expiration NAME (--expires-in SPEC | --expires-at RFC3339 | --no-expiration)",
		Description: `Rewrite the named collection's expiration without republishing.

The collection's records and published time are preserved; only the
expiration metadata changes. Exactly one expiration flag is required.

The default collection is exempt from expiration enforcement, so an
expiration set on it is recorded but never acted on.`,
		Examples: []cli.Example{
			{
				Description: "Give the preview another two weeks",
				Command:     "statikv collections expiration preview --expires-in 2w",
			},
			{
				Description: "Make a collection permanent",
				Command:     "statikv collections expiration launch-2026 --no-expiration",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("expiration", pflag.ContinueOnError)
			params.projectFlags.addFlags(flagSet)
			params.expirationFlags.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expiration takes a collection name, got %d arguments", len(args))
			}
			name := args[0]
			expiration, err := params.expirationSpec()
			if err != nil {
				return err
			}
			if expiration.IsZero() {
				return cli.Usagef("expiration requires one of --expires-in, --expires-at, or --no-expiration")
			}

			cfg, err := params.load()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "collections/expiration")
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}

			if err := manager.UpdateExpiration(context.Background(), name, expiration); err != nil {
				return err
			}
			if expiration.Never {
				fmt.Printf("collection %q no longer expires\n", name)
			} else {
				expiresAt, _ := expiration.Resolve(time.Now())
				fmt.Printf("collection %q expires %s (%s)\n",
					name, humanize.Time(expiresAt), expiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}


// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/statikv/statikv/cmd/statikv/cli"
	"github.com/statikv/statikv/lib/version"
)

// Exit codes: 0 success, 1 operational failure, 2 usage or config
// error. Commands signal the distinction through the error types in
// the cli package.
func main() {
	if err := run(); err != nil {
		// Commands that render their own output (like a publish
		// with per-key failures) return an ExitError with the
		// desired code. Don't print a redundant "error:" line for
		// those.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

// rootCommand builds the complete statikv command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "statikv",
		Description: `Statikv publishes a directory of static assets into a key/value
store and serves it back with static-file semantics.

A publish scans the project's root directory, deduplicates content
by SHA-256, builds compression variants where they pay off, and
writes a named collection: an immutable asset index plus serving
settings. Collections share content and are cheap to promote,
expire, and garbage-collect.`,
		Subcommands: []*cli.Command{
			publishCommand(),
			collectionsCommand(),
			cleanCommand(),
			serveCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("statikv %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Publish the current project to its default collection",
				Command:     "statikv publish",
			},
			{
				Description: "Publish a preview that expires in a week",
				Command:     "statikv publish --collection preview --expires-in 1w",
			},
			{
				Description: "Promote the preview to production",
				Command:     "statikv collections promote preview production --no-expiration",
			},
			{
				Description: "See what a garbage collection would delete",
				Command:     "statikv clean --delete-expired --dry-run",
			},
			{
				Description: "Serve the default collection locally",
				Command:     "statikv serve --local --addr :7676",
			},
		},
	}
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/statikv/statikv/cmd/statikv/cli"
	"github.com/statikv/statikv/lib/serve"
)

type serveParams struct {
	projectFlags
	addr       string
	collection string
}

func serveCommand() *cli.Command {
	var params serveParams

	return &cli.Command{
		Name:    "serve",
		Summary: "Serve a published collection over HTTP",
		Usage:   "statikv serve [flags]",
		Description: `Run a development HTTP server over a published collection.

Requests are resolved against the collection's index with the
published serving settings: content negotiation over the stored
compression variants, conditional requests, auto-extension and
directory-index resolution, and the configured SPA and 404
fallbacks. Assets in the publish output's inline bundle are served
from disk without touching the store.

For deployments, statikv-server runs the same engine from a
standalone runtime config.`,
		Examples: []cli.Example{
			{
				Description: "Serve the default collection from the local store",
				Command:     "statikv serve --local",
			},
			{
				Description: "Serve a preview collection on another port",
				Command:     "statikv serve --collection preview --addr :8080",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.StringVar(&params.addr, "addr", ":7676", "TCP listen address")
			flagSet.StringVar(&params.collection, "collection", "", "collection to serve (default: the project's defaultCollection)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("serve takes no positional arguments, got %q", args)
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			collection := params.collection
			if collection == "" {
				collection = cfg.DefaultCollection
			}

			logger := cli.NewCommandLogger().With("command", "serve", "collection", collection)
			provider, err := cfg.Provider(logger)
			if err != nil {
				return err
			}
			engine, err := serve.NewEngine(serve.Options{
				Provider:   provider,
				PublishID:  cfg.PublishID,
				Collection: collection,
				InlineDir:  cfg.InlineDir(),
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			server := serve.NewServer(serve.ServerConfig{
				Address: params.addr,
				Handler: &serve.Handler{Engine: engine, Logger: logger},
				Logger:  logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx)
		},
	}
}

// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/statikv/statikv/lib/serve"
	"github.com/statikv/statikv/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "runtime config file (default: $STATIKV_SERVER_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("statikv-server %s\n", version.Info())
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("STATIKV_SERVER_CONFIG")
	}
	if configPath == "" {
		return fmt.Errorf("--config is required (or set STATIKV_SERVER_CONFIG)")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := cfg.provider(logger)
	if err != nil {
		return err
	}
	engine, err := serve.NewEngine(serve.Options{
		Provider:   provider,
		PublishID:  cfg.PublishID,
		Collection: cfg.Collection,
		InlineDir:  cfg.InlineDir,
		CacheTTL:   cfg.cacheTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	server := serve.NewServer(serve.ServerConfig{
		Address:         cfg.Listen,
		Handler:         &serve.Handler{Engine: engine, Logger: logger},
		ShutdownTimeout: cfg.shutdownTimeout,
		Logger:          logger,
	})

	logger.Info("statikv-server starting",
		"publish_id", cfg.PublishID,
		"collection", cfg.Collection,
		"backend", cfg.Storage.Backend,
		"address", cfg.Listen)
	return server.Serve(ctx)
}

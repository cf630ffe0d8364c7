// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/statikv/statikv/cmd/statikv/cli"
	"github.com/statikv/statikv/lib/collection"
	"github.com/statikv/statikv/lib/config"
	"github.com/statikv/statikv/lib/expiry"
)

// projectFlags are the flags shared by every command that operates on
// a project: where the config file is, and whether to override the
// configured backend with the local store.
type projectFlags struct {
	configPath string
	local      bool
}

func (f *projectFlags) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", config.DefaultFileName, "project config file")
	flagSet.BoolVar(&f.local, "local", false, "use the local store under outputDir regardless of the configured backend")
}

// load reads and validates the project config and applies --local.
// Config problems are usage errors: the invocation cannot work until
// the file is fixed.
func (f *projectFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, cli.Usage(err)
	}
	if f.local {
		cfg.Storage.Backend = config.BackendLocal
	}
	return cfg, nil
}

// expirationFlags is the mutually-exclusive expiration flag trio
// shared by publish, promote, and expiration.
type expirationFlags struct {
	expiresIn    string
	expiresAt    string
	noExpiration bool
}

func (f *expirationFlags) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.expiresIn, "expires-in", "", "expire after a relative duration (e.g. 1w2d12h)")
	flagSet.StringVar(&f.expiresAt, "expires-at", "", "expire at an RFC 3339 instant")
	flagSet.BoolVar(&f.noExpiration, "no-expiration", false, "explicitly no expiration")
}

// expirationSpec validates mutual exclusivity up front, before any
// side effect, and returns the spec for the lifecycle call to
// resolve against its own clock.
func (f *expirationFlags) expirationSpec() (expiry.Spec, error) {
	spec := expiry.Spec{In: f.expiresIn, At: f.expiresAt, Never: f.noExpiration}
	if _, err := spec.Resolve(time.Now()); err != nil {
		return expiry.Spec{}, cli.Usage(err)
	}
	return spec, nil
}

// newManager builds the lifecycle manager for the project.
func newManager(cfg *config.Config, logger *slog.Logger) (*collection.Manager, error) {
	provider, err := cfg.Provider(logger)
	if err != nil {
		return nil, err
	}
	return &collection.Manager{
		Provider:          provider,
		PublishID:         cfg.PublishID,
		DefaultCollection: cfg.DefaultCollection,
	}, nil
}

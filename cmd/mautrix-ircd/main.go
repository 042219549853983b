// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mautrix-ircd is an IRC server that bridges each client connection
// to a Matrix account. Clients authenticate with their Matrix credentials
// (PASS and USER) and see the account's rooms as IRC channels named after
// the rooms' canonical aliases.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/aiku/mautrix-ircd/pkg/gateway"
	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const name = "mautrix-ircd"

var (
	configPath     = flag.StringP("config", "c", "config.yaml", "The path to the config file.")
	generateConfig = flag.BoolP("generate-config", "e", false, "Write the example config to the config path and exit.")
	noUpdate       = flag.BoolP("no-update", "n", false, "Don't save the updated config to disk.")
	version        = flag.BoolP("version", "v", false, "View version and exit.")
)

func main() {
	flag.Parse()
	if Tag != "unknown" {
		gateway.Version = Tag
	}
	if *version {
		fmt.Printf("%s %s (commit %s, built %s)\n", name, gateway.Version, Commit, BuildTime)
		return
	}
	if *generateConfig {
		if err := writeExampleConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("Wrote example config to", *configPath)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(gateway.ExampleConfig), 0o600)
}

func run() error {
	cfg, err := gateway.LoadConfig(*configPath, !*noUpdate)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := *logger
	zerolog.DefaultContextLogger = &log
	log.Info().
		Str("version", gateway.Version).
		Str("commit", Commit).
		Str("homeserver", cfg.HomeserverURL).
		Msg("Starting " + name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := gateway.NewServer(cfg, func(log zerolog.Logger) (gateway.RemoteService, error) {
		client, err := matrix.NewClient(cfg.HomeserverURL, cfg.PollTimeoutDuration(), log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, log)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("Shutting down")
	srv.Stop()
	return nil
}

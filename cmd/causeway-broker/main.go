// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Causeway-broker runs the local membus broker: the Unix socket hub
// that local processes and the tunnel daemon attach to. One broker
// per host.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/causeway-foundation/causeway/lib/version"
	"github.com/causeway-foundation/causeway/membus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("causeway-broker", pflag.ContinueOnError)
	runtimeDir := flags.String("runtime-dir", "/run/causeway", "directory holding the broker socket")
	queueDepth := flags.Int("queue-depth", 0, "per-consumer queue depth (0 uses the default)")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("causeway-broker %s\n", version.Full())
		return nil
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := &membus.Broker{
		Config:     membus.Config{RuntimeDir: *runtimeDir},
		Logger:     logger,
		QueueDepth: *queueDepth,
	}
	logger.Info("causeway-broker starting",
		"version", version.Info(),
		"runtime_dir", *runtimeDir)
	return broker.Serve(ctx)
}

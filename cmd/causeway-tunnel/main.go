// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/causeway-foundation/causeway/introspect"
	"github.com/causeway-foundation/causeway/lib/clock"
	"github.com/causeway-foundation/causeway/lib/config"
	"github.com/causeway-foundation/causeway/lib/version"
	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/metrics"
	"github.com/causeway-foundation/causeway/overlay"
	"github.com/causeway-foundation/causeway/tunnel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("causeway-tunnel", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the config file (default: $CAUSEWAY_CONFIG)")
	scopeOverride := flags.String("scope", "", "override the discovery scope: local, remote, or both")
	tickOverride := flags.Duration("tick-interval", 0, "override the tick interval")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("causeway-tunnel %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *scopeOverride != "" {
		cfg.Scope = *scopeOverride
	}
	if *tickOverride > 0 {
		cfg.TickInterval = tickOverride.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	scope, err := tunnel.ParseScope(cfg.Scope)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	recorder := metrics.NewRecorder()
	tun, err := tunnel.Create(
		tunnel.Config{
			DiscoveryService: cfg.Tunnel.DiscoveryService,
			Logger:           logger,
			Observer:         recorder,
		},
		membus.Config{RuntimeDir: cfg.Bus.RuntimeDir},
		overlay.Config{
			Listen:      cfg.Overlay.Listen,
			Peers:       cfg.Overlay.Peers,
			Compression: cfg.Overlay.Compression,
			SigningKey:  cfg.Overlay.SigningKey,
			Logger:      logger,
		},
	)
	if err != nil {
		return err
	}
	defer tun.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	var ticks atomic.Uint64

	// The tunnel is confined to the tick goroutine; introspection
	// handlers run concurrently and read this snapshot instead.
	var state atomic.Pointer[tunnelState]
	state.Store(&tunnelState{})
	snapshot := func() { // tick goroutine only
		state.Store(&tunnelState{
			services: tun.TunneledServices(),
			peers:    tun.Peers(),
		})
	}
	snapshot()

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer server.Close()
	}

	if cfg.Introspect.Socket != "" {
		server := introspect.NewServer(cfg.Introspect.Socket, logger)
		host := tun.HostID()
		server.RegisterActions(snapshotTunneler{&state}, func() introspect.Status {
			current := state.Load()
			return introspect.Status{
				Host:          host,
				Scope:         scope.String(),
				UptimeSeconds: int64(time.Since(started).Seconds()),
				Ticks:         ticks.Load(),
				Services:      len(current.services),
				Peers:         current.peers,
			}
		})
		go func() {
			if err := server.Serve(ctx); err != nil {
				logger.Error("introspection server failed", "error", err)
			}
		}()
	}

	logger.Info("causeway-tunnel running",
		"version", version.Info(),
		"scope", scope,
		"tick_interval", cfg.Tick())

	ticker := clock.Real().NewTicker(cfg.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "ticks", ticks.Load())
			return nil
		case <-ticker.C:
			if err := tun.Discover(scope); err != nil {
				logger.Warn("discovery pass failed", "error", err)
			}
			tun.Propagate()
			ticks.Add(1)
			snapshot()
		}
	}
}

// tunnelState is the tick loop's published view of the tunnel, read
// by introspection handlers.
type tunnelState struct {
	services []string
	peers    []string
}

// snapshotTunneler serves TunneledServices from the latest snapshot.
type snapshotTunneler struct {
	state *atomic.Pointer[tunnelState]
}

func (s snapshotTunneler) TunneledServices() []string {
	return s.state.Load().services
}

// loadConfig resolves the config path: the flag wins, otherwise the
// CAUSEWAY_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

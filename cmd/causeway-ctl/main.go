// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Causeway-ctl queries a running tunnel daemon over its introspection
// socket.
//
//	causeway-ctl status
//	causeway-ctl services
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/causeway-foundation/causeway/introspect"
	"github.com/causeway-foundation/causeway/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("causeway-ctl", pflag.ContinueOnError)
	socketPath := flags.StringP("socket", "s", "/run/causeway/introspect.sock", "tunnel daemon introspection socket")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("causeway-ctl %s\n", version.Full())
		return nil
	}

	if flags.NArg() != 1 {
		return fmt.Errorf("usage: causeway-ctl [--socket PATH] status|services")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := introspect.NewClient(*socketPath)

	switch command := flags.Arg(0); command {
	case "status":
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("host:      %s\n", status.Host)
		fmt.Printf("scope:     %s\n", status.Scope)
		fmt.Printf("uptime:    %s\n", (time.Duration(status.UptimeSeconds) * time.Second))
		fmt.Printf("ticks:     %d\n", status.Ticks)
		fmt.Printf("services:  %d\n", status.Services)
		fmt.Printf("peers:     %v\n", status.Peers)
		return nil

	case "services":
		services, err := client.Services(ctx)
		if err != nil {
			return err
		}
		for _, id := range services {
			fmt.Println(id)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (want status or services)", command)
	}
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Causeway-tunnel is the tunnel daemon. It bridges services between
// the host's local membus and the overlay mesh, discovering services
// on a fixed tick and pumping queued traffic through every bridge.
// Optional surfaces: a Prometheus /metrics endpoint and an
// introspection socket for causeway-ctl.
package main

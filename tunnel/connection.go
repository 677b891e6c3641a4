// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"github.com/causeway-foundation/causeway/bridge"
	"github.com/causeway-foundation/causeway/membus"
)

// Connection is one bridged service. Propagate moves whatever traffic
// is queued in either direction and returns; it never blocks waiting
// for traffic.
type Connection interface {
	Service() membus.ServiceConfig
	Propagate() error
	Close() error
}

// Compile-time interface checks.
var (
	_ Connection = (*bridge.PubSub)(nil)
	_ Connection = (*bridge.Event)(nil)
)

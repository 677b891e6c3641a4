// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import "github.com/causeway-foundation/causeway/membus"

// Observer receives tunnel lifecycle notifications. The metrics
// recorder implements it; tests use it to watch reconciliation.
// Callbacks run on the tick goroutine and must not block.
type Observer interface {
	// DiscoveryRan is called once per Discover call per consulted
	// domain, with the error that domain produced (nil on success).
	DiscoveryRan(scope Scope, err error)

	// ServiceBridged is called when reconciliation builds a new
	// bridge. Source is the domain whose discovery reported the
	// service, ScopeLocal or ScopeRemote.
	ServiceBridged(service membus.ServiceConfig, source Scope)

	// ServiceRemoved is called when a bridge is closed and dropped
	// from the registry.
	ServiceRemoved(service membus.ServiceConfig)

	// PropagationFailure is called for each bridge whose Propagate
	// call failed.
	PropagationFailure(service membus.ServiceConfig, err error)

	// TunneledCount reports the registry size for a pattern after
	// every registry change.
	TunneledCount(pattern membus.MessagingPattern, count int)
}

// nopObserver is the default when no observer is configured.
type nopObserver struct{}

func (nopObserver) DiscoveryRan(Scope, error)                      {}
func (nopObserver) ServiceBridged(membus.ServiceConfig, Scope)     {}
func (nopObserver) ServiceRemoved(membus.ServiceConfig)            {}
func (nopObserver) PropagationFailure(membus.ServiceConfig, error) {}
func (nopObserver) TunneledCount(membus.MessagingPattern, int)     {}

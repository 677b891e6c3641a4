// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"log/slog"
	"sort"

	"github.com/causeway-foundation/causeway/bridge"
	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/overlay"
)

// Config holds the tunnel's own settings. Bus and overlay settings
// are passed to Create separately.
type Config struct {
	// DiscoveryService, when set, names a bus service carrying
	// service descriptor announcements. Local discovery then consumes
	// that service instead of scanning the broker registry.
	DiscoveryService string

	// Logger receives reconciliation and propagation diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Observer receives lifecycle notifications, typically the
	// metrics recorder. Defaults to a no-op.
	Observer Observer
}

// Tunnel bridges services between the local bus and the overlay. It
// is driven by its owner's tick loop and is not safe for concurrent
// use: Discover, Propagate, Remove, and Close must run on one
// goroutine.
type Tunnel struct {
	logger   *slog.Logger
	observer Observer

	node    *membus.Node
	session *overlay.Session
	local   *busDiscovery
	remote  *overlay.Discovery

	pubsub *registry
	events *registry
}

// Create opens the tunnel's resources in order: overlay session,
// remote discovery, bus node, local discovery. On any failure,
// everything opened earlier is released before the error is returned.
func Create(config Config, busConfig membus.Config, overlayConfig overlay.Config) (*Tunnel, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	session, err := overlay.Open(overlayConfig)
	if err != nil {
		return nil, &CreationError{Stage: "overlay session", Err: err}
	}

	remote, err := overlay.NewDiscovery(session)
	if err != nil {
		session.Close()
		return nil, &CreationError{Stage: "remote discovery", Err: err}
	}

	node, err := membus.Open(busConfig)
	if err != nil {
		session.Close()
		return nil, &CreationError{Stage: "bus node", Err: err}
	}

	local, err := newBusDiscovery(node, config.DiscoveryService)
	if err != nil {
		node.Close()
		session.Close()
		return nil, &CreationError{Stage: "local discovery", Err: err}
	}

	logger.Info("tunnel created",
		"host", session.HostID(),
		"overlay_addr", session.Address(),
		"discovery_service", config.DiscoveryService)

	return &Tunnel{
		logger:   logger,
		observer: observer,
		node:     node,
		session:  session,
		local:    local,
		remote:   remote,
		pubsub:   newRegistry(membus.PatternPublishSubscribe),
		events:   newRegistry(membus.PatternEvent),
	}, nil
}

// Discover runs one discovery pass over the domains the scope
// selects, local before remote, and reconciles the bridge registry
// with whatever is reported. A domain failure returns immediately;
// per-service bridge failures are logged and skipped so one broken
// service cannot block the rest.
//
// Every locally discovered service is announced on the overlay,
// including already-bridged ones — announcements are how peers that
// join late catch up.
func (t *Tunnel) Discover(scope Scope) error {
	if scope.includesLocal() {
		err := t.local.Discover(func(service *membus.ServiceConfig) {
			t.reconcile(service, ScopeLocal)
			if err := t.session.Announce(service); err != nil {
				t.logger.Warn("announcement failed",
					"service", service.Name, "error", err)
			}
		})
		t.observer.DiscoveryRan(ScopeLocal, err)
		if err != nil {
			return &DiscoveryError{Scope: ScopeLocal, Err: err}
		}
	}

	if scope.includesRemote() {
		err := t.remote.Discover(func(service *membus.ServiceConfig) {
			t.reconcile(service, ScopeRemote)
		})
		t.observer.DiscoveryRan(ScopeRemote, err)
		if err != nil {
			return &DiscoveryError{Scope: ScopeRemote, Err: err}
		}
	}

	return nil
}

// reconcile routes a discovered service to its pattern's registry and
// builds the bridge if the service is new.
func (t *Tunnel) reconcile(service *membus.ServiceConfig, source Scope) {
	var target *registry
	var create func() (Connection, error)

	switch service.Pattern {
	case membus.PatternPublishSubscribe:
		target = t.pubsub
		create = func() (Connection, error) {
			return bridge.NewPubSub(t.node, t.session, *service, t.logger)
		}
	case membus.PatternEvent:
		target = t.events
		create = func() (Connection, error) {
			return bridge.NewEvent(t.node, t.session, *service, t.logger)
		}
	default:
		t.logger.Debug("skipping service with unsupported pattern",
			"service", service.Name, "pattern", service.Pattern)
		return
	}

	created, err := target.reconcile(service.ID, create)
	if err != nil {
		t.logger.Warn("bridge creation failed, will retry next pass",
			"service", service.Name,
			"error", &ConnectionError{Service: service.Name, Err: err})
		return
	}
	if created {
		t.logger.Info("service bridged",
			"service", service.Name,
			"pattern", service.Pattern,
			"id", service.ID,
			"source", source)
		t.observer.ServiceBridged(*service, source)
		t.observer.TunneledCount(target.pattern, target.len())
	}
}

// Propagate pumps every bridged service once. A failing bridge is
// logged and counted; the remaining bridges still propagate.
func (t *Tunnel) Propagate() {
	for _, target := range []*registry{t.pubsub, t.events} {
		target.each(func(connection Connection) {
			if err := connection.Propagate(); err != nil {
				service := connection.Service()
				failure := &PropagationError{Service: service.Name, Err: err}
				t.logger.Warn("propagation failed", "error", failure)
				t.observer.PropagationFailure(service, failure)
			}
		})
	}
}

// HostID returns the tunnel's name on the overlay.
func (t *Tunnel) HostID() string {
	return t.session.HostID()
}

// Peers returns the host IDs of the currently linked overlay peers.
func (t *Tunnel) Peers() []string {
	return t.session.Peers()
}

// TunneledServices returns a sorted snapshot of the bridged service
// identities across both patterns.
func (t *Tunnel) TunneledServices() []string {
	ids := make([]string, 0, t.pubsub.len()+t.events.len())
	for _, id := range t.pubsub.ids() {
		ids = append(ids, id.String())
	}
	for _, id := range t.events.ids() {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return ids
}

// Remove closes and drops the bridge for an identity, in whichever
// registry holds it. Removing an unknown identity is a no-op. The
// service is re-bridged if discovery reports it again.
func (t *Tunnel) Remove(id membus.ServiceID) {
	for _, target := range []*registry{t.pubsub, t.events} {
		connection, ok := target.remove(id)
		if !ok {
			continue
		}
		service := connection.Service()
		if err := connection.Close(); err != nil {
			t.logger.Warn("closing removed bridge",
				"service", service.Name, "error", err)
		}
		t.logger.Info("service unbridged",
			"service", service.Name, "pattern", service.Pattern)
		t.observer.ServiceRemoved(service)
		t.observer.TunneledCount(target.pattern, target.len())
	}
}

// Close releases every bridge, both discovery sources, the bus node,
// and the overlay session. The first error wins; teardown continues
// regardless.
func (t *Tunnel) Close() error {
	var firstError error
	keep := func(err error) {
		if err != nil && firstError == nil {
			firstError = err
		}
	}

	for _, target := range []*registry{t.pubsub, t.events} {
		target.each(func(connection Connection) {
			keep(connection.Close())
		})
		target.connections = make(map[membus.ServiceID]Connection)
		target.order = nil
	}

	keep(t.local.Close())
	keep(t.remote.Close())
	keep(t.node.Close())
	keep(t.session.Close())
	return firstError
}

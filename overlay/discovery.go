// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"fmt"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/membus"
)

// Announce publishes a service descriptor on the reserved discovery
// key so that every linked tunnel learns about it. Announcing the
// same descriptor repeatedly is normal; receivers deduplicate.
func (s *Session) Announce(service *membus.ServiceConfig) error {
	payload, err := codec.Marshal(service)
	if err != nil {
		return fmt.Errorf("encoding announcement for %s: %w", service.Name, err)
	}
	if err := s.Publisher(DiscoveryKey).Send(payload); err != nil {
		return fmt.Errorf("announcing %s: %w", service.Name, err)
	}
	return nil
}

// Discovery accumulates service descriptors announced by linked
// peers. It re-reports the whole known set on every Discover call, so
// a caller that missed earlier announcements still converges.
type Discovery struct {
	sub   *Subscriber
	known map[membus.ServiceID]membus.ServiceConfig
	order []membus.ServiceID
}

// NewDiscovery subscribes to the discovery key on the session.
func NewDiscovery(session *Session) (*Discovery, error) {
	sub, err := session.Subscriber(DiscoveryKey)
	if err != nil {
		return nil, fmt.Errorf("subscribing to discovery: %w", err)
	}
	return &Discovery{
		sub:   sub,
		known: make(map[membus.ServiceID]membus.ServiceConfig),
	}, nil
}

// Discover drains pending announcements into the known set, then
// reports every known descriptor through onFound in the order first
// seen. An announcement that fails to decode aborts the pass.
func (d *Discovery) Discover(onFound func(*membus.ServiceConfig)) error {
	for {
		msg, ok := d.sub.Take()
		if !ok {
			break
		}
		var service membus.ServiceConfig
		if err := codec.Unmarshal(msg.Payload, &service); err != nil {
			return fmt.Errorf("decoding announcement from %s: %w", msg.From, err)
		}
		if _, seen := d.known[service.ID]; !seen {
			d.known[service.ID] = service
			d.order = append(d.order, service.ID)
		}
	}

	for _, id := range d.order {
		service := d.known[id]
		onFound(&service)
	}
	return nil
}

// Close releases the discovery subscriber.
func (d *Discovery) Close() error {
	return d.sub.Close()
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"fmt"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/membus"
)

// Discovery is one domain's view of the services worth bridging.
// Implementations re-report everything they know on every call;
// reconciliation deduplicates.
type Discovery interface {
	Discover(onFound func(*membus.ServiceConfig)) error
}

// busDiscovery reports the services present on the local bus. By
// default it scans the broker registry on every call. When a
// discovery service name is configured, it instead consumes
// descriptor announcements published on that service — for
// deployments where an external process curates what gets bridged —
// accumulating them so the full set is still re-reported each pass.
type busDiscovery struct {
	node  *membus.Node
	sub   *membus.Subscriber
	known map[membus.ServiceID]membus.ServiceConfig
	order []membus.ServiceID
}

func newBusDiscovery(node *membus.Node, discoveryService string) (*busDiscovery, error) {
	discovery := &busDiscovery{node: node}
	if discoveryService != "" {
		sub, err := node.Subscriber(discoveryService)
		if err != nil {
			return nil, fmt.Errorf("subscribing to discovery service %s: %w", discoveryService, err)
		}
		discovery.sub = sub
		discovery.known = make(map[membus.ServiceID]membus.ServiceConfig)
	}
	return discovery, nil
}

func (d *busDiscovery) Discover(onFound func(*membus.ServiceConfig)) error {
	if d.sub == nil {
		services, err := d.node.ListServices()
		if err != nil {
			return fmt.Errorf("scanning bus registry: %w", err)
		}
		for i := range services {
			onFound(&services[i])
		}
		return nil
	}

	for {
		sample, ok, err := d.sub.Take()
		if err != nil {
			return fmt.Errorf("reading discovery service: %w", err)
		}
		if !ok {
			break
		}
		var service membus.ServiceConfig
		if err := codec.Unmarshal(sample.Payload, &service); err != nil {
			return fmt.Errorf("decoding discovery announcement: %w", err)
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

func (d *busDiscovery) Close() error {
	if d.sub != nil {
		return d.sub.Close()
	}
	return nil
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"

	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/overlay"
)

// PubSub bridges one publish/subscribe service between the local bus
// and the overlay. Local samples are broadcast on the service's
// overlay key; samples arriving on that key are injected into the
// local bus.
type PubSub struct {
	service   membus.ServiceConfig
	localSub  *membus.Subscriber
	localPub  *membus.Publisher
	remotePub *overlay.Publisher
	remoteSub *overlay.Subscriber
	logger    *slog.Logger
}

// NewPubSub opens the four handles bridging service. On any failure
// the handles opened so far are closed before returning.
func NewPubSub(node *membus.Node, session *overlay.Session, service membus.ServiceConfig, logger *slog.Logger) (*PubSub, error) {
	if service.Pattern != membus.PatternPublishSubscribe {
		return nil, fmt.Errorf("service %s has pattern %s, want %s",
			service.Name, service.Pattern, membus.PatternPublishSubscribe)
	}
	if logger == nil {
		logger = slog.Default()
	}

	localSub, err := node.Subscriber(service.Name)
	if err != nil {
		return nil, fmt.Errorf("bus subscriber for %s: %w", service.Name, err)
	}
	localPub, err := node.Publisher(service.Name)
	if err != nil {
		localSub.Close()
		return nil, fmt.Errorf("bus publisher for %s: %w", service.Name, err)
	}
	remoteSub, err := session.Subscriber(ServiceKey(service))
	if err != nil {
		closeAll(localSub, localPub)
		return nil, fmt.Errorf("overlay subscriber for %s: %w", service.Name, err)
	}

	return &PubSub{
		service:   service,
		localSub:  localSub,
		localPub:  localPub,
		remotePub: session.Publisher(ServiceKey(service)),
		remoteSub: remoteSub,
		logger:    logger.With("service", service.Name, "pattern", service.Pattern),
	}, nil
}

// Service returns the bridged service's descriptor.
func (p *PubSub) Service() membus.ServiceConfig {
	return p.service
}

// Propagate drains queued samples in both directions, up to maxBatch
// each way. Samples this bridge itself injected into the local bus
// are recognized by their origin handle and not sent back out.
func (p *PubSub) Propagate() error {
	for i := 0; i < maxBatch; i++ {
		sample, ok, err := p.localSub.Take()
		if err != nil {
			return fmt.Errorf("taking local sample for %s: %w", p.service.Name, err)
		}
		if !ok {
			break
		}
		if sample.Origin == p.localPub.Handle() {
			continue
		}
		if err := p.remotePub.Send(sample.Payload); err != nil {
			return fmt.Errorf("sending sample for %s to overlay: %w", p.service.Name, err)
		}
	}

	for i := 0; i < maxBatch; i++ {
		msg, ok := p.remoteSub.Take()
		if !ok {
			break
		}
		if err := p.localPub.Send(msg.Payload); err != nil {
			return fmt.Errorf("injecting sample for %s from %s: %w", p.service.Name, msg.From, err)
		}
	}
	return nil
}

// Close releases all four handles.
func (p *PubSub) Close() error {
	p.logger.Debug("closing pub/sub bridge")
	return closeAll(p.localSub, p.localPub, p.remoteSub)
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/overlay"
)

// eventNotice is the overlay payload for one event notification.
type eventNotice struct {
	ID uint64 `cbor:"id"`
}

// Event bridges one event service between the local bus and the
// overlay. Event IDs travel as CBOR notices on the service's overlay
// key; payloads are not part of the event pattern.
type Event struct {
	service        membus.ServiceConfig
	localListener  *membus.Listener
	localNotifier  *membus.Notifier
	remotePub      *overlay.Publisher
	remoteSub      *overlay.Subscriber
	logger         *slog.Logger
}

// NewEvent opens the four handles bridging service. On any failure
// the handles opened so far are closed before returning.
func NewEvent(node *membus.Node, session *overlay.Session, service membus.ServiceConfig, logger *slog.Logger) (*Event, error) {
	if service.Pattern != membus.PatternEvent {
		return nil, fmt.Errorf("service %s has pattern %s, want %s",
			service.Name, service.Pattern, membus.PatternEvent)
	}
	if logger == nil {
		logger = slog.Default()
	}

	localListener, err := node.Listener(service.Name)
	if err != nil {
		return nil, fmt.Errorf("bus listener for %s: %w", service.Name, err)
	}
	localNotifier, err := node.Notifier(service.Name)
	if err != nil {
		localListener.Close()
		return nil, fmt.Errorf("bus notifier for %s: %w", service.Name, err)
	}
	remoteSub, err := session.Subscriber(ServiceKey(service))
	if err != nil {
		closeAll(localListener, localNotifier)
		return nil, fmt.Errorf("overlay subscriber for %s: %w", service.Name, err)
	}

	return &Event{
		service:       service,
		localListener: localListener,
		localNotifier: localNotifier,
		remotePub:     session.Publisher(ServiceKey(service)),
		remoteSub:     remoteSub,
		logger:        logger.With("service", service.Name, "pattern", service.Pattern),
	}, nil
}

// Service returns the bridged service's descriptor.
func (e *Event) Service() membus.ServiceConfig {
	return e.service
}

// Propagate drains queued events in both directions, up to maxBatch
// each way. Events this bridge itself raised on the local bus are
// recognized by their origin handle and not sent back out. An overlay
// notice that fails to decode is logged and dropped rather than
// stalling the bridge.
func (e *Event) Propagate() error {
	for i := 0; i < maxBatch; i++ {
		event, ok, err := e.localListener.TryWait()
		if err != nil {
			return fmt.Errorf("taking local event for %s: %w", e.service.Name, err)
		}
		if !ok {
			break
		}
		if event.Origin == e.localNotifier.Handle() {
			continue
		}
		payload, err := codec.Marshal(eventNotice{ID: event.ID})
		if err != nil {
			return fmt.Errorf("encoding event for %s: %w", e.service.Name, err)
		}
		if err := e.remotePub.Send(payload); err != nil {
			return fmt.Errorf("sending event for %s to overlay: %w", e.service.Name, err)
		}
	}

	for i := 0; i < maxBatch; i++ {
		msg, ok := e.remoteSub.Take()
		if !ok {
			break
		}
		var notice eventNotice
		if err := codec.Unmarshal(msg.Payload, &notice); err != nil {
			e.logger.Warn("discarding undecodable event notice",
				"from", msg.From, "error", err)
			continue
		}
		if err := e.localNotifier.Notify(notice.ID); err != nil {
			return fmt.Errorf("raising event for %s from %s: %w", e.service.Name, msg.From, err)
		}
	}
	return nil
}

// Close releases all four handles.
func (e *Event) Close() error {
	e.logger.Debug("closing event bridge")
	return closeAll(e.localListener, e.localNotifier, e.remoteSub)
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/lib/netutil"
)

// dialTimeout bounds the connect phase when opening a handle to the
// broker socket.
const dialTimeout = 5 * time.Second

// Config locates a membus broker.
type Config struct {
	// RuntimeDir is the directory holding the broker socket.
	RuntimeDir string
}

// SocketPath returns the broker socket path for this configuration.
func (c Config) SocketPath() string {
	return filepath.Join(c.RuntimeDir, "membus.sock")
}

// Node is a client of the local bus. It opens handles (publishers,
// subscribers, notifiers, listeners) against the broker and tracks
// them for teardown.
//
// A Node is safe for concurrent use; the handles it returns are not,
// matching the single-threaded tick model of their consumers.
type Node struct {
	config Config

	mu      sync.Mutex
	handles []io.Closer
	closed  bool
}

// Open verifies the broker is reachable and returns a Node bound to
// it. The probe connection is closed immediately; handles dial their
// own connections.
func Open(config Config) (*Node, error) {
	probe, err := net.DialTimeout("unix", config.SocketPath(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("membus broker at %s not reachable: %w", config.SocketPath(), err)
	}
	probe.Close()
	return &Node{config: config}, nil
}

// Close closes every handle opened through this node. Handles closed
// individually beforehand report net.ErrClosed on the second close;
// that counts as already released, not as a failure.
func (n *Node) Close() error {
	n.mu.Lock()
	handles := n.handles
	n.handles = nil
	n.closed = true
	n.mu.Unlock()

	var firstError error
	for _, handle := range handles {
		err := handle.Close()
		if err == nil || errors.Is(err, net.ErrClosed) {
			continue
		}
		if firstError == nil {
			firstError = err
		}
	}
	return firstError
}

// track registers a handle for teardown via Node.Close.
func (n *Node) track(handle io.Closer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("node is closed")
	}
	n.handles = append(n.handles, handle)
	return nil
}

// ListServices scans the broker's registry and returns a snapshot of
// every known service. This is the local domain's discovery scan: it
// re-reports already-known services on every call by design.
func (n *Node) ListServices() ([]ServiceConfig, error) {
	conn, err := net.DialTimeout("unix", n.config.SocketPath(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request{Op: opList}); err != nil {
		return nil, fmt.Errorf("requesting service list: %w", err)
	}

	var response reply
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading service list: %w", err)
	}
	if response.Op == opError {
		return nil, fmt.Errorf("broker: %s", response.Error)
	}
	return response.Services, nil
}

// attach dials the broker and performs the attach handshake for one
// handle. Returns the open connection, the service's config, and the
// broker-assigned handle ID.
func (n *Node) attach(role, name string) (net.Conn, ServiceConfig, uint64, error) {
	conn, err := net.DialTimeout("unix", n.config.SocketPath(), dialTimeout)
	if err != nil {
		return nil, ServiceConfig{}, 0, fmt.Errorf("connecting to broker: %w", err)
	}

	if err := codec.NewEncoder(conn).Encode(request{Op: opAttach, Role: role, Name: name}); err != nil {
		conn.Close()
		return nil, ServiceConfig{}, 0, fmt.Errorf("sending attach: %w", err)
	}

	var response reply
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		conn.Close()
		return nil, ServiceConfig{}, 0, fmt.Errorf("reading attach response: %w", err)
	}
	if response.Op == opError {
		conn.Close()
		return nil, ServiceConfig{}, 0, fmt.Errorf("broker rejected attach: %s", response.Error)
	}
	if response.Service == nil {
		conn.Close()
		return nil, ServiceConfig{}, 0, fmt.Errorf("broker attach response missing service")
	}

	return conn, *response.Service, response.Handle, nil
}

// Publisher opens a publish/subscribe publisher for the named service.
// The service is registered with the broker if it does not yet exist.
func (n *Node) Publisher(name string) (*Publisher, error) {
	conn, service, handle, err := n.attach(rolePublisher, name)
	if err != nil {
		return nil, err
	}
	publisher := &Publisher{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		service: service,
		handle:  handle,
	}
	if err := n.track(publisher); err != nil {
		publisher.Close()
		return nil, err
	}
	return publisher, nil
}

// Subscriber opens a publish/subscribe subscriber for the named
// service. Samples are buffered in a bounded queue; use Take to pop
// them without blocking.
func (n *Node) Subscriber(name string) (*Subscriber, error) {
	conn, service, handle, err := n.attach(roleSubscriber, name)
	if err != nil {
		return nil, err
	}
	subscriber := &Subscriber{
		conn:    conn,
		service: service,
		handle:  handle,
		samples: make(chan Sample, defaultQueueDepth),
		done:    make(chan struct{}),
	}
	go subscriber.pump()
	if err := n.track(subscriber); err != nil {
		subscriber.Close()
		return nil, err
	}
	return subscriber, nil
}

// Notifier opens an event notifier for the named service.
func (n *Node) Notifier(name string) (*Notifier, error) {
	conn, service, handle, err := n.attach(roleNotifier, name)
	if err != nil {
		return nil, err
	}
	notifier := &Notifier{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		service: service,
		handle:  handle,
	}
	if err := n.track(notifier); err != nil {
		notifier.Close()
		return nil, err
	}
	return notifier, nil
}

// Listener opens an event listener for the named service.
func (n *Node) Listener(name string) (*Listener, error) {
	conn, service, handle, err := n.attach(roleListener, name)
	if err != nil {
		return nil, err
	}
	listener := &Listener{
		conn:    conn,
		service: service,
		handle:  handle,
		events:  make(chan Event, defaultQueueDepth),
		done:    make(chan struct{}),
	}
	go listener.pump()
	if err := n.track(listener); err != nil {
		listener.Close()
		return nil, err
	}
	return listener, nil
}

// Sample is one publish/subscribe delivery. Origin is the broker-
// assigned handle ID of the publisher that produced it; consumers that
// also publish on the same service use it to skip their own traffic.
type Sample struct {
	Payload []byte
	Origin  uint64
}

// Event is one event-pattern delivery.
type Event struct {
	ID     uint64
	Origin uint64
}

// Publisher sends payload samples to a publish/subscribe service.
type Publisher struct {
	conn    net.Conn
	encoder *codec.Encoder
	service ServiceConfig
	handle  uint64
}

// Service returns the service this publisher is attached to.
func (p *Publisher) Service() ServiceConfig { return p.service }

// Handle returns the broker-assigned handle ID. Samples published
// through this publisher carry it as their origin.
func (p *Publisher) Handle() uint64 { return p.handle }

// Send publishes one payload sample.
func (p *Publisher) Send(payload []byte) error {
	if err := p.encoder.Encode(request{Op: opPublish, Payload: payload}); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.service.Name, err)
	}
	return nil
}

// Close detaches the publisher from the broker.
func (p *Publisher) Close() error { return p.conn.Close() }

// Subscriber receives payload samples from a publish/subscribe
// service.
type Subscriber struct {
	conn    net.Conn
	service ServiceConfig
	handle  uint64
	samples chan Sample
	done    chan struct{}

	mu      sync.Mutex
	pumpErr error
}

// Service returns the service this subscriber is attached to.
func (s *Subscriber) Service() ServiceConfig { return s.service }

// pump moves deliveries from the broker connection into the bounded
// sample queue, dropping the oldest sample when the queue is full.
func (s *Subscriber) pump() {
	decoder := codec.NewDecoder(s.conn)
	for {
		var delivery reply
		if err := decoder.Decode(&delivery); err != nil {
			s.mu.Lock()
			if !netutil.IsExpectedCloseError(err) {
				s.pumpErr = fmt.Errorf("subscriber for %s: %w", s.service.Name, err)
			}
			s.mu.Unlock()
			close(s.done)
			return
		}
		if delivery.Op != opSample {
			continue
		}
		sample := Sample{Payload: delivery.Payload, Origin: delivery.Origin}
		for {
			select {
			case s.samples <- sample:
			default:
				select {
				case <-s.samples:
				default:
				}
				continue
			}
			break
		}
	}
}

// Take pops one buffered sample without blocking. The second return
// is false when no sample is pending. A non-nil error means the
// broker connection failed; already-buffered samples are still
// returned first.
func (s *Subscriber) Take() (Sample, bool, error) {
	select {
	case sample := <-s.samples:
		return sample, true, nil
	default:
	}

	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return Sample{}, false, s.pumpErr
	default:
		return Sample{}, false, nil
	}
}

// Close detaches the subscriber from the broker.
func (s *Subscriber) Close() error { return s.conn.Close() }

// Notifier sends event notifications to an event service.
type Notifier struct {
	conn    net.Conn
	encoder *codec.Encoder
	service ServiceConfig
	handle  uint64
}

// Service returns the service this notifier is attached to.
func (n *Notifier) Service() ServiceConfig { return n.service }

// Handle returns the broker-assigned handle ID.
func (n *Notifier) Handle() uint64 { return n.handle }

// Notify emits one event notification.
func (n *Notifier) Notify(eventID uint64) error {
	if err := n.encoder.Encode(request{Op: opNotify, EventID: eventID}); err != nil {
		return fmt.Errorf("notifying %s: %w", n.service.Name, err)
	}
	return nil
}

// Close detaches the notifier from the broker.
func (n *Notifier) Close() error { return n.conn.Close() }

// Listener receives event notifications from an event service.
type Listener struct {
	conn    net.Conn
	service ServiceConfig
	handle  uint64
	events  chan Event
	done    chan struct{}

	mu      sync.Mutex
	pumpErr error
}

// Service returns the service this listener is attached to.
func (l *Listener) Service() ServiceConfig { return l.service }

func (l *Listener) pump() {
	decoder := codec.NewDecoder(l.conn)
	for {
		var delivery reply
		if err := decoder.Decode(&delivery); err != nil {
			l.mu.Lock()
			if !netutil.IsExpectedCloseError(err) {
				l.pumpErr = fmt.Errorf("listener for %s: %w", l.service.Name, err)
			}
			l.mu.Unlock()
			close(l.done)
			return
		}
		if delivery.Op != opEvent {
			continue
		}
		event := Event{ID: delivery.EventID, Origin: delivery.Origin}
		for {
			select {
			case l.events <- event:
			default:
				select {
				case <-l.events:
				default:
				}
				continue
			}
			break
		}
	}
}

// TryWait pops one buffered event without blocking. The second return
// is false when no event is pending. A non-nil error means the broker
// connection failed; already-buffered events are still returned first.
func (l *Listener) TryWait() (Event, bool, error) {
	select {
	case event := <-l.events:
		return event, true, nil
	default:
	}

	select {
	case <-l.done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return Event{}, false, l.pumpErr
	default:
		return Event{}, false, nil
	}
}

// Close detaches the listener from the broker.
func (l *Listener) Close() error { return l.conn.Close() }

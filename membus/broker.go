// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/lib/netutil"
)

// defaultQueueDepth is the per-consumer delivery queue capacity used
// when Broker.QueueDepth is zero.
const defaultQueueDepth = 64

// Broker is the local bus daemon. It owns the service registry and
// fans out samples and events to attached consumers.
type Broker struct {
	// Config locates the broker socket.
	Config Config

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// QueueDepth is the per-consumer delivery queue capacity. When a
	// consumer's queue is full the oldest entry is dropped. Zero means
	// defaultQueueDepth.
	QueueDepth int

	readyOnce sync.Once
	ready     chan struct{}

	mu       sync.Mutex
	services map[ServiceID]*busService

	nextHandle        atomic.Uint64
	activeConnections sync.WaitGroup
}

// busService is one registered service and its attached consumers.
// Entries persist for the broker's lifetime: the registry is the
// local discovery surface, and discovery deliberately re-reports
// known services on every scan.
type busService struct {
	config    ServiceConfig
	consumers map[uint64]*outbox
}

// outbox is a bounded delivery queue for one consumer connection. A
// dedicated writer goroutine drains the queue to the connection so a
// slow consumer never blocks the publisher's broker goroutine.
type outbox struct {
	queue chan reply
	done  chan struct{}
}

// push enqueues a delivery, dropping the oldest queued entry if the
// queue is full.
func (o *outbox) push(r reply) {
	for {
		select {
		case o.queue <- r:
			return
		default:
		}
		select {
		case <-o.queue:
		default:
		}
	}
}

func (b *Broker) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Broker) queueDepth() int {
	if b.QueueDepth > 0 {
		return b.QueueDepth
	}
	return defaultQueueDepth
}

// Ready returns a channel that is closed once the broker socket is
// listening. Useful for tests and for daemons that start the broker
// and a node in the same process.
func (b *Broker) Ready() <-chan struct{} {
	return b.readyChan()
}

func (b *Broker) readyChan() chan struct{} {
	b.readyOnce.Do(func() {
		b.ready = make(chan struct{})
	})
	return b.ready
}

// Serve listens on the broker socket and dispatches connections.
// Blocks until ctx is cancelled, then stops accepting, waits for
// active connections, and removes the socket file. Call Serve at most
// once; the Ready channel is created here.
func (b *Broker) Serve(ctx context.Context) error {
	if err := os.MkdirAll(b.Config.RuntimeDir, 0o755); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}

	socketPath := b.Config.SocketPath()
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	b.services = make(map[ServiceID]*busService)
	close(b.readyChan())

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	b.logger().Info("broker listening", "path", socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			b.logger().Error("accept failed", "error", err)
			continue
		}

		b.activeConnections.Add(1)
		go func() {
			defer b.activeConnections.Done()
			b.handleConnection(conn)
		}()
	}

	b.activeConnections.Wait()
	return nil
}

// handleConnection reads the connection's first frame and routes it:
// list connections get one reply and close, attach connections become
// long-lived handle connections.
func (b *Broker) handleConnection(conn net.Conn) {
	defer conn.Close()

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var first request
	if err := decoder.Decode(&first); err != nil {
		// Client connected and went away; nothing to answer.
		return
	}

	switch first.Op {
	case opList:
		encoder.Encode(reply{Op: opServices, Services: b.listServices()})

	case opAttach:
		b.handleAttach(conn, decoder, encoder, first)

	default:
		encoder.Encode(reply{Op: opError, Error: fmt.Sprintf("unknown op %q", first.Op)})
	}
}

// listServices snapshots the registry.
func (b *Broker) listServices() []ServiceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	services := make([]ServiceConfig, 0, len(b.services))
	for _, service := range b.services {
		services = append(services, service.config)
	}
	return services
}

// handleAttach registers the handle's service, confirms the attach,
// and then runs the role's connection loop until the client detaches.
func (b *Broker) handleAttach(conn net.Conn, decoder *codec.Decoder, encoder *codec.Encoder, attach request) {
	if attach.Name == "" {
		encoder.Encode(reply{Op: opError, Error: "missing required field: name"})
		return
	}

	var pattern MessagingPattern
	switch attach.Role {
	case rolePublisher, roleSubscriber:
		pattern = PatternPublishSubscribe
	case roleNotifier, roleListener:
		pattern = PatternEvent
	default:
		encoder.Encode(reply{Op: opError, Error: fmt.Sprintf("unknown role %q", attach.Role)})
		return
	}

	service := b.register(pattern, attach.Name)
	handle := b.nextHandle.Add(1)

	config := service.config
	if err := encoder.Encode(reply{Op: opAttached, Service: &config, Handle: handle}); err != nil {
		return
	}

	logger := b.logger().With("service", config.ID, "name", config.Name, "role", attach.Role, "handle", handle)
	logger.Debug("handle attached")

	switch attach.Role {
	case rolePublisher, roleNotifier:
		b.producerLoop(decoder, encoder, service, handle, logger)
	case roleSubscriber, roleListener:
		b.consumerLoop(conn, decoder, service, handle, logger)
	}

	logger.Debug("handle detached")
}

// register returns the service for (pattern, name), creating the
// registry entry on first attach.
func (b *Broker) register(pattern MessagingPattern, name string) *busService {
	id := DeriveServiceID(pattern, name)

	b.mu.Lock()
	defer b.mu.Unlock()

	service, exists := b.services[id]
	if !exists {
		service = &busService{
			config:    ServiceConfig{ID: id, Name: name, Pattern: pattern},
			consumers: make(map[uint64]*outbox),
		}
		b.services[id] = service
		b.logger().Info("service registered", "service", id, "name", name, "pattern", pattern)
	}
	return service
}

// producerLoop consumes publish/notify frames from a publisher or
// notifier connection and fans each out to the service's consumers.
// The producing handle's ID travels with every delivery as the origin
// so consumers can filter their own traffic.
func (b *Broker) producerLoop(decoder *codec.Decoder, encoder *codec.Encoder, service *busService, handle uint64, logger *slog.Logger) {
	for {
		var frame request
		if err := decoder.Decode(&frame); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				logger.Error("reading producer frame", "error", err)
			}
			return
		}

		switch frame.Op {
		case opPublish:
			b.fanOut(service, reply{Op: opSample, Payload: frame.Payload, Origin: handle})
		case opNotify:
			b.fanOut(service, reply{Op: opEvent, EventID: frame.EventID, Origin: handle})
		default:
			encoder.Encode(reply{Op: opError, Error: fmt.Sprintf("unexpected op %q on producer connection", frame.Op)})
			return
		}
	}
}

// fanOut delivers to every consumer of the service.
func (b *Broker) fanOut(service *busService, delivery reply) {
	b.mu.Lock()
	consumers := make([]*outbox, 0, len(service.consumers))
	for _, consumer := range service.consumers {
		consumers = append(consumers, consumer)
	}
	b.mu.Unlock()

	for _, consumer := range consumers {
		consumer.push(delivery)
	}
}

// consumerLoop registers the connection as a consumer of the service
// and blocks until the client closes. A writer goroutine drains the
// consumer's outbox; the read side exists only to detect disconnect.
func (b *Broker) consumerLoop(conn net.Conn, decoder *codec.Decoder, service *busService, handle uint64, logger *slog.Logger) {
	consumer := &outbox{
		queue: make(chan reply, b.queueDepth()),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	service.consumers[handle] = consumer
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(service.consumers, handle)
		b.mu.Unlock()
		close(consumer.done)
	}()

	// Writer: drain the outbox to the connection. Stops when the
	// consumer is deregistered or the write fails (client gone).
	go func() {
		encoder := codec.NewEncoder(conn)
		for {
			select {
			case delivery := <-consumer.queue:
				if err := encoder.Encode(delivery); err != nil {
					if !netutil.IsExpectedCloseError(err) {
						logger.Error("writing delivery", "error", err)
					}
					conn.Close()
					return
				}
			case <-consumer.done:
				return
			}
		}
	}()

	// Block until the client disconnects. Consumers never send after
	// attach, so any decode result means the connection is done.
	var frame request
	decoder.Decode(&frame)
}

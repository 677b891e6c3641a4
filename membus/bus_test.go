// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/causeway-foundation/causeway/lib/testutil"
)

// startBroker runs a broker on a fresh socket directory and returns a
// Node connected to it. Both are torn down when the test completes.
func startBroker(t *testing.T) *Node {
	t.Helper()

	config := Config{RuntimeDir: testutil.SocketDir(t)}
	broker := &Broker{Config: config}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- broker.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, served, 5*time.Second, "broker shutdown"); err != nil {
			t.Errorf("broker Serve: %v", err)
		}
	})

	testutil.RequireClosed(t, broker.Ready(), 5*time.Second, "broker ready")

	node, err := Open(config)
	if err != nil {
		t.Fatalf("opening node: %v", err)
	}
	t.Cleanup(func() { node.Close() })
	return node
}

// takeSample polls a subscriber until a sample arrives or the timeout
// expires. Take is non-blocking by contract, so tests poll.
func takeSample(t *testing.T, subscriber *Subscriber, timeout time.Duration) Sample {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sample, ok, err := subscriber.Take()
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if ok {
			return sample
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no sample within %v", timeout)
	panic("unreachable")
}

func takeEvent(t *testing.T, listener *Listener, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		event, ok, err := listener.TryWait()
		if err != nil {
			t.Fatalf("TryWait: %v", err)
		}
		if ok {
			return event
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no event within %v", timeout)
	panic("unreachable")
}

func TestPublishSubscribeDelivery(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	subscriber, err := node.Subscriber(name)
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}
	publisher, err := node.Publisher(name)
	if err != nil {
		t.Fatalf("Publisher: %v", err)
	}

	payload := []byte("sample payload")
	if err := publisher.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sample := takeSample(t, subscriber, 5*time.Second)
	if !bytes.Equal(sample.Payload, payload) {
		t.Errorf("payload = %q, want %q", sample.Payload, payload)
	}
	if sample.Origin != publisher.Handle() {
		t.Errorf("origin = %d, want publisher handle %d", sample.Origin, publisher.Handle())
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	first, err := node.Subscriber(name)
	if err != nil {
		t.Fatalf("first Subscriber: %v", err)
	}
	second, err := node.Subscriber(name)
	if err != nil {
		t.Fatalf("second Subscriber: %v", err)
	}
	publisher, err := node.Publisher(name)
	if err != nil {
		t.Fatalf("Publisher: %v", err)
	}

	if err := publisher.Send([]byte("to everyone")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	takeSample(t, first, 5*time.Second)
	takeSample(t, second, 5*time.Second)
}

func TestEventDelivery(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("evt")

	listener, err := node.Listener(name)
	if err != nil {
		t.Fatalf("Listener: %v", err)
	}
	notifier, err := node.Notifier(name)
	if err != nil {
		t.Fatalf("Notifier: %v", err)
	}

	if err := notifier.Notify(42); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	event := takeEvent(t, listener, 5*time.Second)
	if event.ID != 42 {
		t.Errorf("event ID = %d, want 42", event.ID)
	}
	if event.Origin != notifier.Handle() {
		t.Errorf("origin = %d, want notifier handle %d", event.Origin, notifier.Handle())
	}
}

func TestTakeNonBlocking(t *testing.T) {
	node := startBroker(t)

	subscriber, err := node.Subscriber(testutil.UniqueID("svc"))
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}

	_, ok, err := subscriber.Take()
	if err != nil {
		t.Fatalf("Take on empty queue: %v", err)
	}
	if ok {
		t.Error("Take reported a sample on an empty queue")
	}
}

func TestListServices(t *testing.T) {
	node := startBroker(t)
	pubSubName := testutil.UniqueID("svc")
	eventName := testutil.UniqueID("evt")

	if _, err := node.Publisher(pubSubName); err != nil {
		t.Fatalf("Publisher: %v", err)
	}
	if _, err := node.Listener(eventName); err != nil {
		t.Fatalf("Listener: %v", err)
	}

	services, err := node.ListServices()
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}

	byName := make(map[string]ServiceConfig)
	for _, service := range services {
		byName[service.Name] = service
	}

	pubSub, exists := byName[pubSubName]
	if !exists {
		t.Fatalf("publish/subscribe service %q missing from scan", pubSubName)
	}
	if pubSub.Pattern != PatternPublishSubscribe {
		t.Errorf("pattern = %q, want publish_subscribe", pubSub.Pattern)
	}
	if pubSub.ID != DeriveServiceID(PatternPublishSubscribe, pubSubName) {
		t.Errorf("scan returned unexpected ID for %q", pubSubName)
	}

	event, exists := byName[eventName]
	if !exists {
		t.Fatalf("event service %q missing from scan", eventName)
	}
	if event.Pattern != PatternEvent {
		t.Errorf("pattern = %q, want event", event.Pattern)
	}
}

func TestListServicesIdempotent(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	if _, err := node.Publisher(name); err != nil {
		t.Fatalf("Publisher: %v", err)
	}

	first, err := node.ListServices()
	if err != nil {
		t.Fatalf("first ListServices: %v", err)
	}
	second, err := node.ListServices()
	if err != nil {
		t.Fatalf("second ListServices: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("repeat scans disagree: %d vs %d services", len(first), len(second))
	}
}

func TestServicePersistsAfterDetach(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	publisher, err := node.Publisher(name)
	if err != nil {
		t.Fatalf("Publisher: %v", err)
	}
	publisher.Close()

	// The registry is the discovery surface; a service does not
	// vanish when its last handle detaches.
	deadline := time.Now().Add(5 * time.Second)
	for {
		services, err := node.ListServices()
		if err != nil {
			t.Fatalf("ListServices: %v", err)
		}
		found := false
		for _, service := range services {
			if service.Name == name {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("service missing from registry after detach")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNodeCloseAfterIndividualHandleClose(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	subscriber, err := node.Subscriber(name)
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}
	if _, err := node.Publisher(name); err != nil {
		t.Fatalf("Publisher: %v", err)
	}

	// Closing a handle first and then the node must still be a clean
	// shutdown: the second close of the subscriber's connection is
	// not a failure.
	if err := subscriber.Close(); err != nil {
		t.Fatalf("Subscriber.Close: %v", err)
	}
	if err := node.Close(); err != nil {
		t.Errorf("Node.Close after individual handle close: %v", err)
	}
}

func TestOpenFailsWithoutBroker(t *testing.T) {
	if _, err := Open(Config{RuntimeDir: testutil.SocketDir(t)}); err == nil {
		t.Fatal("Open succeeded with no broker listening")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	node := startBroker(t)
	name := testutil.UniqueID("svc")

	subscriber, err := node.Subscriber(name)
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}
	publisher, err := node.Publisher(name)
	if err != nil {
		t.Fatalf("Publisher: %v", err)
	}

	// Flood well past the queue depth without consuming. The bus
	// must not block the publisher, and the subscriber must still
	// observe the most recent samples.
	for i := 0; i < defaultQueueDepth*4; i++ {
		if err := publisher.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	// Drain whatever survived; there must be at least one sample and
	// no more than the queue depth on the client side.
	takeSample(t, subscriber, 5*time.Second)
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package membus implements Causeway's local message bus: a host-local
// broker reachable over a Unix domain socket, and the Node client API
// that services and the tunnel use to talk to it.
//
// The bus supports two messaging patterns. Publish/subscribe carries
// opaque payload samples from publishers to every subscriber of a
// service. Event carries numeric notifications from notifiers to every
// listener. A service is identified by its name and pattern; the
// broker derives a stable ServiceID from both, so the same name can
// exist once per pattern without collision.
//
// Each handle (publisher, subscriber, notifier, listener) owns one
// connection to the broker carrying a CBOR frame stream. Subscriber
// and listener deliveries are buffered in bounded queues on both the
// broker and client side; when a consumer falls behind, the oldest
// entries are dropped rather than blocking the bus.
//
// The broker's service registry is the local domain's discovery
// surface: Node.ListServices returns every service that has ever had
// a handle attached during the broker's lifetime.
package membus

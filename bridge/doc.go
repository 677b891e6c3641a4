// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects one membus service to its overlay
// representation. A PubSub bridge carries payload samples in both
// directions; an Event bridge carries event notifications. Each
// bridge holds four handles: a membus subscriber and publisher (or
// listener and notifier) plus an overlay subscriber and publisher on
// the service's overlay key.
//
// Bridges are pumped, not threaded: Propagate moves whatever is
// queued in either direction and returns. The tunnel calls it on
// every tick for every bridged service.
//
// A bridge must not echo: traffic it injects into the local bus comes
// back to its own subscriber, and would otherwise be re-sent to the
// overlay, bouncing between hosts forever. Injected traffic is
// recognized by its origin handle and skipped on the way out.
package bridge

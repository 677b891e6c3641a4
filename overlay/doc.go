// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlay implements Causeway's network bus: a mesh of TCP
// links between tunnel daemons carrying key-addressed CBOR envelopes.
//
// A Session listens for inbound peer links and dials the static peers
// from its configuration. Every link performs a hello exchange
// (protocol version, host name) and, when a signing key is configured,
// a mutual Ed25519 challenge-response handshake that binds the link to
// the peers' keys before any envelope flows.
//
// Publishing is broadcast: a Publisher sends each envelope to every
// live link, compressed with the session's configured algorithm.
// Subscribers register interest in one key and receive matching
// envelopes from any link into a bounded queue; when the consumer
// falls behind, the oldest entries are dropped. A host never receives
// its own publishes — envelopes only travel across links, and links
// are never established to self.
//
// The overlay does not relay: envelopes reach direct peers only.
// Unreachable peers at open time are logged and skipped; they can
// dial in later. There is no automatic redial at this layer.
package overlay

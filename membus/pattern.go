// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

// MessagingPattern is the communication style of a service. The broker
// understands publish/subscribe and event; any other value survives
// the wire untouched so that descriptors from newer deployments can
// cross the overlay without being mangled, but nothing bridges them.
type MessagingPattern string

const (
	// PatternPublishSubscribe carries opaque payload samples from
	// publishers to all subscribers of a service.
	PatternPublishSubscribe MessagingPattern = "publish_subscribe"

	// PatternEvent carries numeric event notifications from notifiers
	// to all listeners of a service.
	PatternEvent MessagingPattern = "event"
)

// Bridgeable reports whether the pattern is one the tunnel knows how
// to bridge across domains.
func (p MessagingPattern) Bridgeable() bool {
	return p == PatternPublishSubscribe || p == PatternEvent
}

// String returns the wire name of the pattern.
func (p MessagingPattern) String() string { return string(p) }

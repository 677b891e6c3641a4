// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

// Broker frame protocol. Each handle owns one Unix socket connection
// carrying a CBOR stream: the client sends request frames, the broker
// sends reply frames. CBOR is self-delimiting, so there is no outer
// framing.
//
// The first frame on every connection is either an attach (declaring
// the handle's role and service) or a list. After a successful attach,
// publisher and notifier connections stream publish/notify frames;
// subscriber and listener connections only read.

// Handle roles, set in the attach frame. The role fixes the service's
// messaging pattern: publisher/subscriber imply publish/subscribe,
// notifier/listener imply event.
const (
	rolePublisher  = "publisher"
	roleSubscriber = "subscriber"
	roleNotifier   = "notifier"
	roleListener   = "listener"
)

// Request ops.
const (
	opAttach  = "attach"
	opList    = "list"
	opPublish = "publish"
	opNotify  = "notify"
)

// Reply ops.
const (
	opAttached = "attached"
	opError    = "error"
	opSample   = "sample"
	opEvent    = "event"
	opServices = "services"
)

// request is a client-to-broker frame.
type request struct {
	Op      string `cbor:"op"`
	Role    string `cbor:"role,omitempty"`
	Name    string `cbor:"name,omitempty"`
	Payload []byte `cbor:"payload,omitempty"`
	EventID uint64 `cbor:"event_id,omitempty"`
}

// reply is a broker-to-client frame.
type reply struct {
	Op       string          `cbor:"op"`
	Error    string          `cbor:"error,omitempty"`
	Service  *ServiceConfig  `cbor:"service,omitempty"`
	Services []ServiceConfig `cbor:"services,omitempty"`
	Handle   uint64          `cbor:"handle,omitempty"`
	Payload  []byte          `cbor:"payload,omitempty"`
	EventID  uint64          `cbor:"event_id,omitempty"`
	Origin   uint64          `cbor:"origin,omitempty"`
}

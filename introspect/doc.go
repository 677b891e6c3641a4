// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package introspect exposes a running tunnel daemon's state over a
// Unix socket, for causeway-ctl and local tooling.
//
// The protocol is CBOR request-response with one request per
// connection: the client writes a request map carrying an "action"
// field, the server writes a response envelope, and the connection
// closes. Two actions are served: "services" returns the bridged
// service identities, "status" returns daemon vitals.
package introspect

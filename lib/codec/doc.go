// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Causeway's standard CBOR encoding configuration.
//
// Every wire surface in Causeway speaks CBOR: the membus broker frame
// protocol, overlay envelopes between peers, and the introspection
// socket. This package holds the shared encoder and decoder modes so
// that all of them encode identically without duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes, which keeps service
// announcements byte-comparable across hosts.
//
// For buffer-oriented operations (announcements, samples):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (broker connections, peer links):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec

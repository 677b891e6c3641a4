// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ServiceID is the globally-unique identity of one logical service
// within a deployment: the hex encoding of a keyed BLAKE3 digest over
// the service's pattern and name. Equality and hashing are structural,
// so a ServiceID derived on one host matches the same service derived
// on another.
type ServiceID string

// String returns the hex digest.
func (id ServiceID) String() string { return string(id) }

// identityDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// service identities. Domain separation ensures service IDs can never
// collide with digests computed elsewhere over the same bytes. The
// byte values are the ASCII encoding of the domain name, zero-padded
// to 32 bytes, so the key is inspectable in hex dumps without
// sacrificing any cryptographic property.
var identityDomainKey = [32]byte{
	'c', 'a', 'u', 's', 'e', 'w', 'a', 'y', '.', 's', 'e', 'r', 'v', 'i', 'c', 'e',
	'.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', 0, 0, 0, 0, 0, 0, 0,
}

// DeriveServiceID computes the identity of a service from its pattern
// and name. The pattern participates in the digest so that a
// publish/subscribe service and an event service with the same name
// remain distinct services.
func DeriveServiceID(pattern MessagingPattern, name string) ServiceID {
	hasher, err := blake3.NewKeyed(identityDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which is a
		// programming error with a fixed-size array.
		panic("membus: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write([]byte(pattern))
	hasher.Write([]byte{0})
	hasher.Write([]byte(name))

	var digest [32]byte
	hasher.Digest().Read(digest[:])
	return ServiceID(hex.EncodeToString(digest[:]))
}

// ServiceConfig describes one discovered service: its identity, its
// human-readable name, and its messaging pattern. Produced by the
// broker on attach and by discovery scans; consumers treat it as
// immutable.
type ServiceConfig struct {
	ID      ServiceID        `cbor:"id" json:"id"`
	Name    string           `cbor:"name" json:"name"`
	Pattern MessagingPattern `cbor:"pattern" json:"pattern"`
}

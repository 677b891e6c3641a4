// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// protocolVersion is the overlay wire protocol version. Peers with
// mismatched versions refuse the link during the hello exchange.
const protocolVersion = 1

// authNonceSize is the size of the random challenge nonce in bytes.
const authNonceSize = 32

// handshakeTimeout bounds the entire link handshake (hello exchange,
// signing, verification). A link that does not complete within this
// window is torn down.
const handshakeTimeout = 10 * time.Second

// hello is the first frame on every link, sent by both sides
// simultaneously. The nonce is always present so that the
// authentication decision can be made after the exchange; the public
// key is present only when the sender holds a signing key.
type hello struct {
	Version   uint8  `cbor:"version"`
	Host      string `cbor:"host"`
	PublicKey []byte `cbor:"public_key,omitempty"`
	Nonce     []byte `cbor:"nonce"`
}

// authProof carries the Ed25519 signature answering the peer's
// challenge. Exchanged only when authentication is active.
type authProof struct {
	Signature []byte `cbor:"signature"`
}

// handshake runs the hello exchange and, when the session holds a
// signing key, the mutual challenge-response protocol on a fresh link.
// Both peers run it simultaneously, so writes happen on a background
// goroutine while the main goroutine reads — otherwise both sides
// could block on their initial write.
//
// The authentication protocol, per side:
//
//  1. Send hello carrying a 32-byte random nonce and our public key
//  2. Read the peer's hello
//  3. Sign (peerNonce || peerHost) — binding the response to the
//     specific challenger's identity
//  4. Send the Ed25519 signature, read the peer's signature
//  5. Verify the peer's signature against (ownNonce || ownHost) using
//     the public key the peer presented
//
// The host binding in step 3 prevents a valid signature produced for
// challenger A from being replayed to authenticate against B.
//
// Returns the peer's host name and public key (nil when running
// unauthenticated). The caller owns the connection either way.
func (s *Session) handshake(l *link) (string, ed25519.PublicKey, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := l.conn.SetDeadline(deadline); err != nil {
		return "", nil, fmt.Errorf("setting handshake deadline: %w", err)
	}

	nonce := make([]byte, authNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", nil, fmt.Errorf("generating handshake nonce: %w", err)
	}

	own := hello{
		Version: protocolVersion,
		Host:    s.hostID,
		Nonce:   nonce,
	}
	if s.signer != nil {
		own.PublicKey = s.signer.Public().(ed25519.PublicKey)
	}

	writeErrors := make(chan error, 1)
	go func() {
		writeErrors <- l.write(own)
	}()

	var peer hello
	if err := l.dec.Decode(&peer); err != nil {
		return "", nil, fmt.Errorf("reading peer hello: %w", err)
	}
	if err := <-writeErrors; err != nil {
		return "", nil, fmt.Errorf("sending hello: %w", err)
	}

	if peer.Version != protocolVersion {
		return "", nil, fmt.Errorf("peer %s speaks protocol version %d, want %d",
			peer.Host, peer.Version, protocolVersion)
	}
	if peer.Host == "" {
		return "", nil, fmt.Errorf("peer hello carries no host name")
	}
	if peer.Host == s.hostID {
		return "", nil, fmt.Errorf("peer presented our own host name %q", s.hostID)
	}

	if s.signer == nil {
		// Unauthenticated mode: accept the link as-is.
		if err := l.conn.SetDeadline(time.Time{}); err != nil {
			return "", nil, fmt.Errorf("clearing handshake deadline: %w", err)
		}
		return peer.Host, nil, nil
	}

	if len(peer.PublicKey) != ed25519.PublicKeySize {
		return "", nil, fmt.Errorf("peer %s did not present a valid Ed25519 key", peer.Host)
	}
	if len(peer.Nonce) != authNonceSize {
		return "", nil, fmt.Errorf("peer %s sent a %d-byte nonce, want %d",
			peer.Host, len(peer.Nonce), authNonceSize)
	}
	peerKey := ed25519.PublicKey(bytes.Clone(peer.PublicKey))

	signedMessage := make([]byte, 0, authNonceSize+len(peer.Host))
	signedMessage = append(signedMessage, peer.Nonce...)
	signedMessage = append(signedMessage, peer.Host...)

	go func() {
		writeErrors <- l.write(authProof{Signature: ed25519.Sign(s.signer, signedMessage)})
	}()

	var proof authProof
	if err := l.dec.Decode(&proof); err != nil {
		return "", nil, fmt.Errorf("reading peer signature: %w", err)
	}
	if err := <-writeErrors; err != nil {
		return "", nil, fmt.Errorf("sending signature: %w", err)
	}

	// Verify: the peer signed (nonce || host), i.e. it responded to
	// OUR challenge bound to OUR identity.
	verifyMessage := make([]byte, 0, authNonceSize+len(s.hostID))
	verifyMessage = append(verifyMessage, nonce...)
	verifyMessage = append(verifyMessage, s.hostID...)
	if !ed25519.Verify(peerKey, verifyMessage, proof.Signature) {
		return "", nil, fmt.Errorf("peer %s failed authentication: bad signature", peer.Host)
	}

	if s.authorize != nil {
		if err := s.authorize(peer.Host, peerKey); err != nil {
			return "", nil, fmt.Errorf("peer %s rejected: %w", peer.Host, err)
		}
	}

	if err := l.conn.SetDeadline(time.Time{}); err != nil {
		return "", nil, fmt.Errorf("clearing handshake deadline: %w", err)
	}
	return peer.Host, peerKey, nil
}

// LoadSigningKey reads an Ed25519 private key from path. The file may
// hold either the raw 32-byte seed or its 64-character hex encoding
// (trailing whitespace tolerated).
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}

	if len(data) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(data), nil
	}

	trimmed := bytes.TrimSpace(data)
	seed, err := hex.DecodeString(string(trimmed))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key %s: want a %d-byte seed or its hex encoding",
			path, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

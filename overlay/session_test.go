// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openSession opens a session with a quiet logger and registers
// cleanup.
func openSession(t *testing.T, config Config) *Session {
	t.Helper()
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	session, err := Open(config)
	if err != nil {
		t.Fatalf("opening overlay session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// linkedPair opens two sessions, alpha listening and beta dialing in,
// and waits until the link is up from both sides. The configure hook
// adjusts both configs before opening.
func linkedPair(t *testing.T, configure func(alpha, beta *Config)) (*Session, *Session) {
	t.Helper()

	alphaConfig := Config{Listen: "127.0.0.1:0", HostID: "alpha"}
	betaConfig := Config{HostID: "beta"}
	if configure != nil {
		configure(&alphaConfig, &betaConfig)
	}

	alpha := openSession(t, alphaConfig)
	betaConfig.Peers = []string{alpha.Address()}
	beta := openSession(t, betaConfig)

	waitForPeer(t, alpha, "beta")
	waitForPeer(t, beta, "alpha")
	return alpha, beta
}

func waitForPeer(t *testing.T, session *Session, host string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, peer := range session.Peers() {
			if peer == host {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session %s never linked to %s", session.HostID(), host)
}

func takeMessage(t *testing.T, sub *Subscriber) Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := sub.Take(); ok {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for a message on %s", sub.Key())
	return Message{}
}

// writeSeedFile writes a fresh Ed25519 seed for test sessions and
// returns its path and the corresponding public key.
func writeSeedFile(t *testing.T, name string) (string, ed25519.PublicKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, private.Seed(), 0o600); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}
	return path, public
}

func TestPublishReachesPeer(t *testing.T) {
	alpha, beta := linkedPair(t, nil)

	sub, err := beta.Subscriber("traffic/metrics")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	pub := alpha.Publisher("traffic/metrics")
	if err := pub.Send([]byte("sample-1")); err != nil {
		t.Fatalf("sending: %v", err)
	}

	msg := takeMessage(t, sub)
	if string(msg.Payload) != "sample-1" {
		t.Fatalf("payload %q, want %q", msg.Payload, "sample-1")
	}
	if msg.From != "alpha" {
		t.Fatalf("message attributed to %q, want alpha", msg.From)
	}
	if msg.Key != "traffic/metrics" {
		t.Fatalf("message key %q, want traffic/metrics", msg.Key)
	}
}

func TestNoSelfDelivery(t *testing.T) {
	alpha, _ := linkedPair(t, nil)

	sub, err := alpha.Subscriber("loopback")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	if err := alpha.Publisher("loopback").Send([]byte("own")); err != nil {
		t.Fatalf("sending: %v", err)
	}

	// Publishes travel only across links, so the local subscriber
	// must stay empty.
	time.Sleep(50 * time.Millisecond)
	if msg, ok := sub.Take(); ok {
		t.Fatalf("received own publish %q", msg.Payload)
	}
}

func TestKeyIsolation(t *testing.T) {
	alpha, beta := linkedPair(t, nil)

	matching, err := beta.Subscriber("keys/a")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer matching.Close()
	other, err := beta.Subscriber("keys/b")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer other.Close()

	if err := alpha.Publisher("keys/a").Send([]byte("payload")); err != nil {
		t.Fatalf("sending: %v", err)
	}

	takeMessage(t, matching)
	if msg, ok := other.Take(); ok {
		t.Fatalf("subscriber of keys/b received %q", msg.Payload)
	}
}

func TestCompressedDelivery(t *testing.T) {
	alpha, beta := linkedPair(t, func(alphaConfig, betaConfig *Config) {
		alphaConfig.Compression = "zstd"
		betaConfig.Compression = "lz4"
	})

	sub, err := beta.Subscriber("bulk")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	payload := bytes.Repeat([]byte("compressible sample data "), 400)
	if err := alpha.Publisher("bulk").Send(payload); err != nil {
		t.Fatalf("sending: %v", err)
	}

	msg := takeMessage(t, sub)
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatal("compressed payload did not survive the round trip")
	}
}

func TestAuthenticatedLink(t *testing.T) {
	alphaSeed, _ := writeSeedFile(t, "alpha.key")
	betaSeed, _ := writeSeedFile(t, "beta.key")

	alpha, beta := linkedPair(t, func(alphaConfig, betaConfig *Config) {
		alphaConfig.SigningKey = alphaSeed
		betaConfig.SigningKey = betaSeed
	})

	sub, err := beta.Subscriber("secured")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	if err := alpha.Publisher("secured").Send([]byte("verified")); err != nil {
		t.Fatalf("sending: %v", err)
	}
	if got := takeMessage(t, sub); string(got.Payload) != "verified" {
		t.Fatalf("payload %q, want %q", got.Payload, "verified")
	}
}

func TestAuthRefusesUnkeyedPeer(t *testing.T) {
	alphaSeed, _ := writeSeedFile(t, "alpha.key")

	alpha := openSession(t, Config{
		Listen:     "127.0.0.1:0",
		HostID:     "alpha",
		SigningKey: alphaSeed,
	})
	openSession(t, Config{
		HostID: "beta",
		Peers:  []string{alpha.Address()},
	})

	time.Sleep(100 * time.Millisecond)
	if peers := alpha.Peers(); len(peers) != 0 {
		t.Fatalf("keyless peer was admitted: %v", peers)
	}
}

func TestAuthorizeHookRefusesLink(t *testing.T) {
	alphaSeed, _ := writeSeedFile(t, "alpha.key")
	betaSeed, betaPublic := writeSeedFile(t, "beta.key")

	authorized := false
	alpha := openSession(t, Config{
		Listen:     "127.0.0.1:0",
		HostID:     "alpha",
		SigningKey: alphaSeed,
		Authorize: func(host string, key ed25519.PublicKey) error {
			authorized = true
			if host != "beta" || !key.Equal(betaPublic) {
				t.Errorf("authorize saw host=%q, unexpected identity", host)
			}
			return fmt.Errorf("not on the roster")
		},
	})
	openSession(t, Config{
		HostID:     "beta",
		SigningKey: betaSeed,
		Peers:      []string{alpha.Address()},
	})

	time.Sleep(100 * time.Millisecond)
	if !authorized {
		t.Fatal("authorize hook never ran")
	}
	if peers := alpha.Peers(); len(peers) != 0 {
		t.Fatalf("rejected peer was admitted: %v", peers)
	}
}

func TestUnreachablePeerIsSkipped(t *testing.T) {
	// Dialing a dead address must not fail Open.
	session := openSession(t, Config{
		HostID: "loner",
		Peers:  []string{"127.0.0.1:1"},
	})
	if peers := session.Peers(); len(peers) != 0 {
		t.Fatalf("expected no links, got %v", peers)
	}
}

func TestSubscriberQueueDropsOldest(t *testing.T) {
	session := openSession(t, Config{HostID: "solo"})
	sub, err := session.Subscriber("firehose")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	overflow := 10
	for i := 0; i < subscriberQueueDepth+overflow; i++ {
		sub.push(Message{Key: "firehose", Payload: []byte(fmt.Sprintf("%d", i))})
	}

	// The first messages were evicted; the survivor window starts at
	// the overflow count.
	first, ok := sub.Take()
	if !ok {
		t.Fatal("queue is unexpectedly empty")
	}
	if string(first.Payload) != fmt.Sprintf("%d", overflow) {
		t.Fatalf("first surviving message %q, want %q", first.Payload, fmt.Sprintf("%d", overflow))
	}
}

func TestClosedSessionRefusesOperations(t *testing.T) {
	session := openSession(t, Config{HostID: "closing"})
	if err := session.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	if err := session.Publisher("k").Send([]byte("x")); err != ErrSessionClosed {
		t.Fatalf("Send on closed session returned %v, want ErrSessionClosed", err)
	}
	if _, err := session.Subscriber("k"); err != ErrSessionClosed {
		t.Fatalf("Subscriber on closed session returned %v, want ErrSessionClosed", err)
	}
	// Close is idempotent.
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestLoadSigningKey(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	dir := t.TempDir()

	rawPath := filepath.Join(dir, "raw.key")
	if err := os.WriteFile(rawPath, private.Seed(), 0o600); err != nil {
		t.Fatalf("writing raw seed: %v", err)
	}
	hexPath := filepath.Join(dir, "hex.key")
	if err := os.WriteFile(hexPath, []byte(hex.EncodeToString(private.Seed())+"\n"), 0o600); err != nil {
		t.Fatalf("writing hex seed: %v", err)
	}

	for _, path := range []string{rawPath, hexPath} {
		loaded, err := LoadSigningKey(path)
		if err != nil {
			t.Fatalf("LoadSigningKey(%s): %v", path, err)
		}
		if !loaded.Equal(private) {
			t.Fatalf("LoadSigningKey(%s) returned a different key", path)
		}
	}

	badPath := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(badPath, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("writing bad seed: %v", err)
	}
	if _, err := LoadSigningKey(badPath); err == nil {
		t.Fatal("expected an error for a malformed key file")
	}
}

// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/causeway-foundation/causeway/lib/codec"
	"github.com/causeway-foundation/causeway/lib/netutil"
)

// DiscoveryKey is the overlay key on which tunnel daemons announce
// their bridged service descriptors. Every daemon subscribes to it;
// Causeway's remote discovery is built entirely on this key.
const DiscoveryKey = "causeway/discovery"

// dialTimeout bounds the TCP connect to a configured peer at session
// open time.
const dialTimeout = 5 * time.Second

// subscriberQueueDepth is the per-subscriber buffer. When a consumer
// falls behind, the oldest messages are dropped first.
const subscriberQueueDepth = 128

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("overlay session closed")

// envelope is the wire frame carried on every link after the
// handshake. RawSize records the payload length before compression so
// the receiver can verify the inflated result.
type envelope struct {
	Key         string         `cbor:"key"`
	Payload     []byte         `cbor:"payload"`
	Compression CompressionTag `cbor:"compression"`
	RawSize     int            `cbor:"raw_size"`
}

// Message is a received envelope, decompressed, as handed to
// subscribers. From names the direct peer the message arrived over.
type Message struct {
	Key     string
	Payload []byte
	From    string
}

// Config holds the settings for an overlay session.
type Config struct {
	// Listen is the TCP address to accept peer links on, e.g.
	// ":7447". Empty means dial-only: the session reaches its
	// configured peers but accepts no inbound links.
	Listen string

	// Peers are TCP addresses of other daemons to link to at open
	// time. A peer that cannot be reached is logged and skipped — it
	// may dial us later.
	Peers []string

	// Compression names the algorithm applied to outgoing payloads:
	// "none", "lz4", or "zstd". Empty means none. Inbound envelopes
	// are decoded by their own tag regardless of this setting.
	Compression string

	// SigningKey is the path to an Ed25519 seed file. When set, every
	// link must complete the mutual challenge-response handshake;
	// peers without a key are refused. When empty, links are
	// unauthenticated.
	SigningKey string

	// HostID names this daemon on the overlay. Defaults to the OS
	// hostname. Two linked peers must not share a host ID.
	HostID string

	// Authorize, when set, is consulted after a peer passes the
	// cryptographic handshake. Returning an error refuses the link.
	// Only called when SigningKey is set.
	Authorize func(host string, key ed25519.PublicKey) error

	// Logger receives link lifecycle and delivery diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Session is one daemon's attachment to the overlay mesh. It owns the
// TCP listener, the set of live peer links, and the local subscriber
// registry. All methods are safe for concurrent use.
type Session struct {
	logger      *slog.Logger
	hostID      string
	compression CompressionTag
	signer      ed25519.PrivateKey
	authorize   func(host string, key ed25519.PublicKey) error
	listener    net.Listener

	mu          sync.Mutex
	links       map[string]*link
	subscribers map[string]map[*Subscriber]struct{}
	closed      bool

	wg sync.WaitGroup
}

// link is one authenticated TCP connection to a peer. Writes are
// serialized through writeMu; reads happen only on the link's own
// read loop (and, before that, the handshake).
type link struct {
	conn     net.Conn
	dec      *codec.Decoder
	writeMu  sync.Mutex
	enc      *codec.Encoder
	peerHost string
}

func newLink(conn net.Conn) *link {
	return &link{
		conn: conn,
		enc:  codec.NewEncoder(conn),
		dec:  codec.NewDecoder(conn),
	}
}

func (l *link) write(frame any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.enc.Encode(frame)
}

// Open creates a session, starts listening when configured to, and
// dials the configured peers. Listen failures are fatal; dial failures
// are logged and skipped.
func Open(config Config) (*Session, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	compression := CompressionNone
	if config.Compression != "" {
		var err error
		compression, err = ParseCompressionTag(config.Compression)
		if err != nil {
			return nil, err
		}
	}

	hostID := config.HostID
	if hostID == "" {
		name, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving host name: %w", err)
		}
		hostID = name
	}

	var signer ed25519.PrivateKey
	if config.SigningKey != "" {
		var err error
		signer, err = LoadSigningKey(config.SigningKey)
		if err != nil {
			return nil, err
		}
	}

	session := &Session{
		logger:      logger,
		hostID:      hostID,
		compression: compression,
		signer:      signer,
		authorize:   config.Authorize,
		links:       make(map[string]*link),
		subscribers: make(map[string]map[*Subscriber]struct{}),
	}

	if config.Listen != "" {
		listener, err := net.Listen("tcp", config.Listen)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", config.Listen, err)
		}
		session.listener = listener
		session.wg.Add(1)
		go session.acceptLoop()
	}

	for _, address := range config.Peers {
		conn, err := net.DialTimeout("tcp", address, dialTimeout)
		if err != nil {
			logger.Warn("overlay peer unreachable, skipping",
				"peer", address, "error", err)
			continue
		}
		if err := session.admit(conn); err != nil {
			logger.Warn("overlay peer handshake failed",
				"peer", address, "error", err)
		}
	}

	return session, nil
}

// HostID returns this session's name on the overlay.
func (s *Session) HostID() string {
	return s.hostID
}

// Address returns the TCP address the session accepts links on, in
// "host:port" form, or "" for a dial-only session. Useful with a
// ":0" listen address.
func (s *Session) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Peers returns the host IDs of the currently linked peers.
func (s *Session) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := make([]string, 0, len(s.links))
	for host := range s.links {
		hosts = append(hosts, host)
	}
	return hosts
}

func (s *Session) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Error("overlay accept failed", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.admit(conn); err != nil {
				s.logger.Warn("overlay inbound handshake failed",
					"remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

// admit runs the handshake on a fresh connection and registers the
// resulting link. The connection is closed on any failure, including
// a duplicate link to an already-linked host.
func (s *Session) admit(conn net.Conn) error {
	l := newLink(conn)
	peerHost, _, err := s.handshake(l)
	if err != nil {
		conn.Close()
		return err
	}
	l.peerHost = peerHost

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	if _, exists := s.links[peerHost]; exists {
		s.mu.Unlock()
		conn.Close()
		s.logger.Debug("dropping duplicate overlay link", "peer", peerHost)
		return nil
	}
	s.links[peerHost] = l
	s.mu.Unlock()

	s.logger.Info("overlay link established",
		"peer", peerHost, "remote", conn.RemoteAddr(),
		"authenticated", s.signer != nil)

	s.wg.Add(1)
	go s.readLoop(l)
	return nil
}

func (s *Session) readLoop(l *link) {
	defer s.wg.Done()
	for {
		var env envelope
		if err := l.dec.Decode(&env); err != nil {
			if netutil.IsExpectedCloseError(err) {
				s.logger.Debug("overlay link closed", "peer", l.peerHost)
			} else {
				s.logger.Warn("overlay link read failed",
					"peer", l.peerHost, "error", err)
			}
			s.dropLink(l)
			return
		}
		s.deliver(l, env)
	}
}

// dropLink closes a link and removes it from the registry if it is
// still the registered link for its host.
func (s *Session) dropLink(l *link) {
	l.conn.Close()
	s.mu.Lock()
	if s.links[l.peerHost] == l {
		delete(s.links, l.peerHost)
	}
	s.mu.Unlock()
}

// deliver decompresses an inbound envelope and fans it out to every
// local subscriber of its key. Envelopes for keys nobody subscribes
// to are discarded.
func (s *Session) deliver(l *link, env envelope) {
	payload, err := decompressPayload(env.Payload, env.Compression, env.RawSize)
	if err != nil {
		s.logger.Warn("discarding undecodable overlay envelope",
			"peer", l.peerHost, "key", env.Key, "error", err)
		return
	}

	s.mu.Lock()
	targets := make([]*Subscriber, 0, len(s.subscribers[env.Key]))
	for sub := range s.subscribers[env.Key] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	msg := Message{Key: env.Key, Payload: payload, From: l.peerHost}
	for _, sub := range targets {
		sub.push(msg)
	}
}

// Close tears down the listener and every link, then waits for all
// session goroutines to finish. Subscribers keep whatever is already
// queued.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	links := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, l := range links {
		l.conn.Close()
	}
	s.wg.Wait()
	return nil
}

// Publisher sends payloads on one overlay key. Publishers are cheap;
// create one per key.
type Publisher struct {
	session *Session
	key     string
}

// Publisher returns a publisher for the given key.
func (s *Session) Publisher(key string) *Publisher {
	return &Publisher{session: s, key: key}
}

// Key returns the overlay key this publisher sends on.
func (p *Publisher) Key() string {
	return p.key
}

// Send broadcasts payload to every live link. Having no links is not
// an error — the overlay is fire-and-forget, like publishing with no
// subscribers. A link whose write fails is dropped; the remaining
// links still receive the payload.
func (p *Publisher) Send(payload []byte) error {
	s := p.session

	compressed, tag, err := compressPayload(payload, s.compression)
	if err != nil {
		return fmt.Errorf("compressing payload for %s: %w", p.key, err)
	}
	env := envelope{
		Key:         p.key,
		Payload:     compressed,
		Compression: tag,
		RawSize:     len(payload),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	links := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	for _, l := range links {
		if err := l.write(env); err != nil {
			s.logger.Warn("overlay link write failed, dropping link",
				"peer", l.peerHost, "key", p.key, "error", err)
			s.dropLink(l)
		}
	}
	return nil
}

// Subscriber receives messages published on one overlay key by any
// linked peer. Messages queue up to subscriberQueueDepth; beyond
// that, the oldest are dropped.
type Subscriber struct {
	session *Session
	key     string
	queue   chan Message
	once    sync.Once
}

// Subscriber registers a subscriber for the given key.
func (s *Session) Subscriber(key string) (*Subscriber, error) {
	sub := &Subscriber{
		session: s,
		key:     key,
		queue:   make(chan Message, subscriberQueueDepth),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	set := s.subscribers[key]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		s.subscribers[key] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// Key returns the overlay key this subscriber listens on.
func (sub *Subscriber) Key() string {
	return sub.key
}

// push enqueues a message, evicting the oldest queued message when
// the buffer is full.
func (sub *Subscriber) push(msg Message) {
	for {
		select {
		case sub.queue <- msg:
			return
		default:
		}
		select {
		case <-sub.queue:
		default:
		}
	}
}

// Take returns the next queued message without blocking. The second
// return is false when nothing is queued.
func (sub *Subscriber) Take() (Message, bool) {
	select {
	case msg := <-sub.queue:
		return msg, true
	default:
		return Message{}, false
	}
}

// Close unregisters the subscriber. Queued messages are discarded.
func (sub *Subscriber) Close() error {
	sub.once.Do(func() {
		s := sub.session
		s.mu.Lock()
		if set := s.subscribers[sub.key]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.subscribers, sub.key)
			}
		}
		s.mu.Unlock()
	})
	return nil
}

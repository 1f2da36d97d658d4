// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/thejerf/suture/v4"

	"github.com/thiratt/nekoshare/lib/events"
	"github.com/thiratt/nekoshare/lib/tlsutil"
	"github.com/thiratt/nekoshare/lib/transport"
)

// ErrRelayNotSupported reports that relay routing is unavailable. Relay
// routing is reserved in the pair-key shape but no relay transport exists;
// GetOrConnect takes no route argument and always dials a Direct route, so
// it never returns this error.
var ErrRelayNotSupported = errors.New("session: relay routing is not implemented")

const addrCacheSize = 128

// Manager deduplicates logical connections by pair key and runs
// single-shot accept servers, per spec.md's session manager.
type Manager struct {
	cfg       transport.Config
	cert      tls.Certificate
	sink      events.Sink
	router    *transport.Router
	log       *slog.Logger
	addrCache *lru.Cache[string, string]

	mu       sync.Mutex
	sessions map[PairKey]*transport.Connection
	servers  map[int]*acceptServer
}

// NewManager returns a Manager dialing/accepting with cert as the local
// identity, using cfg's timeouts, dispatching inbound packets through
// router, and forwarding diagnostics through sink (events.Discard if nil).
func NewManager(cfg transport.Config, cert tls.Certificate, router *transport.Router, sink events.Sink, log *slog.Logger) *Manager {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	cache, _ := lru.New[string, string](addrCacheSize)
	return &Manager{
		cfg:       cfg,
		cert:      cert,
		sink:      sink,
		router:    router,
		log:       log,
		addrCache: cache,
		sessions:  make(map[PairKey]*transport.Connection),
		servers:   make(map[int]*acceptServer),
	}
}

// GetOrConnect computes the direct pair key of the local and peer device
// ids and returns the cached connection if one exists and is not closing.
// Otherwise it dials address within cfg.ConnectTimeout, upgrades to a
// fingerprint-pinned TLS 1.3 client handshake within
// cfg.TLSHandshakeTimeout, constructs a Connection, and registers it under
// the pair key.
func (m *Manager) GetOrConnect(ctx context.Context, local, peer uuid.UUID, address, fingerprint string) (*transport.Connection, error) {
	link := DirectLinkKey(local, peer)
	pairKey := link.PairKey()

	m.mu.Lock()
	if conn, ok := m.sessions[pairKey]; ok && !conn.IsClosing() {
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	connID := pairKey.String()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, transport.WithConnectionContext(fmt.Errorf("session: dial %s: %w", address, err), connID)
	}
	m.addrCache.Add(pairKey.String(), address)

	verifier, err := tlsutil.NewFingerprintVerifier(fingerprint)
	if err != nil {
		raw.Close()
		return nil, transport.WithConnectionContext(err, connID)
	}
	tlsConf := tlsutil.ClientConfig(m.cert, verifier)

	tlsConn := tls.Client(raw, tlsConf)
	hsCtx, hsCancel := context.WithTimeout(ctx, m.cfg.TLSHandshakeTimeout)
	defer hsCancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		return nil, transport.WithConnectionContext(fmt.Errorf("session: TLS handshake with %s: %w", address, err), connID)
	}

	conn, incoming := transport.NewConnection(connID, transport.NewClientTLSStream(tlsConn), m.cfg, m.log, func() {
		m.removeSession(pairKey, connID)
	})

	m.mu.Lock()
	m.sessions[pairKey] = conn
	m.mu.Unlock()

	go m.consume(conn, incoming, pairKey, m.cfg.IdleTimeout)

	return conn, nil
}

func (m *Manager) removeSession(pairKey PairKey, connID string) {
	m.mu.Lock()
	delete(m.sessions, pairKey)
	m.mu.Unlock()
	m.sink.Emit(events.Disconnected{ConnectionID: connID, PairKey: pairKey.String()})
}

// Disconnect closes the connection registered under pairKey, returning
// transport.ErrConnectionNotFound if no such connection is active.
func (m *Manager) Disconnect(pairKey PairKey) error {
	m.mu.Lock()
	conn, ok := m.sessions[pairKey]
	m.mu.Unlock()
	if !ok {
		return transport.ErrConnectionNotFound
	}
	conn.Close()
	return nil
}

// HasActiveServerConnection reports whether any accept server started via
// StartServer currently holds a non-closing connection.
func (m *Manager) HasActiveServerConnection() bool {
	m.mu.Lock()
	servers := make([]*acceptServer, 0, len(m.servers))
	for _, srv := range m.servers {
		servers = append(servers, srv)
	}
	m.mu.Unlock()

	for _, srv := range servers {
		if conn := srv.activeConn(); conn != nil && !conn.IsClosing() {
			return true
		}
	}
	return false
}

// consume drains conn's incoming channel, dispatches through the router,
// forwards non-FileChunk packets to the sink as DataReceived (truncating
// payloads over 1 KiB), and resets an idle timer on every packet. On idle
// expiry or channel close, the connection is closed.
func (m *Manager) consume(conn *transport.Connection, incoming <-chan transport.IncomingPacket, pairKey PairKey, idleTimeout time.Duration) {
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	idleExpired := make(chan struct{})
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-idle.C:
			close(idleExpired)
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	for {
		select {
		case pkt, ok := <-incoming:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

			m.router.Dispatch(pkt.Type, conn, pkt.Payload, pkt.RequestID)
			m.forwardDiagnostic(conn, pkt)
		case <-idleExpired:
			m.log.Info("connection idle, closing", "conn_id", conn.ID(), "pair_key", pairKey.String())
			conn.Close()
			return
		}
	}
}

const diagnosticTruncateLimit = 1024

func (m *Manager) forwardDiagnostic(conn *transport.Connection, pkt transport.IncomingPacket) {
	if pkt.Type.IsData() {
		return
	}
	payload := pkt.Payload
	if len(payload) > diagnosticTruncateLimit {
		payload = nil
	}
	m.sink.Emit(events.DataReceived{ConnectionID: conn.ID(), Type: pkt.Type.String(), Payload: payload})
}

// acceptServer is a single-shot suture.Service: it waits for one TCP
// connection, TLS-accepts it, constructs a Connection, runs the consumer
// loop to completion, and then reports suture.ErrDoNotRestart.
type acceptServer struct {
	m              *Manager
	listener       net.Listener
	tlsConf        *tls.Config
	expected       LinkKey
	acceptDeadline time.Duration
	done           chan struct{}

	connMu sync.Mutex
	conn   *transport.Connection
}

// Port returns the bound TCP port, valid once StartServer has returned.
func (s *acceptServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *acceptServer) activeConn() *transport.Connection {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// Serve implements suture.Service. It accepts exactly one connection
// within acceptDeadline, then stops listening regardless of outcome.
func (s *acceptServer) Serve(ctx context.Context) error {
	defer s.listener.Close()
	defer close(s.done)

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		c, err := s.listener.Accept()
		acceptCh <- acceptResult{c, err}
	}()

	select {
	case res := <-acceptCh:
		if res.err != nil {
			return fmt.Errorf("session: accept: %w", res.err)
		}
		return s.serveOne(ctx, res.conn)
	case <-time.After(s.acceptDeadline):
		return suture.ErrDoNotRestart
	case <-ctx.Done():
		return suture.ErrDoNotRestart
	}
}

func (s *acceptServer) serveOne(ctx context.Context, raw net.Conn) error {
	tlsConn := tls.Server(raw, s.tlsConf)
	hsCtx, cancel := context.WithTimeout(ctx, s.m.cfg.TLSHandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		return fmt.Errorf("session: TLS accept handshake: %w", err)
	}

	pairKey := s.expected.PairKey()
	connID := pairKey.String()
	conn, incoming := transport.NewConnection(connID, transport.NewServerTLSStream(tlsConn), s.m.cfg, s.m.log, func() {
		s.m.removeSession(pairKey, connID)
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.m.mu.Lock()
	s.m.sessions[pairKey] = conn
	s.m.mu.Unlock()

	s.m.consume(conn, incoming, pairKey, s.m.cfg.IdleTimeout)
	return suture.ErrDoNotRestart
}

// Complete implements suture.IsCompletable: this service never restarts.
func (s *acceptServer) Complete() bool { return true }

func (s *acceptServer) String() string { return fmt.Sprintf("session.acceptServer@%p", s) }

// StartServer binds an ephemeral TCP port, builds a fingerprint-pinned
// TLS 1.3 server config requiring a client certificate, and returns a
// suture.Service that accepts exactly one connection for (local, expectedPeer)
// within cfg.AcceptTimeout and then stops listening.
func (m *Manager) StartServer(local, expectedPeer uuid.UUID, peerFingerprint string) (*acceptServer, int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, 0, fmt.Errorf("session: listen: %w", err)
	}

	verifier, err := tlsutil.NewFingerprintVerifier(peerFingerprint)
	if err != nil {
		listener.Close()
		return nil, 0, err
	}

	srv := &acceptServer{
		m:              m,
		listener:       listener,
		tlsConf:        tlsutil.ServerConfig(m.cert, verifier),
		expected:       DirectLinkKey(local, expectedPeer),
		acceptDeadline: m.cfg.AcceptTimeout,
		done:           make(chan struct{}),
	}
	port := srv.Port()

	m.mu.Lock()
	m.servers[port] = srv
	m.mu.Unlock()

	m.log.Info("session server listening", "port", port)
	return srv, port, nil
}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/thiratt/nekoshare/lib/protocol"
)

// ConnectionState tracks where a Connection sits in its lifecycle.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateAuthenticated
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UserInfo is the minimal identity attached to a Connection once it has
// authenticated. The authentication procedure itself is out of scope; see
// RegisterPassthroughHandlers.
type UserInfo struct {
	ID   string
	Name string
}

// IncomingPacket is one decoded frame handed to a connection's consumer —
// typically a Router via Dispatch — that did not match a pending Request.
type IncomingPacket struct {
	Type      protocol.PacketType
	RequestID int32
	Payload   []byte
}

type outgoingItem struct {
	data      []byte
	hasPermit bool
}

// Connection is the full-duplex runtime over one SocketStream: a read loop
// decoding frames, a write loop batching and flushing outgoing frames, a
// request/response correlation table, and chunk-permit backpressure for
// FileChunk packets.
type Connection struct {
	id     string
	stream SocketStream
	cfg    Config
	log    *slog.Logger

	metrics *connMetrics

	stateMu sync.RWMutex
	state   ConnectionState
	user    *UserInfo

	reqIDCounter atomic.Uint32
	closing      atomic.Bool
	closeOnce    sync.Once
	closedCh     chan struct{}
	onClose      func()

	outgoingCh chan outgoingItem
	incomingCh chan IncomingPacket

	pendingMu       sync.Mutex
	pendingRequests map[int32]chan []byte

	chunkPermits *semaphore.Weighted
	writeLimiter *rate.Limiter // nil when Config.MaxBytesPerSecond is 0

	activeSendBatches atomic.Int32

	connMu sync.Mutex // guards stream.Conn.Close from concurrent callers
}

// NewConnection splits stream into a read loop and a write loop, wires up
// the incoming-packet channel a router consumer drains, and returns the
// Connection alongside that channel. onClose, if non-nil, fires exactly
// once when the connection transitions to closed.
func NewConnection(id string, stream SocketStream, cfg Config, log *slog.Logger, onClose func()) (*Connection, <-chan IncomingPacket) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("conn_id", id)

	if tc, ok := stream.Conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(cfg.TCPNoDelay)
	}

	c := &Connection{
		id:              id,
		stream:          stream,
		cfg:             cfg,
		log:             log,
		metrics:         newConnMetrics(),
		state:           StateConnected,
		closedCh:        make(chan struct{}),
		onClose:         onClose,
		outgoingCh:      make(chan outgoingItem, cfg.OutgoingChannelSize),
		incomingCh:      make(chan IncomingPacket, cfg.IncomingChannelSize),
		pendingRequests: make(map[int32]chan []byte),
		chunkPermits:    semaphore.NewWeighted(int64(cfg.MaxInFlightChunks)),
	}
	if cfg.MaxBytesPerSecond > 0 {
		c.writeLimiter = rate.NewLimiter(rate.Limit(cfg.MaxBytesPerSecond), cfg.MaxBytesPerSecond)
	}

	go c.readLoop()
	go c.writeLoop()

	return c, c.incomingCh
}

// ID returns the connection's identifier.
func (c *Connection) ID() string { return c.id }

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Connection) setState(s ConnectionState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// IsAuthenticated reports whether SetAuthenticated has been called.
func (c *Connection) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// User returns the authenticated user, if any.
func (c *Connection) User() *UserInfo {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.user
}

// SetAuthenticated records user and transitions the connection to
// StateAuthenticated.
func (c *Connection) SetAuthenticated(user UserInfo) {
	c.stateMu.Lock()
	c.user = &user
	c.state = StateAuthenticated
	c.stateMu.Unlock()
}

// IsClosing reports whether Close or CloseAfterFlush has been invoked.
func (c *Connection) IsClosing() bool { return c.closing.Load() }

// Stats returns a snapshot of this connection's byte/packet counters.
func (c *Connection) Stats() Stats { return c.metrics.snapshot() }

// NextRequestID allocates a fresh, monotonically increasing request id.
func (c *Connection) NextRequestID() int32 {
	return int32(c.reqIDCounter.Add(1))
}

// SendPacket allocates a request id, frames (t, id, payload), and enqueues
// it for the write loop. It blocks if the outgoing queue is full — full
// queues apply natural backpressure to callers rather than dropping.
func (c *Connection) SendPacket(t protocol.PacketType, payload []byte) (int32, error) {
	reqID := c.NextRequestID()
	if err := c.SendPacketWithID(t, reqID, payload); err != nil {
		return 0, err
	}
	return reqID, nil
}

// SendPacketWithID frames (t, requestID, payload) and enqueues it.
func (c *Connection) SendPacketWithID(t protocol.PacketType, requestID int32, payload []byte) error {
	return c.enqueue(t, requestID, payload, false)
}

// SendChunk frames a FileChunk packet whose payload is string(fileID)
// followed by raw chunk bytes, acquiring a chunk permit first. The permit
// is released once the write loop has consumed the bytes, capping the
// number of concurrently unflushed chunks at cfg.MaxInFlightChunks.
func (c *Connection) SendChunk(ctx context.Context, fileID string, chunk []byte) error {
	if err := c.chunkPermits.Acquire(ctx, 1); err != nil {
		return err
	}
	w := protocol.NewWriter(len(fileID) + 2 + len(chunk))
	w.WriteString(fileID)
	payload := append(w.Bytes(), chunk...)

	reqID := c.NextRequestID()
	if err := c.enqueue(protocol.FileChunk, reqID, payload, true); err != nil {
		c.chunkPermits.Release(1)
		return err
	}
	return nil
}

func (c *Connection) enqueue(t protocol.PacketType, requestID int32, payload []byte, hasPermit bool) error {
	if c.closing.Load() {
		return ErrConnectionClosed
	}
	var buf bytes.Buffer
	if err := protocol.WriteFrame(&buf, protocol.Frame{Type: t, RequestID: requestID, Payload: payload}); err != nil {
		return err
	}
	if t != protocol.SystemHeartbeat {
		c.log.Debug("sending packet", "type", t.String(), "request_id", requestID, "len", buf.Len())
	}
	select {
	case c.outgoingCh <- outgoingItem{data: buf.Bytes(), hasPermit: hasPermit}:
		return nil
	case <-c.closedCh:
		return ErrConnectionClosed
	}
}

// Request sends (t, payload) under a freshly allocated request id and
// blocks until a frame with the matching request id arrives, the context
// is cancelled, or the connection closes.
func (c *Connection) Request(ctx context.Context, t protocol.PacketType, payload []byte) ([]byte, error) {
	reqID := c.NextRequestID()
	ch := make(chan []byte, 1)

	c.pendingMu.Lock()
	c.pendingRequests[reqID] = ch
	c.pendingMu.Unlock()

	if err := c.SendPacketWithID(t, reqID, payload); err != nil {
		c.pendingMu.Lock()
		delete(c.pendingRequests, reqID)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pendingRequests, reqID)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// BeginSendBatch marks the start of a logical group of sends (e.g. a
// multi-file transfer) that should keep the connection open until the
// matching EndSendBatchAndMaybeClose.
func (c *Connection) BeginSendBatch() {
	c.activeSendBatches.Add(1)
}

// EndSendBatchAndMaybeClose closes out one BeginSendBatch. When the active
// batch count reaches zero, it calls CloseAfterFlush. Calling this with no
// active batch is a programmer error and returns ErrNoActiveBatch rather
// than closing a connection a concurrent sender may still be using.
func (c *Connection) EndSendBatchAndMaybeClose() error {
	n := c.activeSendBatches.Add(-1)
	if n < 0 {
		c.activeSendBatches.Add(1)
		return ErrNoActiveBatch
	}
	if n == 0 {
		c.CloseAfterFlush()
	}
	return nil
}

// Close immediately tears down the connection: marks it closing, fires
// onClose exactly once, and shuts down the underlying socket. The read
// loop observes the resulting I/O error on its next read and exits.
func (c *Connection) Close() {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		if c.onClose != nil {
			c.onClose()
		}
		c.connMu.Lock()
		_ = c.stream.Conn.Close()
		c.connMu.Unlock()
		close(c.closedCh)
		c.setState(StateClosed)
	})
}

// CloseAfterFlush marks the connection closing and pushes the sentinel
// (empty-bytes packet) onto the outgoing queue. The write loop drains any
// queued writes, flushes, and then calls Close — this is the graceful
// teardown path used after a file-send batch completes.
func (c *Connection) CloseAfterFlush() {
	c.closing.Store(true)
	c.setState(StateClosing)
	select {
	case c.outgoingCh <- outgoingItem{}:
	case <-c.closedCh:
	}
}

func (c *Connection) readLoop() {
	reader := bufio.NewReaderSize(c.stream.Conn, c.cfg.ReadBufferSize)
	defer func() {
		c.failPendingRequests()
		close(c.incomingCh)
		c.Close()
	}()

	for {
		frame, err := protocol.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.log.Debug("connection closed by peer")
			} else {
				c.log.Error("read error", "error", err)
			}
			return
		}
		c.metrics.recordReceived(protocol.LengthFieldSize + protocol.MinBodyLen + len(frame.Payload))

		c.pendingMu.Lock()
		ch, ok := c.pendingRequests[frame.RequestID]
		if ok {
			delete(c.pendingRequests, frame.RequestID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- frame.Payload
			continue
		}

		if frame.Type != protocol.SystemHeartbeat {
			c.log.Debug("received packet", "type", frame.Type.String(), "request_id", frame.RequestID)
		}
		c.incomingCh <- IncomingPacket{Type: frame.Type, RequestID: frame.RequestID, Payload: frame.Payload}
	}
}

func (c *Connection) writeLoop() {
	writer := bufio.NewWriterSize(c.stream.Conn, c.cfg.WriteBufferSize)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	var bytesSinceFlush int

	flush := func() {
		if err := writer.Flush(); err != nil {
			c.log.Error("flush error", "error", err)
		}
		bytesSinceFlush = 0
	}

loop:
	for {
		select {
		case item, ok := <-c.outgoingCh:
			if !ok || len(item.data) == 0 {
				break loop
			}
			if c.writeLimiter != nil {
				for n := len(item.data); n > 0; {
					step := min(n, c.writeLimiter.Burst())
					if err := c.writeLimiter.WaitN(context.Background(), step); err != nil {
						c.log.Error("rate limiter wait", "error", err)
						break
					}
					n -= step
				}
			}
			if _, err := writer.Write(item.data); err != nil {
				c.log.Error("write error", "error", err)
				if item.hasPermit {
					c.chunkPermits.Release(1)
				}
				break loop
			}
			c.metrics.recordSent(len(item.data))
			bytesSinceFlush += len(item.data)
			if item.hasPermit {
				c.chunkPermits.Release(1)
			}
			if bytesSinceFlush >= c.cfg.FlushThreshold {
				flush()
			}
		case <-ticker.C:
			if bytesSinceFlush > 0 {
				flush()
			}
		}
	}

	flush()
	c.Close()
}

func (c *Connection) failPendingRequests() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pendingRequests {
		close(ch)
		delete(c.pendingRequests, id)
	}
}

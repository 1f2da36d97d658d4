// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"io"
	"log/slog"
	"sync"

	"github.com/thiratt/nekoshare/lib/protocol"
)

// Handler processes one decoded packet's payload. Handlers own their
// payload slice; it is a private copy and safe to retain or mutate.
type Handler func(conn *Connection, payload []byte, requestID int32) error

// Router maps PacketType to Handler, plus an optional default invoked when
// no specific handler is registered.
type Router struct {
	mu       sync.RWMutex
	handlers map[protocol.PacketType]Handler
	def      Handler
	log      *slog.Logger
}

// NewRouter returns an empty Router. log may be nil, in which case a
// discarding logger is used.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{handlers: make(map[protocol.PacketType]Handler), log: log}
}

// Register installs h as the handler for t, replacing any previous handler.
func (r *Router) Register(t protocol.PacketType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// SetDefaultHandler installs h as the fallback invoked when Dispatch finds
// no type-specific handler.
func (r *Router) SetDefaultHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = h
}

// HasHandler reports whether a type-specific handler is registered for t.
func (r *Router) HasHandler(t protocol.PacketType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Unregister removes the handler for t, reporting whether one was present.
func (r *Router) Unregister(t protocol.PacketType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[t]; !ok {
		return false
	}
	delete(r.handlers, t)
	return true
}

// Clear removes every registered handler and the default handler.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[protocol.PacketType]Handler)
	r.def = nil
}

// Dispatch looks up a handler for t and invokes it with a private copy of
// payload. A handler error is logged and swallowed — it never propagates to
// the caller (the connection's read loop) so a misbehaving handler cannot
// kill the connection. Dispatch reports whether any handler (type-specific
// or default) ran.
func (r *Router) Dispatch(t protocol.PacketType, conn *Connection, payload []byte, requestID int32) bool {
	owned := make([]byte, len(payload))
	copy(owned, payload)

	r.mu.RLock()
	h := r.handlers[t]
	def := r.def
	r.mu.RUnlock()

	if h != nil {
		if err := h(conn, owned, requestID); err != nil {
			r.log.Error("handler error", "packet_type", t.String(), "error", err)
		}
		return true
	}
	if def != nil {
		if err := def(conn, owned, requestID); err != nil {
			r.log.Error("default handler error", "packet_type", t.String(), "error", err)
		}
		return true
	}
	r.log.Warn("no handler registered", "packet_type", t.String())
	return false
}

// RegisterPassthroughHandlers installs no-op acknowledging handlers for the
// auth/heartbeat packet types this module treats as out of scope: they
// exist in the wire protocol but have no behavior beyond an ack here.
func RegisterPassthroughHandlers(r *Router) {
	ack := func(conn *Connection, _ []byte, requestID int32) error {
		return conn.SendPacketWithID(protocol.Ack, requestID, nil)
	}
	r.Register(protocol.AuthLoginRequest, ack)
	r.Register(protocol.AuthLoginResponse, ack)
	r.Register(protocol.SystemHeartbeat, ack)
}

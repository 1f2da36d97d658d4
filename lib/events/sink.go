// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events defines the narrow event-sink interface the transport and
// file-transfer layers emit progress and connection-lifecycle notices
// through. It intentionally does not attempt to be a general pub/sub bus —
// the UI shell that would consume a richer bus is out of scope for this
// module.
package events

import (
	"sync/atomic"
	"time"
)

// Status is the lifecycle state carried by a Progress event.
type Status int

const (
	Processing Status = iota
	Success
	Failed
)

func (s Status) String() string {
	switch s {
	case Processing:
		return "processing"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress reports a file transfer's advancement, on either the send or
// receive side.
type Progress struct {
	TransferID      string
	FileID          string
	Status          Status
	SentBytes       int64
	ExpectedBytes   int64
	ProgressPercent int
	Err             error
}

// DataReceived mirrors a non-chunk packet arriving on a connection, for
// UI-facing diagnostics. FileChunk payloads are never forwarded this way
// (see session.Manager's consumer loop) to avoid flooding a
// slow sink with per-chunk noise; any payload over 1 KiB is replaced with
// an empty slice before being handed to the sink.
type DataReceived struct {
	ConnectionID string
	Type         string
	Payload      []byte
}

// Disconnected reports that a connection (and the pair-key session it
// backed, if any) has closed.
type Disconnected struct {
	ConnectionID string
	PairKey      string
}

// Event wraps one of Progress, DataReceived, or Disconnected with a
// monotonically increasing id and timestamp.
type Event struct {
	ID   int64
	Time time.Time
	Data any
}

// Sink is the collaborator the transport and file-transfer layers emit
// events through. Implementations must not block the caller: a full or
// slow sink is expected to drop events rather than apply backpressure to
// the transport, matching this module's "full event sink -> try-send, drop
// on full" design note.
type Sink interface {
	Emit(data any)
}

// Channel is a bounded, non-blocking Sink backed by a buffered channel,
// suitable for tests and for a demo UI to poll. Modeled on
// internal/events.Logger's subscription channel, trimmed to this module's
// three event kinds and a single subscriber instead of a general pub/sub
// registry. Emit is called concurrently by every connection's read-loop and
// handler goroutines, so nextID is a plain atomic counter rather than a
// struct field mutated in place.
type Channel struct {
	ch     chan Event
	nextID atomic.Int64
}

// NewChannel returns a Channel sink buffering up to capacity events before
// it starts dropping the newest ones.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan Event, capacity)}
}

// Emit implements Sink. It never blocks: if the channel is full, the event
// is dropped.
func (c *Channel) Emit(data any) {
	id := c.nextID.Add(1)
	e := Event{ID: id, Time: time.Now(), Data: data}
	select {
	case c.ch <- e:
	default:
	}
}

// Events returns the receive side of the channel for polling or ranging.
func (c *Channel) Events() <-chan Event { return c.ch }

// Close closes the underlying channel. Callers must not call Emit after
// Close.
func (c *Channel) Close() { close(c.ch) }

// Discard is a Sink that drops every event; useful as a default when no
// caller-supplied sink is configured.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(any) {}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import "time"

// Config tunes a Connection's buffering, flushing, and backpressure
// behavior. The zero value is not valid; use LANOptimized (or one of the
// other presets) as a starting point.
type Config struct {
	// ChunkSize bounds the payload size of a single FileChunk packet.
	ChunkSize int

	// WriteBufferSize and ReadBufferSize size the connection's buffered
	// I/O wrappers.
	WriteBufferSize int
	ReadBufferSize  int

	// FlushThreshold is the number of bytes written since the last flush
	// that forces an immediate flush from the write loop.
	FlushThreshold int

	// FlushInterval is the maximum time pending writes wait for a flush
	// when fewer than FlushThreshold bytes have accumulated.
	FlushInterval time.Duration

	// TCPNoDelay disables Nagle's algorithm on the underlying socket.
	TCPNoDelay bool

	// PreallocateFiles calls Truncate(size) on a freshly offered receive
	// file before any chunks arrive.
	PreallocateFiles bool

	// SyncOnComplete fsyncs a received file when its transfer finishes.
	SyncOnComplete bool

	// OutgoingChannelSize and IncomingChannelSize size the connection's
	// internal packet queues.
	OutgoingChannelSize int
	IncomingChannelSize int

	// MaxInFlightChunks bounds the number of FileChunk packets that may be
	// enqueued but not yet written into the write loop's buffered writer at
	// once. A permit is released on that write, not on the later flush.
	MaxInFlightChunks int

	// ConnectTimeout bounds a client's TCP dial.
	ConnectTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake on both sides: a
	// server's accept handshake and a client's dial handshake.
	TLSHandshakeTimeout time.Duration

	// AcceptTimeout bounds how long a single-shot accept server waits for
	// one incoming TCP connection before giving up.
	AcceptTimeout time.Duration

	// IdleTimeout closes a connection that has received nothing for this
	// long.
	IdleTimeout time.Duration

	// MaxBytesPerSecond caps the write loop's outbound throughput. Zero
	// disables the limiter (LANOptimized's default): there is no point
	// metering bytes on a link where the bottleneck is elsewhere.
	MaxBytesPerSecond int
}

// LANOptimized is the default preset: generous chunk size and buffers,
// suited to a fast local network.
func LANOptimized() Config {
	return Config{
		ChunkSize:           1 << 20,
		WriteBufferSize:     2 << 20,
		ReadBufferSize:      2 << 20,
		FlushThreshold:      4 << 20,
		FlushInterval:       50 * time.Millisecond,
		TCPNoDelay:          true,
		PreallocateFiles:    false,
		SyncOnComplete:      true,
		OutgoingChannelSize: 64,
		IncomingChannelSize: 64,
		MaxInFlightChunks:   8,
		ConnectTimeout:      10 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		AcceptTimeout:       30 * time.Second,
		IdleTimeout:         300 * time.Second,
		MaxBytesPerSecond:   0,
	}
}

// LowMemory trades throughput for a much smaller buffering footprint,
// suited to constrained devices.
func LowMemory() Config {
	c := LANOptimized()
	c.ChunkSize = 128 << 10
	c.WriteBufferSize = 256 << 10
	c.ReadBufferSize = 256 << 10
	c.FlushThreshold = 512 << 10
	c.OutgoingChannelSize = 16
	c.IncomingChannelSize = 16
	c.MaxInFlightChunks = 4
	return c
}

// WANOptimized trades per-chunk overhead for smaller chunks and deeper
// in-flight pipelining, suited to higher-latency links.
func WANOptimized() Config {
	c := LANOptimized()
	c.ChunkSize = 64 << 10
	c.TCPNoDelay = false
	c.MaxInFlightChunks = 32
	// Higher-latency links benefit from metering the write loop rather
	// than bursting a deep in-flight queue onto the wire at once.
	c.MaxBytesPerSecond = 4 << 20
	return c
}

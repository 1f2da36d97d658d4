// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport implements the connection runtime, packet router, and
// error model that sit directly on top of a TLS-or-plain byte stream.
package transport

import (
	"crypto/tls"
	"net"
)

// Kind of socket stream a Connection was constructed over. Go's net.Conn
// already uniformly exposes the read/write/close capability set across
// *net.TCPConn and *tls.Conn, so unlike the three-variant tagged enum the
// original implementation needs (to route each variant's poll_read through
// a different concrete type), a single net.Conn interface value suffices
// here. StreamKind exists purely so callers and logs can tell which path a
// given Connection took.
type StreamKind int

const (
	StreamPlain StreamKind = iota
	StreamClientTLS
	StreamServerTLS
)

func (k StreamKind) String() string {
	switch k {
	case StreamPlain:
		return "plain"
	case StreamClientTLS:
		return "client-tls"
	case StreamServerTLS:
		return "server-tls"
	default:
		return "unknown"
	}
}

// SocketStream pairs a net.Conn with the StreamKind it was established as.
type SocketStream struct {
	Conn net.Conn
	Kind StreamKind
}

// NewPlainStream wraps an unencrypted TCP connection.
func NewPlainStream(c net.Conn) SocketStream {
	return SocketStream{Conn: c, Kind: StreamPlain}
}

// NewClientTLSStream wraps a connection after a successful client-side TLS
// handshake (i.e. after dialing a server and authenticating it).
func NewClientTLSStream(c *tls.Conn) SocketStream {
	return SocketStream{Conn: c, Kind: StreamClientTLS}
}

// NewServerTLSStream wraps a connection after a successful server-side TLS
// handshake (i.e. after accepting and authenticating a client).
func NewServerTLSStream(c *tls.Conn) SocketStream {
	return SocketStream{Conn: c, Kind: StreamServerTLS}
}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a transport-layer Error, mirroring the original
// implementation's SocketError variants.
type Kind int

const (
	KindIO Kind = iota
	KindConnectionClosed
	KindTimeout
	KindParse
	KindAuthenticationFailed
	KindNotConnected
	KindAlreadyConnected
	KindInvalidPacketType
	KindPacketTooLarge
	KindServerError
	KindChannelError
	KindConfigError
	KindSendFailed
	KindConnectionNotFound
	KindRelayNotSupported
	KindNoActiveBatch
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindConnectionClosed:
		return "connection closed"
	case KindTimeout:
		return "timed out"
	case KindParse:
		return "parse error"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindNotConnected:
		return "not connected"
	case KindAlreadyConnected:
		return "already connected"
	case KindInvalidPacketType:
		return "invalid packet type"
	case KindPacketTooLarge:
		return "packet too large"
	case KindServerError:
		return "server error"
	case KindChannelError:
		return "channel error"
	case KindConfigError:
		return "configuration error"
	case KindSendFailed:
		return "send failed"
	case KindConnectionNotFound:
		return "connection not found"
	case KindRelayNotSupported:
		return "relay routing not supported"
	case KindNoActiveBatch:
		return "no active send batch"
	default:
		return "unknown error"
	}
}

// Error is the transport layer's typed error, carrying a Kind for callers
// to switch on plus a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

var (
	// ErrConnectionClosed is returned by operations attempted on, or
	// pending requests orphaned by, a closed connection.
	ErrConnectionClosed = &Error{Kind: KindConnectionClosed, Msg: "connection closed"}

	// ErrConnectionNotFound is returned by Manager.Disconnect for an
	// unknown pair key.
	ErrConnectionNotFound = &Error{Kind: KindConnectionNotFound, Msg: "connection not found"}

	// ErrRelayNotSupported reports that relay routing is unavailable; relay
	// transport is a non-goal of this module. session.Manager dials and
	// accepts Direct routes only and takes no route argument, so no function
	// in this module returns this error.
	ErrRelayNotSupported = &Error{Kind: KindRelayNotSupported, Msg: "relay routing is not implemented"}

	// ErrNoActiveBatch is returned by EndSendBatchAndMaybeClose when no
	// BeginSendBatch is currently open, rather than silently closing an
	// unrelated connection out from under a concurrent sender.
	ErrNoActiveBatch = &Error{Kind: KindNoActiveBatch, Msg: "end-send-batch called with no active batch"}
)

// WithConnectionContext wraps err with the owning connection's id, matching
// the original implementation's SocketResultExt::with_connection_context.
func WithConnectionContext(err error, connID string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "connection %q", connID)
}

// WithPacketContext wraps err with the packet type being processed,
// matching SocketResultExt::with_packet_context.
func WithPacketContext(err error, packetType fmt.Stringer) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "processing packet %q", packetType.String())
}

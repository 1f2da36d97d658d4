// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package session implements pair-key deduplicated connections and
// single-shot accept servers on top of lib/transport.
package session

import (
	"fmt"

	"github.com/google/uuid"
)

// RouteKind distinguishes a direct peer-to-peer link from a relayed one.
// Relay is accepted by LinkKey/PairKey construction but Manager has no
// relay dial path; see ErrRelayNotSupported.
type RouteKind int

const (
	Direct RouteKind = iota
	Relay
)

func (k RouteKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Relay:
		return "relay"
	default:
		return "unknown"
	}
}

// LinkKey identifies one side's view of a logical link: which device is
// local, which is the peer, and over what route kind.
type LinkKey struct {
	Local uuid.UUID
	Peer  uuid.UUID
	Route RouteKind
}

// DirectLinkKey builds a LinkKey over a direct route.
func DirectLinkKey(local, peer uuid.UUID) LinkKey {
	return LinkKey{Local: local, Peer: peer, Route: Direct}
}

// RelayLinkKey builds a LinkKey over a relayed route. Reserved: no relay
// transport exists yet.
func RelayLinkKey(local, peer uuid.UUID) LinkKey {
	return LinkKey{Local: local, Peer: peer, Route: Relay}
}

// PairKey is LinkKey canonicalized so either side of a link derives the
// same key independently: the two device ids are ordered rather than
// labeled local/peer.
type PairKey struct {
	A     uuid.UUID
	B     uuid.UUID
	Route RouteKind
}

// PairKey canonicalizes k by ordering Local/Peer so LinkKey{U_a,U_b,r} and
// LinkKey{U_b,U_a,r} produce an identical PairKey.
func (k LinkKey) PairKey() PairKey {
	a, b := k.Local, k.Peer
	if compareUUID(a, b) > 0 {
		a, b = b, a
	}
	return PairKey{A: a, B: b, Route: k.Route}
}

func (p PairKey) String() string {
	return fmt.Sprintf("%s:%s:%s", p.A, p.B, p.Route)
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

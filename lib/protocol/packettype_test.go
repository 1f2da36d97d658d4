// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import "testing"

func TestParsePacketTypeKnown(t *testing.T) {
	if got := ParsePacketType(0x46); got != FileFinish {
		t.Fatalf("expected FileFinish, got %v", got)
	}
}

func TestParsePacketTypeUnknown(t *testing.T) {
	if got := ParsePacketType(0x7F); got != Unknown {
		t.Fatalf("expected Unknown for unmapped byte, got %v", got)
	}
}

func TestRangePredicates(t *testing.T) {
	cases := []struct {
		t    PacketType
		pred func(PacketType) bool
		want bool
	}{
		{SystemHandshake, PacketType.IsSystem, true},
		{AuthLoginRequest, PacketType.IsAuth, true},
		{PeerListRequest, PacketType.IsPeer, true},
		{FileOffer, PacketType.IsFile, true},
		{FileChunk, PacketType.IsData, true},
		{FileOffer, PacketType.IsData, false},
		{DeviceRename, PacketType.IsDevice, true},
		{DebugLog, PacketType.IsDebug, true},
		{ErrorGeneric, PacketType.IsError, true},
		{PacketType(0x85), PacketType.IsTunnel, true},
		{FileOffer, PacketType.IsTunnel, false},
	}
	for _, c := range cases {
		if got := c.pred(c.t); got != c.want {
			t.Errorf("predicate on %v: want %v, got %v", c.t, c.want, got)
		}
	}
}

func TestStringFallsBackForUnknownByte(t *testing.T) {
	s := PacketType(0x7F).String()
	if s != "PacketType(0x7F)" {
		t.Fatalf("unexpected String() for unmapped byte: %q", s)
	}
}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"testing"

	"github.com/google/uuid"
)

// TestPairKeyCanonicalizationIsOrderIndependent covers scenario 3: both
// peers derive the same pair key regardless of which one is "local".
func TestPairKeyCanonicalizationIsOrderIndependent(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	k1 := DirectLinkKey(a, b).PairKey()
	k2 := DirectLinkKey(b, a).PairKey()

	if k1 != k2 {
		t.Fatalf("expected identical pair keys, got %v and %v", k1, k2)
	}
	if k1.A != a || k1.B != b {
		t.Fatalf("expected canonical order (A=min, B=max), got A=%v B=%v", k1.A, k1.B)
	}
}

func TestPairKeyDistinguishesRouteKind(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	direct := DirectLinkKey(a, b).PairKey()
	relay := RelayLinkKey(a, b).PairKey()

	if direct == relay {
		t.Fatal("expected direct and relay pair keys to differ")
	}
}

func TestPairKeyStringIsStable(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	k1 := DirectLinkKey(a, b).PairKey().String()
	k2 := DirectLinkKey(b, a).PairKey().String()
	if k1 != k2 {
		t.Fatalf("expected stable string form, got %q vs %q", k1, k2)
	}
}

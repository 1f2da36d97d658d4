// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"strings"
	"testing"

	"github.com/thiratt/nekoshare/lib/protocol"
)

func TestWithConnectionContextWrapsMessage(t *testing.T) {
	err := WithConnectionContext(ErrConnectionClosed, "conn-1")
	if err == nil || !strings.Contains(err.Error(), "conn-1") {
		t.Fatalf("expected wrapped error to mention connection id, got %v", err)
	}
}

func TestWithPacketContextWrapsMessage(t *testing.T) {
	err := WithPacketContext(ErrConnectionClosed, protocol.FileOffer)
	if err == nil || !strings.Contains(err.Error(), "FileOffer") {
		t.Fatalf("expected wrapped error to mention packet type, got %v", err)
	}
}

func TestContextHelpersPassThroughNil(t *testing.T) {
	if err := WithConnectionContext(nil, "x"); err != nil {
		t.Fatalf("expected nil passthrough, got %v", err)
	}
	if err := WithPacketContext(nil, protocol.FileOffer); err != nil {
		t.Fatalf("expected nil passthrough, got %v", err)
	}
}

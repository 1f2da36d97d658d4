// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"errors"
	"testing"

	"github.com/thiratt/nekoshare/lib/protocol"
)

func TestRouterDispatchesRegisteredHandler(t *testing.T) {
	r := NewRouter(nil)
	var got []byte
	r.Register(protocol.FileOffer, func(_ *Connection, payload []byte, _ int32) error {
		got = payload
		return nil
	})

	handled := r.Dispatch(protocol.FileOffer, nil, []byte("hello"), 1)
	if !handled {
		t.Fatal("expected dispatch to report handled")
	}
	if string(got) != "hello" {
		t.Fatalf("expected handler to receive payload, got %q", got)
	}
}

func TestRouterPayloadIsPrivateCopy(t *testing.T) {
	r := NewRouter(nil)
	var got []byte
	r.Register(protocol.FileOffer, func(_ *Connection, payload []byte, _ int32) error {
		got = payload
		return nil
	})

	original := []byte("hello")
	r.Dispatch(protocol.FileOffer, nil, original, 1)
	original[0] = 'X'
	if got[0] == 'X' {
		t.Fatal("handler payload must be a private copy, not aliased to the caller's slice")
	}
}

func TestRouterFallsBackToDefaultHandler(t *testing.T) {
	r := NewRouter(nil)
	invoked := false
	r.SetDefaultHandler(func(_ *Connection, _ []byte, _ int32) error {
		invoked = true
		return nil
	})

	handled := r.Dispatch(protocol.TextMessage, nil, nil, 0)
	if !handled || !invoked {
		t.Fatal("expected default handler to run")
	}
}

func TestRouterReportsUnhandled(t *testing.T) {
	r := NewRouter(nil)
	if r.Dispatch(protocol.TextMessage, nil, nil, 0) {
		t.Fatal("expected no handler to report false")
	}
}

func TestRouterSwallowsHandlerError(t *testing.T) {
	r := NewRouter(nil)
	r.Register(protocol.FileOffer, func(_ *Connection, _ []byte, _ int32) error {
		return errors.New("boom")
	})
	// Dispatch must not panic or propagate the handler's error.
	if !r.Dispatch(protocol.FileOffer, nil, nil, 0) {
		t.Fatal("expected dispatch to report handled even though the handler errored")
	}
}

func TestRouterUnregisterAndClear(t *testing.T) {
	r := NewRouter(nil)
	r.Register(protocol.FileOffer, func(*Connection, []byte, int32) error { return nil })
	if !r.HasHandler(protocol.FileOffer) {
		t.Fatal("expected handler to be registered")
	}
	if !r.Unregister(protocol.FileOffer) {
		t.Fatal("expected Unregister to report true for a registered handler")
	}
	if r.HasHandler(protocol.FileOffer) {
		t.Fatal("expected handler to be gone after Unregister")
	}

	r.Register(protocol.FileOffer, func(*Connection, []byte, int32) error { return nil })
	r.SetDefaultHandler(func(*Connection, []byte, int32) error { return nil })
	r.Clear()
	if r.HasHandler(protocol.FileOffer) {
		t.Fatal("expected Clear to remove all handlers")
	}
	if r.Dispatch(protocol.FileOffer, nil, nil, 0) {
		t.Fatal("expected Clear to remove the default handler too")
	}
}

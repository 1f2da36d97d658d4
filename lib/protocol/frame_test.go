// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"io"
	"testing"
)

// TestRoundTripFrameScenario exercises the worked example: encode
// (FileFinish, req_id=42, payload = u16_len("abc") then "abc"), decode it
// back, and check the exact on-wire byte count and length prefix.
func TestRoundTripFrameScenario(t *testing.T) {
	w := NewWriter(8)
	w.WriteString("abc")

	var wire bytes.Buffer
	f := Frame{Type: FileFinish, RequestID: 42, Payload: w.Bytes()}
	if err := WriteFrame(&wire, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got := wire.Bytes()
	if len(got) != 14 {
		t.Fatalf("expected 14 bytes on the wire, got %d (%x)", len(got), got)
	}
	if !bytes.Equal(got[0:4], []byte{0x0A, 0x00, 0x00, 0x00}) {
		t.Fatalf("expected length prefix 0x0A000000, got %x", got[0:4])
	}

	decoded, err := ReadFrame(&wire)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	wantPayload := []byte{0x03, 0x00, 'a', 'b', 'c'}
	if decoded.Type != FileFinish || decoded.RequestID != 42 || !bytes.Equal(decoded.Payload, wantPayload) {
		t.Fatalf("decoded frame mismatch: got type=%v req=%d payload=%x", decoded.Type, decoded.RequestID, decoded.Payload)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{Type: SystemHandshake, RequestID: 0, Payload: nil},
		{Type: FileChunk, RequestID: -1, Payload: []byte{1, 2, 3, 4, 5}},
		{Type: FileFinish, RequestID: 42, Payload: []byte("abc")},
		{Type: TextMessage, RequestID: 123456, Payload: bytes.Repeat([]byte{0xFF}, 4096)},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, c); err != nil {
			t.Fatalf("WriteFrame(%v): %v", c.Type, err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%v): %v", c.Type, err)
		}
		if got.Type != c.Type || got.RequestID != c.RequestID || !bytes.Equal(got.Payload, c.Payload) {
			t.Fatalf("round trip mismatch: want %+v got %+v", c, got)
		}
	}
}

func TestReadFrameShortHeaderIsEOF(t *testing.T) {
	r := bytes.NewReader([]byte{0x01, 0x02})
	_, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected error on truncated header")
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	r := bytes.NewReader(nil)
	_, err := ReadFrame(r)
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrameBodyTooShortIsError(t *testing.T) {
	// body_len of 3 is below MinBodyLen (5); decoding should surface an
	// explicit error rather than panic on a short body slice.
	var buf bytes.Buffer
	buf.Write([]byte{0x03, 0x00, 0x00, 0x00})
	buf.Write([]byte{1, 2, 3})
	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error for body_len < MinBodyLen")
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Type: FileChunk, Payload: make([]byte, MaxPayloadSize+1)}
	err := WriteFrame(&buf, f)
	if err == nil {
		t.Fatal("expected FrameTooLargeError")
	}
	if _, ok := err.(*FrameTooLargeError); !ok {
		t.Fatalf("expected *FrameTooLargeError, got %T", err)
	}
}

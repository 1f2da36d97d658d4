// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"testing"
	"testing/quick"
)

func TestWriterReaderPrimitivesRoundTrip(t *testing.T) {
	check := func(u8 uint8, i32 int32, u32 uint32, u64 uint64, b bool, s string, data []byte) bool {
		w := NewWriter(0)
		w.WriteU8(u8)
		w.WriteI32(i32)
		w.WriteU32(u32)
		w.WriteU64(u64)
		w.WriteBool(b)
		if len(s) > 65535 {
			s = s[:65535]
		}
		w.WriteString(s)
		w.WriteBytes(data)

		r := NewReader(w.Bytes())
		gu8, err := r.ReadU8()
		if err != nil || gu8 != u8 {
			return false
		}
		gi32, err := r.ReadI32()
		if err != nil || gi32 != i32 {
			return false
		}
		gu32, err := r.ReadU32()
		if err != nil || gu32 != u32 {
			return false
		}
		gu64, err := r.ReadU64()
		if err != nil || gu64 != u64 {
			return false
		}
		gb, err := r.ReadBool()
		if err != nil || gb != b {
			return false
		}
		gs, err := r.ReadString()
		if err != nil || gs != s {
			return false
		}
		gdata, err := r.ReadBytes()
		if err != nil || !bytes.Equal(gdata, data) {
			return false
		}
		return r.Remaining() == 0
	}
	if err := quick.Check(check, nil); err != nil {
		t.Fatal(err)
	}
}

func TestReaderUnderflowReportsOffsetAndSizes(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadU32()
	if err == nil {
		t.Fatal("expected underflow error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Offset != 0 || pe.Need != 4 || pe.Have != 1 {
		t.Fatalf("unexpected ParseError fields: %+v", pe)
	}
}

func TestReadStringUnderflow(t *testing.T) {
	// length prefix claims 10 bytes but only 2 are present.
	r := NewReader([]byte{0x0A, 0x00, 'h', 'i'})
	_, err := r.ReadString()
	if err == nil {
		t.Fatal("expected underflow error reading truncated string body")
	}
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	// length prefix claims 2 bytes; 0xFF 0xFE is not valid UTF-8.
	r := NewReader([]byte{0x02, 0x00, 0xFF, 0xFE})
	_, err := r.ReadString()
	if err == nil {
		t.Fatal("expected invalid UTF-8 error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Msg != "invalid UTF-8" {
		t.Fatalf("expected invalid UTF-8 message, got %q", pe.Msg)
	}
}

func TestReadBytesUnderflow(t *testing.T) {
	r := NewReader([]byte{0x05, 0x00, 0x00, 0x00, 1, 2})
	_, err := r.ReadBytes()
	if err == nil {
		t.Fatal("expected underflow error reading truncated byte slice")
	}
}

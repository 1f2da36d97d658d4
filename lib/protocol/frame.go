// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// LengthFieldSize is the 4-byte body-length prefix.
	LengthFieldSize = 4

	// MinBodyLen is the smallest legal body: u8 type + i32 request_id, no
	// payload.
	MinBodyLen = 5

	// MaxPayloadSize bounds a single frame's payload at 16 MiB, protecting
	// against a malicious or corrupt length prefix causing an unbounded
	// allocation.
	MaxPayloadSize = 16 * 1024 * 1024
)

// Frame is one complete packet: a type tag, a caller-chosen request id used
// to correlate responses, and an opaque payload. Payload is whatever bytes
// the sender wrote after the header — if the sender encoded a string with a
// length prefix, that prefix is part of Payload, not stripped by framing.
type Frame struct {
	Type      PacketType
	RequestID int32
	Payload   []byte
}

// FrameTooLargeError is returned when a body exceeds MinBodyLen+MaxPayloadSize.
type FrameTooLargeError struct {
	Size int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame payload too large: %d bytes exceeds max %d", e.Size, MaxPayloadSize)
}

// WriteFrame serializes f onto w as:
//
//	u32 body_len   (little-endian; body_len = 1 [type] + 4 [request id] + len(payload))
//	u8  type
//	i32 request_id (little-endian)
//	payload
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return &FrameTooLargeError{Size: len(f.Payload)}
	}
	bodyLen := uint32(MinBodyLen + len(f.Payload))

	buf := make([]byte, 0, LengthFieldSize+int(bodyLen))
	var lenField [4]byte
	binary.LittleEndian.PutUint32(lenField[:], bodyLen)
	buf = append(buf, lenField[:]...)
	buf = append(buf, byte(f.Type))
	var reqID [4]byte
	binary.LittleEndian.PutUint32(reqID[:], uint32(f.RequestID))
	buf = append(buf, reqID[:]...)
	buf = append(buf, f.Payload...)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads and decodes exactly one frame from r, blocking until the
// full frame has arrived or an error (including io.EOF on a clean stream
// close) occurs.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenField [LengthFieldSize]byte
	if _, err := io.ReadFull(r, lenField[:]); err != nil {
		return Frame{}, err
	}
	bodyLen := binary.LittleEndian.Uint32(lenField[:])

	if bodyLen < MinBodyLen {
		return Frame{}, fmt.Errorf("frame body length %d smaller than minimum %d", bodyLen, MinBodyLen)
	}
	if bodyLen-MinBodyLen > MaxPayloadSize {
		return Frame{}, &FrameTooLargeError{Size: int(bodyLen - MinBodyLen)}
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	pt := ParsePacketType(body[0])
	reqID := int32(binary.LittleEndian.Uint32(body[1:5]))
	payload := body[5:]

	return Frame{Type: pt, RequestID: reqID, Payload: payload}, nil
}

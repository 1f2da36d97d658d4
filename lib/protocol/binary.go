// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// ParseError is returned by Reader methods when the underlying buffer does
// not hold enough bytes to satisfy the read, or when a read byte sequence
// fails a content check (currently only ReadString's UTF-8 validation). Msg
// overrides the default underflow message when set.
type ParseError struct {
	Offset int
	Need   int
	Have   int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s at offset %d", e.Msg, e.Offset)
	}
	return fmt.Sprintf("buffer underflow at offset %d: need %d, have %d", e.Offset, e.Need, e.Have)
}

// Writer accumulates a little-endian byte stream for a single outgoing
// packet payload. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf as its initial backing capacity hint.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteI32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteString writes a u16 length prefix followed by the UTF-8 bytes of s.
// s must encode to at most 65535 bytes; callers are expected to validate
// this ahead of time since payload sizes are bounded well below that by
// other invariants (file names, text messages).
func (w *Writer) WriteString(s string) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	w.buf = append(w.buf, tmp[:]...)
	w.buf = append(w.buf, s...)
}

// WriteBytes writes a u32 length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader consumes a little-endian byte stream produced by Writer.
type Reader struct {
	buf    []byte
	offset int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.offset }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return &ParseError{Offset: r.offset, Need: n, Have: r.Remaining()}
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.offset]
	r.offset++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) ReadI32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.offset:])
	r.offset += 4
	return int32(v), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.offset:])
	r.offset += 8
	return v, nil
}

func (r *Reader) ReadString() (string, error) {
	if err := r.need(2); err != nil {
		return "", err
	}
	n := int(binary.LittleEndian.Uint16(r.buf[r.offset:]))
	r.offset += 2
	if err := r.need(n); err != nil {
		return "", err
	}
	raw := r.buf[r.offset : r.offset+n]
	if !utf8.Valid(raw) {
		return "", &ParseError{Offset: r.offset, Msg: "invalid UTF-8"}
	}
	s := string(raw)
	r.offset += n
	return s, nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	if err := r.need(4); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.offset:]))
	r.offset += 4
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.offset:r.offset+n])
	r.offset += n
	return b, nil
}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package filetransfer implements the receive-side state machine and the
// send-side driver for streaming files over a transport.Connection.
package filetransfer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thiratt/nekoshare/lib/events"
	"github.com/thiratt/nekoshare/lib/protocol"
	"github.com/thiratt/nekoshare/lib/transport"
)

// progressStep is the byte interval at which receive/send progress events
// are emitted, beyond always emitting at 0% and 100%.
const progressStep = 256 * 1024

// ReceiveBaseDirFunc resolves the directory newly offered files should be
// written into. It returns ok=false when no override is configured, in
// which case the registry falls back to the OS Downloads directory.
type ReceiveBaseDirFunc func() (dir string, ok bool)

type receiveKey struct {
	ConnID string
	FileID string
}

type receiveState struct {
	transferID      string
	fileID          string
	name            string
	expectedSize    int64
	receivedSize    atomic.Int64
	lastEmittedSize atomic.Int64
	startedAt       time.Time

	writeMu sync.Mutex
	file    *os.File
	writer  *bufio.Writer
}

// Registry is the receive-side state machine, keyed by (connection id, file
// id), for the FileOffer/FileChunk/FileFinish packet sequence.
type Registry struct {
	cfg            transport.Config
	sink           events.Sink
	receiveBaseDir ReceiveBaseDirFunc
	log            *slog.Logger

	mu        sync.Mutex
	transfers map[receiveKey]*receiveState
}

// NewRegistry returns a Registry using cfg's buffering/sync options and
// emitting progress through sink (events.Discard if nil).
func NewRegistry(cfg transport.Config, sink events.Sink, receiveBaseDir ReceiveBaseDirFunc, log *slog.Logger) *Registry {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:            cfg,
		sink:           sink,
		receiveBaseDir: receiveBaseDir,
		log:            log,
		transfers:      make(map[receiveKey]*receiveState),
	}
}

// RegisterHandlers installs this registry's handlers on r for FileOffer,
// FileChunk, and FileFinish.
func (reg *Registry) RegisterHandlers(r *transport.Router) {
	r.Register(protocol.FileOffer, reg.handleFileOffer)
	r.Register(protocol.FileChunk, reg.handleFileChunk)
	r.Register(protocol.FileFinish, reg.handleFileFinish)
}

type offerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

func transferIDFromFileID(fileID string) string {
	if i := strings.IndexByte(fileID, ':'); i >= 0 {
		return fileID[:i]
	}
	return fileID
}

func (reg *Registry) resolveDestinationDir() (string, error) {
	if reg.receiveBaseDir != nil {
		if dir, ok := reg.receiveBaseDir(); ok {
			if err := os.MkdirAll(dir, 0o755); err == nil {
				return dir, nil
			}
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("filetransfer: resolve downloads directory: %w", err)
	}
	dir := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filetransfer: create downloads directory: %w", err)
	}
	return dir, nil
}

func (reg *Registry) handleFileOffer(conn *transport.Connection, payload []byte, _ int32) error {
	var offer offerPayload
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("filetransfer: decode FileOffer: %w", err)
	}

	dir, err := reg.resolveDestinationDir()
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, filepath.Base(offer.Name))
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("filetransfer: open %s: %w", dest, err)
	}

	if reg.cfg.PreallocateFiles && offer.Size > 0 {
		_ = f.Truncate(int64(offer.Size)) // best effort
	}

	st := &receiveState{
		transferID:   transferIDFromFileID(offer.ID),
		fileID:       offer.ID,
		name:         offer.Name,
		expectedSize: int64(offer.Size),
		startedAt:    time.Now(),
		file:         f,
		writer:       bufio.NewWriterSize(f, reg.cfg.WriteBufferSize),
	}

	key := receiveKey{ConnID: conn.ID(), FileID: offer.ID}
	reg.mu.Lock()
	reg.transfers[key] = st
	reg.mu.Unlock()

	reg.sink.Emit(events.Progress{
		TransferID: st.transferID, FileID: st.fileID,
		Status: events.Processing, SentBytes: 0, ExpectedBytes: st.expectedSize, ProgressPercent: 0,
	})
	return nil
}

func (reg *Registry) handleFileChunk(conn *transport.Connection, payload []byte, _ int32) error {
	r := protocol.NewReader(payload)
	fileID, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("filetransfer: decode FileChunk file id: %w", err)
	}
	chunk := payload[len(payload)-r.Remaining():]

	key := receiveKey{ConnID: conn.ID(), FileID: fileID}
	reg.mu.Lock()
	st, ok := reg.transfers[key]
	reg.mu.Unlock()
	if !ok {
		reg.log.Warn("chunk for unknown transfer", "file_id", fileID)
		return nil
	}

	st.writeMu.Lock()
	_, werr := st.writer.Write(chunk)
	st.writeMu.Unlock()
	if werr != nil {
		return fmt.Errorf("filetransfer: write chunk for %s: %w", fileID, werr)
	}

	received := st.receivedSize.Add(int64(len(chunk)))
	reg.maybeEmitProgress(st, received)

	if st.expectedSize > 0 && received >= st.expectedSize {
		reg.finishReceive(st)
		reg.mu.Lock()
		delete(reg.transfers, key)
		reg.mu.Unlock()
	}
	return nil
}

func (reg *Registry) handleFileFinish(conn *transport.Connection, payload []byte, _ int32) error {
	r := protocol.NewReader(payload)
	fileID, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("filetransfer: decode FileFinish file id: %w", err)
	}

	key := receiveKey{ConnID: conn.ID(), FileID: fileID}
	reg.mu.Lock()
	st, ok := reg.transfers[key]
	delete(reg.transfers, key)
	reg.mu.Unlock()
	if !ok {
		reg.log.Warn("finish for unknown transfer", "file_id", fileID)
		return nil
	}

	reg.finishReceive(st)
	return nil
}

func (reg *Registry) finishReceive(st *receiveState) {
	st.writeMu.Lock()
	flushErr := st.writer.Flush()
	if flushErr == nil && reg.cfg.SyncOnComplete {
		_ = st.file.Sync()
	}
	closeErr := st.file.Close()
	st.writeMu.Unlock()

	if flushErr != nil || closeErr != nil {
		reg.log.Error("finish receive failed", "file_id", st.fileID, "flush_error", flushErr, "close_error", closeErr)
		reg.sink.Emit(events.Progress{
			TransferID: st.transferID, FileID: st.fileID, Status: events.Failed,
			SentBytes: st.receivedSize.Load(), ExpectedBytes: st.expectedSize,
			ProgressPercent: progressPercent(st.receivedSize.Load(), st.expectedSize),
			Err:             firstNonNil(flushErr, closeErr),
		})
		return
	}

	reg.log.Debug("receive complete", "file_id", st.fileID, "bytes", st.receivedSize.Load())
	reg.sink.Emit(events.Progress{
		TransferID: st.transferID, FileID: st.fileID, Status: events.Success,
		SentBytes: st.receivedSize.Load(), ExpectedBytes: st.expectedSize, ProgressPercent: 100,
	})
}

func (reg *Registry) maybeEmitProgress(st *receiveState, received int64) {
	last := st.lastEmittedSize.Load()
	atBoundary := st.expectedSize > 0 && received >= st.expectedSize
	if !atBoundary && received-last < progressStep {
		return
	}
	st.lastEmittedSize.Store(received)
	reg.sink.Emit(events.Progress{
		TransferID: st.transferID, FileID: st.fileID, Status: events.Processing,
		SentBytes: received, ExpectedBytes: st.expectedSize,
		ProgressPercent: progressPercent(received, st.expectedSize),
	})
}

func progressPercent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(done * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

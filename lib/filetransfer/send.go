// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filetransfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/thiratt/nekoshare/lib/events"
	"github.com/thiratt/nekoshare/lib/protocol"
	"github.com/thiratt/nekoshare/lib/transport"
)

// SendDriver drives a multi-file send over one transport.Connection,
// wrapping the whole batch in BeginSendBatch/EndSendBatchAndMaybeClose so
// the connection stays open until every file has been offered, chunked,
// and finished.
type SendDriver struct {
	cfg  transport.Config
	sink events.Sink
	log  *slog.Logger
}

// NewSendDriver returns a SendDriver using cfg.ChunkSize for read
// granularity and emitting progress through sink (events.Discard if nil).
func NewSendDriver(cfg transport.Config, sink events.Sink, log *slog.Logger) *SendDriver {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &SendDriver{cfg: cfg, sink: sink, log: log}
}

// SendFiles sends every path in paths over conn as one batch identified by
// transferID, offering, chunking, and finishing each file in turn. The
// connection is wrapped in BeginSendBatch/EndSendBatchAndMaybeClose so it
// is only closed once every file in the batch has been written.
func (d *SendDriver) SendFiles(ctx context.Context, conn *transport.Connection, transferID string, paths []string) error {
	conn.BeginSendBatch()
	defer func() {
		if err := conn.EndSendBatchAndMaybeClose(); err != nil {
			d.log.Error("end send batch", "error", err)
		}
	}()

	for _, path := range paths {
		if err := d.sendOne(ctx, conn, transferID, path); err != nil {
			return err
		}
	}
	return nil
}

func (d *SendDriver) sendOne(ctx context.Context, conn *transport.Connection, transferID, path string) error {
	fileID := transferID + ":" + uuid.NewString()

	// fail emits a single Failed progress event for the batch before
	// returning err, per the "on any step failure" requirement covering
	// every early-return path below, not just the chunk-streaming one.
	fail := func(sent, expected int64, err error) error {
		d.sink.Emit(events.Progress{
			TransferID: transferID, FileID: fileID, Status: events.Failed,
			SentBytes: sent, ExpectedBytes: expected, ProgressPercent: progressPercent(sent, expected), Err: err,
		})
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(0, 0, fmt.Errorf("filetransfer: open %s: %w", path, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fail(0, 0, fmt.Errorf("filetransfer: stat %s: %w", path, err))
	}

	name := filepath.Base(path)
	size := info.Size()

	d.sink.Emit(events.Progress{
		TransferID: transferID, FileID: fileID, Status: events.Processing,
		SentBytes: 0, ExpectedBytes: size, ProgressPercent: 0,
	})

	offer, err := json.Marshal(offerPayload{ID: fileID, Name: name, Size: uint64(size)})
	if err != nil {
		return fail(0, size, fmt.Errorf("filetransfer: encode offer for %s: %w", path, err))
	}
	if _, err := conn.SendPacket(protocol.FileOffer, offer); err != nil {
		return fail(0, size, fmt.Errorf("filetransfer: send offer for %s: %w", path, err))
	}

	sent, err := d.streamChunks(ctx, conn, fileID, transferID, f, size)
	if err != nil {
		return fail(sent, size, err)
	}

	w := protocol.NewWriter(len(fileID))
	w.WriteString(fileID)
	if _, err := conn.SendPacket(protocol.FileFinish, w.Bytes()); err != nil {
		return fail(sent, size, fmt.Errorf("filetransfer: send finish for %s: %w", path, err))
	}

	d.sink.Emit(events.Progress{
		TransferID: transferID, FileID: fileID, Status: events.Success,
		SentBytes: size, ExpectedBytes: size, ProgressPercent: 100,
	})
	return nil
}

func (d *SendDriver) streamChunks(ctx context.Context, conn *transport.Connection, fileID, transferID string, r io.Reader, size int64) (int64, error) {
	buf := make([]byte, d.cfg.ChunkSize)
	var sent, lastEmitted int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := conn.SendChunk(ctx, fileID, buf[:n]); sendErr != nil {
				return sent, fmt.Errorf("filetransfer: send chunk for %s: %w", fileID, sendErr)
			}
			sent += int64(n)
			if sent-lastEmitted >= progressStep || sent >= size {
				lastEmitted = sent
				d.sink.Emit(events.Progress{
					TransferID: transferID, FileID: fileID, Status: events.Processing,
					SentBytes: sent, ExpectedBytes: size, ProgressPercent: progressPercent(sent, size),
				})
			}
		}
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("filetransfer: read %s: %w", fileID, err)
		}
	}
}

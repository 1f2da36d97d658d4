// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filetransfer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thiratt/nekoshare/lib/events"
	"github.com/thiratt/nekoshare/lib/transport"
)

func pumpIncoming(t *testing.T, conn *transport.Connection, incoming <-chan transport.IncomingPacket, router *transport.Router) {
	t.Helper()
	go func() {
		for pkt := range incoming {
			router.Dispatch(pkt.Type, conn, pkt.Payload, pkt.RequestID)
		}
	}()
}

func testTransferConfig() transport.Config {
	c := transport.LANOptimized()
	c.ChunkSize = 1 << 20 // 1 MiB, matching scenario 2
	c.OutgoingChannelSize = 32
	c.IncomingChannelSize = 32
	c.MaxInFlightChunks = 4
	c.FlushInterval = 5 * time.Millisecond
	return c
}

// TestSingleFileTransferEndToEnd covers scenario 2: a 3 MiB file sent with
// a 1 MiB chunk size arrives byte-for-byte on the receiving side, and the
// sending side sees at least a first (0%) and a last (success) progress
// event. Receive-side progress events are recorded but not asserted.
func TestSingleFileTransferEndToEnd(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "payload.bin")
	const fileSize = 3 * 1 << 20 // 3 MiB
	content := make([]byte, fileSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := testTransferConfig()

	var recvEvents []events.Progress
	recvSink := recordingSink(&recvEvents)

	recvRouter := transport.NewRouter(nil)
	registry := NewRegistry(cfg, recvSink, func() (string, bool) { return dstDir, true }, nil)
	registry.RegisterHandlers(recvRouter)

	serverSide, serverIncoming := transport.NewConnection("server", transport.NewPlainStream(serverConn), cfg, nil, nil)
	pumpIncoming(t, serverSide, serverIncoming, recvRouter)

	clientSide, clientIncoming := transport.NewConnection("client", transport.NewPlainStream(clientConn), cfg, nil, nil)
	clientRouter := transport.NewRouter(nil)
	pumpIncoming(t, clientSide, clientIncoming, clientRouter)

	var sendEvents []events.Progress
	sendSink := recordingSink(&sendEvents)
	driver := NewSendDriver(cfg, sendSink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.SendFiles(ctx, clientSide, "transfer-1", []string{srcPath}); err != nil {
		t.Fatalf("SendFiles: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	dstPath := filepath.Join(dstDir, "payload.bin")
	for {
		info, err := os.Stat(dstPath)
		if err == nil && info.Size() == int64(fileSize) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for received file (err=%v)", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("read received file: %v", err)
	}
	if len(got) != len(content) {
		t.Fatalf("received size = %d, want %d", len(got), len(content))
	}
	for i := range content {
		if got[i] != content[i] {
			t.Fatalf("byte mismatch at offset %d", i)
		}
	}

	if len(sendEvents) < 2 {
		t.Fatalf("expected at least 2 send-side progress events, got %d", len(sendEvents))
	}
	if sendEvents[0].ProgressPercent != 0 {
		t.Errorf("expected first send event at 0%%, got %d", sendEvents[0].ProgressPercent)
	}
	if last := sendEvents[len(sendEvents)-1]; last.Status != events.Success {
		t.Errorf("expected last send event to be success, got %v", last.Status)
	}
}

func recordingSink(dst *[]events.Progress) events.Sink {
	return sinkFunc(func(data any) {
		if p, ok := data.(events.Progress); ok {
			*dst = append(*dst, p)
		}
	})
}

type sinkFunc func(data any)

func (f sinkFunc) Emit(data any) { f(data) }

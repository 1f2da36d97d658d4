// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command nekoshared is a minimal demo binary exercising the session
// manager, transport, and file-transfer layers end to end: print this
// device's fingerprint, wait for one peer to connect and send files, or
// dial a peer and send files to it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/thiratt/nekoshare/lib/events"
	"github.com/thiratt/nekoshare/lib/filetransfer"
	"github.com/thiratt/nekoshare/lib/keys"
	"github.com/thiratt/nekoshare/lib/locations"
	"github.com/thiratt/nekoshare/lib/session"
	"github.com/thiratt/nekoshare/lib/transport"
)

type cli struct {
	Profile string `enum:"lan,wan,lowmem" default:"lan" help:"Transport tuning preset."`

	Fingerprint fingerprintCmd `cmd:"" help:"Print this device's id and certificate fingerprint."`
	Serve       serveCmd       `cmd:"" help:"Wait for one peer to connect and receive whatever it sends."`
	Send        sendCmd        `cmd:"" help:"Connect to a peer and send files to it."`
}

func main() {
	var params cli
	ctx := kong.Parse(&params)
	ctx.FatalIfErrorf(ctx.Run(&params))
}

func transportConfig(profile string) transport.Config {
	switch profile {
	case "wan":
		return transport.WANOptimized()
	case "lowmem":
		return transport.LowMemory()
	default:
		return transport.LANOptimized()
	}
}

func loadIdentity() (keys.KeyDer, error) {
	dir, err := locations.KeyDir()
	if err != nil {
		return keys.KeyDer{}, fmt.Errorf("resolve key directory: %w", err)
	}
	k, err := keys.GetOrCreate(dir, "nekoshare.local")
	if err != nil {
		return keys.KeyDer{}, fmt.Errorf("load identity: %w", err)
	}
	return k, nil
}

func parseDeviceID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid device id %q: %w", s, err)
	}
	return id, nil
}

// logProgress drains ch, printing each Progress event, until ch is closed
// or ctx is cancelled.
func logProgress(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			p, ok := e.Data.(events.Progress)
			if !ok {
				continue
			}
			if p.Err != nil {
				fmt.Printf("[%s] %s: %s (%d%%): %v\n", p.TransferID, p.FileID, p.Status, p.ProgressPercent, p.Err)
				continue
			}
			fmt.Printf("[%s] %s: %s (%d%%)\n", p.TransferID, p.FileID, p.Status, p.ProgressPercent)
		case <-ctx.Done():
			return
		}
	}
}

type fingerprintCmd struct{}

func (c *fingerprintCmd) Run(_ *cli) error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}
	fmt.Println(id.Fingerprint)
	return nil
}

type serveCmd struct {
	DeviceID        string `arg:"" help:"This device's UUID."`
	PeerID          string `arg:"" help:"The UUID of the peer allowed to connect."`
	PeerFingerprint string `arg:"" help:"The peer's pinned certificate fingerprint."`
}

func (c *serveCmd) Run(parent *cli) error {
	cfg := transportConfig(parent.Profile)

	local, err := parseDeviceID(c.DeviceID)
	if err != nil {
		return err
	}
	peer, err := parseDeviceID(c.PeerID)
	if err != nil {
		return err
	}

	id, err := loadIdentity()
	if err != nil {
		return err
	}
	cert, err := id.Certificate()
	if err != nil {
		return fmt.Errorf("build tls certificate: %w", err)
	}

	sink := events.NewChannel(64)
	router := transport.NewRouter(nil)
	transport.RegisterPassthroughHandlers(router)

	receiveDir := func() (string, bool) { return "", false } // fall back to Downloads
	registry := filetransfer.NewRegistry(cfg, sink, receiveDir, nil)
	registry.RegisterHandlers(router)

	mgr := session.NewManager(cfg, cert, router, sink, slog.Default())

	srv, port, err := mgr.StartServer(local, peer, c.PeerFingerprint)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Printf("listening on port %d for %s (fingerprint %s)\n", port, peer, id.Fingerprint)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logProgress(ctx, sink.Events())

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

type sendCmd struct {
	DeviceID        string   `arg:"" help:"This device's UUID."`
	PeerID          string   `arg:"" help:"The UUID of the peer to dial."`
	Address         string   `arg:"" help:"host:port to dial."`
	PeerFingerprint string   `arg:"" help:"The peer's pinned certificate fingerprint."`
	Files           []string `arg:"" help:"Paths of files to send."`
}

func (c *sendCmd) Run(parent *cli) error {
	cfg := transportConfig(parent.Profile)

	local, err := parseDeviceID(c.DeviceID)
	if err != nil {
		return err
	}
	peer, err := parseDeviceID(c.PeerID)
	if err != nil {
		return err
	}

	id, err := loadIdentity()
	if err != nil {
		return err
	}
	cert, err := id.Certificate()
	if err != nil {
		return fmt.Errorf("build tls certificate: %w", err)
	}

	sink := events.NewChannel(64)
	router := transport.NewRouter(nil)
	transport.RegisterPassthroughHandlers(router)

	mgr := session.NewManager(cfg, cert, router, sink, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout+cfg.TLSHandshakeTimeout)
	defer cancel()

	conn, err := mgr.GetOrConnect(ctx, local, peer, c.Address, c.PeerFingerprint)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.Address, err)
	}

	progressCtx, progressCancel := context.WithCancel(context.Background())
	defer progressCancel()
	go logProgress(progressCtx, sink.Events())

	driver := filetransfer.NewSendDriver(cfg, sink, slog.Default())
	transferID := strconv.FormatInt(time.Now().UnixNano(), 36)

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer sendCancel()

	if err := driver.SendFiles(sendCtx, conn, transferID, c.Files); err != nil {
		return fmt.Errorf("send files: %w", err)
	}

	// Let the last progress events drain before exiting.
	time.Sleep(50 * time.Millisecond)
	return nil
}

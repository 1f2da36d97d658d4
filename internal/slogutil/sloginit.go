// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"io"
	"log/slog"
	"os"
)

var (
	GlobalRecorder = &lineRecorder{level: -1000}
	ErrorRecorder  = &lineRecorder{level: slog.LevelError}
	globalLevels   = &levelTracker{
		levels: make(map[string]slog.Level),
		descrs: make(map[string]string),
	}
	slogDef *slog.Logger
)

func init() {
	var out io.Writer = os.Stdout
	if os.Getenv("LOGGER_DISCARD") != "" {
		// Hack to completely disable logging, for example when running
		// benchmarks.
		out = io.Discard
	}
	globalFormatter.out = out
	globalFormatter.recs = []*lineRecorder{GlobalRecorder, ErrorRecorder}
	slogDef = slog.New(&formattingHandler{opts: globalFormatter})
	slog.SetDefault(slogDef)

	// Handle NEKOSHARE_TRACE, the per-package debug-level override.
	SetLevelOverrides(os.Getenv("NEKOSHARE_TRACE"))
}

// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package locations

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveKeyDirEnvOverride(t *testing.T) {
	got := resolveKeyDir("/custom/keys", func() (string, error) {
		t.Fatal("configDir should not be consulted when env override is set")
		return "", nil
	})
	if got != "/custom/keys" {
		t.Fatalf("expected override path, got %q", got)
	}
}

func TestResolveKeyDirUsesConfigDir(t *testing.T) {
	got := resolveKeyDir("", func() (string, error) { return "/home/user/.config", nil })
	want := filepath.Join("/home/user/.config", "nekoshare", "key")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveKeyDirFallsBackWhenConfigDirUnavailable(t *testing.T) {
	got := resolveKeyDir("", func() (string, error) { return "", errors.New("no config dir") })
	want := filepath.Join(".", "nekoshare-key")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

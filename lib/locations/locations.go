// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package locations resolves the on-disk directory where this module's key
// material is stored.
package locations

import (
	"os"
	"path/filepath"
)

const appName = "nekoshare"

// KeyDir returns the directory holding this device's certificate and key
// files, creating it (and any parents) if it does not already exist.
//
// Resolution order, matching the env-var precedence syncthing's own
// lib/locations uses for its config directory:
//  1. NEKOSHARE_KEY_DIR, if set, used verbatim.
//  2. os.UserConfigDir()/nekoshare/key (XDG_CONFIG_HOME on Linux,
//     Application Support on macOS, %AppData% on Windows).
//  3. ./nekoshare-key as a last resort, if the user config directory cannot
//     be determined.
func KeyDir() (string, error) {
	dir := resolveKeyDir(os.Getenv("NEKOSHARE_KEY_DIR"), userConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func userConfigDir() (string, error) {
	return os.UserConfigDir()
}

// resolveKeyDir contains the pure resolution logic, split out from KeyDir
// for testability without touching the real filesystem or environment.
func resolveKeyDir(envOverride string, configDir func() (string, error)) string {
	if envOverride != "" {
		return envOverride
	}
	if base, err := configDir(); err == nil && base != "" {
		return filepath.Join(base, appName, "key")
	}
	return filepath.Join(".", appName+"-key")
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "linkhoard"

// Dir returns the XDG config directory for linkhoard.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultFile returns Dir()/config.yaml if it exists, otherwise "".
func DefaultFile(getenv func(string) string) string {
	path := filepath.Join(Dir(getenv), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

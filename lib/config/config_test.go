// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "engine:\n  formats: [zip]\n")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Listen.SocketPath != "/run/volumefs/engine.sock" {
		t.Errorf("socket path = %q, want default", loaded.Listen.SocketPath)
	}
	if loaded.Log.Level != "info" {
		t.Errorf("log level = %q, want info", loaded.Log.Level)
	}
	if len(loaded.Engine.Formats) != 1 || loaded.Engine.Formats[0] != "zip" {
		t.Errorf("formats = %v, want [zip]", loaded.Engine.Formats)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"listen:",
		"  socket_path: /tmp/volumefs-test.sock",
		"log:",
		"  level: debug",
	}, "\n"))

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Listen.SocketPath != "/tmp/volumefs-test.sock" {
		t.Errorf("socket path = %q", loaded.Listen.SocketPath)
	}
	level, err := loaded.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel: %v", err)
	}
	if level.String() != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", level)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted unknown log level")
	}
}

func TestLoadRejectsEmptySocketPath(t *testing.T) {
	path := writeConfig(t, "listen:\n  socket_path: \"\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted empty socket path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}

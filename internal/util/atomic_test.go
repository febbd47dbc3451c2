// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides shared utility functions for adminguard.
package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestAtomicWriteFile tests the basic write path and permissions.
func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := AtomicWriteFile(path, []byte(`{"ok":true}`), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("Unexpected content: %s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", info.Mode().Perm())
	}
}

// TestAtomicWriteFileOverwrite tests replacement of an existing file.
func TestAtomicWriteFileOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("Expected overwritten content, got %s", data)
	}
}

// TestAtomicWriteFileWithDirCreatesParents tests parent directory creation.
func TestAtomicWriteFileWithDirCreatesParents(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "a", "b", "vault.key")

	if err := AtomicWriteFileWithDir(path, []byte("key material"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
	info, err := os.Stat(filepath.Join(base, "a"))
	if err != nil {
		t.Fatalf("Parent directory not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("Expected 0700 directory permissions, got %o", info.Mode().Perm())
	}
}

// TestAtomicWriteFileNoTempLeftBehind tests temp file cleanup after
// successful writes.
func TestAtomicWriteFileNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	for i := 0; i < 10; i++ {
		if err := AtomicWriteFile(path, []byte("content"), 0600); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") || strings.HasPrefix(e.Name(), ".") {
			t.Errorf("Leftover temp file: %s", e.Name())
		}
	}
}

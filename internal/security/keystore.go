// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides access-control primitives for adminguard.
//
// This file defines the KeyStore interface holding the vault's symmetric key.
package security

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/adminguard/internal/util"
)

// =============================================================================
// KEYSTORE INTERFACE
// =============================================================================

// KeyStore is the slot holding the vault's key material. The slot supports
// compare-and-set so that two concurrent key creations cannot race to
// different keys: exactly one CompareAndSet against the same prior value
// succeeds, and the loser re-reads the winner's key.
type KeyStore interface {
	// Retrieve returns the stored key, or an error if no key is stored.
	Retrieve() ([]byte, error)
	// CompareAndSet installs next if the slot currently holds prev
	// (prev == nil means "slot must be empty"). Returns true on success.
	CompareAndSet(prev, next []byte) (bool, error)
	// Delete removes the key from the slot.
	Delete() error
	// Exists reports whether a key is stored.
	Exists() bool
}

// =============================================================================
// MEMORY KEYSTORE
// =============================================================================

// MemoryKeyStore holds the key for the lifetime of the process only. This is
// the session-scoped slot: the key is re-created on every restart, so records
// encrypted in a previous run become unreadable, which callers must treat as
// absent values.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key []byte
}

// NewMemoryKeyStore creates an empty in-memory key slot.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

// Retrieve returns a copy of the stored key.
func (m *MemoryKeyStore) Retrieve() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, os.ErrNotExist
	}
	out := make([]byte, len(m.key))
	copy(out, m.key)
	return out, nil
}

// CompareAndSet installs next if the slot currently holds prev.
func (m *MemoryKeyStore) CompareAndSet(prev, next []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !bytes.Equal(m.key, prev) {
		return false, nil
	}
	stored := make([]byte, len(next))
	copy(stored, next)
	m.key = stored
	return true, nil
}

// Delete clears the slot and zeros the old key material.
func (m *MemoryKeyStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ZeroBytes(m.key)
	m.key = nil
	return nil
}

// Exists reports whether a key is stored.
func (m *MemoryKeyStore) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != nil
}

// =============================================================================
// FILE KEYSTORE
// =============================================================================

// FileKeyStore persists the key to a file with 0600 permissions for
// deployments that need the vault key to survive restarts. Compare-and-set
// is serialized through a process-local mutex; concurrent access from
// separate processes is out of scope.
type FileKeyStore struct {
	mu   sync.Mutex
	path string
}

// NewFileKeyStore creates a file-backed key slot at path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Retrieve reads the key from the file.
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return key, nil
}

// CompareAndSet installs next if the file currently holds prev.
// The write is atomic (temp file, fsync, rename).
func (f *FileKeyStore) CompareAndSet(prev, next []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to read key file: %w", err)
		}
		current = nil
	}
	if !bytes.Equal(current, prev) {
		return false, nil
	}
	if err := util.AtomicWriteFileWithDir(f.path, next, 0o600, 0o700); err != nil {
		return false, fmt.Errorf("failed to write key file: %w", err)
	}
	return true, nil
}

// Delete removes the key file.
func (f *FileKeyStore) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists.
func (f *FileKeyStore) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := os.Stat(f.path)
	return err == nil
}

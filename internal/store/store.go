// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the persistent record store backing adminguard's
// access-control state (NIST 800-53 SC-28 via the security vault).
//
// Records live in a single SQLite table keyed by namespaced string keys.
// Secure records are sealed through the vault before they touch the
// database; plain records are stored as JSON. The whole surface is
// fail-closed: callers get a bool, and a missing record is indistinguishable
// from a corrupted one.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/adminguard/internal/security"
)

// KeyPrefix namespaces every record so an adminguard database can share a
// file with other tooling without key collisions.
const KeyPrefix = "adminguard:"

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key    TEXT PRIMARY KEY,
	value  BLOB NOT NULL,
	secure INTEGER NOT NULL DEFAULT 0
);
`

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore is a SQLite-backed implementation of security.RecordStore.
type RecordStore struct {
	db    *sql.DB
	vault *security.Vault
}

// compile-time interface check
var _ security.RecordStore = (*RecordStore)(nil)

// Open opens (creating if needed) the record store at path. Pass ":memory:"
// for an ephemeral store. The vault seals and opens secure records.
func Open(path string, vault *security.Vault) (*RecordStore, error) {
	if vault == nil {
		return nil, errors.New("store: nil vault")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent access from the session and audit paths.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &RecordStore{db: db, vault: vault}, nil
}

// Close releases the underlying database handle.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// PLAIN RECORDS
// =============================================================================

// Set stores value under key as JSON. Returns false on any failure.
func (s *RecordStore) Set(key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return s.write(key, data, false)
}

// Get loads the record at key into out. Returns false when the record is
// missing, was stored as secure, or fails to decode.
func (s *RecordStore) Get(key string, out any) bool {
	data, secure, ok := s.read(key)
	if !ok || secure {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// =============================================================================
// SECURE RECORDS
// =============================================================================

// SetSecure seals value through the vault and stores the resulting blob.
// Returns false on any failure.
func (s *RecordStore) SetSecure(key string, value any) bool {
	blob, err := s.vault.Encrypt(value)
	if err != nil {
		return false
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return false
	}
	return s.write(key, data, true)
}

// GetSecure loads and opens the sealed record at key. Returns false when the
// record is missing, was stored as plain, or fails authentication. A tag
// mismatch and an absent record are deliberately the same answer.
func (s *RecordStore) GetSecure(key string, out any) bool {
	data, secure, ok := s.read(key)
	if !ok || !secure {
		return false
	}
	var blob security.EncryptedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return false
	}
	return s.vault.Decrypt(&blob, out) == nil
}

// =============================================================================
// DELETE / MAINTENANCE
// =============================================================================

// Delete removes the record at key. Returns true when the store is reachable,
// whether or not a record existed.
func (s *RecordStore) Delete(key string) bool {
	_, err := s.db.Exec(`DELETE FROM records WHERE key = ?`, KeyPrefix+key)
	return err == nil
}

// Keys returns all stored keys (prefix stripped), for diagnostics and tests.
func (s *RecordStore) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM records ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(k, KeyPrefix))
	}
	return keys, rows.Err()
}

// Purge removes every record. Used when a decryption failure forces a reset
// back to first-run state.
func (s *RecordStore) Purge() error {
	_, err := s.db.Exec(`DELETE FROM records`)
	return err
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *RecordStore) write(key string, data []byte, secure bool) bool {
	_, err := s.db.Exec(
		`INSERT INTO records (key, value, secure) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, secure = excluded.secure`,
		KeyPrefix+key, data, boolToInt(secure),
	)
	return err == nil
}

func (s *RecordStore) read(key string) (data []byte, secure bool, ok bool) {
	var secureInt int
	err := s.db.QueryRow(
		`SELECT value, secure FROM records WHERE key = ?`, KeyPrefix+key,
	).Scan(&data, &secureInt)
	if err != nil {
		return nil, false, false
	}
	return data, secureInt != 0, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

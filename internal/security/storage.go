// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides access-control primitives for adminguard.
//
// This file defines the record-store contract the core depends on. The
// concrete SQLite-backed implementation lives in internal/store; the core
// accepts the interface so tests can substitute in-memory fakes.
package security

// Persisted record keys owned by the core. Implementations prefix every key
// with their application namespace before touching the backing store.
const (
	// KeyIdentityCatalog holds the full identity catalog (secure path).
	KeyIdentityCatalog = "identities"

	// KeyAuthenticatedFlag marks an established session (plain path).
	KeyAuthenticatedFlag = "session.authenticated"

	// KeySessionIdentity holds the logged-in identity snapshot (secure path).
	KeySessionIdentity = "session.identity"
)

// RecordStore is a key-prefixed persistent store with an encrypted path for
// sensitive keys and a plain path for everything else.
//
// Every operation is fail-closed: writes report success as a bare bool and
// reads report absence for missing keys, malformed payloads, and decryption
// failures alike. Callers cannot distinguish "never written" from
// "corrupted" — a deliberate trade of diagnosability for a surface that can
// never leak partial or unverified data.
type RecordStore interface {
	// Set persists value under key on the plain path.
	Set(key string, value any) bool
	// Get loads the plain-path value for key into out.
	Get(key string, out any) bool
	// SetSecure encrypts value and persists it under key.
	SetSecure(key string, value any) bool
	// GetSecure decrypts and loads the value for key into out.
	GetSecure(key string, out any) bool
	// Delete removes key. Deleting an absent key succeeds.
	Delete(key string) bool
}

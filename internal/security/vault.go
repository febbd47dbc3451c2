// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides NIST 800-53 SC-28 compliant encryption for data at rest.
//
// This file implements the Vault: AES-256-GCM authenticated encryption of
// JSON-serializable values under a session-scoped key, with PBKDF2-SHA-256
// derivation for password-keyed deployments.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// NonceSize is the size of the nonce/IV for AES-GCM (12 bytes / 96 bits).
const NonceSize = 12

// KeySize is the size of the AES-256 key (32 bytes / 256 bits).
const KeySize = 32

// SaltSize is the size of the salt for key derivation (32 bytes).
const SaltSize = 32

// PBKDF2Iterations is the number of iterations for PBKDF2 key derivation.
// OWASP 2023 recommends 600,000+ for PBKDF2-SHA-256 to provide adequate
// resistance against brute-force attacks with modern hardware.
const PBKDF2Iterations = 600000

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDecryptionFailed indicates decryption failed: tampered data, a wrong
	// or rotated key, or a malformed blob. Callers must treat this as "value
	// absent", never as a recoverable payload.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrInvalidBlob indicates the blob structure itself is unusable.
	ErrInvalidBlob = errors.New("invalid encrypted blob format")

	// ErrKeyStoreFailed indicates the key slot could not be read or written.
	ErrKeyStoreFailed = errors.New("key storage operation failed")
)

// =============================================================================
// ENCRYPTED BLOB
// =============================================================================

// EncryptedBlob is the serialized form of an encrypted value. A blob can only
// be opened with the key that sealed it; rotating the vault key invalidates
// every prior blob (there is no re-encryption path).
type EncryptedBlob struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// =============================================================================
// HELPERS
// =============================================================================

// ZeroBytes zeros sensitive byte slices to limit key material exposure in
// memory after use.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a vault key from a password and salt using
// PBKDF2-SHA-256 per NIST SP 800-132.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// =============================================================================
// VAULT
// =============================================================================

// Vault performs authenticated encryption of JSON-serializable values under a
// single symmetric key held in a KeyStore. The key is created lazily on first
// use; concurrent first uses converge on one key via the store's
// compare-and-set slot.
type Vault struct {
	mu    sync.Mutex
	keys  KeyStore
	aead  cipher.AEAD
	keyID [sha256.Size]byte
}

// NewVault creates a Vault over the given key slot.
func NewVault(keys KeyStore) *Vault {
	return &Vault{keys: keys}
}

// GetOrCreateKey returns the existing key or generates and installs a fresh
// 256-bit key. Two concurrent calls never observe different keys: the loser
// of the compare-and-set race re-reads the winner's key.
func (v *Vault) GetOrCreateKey() ([]byte, error) {
	for {
		key, err := v.keys.Retrieve()
		if err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("%w: stored key has %d bytes, want %d",
					ErrKeyStoreFailed, len(key), KeySize)
			}
			return key, nil
		}

		fresh := make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, fresh); err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		ok, err := v.keys.CompareAndSet(nil, fresh)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
		}
		if ok {
			return fresh, nil
		}
		// Lost the race; loop to pick up the winner's key.
	}
}

// cipherForKey returns the AEAD for the current key, rebuilding it if the
// key changed since the last call.
func (v *Vault) cipherForKey() (cipher.AEAD, error) {
	key, err := v.GetOrCreateKey()
	if err != nil {
		return nil, err
	}
	id := sha256.Sum256(key)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.aead != nil && v.keyID == id {
		return v.aead, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	v.aead = gcm
	v.keyID = id
	return gcm, nil
}

// Encrypt serializes value to JSON and seals it under AES-256-GCM with a
// fresh random 96-bit nonce. Nonces are never reused with the same key.
func (v *Vault) Encrypt(value any) (*EncryptedBlob, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value: %w", err)
	}

	aead, err := v.cipherForKey()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedBlob{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
	}, nil
}

// Decrypt authenticates and opens blob, unmarshaling the plaintext JSON into
// out. Any tampering, key mismatch, or malformed payload fails with
// ErrDecryptionFailed; no partial value is ever produced.
func (v *Vault) Decrypt(blob *EncryptedBlob, out any) error {
	if blob == nil || len(blob.Nonce) != NonceSize || len(blob.Ciphertext) == 0 {
		return ErrInvalidBlob
	}

	aead, err := v.cipherForKey()
	if err != nil {
		return err
	}

	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return ErrDecryptionFailed
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		// Authenticated but undecodable plaintext is still corruption from
		// the caller's point of view.
		return ErrDecryptionFailed
	}
	return nil
}

// RotateKey deletes the current key and installs a fresh one. Every blob
// sealed under the old key becomes permanently unreadable; callers that need
// the data must re-encrypt it before rotating, and none of the core's own
// records survive rotation.
func (v *Vault) RotateKey() error {
	if err := v.keys.Delete(); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
	}
	v.mu.Lock()
	v.aead = nil
	v.keyID = [sha256.Size]byte{}
	v.mu.Unlock()

	_, err := v.GetOrCreateKey()
	return err
}

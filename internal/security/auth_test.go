// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file contains tests for IA-2 login orchestration: credential
// verification, throttling, forced password change, session lifecycle, and
// logout ordering.
package security

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

// memStore is an in-memory RecordStore for coordinator tests. The secure
// path stores JSON without real encryption; the fail-closed contract is what
// matters here, not the cipher.
type memStore struct {
	mu         sync.Mutex
	plain      map[string][]byte
	secure     map[string][]byte
	failSecure bool
}

func newMemStore() *memStore {
	return &memStore{
		plain:  make(map[string][]byte),
		secure: make(map[string][]byte),
	}
}

func (m *memStore) Set(key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	m.plain[key] = data
	m.mu.Unlock()
	return true
}

func (m *memStore) Get(key string, out any) bool {
	m.mu.Lock()
	data, ok := m.plain[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (m *memStore) SetSecure(key string, value any) bool {
	if m.failSecure {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	m.secure[key] = data
	m.mu.Unlock()
	return true
}

func (m *memStore) GetSecure(key string, out any) bool {
	if m.failSecure {
		return false
	}
	m.mu.Lock()
	data, ok := m.secure[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (m *memStore) Delete(key string) bool {
	m.mu.Lock()
	delete(m.plain, key)
	delete(m.secure, key)
	m.mu.Unlock()
	return true
}

func seedCatalog(t *testing.T, store *memStore, identities ...Identity) {
	t.Helper()
	if !store.SetSecure(KeyIdentityCatalog, identities) {
		t.Fatal("Failed to seed identity catalog")
	}
}

func activeAdmin() Identity {
	return Identity{
		Username:    "morgan",
		DisplayName: "Morgan F.",
		Role:        RoleMemberAdmin,
		Permissions: []Permission{"members.view", "members.edit"},
		Status:      StatusActive,
		Password:    "Sup3rSecret",
	}
}

func newTestCoordinator(store *memStore, opts ...CoordinatorOption) *Coordinator {
	base := []CoordinatorOption{
		WithSessionClockOptions(WithPollInterval(0)),
	}
	return NewCoordinator(store, append(base, opts...)...)
}

// TestLoginSuccess tests the full happy path: session established, registry
// populated, snapshot persisted, clock running.
func TestLoginSuccess(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	c := newTestCoordinator(store)

	result, err := c.Login("morgan", "Sup3rSecret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.ForcePasswordChange {
		t.Error("Unexpected forced password change")
	}
	if result.Identity.Username != "morgan" || result.Identity.Role != RoleMemberAdmin {
		t.Errorf("Unexpected identity snapshot: %+v", result.Identity)
	}

	if c.State() != StateAuthenticated {
		t.Errorf("Expected AUTHENTICATED, got %v", c.State())
	}
	// Registry is populated before Login returns.
	if !c.Registry().HasPermission("members.edit") {
		t.Error("Registry not populated on return from Login")
	}
	if c.Registry().HasPermission("finance.view") {
		t.Error("Registry granted an unassigned permission")
	}

	var flag bool
	if !store.Get(KeyAuthenticatedFlag, &flag) || !flag {
		t.Error("Authenticated flag not persisted")
	}
	var snapshot SessionIdentity
	if !store.GetSecure(KeySessionIdentity, &snapshot) || snapshot.Username != "morgan" {
		t.Error("Identity snapshot not persisted on the secure path")
	}
	if c.Clock() == nil {
		t.Error("No session clock after login")
	}
}

// TestLoginUnknownUserAndWrongPassword tests that both failures return the
// same error, preventing username enumeration.
func TestLoginUnknownUserAndWrongPassword(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	c := newTestCoordinator(store)

	_, errUnknown := c.Login("nobody", "Sup3rSecret", "")
	_, errWrong := c.Login("morgan", "WrongPass1", "")

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("Unknown user: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Errorf("Wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}
	if c.State() != StateAnonymous {
		t.Errorf("State changed on failed login: %v", c.State())
	}
}

// TestLoginCaseSensitiveUsername tests exact username matching.
func TestLoginCaseSensitiveUsername(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	c := newTestCoordinator(store)

	if _, err := c.Login("Morgan", "Sup3rSecret", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for case-mismatched username, got %v", err)
	}
}

// TestLoginInactiveAccount tests that inactive and suspended accounts are
// rejected after the credential check.
func TestLoginInactiveAccount(t *testing.T) {
	inactive := activeAdmin()
	inactive.Status = StatusInactive
	suspended := activeAdmin()
	suspended.Username = "suspended"
	suspended.Status = StatusSuspended

	store := newMemStore()
	seedCatalog(t, store, inactive, suspended)
	c := newTestCoordinator(store)

	if _, err := c.Login("morgan", "Sup3rSecret", ""); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("Inactive: expected ErrAccountInactive, got %v", err)
	}
	if _, err := c.Login("suspended", "Sup3rSecret", ""); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("Suspended: expected ErrAccountInactive, got %v", err)
	}
}

// TestLoginThrottle tests the AC-7 budget: five attempts per window, then
// rejection before credentials are even examined.
func TestLoginThrottle(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())

	clock := newFakeClock()
	c := newTestCoordinator(store,
		WithRateLimiter(NewRateLimiter(WithRateClock(clock.Now))))

	for i := 0; i < 5; i++ {
		c.Login("morgan", "WrongPass1", "")
	}

	// Correct credentials after the budget is spent still throttle.
	if _, err := c.Login("morgan", "Sup3rSecret", ""); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("Expected ErrTooManyAttempts, got %v", err)
	}

	// Rejected attempts are not recorded: the window drains on schedule.
	clock.Advance(61 * time.Second)
	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Login after window drain failed: %v", err)
	}
}

// TestLoginThrottleResetOnSuccess tests that a successful login clears the
// attempt window for that identifier.
func TestLoginThrottleResetOnSuccess(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())

	clock := newFakeClock()
	c := newTestCoordinator(store,
		WithRateLimiter(NewRateLimiter(WithRateClock(clock.Now))))

	for i := 0; i < 4; i++ {
		c.Login("morgan", "WrongPass1", "")
	}
	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Fifth attempt with correct credentials failed: %v", err)
	}
	c.Logout()

	// A full budget is available again.
	for i := 0; i < 4; i++ {
		c.Login("morgan", "WrongPass1", "")
	}
	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Expected fresh budget after successful login, got %v", err)
	}
}

// TestLoginTOTP tests the second factor: required when enrolled, and a wrong
// code is indistinguishable from a wrong password.
func TestLoginTOTP(t *testing.T) {
	identity := activeAdmin()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "morgan"})
	if err != nil {
		t.Fatalf("Failed to generate TOTP key: %v", err)
	}
	identity.TOTPSecret = key.Secret()

	store := newMemStore()
	seedCatalog(t, store, identity)
	c := newTestCoordinator(store)

	if _, err := c.Login("morgan", "Sup3rSecret", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Missing code: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := c.Login("morgan", "Sup3rSecret", "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Wrong code: expected ErrInvalidCredentials, got %v", err)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("Failed to generate TOTP code: %v", err)
	}
	if _, err := c.Login("morgan", "Sup3rSecret", code); err != nil {
		t.Fatalf("Login with valid code failed: %v", err)
	}
}

// TestLoginForcedPasswordChange tests that matching credentials with the
// forced flag establish no session.
func TestLoginForcedPasswordChange(t *testing.T) {
	identity := activeAdmin()
	identity.ForcePasswordChange = true

	store := newMemStore()
	seedCatalog(t, store, identity)
	c := newTestCoordinator(store)

	result, err := c.Login("morgan", "Sup3rSecret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.ForcePasswordChange {
		t.Fatal("ForcePasswordChange not reported")
	}

	if c.State() != StatePendingPasswordChange {
		t.Errorf("Expected PENDING_PASSWORD_CHANGE, got %v", c.State())
	}
	if c.IsAuthenticated() {
		t.Error("Session established despite forced change")
	}
	if c.Registry().HasPermission("members.view") {
		t.Error("Registry populated despite forced change")
	}
	var flag bool
	if store.Get(KeyAuthenticatedFlag, &flag) {
		t.Error("Authenticated flag persisted despite forced change")
	}
	if c.Clock() != nil {
		t.Error("Session clock started despite forced change")
	}

	// Complete the change, then log in with the new password.
	if err := c.ChangePassword("Sup3rSecret", "NewSecret99"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if c.State() != StateAnonymous {
		t.Errorf("Expected ANONYMOUS after completing forced change, got %v", c.State())
	}
	if _, err := c.Login("morgan", "NewSecret99", ""); err != nil {
		t.Fatalf("Login with new password failed: %v", err)
	}
	if _, err := c.Login("morgan", "Sup3rSecret", ""); err == nil {
		c.Logout()
		t.Error("Old password still accepted after change")
	}
}

// TestChangePassword tests re-verification, policy enforcement, and
// persistence of a voluntary change.
func TestChangePassword(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	c := newTestCoordinator(store)

	if err := c.ChangePassword("Sup3rSecret", "NewSecret99"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Anonymous change: expected ErrNotAuthenticated, got %v", err)
	}

	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := c.ChangePassword("WrongCurrent1", "NewSecret99"); !errors.Is(err, ErrReauthentication) {
		t.Errorf("Wrong current: expected ErrReauthentication, got %v", err)
	}
	if err := c.ChangePassword("Sup3rSecret", "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Weak password: expected ErrWeakPassword, got %v", err)
	}

	if err := c.ChangePassword("Sup3rSecret", "NewSecret99"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Session survives a voluntary change; the catalog holds the new hash.
	if c.State() != StateAuthenticated {
		t.Errorf("Voluntary change ended the session: %v", c.State())
	}
	var catalog []Identity
	if !store.GetSecure(KeyIdentityCatalog, &catalog) {
		t.Fatal("Catalog unreadable after change")
	}
	if catalog[0].Password != "NewSecret99" {
		t.Error("Catalog not updated with the new credential")
	}
}

// TestLogoutClearsEverything tests that logout removes the snapshot, flag,
// and registry contents, and is safe from any state.
func TestLogoutClearsEverything(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	c := newTestCoordinator(store)

	c.Logout() // anonymous logout is a no-op, not a panic

	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	c.Logout()

	if c.State() != StateAnonymous {
		t.Errorf("Expected ANONYMOUS after logout, got %v", c.State())
	}
	if c.Registry().HasPermission("members.view") {
		t.Error("Registry retained permissions across logout")
	}
	if c.CurrentIdentity() != nil {
		t.Error("Identity snapshot retained across logout")
	}
	var flag bool
	if store.Get(KeyAuthenticatedFlag, &flag) {
		t.Error("Authenticated flag retained across logout")
	}
	var snapshot SessionIdentity
	if store.GetSecure(KeySessionIdentity, &snapshot) {
		t.Error("Persisted snapshot retained across logout")
	}
	if c.Clock() != nil {
		t.Error("Session clock retained across logout")
	}
}

// TestSessionExpiryLogsOut tests the expiry callback wiring: an idle timeout
// tears the session down through the coordinator.
func TestSessionExpiryLogsOut(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())

	clock := newFakeClock()
	c := newTestCoordinator(store,
		WithSessionClockOptions(
			WithPollInterval(0),
			WithSessionTimeout(30*time.Minute),
			WithWarningWindow(5*time.Minute),
			WithSessionClockTime(clock.Now),
		))

	if _, err := c.Login("morgan", "Sup3rSecret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clock.Advance(31 * time.Minute)
	c.Clock().Check()

	if c.State() != StateAnonymous {
		t.Errorf("Expected ANONYMOUS after expiry, got %v", c.State())
	}
	if c.Registry().HasPermission("members.view") {
		t.Error("Registry retained permissions after expiry")
	}
}

// TestLoginWithCorruptedCatalog tests fail-closed behavior when the secure
// path cannot produce the catalog.
func TestLoginWithCorruptedCatalog(t *testing.T) {
	store := newMemStore()
	seedCatalog(t, store, activeAdmin())
	store.failSecure = true
	c := newTestCoordinator(store)

	if _, err := c.Login("morgan", "Sup3rSecret", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials with unreadable catalog, got %v", err)
	}
}

// TestVerifyCredentialLengths tests the constant-time comparison guard.
func TestVerifyCredentialLengths(t *testing.T) {
	if verifyCredential("short", "longer-credential") {
		t.Error("Length mismatch accepted")
	}
	if !verifyCredential("exact", "exact") {
		t.Error("Exact match rejected")
	}
	if verifyCredential("", "") == false {
		// Two empty strings compare equal; the policy layer prevents empty
		// stored credentials from existing in the first place.
		t.Error("Empty credentials should compare equal at this layer")
	}
}

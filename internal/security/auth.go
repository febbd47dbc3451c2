// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file implements NIST 800-53 IA-2: Identification and Authentication.
// The Coordinator is the single entry point surrounding UI code uses for
// login, logout, and password change; it owns the permission registry, the
// session clock, and the audit trail for authentication events.
package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Login throttle defaults (AC-7).
const (
	// DefaultLoginMaxAttempts is the attempt budget per identifier.
	DefaultLoginMaxAttempts = 5

	// DefaultLoginWindow is the sliding window for the attempt budget.
	DefaultLoginWindow = 60 * time.Second
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords. The two cases are deliberately indistinguishable to block
	// username enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountInactive indicates the identity exists but is disabled or
	// suspended.
	ErrAccountInactive = errors.New("account is not active")

	// ErrReauthentication indicates the current credential did not match
	// during a password change.
	ErrReauthentication = errors.New("current password verification failed")

	// ErrWeakPassword indicates the new password fails the policy.
	ErrWeakPassword = errors.New("password does not meet policy requirements")

	// ErrTooManyAttempts indicates the login throttle rejected the attempt.
	ErrTooManyAttempts = errors.New("too many login attempts")

	// ErrNotAuthenticated indicates an operation that requires an
	// established or pending identity was called without one.
	ErrNotAuthenticated = errors.New("no authenticated identity")
)

// =============================================================================
// IDENTITY
// =============================================================================

// IdentityStatus is the lifecycle status of a credential record.
type IdentityStatus string

const (
	StatusActive    IdentityStatus = "active"
	StatusInactive  IdentityStatus = "inactive"
	StatusSuspended IdentityStatus = "suspended"
)

// Identity is a stored credential record. Records are created and edited by
// the admin CRUD flows outside this core; the Coordinator only reads them at
// login and rewrites the password fields on change.
//
// Password holds the reference credential for local comparison. This is a
// development stand-in: production deployments must replace the comparison
// in verifyCredential with a server-verified credential exchange.
type Identity struct {
	Username            string         `json:"username"`
	DisplayName         string         `json:"display_name"`
	Role                Role           `json:"role"`
	Permissions         []Permission   `json:"permissions"`
	Status              IdentityStatus `json:"status"`
	Password            string         `json:"password"`
	ForcePasswordChange bool           `json:"force_password_change,omitempty"`

	// TOTPSecret, when set, requires a valid TOTP code at login (IA-2(1)).
	TOTPSecret string `json:"totp_secret,omitempty"`
}

// SessionIdentity is the snapshot of an identity cached for the duration of
// an authenticated session. It never carries credential material.
type SessionIdentity struct {
	Username    string       `json:"username"`
	DisplayName string       `json:"display_name"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// =============================================================================
// AUTH STATE
// =============================================================================

// AuthState is the coordinator's position in the login state machine.
type AuthState int

const (
	// StateAnonymous means no identity is established.
	StateAnonymous AuthState = iota
	// StateAuthenticated means a full session is established.
	StateAuthenticated
	// StatePendingPasswordChange means credentials matched but the identity
	// is flagged for a forced password change; no session is established.
	StatePendingPasswordChange
)

// String returns a string representation of the AuthState.
func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "ANONYMOUS"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StatePendingPasswordChange:
		return "PENDING_PASSWORD_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// LoginResult is returned on successful credential verification.
type LoginResult struct {
	// ForcePasswordChange is true when the caller must route to the
	// change-password flow before a session can be established.
	ForcePasswordChange bool

	// Identity is the snapshot of the verified identity.
	Identity SessionIdentity
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator orchestrates login, logout, and password change against the
// record store, and wires the permission registry and session clock together.
// All mutable session state is owned here and mutated only from its own
// methods.
type Coordinator struct {
	mu sync.Mutex

	store    RecordStore
	registry *Registry
	limiter  *RateLimiter
	audit    *AuditLogger
	policy   PasswordPolicy

	state   AuthState
	current *SessionIdentity
	pending string // username awaiting forced password change

	clock       *SessionClock
	clockOpts   []SessionClockOption
	onWarning   func(remaining time.Duration)
	loginMax    int
	loginWindow time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPasswordPolicy replaces the default password policy.
func WithPasswordPolicy(p PasswordPolicy) CoordinatorOption {
	return func(c *Coordinator) { c.policy = p }
}

// WithAuditLogger routes authentication events to the given logger.
func WithAuditLogger(logger *AuditLogger) CoordinatorOption {
	return func(c *Coordinator) { c.audit = logger }
}

// WithLoginThrottle sets the sliding-window budget for login attempts.
func WithLoginThrottle(maxAttempts int, window time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.loginMax = maxAttempts
		c.loginWindow = window
	}
}

// WithRateLimiter substitutes the attempt limiter (tests inject a fake
// clock through it).
func WithRateLimiter(limiter *RateLimiter) CoordinatorOption {
	return func(c *Coordinator) { c.limiter = limiter }
}

// WithSessionClockOptions sets the options used to build the per-login
// session clock (timeout, warning window, poll cadence).
func WithSessionClockOptions(opts ...SessionClockOption) CoordinatorOption {
	return func(c *Coordinator) { c.clockOpts = opts }
}

// WithSessionWarningHandler sets the handler invoked when the session enters
// its warning window. The handler receives the remaining time.
func WithSessionWarningHandler(fn func(remaining time.Duration)) CoordinatorOption {
	return func(c *Coordinator) { c.onWarning = fn }
}

// NewCoordinator creates a Coordinator over the given record store.
func NewCoordinator(store RecordStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:       store,
		registry:    NewRegistry(),
		limiter:     NewRateLimiter(),
		policy:      DefaultPasswordPolicy(),
		state:       StateAnonymous,
		loginMax:    DefaultLoginMaxAttempts,
		loginWindow: DefaultLoginWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the permission registry owned by this coordinator.
// UI collaborators query it to decide what to render and enable.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Clock returns the session clock for the current session, or nil when no
// session is established.
func (c *Coordinator) Clock() *SessionClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// State returns the coordinator's state-machine position.
func (c *Coordinator) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated reports whether a full session is established.
func (c *Coordinator) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// CurrentIdentity returns a copy of the session identity snapshot, or nil.
func (c *Coordinator) CurrentIdentity() *SessionIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	snapshot := *c.current
	return &snapshot
}

// =============================================================================
// LOGIN
// =============================================================================

// Login verifies username/password (and a TOTP code when the identity
// carries a secret) against the locally replicated catalog.
//
// On success with a forced-change flag, the caller gets
// ForcePasswordChange=true and NO session is established: the registry stays
// empty and no clock starts until the password is changed and login retried.
// Otherwise the identity snapshot is persisted, the registry is fully rebuilt
// BEFORE Login returns, and the session clock starts.
func (c *Coordinator) Login(username, password, totpCode string) (*LoginResult, error) {
	if !c.limiter.Allow(username, c.loginMax, c.loginWindow) {
		c.auditEvent("", "login.throttled", "auth",
			fmt.Sprintf("login throttled for %q", username))
		return nil, ErrTooManyAttempts
	}

	identity, ok := c.lookupIdentity(username)
	if !ok || !verifyCredential(identity.Password, password) {
		c.auditEvent("", "login.failed", "auth",
			fmt.Sprintf("failed login for %q", username))
		return nil, ErrInvalidCredentials
	}

	if identity.Status != StatusActive {
		c.auditEvent("", "login.inactive", "auth",
			fmt.Sprintf("login rejected for %s account %q", identity.Status, username))
		return nil, ErrAccountInactive
	}

	if identity.TOTPSecret != "" && !totp.Validate(totpCode, identity.TOTPSecret) {
		// A wrong or missing second factor reads the same as a wrong
		// password from the outside.
		c.auditEvent("", "login.failed", "auth",
			fmt.Sprintf("failed second factor for %q", username))
		return nil, ErrInvalidCredentials
	}

	snapshot := SessionIdentity{
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		Permissions: append([]Permission(nil), identity.Permissions...),
	}

	if identity.ForcePasswordChange {
		c.mu.Lock()
		c.state = StatePendingPasswordChange
		c.pending = identity.Username
		c.current = nil
		c.mu.Unlock()

		c.auditEvent(identity.Username, "login.force_password_change", "auth",
			"credentials accepted, password change required")
		return &LoginResult{ForcePasswordChange: true, Identity: snapshot}, nil
	}

	// Registry population completes before Login returns, so a permission
	// check issued immediately afterwards observes exactly this identity's
	// set, never a partial or prior-session one.
	if err := c.registry.Rebuild(identity.Role, identity.Permissions); err != nil {
		c.auditEvent("", "login.failed", "auth",
			fmt.Sprintf("identity %q has an invalid grant: %v", username, err))
		return nil, ErrInvalidCredentials
	}

	c.store.SetSecure(KeySessionIdentity, snapshot)
	c.store.Set(KeyAuthenticatedFlag, true)

	clock := NewSessionClock(append(c.clockOpts,
		WithWarningCallback(c.onWarning),
		WithExpiryCallback(c.expireSession),
	)...)

	c.mu.Lock()
	c.state = StateAuthenticated
	c.current = &snapshot
	c.pending = ""
	c.clock = clock
	c.mu.Unlock()

	clock.Start()
	c.limiter.Reset(username)

	c.auditEvent(identity.Username, "login", "auth",
		fmt.Sprintf("authenticated as %s", identity.Role))
	return &LoginResult{Identity: snapshot}, nil
}

// expireSession is the session-clock expiry callback.
func (c *Coordinator) expireSession() {
	c.auditEvent(c.actorName(), "session.expired", "auth",
		"session terminated after idle timeout")
	c.Logout()
}

// =============================================================================
// LOGOUT
// =============================================================================

// Logout tears down the session. The audit entry is written first, while the
// identity is still known; only then are the snapshot, registry, persisted
// flag, and clock cleared. Logout from any state is safe.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	actor := ""
	if c.current != nil {
		actor = c.current.Username
	}
	state := c.state
	clock := c.clock
	c.mu.Unlock()

	if state != StateAnonymous {
		c.auditEvent(actor, "logout", "auth", "session closed")
	}

	if clock != nil {
		clock.Stop()
	}

	c.mu.Lock()
	c.current = nil
	c.pending = ""
	c.state = StateAnonymous
	c.clock = nil
	c.mu.Unlock()

	c.registry.Clear()
	c.store.Delete(KeySessionIdentity)
	c.store.Delete(KeyAuthenticatedFlag)
}

// =============================================================================
// PASSWORD CHANGE
// =============================================================================

// ChangePassword re-verifies the current credential, applies the password
// policy to the new one, persists the update, and clears any forced-change
// flag. It serves both the authenticated flow and the pending forced-change
// flow; in the latter case the caller still has to log in afterwards.
func (c *Coordinator) ChangePassword(current, next string) error {
	c.mu.Lock()
	var username string
	switch c.state {
	case StateAuthenticated:
		username = c.current.Username
	case StatePendingPasswordChange:
		username = c.pending
	default:
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	wasPending := c.state == StatePendingPasswordChange
	c.mu.Unlock()

	catalog, ok := c.loadCatalog()
	if !ok {
		return ErrReauthentication
	}

	idx := -1
	for i := range catalog {
		if catalog[i].Username == username {
			idx = i
			break
		}
	}
	if idx < 0 || !verifyCredential(catalog[idx].Password, current) {
		c.auditEvent(username, "password.change_failed", "auth",
			"current password verification failed")
		return ErrReauthentication
	}

	if !c.policy.Check(next) {
		return ErrWeakPassword
	}

	catalog[idx].Password = next
	catalog[idx].ForcePasswordChange = false
	if !c.store.SetSecure(KeyIdentityCatalog, catalog) {
		return fmt.Errorf("failed to persist credential update")
	}

	if wasPending {
		c.mu.Lock()
		c.pending = ""
		c.state = StateAnonymous
		c.mu.Unlock()
	}

	c.auditEvent(username, "password.change", "auth", "password updated")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// verifyCredential compares the stored reference credential against the
// submitted one in constant time. Reference comparison only: real
// deployments substitute a server-verified exchange here.
func verifyCredential(stored, submitted string) bool {
	if len(stored) != len(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

func (c *Coordinator) loadCatalog() ([]Identity, bool) {
	var catalog []Identity
	if !c.store.GetSecure(KeyIdentityCatalog, &catalog) {
		return nil, false
	}
	return catalog, true
}

// lookupIdentity finds the record matching username exactly
// (case-sensitive).
func (c *Coordinator) lookupIdentity(username string) (*Identity, bool) {
	catalog, ok := c.loadCatalog()
	if !ok {
		return nil, false
	}
	for i := range catalog {
		if catalog[i].Username == username {
			return &catalog[i], true
		}
	}
	return nil, false
}

func (c *Coordinator) actorName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.Username
	}
	return ""
}

func (c *Coordinator) auditEvent(actor, action, category, description string) {
	if c.audit == nil {
		return
	}
	// Audit failures must not block authentication flow; the logger tracks
	// its own failure count.
	_ = c.audit.Append(actor, action, category, description)
}

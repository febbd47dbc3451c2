// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides access-control primitives for adminguard.
//
// This file implements AC-11/AC-12 idle-timeout session tracking. A
// SessionClock polls on a fixed cadence, warns once per idle episode before
// the deadline, and terminates the session exactly once when the deadline
// passes. Expiry is terminal: recovery requires a fresh login with a new
// clock instance.
package security

import (
	"sync"
	"time"
)

// Session timing defaults.
const (
	// DefaultSessionTimeout is the idle timeout before forced expiry.
	DefaultSessionTimeout = 30 * time.Minute

	// DefaultWarningWindow is how long before expiry the warning fires.
	DefaultWarningWindow = 5 * time.Minute

	// DefaultPollInterval is the cadence of the periodic idle check.
	DefaultPollInterval = 60 * time.Second
)

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionState is the lifecycle state of a tracked session.
type SessionState int

const (
	// SessionActive indicates recent activity within the idle budget.
	SessionActive SessionState = iota
	// SessionWarning indicates the session is inside the warning window.
	SessionWarning
	// SessionExpired indicates the session has been terminated. Terminal.
	SessionExpired
)

// String returns a string representation of the SessionState.
func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "ACTIVE"
	case SessionWarning:
		return "WARNING"
	case SessionExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsActive returns true if the session still permits activity.
func (s SessionState) IsActive() bool {
	return s == SessionActive || s == SessionWarning
}

// RequiresReauth returns true if re-authentication is required.
func (s SessionState) RequiresReauth() bool {
	return s == SessionExpired
}

// =============================================================================
// SESSION CLOCK
// =============================================================================

// SessionClock tracks the last-activity timestamp for one session instance.
// Interaction events call Touch, the poll loop calls Check, and the warning
// and expiry callbacks each fire at most once per episode. The clock tolerates
// last-write-wins races between Touch and Check: both only move the activity
// timestamp toward "more recent", so the worst case is one extra poll interval
// of tolerance, never a premature expiry.
type SessionClock struct {
	mu           sync.Mutex
	lastActivity time.Time
	state        SessionState

	timeout       time.Duration
	warningWindow time.Duration
	pollInterval  time.Duration

	onWarning func(remaining time.Duration)
	onExpired func()

	now     func() time.Time
	done    chan struct{}
	started bool
	stopped bool
}

// SessionClockOption configures a SessionClock.
type SessionClockOption func(*SessionClock)

// WithSessionTimeout sets the idle timeout.
func WithSessionTimeout(d time.Duration) SessionClockOption {
	return func(c *SessionClock) { c.timeout = d }
}

// WithWarningWindow sets how long before expiry the warning fires.
func WithWarningWindow(d time.Duration) SessionClockOption {
	return func(c *SessionClock) { c.warningWindow = d }
}

// WithPollInterval sets the check cadence. A non-positive interval disables
// the internal poll loop; the host then drives Check itself.
func WithPollInterval(d time.Duration) SessionClockOption {
	return func(c *SessionClock) { c.pollInterval = d }
}

// WithWarningCallback sets the warning handler. It receives the remaining
// time until expiry.
func WithWarningCallback(fn func(remaining time.Duration)) SessionClockOption {
	return func(c *SessionClock) { c.onWarning = fn }
}

// WithExpiryCallback sets the expiry handler.
func WithExpiryCallback(fn func()) SessionClockOption {
	return func(c *SessionClock) { c.onExpired = fn }
}

// WithSessionClockTime overrides the time source for tests.
func WithSessionClockTime(now func() time.Time) SessionClockOption {
	return func(c *SessionClock) { c.now = now }
}

// NewSessionClock creates a stopped clock; call Start to begin tracking.
func NewSessionClock(opts ...SessionClockOption) *SessionClock {
	c := &SessionClock{
		timeout:       DefaultSessionTimeout,
		warningWindow: DefaultWarningWindow,
		pollInterval:  DefaultPollInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start records the initial activity timestamp and, when a poll interval is
// configured, launches the periodic check loop.
func (c *SessionClock) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.lastActivity = c.now()
	c.state = SessionActive
	interval := c.pollInterval
	c.mu.Unlock()

	if interval > 0 {
		go c.pollLoop(interval)
	}
}

func (c *SessionClock) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.Check() == SessionExpired {
				return
			}
		}
	}
}

// Check runs one idle evaluation and returns the resulting state. The expiry
// callback fires exactly once; the warning callback fires once per warning
// episode and never again after expiry.
func (c *SessionClock) Check() SessionState {
	c.mu.Lock()
	if c.stopped || !c.started || c.state == SessionExpired {
		state := c.state
		c.mu.Unlock()
		return state
	}

	elapsed := c.now().Sub(c.lastActivity)

	if elapsed > c.timeout {
		c.state = SessionExpired
		cb := c.onExpired
		c.mu.Unlock()
		if cb != nil {
			cb()
		}
		return SessionExpired
	}

	if elapsed > c.timeout-c.warningWindow && c.state == SessionActive {
		c.state = SessionWarning
		cb := c.onWarning
		remaining := c.timeout - elapsed
		c.mu.Unlock()
		if cb != nil {
			cb(remaining)
		}
		return SessionWarning
	}

	state := c.state
	c.mu.Unlock()
	return state
}

// Touch records user activity: it resets the idle timer and returns the
// session to Active from Warning. Touch on an expired or stopped clock is a
// no-op; expiry is terminal.
func (c *SessionClock) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || !c.started || c.state == SessionExpired {
		return
	}
	c.lastActivity = c.now()
	c.state = SessionActive
}

// Extend is the explicit keep-alive invoked from the warning affordance. It
// behaves exactly like a tracked interaction.
func (c *SessionClock) Extend() {
	c.Touch()
}

// Stop halts tracking. Checks evaluated after Stop observe the stopped flag
// under the same lock Stop takes, so no warning or expiry callback fires once
// Stop has returned.
func (c *SessionClock) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	if started {
		close(c.done)
	}
}

// State returns the current session state.
func (c *SessionClock) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the time left before expiry, or 0 once expired.
func (c *SessionClock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.state == SessionExpired {
		return 0
	}
	remaining := c.timeout - c.now().Sub(c.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

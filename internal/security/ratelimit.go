// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file implements AC-7 login-attempt throttling as a sliding-window
// counter. The window is recomputed relative to "now" on every check, so
// bursts cannot be gamed by aligning to bucket boundaries.
package security

import (
	"sync"
	"time"
)

// =============================================================================
// RATE LIMITER
// =============================================================================

// RateLimiter counts requests per identifier inside a continuously sliding
// time window. State is memory-only: it resets on restart, which is
// acceptable for a soft login throttle but makes it unsuitable as a hard
// security boundary.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	// rejecting marks identifiers currently over the limit, so the audit
	// trail records one event per rejection episode instead of one per call.
	rejecting map[string]bool

	audit *AuditLogger
	now   func() time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateAuditLogger routes throttle events to the given audit logger.
func WithRateAuditLogger(logger *AuditLogger) RateLimiterOption {
	return func(r *RateLimiter) {
		r.audit = logger
	}
}

// WithRateClock overrides the time source; tests use this to advance time.
func WithRateClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.now = now
	}
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		windows:   make(map[string][]time.Time),
		rejecting: make(map[string]bool),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow checks the sliding window for identifier. Entries older than window
// are discarded first; if maxRequests remain the call is rejected WITHOUT
// recording the attempt, otherwise the attempt is recorded and accepted.
func (r *RateLimiter) Allow(identifier string, maxRequests int, window time.Duration) bool {
	now := r.now()
	cutoff := now.Add(-window)

	r.mu.Lock()

	stamps := r.windows[identifier]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= maxRequests {
		r.windows[identifier] = kept
		firstReject := !r.rejecting[identifier]
		r.rejecting[identifier] = true
		r.mu.Unlock()

		if firstReject && r.audit != nil {
			r.audit.Append(identifier, "rate.limit", "security",
				"request rate limit reached")
		}
		return false
	}

	r.windows[identifier] = append(kept, now)
	r.rejecting[identifier] = false
	r.mu.Unlock()
	return true
}

// Reset clears all recorded attempts for identifier.
func (r *RateLimiter) Reset(identifier string) {
	r.mu.Lock()
	delete(r.windows, identifier)
	delete(r.rejecting, identifier)
	r.mu.Unlock()
}

// Sweep drops identifiers whose newest entry is older than maxIdle, bounding
// memory for long-running processes. Callers invoke it opportunistically.
func (r *RateLimiter) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, stamps := range r.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(r.windows, id)
			delete(r.rejecting, id)
			removed++
		}
	}
	return removed
}

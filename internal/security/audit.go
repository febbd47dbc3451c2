// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides audit logging with secret redaction.
//
// Implements NIST 800-53 AU-3 (Content of Audit Records). The trail is
// append-only: the core never mutates or deletes an entry once written.
package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuditMaxSize is the default max file size before rotation (10MB).
const DefaultAuditMaxSize int64 = 10 * 1024 * 1024

// AnonymousActor is recorded when no identity is established.
const AnonymousActor = "anonymous"

// =============================================================================
// AUDIT ENTRY
// =============================================================================

// AuditEntry is a single append-only audit record.
type AuditEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
}

// ToLogLine formats the entry as a single pipe-delimited log line.
func (e *AuditEntry) ToLogLine() string {
	return fmt.Sprintf("%s | %s | %s | %s | %s | %s",
		e.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
		e.ID,
		e.Actor,
		e.Category,
		e.Action,
		e.Description,
	)
}

// ToJSON formats the entry as JSON.
func (e *AuditEntry) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// REDACTION
// =============================================================================

// Redactor replaces sensitive data before an entry is written.
type Redactor interface {
	Redact(input string) string
	Name() string
}

// PatternRedactor redacts text matching a regex pattern.
type PatternRedactor struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// NewPatternRedactor creates a redactor for the given pattern.
func NewPatternRedactor(name string, pattern *regexp.Regexp, replace string) *PatternRedactor {
	return &PatternRedactor{name: name, pattern: pattern, replace: replace}
}

// Redact applies the pattern replacement.
func (r *PatternRedactor) Redact(input string) string {
	return r.pattern.ReplaceAllString(input, r.replace)
}

// Name returns the redactor name.
func (r *PatternRedactor) Name() string {
	return r.name
}

func defaultRedactors() []Redactor {
	return []Redactor{
		NewPatternRedactor("password",
			regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`),
			"$1=[REDACTED]"),
		NewPatternRedactor("token",
			regexp.MustCompile(`(?i)(token|secret|api[_-]?key)\s*[=:]\s*\S+`),
			"$1=[REDACTED]"),
		NewPatternRedactor("bearer",
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
			"Bearer [REDACTED]"),
	}
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// AuditLogger appends redacted audit entries to a log file, rotating by
// size, and optionally mirrors each entry into the record store's plain path
// so admin views can list the trail without touching the file.
type AuditLogger struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	enabled   bool
	maxSize   int64
	redactors []Redactor
	store     RecordStore

	failureCount int
	lastFailure  error
}

// AuditLoggerOption configures an AuditLogger.
type AuditLoggerOption func(*AuditLogger)

// WithAuditStore mirrors entries into the given record store under
// "audit.<id>" keys.
func WithAuditStore(store RecordStore) AuditLoggerOption {
	return func(l *AuditLogger) { l.store = store }
}

// WithAuditMaxSize sets the rotation threshold in bytes.
func WithAuditMaxSize(size int64) AuditLoggerOption {
	return func(l *AuditLogger) { l.maxSize = size }
}

// NewAuditLogger opens (creating if needed) the audit log at path.
func NewAuditLogger(path string, opts ...AuditLoggerOption) (*AuditLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	l := &AuditLogger{
		path:      path,
		file:      file,
		enabled:   true,
		maxSize:   DefaultAuditMaxSize,
		redactors: defaultRedactors(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append writes one audit entry. An empty actor is recorded as "anonymous".
// The description passes through every redactor before it is persisted.
func (l *AuditLogger) Append(actor, action, category, description string) error {
	if actor == "" {
		actor = AnonymousActor
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}

	entry := AuditEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Actor:       actor,
		Action:      action,
		Category:    category,
		Description: l.redactLocked(description),
	}

	if err := l.checkRotationLocked(); err != nil {
		return l.recordFailureLocked(err)
	}
	if _, err := fmt.Fprintln(l.file, entry.ToLogLine()); err != nil {
		return l.recordFailureLocked(fmt.Errorf("failed to write audit entry: %w", err))
	}

	if l.store != nil {
		// Mirror failures are non-fatal: the file is the system of record.
		l.store.Set("audit."+entry.ID, entry)
	}

	l.failureCount = 0
	return nil
}

func (l *AuditLogger) recordFailureLocked(err error) error {
	l.failureCount++
	l.lastFailure = err
	return err
}

func (l *AuditLogger) redactLocked(input string) string {
	for _, r := range l.redactors {
		input = r.Redact(input)
	}
	return input
}

// AddRedactor registers an additional redactor.
func (l *AuditLogger) AddRedactor(r Redactor) {
	l.mu.Lock()
	l.redactors = append(l.redactors, r)
	l.mu.Unlock()
}

// Redact applies the configured redactors to input.
func (l *AuditLogger) Redact(input string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.redactLocked(input)
}

// checkRotationLocked rotates the file once it exceeds maxSize.
func (l *AuditLogger) checkRotationLocked() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat audit log: %w", err)
	}
	if info.Size() < l.maxSize {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}
	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to reopen audit log: %w", err)
	}
	l.file = file
	return nil
}

// SetEnabled enables or disables logging.
func (l *AuditLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// FailureCount returns the number of consecutive append failures.
func (l *AuditLogger) FailureCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failureCount
}

// LastFailure returns the most recent append failure, if any.
func (l *AuditLogger) LastFailure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastFailure
}

// Path returns the audit log file path.
func (l *AuditLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close flushes and closes the underlying file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

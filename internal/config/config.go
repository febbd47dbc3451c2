// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for adminguard.
//
// Supports TOML configuration with sensible defaults, ADMINGUARD_* environment
// variable overrides, validation, and live reload via filesystem watching.
//
// Configuration file location (in order of precedence):
//   - ~/.adminguard/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/adminguard/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete adminguard configuration.
type Config struct {
	Version string `toml:"version"`

	// Session contains idle-timeout settings (NIST 800-53 AC-11/AC-12).
	Session SessionConfig `toml:"session"`

	// Login contains login throttle settings (AC-7).
	Login LoginConfig `toml:"login"`

	// Password contains the local password policy (IA-5).
	Password PasswordConfig `toml:"password"`

	// Storage contains record store and key material paths (SC-28).
	Storage StorageConfig `toml:"storage"`

	// Audit contains audit trail settings (AU-3).
	Audit AuditConfig `toml:"audit"`
}

// SessionConfig contains session idle-timeout configuration.
type SessionConfig struct {
	// TimeoutSecs is the idle timeout in seconds.
	// Valid range is 900-1800 seconds (15-30 minutes) per DoD STIG; values
	// outside the range are clamped on load.
	TimeoutSecs int `toml:"timeout_secs"`
	// WarningSecs is how long before expiry the warning fires.
	WarningSecs int `toml:"warning_secs"`
	// PollSecs is the session clock poll cadence. 0 disables the
	// background poller (callers drive Check themselves).
	PollSecs int `toml:"poll_secs"`
}

// LoginConfig contains the AC-7 login throttle configuration.
type LoginConfig struct {
	// MaxAttempts is the attempt budget inside the sliding window.
	MaxAttempts int `toml:"max_attempts"`
	// WindowSecs is the sliding window length in seconds.
	WindowSecs int `toml:"window_secs"`
}

// PasswordConfig contains the local password policy.
type PasswordConfig struct {
	// MinLength is the minimum password length.
	MinLength int `toml:"min_length"`
	// RequireSpecial additionally requires a non-alphanumeric character.
	RequireSpecial bool `toml:"require_special"`
}

// StorageConfig contains record store configuration.
type StorageConfig struct {
	// Path is the record store database path (empty = ~/.adminguard/records.db).
	Path string `toml:"path"`
	// KeyPath is the vault key file path (empty = ~/.adminguard/vault.key).
	KeyPath string `toml:"key_path"`
}

// AuditConfig contains audit trail configuration.
type AuditConfig struct {
	// Enabled controls whether the audit trail is written.
	Enabled bool `toml:"enabled"`
	// Path is the audit log path (empty = ~/.adminguard/audit.log).
	Path string `toml:"path"`
	// MaxSizeBytes rotates the log when it grows past this size.
	MaxSizeBytes int64 `toml:"max_size_bytes"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Session: SessionConfig{
			TimeoutSecs: 1800, // 30 minutes, AC-12 max per DoD STIG
			WarningSecs: 300,  // 5 minute warning window
			PollSecs:    60,
		},

		Login: LoginConfig{
			MaxAttempts: 5,
			WindowSecs:  60,
		},

		Password: PasswordConfig{
			MinLength:      8,
			RequireSpecial: false,
		},

		Storage: StorageConfig{},

		Audit: AuditConfig{
			Enabled:      true,
			MaxSizeBytes: 10 * 1024 * 1024,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the adminguard configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".adminguard"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.clamp()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.clamp()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// clamp pins out-of-range values back into policy bounds instead of failing.
func (c *Config) clamp() {
	// AC-12: idle timeout must stay inside the 15-30 minute STIG range.
	if c.Session.TimeoutSecs < 900 {
		c.Session.TimeoutSecs = 900
	}
	if c.Session.TimeoutSecs > 1800 {
		c.Session.TimeoutSecs = 1800
	}
	if c.Session.WarningSecs <= 0 || c.Session.WarningSecs >= c.Session.TimeoutSecs {
		c.Session.WarningSecs = Default().Session.WarningSecs
	}
	if c.Session.PollSecs < 0 {
		c.Session.PollSecs = Default().Session.PollSecs
	}
	if c.Login.MaxAttempts <= 0 {
		c.Login.MaxAttempts = Default().Login.MaxAttempts
	}
	if c.Login.WindowSecs <= 0 {
		c.Login.WindowSecs = Default().Login.WindowSecs
	}
	if c.Password.MinLength <= 0 {
		c.Password.MinLength = Default().Password.MinLength
	}
	if c.Audit.MaxSizeBytes <= 0 {
		c.Audit.MaxSizeBytes = Default().Audit.MaxSizeBytes
	}
}

// Validate checks configuration invariants that clamping cannot repair.
func (c *Config) Validate() error {
	if c.Session.WarningSecs >= c.Session.TimeoutSecs {
		return fmt.Errorf("session warning window (%ds) must be shorter than the timeout (%ds)",
			c.Session.WarningSecs, c.Session.TimeoutSecs)
	}
	if c.Password.MinLength > 256 {
		return fmt.Errorf("password min_length %d is unreasonably large", c.Password.MinLength)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ADMINGUARD_* environment variables on top of the
// loaded configuration. Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := envInt("ADMINGUARD_SESSION_TIMEOUT_SECS"); ok {
		c.Session.TimeoutSecs = v
	}
	if v, ok := envInt("ADMINGUARD_SESSION_WARNING_SECS"); ok {
		c.Session.WarningSecs = v
	}
	if v, ok := envInt("ADMINGUARD_SESSION_POLL_SECS"); ok {
		c.Session.PollSecs = v
	}
	if v, ok := envInt("ADMINGUARD_LOGIN_MAX_ATTEMPTS"); ok {
		c.Login.MaxAttempts = v
	}
	if v, ok := envInt("ADMINGUARD_LOGIN_WINDOW_SECS"); ok {
		c.Login.WindowSecs = v
	}
	if v, ok := envInt("ADMINGUARD_PASSWORD_MIN_LENGTH"); ok {
		c.Password.MinLength = v
	}
	if v, ok := envBool("ADMINGUARD_PASSWORD_REQUIRE_SPECIAL"); ok {
		c.Password.RequireSpecial = v
	}
	if v := os.Getenv("ADMINGUARD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("ADMINGUARD_KEY_PATH"); v != "" {
		c.Storage.KeyPath = v
	}
	if v, ok := envBool("ADMINGUARD_AUDIT_ENABLED"); ok {
		c.Audit.Enabled = v
	}
	if v := os.Getenv("ADMINGUARD_AUDIT_PATH"); v != "" {
		c.Audit.Path = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to path atomically with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// DERIVED PATHS AND DURATIONS
// =============================================================================

// SessionTimeout returns the idle timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSecs) * time.Second
}

// WarningWindow returns the warning window as a duration.
func (c *Config) WarningWindow() time.Duration {
	return time.Duration(c.Session.WarningSecs) * time.Second
}

// PollInterval returns the session clock poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollSecs) * time.Second
}

// LoginWindow returns the login throttle window as a duration.
func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.Login.WindowSecs) * time.Second
}

// StoragePath returns the record store path, applying the default when unset.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "records.db"), nil
}

// KeyPath returns the vault key file path, applying the default when unset.
func (c *Config) KeyPath() (string, error) {
	if c.Storage.KeyPath != "" {
		return c.Storage.KeyPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vault.key"), nil
}

// AuditPath returns the audit log path, applying the default when unset.
func (c *Config) AuditPath() (string, error) {
	if c.Audit.Path != "" {
		return c.Audit.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.log"), nil
}

// adminguard - permission-gated admin console with encrypted local state.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pquerna/otp/totp"
	"golang.org/x/term"

	"github.com/jeranaias/adminguard/internal/config"
	"github.com/jeranaias/adminguard/internal/export"
	"github.com/jeranaias/adminguard/internal/security"
	"github.com/jeranaias/adminguard/internal/store"
	"github.com/jeranaias/adminguard/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.toml (default ~/.adminguard/config.toml)")
		seed        = flag.Bool("seed", false, "create the initial super-admin account and exit")
		seedTOTP    = flag.Bool("totp", false, "with -seed, also enroll a TOTP second factor")
		exportTrail = flag.String("export-audit", "", "export the audit trail to stdout as \"json\" or \"csv\" and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("adminguard %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	stack, err := buildStack(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer stack.close()

	if *seed {
		if err := runSeed(stack.records, cfg, *seedTOTP); err != nil {
			fatal("seed: %v", err)
		}
		return
	}

	if *exportTrail != "" {
		if err := runExport(stack.records, *exportTrail); err != nil {
			fatal("export audit: %v", err)
		}
		return
	}

	app := ui.NewApp(stack.coordinator)
	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "adminguard: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// =============================================================================
// STACK WIRING
// =============================================================================

// stack holds the wired security components for one process.
type stack struct {
	records     *store.RecordStore
	audit       *security.AuditLogger
	coordinator *security.Coordinator
}

func (s *stack) close() {
	if s.audit != nil {
		s.audit.Close()
	}
	if s.records != nil {
		s.records.Close()
	}
}

func buildStack(cfg *config.Config) (*stack, error) {
	keyPath, err := cfg.KeyPath()
	if err != nil {
		return nil, err
	}
	vault := security.NewVault(security.NewFileKeyStore(keyPath))
	if _, err := vault.GetOrCreateKey(); err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	storePath, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	records, err := store.Open(storePath, vault)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	auditPath, err := cfg.AuditPath()
	if err != nil {
		records.Close()
		return nil, err
	}
	audit, err := security.NewAuditLogger(auditPath,
		security.WithAuditMaxSize(cfg.Audit.MaxSizeBytes),
		security.WithAuditStore(records),
	)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	audit.SetEnabled(cfg.Audit.Enabled)

	coordinator := security.NewCoordinator(records,
		security.WithAuditLogger(audit),
		security.WithPasswordPolicy(security.PasswordPolicy{
			MinLength:      cfg.Password.MinLength,
			RequireSpecial: cfg.Password.RequireSpecial,
		}),
		security.WithLoginThrottle(cfg.Login.MaxAttempts, cfg.LoginWindow()),
		security.WithSessionClockOptions(
			security.WithSessionTimeout(cfg.SessionTimeout()),
			security.WithWarningWindow(cfg.WarningWindow()),
			security.WithPollInterval(cfg.PollInterval()),
		),
	)

	return &stack{records: records, audit: audit, coordinator: coordinator}, nil
}

// =============================================================================
// AUDIT EXPORT
// =============================================================================

// runExport writes the mirrored audit trail to stdout in the requested
// format. Entries come from the record store mirror rather than the log
// file, so rotation never truncates an export.
func runExport(records *store.RecordStore, format string) error {
	var exporter interface {
		Export(entries []security.AuditEntry) ([]byte, error)
	}
	switch format {
	case "json":
		exporter = export.NewJSONExporter(nil)
	case "csv":
		exporter = export.NewCSVExporter(nil)
	default:
		return fmt.Errorf("unknown format %q (want json or csv)", format)
	}

	keys, err := records.Keys()
	if err != nil {
		return err
	}
	entries := make([]security.AuditEntry, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, "audit.") {
			continue
		}
		var entry security.AuditEntry
		if records.Get(key, &entry) {
			entries = append(entries, entry)
		}
	}

	data, err := exporter.Export(entries)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// =============================================================================
// SEED FLOW
// =============================================================================

// runSeed interactively creates the first super-admin identity. It refuses
// to run when a catalog already exists so it cannot clobber live accounts.
func runSeed(records *store.RecordStore, cfg *config.Config, enrollTOTP bool) error {
	var existing []security.Identity
	if records.GetSecure(security.KeyIdentityCatalog, &existing) && len(existing) > 0 {
		return fmt.Errorf("identity catalog already exists (%d accounts)", len(existing))
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Super-admin username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	policy := security.PasswordPolicy{
		MinLength:      cfg.Password.MinLength,
		RequireSpecial: cfg.Password.RequireSpecial,
	}
	if !policy.Check(password) {
		return fmt.Errorf("password does not meet the policy (min length %d, upper, lower, digit)",
			policy.MinLength)
	}

	identity := security.Identity{
		Username:    username,
		DisplayName: username,
		Role:        security.RoleSuperAdmin,
		Status:      security.StatusActive,
		Password:    password,
	}

	if enrollTOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "adminguard",
			AccountName: username,
		})
		if err != nil {
			return fmt.Errorf("generate TOTP key: %w", err)
		}
		identity.TOTPSecret = key.Secret()
		fmt.Printf("\nTOTP secret (enroll in your authenticator now): %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
	}

	if !records.SetSecure(security.KeyIdentityCatalog, []security.Identity{identity}) {
		return fmt.Errorf("failed to persist identity catalog")
	}

	fmt.Printf("\nCreated super-admin %q at %s.\n", username, time.Now().Format(time.RFC3339))
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

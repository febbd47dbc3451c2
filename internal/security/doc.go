// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security implements the access-control core for adminguard:
// authentication, role and permission checks, idle-timeout session
// management, login throttling, credential validation, audit logging,
// and authenticated encryption for locally persisted records.
//
// The package maps to NIST 800-53 control families:
//   - IA-2: Identification and Authentication (Coordinator)
//   - AC-7: Unsuccessful Logon Attempts (RateLimiter)
//   - AC-11/AC-12: Session Lock and Termination (SessionClock)
//   - AC-5/AC-6: Separation of Duties, Least Privilege (Registry)
//   - AU-3: Content of Audit Records (AuditLogger)
//   - SC-28: Protection of Information at Rest (Vault)
//
// Surrounding view and CRUD code is a consumer of this package: it calls
// permission checks, reads and writes through the record store, and renders
// the decisions returned by the visibility pass. The core itself owns no UI
// beyond the session-warning callback.
package security

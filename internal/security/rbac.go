// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides RBAC (Role-Based Access Control) for NIST 800-53
// AC-5 and AC-6 compliance.
//
// Roles, permissions, and modules are closed, validated types: a typo in a
// permission string fails at construction instead of silently failing a
// check open or closed at runtime.
package security

import (
	"fmt"
	"regexp"
	"sync"

	"golang.org/x/time/rate"
)

// =============================================================================
// ROLES
// =============================================================================

// Role is an identity's role in the admin application.
type Role string

const (
	// RoleSuperAdmin bypasses individual permission checks entirely.
	RoleSuperAdmin Role = "super-admin"

	// RoleMemberAdmin manages the member roster.
	RoleMemberAdmin Role = "member-admin"

	// RoleEventAdmin manages events and attendance.
	RoleEventAdmin Role = "event-admin"

	// RoleCampAdmin manages camps and registrations.
	RoleCampAdmin Role = "camp-admin"

	// RoleViewer has read-only visibility into assigned modules.
	RoleViewer Role = "viewer"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin:  {},
	RoleMemberAdmin: {},
	RoleEventAdmin:  {},
	RoleCampAdmin:   {},
	RoleViewer:      {},
}

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r Role) bool {
	_, ok := knownRoles[r]
	return ok
}

// =============================================================================
// PERMISSIONS
// =============================================================================

// Permission is a capability token of the form "module" or "module.action".
type Permission string

var permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)?$`)

// ParsePermission validates s and returns it as a Permission.
func ParsePermission(s string) (Permission, error) {
	if !permissionPattern.MatchString(s) {
		return "", fmt.Errorf("invalid permission %q", s)
	}
	return Permission(s), nil
}

// =============================================================================
// MODULES
// =============================================================================

// Module names an application area whose access is permission-gated.
type Module string

const (
	ModuleMembers  Module = "members"
	ModuleEvents   Module = "events"
	ModuleCamps    Module = "camps"
	ModuleFinance  Module = "finance"
	ModuleReports  Module = "reports"
	ModuleSettings Module = "settings"
	ModuleAudit    Module = "audit"
)

// moduleAccess maps each module to the permissions that grant entry.
// Holding ANY listed permission admits the user (AC-6: module visibility is
// the union of its operational capabilities, not a separate grant).
var moduleAccess = map[Module][]Permission{
	ModuleMembers:  {"members.view", "members.edit", "members.delete"},
	ModuleEvents:   {"events.view", "events.edit", "events.delete"},
	ModuleCamps:    {"camps.view", "camps.edit", "camps.delete"},
	ModuleFinance:  {"finance.view", "finance.edit"},
	ModuleReports:  {"reports.view", "reports.export"},
	ModuleSettings: {"settings.view", "settings.edit"},
	ModuleAudit:    {"audit.view", "audit.export"},
}

// ValidModule reports whether m is a defined module.
func ValidModule(m Module) bool {
	_, ok := moduleAccess[m]
	return ok
}

// =============================================================================
// PERMISSION REGISTRY
// =============================================================================

// Registry holds the authenticated identity's role and permission set. It is
// rebuilt in full on every login and cleared on logout, so permissions from a
// previous session can never leak forward.
//
// A token-bucket limiter guards checks against flooding; exhausted checks
// fail closed (deny), never open.
type Registry struct {
	mu    sync.RWMutex
	role  Role
	perms map[Permission]struct{}

	checkLimiter *rate.Limiter
}

// NewRegistry creates an empty registry. Every check denies until Rebuild.
func NewRegistry() *Registry {
	return &Registry{
		perms: make(map[Permission]struct{}),
		// 100 sustained checks per second with burst headroom covers any
		// legitimate render pass.
		checkLimiter: rate.NewLimiter(rate.Limit(100), 500),
	}
}

// Rebuild replaces the registry contents with the given identity's role and
// permission set. Invalid permission strings are rejected wholesale rather
// than partially loaded.
func (r *Registry) Rebuild(role Role, perms []Permission) error {
	if !ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	next := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if _, err := ParsePermission(string(p)); err != nil {
			return err
		}
		next[p] = struct{}{}
	}

	r.mu.Lock()
	r.role = role
	r.perms = next
	r.mu.Unlock()
	return nil
}

// Clear empties the registry; every subsequent check denies.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.role = ""
	r.perms = make(map[Permission]struct{})
	r.mu.Unlock()
}

// HasPermission reports whether the loaded identity holds p. The top-level
// administrative role passes unconditionally.
func (r *Registry) HasPermission(p Permission) bool {
	if !r.checkLimiter.Allow() {
		// Fail closed under flooding.
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.role == RoleSuperAdmin {
		return true
	}
	_, ok := r.perms[p]
	return ok
}

// HasAny reports whether any permission in the list is held.
func (r *Registry) HasAny(perms []Permission) bool {
	for _, p := range perms {
		if r.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every permission in the list is held.
func (r *Registry) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !r.HasPermission(p) {
			return false
		}
	}
	return true
}

// CanAccessModule reports whether the identity may enter module: any of the
// module's listed permissions admits. Unknown modules deny.
func (r *Registry) CanAccessModule(m Module) bool {
	required, ok := moduleAccess[m]
	if !ok {
		return false
	}
	return r.HasAny(required)
}

// CanPerformAction tests the composite permission "<module>.<action>".
func (r *Registry) CanPerformAction(m Module, action string) bool {
	p, err := ParsePermission(string(m) + "." + action)
	if err != nil {
		return false
	}
	return r.HasPermission(p)
}

// Role returns the loaded role, or the empty string when cleared.
func (r *Registry) Role() Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role
}

// Permissions returns a snapshot of the loaded permission set.
func (r *Registry) Permissions() []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Permission, 0, len(r.perms))
	for p := range r.perms {
		out = append(out, p)
	}
	return out
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file contains tests for AC-5/AC-6 role-based access control.
package security

import "testing"

// TestValidRole tests the closed role set.
func TestValidRole(t *testing.T) {
	for _, r := range []Role{RoleSuperAdmin, RoleMemberAdmin, RoleEventAdmin, RoleCampAdmin, RoleViewer} {
		if !ValidRole(r) {
			t.Errorf("Defined role %q rejected", r)
		}
	}
	if ValidRole("root") {
		t.Error("Undefined role accepted")
	}
	if ValidRole("") {
		t.Error("Empty role accepted")
	}
}

// TestParsePermission tests the permission grammar.
func TestParsePermission(t *testing.T) {
	valid := []string{"members", "members.view", "audit_log.export", "a.b"}
	for _, s := range valid {
		if _, err := ParsePermission(s); err != nil {
			t.Errorf("ParsePermission(%q) failed: %v", s, err)
		}
	}

	invalid := []string{"", "Members.view", "members.", ".view", "members.view.all", "members view", "1members"}
	for _, s := range invalid {
		if _, err := ParsePermission(s); err == nil {
			t.Errorf("ParsePermission(%q) accepted malformed input", s)
		}
	}
}

// TestRegistryDeniesWhenEmpty tests that a fresh registry denies everything.
func TestRegistryDeniesWhenEmpty(t *testing.T) {
	r := NewRegistry()

	if r.HasPermission("members.view") {
		t.Error("Empty registry granted a permission")
	}
	if r.CanAccessModule(ModuleMembers) {
		t.Error("Empty registry granted module access")
	}
	if r.Role() != "" {
		t.Errorf("Empty registry holds role %q", r.Role())
	}
}

// TestRegistryRebuild tests a full permission load and exact-match checks.
func TestRegistryRebuild(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleMemberAdmin, []Permission{"members.view", "members.edit"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if !r.HasPermission("members.view") {
		t.Error("Granted permission denied")
	}
	if r.HasPermission("members.delete") {
		t.Error("Ungranted permission allowed")
	}
	if r.HasPermission("members") {
		t.Error("Prefix match allowed; permission comparison must be exact")
	}

	if !r.HasAny([]Permission{"finance.view", "members.edit"}) {
		t.Error("HasAny missed a held permission")
	}
	if r.HasAll([]Permission{"members.view", "members.delete"}) {
		t.Error("HasAll passed with a missing permission")
	}
	if !r.HasAll([]Permission{"members.view", "members.edit"}) {
		t.Error("HasAll failed with all permissions held")
	}
}

// TestRegistryRebuildRejectsInvalid tests all-or-nothing loading.
func TestRegistryRebuildRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	if err := r.Rebuild("owner", []Permission{"members.view"}); err == nil {
		t.Error("Rebuild accepted an undefined role")
	}
	if err := r.Rebuild(RoleViewer, []Permission{"members.view", "BAD.perm"}); err == nil {
		t.Error("Rebuild accepted a malformed permission")
	}

	// The failed rebuild must not have partially loaded anything.
	if r.HasPermission("members.view") {
		t.Error("Partial permission load after failed Rebuild")
	}
}

// TestRegistryClear tests logout semantics: everything denies afterwards.
func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleSuperAdmin, nil); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	r.Clear()

	if r.HasPermission("members.view") {
		t.Error("Cleared registry granted a permission")
	}
	if r.Role() != "" {
		t.Errorf("Cleared registry holds role %q", r.Role())
	}
}

// TestSuperAdminBypass tests that the top-level role passes every check
// without explicit grants.
func TestSuperAdminBypass(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleSuperAdmin, nil); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if !r.HasPermission("members.delete") {
		t.Error("Super-admin denied a permission")
	}
	if !r.CanAccessModule(ModuleFinance) {
		t.Error("Super-admin denied module access")
	}
	if !r.CanPerformAction(ModuleMembers, "delete") {
		t.Error("Super-admin denied an action")
	}
}

// TestCanAccessModuleAnyOf tests the any-of admission rule.
func TestCanAccessModuleAnyOf(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleViewer, []Permission{"members.view"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if !r.CanAccessModule(ModuleMembers) {
		t.Error("View-only grant should admit to the module")
	}
	if r.CanAccessModule(ModuleFinance) {
		t.Error("Module admitted without any of its permissions")
	}
	if r.CanAccessModule(Module("payroll")) {
		t.Error("Undefined module admitted")
	}
}

// TestCanPerformAction tests composite module.action checks.
func TestCanPerformAction(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleMemberAdmin, []Permission{"members.view", "members.edit"}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if !r.CanPerformAction(ModuleMembers, "edit") {
		t.Error("Held action denied")
	}
	if r.CanPerformAction(ModuleMembers, "delete") {
		t.Error("Unheld action allowed")
	}
	if r.CanPerformAction(ModuleMembers, "Drop Table") {
		t.Error("Malformed action must deny, not error open")
	}
}

// TestPermissionsSnapshot tests that the snapshot reflects the loaded set.
func TestPermissionsSnapshot(t *testing.T) {
	r := NewRegistry()
	grants := []Permission{"events.view", "events.edit"}
	if err := r.Rebuild(RoleEventAdmin, grants); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	snapshot := r.Permissions()
	if len(snapshot) != len(grants) {
		t.Fatalf("Expected %d permissions in snapshot, got %d", len(grants), len(snapshot))
	}
	seen := make(map[Permission]bool)
	for _, p := range snapshot {
		seen[p] = true
	}
	for _, p := range grants {
		if !seen[p] {
			t.Errorf("Permission %q missing from snapshot", p)
		}
	}
}

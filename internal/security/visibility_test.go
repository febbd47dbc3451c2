// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file contains tests for AC-6 UI gating: unauthorized navigation is
// hidden, unauthorized actions render disabled with a reason.
package security

import "testing"

func testGate(t *testing.T, role Role, perms []Permission) *Gate {
	t.Helper()
	r := NewRegistry()
	if err := r.Rebuild(role, perms); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	return NewGate(r)
}

// TestGateHidesUnauthorizedModules tests that failing navigation nodes are
// not rendered at all.
func TestGateHidesUnauthorizedModules(t *testing.T) {
	g := testGate(t, RoleViewer, []Permission{"members.view"})

	decisions := g.Evaluate([]GatedNode{
		{ID: "members", Module: ModuleMembers},
		{ID: "finance", Module: ModuleFinance},
	})

	if !decisions[0].Visible || !decisions[0].Enabled {
		t.Errorf("Granted module should be visible and enabled: %+v", decisions[0])
	}
	if decisions[1].Visible {
		t.Errorf("Ungranted module should be hidden: %+v", decisions[1])
	}
}

// TestGateDisablesUnauthorizedActions tests visible-but-disabled rendering
// for action-bound nodes.
func TestGateDisablesUnauthorizedActions(t *testing.T) {
	g := testGate(t, RoleMemberAdmin, []Permission{"members.view", "members.edit"})

	decisions := g.Evaluate([]GatedNode{
		{ID: "edit", Module: ModuleMembers, Action: "edit"},
		{ID: "delete", Module: ModuleMembers, Action: "delete"},
	})

	if !decisions[0].Enabled {
		t.Errorf("Granted action disabled: %+v", decisions[0])
	}
	if !decisions[1].Visible {
		t.Errorf("Ungranted action hidden; it should render disabled: %+v", decisions[1])
	}
	if decisions[1].Enabled {
		t.Errorf("Ungranted action enabled: %+v", decisions[1])
	}
	if decisions[1].Reason == "" {
		t.Error("Disabled action carries no reason")
	}
}

// TestGatePermissionAndRoleNodes tests single-permission and role-membership
// gating.
func TestGatePermissionAndRoleNodes(t *testing.T) {
	g := testGate(t, RoleEventAdmin, []Permission{"events.view"})

	decisions := g.Evaluate([]GatedNode{
		{ID: "held", Permission: "events.view"},
		{ID: "unheld", Permission: "finance.edit"},
		{ID: "role-ok", Roles: []Role{RoleEventAdmin, RoleCampAdmin}},
		{ID: "role-no", Roles: []Role{RoleSuperAdmin}},
		{ID: "open"},
	})

	expectVisible := map[string]bool{
		"held": true, "unheld": false, "role-ok": true, "role-no": false, "open": true,
	}
	for _, d := range decisions {
		if d.Visible != expectVisible[d.NodeID] {
			t.Errorf("Node %q: visible=%v, want %v", d.NodeID, d.Visible, expectVisible[d.NodeID])
		}
	}
}

// TestGateVisibleFilter tests the render-list convenience.
func TestGateVisibleFilter(t *testing.T) {
	g := testGate(t, RoleViewer, []Permission{"reports.view"})

	nodes := []GatedNode{
		{ID: "reports", Module: ModuleReports},
		{ID: "settings", Module: ModuleSettings},
		{ID: "export", Module: ModuleReports, Action: "export"},
	}
	visible := g.Visible(nodes)

	// settings is hidden; the export action stays visible (disabled).
	if len(visible) != 2 {
		t.Fatalf("Expected 2 visible nodes, got %d", len(visible))
	}
	if visible[0].ID != "reports" || visible[1].ID != "export" {
		t.Errorf("Unexpected visible set: %+v", visible)
	}
}

// TestGateClearedRegistryHidesEverything tests post-logout rendering.
func TestGateClearedRegistryHidesEverything(t *testing.T) {
	r := NewRegistry()
	if err := r.Rebuild(RoleSuperAdmin, nil); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	g := NewGate(r)
	r.Clear()

	decisions := g.Evaluate([]GatedNode{
		{ID: "members", Module: ModuleMembers},
		{ID: "delete", Module: ModuleMembers, Action: "delete"},
	})

	if decisions[0].Visible {
		t.Error("Module visible after registry clear")
	}
	if decisions[1].Enabled {
		t.Error("Action enabled after registry clear")
	}
}

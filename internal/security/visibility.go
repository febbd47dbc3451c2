// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides IL5 security controls.
//
// This file implements permission-driven UI gating (NIST 800-53 AC-6, least
// privilege): navigation and action surfaces are filtered against the
// permission registry before render, so unauthorized entries are never
// painted.
package security

// GatedNode describes one UI surface (a menu entry, a button, a route)
// together with the grant that unlocks it. Exactly one of Permission, Roles,
// or Module/Action should be set; a node with none of them is always
// visible.
type GatedNode struct {
	// ID identifies the node to the renderer.
	ID string

	// Permission gates the node on a single permission.
	Permission Permission

	// Roles gates the node on role membership (any-of).
	Roles []Role

	// Module gates the node on module access. When Action is also set the
	// node is treated as an action bound to "<module>.<action>".
	Module Module

	// Action, with Module, names a specific operation such as "delete".
	Action string
}

// Decision is the gate's verdict for one node.
type Decision struct {
	NodeID string

	// Visible is false when the node must not be rendered at all.
	Visible bool

	// Enabled is false when the node is rendered but not operable.
	// Visible && !Enabled is the disabled-with-reason presentation used
	// for action nodes.
	Enabled bool

	// Reason is a short operator-facing explanation for a disabled node.
	Reason string
}

// Gate evaluates nodes against a permission registry.
type Gate struct {
	registry *Registry
}

// NewGate creates a Gate over the given registry.
func NewGate(registry *Registry) *Gate {
	return &Gate{registry: registry}
}

// Evaluate returns a decision per node, in input order.
//
// Failing navigation nodes are hidden outright. Failing action nodes
// (Module+Action) stay visible but disabled with a reason, so operators can
// see that the operation exists without being able to trigger it. Registry
// checks fail closed, so a throttled or cleared registry hides everything
// gated.
func (g *Gate) Evaluate(nodes []GatedNode) []Decision {
	decisions := make([]Decision, 0, len(nodes))
	for _, node := range nodes {
		decisions = append(decisions, g.evaluateNode(node))
	}
	return decisions
}

// Visible filters nodes down to those that should be rendered.
func (g *Gate) Visible(nodes []GatedNode) []GatedNode {
	out := make([]GatedNode, 0, len(nodes))
	for _, node := range nodes {
		if g.evaluateNode(node).Visible {
			out = append(out, node)
		}
	}
	return out
}

func (g *Gate) evaluateNode(node GatedNode) Decision {
	d := Decision{NodeID: node.ID, Visible: true, Enabled: true}

	switch {
	case node.Module != "" && node.Action != "":
		if !g.registry.CanPerformAction(node.Module, node.Action) {
			d.Enabled = false
			d.Reason = "insufficient permissions"
		}
	case node.Module != "":
		if !g.registry.CanAccessModule(node.Module) {
			d.Visible = false
			d.Enabled = false
		}
	case node.Permission != "":
		if !g.registry.HasPermission(node.Permission) {
			d.Visible = false
			d.Enabled = false
		}
	case len(node.Roles) > 0:
		if !g.hasAnyRole(node.Roles) {
			d.Visible = false
			d.Enabled = false
		}
	}
	return d
}

func (g *Gate) hasAnyRole(roles []Role) bool {
	current := g.registry.Role()
	for _, r := range roles {
		if current == r {
			return true
		}
	}
	return false
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the adminguard terminal interface.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/adminguard/internal/security"
	"github.com/jeranaias/adminguard/internal/ui/styles"
)

// =============================================================================
// GATED MENU
// =============================================================================

// MenuEntry pairs a rendered label with its access gate.
type MenuEntry struct {
	Label string
	Node  security.GatedNode
}

// DefaultMenu is the top-level navigation, one entry per module plus the
// destructive member action that demonstrates disabled-with-reason
// presentation.
func DefaultMenu() []MenuEntry {
	return []MenuEntry{
		{Label: "Members", Node: security.GatedNode{ID: "members", Module: security.ModuleMembers}},
		{Label: "Events", Node: security.GatedNode{ID: "events", Module: security.ModuleEvents}},
		{Label: "Camps", Node: security.GatedNode{ID: "camps", Module: security.ModuleCamps}},
		{Label: "Finance", Node: security.GatedNode{ID: "finance", Module: security.ModuleFinance}},
		{Label: "Reports", Node: security.GatedNode{ID: "reports", Module: security.ModuleReports}},
		{Label: "Settings", Node: security.GatedNode{ID: "settings", Module: security.ModuleSettings}},
		{Label: "Audit Trail", Node: security.GatedNode{ID: "audit", Module: security.ModuleAudit}},
		{Label: "Delete Member", Node: security.GatedNode{ID: "members.delete", Module: security.ModuleMembers, Action: "delete"}},
		{Label: "Change Password", Node: security.GatedNode{ID: "password"}},
	}
}

// renderedEntry is one menu row after gating.
type renderedEntry struct {
	entry    MenuEntry
	decision security.Decision
}

// Menu is the permission-gated navigation screen.
type Menu struct {
	entries []MenuEntry
	gate    *security.Gate
	rows    []renderedEntry
	cursor  int
	status  string
}

// NewMenu creates a menu over the given gate.
func NewMenu(gate *security.Gate, entries []MenuEntry) Menu {
	m := Menu{entries: entries, gate: gate}
	m.Refresh()
	return m
}

// Refresh re-evaluates every entry against the gate. Call after login,
// logout, or any permission change: hidden entries drop out of the row list
// entirely, disabled ones stay with a reason.
func (m *Menu) Refresh() {
	m.rows = m.rows[:0]
	for _, e := range m.entries {
		d := m.gate.Evaluate([]security.GatedNode{e.Node})[0]
		if !d.Visible {
			continue
		}
		m.rows = append(m.rows, renderedEntry{entry: e, decision: d})
	}
	if m.cursor >= len(m.rows) {
		m.cursor = 0
	}
}

// SetStatus shows a one-line status message under the menu.
func (m *Menu) SetStatus(msg string) {
	m.status = msg
}

// Update handles navigation keys. It returns the selected entry ID when the
// operator activates an enabled row.
func (m *Menu) Update(msg tea.Msg) (selected string) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return ""
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.rows) == 0 {
			return ""
		}
		row := m.rows[m.cursor]
		if !row.decision.Enabled {
			m.status = fmt.Sprintf("%s: %s", row.entry.Label, row.decision.Reason)
			return ""
		}
		return row.entry.Node.ID
	}
	return ""
}

// View renders the menu.
func (m *Menu) View(identity *security.SessionIdentity, remaining string) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render("adminguard"))
	sb.WriteString("\n")

	if identity != nil {
		sb.WriteString(styles.Success.Render(
			fmt.Sprintf("signed in as %s (%s)", identity.Username, identity.Role)))
		if remaining != "" {
			sb.WriteString(styles.Help.Render("  session: " + remaining))
		}
		sb.WriteString("\n\n")
	}

	for i, row := range m.rows {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		line := prefix + row.entry.Label
		switch {
		case !row.decision.Enabled:
			line += " (" + row.decision.Reason + ")"
			sb.WriteString(styles.Disabled.Render(line))
		case i == m.cursor:
			sb.WriteString(styles.Selected.Render(line))
		default:
			sb.WriteString(styles.Label.Render(line))
		}
		sb.WriteString("\n")
	}

	if m.status != "" {
		sb.WriteString("\n")
		sb.WriteString(styles.Error.Render(m.status))
		sb.WriteString("\n")
	}

	sb.WriteString(styles.Help.Render("↑/↓: navigate • enter: open • ctrl+l: sign out • ctrl+c: quit"))
	return styles.Frame.Render(sb.String())
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the adminguard terminal interface.
package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/adminguard/internal/ui/styles"
)

// =============================================================================
// PASSWORD CHANGE FORM
// =============================================================================

const (
	pwFieldCurrent = iota
	pwFieldNew
	pwFieldConfirm
	pwFieldCount
)

// PasswordForm collects current and new credentials for a password change.
type PasswordForm struct {
	inputs [pwFieldCount]textinput.Model
	focus  int
	errMsg string
	forced bool
}

// NewPasswordForm creates an empty password change form. When forced is
// true, the header explains why the operator landed here before reaching
// the menu.
func NewPasswordForm(forced bool) PasswordForm {
	var f PasswordForm
	f.forced = forced

	placeholders := [pwFieldCount]string{"current password", "new password", "confirm new password"}
	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 256
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '*'
		f.inputs[i] = in
	}
	f.inputs[pwFieldCurrent].Focus()
	return f
}

// Values returns the current, new, and confirmation passwords.
func (f *PasswordForm) Values() (current, next, confirm string) {
	return f.inputs[pwFieldCurrent].Value(),
		f.inputs[pwFieldNew].Value(),
		f.inputs[pwFieldConfirm].Value()
}

// SetError shows an inline error below the form.
func (f *PasswordForm) SetError(msg string) {
	f.errMsg = msg
}

// Update handles key events; submit=true when the operator confirms on the
// last field, cancel=true on escape.
func (f *PasswordForm) Update(msg tea.Msg) (cmd tea.Cmd, submit, cancel bool) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc:
			return nil, false, true
		case tea.KeyTab, tea.KeyDown:
			f.setFocus((f.focus + 1) % pwFieldCount)
			return nil, false, false
		case tea.KeyShiftTab, tea.KeyUp:
			f.setFocus((f.focus + pwFieldCount - 1) % pwFieldCount)
			return nil, false, false
		case tea.KeyEnter:
			if f.focus < pwFieldCount-1 {
				f.setFocus(f.focus + 1)
				return nil, false, false
			}
			return nil, true, false
		}
	}

	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd, false, false
}

func (f *PasswordForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = i
	f.inputs[f.focus].Focus()
}

// View renders the form.
func (f *PasswordForm) View() string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render("Change password"))
	sb.WriteString("\n")

	if f.forced {
		sb.WriteString(styles.Warning.Render("A password change is required before you can continue."))
		sb.WriteString("\n\n")
	}

	labels := [pwFieldCount]string{"Current password", "New password", "Confirm"}
	for i := range f.inputs {
		sb.WriteString(styles.Label.Render(labels[i]))
		sb.WriteString("\n")
		sb.WriteString(f.inputs[i].View())
		sb.WriteString("\n")
	}

	if f.errMsg != "" {
		sb.WriteString("\n")
		sb.WriteString(styles.Error.Render(f.errMsg))
		sb.WriteString("\n")
	}

	sb.WriteString(styles.Help.Render("tab: next field • enter: submit • esc: cancel"))
	return styles.Frame.Render(sb.String())
}

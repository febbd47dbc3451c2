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
// LOGIN FORM
// =============================================================================

const (
	loginFieldUsername = iota
	loginFieldPassword
	loginFieldTOTP
	loginFieldCount
)

// LoginForm collects username, password, and an optional TOTP code.
type LoginForm struct {
	inputs [loginFieldCount]textinput.Model
	focus  int
	errMsg string
	notice string
}

// NewLoginForm creates an empty login form.
func NewLoginForm() LoginForm {
	var f LoginForm

	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 256
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	code := textinput.New()
	code.Placeholder = "TOTP code (if enrolled)"
	code.CharLimit = 6

	f.inputs[loginFieldUsername] = username
	f.inputs[loginFieldPassword] = password
	f.inputs[loginFieldTOTP] = code
	return f
}

// Values returns the trimmed username and the raw password and code.
func (f *LoginForm) Values() (username, password, code string) {
	return strings.TrimSpace(f.inputs[loginFieldUsername].Value()),
		f.inputs[loginFieldPassword].Value(),
		strings.TrimSpace(f.inputs[loginFieldTOTP].Value())
}

// Reset clears all fields and refocuses the username input.
func (f *LoginForm) Reset() {
	for i := range f.inputs {
		f.inputs[i].SetValue("")
		f.inputs[i].Blur()
	}
	f.focus = loginFieldUsername
	f.inputs[loginFieldUsername].Focus()
	f.errMsg = ""
}

// SetError shows an inline error below the form.
func (f *LoginForm) SetError(msg string) {
	f.errMsg = msg
}

// SetNotice shows an informational line above the form (for example after a
// session expired).
func (f *LoginForm) SetNotice(msg string) {
	f.notice = msg
}

// Update handles key events. It reports submit=true when the operator
// confirms the form on the last field.
func (f *LoginForm) Update(msg tea.Msg) (cmd tea.Cmd, submit bool) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyTab, tea.KeyDown:
			f.setFocus((f.focus + 1) % loginFieldCount)
			return nil, false
		case tea.KeyShiftTab, tea.KeyUp:
			f.setFocus((f.focus + loginFieldCount - 1) % loginFieldCount)
			return nil, false
		case tea.KeyEnter:
			if f.focus < loginFieldCount-1 {
				f.setFocus(f.focus + 1)
				return nil, false
			}
			return nil, true
		}
	}

	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd, false
}

func (f *LoginForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = i
	f.inputs[f.focus].Focus()
}

// View renders the form.
func (f *LoginForm) View() string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render("adminguard sign in"))
	sb.WriteString("\n")

	if f.notice != "" {
		sb.WriteString(styles.Warning.Render(f.notice))
		sb.WriteString("\n\n")
	}

	labels := [loginFieldCount]string{"Username", "Password", "TOTP"}
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

	sb.WriteString(styles.Help.Render("tab: next field • enter: sign in • ctrl+c: quit"))
	return styles.Frame.Render(sb.String())
}

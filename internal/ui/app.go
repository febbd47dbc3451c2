// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the adminguard terminal interface.
//
// The App model owns the screen state machine: sign-in, forced password
// change, the permission-gated menu, and the voluntary change-password flow.
// All access decisions come from the security coordinator; the UI never
// caches a permission verdict across screens.
package ui

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/adminguard/internal/security"
	"github.com/jeranaias/adminguard/internal/ui/styles"
)

// =============================================================================
// SCREENS
// =============================================================================

type screen int

const (
	screenLogin screen = iota
	screenForcedChange
	screenMenu
	screenChangePassword
)

// tickMsg drives the session clock poll from the UI event loop.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// =============================================================================
// APP MODEL
// =============================================================================

// App is the top-level bubbletea model.
type App struct {
	coordinator *security.Coordinator
	gate        *security.Gate

	screen  screen
	login   LoginForm
	pwForm  PasswordForm
	menu    Menu

	width  int
	height int
}

// NewApp creates the application model over a coordinator.
func NewApp(coordinator *security.Coordinator) App {
	gate := security.NewGate(coordinator.Registry())
	return App{
		coordinator: coordinator,
		gate:        gate,
		screen:      screenLogin,
		login:       NewLoginForm(),
		menu:        NewMenu(gate, DefaultMenu()),
	}
}

// Init starts the session poll ticker.
func (a App) Init() tea.Cmd {
	return tick()
}

// =============================================================================
// UPDATE
// =============================================================================

// Update routes messages to the active screen.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tickMsg:
		return a.handleTick()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.coordinator.Logout()
			return a, tea.Quit
		}
		// Any keystroke on an authenticated screen counts as activity.
		if a.screen == screenMenu || a.screen == screenChangePassword {
			if clock := a.coordinator.Clock(); clock != nil {
				clock.Touch()
			}
		}
	}

	switch a.screen {
	case screenLogin:
		return a.updateLogin(msg)
	case screenForcedChange, screenChangePassword:
		return a.updatePassword(msg)
	case screenMenu:
		return a.updateMenu(msg)
	}
	return a, nil
}

func (a App) handleTick() (tea.Model, tea.Cmd) {
	if a.screen == screenMenu || a.screen == screenChangePassword {
		if clock := a.coordinator.Clock(); clock != nil {
			clock.Check()
		}
		// The expiry callback logs the session out; when that happens the
		// menu screen falls back to sign-in with an explanation.
		if !a.coordinator.IsAuthenticated() {
			a.toLogin("Your session expired due to inactivity. Please sign in again.")
		}
	}
	return a, tick()
}

func (a *App) toLogin(notice string) {
	a.screen = screenLogin
	a.login = NewLoginForm()
	a.login.SetNotice(notice)
}

func (a App) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd, submit := a.login.Update(msg)
	if !submit {
		return a, cmd
	}

	username, password, code := a.login.Values()
	result, err := a.coordinator.Login(username, password, code)
	if err != nil {
		a.login.SetError(loginError(err))
		return a, nil
	}

	if result.ForcePasswordChange {
		a.screen = screenForcedChange
		a.pwForm = NewPasswordForm(true)
		return a, nil
	}

	a.screen = screenMenu
	a.menu = NewMenu(a.gate, DefaultMenu())
	return a, nil
}

func (a App) updatePassword(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd, submit, cancel := a.pwForm.Update(msg)
	if cancel {
		if a.screen == screenForcedChange {
			// Abandoning a forced change returns to sign-in; no session
			// exists to fall back to.
			a.coordinator.Logout()
			a.toLogin("")
		} else {
			a.screen = screenMenu
		}
		return a, nil
	}
	if !submit {
		return a, cmd
	}

	current, next, confirm := a.pwForm.Values()
	if next != confirm {
		a.pwForm.SetError("New passwords do not match.")
		return a, nil
	}

	if err := a.coordinator.ChangePassword(current, next); err != nil {
		a.pwForm.SetError(passwordError(err))
		return a, nil
	}

	if a.screen == screenForcedChange {
		a.toLogin("Password updated. Sign in with your new password.")
	} else {
		a.screen = screenMenu
		a.menu.SetStatus("Password updated.")
	}
	return a, nil
}

func (a App) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+l" {
		a.coordinator.Logout()
		a.toLogin("Signed out.")
		return a, nil
	}

	selected := a.menu.Update(msg)
	switch selected {
	case "":
		return a, nil
	case "password":
		a.screen = screenChangePassword
		a.pwForm = NewPasswordForm(false)
		return a, nil
	default:
		a.menu.SetStatus("Opened " + selected + ".")
		return a, nil
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the active screen, centered when the terminal size is known.
func (a App) View() string {
	var body string
	switch a.screen {
	case screenLogin:
		body = a.login.View()
	case screenForcedChange, screenChangePassword:
		body = a.pwForm.View()
	case screenMenu:
		body = a.menuView()
	}

	if a.width > 0 && a.height > 0 {
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, body)
	}
	return body
}

func (a App) menuView() string {
	identity := a.coordinator.CurrentIdentity()

	remaining := ""
	if clock := a.coordinator.Clock(); clock != nil {
		remaining = formatRemaining(clock.Remaining())
		if clock.State() == security.SessionWarning {
			warning := styles.Warning.Render(fmt.Sprintf(
				"Session expires in %s. Press any key to stay signed in.", remaining))
			return lipgloss.JoinVertical(lipgloss.Left,
				a.menu.View(identity, remaining), warning)
		}
	}

	return a.menu.View(identity, remaining)
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

// =============================================================================
// ERROR PRESENTATION
// =============================================================================

func loginError(err error) string {
	switch {
	case errors.Is(err, security.ErrTooManyAttempts):
		return "Too many attempts. Wait a minute and try again."
	case errors.Is(err, security.ErrAccountInactive):
		return "This account is not active. Contact an administrator."
	default:
		return "Invalid username or password."
	}
}

func passwordError(err error) string {
	switch {
	case errors.Is(err, security.ErrReauthentication):
		return "Current password is incorrect."
	case errors.Is(err, security.ErrWeakPassword):
		return "New password does not meet the policy (length, upper, lower, digit)."
	default:
		return "Password change failed. Try again."
	}
}

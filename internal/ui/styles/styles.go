// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the adminguard TUI.
//
// All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
// detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLOR PALETTE
// =============================================================================

var (
	// Cyan is the brand accent for headers and highlights.
	Cyan = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}

	// Emerald marks success states and the authenticated indicator.
	Emerald = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}

	// Amber marks warnings, including the session warning overlay.
	Amber = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}

	// Rose marks errors and lockout states.
	Rose = lipgloss.AdaptiveColor{Light: "#BE123C", Dark: "#FB7185"}

	// TextPrimary is the main content color.
	TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"}

	// TextMuted is for de-emphasized text such as disabled menu entries.
	TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// Title renders screen headers.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		MarginBottom(1)

	// Label renders form field labels.
	Label = lipgloss.NewStyle().
		Foreground(TextPrimary)

	// Error renders inline error messages.
	Error = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	// Success renders confirmation messages.
	Success = lipgloss.NewStyle().
		Foreground(Emerald)

	// Warning renders the session warning overlay body.
	Warning = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(1, 2)

	// Selected renders the highlighted menu entry.
	Selected = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	// Disabled renders visible-but-inoperable menu entries.
	Disabled = lipgloss.NewStyle().
			Foreground(TextMuted)

	// Help renders key hints at the bottom of each screen.
	Help = lipgloss.NewStyle().
		Foreground(TextMuted).
		MarginTop(1)

	// Frame wraps each screen in a border.
	Frame = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3)
)

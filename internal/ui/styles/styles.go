// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the quietchat palette and lipgloss styles.
// Colors are AdaptiveColor values; the theme decides which side is used.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

var (
	Purple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	Overlay       = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

	UserBorder      = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#3B82F6"}
	AssistantBorder = lipgloss.AdaptiveColor{Light: "#C4B5FD", Dark: "#A78BFA"}
)

// DetectDark reports whether the terminal background is dark.
func DetectDark() bool {
	return termenv.HasDarkBackground()
}

// =============================================================================
// THEME
// =============================================================================

// Theme is the set of styles the views render with.
type Theme struct {
	Dark bool

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Success   lipgloss.Style
	Selected  lipgloss.Style
	Badge     lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Status    lipgloss.Style
	Input     lipgloss.Style
}

// NewTheme builds the styles for a dark or light background and makes
// lipgloss resolve adaptive colors accordingly.
func NewTheme(dark bool) *Theme {
	lipgloss.SetHasDarkBackground(dark)
	return &Theme{
		Dark:      dark,
		Title:     lipgloss.NewStyle().Bold(true).Foreground(Cyan),
		Subtitle:  lipgloss.NewStyle().Foreground(TextSecondary),
		Muted:     lipgloss.NewStyle().Foreground(TextMuted),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(Rose),
		Warning:   lipgloss.NewStyle().Foreground(Amber),
		Success:   lipgloss.NewStyle().Foreground(Emerald),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(Purple),
		Badge:     lipgloss.NewStyle().Foreground(Emerald).Bold(true),
		User:      lipgloss.NewStyle().BorderStyle(lipgloss.ThickBorder()).BorderLeft(true).BorderForeground(UserBorder).PaddingLeft(1),
		Assistant: lipgloss.NewStyle().BorderStyle(lipgloss.ThickBorder()).BorderLeft(true).BorderForeground(AssistantBorder).PaddingLeft(1),
		Status:    lipgloss.NewStyle().Foreground(TextSecondary).BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(Overlay),
		Input:     lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(Purple).Padding(0, 1),
	}
}

// Toggle returns the opposite theme.
func (t *Theme) Toggle() *Theme {
	return NewTheme(!t.Dark)
}

// MarkdownStyle is the glamour standard style matching the theme.
func (t *Theme) MarkdownStyle() string {
	if t.Dark {
		return "dark"
	}
	return "light"
}

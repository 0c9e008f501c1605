// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

// defaultAccent is used when the theme file names no usable primaryColor.
const defaultAccent = "#7C3AED"

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// styles holds the lipgloss styles for one accent color.
type styles struct {
	accent    lipgloss.Color
	title     lipgloss.Style
	subtitle  lipgloss.Style
	banner    lipgloss.Style
	advisory  lipgloss.Style
	errorLine lipgloss.Style
	userLabel lipgloss.Style
	botLabel  lipgloss.Style
	status    lipgloss.Style
	help      lipgloss.Style
}

// newStyles builds styles tinted by accent. Terminals only take hex colors,
// so CSS names fall back to the default.
func newStyles(accent string) styles {
	if !hexColor.MatchString(accent) {
		accent = defaultAccent
	}
	c := lipgloss.Color(accent)
	muted := lipgloss.Color("#6B7280")

	return styles{
		accent:    c,
		title:     lipgloss.NewStyle().Bold(true).Foreground(c),
		subtitle:  lipgloss.NewStyle().Italic(true).Foreground(muted),
		banner:    lipgloss.NewStyle().Foreground(c).Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(c).PaddingLeft(1),
		advisory:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		errorLine: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
		userLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		botLabel:  lipgloss.NewStyle().Bold(true).Foreground(c),
		status:    lipgloss.NewStyle().Foreground(muted),
		help:      lipgloss.NewStyle().Faint(true),
	}
}

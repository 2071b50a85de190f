// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/hartmanng/camdelegate/lib/protocol"
)

// Theme defines the color palette for camdelegate's terminal UIs. All
// colors use lipgloss ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Permission and connection states.
	Positive lipgloss.Color
	Negative lipgloss.Color
	Pending  lipgloss.Color

	// Log lines at warn and error level.
	WarnText  lipgloss.Color
	ErrorText lipgloss.Color

	DialogBackground lipgloss.Color
}

// PermissionColor returns the color for a permission state.
func (theme Theme) PermissionColor(state protocol.PermissionState) lipgloss.Color {
	switch state {
	case protocol.PermissionGranted:
		return theme.Positive
	case protocol.PermissionDenied:
		return theme.Negative
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	Positive: lipgloss.Color("114"), // green
	Negative: lipgloss.Color("196"), // red
	Pending:  lipgloss.Color("220"), // amber

	WarnText:  lipgloss.Color("220"),
	ErrorText: lipgloss.Color("203"),

	DialogBackground: lipgloss.Color("237"),
}

// NewRenderer returns a lipgloss renderer for output with its color
// profile detected from the environment. A program writing to a pipe
// gets plain text.
func NewRenderer(output io.Writer) *lipgloss.Renderer {
	profile := termenv.NewOutput(output).EnvColorProfile()
	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return renderer
}

// PermissionLabel describes what granting permission allows, in the
// words a consent dialog uses.
func PermissionLabel(permission string) string {
	switch permission {
	case protocol.PermissionCamera:
		return "take pictures and record video"
	case protocol.PermissionPostNotifications:
		return "send you notifications"
	default:
		return "use " + permission
	}
}

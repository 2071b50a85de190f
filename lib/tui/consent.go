// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// ConsentResult is how a consent dialog ended.
type ConsentResult int

const (
	// ConsentPending: the dialog has not ended.
	ConsentPending ConsentResult = iota
	ConsentAllowed
	ConsentDenied

	// ConsentDismissed: the dialog went away without an answer.
	ConsentDismissed
)

// consentMaxWidth caps the dialog box so long permission names wrap
// instead of stretching it across a wide terminal.
const consentMaxWidth = 60

// Consent is the permission consent dialog: a bubbletea model that
// quits as soon as the user answers or backs out.
type Consent struct {
	Permission string

	// Requester names the app the permission is for.
	Requester string

	result   ConsentResult
	width    int
	theme    Theme
	keys     ConsentKeyMap
	help     help.Model
	renderer *lipgloss.Renderer
}

// NewConsent creates a dialog asking whether requester may hold
// permission.
func NewConsent(permission, requester string, theme Theme, renderer *lipgloss.Renderer) Consent {
	helpModel := help.New()
	helpModel.Styles.ShortKey = renderer.NewStyle().Foreground(theme.NormalText)
	helpModel.Styles.ShortDesc = renderer.NewStyle().Foreground(theme.HelpText)
	return Consent{
		Permission: permission,
		Requester:  requester,
		width:      consentMaxWidth,
		theme:      theme,
		keys:       ConsentKeys,
		help:       helpModel,
		renderer:   renderer,
	}
}

// Result returns how the dialog ended.
func (consent Consent) Result() ConsentResult { return consent.result }

// Init implements tea.Model.
func (consent Consent) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (consent Consent) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		consent.width = min(message.Width, consentMaxWidth)
		return consent, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(message, consent.keys.Allow):
			consent.result = ConsentAllowed
		case key.Matches(message, consent.keys.Deny):
			consent.result = ConsentDenied
		case key.Matches(message, consent.keys.Dismiss):
			consent.result = ConsentDismissed
		default:
			return consent, nil
		}
		return consent, tea.Quit
	}
	return consent, nil
}

// View implements tea.Model.
func (consent Consent) View() string {
	if consent.result != ConsentPending {
		return ""
	}

	// Border and padding take four columns.
	innerWidth := max(consent.width-4, 20)

	titleStyle := consent.renderer.NewStyle().
		Bold(true).
		Foreground(consent.theme.HeaderForeground)
	textStyle := consent.renderer.NewStyle().
		Foreground(consent.theme.NormalText)
	faintStyle := consent.renderer.NewStyle().
		Foreground(consent.theme.FaintText)
	boxStyle := consent.renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(consent.theme.BorderColor).
		Background(consent.theme.DialogBackground).
		Padding(0, 1)

	question := "Allow " + consent.Requester + " to " + PermissionLabel(consent.Permission) + "?"
	lines := []string{
		titleStyle.Render(ansi.Wordwrap(question, innerWidth, "")),
		faintStyle.Render(ansi.Truncate(consent.Permission, innerWidth, "…")),
		"",
		textStyle.Render(consent.help.ShortHelpView(consent.keys.ShortHelp())),
	}
	return boxStyle.Width(innerWidth+2).Render(strings.Join(lines, "\n")) + "\n"
}

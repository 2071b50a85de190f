// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hartmanng/camdelegate/lib/tui"
)

// TerminalPrompter shows the consent dialog on a terminal. Prompts
// must not overlap; Launcher guarantees that.
type TerminalPrompter struct {
	requester string
	input     io.Reader
	output    io.Writer
}

// NewTerminalPrompter returns a prompter drawing on output and reading
// keys from input. requester names the app in the dialog.
func NewTerminalPrompter(requester string, input io.Reader, output io.Writer) *TerminalPrompter {
	return &TerminalPrompter{requester: requester, input: input, output: output}
}

// Prompt implements Prompter.
func (p *TerminalPrompter) Prompt(ctx context.Context, permission string) (Decision, error) {
	model := tui.NewConsent(permission, p.requester, tui.DefaultTheme, tui.NewRenderer(p.output))
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(p.input),
		tea.WithOutput(p.output),
	)

	final, err := program.Run()
	if err != nil {
		return Dismissed, fmt.Errorf("consent dialog: %w", err)
	}
	switch final.(tui.Consent).Result() {
	case tui.ConsentAllowed:
		return Granted, nil
	case tui.ConsentDenied:
		return Denied, nil
	default:
		return Dismissed, nil
	}
}

// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hartmanng/camdelegate/lib/protocol"
)

func keyRunes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func TestConsentAnswers(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want ConsentResult
	}{
		{"allow", keyRunes("y"), ConsentAllowed},
		{"deny", keyRunes("n"), ConsentDenied},
		{"escape", tea.KeyMsg{Type: tea.KeyEsc}, ConsentDismissed},
		{"interrupt", tea.KeyMsg{Type: tea.KeyCtrlC}, ConsentDismissed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			consent := NewConsent(protocol.PermissionCamera, "camdelegate-client", DefaultTheme, NewRenderer(io.Discard))
			model, command := consent.Update(test.key)
			if got := model.(Consent).Result(); got != test.want {
				t.Errorf("Result = %v, want %v", got, test.want)
			}
			if command == nil {
				t.Fatal("answer did not quit the dialog")
			}
			if _, ok := command().(tea.QuitMsg); !ok {
				t.Error("command is not tea.Quit")
			}
		})
	}
}

func TestConsentIgnoresOtherKeys(t *testing.T) {
	consent := NewConsent(protocol.PermissionCamera, "client", DefaultTheme, NewRenderer(io.Discard))
	model, command := consent.Update(keyRunes("z"))
	if command != nil {
		t.Error("unbound key produced a command")
	}
	if got := model.(Consent).Result(); got != ConsentPending {
		t.Errorf("Result = %v, want pending", got)
	}
}

func TestConsentViewNamesPermission(t *testing.T) {
	consent := NewConsent(protocol.PermissionPostNotifications, "client", DefaultTheme, NewRenderer(io.Discard))
	view := consent.View()
	if !strings.Contains(view, "send you notifications") {
		t.Errorf("view does not describe the permission:\n%s", view)
	}
	if !strings.Contains(view, protocol.PermissionPostNotifications) {
		t.Errorf("view does not show the identifier:\n%s", view)
	}
}

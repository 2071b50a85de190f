// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/bubbles/key"

// ConsentKeyMap is the key binding set of the consent dialog.
type ConsentKeyMap struct {
	Allow   key.Binding
	Deny    key.Binding
	Dismiss key.Binding // Back out without answering.
}

// ConsentKeys is the built-in consent binding set.
var ConsentKeys = ConsentKeyMap{
	Allow: key.NewBinding(
		key.WithKeys("y", "a"),
		key.WithHelp("y", "allow"),
	),
	Deny: key.NewBinding(
		key.WithKeys("n", "d"),
		key.WithHelp("n", "don't allow"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc", "ctrl+c", "q"),
		key.WithHelp("esc", "dismiss"),
	),
}

// ShortHelp implements help.KeyMap.
func (keys ConsentKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Allow, keys.Deny, keys.Dismiss}
}

// FullHelp implements help.KeyMap.
func (keys ConsentKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{keys.ShortHelp()}
}

// PanelKeyMap is the key binding set of the client control panel. Each
// action key mirrors one button of the client app.
type PanelKeyMap struct {
	Bind               key.Binding
	Unbind             key.Binding
	RequestPermissions key.Binding
	RequestNotify      key.Binding
	RequestCamera      key.Binding
	StartForeground    key.Binding
	DelegateCamera     key.Binding
	Refresh            key.Binding // Re-query permission state.
	Abandon            key.Binding // Drop a stalled permission chain.
	Surface            key.Binding // Toggle the render target.
	Quit               key.Binding
}

// PanelKeys is the built-in panel binding set.
var PanelKeys = PanelKeyMap{
	Bind: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "bind"),
	),
	Unbind: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "unbind"),
	),
	RequestPermissions: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "request permissions"),
	),
	RequestNotify: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "notifications only"),
	),
	RequestCamera: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "camera only"),
	),
	StartForeground: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "start foreground"),
	),
	DelegateCamera: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "delegate camera"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh status"),
	),
	Abandon: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "abandon chain"),
	),
	Surface: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "toggle surface"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (keys PanelKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Bind, keys.RequestPermissions, keys.DelegateCamera, keys.Quit}
}

// FullHelp implements help.KeyMap.
func (keys PanelKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{keys.Bind, keys.Unbind, keys.StartForeground},
		{keys.RequestPermissions, keys.RequestNotify, keys.RequestCamera, keys.Abandon},
		{keys.DelegateCamera, keys.Surface, keys.Refresh, keys.Quit},
	}
}

// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// panelRefreshInterval is how often the panel re-reads status and log
// lines. Both change on other goroutines.
const panelRefreshInterval = 250 * time.Millisecond

// StatusLine is one row of the panel's status block.
type StatusLine struct {
	Label string
	Value string

	// Color of the value. Empty means normal text.
	Color lipgloss.Color
}

// PanelAction binds a key to an app action. Run is called from the
// panel's Update and must not block.
type PanelAction struct {
	Binding key.Binding
	Run     func()
}

// PanelConfig wires a Panel.
type PanelConfig struct {
	Title   string
	Actions []PanelAction
	Quit    key.Binding

	// Status is called on every render.
	Status func() []StatusLine

	Logs     *LogBuffer
	Help     help.KeyMap
	Theme    Theme
	Renderer *lipgloss.Renderer
}

// Panel is the client control panel.
type Panel struct {
	config PanelConfig
	help   help.Model
	width  int
	height int
}

type refreshMsg time.Time

// NewPanel creates a panel.
func NewPanel(config PanelConfig) Panel {
	helpModel := help.New()
	helpModel.Styles.ShortKey = config.Renderer.NewStyle().Foreground(config.Theme.NormalText)
	helpModel.Styles.ShortDesc = config.Renderer.NewStyle().Foreground(config.Theme.HelpText)
	helpModel.Styles.FullKey = helpModel.Styles.ShortKey
	helpModel.Styles.FullDesc = helpModel.Styles.ShortDesc
	helpModel.ShowAll = true
	return Panel{
		config: config,
		help:   helpModel,
		width:  80,
		height: 24,
	}
}

func refresh() tea.Cmd {
	return tea.Tick(panelRefreshInterval, func(now time.Time) tea.Msg {
		return refreshMsg(now)
	})
}

// Init implements tea.Model.
func (panel Panel) Init() tea.Cmd { return refresh() }

// Update implements tea.Model.
func (panel Panel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		panel.width = message.Width
		panel.height = message.Height
		panel.help.Width = message.Width

	case refreshMsg:
		return panel, refresh()

	case tea.KeyMsg:
		if key.Matches(message, panel.config.Quit) {
			return panel, tea.Quit
		}
		for _, action := range panel.config.Actions {
			if key.Matches(message, action.Binding) {
				action.Run()
				break
			}
		}
	}
	return panel, nil
}

// View implements tea.Model.
func (panel Panel) View() string {
	theme := panel.config.Theme
	renderer := panel.config.Renderer

	titleStyle := renderer.NewStyle().Bold(true).Foreground(theme.HeaderForeground)
	labelStyle := renderer.NewStyle().Foreground(theme.FaintText)
	ruleStyle := renderer.NewStyle().Foreground(theme.BorderColor)
	logStyle := renderer.NewStyle().Foreground(theme.NormalText)

	var sections []string
	sections = append(sections, titleStyle.Render(panel.config.Title))

	var status []StatusLine
	if panel.config.Status != nil {
		status = panel.config.Status()
	}
	labelWidth := 0
	for _, line := range status {
		labelWidth = max(labelWidth, len(line.Label))
	}
	for _, line := range status {
		color := line.Color
		if color == "" {
			color = theme.NormalText
		}
		label := labelStyle.Render(line.Label + strings.Repeat(" ", labelWidth-len(line.Label)))
		value := renderer.NewStyle().Foreground(color).Render(line.Value)
		sections = append(sections, ansi.Truncate(label+"  "+value, panel.width, "…"))
	}

	sections = append(sections, ruleStyle.Render(strings.Repeat("─", max(panel.width, 1))))

	helpView := ""
	if panel.config.Help != nil {
		helpView = panel.help.View(panel.config.Help)
	}

	used := len(sections) + lipgloss.Height(helpView) + 1
	if panel.config.Logs != nil {
		for _, line := range panel.config.Logs.Tail(max(panel.height-used, 0)) {
			sections = append(sections, logStyle.Render(ansi.Truncate(line, panel.width, "…")))
		}
	}

	sections = append(sections, "", helpView)
	return strings.Join(sections, "\n")
}

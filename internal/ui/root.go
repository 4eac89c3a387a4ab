package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/timer"
	"github.com/dori/terrain/internal/ui/theme"
	"github.com/dori/terrain/internal/ui/views"
	"go.uber.org/zap"
)

// SessionNotifier announces committed work sessions
type SessionNotifier interface {
	SendSessionCommitted(work string, price float64) error
}

// Option configures the root model
type Option func(*RootModel)

// WithNotifier announces sessions saved from the keyboard
func WithNotifier(n SessionNotifier) Option {
	return func(m *RootModel) {
		m.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *RootModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTheme selects the initial theme by name
func WithTheme(name string) Option {
	return func(m *RootModel) {
		if t, ok := theme.ByName(name); ok {
			theme.SetTheme(t)
		}
	}
}

// RootModel is the main application model around the on-site view
type RootModel struct {
	keys     KeyMap
	help     help.Model
	notifier SessionNotifier
	logger   *zap.Logger
	width    int
	height   int

	onsite      views.OnsiteView
	helpVisible bool

	states   <-chan *model.Intervention
	readings <-chan timer.Reading
	done     chan struct{}
	stop     func()

	statusMsg string
	errorMsg  string
}

// NewRootModel creates a new root model. Call Close once the program
// has exited to stop watching the controller.
func NewRootModel(ctx context.Context, ctrl views.Controller, opts ...Option) RootModel {
	h := help.New()
	h.ShowAll = false

	states, cancelStates := ctrl.State().Watch()
	readings, cancelReadings := ctrl.Reading().Watch()
	done := make(chan struct{})
	var once sync.Once

	m := RootModel{
		keys:     DefaultKeyMap(),
		help:     h,
		logger:   zap.NewNop(),
		onsite:   views.NewOnsiteView(ctx, ctrl),
		states:   states,
		readings: readings,
		done:     done,
		stop: func() {
			once.Do(func() {
				cancelStates()
				cancelReadings()
				close(done)
			})
		},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Close stops watching the controller
func (m RootModel) Close() {
	m.stop()
}

// Init initializes the model
func (m RootModel) Init() tea.Cmd {
	return tea.Batch(
		m.onsite.Init(),
		waitState(m.states, m.done),
		waitReading(m.readings, m.done),
	)
}

// Update handles messages
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		// Reserve space for header (2 lines) and footer (2 lines)
		m.onsite = m.onsite.SetSize(m.width, m.height-4)
		return m, nil

	case views.StateMsg:
		cmds = append(cmds, waitState(m.states, m.done))

	case views.ReadingMsg:
		cmds = append(cmds, waitReading(m.readings, m.done))

	case views.ActionDoneMsg:
		if msg.Err != nil {
			m.logger.Warn("action failed", zap.String("action", msg.Label), zap.Error(msg.Err))
		}
		if msg.Session != nil && m.notifier != nil {
			s := *msg.Session
			n := m.notifier
			cmds = append(cmds, func() tea.Msg {
				if err := n.SendSessionCommitted(s.WorkDuration, s.Price); err != nil {
					m.logger.Debug("session notification failed", zap.Error(err))
				}
				return nil
			})
		}

	case tea.KeyMsg:
		m.statusMsg = ""
		m.errorMsg = ""
		isInputMode := m.onsite.IsInputMode()

		switch {
		case key.Matches(msg, m.keys.Quit):
			// ctrl+c always quits, but 'q' only quits when not in input mode
			if msg.String() == "ctrl+c" || !isInputMode {
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.ThemeCycle):
			next := theme.Next()
			theme.SetTheme(next)
			return m, func() tea.Msg { return ThemeChangedMsg{ThemeName: next.Name} }
		}

		if !isInputMode && key.Matches(msg, m.keys.Help) {
			m.helpVisible = !m.helpVisible
			m.help.ShowAll = m.helpVisible
			return m, nil
		}
		if m.helpVisible && !isInputMode && key.Matches(msg, m.keys.Cancel) {
			m.helpVisible = false
			m.help.ShowAll = false
			return m, nil
		}

	case ErrorMsg:
		m.errorMsg = msg.Err.Error()
		return m, nil

	case StatusMsg:
		m.statusMsg = msg.Message
		return m, nil

	case ThemeChangedMsg:
		m.statusMsg = fmt.Sprintf("Theme: %s", msg.ThemeName)
		return m, nil
	}

	next, cmd := m.onsite.Update(msg)
	m.onsite = next.(views.OnsiteView)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the UI
func (m RootModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentHeight := m.height - 4
	if m.errorMsg != "" || m.statusMsg != "" {
		contentHeight--
	}

	var content string
	if m.helpVisible {
		content = m.renderHelp()
	} else {
		content = m.onsite.View()
	}

	// Ensure content fills available space
	contentLines := strings.Count(content, "\n") + 1
	if contentLines < contentHeight {
		content += strings.Repeat("\n", contentHeight-contentLines)
	}

	return strings.Join([]string{m.renderHeader(), content, m.renderFooter()}, "\n")
}

// renderHeader renders the header bar
func (m RootModel) renderHeader() string {
	styles := theme.Current.Styles
	t := theme.Current.Theme

	title := styles.Header.Render("terrain")

	viewStyle := lipgloss.NewStyle().
		Foreground(t.Subtle).
		Padding(0, 1)

	var ref string
	if inv := m.onsite.Intervention(); inv != nil {
		ref = viewStyle.Render(fmt.Sprintf("[%s]", shortID(inv.ID)))
	}
	themeIndicator := viewStyle.Render(fmt.Sprintf("theme: %s", t.Name))

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, title, ref)
	gap := m.width - lipgloss.Width(leftSide) - lipgloss.Width(themeIndicator)
	if gap < 0 {
		gap = 0
	}
	return leftSide + strings.Repeat(" ", gap) + themeIndicator
}

// renderFooter renders the footer/status bar with hints for the
// actions the current status allows
func (m RootModel) renderFooter() string {
	styles := theme.Current.Styles
	t := theme.Current.Theme

	hint := func(k, desc string) string {
		return styles.HelpKey.Render(k) + styles.HelpDesc.Render(" "+desc)
	}
	sep := styles.HelpSeparator.Render(" │ ")

	var statusLine string
	if m.errorMsg != "" {
		statusLine = lipgloss.NewStyle().Foreground(t.Error).Render(m.errorMsg)
	} else if m.statusMsg != "" {
		statusLine = lipgloss.NewStyle().Foreground(t.Info).Render(m.statusMsg)
	}

	var line1, line2 string
	if m.onsite.IsInputMode() {
		line1 = hint("enter", "confirm") + sep + hint("esc", "cancel")
	} else {
		var parts []string
		for _, a := range m.onsite.Actions() {
			switch a {
			case lifecycle.Play:
				parts = append(parts, hint("s", "start"))
			case lifecycle.Pause:
				parts = append(parts, hint("p", "pause"))
			case lifecycle.Stop:
				parts = append(parts, hint("S", "stop & save"))
			case lifecycle.RequestRevisit:
				parts = append(parts, hint("R", "revisit"))
			case lifecycle.Finish:
				parts = append(parts, hint("F", "finish"))
			}
		}
		parts = append(parts, hint("?", "help"), hint("q", "quit"))
		line1 = strings.Join(parts, sep)
		line2 = hint("m", "material") + sep +
			hint("o", "order") + sep +
			hint("a", "add time") + sep +
			hint("+/-", "travel") + sep +
			hint("tab", "lists") + sep +
			hint("d", "delete")
	}

	var lines []string
	if statusLine != "" {
		lines = append(lines, statusLine)
	}
	lines = append(lines, line1)
	if line2 != "" {
		lines = append(lines, line2)
	}
	return strings.Join(lines, "\n")
}

// renderHelp renders the help overlay
func (m RootModel) renderHelp() string {
	t := theme.Current.Theme

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		MarginBottom(1)
	descStyle := lipgloss.NewStyle().
		Foreground(t.Subtle)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Terrain Help"))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n\n")
	b.WriteString(descStyle.Render("The timer keeps counting while terrain is closed. Unsaved changes are retried with ctrl+s."))
	b.WriteString("\n\n")
	b.WriteString(descStyle.Render("Press ? or esc to close"))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

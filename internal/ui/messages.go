package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/timer"
	"github.com/dori/terrain/internal/ui/views"
)

// ErrorMsg contains an error to display
type ErrorMsg struct {
	Err error
}

// StatusMsg contains a status message to display
type StatusMsg struct {
	Message string
}

// ThemeChangedMsg indicates the theme was changed
type ThemeChangedMsg struct {
	ThemeName string
}

// waitState delivers the next intervention snapshot as a StateMsg. It
// returns nil once done is closed.
func waitState(ch <-chan *model.Intervention, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case inv := <-ch:
			return views.StateMsg{Intervention: inv}
		case <-done:
			return nil
		}
	}
}

// waitReading delivers the next timer refresh as a ReadingMsg
func waitReading(ch <-chan timer.Reading, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-ch:
			return views.ReadingMsg{Reading: r}
		case <-done:
			return nil
		}
	}
}

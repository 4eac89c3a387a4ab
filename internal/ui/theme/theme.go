package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dori/terrain/internal/model"
)

// Theme defines the color scheme and styles for the UI
type Theme struct {
	Name string

	// Base colors
	Background lipgloss.Color
	Foreground lipgloss.Color
	Subtle     lipgloss.Color
	Highlight  lipgloss.Color
	Border     lipgloss.Color

	// Semantic colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Info      lipgloss.Color

	// Status colors
	StatusWaiting lipgloss.Color // OPEN, WAITING, PLANNED
	StatusRunning lipgloss.Color
	StatusPaused  lipgloss.Color
	StatusStopped lipgloss.Color
	StatusDone    lipgloss.Color
	StatusClosed  lipgloss.Color // BILLED, PAID
}

// StatusColor returns the badge color for an intervention status
func (t Theme) StatusColor(s model.Status) lipgloss.Color {
	switch s {
	case model.StatusStarted:
		return t.StatusRunning
	case model.StatusPaused:
		return t.StatusPaused
	case model.StatusStopped:
		return t.StatusStopped
	case model.StatusEnd:
		return t.StatusDone
	case model.StatusBilled, model.StatusPaid:
		return t.StatusClosed
	default:
		return t.StatusWaiting
	}
}

// Styles holds pre-computed lipgloss styles based on theme
type Styles struct {
	Header lipgloss.Style
	Footer lipgloss.Style

	// Line styles
	LineNormal   lipgloss.Style
	LineSelected lipgloss.Style
	LineMuted    lipgloss.Style

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Amount   lipgloss.Style

	Input        lipgloss.Style
	InputFocused lipgloss.Style

	Panel      lipgloss.Style
	PanelTitle lipgloss.Style

	HelpKey       lipgloss.Style
	HelpDesc      lipgloss.Style
	HelpSeparator lipgloss.Style
}

// NewStyles creates styles from a theme
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(t.Subtle).
			Padding(0, 1),

		LineNormal: lipgloss.NewStyle().
			Foreground(t.Foreground).
			Padding(0, 1),

		LineSelected: lipgloss.NewStyle().
			Foreground(t.Foreground).
			Background(t.Highlight).
			Padding(0, 1),

		LineMuted: lipgloss.NewStyle().
			Foreground(t.Subtle).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Italic(true),

		Label: lipgloss.NewStyle().
			Foreground(t.Subtle),

		Amount: lipgloss.NewStyle().
			Foreground(t.Success).
			Bold(true),

		Input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),

		InputFocused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),

		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),

		PanelTitle: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Bold(true),

		HelpKey: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),

		HelpDesc: lipgloss.NewStyle().
			Foreground(t.Subtle),

		HelpSeparator: lipgloss.NewStyle().
			Foreground(t.Border),
	}
}

// Current holds the current active theme and styles
var Current = struct {
	Theme  Theme
	Styles Styles
}{
	Theme:  Nord,
	Styles: NewStyles(Nord),
}

// SetTheme changes the current theme
func SetTheme(t Theme) {
	Current.Theme = t
	Current.Styles = NewStyles(t)
}

// Available returns all available themes
func Available() []Theme {
	return []Theme{
		Nord,
		Dracula,
		Gruvbox,
		Catppuccin,
	}
}

// ByName returns a theme by its name
func ByName(name string) (Theme, bool) {
	for _, t := range Available() {
		if t.Name == name {
			return t, true
		}
	}
	return Theme{}, false
}

// Next returns the theme after the current one, wrapping around
func Next() Theme {
	themes := Available()
	for i, t := range themes {
		if t.Name == Current.Theme.Name {
			return themes[(i+1)%len(themes)]
		}
	}
	return themes[0]
}

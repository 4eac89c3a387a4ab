package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dori/terrain/internal/ui/theme"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// newTable returns a bordered table styled from the active theme
func newTable(headers ...string) *table.Table {
	th := theme.Current
	header := th.Styles.Title.Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(th.Theme.Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cellStyle
		}).
		Headers(headers...)
}

// newFieldTable lays out label/value pairs without a grid
func newFieldTable() *table.Table {
	th := theme.Current
	label := th.Styles.Label.PaddingRight(2)
	value := lipgloss.NewStyle().Align(lipgloss.Right)
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return label
			}
			return value
		})
}

func renderTable(w io.Writer, t *table.Table) {
	fmt.Fprintln(w, t.Render())
}

package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles colours terminal output. Writers that are not terminals get
// plain text.
type styles struct {
	ok      lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	heading lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:      r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")), // Green
		fail:    r.NewStyle().Foreground(lipgloss.Color("#F38BA8")), // Red
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")), // Medium gray
		heading: r.NewStyle().Bold(true),
	}
}

func (s styles) okMark() string   { return s.ok.Render("✓") }
func (s styles) failMark() string { return s.fail.Render("✗") }

package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/recents/internal/models"
)

// DefaultPalette uses the Spotify green for success.
var DefaultPalette = NewPalette("#7D56F4", "#1DB954", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// PlainPalette renders text unstyled, for non-terminal output.
func PlainPalette() *Palette {
	plain := lipgloss.NewStyle()
	return &Palette{title: plain, ok: plain, err: plain, warn: plain, help: plain}
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Status colors s by run or playlist status.
func (p *Palette) Status(status models.RunStatus, s string) string {
	switch status {
	case models.StatusSuccess:
		return p.OK(s)
	case models.StatusPartial:
		return p.Warn(s)
	case models.StatusFailed:
		return p.Err(s)
	default:
		return p.Help(s)
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

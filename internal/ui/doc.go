// Package ui renders sync progress and run summaries for the terminal with lipgloss styles.
//
// [Palette.Watch] drains the engine's progress channel, printing one line per update, and
// [Palette.RenderSummary] prints the per-playlist outcome of a finished run. [PlainPalette]
// disables styling when output is redirected.
package ui

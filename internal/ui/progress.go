package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/desertthunder/recents/internal/tasks"
)

// RenderProgress formats one progress update as a single line.
func (p *Palette) RenderProgress(update tasks.ProgressUpdate) string {
	switch update.Phase {
	case tasks.LoadCredentials, tasks.ValidateToken:
		return "🔑 " + update.Message
	case tasks.FetchLibrary, tasks.PlanChunks:
		return "📥 " + update.Message
	case tasks.ResolvePlaylist, tasks.FetchPlaylist:
		return p.Help("   " + update.Message)
	case tasks.CreatePlaylist:
		return "📝 " + p.OK(update.Message)
	case tasks.ConvergePlaylist:
		if report, ok := update.Data.(*tasks.ConvergeReport); ok && report != nil {
			return p.OK(update.Message)
		}
		return p.Err(update.Message)
	case tasks.RunComplete:
		if rec, ok := update.Data.(*models.RunRecord); ok && rec != nil {
			return p.Status(rec.Status, update.Message)
		}
	}
	return update.Message
}

// Watch prints progress updates to w until ch is closed, then closes done.
func (p *Palette) Watch(w io.Writer, ch <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range ch {
		if update.Phase == tasks.RunComplete {
			continue
		}
		fmt.Fprintln(w, p.RenderProgress(update))
	}
}

// RenderSummary formats a finished run with one line per playlist.
func (p *Palette) RenderSummary(rec *models.RunRecord) string {
	var b strings.Builder

	heading := "Sync Complete"
	if rec.DryRun {
		heading = "Dry Run Complete"
	}
	b.WriteString(p.Title(heading))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s (%d liked songs)\n", p.Status(rec.Status, rec.Summary()), rec.LibrarySize)

	for _, pl := range rec.Playlists {
		var detail string
		switch {
		case pl.Status == models.StatusFailed:
			detail = p.Err("✗ " + pl.Error)
		case pl.Status == models.StatusSkipped:
			detail = p.Help("skipped")
		case pl.Changed && rec.DryRun:
			detail = p.Warn(fmt.Sprintf("would replace %d with %d tracks", pl.Previous, pl.Desired))
		case pl.Changed:
			detail = p.OK(fmt.Sprintf("✓ replaced %d with %d tracks", pl.Previous, pl.Desired))
		default:
			detail = p.Help(fmt.Sprintf("unchanged (%d tracks)", pl.Desired))
		}
		fmt.Fprintf(&b, "  %d. %s: %s\n", pl.Index+1, pl.Name, detail)
	}

	if rec.Error != "" && rec.ErrorKind != shared.KindSync {
		fmt.Fprintf(&b, "\n%s\n", p.Err(fmt.Sprintf("%s: %s", rec.ErrorKind, rec.Error)))
	}
	return b.String()
}

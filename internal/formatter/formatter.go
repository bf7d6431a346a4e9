// package formatter renders run history and chunk plans to various formats (CSV, Markdown, JSON, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

// Supported output formats.
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (expected text, csv, markdown, or json)", shared.ErrInvalidArgument, s)
}

// Export renders runs in format.
func Export(runs []*models.RunRecord, format string) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatCSV:
		return HistoryToCSV(runs)
	case FormatMarkdown:
		return HistoryToMarkdown(runs)
	case FormatJSON:
		return HistoryToJSON(runs)
	default:
		return HistoryToText(runs)
	}
}

// HistoryToCSV converts runs to CSV with one row per run.
func HistoryToCSV(runs []*models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "ID", "Status", "Stage", "DryRun", "LibrarySize", "Synced", "Failed", "Duration", "StartedAt", "ErrorKind", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		synced, failed := counts(run)
		record := []string{
			strconv.Itoa(run.Sequence),
			run.ID,
			string(run.Status),
			string(run.Stage),
			strconv.FormatBool(run.DryRun),
			strconv.Itoa(run.LibrarySize),
			strconv.Itoa(synced),
			strconv.Itoa(failed),
			FormatDuration(run.Duration()),
			run.StartedAt.UTC().Format(time.RFC3339),
			run.ErrorKind,
			run.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// HistoryToMarkdown converts runs to a Markdown table.
func HistoryToMarkdown(runs []*models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Sync History\n\n")
	if len(runs) == 0 {
		buf.WriteString("_No runs recorded._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Started | Status | Playlists | Library | Duration | Error |\n")
	buf.WriteString("|---|---------|--------|-----------|---------|----------|-------|\n")
	for _, run := range runs {
		synced, _ := counts(run)
		status := string(run.Status)
		if run.DryRun {
			status += " (dry run)"
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %d/%d | %d | %s | %s |\n",
			run.Sequence,
			run.StartedAt.UTC().Format(time.RFC3339),
			status,
			synced, len(run.Playlists),
			run.LibrarySize,
			FormatDuration(run.Duration()),
			escapePipes(run.Error),
		)
	}

	return buf.Bytes(), nil
}

// HistoryToText converts runs to plain text, one line per run followed by its playlists.
func HistoryToText(runs []*models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer

	if len(runs) == 0 {
		buf.WriteString("No runs recorded.\n")
		return buf.Bytes(), nil
	}

	for _, run := range runs {
		fmt.Fprintf(&buf, "#%d %s %s (%s)\n", run.Sequence, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Summary(), FormatDuration(run.Duration()))
		if run.Error != "" {
			fmt.Fprintf(&buf, "    error [%s]: %s\n", run.ErrorKind, run.Error)
		}
		buf.Write(outcomeLines(run.Playlists, "    "))
	}

	return buf.Bytes(), nil
}

// HistoryToJSON converts runs to an indented JSON array.
func HistoryToJSON(runs []*models.RunRecord) ([]byte, error) {
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	return shared.MarshalJSON(runs, true)
}

// RunToText renders a single run record with its per-playlist breakdown.
func RunToText(run *models.RunRecord) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Run: %s\n", run.ID)
	fmt.Fprintf(&buf, "Status: %s\n", run.Summary())
	if run.DryRun {
		buf.WriteString("Mode: dry run\n")
	}
	fmt.Fprintf(&buf, "Library: %d liked songs\n", run.LibrarySize)
	fmt.Fprintf(&buf, "Duration: %s\n", FormatDuration(run.Duration()))
	if run.Error != "" {
		fmt.Fprintf(&buf, "Error [%s]: %s\n", run.ErrorKind, run.Error)
	}
	buf.WriteString("\n")
	buf.Write(outcomeLines(run.Playlists, ""))

	return buf.Bytes()
}

// PlanToText renders a chunk plan as a table of playlist windows.
func PlanToText(chunks []models.Chunk, librarySize int) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Library: %d liked songs\n\n", librarySize)
	for _, c := range chunks {
		if len(c.Tracks) == 0 {
			fmt.Fprintf(&buf, "%d. %s: empty\n", c.Index+1, c.Name)
			continue
		}
		fmt.Fprintf(&buf, "%d. %s: %d tracks [%d, %d)\n", c.Index+1, c.Name, len(c.Tracks), c.Offset, c.End())
	}

	return buf.Bytes()
}

// WriteExport renders runs in format and writes them to path.
//
// Defaults to history.{ext} in the working directory.
func WriteExport(runs []*models.RunRecord, format, path string) (string, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "history." + extension(f)
	}

	data, err := Export(runs, f)
	if err != nil {
		return "", fmt.Errorf("failed to render history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write history file: %w", err)
	}

	return path, nil
}

// FormatDuration renders d rounded for display, e.g. 1.5s or 2m3s.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func outcomeLines(outcomes []models.PlaylistOutcome, indent string) []byte {
	var buf bytes.Buffer
	for _, p := range outcomes {
		fmt.Fprintf(&buf, "%s%d. %s [%s]", indent, p.Index+1, p.Name, p.Status)
		switch {
		case p.Status == models.StatusFailed:
			fmt.Fprintf(&buf, " %s", p.Error)
		case p.Status == models.StatusSkipped:
		case p.Changed:
			fmt.Fprintf(&buf, " -%d +%d in %d call(s)", p.Removed, p.Added, p.Calls)
		default:
			fmt.Fprintf(&buf, " unchanged (%d tracks)", p.Desired)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func counts(run *models.RunRecord) (synced, failed int) {
	for _, p := range run.Playlists {
		switch p.Status {
		case models.StatusSuccess:
			synced++
		case models.StatusFailed:
			failed++
		}
	}
	return synced, failed
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func extension(format string) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	}
	return format
}

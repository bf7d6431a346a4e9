package tasks

import (
	"fmt"

	"github.com/desertthunder/recents/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	LoadCredentials Phase = iota
	ValidateToken
	FetchLibrary
	PlanChunks
	ResolvePlaylist
	FetchPlaylist
	ConvergePlaylist
	CreatePlaylist
	RunComplete
)

func (p Phase) String() string {
	switch p {
	case LoadCredentials:
		return "load_credentials"
	case ValidateToken:
		return "validate_token"
	case FetchLibrary:
		return "fetch_library"
	case PlanChunks:
		return "plan_chunks"
	case ResolvePlaylist:
		return "resolve_playlist"
	case FetchPlaylist:
		return "fetch_playlist"
	case ConvergePlaylist:
		return "converge_playlist"
	case CreatePlaylist:
		return "create_playlist"
	case RunComplete:
		return "run_complete"
	default:
		return ""
	}
}

func loadCredentialsUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: LoadCredentials, Step: 1, Total: 1, Message: "Loading API credentials..."}
}

func validateTokenUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: ValidateToken, Step: 1, Total: 1, Message: "Validating access token..."}
}

func fetchLibraryUpdate(window int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching up to %d liked songs...", window),
	}
}

func planUpdate(chunks []models.Chunk, librarySize int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlanChunks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Planned %d playlists from %d liked songs", len(chunks), librarySize),
		Data:    chunks,
	}
}

func resolveUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving %s...", step, total, name),
	}
}

func createPlaylistUpdate(step, total int, pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func fetchPlaylistUpdate(step, total int, pl models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s...", step, total, pl.Name),
	}
}

func convergedUpdate(step, total int, report *ConvergeReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ConvergePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, report),
		Data:    report,
	}
}

func convergeFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ConvergePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func runCompleteUpdate(rec *models.RunRecord) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunComplete,
		Step:    1,
		Total:   1,
		Message: rec.Summary(),
		Data:    rec,
	}
}

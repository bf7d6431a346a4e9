package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
)

const (
	StepFetch   = "fetch"
	StepResolve = "resolve"
	StepClear   = "clear"
	StepAppend  = "append"
	StepVerify  = "verify"
)

// Delta is the diagnostic difference between a playlist's contents and its chunk.
// Duplicates in current collapse to their first occurrence.
type Delta struct {
	Removals   []models.Track // in current, not in desired
	Insertions []models.Track // in desired, not in current
	Reordered  []models.Track // in both, at a different rank among the common tracks
	Duplicates []models.Track // repeated entries in current
}

// Empty reports whether no track needs to be added, removed, or moved.
func (d Delta) Empty() bool {
	return len(d.Removals) == 0 && len(d.Insertions) == 0 && len(d.Reordered) == 0 && len(d.Duplicates) == 0
}

// Diff compares current against desired by track identity.
func Diff(current, desired []models.Track) Delta {
	var d Delta

	inCurrent := make(map[string]bool, len(current))
	var uniqueCurrent []models.Track
	for _, t := range current {
		if inCurrent[t.Key()] {
			d.Duplicates = append(d.Duplicates, t)
			continue
		}
		inCurrent[t.Key()] = true
		uniqueCurrent = append(uniqueCurrent, t)
	}

	inDesired := make(map[string]bool, len(desired))
	var commonDesired []models.Track
	for _, t := range desired {
		if inDesired[t.Key()] {
			continue
		}
		inDesired[t.Key()] = true
		if inCurrent[t.Key()] {
			commonDesired = append(commonDesired, t)
		} else {
			d.Insertions = append(d.Insertions, t)
		}
	}

	var commonCurrent []models.Track
	for _, t := range uniqueCurrent {
		if inDesired[t.Key()] {
			commonCurrent = append(commonCurrent, t)
		} else {
			d.Removals = append(d.Removals, t)
		}
	}

	for i, t := range commonDesired {
		if commonCurrent[i].Key() != t.Key() {
			d.Reordered = append(d.Reordered, t)
		}
	}
	return d
}

// ConvergeOptions controls how [Converge] writes.
type ConvergeOptions struct {
	BatchSize int
	DryRun    bool
	// Verify re-reads the playlist after a write. Nil skips the check.
	Verify services.PlaylistSource
}

// ConvergeReport describes the writes made, or planned on a dry run, for one playlist.
type ConvergeReport struct {
	Playlist models.Playlist
	Delta    Delta
	Changed  bool
	DryRun   bool
	Previous int
	Desired  int
	Removed  int // tracks sent in clear batches
	Added    int // tracks sent in append batches
	Calls    int
}

// Converge makes the playlist hold exactly desired, in order.
//
// When current already matches desired position by position no call is made. Otherwise every
// distinct track of current is removed by identifier, then desired is appended in batches, each
// acknowledged before the next is sent. A failed batch returns a [*shared.SyncError] together with
// the report of what was applied; the next run repairs the partial state.
//
// With opts.Verify set, a playlist that was written is fetched again and must match desired.
func Converge(ctx context.Context, target models.Playlist, current, desired []models.Track, w services.PlaylistSink, opts ConvergeOptions) (*ConvergeReport, error) {
	if opts.BatchSize <= 0 || opts.BatchSize > services.MaxBatchSize {
		opts.BatchSize = services.MaxBatchSize
	}

	report := &ConvergeReport{
		Playlist: target,
		Delta:    Diff(current, desired),
		DryRun:   opts.DryRun,
		Previous: len(current),
		Desired:  len(desired),
	}
	if models.SameOrder(current, desired) {
		return report, nil
	}
	report.Changed = true

	removals := distinct(current)
	for _, batch := range batches(removals, opts.BatchSize) {
		if !opts.DryRun {
			if err := w.RemoveTracks(ctx, target.ID, batch); err != nil {
				return report, syncError(target, StepClear, err)
			}
		}
		report.Calls++
		report.Removed += len(batch)
	}

	for _, batch := range batches(desired, opts.BatchSize) {
		if !opts.DryRun {
			if err := w.AddTracks(ctx, target.ID, batch); err != nil {
				return report, syncError(target, StepAppend, err)
			}
		}
		report.Calls++
		report.Added += len(batch)
	}

	if opts.Verify == nil || opts.DryRun {
		return report, nil
	}
	after, err := opts.Verify.PlaylistTracks(ctx, target.ID)
	if err != nil {
		return report, syncError(target, StepVerify, err)
	}
	if !models.SameOrder(after, desired) {
		return report, syncError(target, StepVerify,
			fmt.Errorf("%w: want %d tracks, found %d", shared.ErrPlaylistMismatch, len(desired), len(after)))
	}
	return report, nil
}

func syncError(target models.Playlist, step string, err error) *shared.SyncError {
	return &shared.SyncError{Playlist: target.Name, PlaylistID: target.ID, Step: step, Err: err}
}

// distinct keeps the first occurrence of every track.
func distinct(tracks []models.Track) []models.Track {
	seen := make(map[string]bool, len(tracks))
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	return out
}

func batches(tracks []models.Track, size int) [][]models.Track {
	var out [][]models.Track
	for start := 0; start < len(tracks); start += size {
		out = append(out, tracks[start:min(start+size, len(tracks))])
	}
	return out
}

func (r *ConvergeReport) String() string {
	if !r.Changed {
		return fmt.Sprintf("%s: unchanged (%d tracks)", r.Playlist.Name, r.Previous)
	}
	return fmt.Sprintf("%s: -%d +%d in %d call(s)", r.Playlist.Name, r.Removed, r.Added, r.Calls)
}

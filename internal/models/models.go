// package models defines the data model for the recently added playlist syncer
package models

import (
	"context"
	"fmt"
	"time"
)

const trackURIPrefix = "spotify:track:"

// Track represents a catalog entry. Two tracks are equal when their keys match.
type Track struct {
	ID      string    `json:"id"`
	URI     string    `json:"uri,omitempty"`
	Name    string    `json:"name,omitempty"`
	Artist  string    `json:"artist,omitempty"`
	AddedAt time.Time `json:"added_at,omitzero"`
}

// NewTrack creates a [Track] from a catalog identifier.
func NewTrack(id string) Track {
	return Track{ID: id, URI: trackURIPrefix + id}
}

// Key returns the identity used for comparison, falling back to the URI for entries without an ID (local files).
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.URI
}

// ResourceURI returns the URI used by write endpoints.
func (t Track) ResourceURI() string {
	if t.URI != "" {
		return t.URI
	}
	return trackURIPrefix + t.ID
}

// Keys returns the identity of every track in order.
func Keys(tracks []Track) []string {
	keys := make([]string, len(tracks))
	for i, t := range tracks {
		keys[i] = t.Key()
	}
	return keys
}

// SameOrder reports whether both sequences hold the same identities at the same positions.
func SameOrder(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

// Playlist represents a target playlist on the streaming service.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// Chunk is the window of the liked-songs snapshot that one playlist mirrors.
type Chunk struct {
	Index  int     `json:"index"`
	Offset int     `json:"offset"`
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
}

// End returns the exclusive snapshot offset covered by the chunk.
func (c Chunk) End() int {
	return c.Offset + len(c.Tracks)
}

// RunStatus is the terminal state of a run or a playlist.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
	StatusSkipped RunStatus = "skipped"
)

// Stage names the point of the run state machine where a run ended.
type Stage string

const (
	StageInit              Stage = "init"
	StageCredentialsLoaded Stage = "credentials_loaded"
	StageTokenValid        Stage = "token_valid"
	StageLibraryFetched    Stage = "library_fetched"
	StagePlanned           Stage = "planned"
	StageConverging        Stage = "converging"
	StageDone              Stage = "done"
)

// PlaylistOutcome is the result of converging one target playlist.
type PlaylistOutcome struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	Status     RunStatus `json:"status"`
	Desired    int       `json:"desired"`
	Previous   int       `json:"previous"`
	Changed    bool      `json:"changed"`
	Removed    int       `json:"removed"`
	Added      int       `json:"added"`
	Calls      int       `json:"calls"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunRecord is the structured record emitted at the end of every run.
type RunRecord struct {
	ID          string            `json:"id"`
	Sequence    int               `json:"sequence,omitempty"`
	Status      RunStatus         `json:"status"`
	Stage       Stage             `json:"stage"`
	DryRun      bool              `json:"dry_run,omitempty"`
	LibrarySize int               `json:"library_size"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Playlists   []PlaylistOutcome `json:"playlists"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the names of playlists that did not converge.
func (r *RunRecord) Failed() []string {
	var names []string
	for _, p := range r.Playlists {
		if p.Status == StatusFailed {
			names = append(names, p.Name)
		}
	}
	return names
}

// Summary renders a one-line description, e.g. "partial: 2/3 playlists synced".
func (r *RunRecord) Summary() string {
	synced := 0
	for _, p := range r.Playlists {
		if p.Status == StatusSuccess {
			synced++
		}
	}
	return fmt.Sprintf("%s: %d/%d playlists synced", r.Status, synced, len(r.Playlists))
}

// Recorder persists run records.
type Recorder interface {
	Record(ctx context.Context, record *RunRecord) error
}

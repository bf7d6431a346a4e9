// Package repositories implements SQLite persistence for sync run history.
//
// [RunRepository] stores every [models.RunRecord] in the runs table with one run_playlists row per
// target playlist, and implements [models.Recorder] so the run driver can hand records to it directly.
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and
// timestamps. The [NextSequence] function increments per-table counters in dedicated sequence tables
// within the caller's transaction.
package repositories

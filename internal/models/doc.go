// Package models defines the domain entities shared by the synchronization engine.
//
// The package contains two categories of types:
//
// 1. Catalog data: lightweight structs describing remote service state
//   - [Track] : A catalog entry, compared by identifier only
//   - [Playlist] : Target playlist identity and metadata
//   - [Chunk] : A contiguous window of the liked-songs snapshot bound to one playlist
//
// 2. Run data: the structured outcome of one synchronization run
//   - [RunRecord] : Run status, failing stage, and error classification
//   - [PlaylistOutcome] : Per-playlist convergence result
//
// [RunRecord] values are logged for the monitoring collaborator and optionally persisted by a [Recorder].
package models

// Package tasks keeps a set of rolling "recently added" playlists in sync with the liked-songs library.
//
// # Run
//
// [Engine.Run] performs one sync run:
//
//  1. Load API credentials and make sure the access token is valid, refreshing it if needed
//  2. Fetch the most recent Count*Size liked songs, newest first
//  3. [Plan] the snapshot into Count contiguous chunks of at most Size tracks
//  4. For each chunk, in order: resolve the target playlist (cached id, owned playlist with the
//     configured name, or a newly created private playlist), fetch its contents, and [Converge]
//  5. Persist the playlist id cache when it changed and emit a [models.RunRecord]
//
// A failure while syncing one playlist is recorded and the run moves on to the next. Configuration
// and authorization failures abort the run and mark the remaining playlists as skipped.
//
// # Convergence
//
// [Converge] is replace-if-different: a playlist that already holds its chunk in order is left
// alone, otherwise every track is removed and the chunk is appended in batches of at most
// [services.MaxBatchSize]. A run interrupted between batches leaves the playlist partially written
// and the next run repairs it.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for the CLI.
// Updates are sent with select and default so a slow reader never blocks a run.
package tasks

// Package services implements the Spotify Web API client used by a sync run.
//
// [SpotifyService] is the library source (the user's liked songs, newest first), the playlist
// source (a playlist's full track list), and the playlist sink (clear by identifier, append in
// order, create).
//
// # Transport
//
// Every request passes through a client-side [rate.Limiter] and gets its own timeout. Failures
// are classified:
//   - 2xx: decoded into the result
//   - 401: the [TokenProvider] is asked for one forced refresh per request, then the call escalates
//     with [shared.ErrTokenExpired]
//   - 429: waits for Retry-After (capped), then retries
//   - 5xx and network errors or timeouts: exponential backoff, then retries
//   - other 4xx: [shared.APIError], never retried (404 matches [shared.ErrPlaylistNotFound])
//
// When the retry budget is spent the call returns a [shared.TransientError].
package services

// Package auth manages the OAuth token lifecycle for a sync run.
//
// The [Manager] loads the application credentials and the token record from a [secrets.Store],
// refreshes the access token when it is within the refresh margin of expiry, and writes the
// refreshed token back. The store is the only source of truth between runs; the manager keeps
// the token in memory for the duration of one run.
//
// Token states:
//
//	Absent -> AuthorizationRequired
//	Absent -> Valid -> Expiring -> Refreshed -> Valid
//
// A missing or unusable token record yields [shared.ErrAuthorizationRequired]; the interactive
// login flow (the auth login command) seeds it. A failed refresh yields [shared.ErrTokenExpired].
package auth

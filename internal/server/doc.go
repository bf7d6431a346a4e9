// Package server provides HTTP routing, middleware, and the local OAuth callback used by auth login.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [CallbackRouter] registers method-qualified [http.ServeMux] patterns and answers every other path
// with a 404. [Middleware] runs in the order it was added.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback. It validates the state parameter
// (CSRF protection), exchanges the authorization code for tokens, and sends the result through a channel.
// It only processes one callback to prevent replay attacks.
//
// [Authorize] wires the handler into a temporary server on the redirect URI's host, opens the consent
// page, and shuts the server down once a token arrives.
package server

package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/oauth2"
)

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ {{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles OAuth2 callback requests for authorization code flow.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	config      *oauth2.Config
	state       string
	path        string
	client      *http.Client
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a new OAuth handler serving path with the given OAuth2 config and state token.
// The state token should be cryptographically random for CSRF protection.
func NewOAuthHandler(config *oauth2.Config, state, path string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		config:     config,
		state:      state,
		path:       path,
		resultChan: make(chan OAuthResult, 1),
	}
}

// WithHTTPClient sets the client used for the token exchange.
func (h *OAuthHandler) WithHTTPClient(client *http.Client) *OAuthHandler {
	h.client = client
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates state parameter, exchanges authorization code for tokens, and sends the result through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.client)
	}
	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = successPage.Execute(w, map[string]string{
		"Title":   "Authorization Successful",
		"Message": "You can close this window and return to the terminal.",
	})
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

// AuthorizeOptions configures [Authorize].
type AuthorizeOptions struct {
	// Listener, when set, is served instead of listening on the redirect URL's host.
	Listener   net.Listener
	Open       func(url string) error
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *log.Logger
}

// Authorize runs the authorization code flow: it serves the redirect URL locally, opens the consent
// page, and waits for the callback to deliver a token.
func Authorize(ctx context.Context, cfg *oauth2.Config, opts AuthorizeOptions) (*oauth2.Token, error) {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: invalid redirect URI %q", shared.ErrInvalidConfig, cfg.RedirectURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	handler := NewOAuthHandler(cfg, state, redirect.Path).WithHTTPClient(opts.HTTPClient)
	router := NewCallbackRouter()
	router.Use(LoggingMiddleware(logger))
	router.Handler(handler)
	logger.Debug("callback server routes", "patterns", router.Patterns())

	ln := opts.Listener
	if ln == nil {
		if ln, err = net.Listen("tcp", redirect.Host); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
		}
	}

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state)
	logger.Info("waiting for authorization", "addr", ln.Addr().String(), "path", redirect.Path)
	if opts.Open != nil {
		if err := opts.Open(authURL); err != nil {
			logger.Warn("could not open browser, visit the URL manually", "url", authURL, "error", err)
		}
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return nil, err
		}
		return result.Token, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, opts.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

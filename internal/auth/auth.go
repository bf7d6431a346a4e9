package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/recents/internal/secrets"
	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	DefaultRefreshMargin = 60 * time.Second
)

// Scopes requested by the login flow.
var Scopes = []string{"user-library-read", "playlist-read-private", "playlist-modify-private"}

// SpotifyEndpoint is the Spotify accounts service.
var SpotifyEndpoint = oauth2.Endpoint{
	AuthURL:   spotifyAuthURL,
	TokenURL:  spotifyTokenURL,
	AuthStyle: oauth2.AuthStyleInHeader,
}

// State describes the token held by the store.
type State string

const (
	StateAbsent   State = "absent"
	StateValid    State = "valid"
	StateExpiring State = "expiring"
)

// Status is a snapshot of the stored token for display.
type Status struct {
	State  State
	Expiry time.Time
	Scope  string
}

// Options configures a [Manager].
type Options struct {
	Store           secrets.Store
	CredentialsName string
	TokenName       string
	RedirectURI     string
	RefreshMargin   time.Duration
	Endpoint        oauth2.Endpoint
	HTTPClient      *http.Client
	Logger          *log.Logger
}

// Manager is the single writer of the token record.
type Manager struct {
	store           secrets.Store
	credentialsName string
	tokenName       string
	redirectURI     string
	margin          time.Duration
	endpoint        oauth2.Endpoint
	httpClient      *http.Client
	logger          *log.Logger
	now             func() time.Time

	mu     sync.Mutex
	config *oauth2.Config
	token  *oauth2.Token
}

func NewManager(opts Options) *Manager {
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = DefaultRefreshMargin
	}
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = SpotifyEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Manager{
		store:           opts.Store,
		credentialsName: opts.CredentialsName,
		tokenName:       opts.TokenName,
		redirectURI:     opts.RedirectURI,
		margin:          opts.RefreshMargin,
		endpoint:        opts.Endpoint,
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		now:             time.Now,
	}
}

// LoadCredentials reads the credential record and prepares the OAuth client configuration.
func (m *Manager) LoadCredentials(ctx context.Context) error {
	creds, err := secrets.LoadCredentials(ctx, m.store, m.credentialsName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  m.redirectURI,
		Scopes:       Scopes,
		Endpoint:     m.endpoint,
	}
	return nil
}

// Config returns the OAuth client configuration. [Manager.LoadCredentials] must succeed first.
func (m *Manager) Config() (*oauth2.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return nil, fmt.Errorf("%w: credentials not loaded", shared.ErrMissingCredentials)
	}
	return m.config, nil
}

// Load reads the token record into memory.
func (m *Manager) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := m.store.Get(ctx, m.tokenName)
	if errors.Is(err, shared.ErrSecretNotFound) {
		return nil, fmt.Errorf("%w: no token record at %q", shared.ErrAuthorizationRequired, m.tokenName)
	}
	if err != nil {
		return nil, err
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: token record is not JSON: %v", shared.ErrAuthorizationRequired, err)
	}
	tok, err := rec.token()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	return tok, nil
}

// EnsureValid returns a token that is outside the refresh margin, refreshing and persisting it when needed.
func (m *Manager) EnsureValid(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	tok := m.token
	m.mu.Unlock()

	if tok == nil {
		var err error
		if tok, err = m.Load(ctx); err != nil {
			return nil, err
		}
	}

	if !m.expiring(tok) {
		return tok, nil
	}

	m.logger.Debug("access token near expiry, refreshing", "expiry", tok.Expiry)
	return m.Refresh(ctx)
}

// Token returns the in-memory token, loading and validating it on first use.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	tok := m.token
	m.mu.Unlock()

	if tok != nil && tok.AccessToken != "" {
		return tok, nil
	}
	return m.EnsureValid(ctx)
}

// Refresh exchanges the refresh token for a new access token and persists the result.
func (m *Manager) Refresh(ctx context.Context) (*oauth2.Token, error) {
	cfg, err := m.Config()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	current := m.token
	m.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthorizationRequired, shared.ErrNoRefreshToken)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh failed: %v", shared.ErrTokenExpired, err)
	}
	if tok.Extra("scope") == nil && current.Extra("scope") != nil {
		tok = tok.WithExtra(map[string]any{"scope": current.Extra("scope")})
	}

	if err := m.Save(ctx, tok); err != nil {
		return nil, err
	}

	m.logger.Info("access token refreshed", "expiry", tok.Expiry)
	return tok, nil
}

// Save persists tok with a read-modify-write so unknown fields of the record survive.
func (m *Manager) Save(ctx context.Context, tok *oauth2.Token) error {
	rec := record{}
	data, err := m.store.Get(ctx, m.tokenName)
	switch {
	case err == nil:
		if existing, derr := decodeRecord(data); derr == nil {
			rec = existing
		} else {
			m.logger.Warn("replacing malformed token record", "name", m.tokenName)
		}
	case !errors.Is(err, shared.ErrSecretNotFound):
		return fmt.Errorf("failed to read token record: %w", err)
	}

	rec.merge(tok)
	if err := secrets.PutJSON(ctx, m.store, m.tokenName, rec); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	return nil
}

// Status reports the stored token state without refreshing it.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	tok, err := m.Load(ctx)
	if errors.Is(err, shared.ErrAuthorizationRequired) {
		return Status{State: StateAbsent}, nil
	}
	if err != nil {
		return Status{}, err
	}

	st := Status{State: StateValid, Expiry: tok.Expiry}
	if s, ok := tok.Extra("scope").(string); ok {
		st.Scope = s
	}
	if m.expiring(tok) {
		st.State = StateExpiring
	}
	return st, nil
}

func (m *Manager) expiring(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return !m.now().Before(tok.Expiry.Add(-m.margin))
}

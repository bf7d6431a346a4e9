// Spotify Web API implementation of the library and playlist interfaces
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	// MaxBatchSize is the most tracks a single add or remove call accepts.
	MaxBatchSize = 100

	savedTracksPageSize    = 50
	playlistTracksPageSize = 100
	playlistsPageSize      = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
	IsLocal bool            `json:"is_local"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist or the saved-tracks library.
// Track is nil for items that are no longer available.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a page of saved or playlist tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	URI         string              `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyOptions configures a [SpotifyService]. Zero values fall back to defaults.
type SpotifyOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenProvider
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	RateLimit  float64 // requests per second, 0 for unlimited
	Logger     *log.Logger
}

// SpotifyService talks to the Spotify Web API on behalf of one user.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *log.Logger

	mu       sync.Mutex
	user     *SpotifyUser
	reauthed bool // one forced refresh per client
}

// NewSpotifyService creates a client that authenticates with tokens from opts.Tokens.
func NewSpotifyService(opts SpotifyOptions) (*SpotifyService, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("%w: token provider is required", shared.ErrMissingArgument)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	return &SpotifyService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		limiter:    limiter,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		logger:     opts.Logger,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs one attempt with its own timeout and reads the whole body before returning.
func (s *SpotifyService) send(ctx context.Context, method, apiURL string, payload []byte, accessToken string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// doRequest performs an authenticated request to the Spotify API with the retry policy described in the package docs.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	apiURL := s.baseURL + endpoint
	op := method + " " + endpoint

	for attempt := 0; ; {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		tok, err := s.tokens.Token(ctx)
		if err != nil {
			return err
		}

		resp, err := s.send(ctx, method, apiURL, payload, tok.AccessToken)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if attempt < s.maxRetries {
				attempt++
				s.logger.Warn("request failed, retrying", "op", op, "attempt", attempt, "error", err)
				if werr := sleepContext(ctx, retryDelay(attempt, "", s.baseDelay, s.maxDelay)); werr != nil {
					return werr
				}
				continue
			}
			return &shared.TransientError{Op: op, Attempts: attempt + 1, Err: err}
		}

		switch {
		case resp.status >= 200 && resp.status <= 299:
			if result != nil && len(bytes.TrimSpace(resp.body)) > 0 {
				if err := json.Unmarshal(resp.body, result); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}
			return nil

		case resp.status == http.StatusUnauthorized:
			if !s.spendReauth() {
				return fmt.Errorf("%w: %s rejected after re-authentication", shared.ErrTokenExpired, op)
			}
			s.logger.Warn("access token rejected, re-authenticating", "op", op)
			if _, err := s.tokens.Refresh(ctx); err != nil {
				return err
			}
			continue
		}

		apiErr := newAPIError(method, endpoint, resp)
		if !apiErr.Temporary() {
			return apiErr
		}
		if attempt >= s.maxRetries {
			return &shared.TransientError{Op: op, Attempts: attempt + 1, Err: apiErr}
		}

		attempt++
		delay := retryDelay(attempt, resp.header.Get("Retry-After"), s.baseDelay, s.maxDelay)
		s.logger.Warn("retryable response", "op", op, "status", resp.status, "attempt", attempt, "delay", delay)
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

func newAPIError(method, endpoint string, resp *response) *shared.APIError {
	apiErr := &shared.APIError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: resp.status,
		RetryAfter: parseRetryAfterSeconds(resp.header.Get("Retry-After")),
	}

	var parsed spotifyErrorBody
	if json.Unmarshal(resp.body, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(resp.body))
	}
	return apiErr
}

// spendReauth reports whether the client may still force a token refresh, and uses it up if so.
func (s *SpotifyService) spendReauth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reauthed {
		return false
	}
	s.reauthed = true
	return true
}

// CurrentUser retrieves the authenticated user's profile. The result is cached for the life of the client.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	s.mu.Lock()
	cached := s.user
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return &user, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	if limit <= 0 || limit > savedTracksPageSize {
		limit = savedTracksPageSize
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var page SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LikedTracks returns up to limit saved tracks, most recently added first. A limit of zero reads the whole library.
func (s *SpotifyService) LikedTracks(ctx context.Context, limit int) ([]models.Track, error) {
	var tracks []models.Track

	for offset := 0; ; offset += savedTracksPageSize {
		page, err := s.SavedTracks(ctx, savedTracksPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch liked tracks at offset %d: %w", offset, err)
		}

		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			tracks = append(tracks, toTrack(item))
		}

		if limit > 0 && len(tracks) >= limit {
			return tracks[:limit], nil
		}
		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
	}
}

// PlaylistTracks returns every track in the playlist, in playlist order.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	tracks := []models.Track{}

	for offset := 0; ; offset += playlistTracksPageSize {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(playlistTracksPageSize))
		q.Set("offset", fmt.Sprint(offset))
		q.Set("fields", "items(added_at,track(id,name,uri,is_local,artists(id,name))),next,total")
		endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), q.Encode())

		var page SpotifyPaginatedTracks
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			tracks = append(tracks, toTrack(item))
		}

		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
	}
}

// UserPlaylists retrieves one page of the current user's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 || limit > playlistsPageSize {
		limit = playlistsPageSize
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// FindPlaylist returns the first playlist owned by the current user with the given name, or nil when none exists.
func (s *SpotifyService) FindPlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	for offset := 0; ; offset += playlistsPageSize {
		page, err := s.UserPlaylists(ctx, playlistsPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			if sp.Name == name && sp.Owner.ID == user.ID {
				p := toPlaylist(sp)
				return &p, nil
			}
		}

		if page.Next == nil || len(page.Items) == 0 {
			return nil, nil
		}
	}
}

// CreatePlaylist creates a private playlist owned by the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"public":      false,
		"description": description,
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))

	var created SpotifySimplePlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: create playlist %q returned no id", shared.ErrAPIRequest, name)
	}

	p := toPlaylist(created)
	return &p, nil
}

// RemoveTracks removes every occurrence of the given tracks from the playlist.
func (s *SpotifyService) RemoveTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	if err := checkBatch(tracks); err != nil || len(tracks) == 0 {
		return err
	}

	type uriRef struct {
		URI string `json:"uri"`
	}
	refs := make([]uriRef, len(tracks))
	for i, t := range tracks {
		refs[i] = uriRef{URI: t.ResourceURI()}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodDelete, endpoint, map[string]any{"tracks": refs}, nil)
}

// AddTracks appends tracks to the end of the playlist in order.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	if err := checkBatch(tracks); err != nil || len(tracks) == 0 {
		return err
	}

	uris := make([]string, len(tracks))
	for i, t := range tracks {
		uris[i] = t.ResourceURI()
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": uris}, nil)
}

func checkBatch(tracks []models.Track) error {
	if len(tracks) > MaxBatchSize {
		return fmt.Errorf("%w: batch of %d exceeds %d tracks", shared.ErrInvalidArgument, len(tracks), MaxBatchSize)
	}
	return nil
}

func toTrack(item SpotifyPlaylistTrack) models.Track {
	t := models.Track{
		ID:   item.Track.ID,
		URI:  item.Track.URI,
		Name: item.Track.Name,
	}
	if t.URI == "" && t.ID != "" {
		t.URI = models.NewTrack(t.ID).URI
	}
	if len(item.Track.Artists) > 0 {
		t.Artist = item.Track.Artists[0].Name
	}
	if at, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
		t.AddedAt = at
	}
	return t
}

func toPlaylist(sp SpotifySimplePlaylist) models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		OwnerID:     sp.Owner.ID,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
	}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrPlaylistNotFound)
}

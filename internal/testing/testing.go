// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/oauth2"
)

// Operations reported to [FakeSpotify.Fail] and recorded in [FakeSpotify.Calls].
const (
	OpLiked  = "liked"
	OpTracks = "tracks"
	OpFind   = "find"
	OpCreate = "create"
	OpRemove = "remove"
	OpAdd    = "add"
)

// Call is one recorded request against [FakeSpotify].
type Call struct {
	Op         string
	PlaylistID string
	Tracks     int
}

type fakePlaylist struct {
	playlist models.Playlist
	tracks   []models.Track
}

// FakeSpotify is an in-memory library and playlist service.
type FakeSpotify struct {
	mu      sync.Mutex
	library []models.Track
	byID    map[string]*fakePlaylist
	order   []string
	nextID  int

	// Calls records every request in order.
	Calls []Call

	// Fail, when set, is consulted before each request. A non-nil result fails the request.
	Fail func(op, playlistID string) error

	// AddFilter, when set, picks which tracks of an add request are actually stored.
	// The request still succeeds.
	AddFilter func(playlistID string, tracks []models.Track) []models.Track
}

func NewFakeSpotify(library []models.Track) *FakeSpotify {
	return &FakeSpotify{library: library, byID: map[string]*fakePlaylist{}}
}

// Seed adds an owned playlist and returns its id.
func (f *FakeSpotify) Seed(name string, tracks []models.Track) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.create(name, "", tracks).ID
}

// Delete removes a playlist, as if the user deleted it.
func (f *FakeSpotify) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

// Contents returns a copy of a playlist's tracks.
func (f *FakeSpotify) Contents(id string) []models.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil
	}
	return append([]models.Track(nil), p.tracks...)
}

// Writes counts remove and add requests, optionally for one playlist.
func (f *FakeSpotify) Writes(playlistID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if (c.Op == OpRemove || c.Op == OpAdd) && (playlistID == "" || c.PlaylistID == playlistID) {
			n++
		}
	}
	return n
}

// Count counts requests of one operation.
func (f *FakeSpotify) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeSpotify) begin(op, id string, tracks int) error {
	f.Calls = append(f.Calls, Call{Op: op, PlaylistID: id, Tracks: tracks})
	if f.Fail != nil {
		return f.Fail(op, id)
	}
	return nil
}

func (f *FakeSpotify) create(name, description string, tracks []models.Track) models.Playlist {
	f.nextID++
	p := &fakePlaylist{
		playlist: models.Playlist{ID: fmt.Sprintf("pl%d", f.nextID), Name: name, Description: description, OwnerID: "me"},
		tracks:   append([]models.Track(nil), tracks...),
	}
	f.byID[p.playlist.ID] = p
	f.order = append(f.order, p.playlist.ID)
	return p.playlist
}

func notFound(method, id string) error {
	return &shared.APIError{Method: method, Endpoint: "/playlists/" + id + "/tracks", StatusCode: http.StatusNotFound}
}

func (f *FakeSpotify) LikedTracks(ctx context.Context, limit int) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpLiked, "", 0); err != nil {
		return nil, err
	}
	n := len(f.library)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]models.Track(nil), f.library[:n]...), nil
}

func (f *FakeSpotify) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpTracks, playlistID, 0); err != nil {
		return nil, err
	}
	p, ok := f.byID[playlistID]
	if !ok {
		return nil, notFound(http.MethodGet, playlistID)
	}
	return append([]models.Track{}, p.tracks...), nil
}

func (f *FakeSpotify) FindPlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpFind, "", 0); err != nil {
		return nil, err
	}
	for _, id := range f.order {
		if p, ok := f.byID[id]; ok && p.playlist.Name == name {
			pl := p.playlist
			pl.TrackCount = len(p.tracks)
			return &pl, nil
		}
	}
	return nil, nil
}

func (f *FakeSpotify) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpCreate, "", 0); err != nil {
		return nil, err
	}
	pl := f.create(name, description, nil)
	return &pl, nil
}

func (f *FakeSpotify) RemoveTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpRemove, playlistID, len(tracks)); err != nil {
		return err
	}
	p, ok := f.byID[playlistID]
	if !ok {
		return notFound(http.MethodDelete, playlistID)
	}

	drop := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		drop[t.Key()] = true
	}
	kept := p.tracks[:0]
	for _, t := range p.tracks {
		if !drop[t.Key()] {
			kept = append(kept, t)
		}
	}
	p.tracks = kept
	return nil
}

func (f *FakeSpotify) AddTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpAdd, playlistID, len(tracks)); err != nil {
		return err
	}
	p, ok := f.byID[playlistID]
	if !ok {
		return notFound(http.MethodPost, playlistID)
	}
	if f.AddFilter != nil {
		tracks = f.AddFilter(playlistID, tracks)
	}
	p.tracks = append(p.tracks, tracks...)
	return nil
}

// FakeTokens is a token validator with injectable failures.
type FakeTokens struct {
	LoadErr     error
	EnsureErr   error
	Loads       int
	Validations int
}

func (f *FakeTokens) LoadCredentials(ctx context.Context) error {
	f.Loads++
	return f.LoadErr
}

func (f *FakeTokens) EnsureValid(ctx context.Context) (*oauth2.Token, error) {
	f.Validations++
	if f.EnsureErr != nil {
		return nil, f.EnsureErr
	}
	return &oauth2.Token{AccessToken: "fake"}, nil
}

// Tracks builds tracks from ids.
func Tracks(ids ...string) []models.Track {
	out := make([]models.Track, len(ids))
	for i, id := range ids {
		out[i] = models.NewTrack(id)
	}
	return out
}

// Library builds n tracks with ids t0..t(n-1).
func Library(n int) []models.Track {
	out := make([]models.Track, n)
	for i := range out {
		out[i] = models.NewTrack(fmt.Sprintf("t%d", i))
	}
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

package services

import (
	"context"

	"github.com/desertthunder/recents/internal/models"
	"golang.org/x/oauth2"
)

// TokenProvider supplies bearer tokens. Refresh forces a new access token after the API rejects the current one.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// LibrarySource reads the user's liked songs, most recently added first.
type LibrarySource interface {
	LikedTracks(ctx context.Context, limit int) ([]models.Track, error)
}

// PlaylistSource reads a playlist's current contents.
type PlaylistSource interface {
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
}

// PlaylistSink mutates playlists. Each call carries at most [MaxBatchSize] tracks.
type PlaylistSink interface {
	RemoveTracks(ctx context.Context, playlistID string, tracks []models.Track) error
	AddTracks(ctx context.Context, playlistID string, tracks []models.Track) error
}

// PlaylistDirectory resolves and creates the user's own playlists.
type PlaylistDirectory interface {
	FindPlaylist(ctx context.Context, name string) (*models.Playlist, error)
	CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error)
}

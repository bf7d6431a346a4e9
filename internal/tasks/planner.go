package tasks

import (
	"fmt"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

// ChunkConfig describes how the liked-songs snapshot is split across playlists.
type ChunkConfig struct {
	Count int
	Size  int
	Names []string
}

// Validate reports configuration errors before any network call is made.
func (c ChunkConfig) Validate() error {
	switch {
	case c.Count <= 0:
		return fmt.Errorf("%w: chunk count must be positive, got %d", shared.ErrInvalidConfig, c.Count)
	case c.Size <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", shared.ErrInvalidConfig, c.Size)
	case c.Count != len(c.Names):
		return fmt.Errorf("%w: %d chunks but %d playlist names", shared.ErrInvalidConfig, c.Count, len(c.Names))
	}
	return nil
}

// Window returns how many of the most recent tracks the chunks cover.
func (c ChunkConfig) Window() int {
	return c.Count * c.Size
}

// Plan partitions snapshot into exactly cfg.Count contiguous chunks of at most cfg.Size tracks.
//
// Chunk i covers [i*Size, min(len(snapshot), (i+1)*Size)). Trailing chunks may be short or empty,
// and tracks past the window are ignored.
func Plan(snapshot []models.Track, cfg ChunkConfig) ([]models.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, cfg.Count)
	for i := range chunks {
		start := min(i*cfg.Size, len(snapshot))
		end := min(start+cfg.Size, len(snapshot))

		tracks := make([]models.Track, end-start)
		copy(tracks, snapshot[start:end])

		chunks[i] = models.Chunk{
			Index:  i,
			Offset: i * cfg.Size,
			Name:   cfg.Names[i],
			Tracks: tracks,
		}
	}
	return chunks, nil
}

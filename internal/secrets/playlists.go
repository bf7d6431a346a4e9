package secrets

import (
	"context"
	"errors"
	"maps"

	"github.com/desertthunder/recents/internal/shared"
)

// PlaylistCache persists the playlist name to id mapping.
type PlaylistCache struct {
	store Store
	name  string
}

func NewPlaylistCache(store Store, name string) *PlaylistCache {
	return &PlaylistCache{store: store, name: name}
}

// Load returns the cached ids. A missing record yields an empty map.
func (c *PlaylistCache) Load(ctx context.Context) (map[string]string, error) {
	ids := map[string]string{}
	err := GetJSON(ctx, c.store, c.name, &ids)
	if errors.Is(err, shared.ErrSecretNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = map[string]string{}
	}
	return ids, nil
}

// Save writes ids as the whole record.
func (c *PlaylistCache) Save(ctx context.Context, ids map[string]string) error {
	return PutJSON(ctx, c.store, c.name, maps.Clone(ids))
}

package main

import (
	"context"
	"maps"
	"slices"

	"github.com/desertthunder/recents/internal/secrets"
	"github.com/urfave/cli/v3"
)

// SecretsSetCredentials validates and stores the client credentials.
func (r *Runner) SecretsSetCredentials(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}

	name := r.cfg().Secrets.CredentialsName
	creds := secrets.Credentials{ClientID: cmd.String("client-id"), ClientSecret: cmd.String("client-secret")}
	if err := secrets.SaveCredentials(ctx, store, name, creds); err != nil {
		return err
	}

	r.logger.Info("credentials stored", "name", name)
	return r.writePlain("%s\n", r.palette.OK("✓ Credentials stored in "+name))
}

// SecretsShowPlaylists prints the cached playlist ids.
func (r *Runner) SecretsShowPlaylists(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}

	ids, err := secrets.NewPlaylistCache(store, r.cfg().Secrets.PlaylistCacheName).Load(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(ids, true)
	}
	if len(ids) == 0 {
		return r.writePlain("No cached playlist ids.\n")
	}

	// Configured playlists first, in order, then anything left over from earlier names.
	shown := map[string]bool{}
	for _, name := range r.cfg().Playlists.Names {
		if id, ok := ids[name]; ok {
			r.writePlain("%s\t%s\n", name, id)
			shown[name] = true
		}
	}
	for _, name := range slices.Sorted(maps.Keys(ids)) {
		if !shown[name] {
			r.writePlain("%s\t%s\t%s\n", name, ids[name], r.palette.Help("(not configured)"))
		}
	}
	return nil
}

// SecretsClearPlaylists empties the playlist id cache.
func (r *Runner) SecretsClearPlaylists(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}

	if err := secrets.NewPlaylistCache(store, r.cfg().Secrets.PlaylistCacheName).Save(ctx, map[string]string{}); err != nil {
		return err
	}
	return r.writePlain("%s\n", r.palette.OK("✓ Playlist id cache cleared"))
}

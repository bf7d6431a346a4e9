package main

import (
	"context"
	"errors"

	"github.com/desertthunder/recents/internal/formatter"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/secrets"
	"github.com/desertthunder/recents/internal/tasks"
	"github.com/urfave/cli/v3"
)

// RunSync performs one sync run and prints its summary.
func (r *Runner) RunSync(ctx context.Context, cmd *cli.Command) error {
	dryRun := cmd.Bool("dry-run")
	useJSON := cmd.Bool("json")

	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}
	tokens := r.authManager(store)
	spotify, err := r.spotify(tokens)
	if err != nil {
		return err
	}

	var recorder models.Recorder
	if repo, err := r.history(); err != nil {
		r.logger.Warn("run history unavailable, the run will not be recorded", "error", err)
	} else {
		recorder = repo
	}

	cfg := r.cfg()
	engine := tasks.NewEngine(tasks.Dependencies{
		Tokens:    tokens,
		Library:   spotify,
		Playlists: spotify,
		Cache:     secrets.NewPlaylistCache(store, cfg.Secrets.PlaylistCacheName),
		Recorder:  recorder,
		Logger:    r.logger,
	}, tasks.Options{
		Chunks:      r.chunkConfig(),
		Description: cfg.Playlists.Description,
		DryRun:      dryRun,
	})

	var progress chan tasks.ProgressUpdate
	done := make(chan struct{})
	if useJSON {
		close(done)
	} else {
		progress = make(chan tasks.ProgressUpdate, 64)
		go r.palette.Watch(r.output, progress, done)
	}

	rec, runErr := engine.Run(ctx, progress)
	if progress != nil {
		close(progress)
	}
	<-done

	if useJSON {
		if err := r.writeJSON(rec, true); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}

	if err := r.writePlain("\n%s", r.palette.RenderSummary(rec)); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Plan fetches the liked-songs window and prints the chunk each playlist would hold.
func (r *Runner) Plan(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}
	tokens := r.authManager(store)
	if err := tokens.LoadCredentials(ctx); err != nil {
		return err
	}
	if _, err := tokens.EnsureValid(ctx); err != nil {
		return err
	}

	spotify, err := r.spotify(tokens)
	if err != nil {
		return err
	}

	chunks := r.chunkConfig()
	snapshot, err := spotify.LikedTracks(ctx, chunks.Window())
	if err != nil {
		return err
	}

	plan, err := tasks.Plan(snapshot, chunks)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(plan, true)
	}
	return r.writeRaw(formatter.PlanToText(plan, len(snapshot)))
}

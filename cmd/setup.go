package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/recents/internal/secrets"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writePlain("%s\n", r.palette.OK("✓ Wrote "+path))
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.cfg().Database.Path
	r.logger.Info("initializing database", "path", path)

	db, err := r.database()
	if err != nil {
		return err
	}

	if cmd.Bool("rollback") {
		mig, err := shared.RollbackMigration(db)
		if err != nil {
			return err
		}
		r.logger.Warn("migration rolled back", "version", mig.Version, "name", mig.Name)
	}

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	r.writePlain("Database: %s\n", path)
	for _, s := range states {
		mark := r.palette.Warn("pending")
		if s.Applied {
			mark = r.palette.OK("applied " + s.AppliedAt.Local().Format(time.DateTime))
		}
		r.writePlain("  %04d %-16s %s\n", s.Version, s.Name, mark)
	}
	r.logger.Infof("setup complete for database: %v", path)
	return nil
}

// SetupCheck validates configuration and reports which records exist in the credential store.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	cfg := r.cfg()
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.writePlain("Config: %s\n", r.palette.OK("✓ valid"))
	r.writePlain("Playlists: %d x %d tracks\n", cfg.ChunkCount(), cfg.Playlists.Size)
	r.writePlain("Backend: %s\n", shared.NormalizeBackend(cfg.Secrets.Backend))

	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}

	for _, name := range []string{cfg.Secrets.CredentialsName, cfg.Secrets.TokenName, cfg.Secrets.PlaylistCacheName} {
		_, err := store.Get(ctx, name)
		switch {
		case err == nil:
			r.writePlain("  %s %s\n", r.palette.OK("✓"), name)
		case errors.Is(err, shared.ErrSecretNotFound):
			r.writePlain("  %s %s (missing)\n", r.palette.Warn("•"), name)
		default:
			return err
		}
	}

	if _, err := secrets.LoadCredentials(ctx, store, cfg.Secrets.CredentialsName); err != nil && !errors.Is(err, shared.ErrMissingCredentials) {
		return err
	}
	return nil
}

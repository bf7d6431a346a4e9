package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/recents/internal/formatter"
	"github.com/desertthunder/recents/internal/models"
	"github.com/urfave/cli/v3"
)

// History lists recorded runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	repo, err := r.history()
	if err != nil {
		return err
	}
	runs, err := repo.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(runs, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("history exported", "path", written, "runs", len(runs))
		return r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("✓ Wrote %d runs to %s", len(runs), written)))
	}

	data, err := formatter.Export(runs, format)
	if err != nil {
		return err
	}
	return r.writeRaw(data)
}

// HistoryShow prints one run with its playlists.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.history()
	if err != nil {
		return err
	}

	var rec *models.RunRecord
	if id := cmd.StringArg("id"); id != "" {
		rec, err = repo.Get(ctx, id)
	} else {
		rec, err = repo.Latest(ctx)
	}
	if err != nil {
		return err
	}
	return r.writeRaw(formatter.RunToText(rec))
}

// HistoryPrune deletes old runs.
func (r *Runner) HistoryPrune(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.history()
	if err != nil {
		return err
	}
	n, err := repo.Prune(ctx, cmd.Int("keep"))
	if err != nil {
		return err
	}
	return r.writePlain("Pruned %d runs\n", n)
}

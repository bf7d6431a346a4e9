package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

// Exit codes let schedulers tell configuration problems from expired authorization.
const (
	exitOK            = 0
	exitError         = 1
	exitConfiguration = 2
	exitAuthorization = 3
	exitPartial       = 4
	exitSyncFailed    = 5
)

func main() {
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(nil)})
	app := newApp(runner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		runner.logger.Error("application error", "error_kind", shared.ErrorKind(err), "error", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:     "recents",
		Usage:    "Keep rolling \"recently added\" Spotify playlists in sync with your liked songs",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   runner.Before,
		After:    runner.Close,
		Commands: runner.register(),
	}
}

func exitCode(err error) int {
	switch shared.ErrorKind(err) {
	case "":
		return exitOK
	case shared.KindConfiguration:
		return exitConfiguration
	case shared.KindAuthExpired, shared.KindAuthorizationRequired:
		return exitAuthorization
	case shared.KindSync:
		if errors.Is(err, shared.ErrAllFailed) {
			return exitSyncFailed
		}
		return exitPartial
	default:
		return exitError
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/server"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultLoginTimeout = 5 * time.Minute

// AuthLogin runs the authorization code flow and stores the resulting token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}
	mgr := r.authManager(store)
	if err := mgr.LoadCredentials(ctx); err != nil {
		return err
	}
	oauthCfg, err := mgr.Config()
	if err != nil {
		return err
	}

	open := shared.OpenBrowser
	if cmd.Bool("no-browser") {
		open = func(url string) error {
			return r.writePlain("Open this URL to authorize:\n\n  %s\n\n", url)
		}
	}

	r.logger.Info("starting authorization", "redirect_uri", oauthCfg.RedirectURL)
	tok, err := r.authorize(ctx, oauthCfg, server.AuthorizeOptions{
		Open:       open,
		HTTPClient: r.httpClient,
		Timeout:    cmd.Duration("timeout"),
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}

	if err := mgr.Save(ctx, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	r.logger.Info("authorization stored", "token", r.cfg().Secrets.TokenName)
	return r.writePlain("%s\n", r.palette.OK("✓ Authorization successful"))
}

// AuthStatus reports the stored token state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}

	st, err := r.authManager(store).Status(ctx)
	if err != nil {
		return err
	}

	switch st.State {
	case auth.StateAbsent:
		r.writePlain("Token: %s\n", r.palette.Err("✗ not authorized"))
		return r.writePlain("Run 'recents auth login' to authorize.\n")
	case auth.StateExpiring:
		r.writePlain("Token: %s\n", r.palette.Warn("expired or expiring, refreshed on next run"))
	default:
		r.writePlain("Token: %s\n", r.palette.OK("✓ valid"))
	}
	if !st.Expiry.IsZero() {
		r.writePlain("Expires: %s\n", st.Expiry.Local().Format(time.RFC1123))
	}
	if st.Scope != "" {
		r.writePlain("Scope: %s\n", st.Scope)
	}
	return nil
}

// AuthRefresh forces a refresh and persists the new token.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	store, err := r.secretStore(ctx)
	if err != nil {
		return err
	}
	mgr := r.authManager(store)
	if err := mgr.LoadCredentials(ctx); err != nil {
		return err
	}

	tok, err := mgr.Refresh(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("%s (expires %s)\n", r.palette.OK("✓ Token refreshed"), tok.Expiry.Local().Format(time.RFC1123))
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/repositories"
	"github.com/desertthunder/recents/internal/secrets"
	"github.com/desertthunder/recents/internal/server"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/desertthunder/recents/internal/tasks"
	"github.com/desertthunder/recents/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Authorizer runs the interactive OAuth flow.
type Authorizer func(ctx context.Context, cfg *oauth2.Config, opts server.AuthorizeOptions) (*oauth2.Token, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The secret store and history database are opened on first use and closed by [Runner.Close].
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
	httpClient *http.Client
	endpoint   oauth2.Endpoint
	authorize  Authorizer
	lookupEnv  func(string) (string, bool)

	store secrets.Store
	db    *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Palette    *ui.Palette
	HTTPClient *http.Client
	Endpoint   oauth2.Endpoint
	Authorize  Authorizer
	LookupEnv  func(string) (string, bool)
	Store      secrets.Store
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Palette == nil {
		opts.Palette = ui.DefaultPalette
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = auth.SpotifyEndpoint
	}
	if opts.Authorize == nil {
		opts.Authorize = server.Authorize
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    opts.Palette,
		httpClient: opts.HTTPClient,
		endpoint:   opts.Endpoint,
		authorize:  opts.Authorize,
		lookupEnv:  opts.LookupEnv,
		store:      opts.Store,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, planCommand, authCommand, secretsCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the environment file and configuration, then configures logging.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := shared.LoadEnv(cmd.String("env-file")); err != nil {
		return ctx, err
	}

	if r.config == nil {
		path := cmd.String("config")
		cfg, err := shared.LoadConfig(path)
		switch {
		case errors.Is(err, shared.ErrMissingConfig) && !cmd.IsSet("config"):
			r.logger.Debug("config file not found, using defaults", "path", path)
			cfg = shared.DefaultConfig()
		case err != nil:
			return ctx, err
		}
		r.config = cfg
		r.configPath = path
	}

	if err := r.config.ApplyEnv(r.lookupEnv); err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		r.config.Log.Level = lvl
	}
	if cmd.Bool("verbose") {
		r.config.Log.Level = "debug"
	}

	return ctx, r.configureLogger()
}

func (r *Runner) configureLogger() error {
	lc := r.config.Log
	if lc.File != "" {
		fileLogger, err := shared.NewFileLogger(lc.File)
		if err != nil {
			return err
		}
		r.logger = fileLogger
	}
	if lc.JSON {
		shared.UseJSON(r.logger)
	}

	level, err := shared.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	shared.SetLogLevel(r.logger, level)
	return nil
}

// Close releases the secret store and database.
func (r *Runner) Close(ctx context.Context, cmd *cli.Command) error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

// secretStore opens the configured credential store.
func (r *Runner) secretStore(ctx context.Context) (secrets.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	if err := r.cfg().Validate(); err != nil {
		return nil, err
	}

	store, err := secrets.NewStore(ctx, r.cfg())
	if err != nil {
		return nil, err
	}
	r.logger.Debug("secret store opened", "backend", shared.NormalizeBackend(r.cfg().Secrets.Backend))
	r.store = store
	return store, nil
}

// database opens the history database and applies migrations.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(r.cfg().Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	return db, nil
}

func (r *Runner) history() (*repositories.RunRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewRunRepository(db), nil
}

func (r *Runner) authManager(store secrets.Store) *auth.Manager {
	cfg := r.cfg()
	return auth.NewManager(auth.Options{
		Store:           store,
		CredentialsName: cfg.Secrets.CredentialsName,
		TokenName:       cfg.Secrets.TokenName,
		RedirectURI:     cfg.Spotify.RedirectURI,
		RefreshMargin:   cfg.Spotify.RefreshMargin.Duration,
		Endpoint:        r.endpoint,
		HTTPClient:      r.httpClient,
		Logger:          r.logger,
	})
}

func (r *Runner) spotify(tokens services.TokenProvider) (*services.SpotifyService, error) {
	sc := r.cfg().Spotify
	return services.NewSpotifyService(services.SpotifyOptions{
		BaseURL:    sc.BaseURL,
		HTTPClient: r.httpClient,
		Tokens:     tokens,
		Timeout:    sc.Timeout.Duration,
		MaxRetries: sc.MaxRetries,
		MaxDelay:   sc.MaxRetryDelay.Duration,
		RateLimit:  sc.RateLimit,
		Logger:     r.logger,
	})
}

func (r *Runner) chunkConfig() tasks.ChunkConfig {
	cfg := r.cfg()
	return tasks.ChunkConfig{Count: cfg.ChunkCount(), Size: cfg.Playlists.Size, Names: cfg.Playlists.Names}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeRaw(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// package tasks implements the rolling playlist sync: chunk planning, playlist convergence, and the run driver.
//
// Operations emit progress updates via channels for non-blocking status reporting to the CLI layer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/oauth2"
)

// TokenValidator prepares a usable access token before any API call is made.
type TokenValidator interface {
	LoadCredentials(ctx context.Context) error
	EnsureValid(ctx context.Context) (*oauth2.Token, error)
}

// PlaylistStore reads, writes, and resolves target playlists.
type PlaylistStore interface {
	services.PlaylistSource
	services.PlaylistSink
	services.PlaylistDirectory
}

// IdentityCache persists the playlist name to id mapping between runs.
type IdentityCache interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, ids map[string]string) error
}

// Dependencies are the collaborators of an [Engine]. Recorder and Logger are optional.
type Dependencies struct {
	Tokens    TokenValidator
	Library   services.LibrarySource
	Playlists PlaylistStore
	Cache     IdentityCache
	Recorder  models.Recorder
	Logger    *log.Logger
}

// Options configures a run.
type Options struct {
	Chunks      ChunkConfig
	Description string
	BatchSize   int
	DryRun      bool
}

// Engine drives one sync run at a time. Overlapping runs against the same account are not guarded against.
type Engine struct {
	tokens    TokenValidator
	library   services.LibrarySource
	playlists PlaylistStore
	cache     IdentityCache
	recorder  models.Recorder
	logger    *log.Logger
	opts      Options
	now       func() time.Time
}

// NewEngine creates a new Engine with the provided collaborators.
func NewEngine(deps Dependencies, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{
		tokens:    deps.Tokens,
		library:   deps.Library,
		playlists: deps.Playlists,
		cache:     deps.Cache,
		recorder:  deps.Recorder,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes one sync run and returns its record.
//
// The returned error is nil on success, wraps [shared.ErrSync] when some playlists failed (and
// [shared.ErrAllFailed] when none succeeded), and is the fatal cause when the run failed. The
// record is returned in every case. Its stage only reaches done when every playlist synced.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.RunRecord, error) {
	rec := &models.RunRecord{
		ID:        shared.GenerateID(),
		Status:    models.StatusSuccess,
		Stage:     models.StageInit,
		DryRun:    e.opts.DryRun,
		StartedAt: e.now(),
	}
	logger := shared.WithLogger(e.logger, "run_id", rec.ID)
	logger.Info("run started", "dry_run", e.opts.DryRun, "playlists", e.opts.Chunks.Count, "size", e.opts.Chunks.Size)

	err := e.run(ctx, rec, logger, progress)
	return rec, e.finish(ctx, rec, logger, progress, err)
}

func (e *Engine) run(ctx context.Context, rec *models.RunRecord, logger *log.Logger, progress chan<- ProgressUpdate) error {
	if err := e.opts.Chunks.Validate(); err != nil {
		return err
	}
	if e.tokens == nil || e.library == nil || e.playlists == nil || e.cache == nil {
		return fmt.Errorf("%w: engine is missing a collaborator", shared.ErrInvalidConfig)
	}

	e.sendProgress(progress, loadCredentialsUpdate())
	if err := e.tokens.LoadCredentials(ctx); err != nil {
		return err
	}
	rec.Stage = models.StageCredentialsLoaded

	e.sendProgress(progress, validateTokenUpdate())
	if _, err := e.tokens.EnsureValid(ctx); err != nil {
		return err
	}
	rec.Stage = models.StageTokenValid

	window := e.opts.Chunks.Window()
	e.sendProgress(progress, fetchLibraryUpdate(window))
	snapshot, err := e.library.LikedTracks(ctx, window)
	if err != nil {
		return fmt.Errorf("failed to fetch liked songs: %w", err)
	}
	rec.LibrarySize = len(snapshot)
	rec.Stage = models.StageLibraryFetched
	logger.Debug("library fetched", "tracks", len(snapshot))

	chunks, err := Plan(snapshot, e.opts.Chunks)
	if err != nil {
		return err
	}
	rec.Stage = models.StagePlanned
	e.sendProgress(progress, planUpdate(chunks, len(snapshot)))

	rec.Playlists = make([]models.PlaylistOutcome, len(chunks))
	for i, c := range chunks {
		rec.Playlists[i] = models.PlaylistOutcome{Index: i, Name: c.Name, Status: models.StatusSkipped, Desired: len(c.Tracks)}
	}

	ids, err := e.cache.Load(ctx)
	if err != nil {
		logger.Warn("playlist id cache unreadable, resolving by name", "error", err)
		ids = map[string]string{}
	}
	r := &resolver{engine: e, ids: ids}

	rec.Stage = models.StageConverging
	var fatal error
	for i, chunk := range chunks {
		outcome, err := e.syncChunk(ctx, r, chunk, len(chunks), progress)
		rec.Playlists[i] = outcome

		plog := logger.With("playlist", chunk.Name, "playlist_id", outcome.PlaylistID)
		if err != nil {
			plog.Error("playlist sync failed", "error_kind", outcome.ErrorKind, "error", err)
			e.sendProgress(progress, convergeFailedUpdate(i+1, len(chunks), chunk.Name, err))
			if shared.IsFatal(err) {
				fatal = err
				break
			}
			continue
		}
		plog.Info("playlist synced", "changed", outcome.Changed, "removed", outcome.Removed, "added", outcome.Added, "calls", outcome.Calls)
	}

	if r.dirty && !e.opts.DryRun {
		if err := e.cache.Save(ctx, r.ids); err != nil {
			logger.Warn("failed to persist playlist ids", "error", err)
		}
	}

	if fatal != nil {
		return fatal
	}
	if len(rec.Failed()) == 0 {
		rec.Stage = models.StageDone
	}
	return nil
}

// syncChunk resolves, fetches, and converges the playlist for one chunk.
func (e *Engine) syncChunk(ctx context.Context, r *resolver, chunk models.Chunk, total int, progress chan<- ProgressUpdate) (models.PlaylistOutcome, error) {
	step := chunk.Index + 1
	outcome := models.PlaylistOutcome{Index: chunk.Index, Name: chunk.Name, Desired: len(chunk.Tracks)}

	fail := func(err error) (models.PlaylistOutcome, error) {
		outcome.Status = models.StatusFailed
		outcome.ErrorKind = shared.ErrorKind(err)
		outcome.Error = err.Error()
		return outcome, err
	}

	e.sendProgress(progress, resolveUpdate(step, total, chunk.Name))
	target, cached, err := r.resolve(ctx, chunk.Name, step, total, progress)
	if err != nil {
		return fail(&shared.SyncError{Playlist: chunk.Name, Step: StepResolve, Err: err})
	}
	outcome.PlaylistID = target.ID

	var current []models.Track
	if target.ID != "" {
		e.sendProgress(progress, fetchPlaylistUpdate(step, total, target))
		current, err = e.playlists.PlaylistTracks(ctx, target.ID)
		if err != nil && cached && services.IsNotFound(err) {
			e.logger.Warn("cached playlist id no longer exists, resolving by name", "playlist", chunk.Name, "playlist_id", target.ID)
			if target, err = r.lookup(ctx, chunk.Name, step, total, progress); err != nil {
				return fail(&shared.SyncError{Playlist: chunk.Name, Step: StepResolve, Err: err})
			}
			outcome.PlaylistID = target.ID
			current, err = nil, nil
			if target.ID != "" {
				current, err = e.playlists.PlaylistTracks(ctx, target.ID)
			}
		}
		if err != nil {
			return fail(&shared.SyncError{Playlist: chunk.Name, PlaylistID: target.ID, Step: StepFetch, Err: err})
		}
	}

	report, err := Converge(ctx, target, current, chunk.Tracks, e.playlists, ConvergeOptions{
		BatchSize: e.opts.BatchSize,
		DryRun:    e.opts.DryRun,
		Verify:    e.playlists,
	})
	if report != nil {
		outcome.Previous = report.Previous
		outcome.Changed = report.Changed
		outcome.Removed = report.Removed
		outcome.Added = report.Added
		outcome.Calls = report.Calls
	}
	if err != nil {
		return fail(err)
	}

	outcome.Status = models.StatusSuccess
	e.sendProgress(progress, convergedUpdate(step, total, report))
	return outcome, nil
}

// finish settles the run status, logs the record, hands it to the recorder, and returns the caller-facing error.
func (e *Engine) finish(ctx context.Context, rec *models.RunRecord, logger *log.Logger, progress chan<- ProgressUpdate, err error) error {
	rec.FinishedAt = e.now()

	var result error
	if err != nil {
		rec.Status = models.StatusFailed
		rec.ErrorKind = shared.ErrorKind(err)
		rec.Error = err.Error()
		result = err
	} else if failed := rec.Failed(); len(failed) > 0 {
		rec.ErrorKind = shared.KindSync
		rec.Error = fmt.Sprintf("%d of %d playlists failed: %v", len(failed), len(rec.Playlists), failed)
		if len(failed) == len(rec.Playlists) {
			rec.Status = models.StatusFailed
			result = fmt.Errorf("%w: %w: %s", shared.ErrSync, shared.ErrAllFailed, rec.Error)
		} else {
			rec.Status = models.StatusPartial
			result = fmt.Errorf("%w: %s", shared.ErrSync, rec.Error)
		}
	}

	fields := []any{
		"status", rec.Status,
		"stage", rec.Stage,
		"library_size", rec.LibrarySize,
		"duration", rec.Duration().Round(time.Millisecond),
	}
	if rec.ErrorKind != "" {
		fields = append(fields, "error_kind", rec.ErrorKind, "error", rec.Error)
	}
	if rec.Status == models.StatusSuccess {
		logger.Info("run finished", fields...)
	} else {
		logger.Error("run finished", fields...)
	}

	if e.recorder != nil {
		// A cancelled run is still recorded.
		if rerr := e.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
			logger.Warn("failed to record run", "error", rerr)
		}
	}

	e.sendProgress(progress, runCompleteUpdate(rec))
	return result
}

// resolver maps playlist names to ids: cached id, then an owned playlist with the same name, then a new private playlist.
type resolver struct {
	engine *Engine
	ids    map[string]string
	dirty  bool
}

// resolve returns the target playlist and whether its id came from the cache.
func (r *resolver) resolve(ctx context.Context, name string, step, total int, progress chan<- ProgressUpdate) (models.Playlist, bool, error) {
	if id, ok := r.ids[name]; ok && id != "" {
		return models.Playlist{ID: id, Name: name}, true, nil
	}
	p, err := r.lookup(ctx, name, step, total, progress)
	return p, false, err
}

// lookup finds or creates the playlist by name, ignoring the cache. The cached id is only replaced
// once a new one is known. On a dry run a missing playlist resolves to one without an id and
// nothing is created.
func (r *resolver) lookup(ctx context.Context, name string, step, total int, progress chan<- ProgressUpdate) (models.Playlist, error) {
	e := r.engine
	found, err := e.playlists.FindPlaylist(ctx, name)
	if err != nil {
		return models.Playlist{Name: name}, err
	}
	if found != nil {
		r.remember(name, found.ID)
		return *found, nil
	}

	if e.opts.DryRun {
		return models.Playlist{Name: name}, nil
	}

	created, err := e.playlists.CreatePlaylist(ctx, name, e.opts.Description)
	if err != nil {
		return models.Playlist{Name: name}, err
	}
	if created == nil || created.ID == "" {
		return models.Playlist{Name: name}, errors.New("created playlist has no id")
	}
	e.sendProgress(progress, createPlaylistUpdate(step, total, created))
	e.logger.Info("playlist created", "playlist", name, "playlist_id", created.ID)

	r.remember(name, created.ID)
	return *created, nil
}

func (r *resolver) remember(name, id string) {
	if r.ids[name] != id {
		r.ids[name] = id
		r.dirty = true
	}
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/secrets"
	"github.com/desertthunder/recents/internal/shared"
	th "github.com/desertthunder/recents/internal/testing"
)

const cacheName = "recents/playlists"

type fakeRecorder struct {
	records []*models.RunRecord
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, rec *models.RunRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.records = append(f.records, rec)
	return f.err
}

type harness struct {
	spotify  *th.FakeSpotify
	tokens   *th.FakeTokens
	store    *secrets.MemoryStore
	cache    *secrets.PlaylistCache
	recorder *fakeRecorder
}

func newHarness(library []models.Track) *harness {
	store := secrets.NewMemoryStore()
	return &harness{
		spotify:  th.NewFakeSpotify(library),
		tokens:   &th.FakeTokens{},
		store:    store,
		cache:    secrets.NewPlaylistCache(store, cacheName),
		recorder: &fakeRecorder{},
	}
}

func (h *harness) engine(opts Options) *Engine {
	return NewEngine(Dependencies{
		Tokens:    h.tokens,
		Library:   h.spotify,
		Playlists: h.spotify,
		Cache:     h.cache,
		Recorder:  h.recorder,
	}, opts)
}

func (h *harness) ids(t *testing.T) map[string]string {
	t.Helper()
	ids, err := h.cache.Load(context.Background())
	if err != nil {
		t.Fatalf("cache.Load() error = %v", err)
	}
	return ids
}

func threeBy(size int) Options {
	return Options{Chunks: ChunkConfig{Count: 3, Size: size, Names: []string{"A", "B", "C"}}, Description: "rolling"}
}

func statuses(rec *models.RunRecord) []models.RunStatus {
	out := make([]models.RunStatus, len(rec.Playlists))
	for i, p := range rec.Playlists {
		out[i] = p.Status
	}
	return out
}

func TestEngineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and fills missing playlists", func(t *testing.T) {
		h := newHarness(th.Library(250))
		rec, err := h.engine(threeBy(200)).Run(ctx, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if rec.Status != models.StatusSuccess || rec.Stage != models.StageDone || rec.LibrarySize != 250 {
			t.Errorf("unexpected record %+v", rec)
		}
		if h.spotify.Count(th.OpCreate) != 3 {
			t.Errorf("expected 3 playlists created, got %d", h.spotify.Count(th.OpCreate))
		}

		ids := h.ids(t)
		if len(ids) != 3 {
			t.Fatalf("expected 3 cached ids, got %v", ids)
		}
		if !models.SameOrder(h.spotify.Contents(ids["A"]), th.Library(200)) {
			t.Error("playlist A does not hold the 200 most recent tracks")
		}
		if !models.SameOrder(h.spotify.Contents(ids["B"]), th.Library(250)[200:]) {
			t.Error("playlist B does not hold the next 50 tracks")
		}
		if len(h.spotify.Contents(ids["C"])) != 0 {
			t.Error("playlist C should be empty")
		}
		if h.store.Writes(cacheName) != 1 {
			t.Errorf("expected one cache write, got %d", h.store.Writes(cacheName))
		}
		if len(h.recorder.records) != 1 || h.recorder.records[0] != rec {
			t.Errorf("expected the record to be recorded once, got %d", len(h.recorder.records))
		}
	})

	t.Run("stale trailing playlist is cleared", func(t *testing.T) {
		h := newHarness(th.Library(250))
		a := h.spotify.Seed("A", nil)
		b := h.spotify.Seed("B", nil)
		c := h.spotify.Seed("C", th.Tracks("old1", "old2"))

		if _, err := h.engine(threeBy(200)).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if h.spotify.Count(th.OpCreate) != 0 {
			t.Error("existing playlists should be adopted by name")
		}
		if len(h.spotify.Contents(c)) != 0 {
			t.Errorf("playlist C still holds %v", models.Keys(h.spotify.Contents(c)))
		}
		if len(h.spotify.Contents(a)) != 200 || len(h.spotify.Contents(b)) != 50 {
			t.Error("playlists A and B not filled")
		}
	})

	t.Run("second run makes no writes", func(t *testing.T) {
		h := newHarness(th.Library(250))
		if _, err := h.engine(threeBy(200)).Run(ctx, nil); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
		before := h.spotify.Writes("")

		rec, err := h.engine(threeBy(200)).Run(ctx, nil)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if h.spotify.Writes("") != before {
			t.Errorf("second run wrote %d times", h.spotify.Writes("")-before)
		}
		if h.spotify.Count(th.OpFind) != 3 {
			t.Errorf("cached ids should skip lookups, got %d finds", h.spotify.Count(th.OpFind))
		}
		if h.store.Writes(cacheName) != 1 {
			t.Errorf("unchanged cache should not be rewritten, got %d writes", h.store.Writes(cacheName))
		}
		for _, p := range rec.Playlists {
			if p.Changed || p.Calls != 0 {
				t.Errorf("playlist %s reported changes %+v", p.Name, p)
			}
		}
	})

	t.Run("new likes shift every window", func(t *testing.T) {
		h := newHarness(th.Tracks("a", "b", "c", "d"))
		opts := Options{Chunks: ChunkConfig{Count: 2, Size: 2, Names: []string{"A", "B"}}}
		if _, err := h.engine(opts).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		ids := h.ids(t)
		engine := NewEngine(Dependencies{
			Tokens:    h.tokens,
			Library:   th.NewFakeSpotify(th.Tracks("new", "a", "b", "c", "d")),
			Playlists: h.spotify,
			Cache:     h.cache,
		}, opts)
		if _, err := engine.Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := models.Keys(h.spotify.Contents(ids["A"])); !equalKeys(got, []string{"new", "a"}) {
			t.Errorf("A = %v", got)
		}
		if got := models.Keys(h.spotify.Contents(ids["B"])); !equalKeys(got, []string{"b", "c"}) {
			t.Errorf("B = %v", got)
		}
	})

	t.Run("one failing playlist does not stop the others", func(t *testing.T) {
		h := newHarness(th.Library(9))
		h.spotify.Seed("A", nil)
		b := h.spotify.Seed("B", nil)
		h.spotify.Seed("C", nil)
		h.spotify.Fail = func(op, id string) error {
			if op == th.OpAdd && id == b {
				return &shared.TransientError{Op: "POST", Attempts: 4, Err: errors.New("503 service unavailable")}
			}
			return nil
		}

		rec, err := h.engine(threeBy(3)).Run(ctx, nil)
		if !errors.Is(err, shared.ErrSync) {
			t.Fatalf("expected ErrSync, got %v", err)
		}
		if rec.Status != models.StatusPartial || rec.ErrorKind != shared.KindSync {
			t.Errorf("expected partial sync failure, got %s/%s", rec.Status, rec.ErrorKind)
		}
		if errors.Is(err, shared.ErrAllFailed) {
			t.Error("a partial run must not report every playlist failed")
		}
		if rec.Stage != models.StageConverging {
			t.Errorf("partial run stage = %s, want %s", rec.Stage, models.StageConverging)
		}

		want := []models.RunStatus{models.StatusSuccess, models.StatusFailed, models.StatusSuccess}
		got := statuses(rec)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("playlist %d status = %s, want %s", i, got[i], want[i])
			}
		}
		if rec.Playlists[1].ErrorKind != shared.KindTransient {
			t.Errorf("expected transient kind for B, got %q", rec.Playlists[1].ErrorKind)
		}
		if !models.SameOrder(h.spotify.Contents("pl3"), th.Library(9)[6:]) {
			t.Error("playlist C was not converged after B failed")
		}
		if len(rec.Failed()) != 1 || rec.Failed()[0] != "B" {
			t.Errorf("Failed() = %v", rec.Failed())
		}
	})

	t.Run("all playlists failing fails the run", func(t *testing.T) {
		h := newHarness(th.Library(6))
		h.spotify.Fail = func(op, _ string) error {
			if op == th.OpCreate {
				return &shared.APIError{Method: "POST", Endpoint: "/users/me/playlists", StatusCode: 403}
			}
			return nil
		}

		rec, err := h.engine(threeBy(2)).Run(ctx, nil)
		if !errors.Is(err, shared.ErrSync) {
			t.Fatalf("expected ErrSync, got %v", err)
		}
		if rec.Status != models.StatusFailed {
			t.Errorf("expected failed, got %s", rec.Status)
		}
		if !errors.Is(err, shared.ErrAllFailed) {
			t.Errorf("expected ErrAllFailed, got %v", err)
		}
		if rec.Stage != models.StageConverging {
			t.Errorf("failed run stage = %s, want %s", rec.Stage, models.StageConverging)
		}
		if h.store.Writes(cacheName) != 0 {
			t.Error("cache should not be written when nothing resolved")
		}
	})

	t.Run("expired authorization aborts remaining playlists", func(t *testing.T) {
		h := newHarness(th.Library(6))
		h.spotify.Seed("A", nil)
		b := h.spotify.Seed("B", nil)
		h.spotify.Seed("C", nil)
		h.spotify.Fail = func(op, id string) error {
			if op == th.OpTracks && id == b {
				return fmt.Errorf("%w: invalid_grant", shared.ErrTokenExpired)
			}
			return nil
		}

		rec, err := h.engine(threeBy(2)).Run(ctx, nil)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if rec.Status != models.StatusFailed || rec.ErrorKind != shared.KindAuthExpired {
			t.Errorf("unexpected record %s/%s", rec.Status, rec.ErrorKind)
		}
		want := []models.RunStatus{models.StatusSuccess, models.StatusFailed, models.StatusSkipped}
		got := statuses(rec)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("playlist %d status = %s, want %s", i, got[i], want[i])
			}
		}
		if h.spotify.Writes("pl3") != 0 {
			t.Error("playlist C should not be touched after a fatal error")
		}
		if len(h.recorder.records) != 1 {
			t.Error("a failed run must still be recorded")
		}
	})

	t.Run("token failures stop before any api call", func(t *testing.T) {
		tc := []struct {
			name  string
			setup func(*th.FakeTokens)
			want  error
			kind  string
			stage models.Stage
		}{
			{
				name:  "missing credentials",
				setup: func(f *th.FakeTokens) { f.LoadErr = fmt.Errorf("%w: recents/oauth", shared.ErrMissingCredentials) },
				want:  shared.ErrMissingCredentials,
				kind:  shared.KindConfiguration,
				stage: models.StageInit,
			},
			{
				name:  "no stored token",
				setup: func(f *th.FakeTokens) { f.EnsureErr = shared.ErrAuthorizationRequired },
				want:  shared.ErrAuthorizationRequired,
				kind:  shared.KindAuthorizationRequired,
				stage: models.StageCredentialsLoaded,
			},
			{
				name:  "refresh rejected",
				setup: func(f *th.FakeTokens) { f.EnsureErr = shared.ErrTokenExpired },
				want:  shared.ErrTokenExpired,
				kind:  shared.KindAuthExpired,
				stage: models.StageCredentialsLoaded,
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				h := newHarness(th.Library(3))
				tt.setup(h.tokens)

				rec, err := h.engine(threeBy(1)).Run(ctx, nil)
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				if rec.Status != models.StatusFailed || rec.ErrorKind != tt.kind || rec.Stage != tt.stage {
					t.Errorf("unexpected record %s/%s/%s", rec.Status, rec.ErrorKind, rec.Stage)
				}
				if len(h.spotify.Calls) != 0 {
					t.Errorf("expected no api calls, got %+v", h.spotify.Calls)
				}
			})
		}
	})

	t.Run("invalid chunk configuration fails fast", func(t *testing.T) {
		h := newHarness(th.Library(3))
		opts := Options{Chunks: ChunkConfig{Count: 3, Size: 200, Names: []string{"A"}}}

		rec, err := h.engine(opts).Run(ctx, nil)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if rec.ErrorKind != shared.KindConfiguration || h.tokens.Loads != 0 {
			t.Errorf("expected config failure before credentials, got %+v", rec)
		}
	})

	t.Run("library fetch failure fails the run", func(t *testing.T) {
		h := newHarness(th.Library(3))
		h.spotify.Fail = func(op, _ string) error {
			if op == th.OpLiked {
				return &shared.TransientError{Op: "GET", Attempts: 4, Err: errors.New("timeout")}
			}
			return nil
		}

		rec, err := h.engine(threeBy(1)).Run(ctx, nil)
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
		if rec.Stage != models.StageTokenValid || rec.Playlists != nil {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("deleted cached playlist is resolved again", func(t *testing.T) {
		h := newHarness(th.Tracks("a", "b"))
		if err := h.cache.Save(ctx, map[string]string{"A": "gone"}); err != nil {
			t.Fatal(err)
		}
		opts := Options{Chunks: ChunkConfig{Count: 1, Size: 2, Names: []string{"A"}}}

		rec, err := h.engine(opts).Run(ctx, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		ids := h.ids(t)
		if ids["A"] == "gone" || ids["A"] == "" {
			t.Fatalf("cache still points at %q", ids["A"])
		}
		if rec.Playlists[0].PlaylistID != ids["A"] {
			t.Errorf("outcome id %q, cache id %q", rec.Playlists[0].PlaylistID, ids["A"])
		}
		if got := models.Keys(h.spotify.Contents(ids["A"])); !equalKeys(got, []string{"a", "b"}) {
			t.Errorf("A = %v", got)
		}
	})

	t.Run("failed lookup keeps the cached id", func(t *testing.T) {
		h := newHarness(th.Tracks("a", "b"))
		if err := h.cache.Save(ctx, map[string]string{"A": "gone"}); err != nil {
			t.Fatal(err)
		}
		h.spotify.Fail = func(op, _ string) error {
			if op == th.OpFind {
				return &shared.TransientError{Op: "GET /me/playlists", Attempts: 3, Err: errors.New("503")}
			}
			return nil
		}
		opts := Options{Chunks: ChunkConfig{Count: 1, Size: 2, Names: []string{"A"}}}

		rec, err := h.engine(opts).Run(ctx, nil)
		if !errors.Is(err, shared.ErrSync) {
			t.Fatalf("expected ErrSync, got %v", err)
		}
		if rec.Playlists[0].Status != models.StatusFailed {
			t.Errorf("expected A to fail, got %s", rec.Playlists[0].Status)
		}
		if got := h.ids(t)["A"]; got != "gone" {
			t.Errorf("cached id = %q, want it kept as %q", got, "gone")
		}
		if h.spotify.Count(th.OpCreate) != 0 {
			t.Error("no playlist should be created when the lookup fails")
		}
	})

	t.Run("write that does not stick fails verification", func(t *testing.T) {
		h := newHarness(th.Tracks("a", "b", "c"))
		h.spotify.AddFilter = func(_ string, tracks []models.Track) []models.Track {
			return slices.DeleteFunc(slices.Clone(tracks), func(tr models.Track) bool { return tr.Key() == "b" })
		}
		opts := Options{Chunks: ChunkConfig{Count: 1, Size: 3, Names: []string{"A"}}}

		rec, err := h.engine(opts).Run(ctx, nil)
		if !errors.Is(err, shared.ErrSync) {
			t.Fatalf("expected ErrSync, got %v", err)
		}
		out := rec.Playlists[0]
		if out.Status != models.StatusFailed || out.ErrorKind != shared.KindSync {
			t.Errorf("unexpected outcome %+v", out)
		}
		if !strings.Contains(out.Error, "during "+StepVerify) || !strings.Contains(out.Error, shared.ErrPlaylistMismatch.Error()) {
			t.Errorf("expected a verify mismatch, got %q", out.Error)
		}
	})

	t.Run("cached id is preferred over a same-named playlist", func(t *testing.T) {
		h := newHarness(th.Tracks("a"))
		h.spotify.Seed("A", nil)
		mine := h.spotify.Seed("A", nil)
		_ = h.cache.Save(ctx, map[string]string{"A": mine})

		opts := Options{Chunks: ChunkConfig{Count: 1, Size: 1, Names: []string{"A"}}}
		if _, err := h.engine(opts).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(h.spotify.Contents(mine)) != 1 || len(h.spotify.Contents("pl1")) != 0 {
			t.Error("expected the cached playlist to be written")
		}
	})

	t.Run("unreadable cache falls back to lookup by name", func(t *testing.T) {
		h := newHarness(th.Tracks("a"))
		_ = h.store.Put(ctx, cacheName, []byte("{not json"))
		id := h.spotify.Seed("A", nil)

		opts := Options{Chunks: ChunkConfig{Count: 1, Size: 1, Names: []string{"A"}}}
		if _, err := h.engine(opts).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if h.ids(t)["A"] != id {
			t.Error("cache should be rewritten with the resolved id")
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		h := newHarness(th.Library(5))
		a := h.spotify.Seed("A", th.Tracks("x"))
		opts := threeBy(2)
		opts.DryRun = true

		rec, err := h.engine(opts).Run(ctx, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if h.spotify.Writes("") != 0 || h.spotify.Count(th.OpCreate) != 0 {
			t.Errorf("dry run made calls %+v", h.spotify.Calls)
		}
		if h.store.Writes(cacheName) != 0 {
			t.Error("dry run must not write the cache")
		}
		if !rec.DryRun || rec.Playlists[0].PlaylistID != a || rec.Playlists[0].Calls != 2 {
			t.Errorf("unexpected dry run record %+v", rec.Playlists[0])
		}
		if rec.Playlists[1].PlaylistID != "" || rec.Playlists[1].Added != 2 {
			t.Errorf("missing playlist should report planned additions, got %+v", rec.Playlists[1])
		}
	})

	t.Run("recorder failure does not fail the run", func(t *testing.T) {
		h := newHarness(th.Library(1))
		h.recorder.err = errors.New("disk full")
		if _, err := h.engine(threeBy(1)).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})

	t.Run("cancelled run is still recorded", func(t *testing.T) {
		h := newHarness(th.Library(1))
		cctx, cancel := context.WithCancel(ctx)
		h.tokens.LoadErr = context.Canceled
		cancel()

		rec, err := h.engine(threeBy(1)).Run(cctx, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(h.recorder.records) != 1 || rec.Status != models.StatusFailed {
			t.Error("cancelled run should be recorded as failed")
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		h := newHarness(th.Library(3))
		progress := make(chan ProgressUpdate, 64)

		if _, err := h.engine(threeBy(1)).Run(ctx, progress); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != LoadCredentials || phases[len(phases)-1] != RunComplete {
			t.Fatalf("unexpected phases %v", phases)
		}

		counts := map[Phase]int{}
		for _, p := range phases {
			counts[p]++
		}
		if counts[CreatePlaylist] != 3 || counts[ConvergePlaylist] != 3 || counts[ResolvePlaylist] != 3 {
			t.Errorf("unexpected phase counts %v", counts)
		}
	})

	t.Run("full progress channel does not block", func(t *testing.T) {
		h := newHarness(th.Library(3))
		progress := make(chan ProgressUpdate)
		if _, err := h.engine(threeBy(1)).Run(ctx, progress); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tc := map[Phase]string{
		LoadCredentials:  "load_credentials",
		FetchLibrary:     "fetch_library",
		ConvergePlaylist: "converge_playlist",
		RunComplete:      "run_complete",
		Phase(99):        "",
	}
	for p, want := range tc {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}

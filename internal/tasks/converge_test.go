package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
	th "github.com/desertthunder/recents/internal/testing"
)

func keysOf(tracks []models.Track) []string { return models.Keys(tracks) }

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiff(t *testing.T) {
	tc := []struct {
		name       string
		current    []string
		desired    []string
		removals   []string
		insertions []string
		reordered  []string
		duplicates []string
	}{
		{name: "identical", current: []string{"a", "b"}, desired: []string{"a", "b"}},
		{name: "reversed", current: []string{"a", "b", "c"}, desired: []string{"c", "b", "a"}, reordered: []string{"c", "a"}},
		{name: "shifted window", current: []string{"b", "c", "d"}, desired: []string{"a", "b", "c"}, removals: []string{"d"}, insertions: []string{"a"}},
		{name: "duplicates collapse", current: []string{"a", "a", "b"}, desired: []string{"a", "b"}, duplicates: []string{"a"}},
		{name: "empty current", desired: []string{"a"}, insertions: []string{"a"}},
		{name: "empty desired", current: []string{"a", "b"}, removals: []string{"a", "b"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(th.Tracks(tt.current...), th.Tracks(tt.desired...))

			check := func(field string, got []models.Track, want []string) {
				if !equalKeys(keysOf(got), want) {
					t.Errorf("%s = %v, want %v", field, keysOf(got), want)
				}
			}
			check("Removals", d.Removals, tt.removals)
			check("Insertions", d.Insertions, tt.insertions)
			check("Reordered", d.Reordered, tt.reordered)
			check("Duplicates", d.Duplicates, tt.duplicates)

			if tt.name == "identical" && !d.Empty() {
				t.Error("identical sequences should have an empty delta")
			}
		})
	}
}

func TestConverge(t *testing.T) {
	ctx := context.Background()

	converge := func(t *testing.T, current, desired []models.Track, opts ConvergeOptions) (*th.FakeSpotify, string, *ConvergeReport, error) {
		t.Helper()
		fake := th.NewFakeSpotify(nil)
		id := fake.Seed("target", current)
		report, err := Converge(ctx, models.Playlist{ID: id, Name: "target"}, current, desired, fake, opts)
		return fake, id, report, err
	}

	t.Run("identical sequences make zero calls", func(t *testing.T) {
		fake, id, report, err := converge(t, th.Tracks("a", "b", "c"), th.Tracks("a", "b", "c"), ConvergeOptions{})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Writes(id) != 0 || report.Calls != 0 || report.Changed {
			t.Errorf("expected no calls, got %d writes, report %+v", fake.Writes(id), report)
		}
	})

	t.Run("reversed order is one clear and one append", func(t *testing.T) {
		fake, id, report, err := converge(t, th.Tracks("a", "b", "c"), th.Tracks("c", "b", "a"), ConvergeOptions{})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Count(th.OpRemove) != 1 || fake.Count(th.OpAdd) != 1 || report.Calls != 2 {
			t.Errorf("expected 1 remove + 1 add, got %d + %d", fake.Count(th.OpRemove), fake.Count(th.OpAdd))
		}
		if got := keysOf(fake.Contents(id)); !equalKeys(got, []string{"c", "b", "a"}) {
			t.Errorf("playlist = %v", got)
		}
	})

	t.Run("result equals desired for arbitrary inputs", func(t *testing.T) {
		cases := [][2][]string{
			{{"a", "b", "c"}, {"b", "c", "d"}},
			{{"a", "a", "b"}, {"b", "a"}},
			{{}, {"x", "y"}},
			{{"x", "y"}, {}},
			{{"a", "b"}, {"a", "b", "a"}},
		}
		for _, c := range cases {
			fake, id, _, err := converge(t, th.Tracks(c[0]...), th.Tracks(c[1]...), ConvergeOptions{})
			if err != nil {
				t.Fatalf("Converge(%v -> %v) error = %v", c[0], c[1], err)
			}
			if got := keysOf(fake.Contents(id)); !equalKeys(got, c[1]) {
				t.Errorf("Converge(%v -> %v) left %v", c[0], c[1], got)
			}
		}
	})

	t.Run("empty desired clears only", func(t *testing.T) {
		fake, _, report, err := converge(t, th.Tracks("a", "b"), nil, ConvergeOptions{})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Count(th.OpAdd) != 0 || fake.Count(th.OpRemove) != 1 || report.Removed != 2 {
			t.Errorf("expected clear only, got calls %+v", fake.Calls)
		}
	})

	t.Run("empty current inserts only", func(t *testing.T) {
		fake, _, _, err := converge(t, nil, th.Tracks("a"), ConvergeOptions{})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Count(th.OpRemove) != 0 || fake.Count(th.OpAdd) != 1 {
			t.Errorf("expected insert only, got calls %+v", fake.Calls)
		}
	})

	t.Run("batches respect the size limit and order", func(t *testing.T) {
		fake, id, report, err := converge(t, th.Library(250), th.Library(230)[5:], ConvergeOptions{})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		for _, c := range fake.Calls {
			if c.Tracks > 100 {
				t.Errorf("batch of %d exceeds 100", c.Tracks)
			}
		}
		if fake.Count(th.OpRemove) != 3 || fake.Count(th.OpAdd) != 3 {
			t.Errorf("expected 3 removes and 3 adds, got %d and %d", fake.Count(th.OpRemove), fake.Count(th.OpAdd))
		}
		if !models.SameOrder(fake.Contents(id), th.Library(230)[5:]) {
			t.Error("appended batches out of order")
		}
		if report.Removed != 250 || report.Added != 225 {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("duplicates are removed once by identifier", func(t *testing.T) {
		fake, _, report, _ := converge(t, th.Tracks("a", "a", "b"), th.Tracks("b"), ConvergeOptions{})
		if report.Removed != 2 {
			t.Errorf("expected 2 distinct removals, got %d", report.Removed)
		}
		if fake.Calls[0].Tracks != 2 {
			t.Errorf("expected remove batch of 2, got %+v", fake.Calls[0])
		}
	})

	t.Run("custom batch size", func(t *testing.T) {
		fake, _, _, _ := converge(t, nil, th.Library(5), ConvergeOptions{BatchSize: 2})
		if fake.Count(th.OpAdd) != 3 {
			t.Errorf("expected 3 add batches, got %d", fake.Count(th.OpAdd))
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		fake, id, report, err := converge(t, th.Tracks("a"), th.Tracks("b"), ConvergeOptions{DryRun: true})
		if err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Writes(id) != 0 {
			t.Errorf("dry run issued %d writes", fake.Writes(id))
		}
		if !report.Changed || report.Calls != 2 || !report.DryRun {
			t.Errorf("dry run should report planned calls, got %+v", report)
		}
	})

	t.Run("failed batch is a sync error", func(t *testing.T) {
		tc := []struct {
			op   string
			step string
		}{
			{op: th.OpRemove, step: StepClear},
			{op: th.OpAdd, step: StepAppend},
		}
		for _, tt := range tc {
			t.Run(tt.step, func(t *testing.T) {
				fake := th.NewFakeSpotify(nil)
				id := fake.Seed("target", th.Tracks("a"))
				cause := &shared.TransientError{Op: "POST", Attempts: 4, Err: errors.New("503")}
				fake.Fail = func(op, _ string) error {
					if op == tt.op {
						return cause
					}
					return nil
				}

				_, err := Converge(ctx, models.Playlist{ID: id, Name: "target"}, th.Tracks("a"), th.Tracks("b"), fake, ConvergeOptions{})
				var syncErr *shared.SyncError
				if !errors.As(err, &syncErr) {
					t.Fatalf("expected SyncError, got %v", err)
				}
				if syncErr.Step != tt.step || syncErr.PlaylistID != id || syncErr.Playlist != "target" {
					t.Errorf("unexpected sync error %+v", syncErr)
				}
				if !errors.Is(err, shared.ErrTransient) {
					t.Error("cause should be preserved")
				}
			})
		}
	})

	t.Run("verify re-reads a written playlist", func(t *testing.T) {
		fake := th.NewFakeSpotify(nil)
		id := fake.Seed("target", th.Tracks("a"))
		target := models.Playlist{ID: id, Name: "target"}

		if _, err := Converge(ctx, target, th.Tracks("a"), th.Tracks("b", "c"), fake, ConvergeOptions{Verify: fake}); err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Count(th.OpTracks) != 1 {
			t.Errorf("expected one verification read, got %d", fake.Count(th.OpTracks))
		}

		if _, err := Converge(ctx, target, th.Tracks("b", "c"), th.Tracks("b", "c"), fake, ConvergeOptions{Verify: fake}); err != nil {
			t.Fatalf("Converge() error = %v", err)
		}
		if fake.Count(th.OpTracks) != 1 {
			t.Error("an unchanged playlist should not be read again")
		}
	})

	t.Run("dropped track fails verification", func(t *testing.T) {
		fake := th.NewFakeSpotify(nil)
		id := fake.Seed("target", nil)
		fake.AddFilter = func(_ string, tracks []models.Track) []models.Track {
			return tracks[:len(tracks)-1]
		}

		report, err := Converge(ctx, models.Playlist{ID: id, Name: "target"}, nil, th.Tracks("a", "b"), fake, ConvergeOptions{Verify: fake})
		var syncErr *shared.SyncError
		if !errors.As(err, &syncErr) || syncErr.Step != StepVerify {
			t.Fatalf("expected verify SyncError, got %v", err)
		}
		if !errors.Is(err, shared.ErrPlaylistMismatch) || !errors.Is(err, shared.ErrSync) {
			t.Errorf("unexpected cause %v", err)
		}
		if report == nil || report.Added != 2 {
			t.Errorf("report should still describe the writes, got %+v", report)
		}
	})

	t.Run("dry run skips verification", func(t *testing.T) {
		fake := th.NewFakeSpotify(nil)
		id := fake.Seed("target", th.Tracks("a"))
		_, err := Converge(ctx, models.Playlist{ID: id, Name: "target"}, th.Tracks("a"), th.Tracks("b"), fake, ConvergeOptions{DryRun: true, Verify: fake})
		if err != nil || fake.Count(th.OpTracks) != 0 {
			t.Errorf("dry run read the playlist back: err=%v calls=%+v", err, fake.Calls)
		}
	})
}

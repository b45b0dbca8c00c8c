package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"mergeflow/internal/config"
	"mergeflow/internal/db"
	"mergeflow/internal/diff3"
	"mergeflow/internal/notify"
	"mergeflow/internal/resolve"
)

type recordingSender struct {
	mu     sync.Mutex
	events []notify.Payload
}

func (s *recordingSender) Name() string { return "webhook" }

func (s *recordingSender) Send(_ context.Context, payload notify.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, payload)
	return nil
}

func (s *recordingSender) eventNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Event)
	}
	return names
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Resolver: config.ResolverConfig{Mode: mode, MaxConcurrency: 2, Timeout: "5s"},
	}
}

// preferRemote resolves every region to its remote side and fails the
// region whose local side starts with failOn.
func preferRemote(failOn string) resolve.Resolver {
	return resolve.ResolverFunc(func(_ context.Context, c diff3.Conflict) (resolve.Resolution, error) {
		if len(c.Local) > 0 && c.Local[0] == failOn {
			return resolve.Resolution{}, errors.New("service unavailable")
		}
		return resolve.Resolution{Label: resolve.LabelRemote, RawLabel: "B", Lines: c.Remote}, nil
	})
}

type fixture struct {
	runner *Runner
	store  *db.Store
	sender *recordingSender
	dir    string
}

func setupRunner(t *testing.T, mode string, resolver resolve.Resolver) fixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "mergeflow.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sender := &recordingSender{}
	notifier := notify.NewWithSenders([]notify.Sender{sender}, notify.AllTriggers)
	runner, err := New(testConfig(mode), store, resolver, notifier)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return fixture{runner: runner, store: store, sender: sender, dir: t.TempDir()}
}

func (f fixture) session(t *testing.T, base, local, remote string) *Session {
	t.Helper()
	s := NewSession(
		writeFile(t, f.dir, "base.txt", base),
		writeFile(t, f.dir, "local.txt", local),
		writeFile(t, f.dir, "remote.txt", remote),
	)
	if err := f.runner.Load(s); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func TestNewRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	if _, err := New(testConfig("parallel"), nil, preferRemote(""), nil); err == nil {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestDetectRejectsMissingInput(t *testing.T) {
	t.Parallel()
	f := setupRunner(t, "sequential", preferRemote(""))
	s := NewSession("", "", "")

	err := f.runner.Detect(context.Background(), s)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if s.Detected() {
		t.Fatalf("detection should not have run")
	}
}

func TestDetectCleanMergeSkipsNotification(t *testing.T) {
	t.Parallel()
	f := setupRunner(t, "sequential", preferRemote(""))
	s := f.session(t, "a\nb\nc", "a\nB\nc", "a\nb\nc")

	if err := f.runner.Detect(context.Background(), s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if s.HasConflicts() {
		t.Fatalf("expected clean merge")
	}
	if got := strings.Join(s.Rendered, "\n"); got != "a\nB\nc" {
		t.Fatalf("unexpected merge %q", got)
	}
	if names := f.sender.eventNames(); len(names) != 0 {
		t.Fatalf("expected no notifications, got %v", names)
	}
	if _, err := f.runner.Resolve(context.Background(), s); !errors.Is(err, ErrNoConflicts) {
		t.Fatalf("expected ErrNoConflicts, got %v", err)
	}
}

func TestDetectReportsStrayMarkerInStableContent(t *testing.T) {
	t.Parallel()
	f := setupRunner(t, "sequential", preferRemote(""))
	text := "a\n<<<<<<< stray\nb"
	s := f.session(t, text, text, text)

	if err := f.runner.Detect(context.Background(), s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !s.HasConflicts() {
		t.Fatalf("expected a marker line in the rendered output to count as conflicts")
	}
	if n := s.ConflictCount(); n != 0 {
		t.Fatalf("expected no conflicting regions, got %d", n)
	}
	if _, err := f.runner.Resolve(context.Background(), s); !errors.Is(err, ErrNoConflicts) {
		t.Fatalf("expected ErrNoConflicts, got %v", err)
	}
	if names := f.sender.eventNames(); len(names) != 0 {
		t.Fatalf("expected no notifications, got %v", names)
	}
}

func TestResolveBeforeDetect(t *testing.T) {
	t.Parallel()
	f := setupRunner(t, "sequential", preferRemote(""))
	if _, err := f.runner.Resolve(context.Background(), NewSession("a", "b", "c")); !errors.Is(err, ErrNotDetected) {
		t.Fatalf("expected ErrNotDetected, got %v", err)
	}
}

func TestDetectAndResolveRecordsHistory(t *testing.T) {
	t.Parallel()
	for _, mode := range []string{"sequential", "concurrent"} {
		mode := mode
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := setupRunner(t, mode, preferRemote("L2"))
			s := f.session(t, "a\nb\nc\nd\ne", "a\nL1\nc\nL2\ne", "a\nR1\nc\nR2\ne")

			if err := f.runner.Detect(ctx, s); err != nil {
				t.Fatalf("detect: %v", err)
			}
			if s.Merge.ConflictCount() != 2 {
				t.Fatalf("expected 2 conflicts, got %d", s.Merge.ConflictCount())
			}
			if !diff3.HasConflictMarkers(s.Rendered) {
				t.Fatalf("expected markers in rendered output")
			}
			if !strings.HasPrefix(s.RunID, "mf-run-") || s.RunState != db.StateDetected {
				t.Fatalf("expected recorded run, got %q %q", s.RunID, s.RunState)
			}

			report, err := f.runner.Resolve(ctx, s)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if report.ResolvedCount() != 1 || len(report.Failed()) != 1 {
				t.Fatalf("unexpected report: %+v", report)
			}
			want := []string{"a", "R1", "c", resolve.FailedPlaceholder, "e"}
			if got := resolve.Texts(s.Resolved); !slices.Equal(got, want) {
				t.Fatalf("expected %q, got %q", want, got)
			}

			run, err := f.store.GetRun(ctx, s.RunID)
			if err != nil {
				t.Fatalf("get run: %v", err)
			}
			if run.State != db.StatePartial || run.ResolvedCount != 1 || run.FailedCount != 1 || run.Mode != mode {
				t.Fatalf("unexpected run: %+v", run)
			}
			regions, err := f.store.ListRegions(ctx, s.RunID)
			if err != nil {
				t.Fatalf("list regions: %v", err)
			}
			if len(regions) != 2 || regions[0].Label != "remote" || regions[1].Status != db.RegionFailed {
				t.Fatalf("unexpected regions: %+v", regions)
			}

			names := f.sender.eventNames()
			if !slices.Equal(names, []string{notify.TriggerConflictsDetected, notify.TriggerResolutionFailed}) {
				t.Fatalf("unexpected notifications %v", names)
			}
		})
	}
}

func TestResolveTwice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setupRunner(t, "sequential", preferRemote(""))
	s := f.session(t, "x", "local", "remote")

	if err := f.runner.Detect(ctx, s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.runner.Resolve(ctx, s); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if s.RunState != db.StateResolved {
			t.Fatalf("resolve %d: expected resolved, got %s", i, s.RunState)
		}
	}
	if got := resolve.Texts(s.Resolved); !slices.Equal(got, []string{"remote"}) {
		t.Fatalf("unexpected resolution %q", got)
	}
}

func TestClearMarksRunCleared(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setupRunner(t, "sequential", preferRemote(""))
	s := f.session(t, "x", "local", "remote")

	if err := f.runner.Detect(ctx, s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	id := s.RunID
	f.runner.Clear(ctx, s)

	if s.Detected() || s.Local.Loaded || s.RunID != "" {
		t.Fatalf("expected session reset, got %+v", s)
	}
	if s.Local.Path == "" {
		t.Fatalf("expected paths to survive clear")
	}
	run, _ := f.store.GetRun(ctx, id)
	if run.State != db.StateCleared {
		t.Fatalf("expected cleared run, got %s", run.State)
	}
	if err := f.runner.Detect(ctx, s); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput after clear, got %v", err)
	}

	if err := f.runner.Reload(ctx, s); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !s.HasConflicts() || s.RunID == id {
		t.Fatalf("expected a fresh detection, got run %q", s.RunID)
	}
}

func TestDetectConflictedFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setupRunner(t, "concurrent", preferRemote(""))
	content := strings.Join([]string{
		"head",
		"<<<<<<< LOCAL",
		"mine",
		"=======",
		"theirs",
		">>>>>>> REMOTE",
		"tail",
	}, "\n")
	s := NewConflictedSession(writeFile(t, f.dir, "conflicted.txt", content))
	if err := f.runner.Load(s); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.runner.Detect(ctx, s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if s.Merge.ConflictCount() != 1 {
		t.Fatalf("expected 1 conflict, got %d", s.Merge.ConflictCount())
	}
	if _, err := f.runner.Resolve(ctx, s); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := resolve.Texts(s.Resolved); !slices.Equal(got, []string{"head", "theirs", "tail"}) {
		t.Fatalf("unexpected resolution %q", got)
	}
}

func TestRunnerWithoutStoreOrNotifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runner, err := New(testConfig("sequential"), nil, preferRemote(""), nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	dir := t.TempDir()
	s := NewSession(writeFile(t, dir, "b", "x"), writeFile(t, dir, "l", "y"), writeFile(t, dir, "r", "z"))
	if err := runner.Load(s); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := runner.Detect(ctx, s); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if s.RunID != "" {
		t.Fatalf("expected no run without a store")
	}
	if _, err := runner.Resolve(ctx, s); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	runner.Clear(ctx, s)
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mergeflow/internal/config"
	"mergeflow/internal/db"
)

func TestRunResolveWritesResolvedFile(t *testing.T) {
	srv := preferRemoteServer(t)
	tmp := setupCLI(t, srv.URL, "")
	resolveInputs = writeInputs(t, tmp, "x\nshared\ny\n", "mine\nshared\nmine2\n", "theirs\nshared\ntheirs2\n")
	resolveOut = filepath.Join(tmp, "resolved.txt")

	captureStdout(t, func() error { return runResolve(withContext(resolveCmd), nil) })
	data, err := os.ReadFile(resolveOut)
	if err != nil {
		t.Fatalf("read resolved file: %v", err)
	}
	if got := string(data); got != "theirs\nshared\ntheirs2\n" {
		t.Fatalf("unexpected resolved file: %q", got)
	}

	// The run shows up in history as resolved.
	resolveOut = ""
	out := captureStdout(t, func() error { return runHistory(withContext(historyCmd), nil) })
	if !strings.Contains(out, "resolved") || !strings.Contains(out, "2/2") {
		t.Fatalf("expected resolved run in history, got:\n%s", out)
	}
	if !strings.Contains(out, "Total: 1 runs") {
		t.Fatalf("expected total line, got:\n%s", out)
	}
}

func TestRunResolveJSONReportsFailures(t *testing.T) {
	// Nothing listens on the configured endpoint, so every region fails.
	tmp := setupCLI(t, "", "")
	resolveInputs = writeInputs(t, tmp, "x\n", "mine\n", "theirs\n")
	resolveOut = ""
	jsonOut = true

	out := captureStdout(t, func() error { return runResolve(withContext(resolveCmd), nil) })
	var got struct {
		RunID       string   `json:"run_id"`
		FailedCount int      `json:"failed_count"`
		Errors      []string `json:"errors"`
		Lines       []struct {
			Text string `json:"text"`
		} `json:"lines"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode JSON: %v\n%s", err, out)
	}
	if got.FailedCount != 1 || len(got.Errors) != 1 || !strings.HasPrefix(got.Errors[0], "region 1:") {
		t.Fatalf("unexpected failure report: %+v", got)
	}

	out = captureStdout(t, func() error { return runHistory(withContext(historyCmd), []string{db.ShortID(got.RunID)}) })
	var detail runDetailJSON
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode run detail: %v\n%s", err, out)
	}
	if detail.Run.State != db.StatePartial {
		t.Fatalf("expected partial run, got %q", detail.Run.State)
	}
	if len(detail.Regions) != 1 || detail.Regions[0].Status != db.RegionFailed {
		t.Fatalf("unexpected regions: %+v", detail.Regions)
	}
}

func TestRunResolveWithoutConflicts(t *testing.T) {
	tmp := setupCLI(t, "", "")
	resolveInputs = writeInputs(t, tmp, "a\n", "b\n", "a\n")
	resolveOut = ""

	out := captureStdout(t, func() error { return runResolve(withContext(resolveCmd), nil) })
	if strings.TrimSpace(out) != "b" {
		t.Fatalf("expected the clean merge on stdout, got %q", out)
	}
}

func TestApplyResolveFlags(t *testing.T) {
	setupCLI(t, "", "")
	flags := resolveCmd.Flags()
	t.Cleanup(func() {
		for _, name := range []string{"concurrency", "timeout"} {
			flags.Lookup(name).Changed = false
		}
		resolveConcurrency, resolveTimeout = 0, 0
	})

	cfg := &config.Config{Resolver: config.ResolverConfig{Mode: config.ModeConcurrent, MaxConcurrency: 4, Timeout: "60s"}}
	resolveSequential = true
	if err := flags.Set("concurrency", "2"); err != nil {
		t.Fatalf("set concurrency: %v", err)
	}
	if err := flags.Set("timeout", "1500ms"); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if err := applyResolveFlags(resolveCmd, cfg); err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if cfg.Resolver.Mode != config.ModeSequential || cfg.Resolver.MaxConcurrency != 2 || cfg.Resolver.Timeout != "1.5s" {
		t.Fatalf("unexpected resolver config: %+v", cfg.Resolver)
	}

	if err := flags.Set("concurrency", "0"); err != nil {
		t.Fatalf("set concurrency: %v", err)
	}
	if err := applyResolveFlags(resolveCmd, cfg); err == nil {
		t.Fatalf("expected error for --concurrency 0")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points every XDG directory at a temp dir so real user files are
// never read.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("MERGEFLOW_RESOLVER_URL", "")
	t.Setenv("MERGEFLOW_RESOLVER_TOKEN", "")
	return tmp
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "mergeflow.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmp := isolate(t)
	cfgPath := writeConfig(t, tmp, `db_path = "history.db"`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.DBPath != filepath.Join(tmp, "history.db") {
		t.Fatalf("expected db path relative to config dir, got %q", cfg.DBPath)
	}
	if cfg.Resolver.Endpoint != DefaultEndpoint {
		t.Fatalf("expected default endpoint, got %q", cfg.Resolver.Endpoint)
	}
	if cfg.Resolver.Mode != ModeConcurrent {
		t.Fatalf("expected concurrent mode, got %q", cfg.Resolver.Mode)
	}
	if cfg.Resolver.MaxConcurrency != 4 || cfg.Resolver.MaxAttempts != 3 {
		t.Fatalf("unexpected resolver limits: %+v", cfg.Resolver)
	}
	if cfg.ResolverTimeout() != time.Minute {
		t.Fatalf("expected 60s timeout, got %v", cfg.ResolverTimeout())
	}
	if cfg.Merge.MaxInputBytes != 1_000_000 {
		t.Fatalf("expected default max input bytes, got %d", cfg.Merge.MaxInputBytes)
	}
	if cfg.Display.Style != "monokai" {
		t.Fatalf("expected monokai style, got %q", cfg.Display.Style)
	}
	if !cfg.TriggerEnabled(TriggerResolutionFailed) || cfg.TriggerEnabled(TriggerConflictsDetected) {
		t.Fatalf("unexpected default triggers: %v", cfg.Notifications.Triggers)
	}
}

func TestLoadParsesSections(t *testing.T) {
	tmp := isolate(t)
	cfgPath := writeConfig(t, tmp, `
log_level = "debug"

[resolver]
endpoint = "https://resolver.example.com/resolve"
mode = "sequential"
max_concurrency = 2
timeout = "5s"

[merge]
max_input_bytes = 2048
show_base = true

[display]
language = "python"

[notifications]
slack_webhook = "https://hooks.slack.com/services/T/B/X"
triggers = ["Resolved", "resolved", "conflicts_detected"]
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Resolver.Mode != ModeSequential || cfg.ResolverTimeout() != 5*time.Second {
		t.Fatalf("unexpected resolver config: %+v", cfg.Resolver)
	}
	if !cfg.Merge.ShowBase || cfg.Merge.MaxInputBytes != 2048 {
		t.Fatalf("unexpected merge config: %+v", cfg.Merge)
	}
	if cfg.Display.Language != "python" {
		t.Fatalf("expected python, got %q", cfg.Display.Language)
	}
	want := []string{TriggerResolved, TriggerConflictsDetected}
	if strings.Join(cfg.Notifications.Triggers, ",") != strings.Join(want, ",") {
		t.Fatalf("expected normalized triggers %v, got %v", want, cfg.Notifications.Triggers)
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	tmp := isolate(t)
	cfgPath := writeConfig(t, tmp, `
[resolver]
token = "from-file"
`)

	credDir := filepath.Join(tmp, "config", "mergeflow")
	if err := os.MkdirAll(credDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(credDir, "credentials.toml"), []byte(`resolver_token = "from-creds"`), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Resolver.Token != "from-creds" {
		t.Fatalf("expected token from credentials, got %q", cfg.Resolver.Token)
	}

	t.Setenv("MERGEFLOW_RESOLVER_TOKEN", "from-env")
	t.Setenv("MERGEFLOW_RESOLVER_URL", "http://localhost:9000/resolve")
	cfg, err = Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Resolver.Token != "from-env" {
		t.Fatalf("expected token from env, got %q", cfg.Resolver.Token)
	}
	if cfg.Resolver.Endpoint != "http://localhost:9000/resolve" {
		t.Fatalf("expected endpoint from env, got %q", cfg.Resolver.Endpoint)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"mode", "[resolver]\nmode = \"parallel\"", "unsupported resolver.mode"},
		{"log level", `log_level = "loud"`, "unsupported log_level"},
		{"timeout", "[resolver]\ntimeout = \"soon\"", "invalid resolver.timeout"},
		{"concurrency", "[resolver]\nmax_concurrency = -1", "max_concurrency must be positive"},
		{"endpoint scheme", "[resolver]\nendpoint = \"ftp://x/resolve\"", "invalid resolver.endpoint"},
		{"input limit", "[merge]\nmax_input_bytes = -5", "max_input_bytes must be positive"},
		{"trigger", "[notifications]\ntriggers = [\"pr_merged\"]", "unsupported trigger"},
		{"webhook", "[notifications]\nwebhook_url = \"not a url\"", "invalid notifications.webhook_url"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tmp := isolate(t)
			_, err := Load(writeConfig(t, tmp, tc.content))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected %q in error, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestDiscoverOrder(t *testing.T) {
	tmp := isolate(t)
	wd := filepath.Join(tmp, "work")
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	chdir(t, wd)

	got, err := Discover("")
	if err != nil || got != "" {
		t.Fatalf("expected no config, got %q (%v)", got, err)
	}

	global, _ := GlobalConfigPath()
	if err := os.MkdirAll(filepath.Dir(global), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(global, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, _ := Discover(""); got != global {
		t.Fatalf("expected global config %q, got %q", global, got)
	}

	local := writeConfig(t, wd, "")
	if got, _ := Discover(""); got != local {
		t.Fatalf("expected local config %q, got %q", local, got)
	}

	explicit := filepath.Join(tmp, "other.toml")
	if err := os.WriteFile(explicit, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, _ := Discover(explicit); got != explicit {
		t.Fatalf("expected explicit config, got %q", got)
	}
	if _, err := Discover(filepath.Join(tmp, "missing.toml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	tmp := isolate(t)
	chdir(t, tmp)

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Path != "" {
		t.Fatalf("expected no source path, got %q", cfg.Path)
	}
	if cfg.DBPath != filepath.Join(tmp, "data", "mergeflow", "mergeflow.db") {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		Resolver: ResolverConfig{Token: "secret"},
		Notifications: NotificationsConfig{
			SlackWebhook: "https://hooks.slack.com/services/T/B/X",
			Triggers:     []string{TriggerResolved},
		},
	}
	out := cfg.Redacted()
	if out.Resolver.Token != "REDACTED" {
		t.Fatalf("token not redacted: %q", out.Resolver.Token)
	}
	if out.Notifications.SlackWebhook != "https://hooks.slack.com/REDACTED" {
		t.Fatalf("slack webhook not redacted: %q", out.Notifications.SlackWebhook)
	}
	if cfg.Resolver.Token != "secret" {
		t.Fatalf("original modified")
	}
}

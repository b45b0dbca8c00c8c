package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const Version = "0.1.0"

// LocalConfigName is looked up in the working directory before the global
// config file.
const LocalConfigName = "mergeflow.toml"

// Credentials holds secrets loaded from credentials.toml.
type Credentials struct {
	ResolverToken string `toml:"resolver_token"`
}

// LoadCredentials reads credentials.toml. Returns an empty Credentials if
// the file does not exist. Warns if the file has insecure permissions.
func LoadCredentials() (*Credentials, error) {
	path, err := CredentialsPath()
	if err != nil {
		return &Credentials{}, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat credentials: %w", err)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		slog.Warn("credentials file has insecure permissions",
			"path", path, "mode", fmt.Sprintf("%04o", perm))
	}

	creds := &Credentials{}
	if _, err := toml.DecodeFile(path, creds); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	return creds, nil
}

type Config struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	Resolver      ResolverConfig      `toml:"resolver"`
	Merge         MergeConfig         `toml:"merge"`
	Display       DisplayConfig       `toml:"display"`
	Notifications NotificationsConfig `toml:"notifications"`

	// Resolved at runtime (not in TOML).
	BaseDir string `toml:"-"`
	Path    string `toml:"-"`
}

type ResolverConfig struct {
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	Mode           string `toml:"mode"`
	MaxConcurrency int    `toml:"max_concurrency"`
	Timeout        string `toml:"timeout"`
	MaxAttempts    int    `toml:"max_attempts"`
}

type MergeConfig struct {
	MaxInputBytes int64 `toml:"max_input_bytes"`
	ShowBase      bool  `toml:"show_base"`
}

type DisplayConfig struct {
	Language string `toml:"language"`
	Style    string `toml:"style"`
}

type NotificationsConfig struct {
	WebhookURL   string   `toml:"webhook_url"`
	SlackWebhook string   `toml:"slack_webhook"`
	Triggers     []string `toml:"triggers"`
}

const (
	ModeConcurrent = "concurrent"
	ModeSequential = "sequential"

	DefaultEndpoint = "http://127.0.0.1:5000/resolve"
)

const (
	TriggerConflictsDetected = "conflicts_detected"
	TriggerResolutionFailed  = "resolution_failed"
	TriggerResolved          = "resolved"
)

var defaultNotificationTriggers = []string{
	TriggerResolutionFailed,
	TriggerResolved,
}

// Default returns the configuration used when no config file exists.
func Default() (*Config, error) {
	cfg := &Config{}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cfg.BaseDir = wd
	return finish(cfg, false)
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	cfg.Path = path
	return finish(cfg, cfg.Resolver.Token != "")
}

func finish(cfg *Config, tokenInFile bool) (*Config, error) {
	applyDefaults(cfg)
	applyCredentialsAndEnv(cfg)
	if tokenInFile {
		slog.Warn("resolver token found in config file; prefer credentials.toml or MERGEFLOW_RESOLVER_TOKEN env var")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg)
	return cfg, nil
}

// Discover picks the config file: explicit, then ./mergeflow.toml, then the
// global config. It returns "" when none exists and explicit is empty.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if _, err := os.Stat(LocalConfigName); err == nil {
		return filepath.Abs(LocalConfigName)
	}
	if global, err := GlobalConfigPath(); err == nil {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat global config: %w", err)
		}
	}
	return "", nil
}

// LoadOrDefault loads the discovered config file, or the defaults when there
// is none.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Discover(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default()
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		if d, err := DataDir(); err == nil {
			cfg.DBPath = filepath.Join(d, "mergeflow.db")
		} else {
			cfg.DBPath = "mergeflow.db"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Resolver.Endpoint == "" {
		cfg.Resolver.Endpoint = DefaultEndpoint
	}
	if cfg.Resolver.Mode == "" {
		cfg.Resolver.Mode = ModeConcurrent
	}
	if cfg.Resolver.MaxConcurrency == 0 {
		cfg.Resolver.MaxConcurrency = 4
	}
	if cfg.Resolver.Timeout == "" {
		cfg.Resolver.Timeout = "60s"
	}
	if cfg.Resolver.MaxAttempts == 0 {
		cfg.Resolver.MaxAttempts = 3
	}
	if cfg.Merge.MaxInputBytes == 0 {
		cfg.Merge.MaxInputBytes = 1_000_000
	}
	if cfg.Display.Style == "" {
		cfg.Display.Style = "monokai"
	}
	if cfg.Notifications.Triggers == nil {
		cfg.Notifications.Triggers = slices.Clone(defaultNotificationTriggers)
	}
}

// applyCredentialsAndEnv layers secrets and overrides on top of the file.
// Priority (highest → lowest): env > credentials.toml > config file.
func applyCredentialsAndEnv(cfg *Config) {
	creds, err := LoadCredentials()
	if err != nil {
		slog.Warn("failed to load credentials", "error", err)
	}
	if creds != nil && creds.ResolverToken != "" {
		cfg.Resolver.Token = creds.ResolverToken
	}

	if v := os.Getenv("MERGEFLOW_RESOLVER_URL"); v != "" {
		cfg.Resolver.Endpoint = v
	}
	if v := os.Getenv("MERGEFLOW_RESOLVER_TOKEN"); v != "" {
		cfg.Resolver.Token = v
	}
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %q", cfg.LogLevel)
	}
	switch cfg.Resolver.Mode {
	case ModeConcurrent, ModeSequential:
	default:
		return fmt.Errorf("unsupported resolver.mode: %q (must be %s or %s)", cfg.Resolver.Mode, ModeConcurrent, ModeSequential)
	}
	if err := validateHTTPURL(cfg.Resolver.Endpoint); err != nil {
		return fmt.Errorf("invalid resolver.endpoint: %w", err)
	}
	if cfg.Resolver.MaxConcurrency < 1 {
		return fmt.Errorf("resolver.max_concurrency must be positive, got %d", cfg.Resolver.MaxConcurrency)
	}
	if cfg.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver.max_attempts must be positive, got %d", cfg.Resolver.MaxAttempts)
	}
	if d, err := time.ParseDuration(cfg.Resolver.Timeout); err != nil {
		return fmt.Errorf("invalid resolver.timeout %q: %w", cfg.Resolver.Timeout, err)
	} else if d < 0 {
		return fmt.Errorf("resolver.timeout must not be negative, got %s", d)
	}
	if cfg.Merge.MaxInputBytes < 1 {
		return fmt.Errorf("merge.max_input_bytes must be positive, got %d", cfg.Merge.MaxInputBytes)
	}
	normalizedTriggers, err := validateNotificationsConfig(cfg.Notifications)
	if err != nil {
		return err
	}
	cfg.Notifications.Triggers = normalizedTriggers
	return nil
}

func validateNotificationsConfig(cfg NotificationsConfig) ([]string, error) {
	if cfg.WebhookURL != "" {
		if err := validateHTTPURL(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("invalid notifications.webhook_url: %w", err)
		}
	}
	if cfg.SlackWebhook != "" {
		if err := validateHTTPURL(cfg.SlackWebhook); err != nil {
			return nil, fmt.Errorf("invalid notifications.slack_webhook: %w", err)
		}
	}
	normalized, err := normalizeTriggers(cfg.Triggers)
	if err != nil {
		return nil, fmt.Errorf("invalid notifications.triggers: %w", err)
	}
	return normalized, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func normalizeTriggers(triggers []string) ([]string, error) {
	out := make([]string, 0, len(triggers))
	seen := make(map[string]struct{}, len(triggers))
	for i, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if normalized == "" {
			return nil, fmt.Errorf("trigger at index %d is empty", i)
		}
		if !isValidTrigger(normalized) {
			return nil, fmt.Errorf("unsupported trigger %q", normalized)
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func isValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerConflictsDetected, TriggerResolutionFailed, TriggerResolved:
		return true
	default:
		return false
	}
}

func resolvePaths(cfg *Config) {
	cfg.DBPath = absPath(cfg.BaseDir, expandHome(cfg.DBPath))
	if cfg.LogFile != "" {
		cfg.LogFile = absPath(cfg.BaseDir, expandHome(cfg.LogFile))
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func absPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ResolverTimeout is the per-region timeout. Validated on load.
func (cfg *Config) ResolverTimeout() time.Duration {
	d, _ := time.ParseDuration(cfg.Resolver.Timeout)
	return d
}

func (cfg *Config) TriggerEnabled(trigger string) bool {
	return slices.Contains(cfg.Notifications.Triggers, trigger)
}

// Redacted returns a copy safe to print.
func (cfg *Config) Redacted() Config {
	out := *cfg
	out.Notifications.Triggers = slices.Clone(cfg.Notifications.Triggers)
	if out.Resolver.Token != "" {
		out.Resolver.Token = "REDACTED"
	}
	if out.Notifications.SlackWebhook != "" {
		out.Notifications.SlackWebhook = redactURL(out.Notifications.SlackWebhook)
	}
	if out.Notifications.WebhookURL != "" {
		out.Notifications.WebhookURL = redactURL(out.Notifications.WebhookURL)
	}
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "REDACTED"
	}
	return u.Scheme + "://" + u.Host + "/REDACTED"
}

func (cfg *Config) SlogLevel() slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

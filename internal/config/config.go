package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to any field left empty.
const (
	DefaultAPIBase           = "https://www.moltbook.com/api/v1"
	DefaultBackend           = "file"
	DefaultRequestsPerSecond = 2.0
	DefaultTimeout           = 30 * time.Second
	DefaultProbeInterval     = time.Minute
)

// Environment overrides.
const (
	EnvHome    = "MOLT_HOME"
	EnvAPIBase = "MOLT_API_BASE"
	EnvBackend = "MOLT_BACKEND"
)

// Config holds client configuration loaded from ~/.molt/config.yaml.
type Config struct {
	APIBase           string        `yaml:"api_base"`
	Backend           string        `yaml:"backend"` // "file" | "sqlite" | "keychain"
	DataDir           string        `yaml:"data_dir"`
	SessionDir        string        `yaml:"session_dir"`
	AuditLog          string        `yaml:"audit_log"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	LogLevel          string        `yaml:"log_level"`
	ProbeInterval     time.Duration `yaml:"probe_interval"` // molt serve reachability checks
}

// Home returns the molt home directory: $MOLT_HOME or ~/.molt.
func Home() string {
	if h := os.Getenv(EnvHome); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".molt")
}

// DefaultPath returns the default config file path: ~/.molt/config.yaml.
func DefaultPath() string {
	h := Home()
	if h == "" {
		return ""
	}
	return filepath.Join(h, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns a default Config and no error. An empty or all-comment file
// also returns a default Config with no error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIBase); v != "" {
		c.APIBase = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = v
	}
}

func (c *Config) applyDefaults() {
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.DataDir == "" {
		c.DataDir = Home()
	}
	if c.SessionDir == "" {
		c.SessionDir = defaultSessionDir(c.DataDir)
	}
	if c.AuditLog == "" && c.DataDir != "" {
		c.AuditLog = filepath.Join(c.DataDir, "audit.log")
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case "file", "sqlite", "keychain":
	default:
		return fmt.Errorf("unknown backend %q (want file, sqlite or keychain)", c.Backend)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.ProbeInterval < 0 {
		return fmt.Errorf("probe_interval must not be negative")
	}
	return nil
}

// SlogLevel maps log_level onto slog; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// defaultSessionDir prefers the per-user runtime directory, which the
// system clears at logout, then the user cache directory. Neither is
// shared with other users the way os.TempDir is.
func defaultSessionDir(dataDir string) string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "molt")
	}
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "molt", "sessions")
	}
	if dataDir != "" {
		return filepath.Join(dataDir, "sessions")
	}
	return ""
}

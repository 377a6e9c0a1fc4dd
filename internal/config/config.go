package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LogDir    string `toml:"log_dir"`
	ExportDir string `toml:"export_dir"`
	DataDir   string `toml:"data_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Backend describes the remote scan-processing service.
type Backend struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	MaxUploadSize  string `toml:"max_upload_size"`
	// Producer selects how results are obtained: "combined" issues a single
	// predict-and-crop call, "separate" calls detect and crop in turn.
	Producer string `toml:"producer"`
}

// Workflow contains processing-run tuning.
type Workflow struct {
	ConcurrencyLimit   int `toml:"concurrency_limit"`
	ItemPacingMillis   int `toml:"item_pacing_ms"`
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
}

// Notifications contains transient notification and ntfy push settings.
type Notifications struct {
	TTLSeconds     int    `toml:"ttl_seconds"`
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
}

// Generator contains settings for AI sample image generation.
type Generator struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MockBackend configures the bundled reference scan backend.
type MockBackend struct {
	Bind        string  `toml:"bind"`
	DBPath      string  `toml:"db_path"`
	MinDelayMS  int     `toml:"min_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	FailureRate float64 `toml:"failure_rate"`
	JPEGQuality int     `toml:"jpeg_quality"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scanmaster.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address and token
//   - Backend: remote scan API location and call strategy
//   - Workflow: processing concurrency and pacing
//   - Notifications: in-app notification lifetime and ntfy push
//   - Generator: Gemini sample image generation
//   - MockBackend: the reference backend served by `scanmaster backend`
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Generator     Generator     `toml:"generator"`
	MockBackend   MockBackend   `toml:"mock_backend"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ExportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file used by `scanmaster serve`.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, defaultServeLockName)
}

// BackendDatabasePath returns the SQLite file used by the reference backend.
func (c *Config) BackendDatabasePath() string {
	if strings.TrimSpace(c.MockBackend.DBPath) != "" {
		return c.MockBackend.DBPath
	}
	return filepath.Join(c.Paths.DataDir, defaultBackendDatabaseName)
}

// MaxUploadBytes returns backend.max_upload_size in bytes.
func (b Backend) MaxUploadBytes() int64 {
	size, err := units.FromHumanSize(strings.TrimSpace(b.MaxUploadSize))
	if err != nil || size <= 0 {
		return defaultMaxUploadBytes
	}
	return size
}

// Timeout returns the HTTP request timeout for backend calls.
func (b Backend) Timeout() time.Duration {
	return time.Duration(b.RequestTimeout) * time.Second
}

// Pacing returns the delay inserted before each item is processed.
func (w Workflow) Pacing() time.Duration {
	return time.Duration(w.ItemPacingMillis) * time.Millisecond
}

// CallTimeout returns the per-call timeout; zero disables it.
func (w Workflow) CallTimeout() time.Duration {
	return time.Duration(w.CallTimeoutSeconds) * time.Second
}

// TTL returns how long transient notifications stay visible.
func (n Notifications) TTL() time.Duration {
	return time.Duration(n.TTLSeconds) * time.Second
}

// Timeout returns the generator request timeout.
func (g Generator) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// DelayRange returns the simulated latency bounds of the reference backend.
func (m MockBackend) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(m.MinDelayMS) * time.Millisecond, time.Duration(m.MaxDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

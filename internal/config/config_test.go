package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scanmaster/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("SCANMASTER_API_TOKEN", "token-1")
	t.Setenv("NTFY_TOPIC", "")
	t.Setenv("SCANMASTER_BACKEND_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "scanmaster")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.LogDir != filepath.Join(wantData, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "token-1" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Generator.APIKey != "gem-key" {
		t.Fatalf("expected generator key from env, got %q", cfg.Generator.APIKey)
	}
	if cfg.Workflow.ConcurrencyLimit != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.Workflow.ConcurrencyLimit)
	}
	if cfg.Backend.Producer != config.ProducerCombined {
		t.Fatalf("unexpected producer %q", cfg.Backend.Producer)
	}
	if cfg.Backend.MaxUploadBytes() != 10_000_000 {
		t.Fatalf("unexpected max upload bytes %d", cfg.Backend.MaxUploadBytes())
	}
	if cfg.Notifications.TTL().Seconds() != 3 {
		t.Fatalf("unexpected notification ttl %s", cfg.Notifications.TTL())
	}
	if cfg.BackendDatabasePath() != filepath.Join(wantData, "backend.db") {
		t.Fatalf("unexpected backend db path %q", cfg.BackendDatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.ExportDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("SCANMASTER_BACKEND_URL", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scanmaster.toml")

	type payload struct {
		Backend struct {
			BaseURL       string `toml:"base_url"`
			MaxUploadSize string `toml:"max_upload_size"`
			Producer      string `toml:"producer"`
		} `toml:"backend"`
		Workflow struct {
			ConcurrencyLimit int `toml:"concurrency_limit"`
			ItemPacingMillis int `toml:"item_pacing_ms"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Backend.BaseURL = "https://scan.example.com/"
	custom.Backend.MaxUploadSize = "2MB"
	custom.Backend.Producer = "Separate"
	custom.Workflow.ConcurrencyLimit = 1
	custom.Workflow.ItemPacingMillis = 250
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Backend.BaseURL != "https://scan.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Producer != config.ProducerSeparate {
		t.Fatalf("expected separate producer, got %q", cfg.Backend.Producer)
	}
	if cfg.Backend.MaxUploadBytes() != 2_000_000 {
		t.Fatalf("unexpected max upload bytes %d", cfg.Backend.MaxUploadBytes())
	}
	if cfg.Workflow.ConcurrencyLimit != 1 {
		t.Fatalf("expected concurrency 1, got %d", cfg.Workflow.ConcurrencyLimit)
	}
	if cfg.Workflow.Pacing().Milliseconds() != 250 {
		t.Fatalf("unexpected pacing %s", cfg.Workflow.Pacing())
	}
}

func TestConfigFileWinsOverEnvForGeneratorKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "scanmaster.toml")
	if err := os.WriteFile(configPath, []byte("[generator]\napi_key = \"file-key\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generator.APIKey != "file-key" {
		t.Fatalf("expected file key, got %q", cfg.Generator.APIKey)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "scanmaster.toml")
	if err := os.WriteFile(configPath, []byte("[backend\nbase_url = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "concurrency_limit") {
		t.Fatalf("sample config missing workflow section: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Workflow.ConcurrencyLimit != 2 {
		t.Fatalf("sample concurrency = %d", cfg.Workflow.ConcurrencyLimit)
	}
	if !strings.Contains(cfg.Paths.DataDir, "scanmaster") {
		t.Fatalf("expected data dir to contain scanmaster, got %q", cfg.Paths.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero concurrency", func(c *config.Config) { c.Workflow.ConcurrencyLimit = 0 }},
		{"negative pacing", func(c *config.Config) { c.Workflow.ItemPacingMillis = -1 }},
		{"bad base url", func(c *config.Config) { c.Backend.BaseURL = "ftp://scan" }},
		{"bad upload size", func(c *config.Config) { c.Backend.MaxUploadSize = "lots" }},
		{"unknown producer", func(c *config.Config) { c.Backend.Producer = "magic" }},
		{"ttl zero", func(c *config.Config) { c.Notifications.TTLSeconds = 0 }},
		{"failure rate", func(c *config.Config) { c.MockBackend.FailureRate = 1.5 }},
		{"delay order", func(c *config.Config) { c.MockBackend.MinDelayMS, c.MockBackend.MaxDelayMS = 10, 5 }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

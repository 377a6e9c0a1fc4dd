package testsupport

import (
	"path/filepath"
	"testing"

	"scanmaster/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Notifications stay local and pacing is disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ExportDir = filepath.Join(base, "exports")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Generator.APIKey = ""
	cfgVal.Workflow.ItemPacingMillis = 0
	cfgVal.MockBackend.Bind = "127.0.0.1:0"
	cfgVal.MockBackend.DBPath = filepath.Join(base, "data", "backend.db")
	cfgVal.MockBackend.MinDelayMS = 0
	cfgVal.MockBackend.MaxDelayMS = 0
	cfgVal.MockBackend.FailureRate = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBackendURL points the config at a test backend.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = url
	}
}

// WithProducer selects the result producer strategy.
func WithProducer(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.Producer = name
	}
}

// WithConcurrency sets the workflow worker limit.
func WithConcurrency(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.ConcurrencyLimit = limit
	}
}

// WithNtfyTopic enables push notifications to the given endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithAPIToken requires bearer authentication on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

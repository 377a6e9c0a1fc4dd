package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scanmaster/internal/backend"
	"scanmaster/internal/config"
	"scanmaster/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	backendURL string
}

func setupCLITestEnv(t *testing.T, mutate func(*config.Config)) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"GEMINI_API_KEY", "API_KEY", "NTFY_TOPIC", "SCANMASTER_BACKEND_URL", "SCANMASTER_API_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	store, err := backend.OpenStore(cfg.BackendDatabasePath())
	if err != nil {
		t.Fatalf("backend.OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	srv := httptest.NewServer(backend.NewServer(cfg, store, backend.WithRand(rand.New(rand.NewPCG(3, 5)))).Handler())
	t.Cleanup(srv.Close)
	cfg.Backend.BaseURL = srv.URL

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, backendURL: srv.URL}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	if err := os.WriteFile(path, testsupport.PNG(t, 80, 60), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(testsupport.WaitContext(t))
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, target, "config", "validate"); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "token-value"
		cfg.Generator.APIKey = "key-value"
	})

	out, _, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "token-value") || strings.Contains(out, "key-value") {
		t.Fatalf("secrets leaked into output:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, env.backendURL)

	out, _, err = runCLI(t, env.configPath, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "token-value")
}

func TestEnvFileFeedsConfig(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	os.Unsetenv("NTFY_TOPIC")

	envFile := filepath.Join(env.baseDir, "test.env")
	if err := os.WriteFile(envFile, []byte("NTFY_TOPIC=scans-from-env\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "--env-file", envFile, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "scans-from-env")
}

func TestProcessExportsBatch(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	first := env.writeImage(t, "receipt.png")
	second := env.writeImage(t, "invoice.png")
	exportDir := filepath.Join(env.baseDir, "out")

	out, _, err := runCLI(t, env.configPath, "process", first, second, "--export-dir", exportDir)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	requireContains(t, out, "receipt.png")
	requireContains(t, out, "Cropped")
	requireContains(t, out, "Progress: 100%")
	requireContains(t, out, "Exported 2 image(s)")

	archive, err := zip.OpenReader(filepath.Join(exportDir, "batch_scans.zip"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer archive.Close()
	names := make(map[string]bool)
	for _, f := range archive.File {
		names[f.Name] = true
	}
	for _, want := range []string{"processed_scans/receipt_processed.png", "processed_scans/invoice_processed.png"} {
		if !names[want] {
			t.Fatalf("archive missing %s, have %v", want, names)
		}
	}
}

func TestProcessJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	path := env.writeImage(t, "page.png")

	out, _, err := runCLI(t, env.configPath, "process", "--json", path)
	if err != nil {
		t.Fatalf("process --json: %v", err)
	}
	requireContains(t, out, `"status": "cropped"`)
}

func TestProcessReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) { cfg.MockBackend.FailureRate = 1 })
	path := env.writeImage(t, "page.png")

	out, _, err := runCLI(t, env.configPath, "process", path)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 items failed") {
		t.Fatalf("expected failure summary, got %v", err)
	}
	requireContains(t, out, "Error")
	requireContains(t, out, backend.SimulatedFailureMessage)
}

func TestProcessRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no input", args: []string{"process"}, want: "at least one image"},
		{name: "missing file", args: []string{"process", filepath.Join(env.baseDir, "nope.png")}, want: "inspect"},
		{name: "directory", args: []string{"process", env.baseDir}, want: "is a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, env.configPath, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env.configPath, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Scan backend:")
	requireContains(t, out, "[OK] "+env.backendURL)
	requireContains(t, out, "[WARN] API key missing")
}

func TestCheckJSONReport(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env.configPath, "check", "--json")
	if err != nil {
		t.Fatalf("check --json: %v\n%s", err, out)
	}
	var report checkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if filepath.Base(report.Config) != "config.toml" || report.Failed != 0 || len(report.Checks) == 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCheckFailsWhenBackendDown(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	env.cfg.Backend.BaseURL = "http://127.0.0.1:1"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, env.configPath, "check")
	if err == nil || !strings.Contains(err.Error(), "preflight check(s) failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	_, _, err := runCLI(t, env.configPath, "generate", "--out", filepath.Join(env.baseDir, "sample.png"))
	if err == nil || !strings.Contains(err.Error(), "API Key is missing") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--config", env.configPath, "serve"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	lock := env.cfg.LockPath()
	deadline := testsupport.WaitContext(t)
	for {
		if _, err := os.Stat(lock); err == nil {
			break
		}
		select {
		case <-deadline.Done():
			cancel()
			t.Fatal("serve never took the lock")
		case err := <-done:
			cancel()
			t.Fatalf("serve exited early: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

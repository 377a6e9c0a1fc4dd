package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"scanmaster/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir, 0)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), 0)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, 0)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_InsufficientSpace(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir(), ^uint64(0))
	if result.Passed {
		t.Fatal("expected failure when requiring more space than exists")
	}
}

func TestCheckBackend(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "healthy", status: http.StatusOK, want: true},
		{name: "unhealthy", status: http.StatusServiceUnavailable, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/healthz" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			cfg := config.Default()
			cfg.Backend.BaseURL = srv.URL
			if got := CheckBackend(context.Background(), &cfg); got.Passed != tt.want {
				t.Fatalf("expected passed=%v, got %+v", tt.want, got)
			}
		})
	}
}

func TestCheckBackend_MissingURL(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.BaseURL = ""
	if CheckBackend(context.Background(), &cfg).Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestCheckServeLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanmaster.lock")
	if r := CheckServeLock(path); !r.Passed || r.Detail != "free" {
		t.Fatalf("expected free lock, got %+v", r)
	}

	held := flock.New(path)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	if r := CheckServeLock(path); r.Detail == "free" {
		t.Fatalf("expected held lock, got %+v", r)
	}
}

func TestCheckGenerator(t *testing.T) {
	if r := CheckGenerator(config.Generator{}); r.Passed || !r.Optional {
		t.Fatalf("missing key must be an optional failure, got %+v", r)
	}
	if r := CheckGenerator(config.Generator{APIKey: "k", Model: "m"}); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_FailedSkipsOptional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.ExportDir = filepath.Join(t.TempDir(), "missing")
	cfg.Backend.BaseURL = srv.URL
	cfg.Generator.APIKey = ""

	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Export directory" {
		t.Fatalf("expected only the export directory to fail, got %+v", failed)
	}
}

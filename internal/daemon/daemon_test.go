package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"scanmaster/internal/config"
	"scanmaster/internal/daemon"
	"scanmaster/internal/session"
	"scanmaster/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, client *testsupport.FakeClient) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	sess, err := session.OpenWithClient(cfg, client, nil)
	if err != nil {
		t.Fatalf("OpenWithClient: %v", err)
	}
	d, err := daemon.New(cfg, sess, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, testsupport.NewFakeClient())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("expected a bound address")
	}

	status := d.Status(ctx)
	if !status.Running || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}

	resp, err := http.Get("http://" + d.Addr() + "/api/items")
	if err != nil {
		t.Fatalf("GET items: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, testsupport.NewFakeClient())
	second := newDaemon(t, cfg, testsupport.NewFakeClient())

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scanmaster/internal/config"
	"scanmaster/internal/logging"
	"scanmaster/internal/session"
	"scanmaster/internal/workflow"
)

// ErrAlreadyRunning is returned when another process holds the serve lock.
var ErrAlreadyRunning = errors.New("another scanmaster instance is already running")

// Daemon serves a session over HTTP and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *session.Session
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	BackendURL   string
	Workflow     workflow.StatusSummary
	Backend      workflow.BackendHealth
}

// New constructs a daemon around an open session.
func New(cfg *config.Config, sess *session.Session, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || sess == nil {
		return nil, errors.New("daemon requires config and session")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		session:  sess,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scanmaster daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("backend", d.cfg.Backend.BaseURL),
	)
	return nil
}

// Stop shuts the API down and releases the lock. Queue state is kept until
// Close.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no other instance is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("scanmaster daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and the session it serves.
func (d *Daemon) Close() {
	d.Stop()
	d.session.Close()
}

// Addr returns the bound API address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.routes()
}

// Session returns the served session.
func (d *Daemon) Session() *session.Session {
	return d.session
}

// Status returns the current daemon status including a backend health check.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		BackendURL:   d.cfg.Backend.BaseURL,
		Workflow:     d.session.Status(),
		Backend:      d.session.BackendHealth(ctx),
	}
}

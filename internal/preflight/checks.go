package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"scanmaster/internal/config"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/services"
)

const backendCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists, is readable and
// writable, and has at least minFree bytes available. A zero minFree skips
// the space check.
func CheckDirectoryAccess(name, path string, minFree uint64) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok, free space unknown)", path)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if minFree > 0 && free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: only %s free, need %s)",
			path, units.HumanSize(float64(free)), units.HumanSize(float64(minFree)))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok, %s free)", path, units.HumanSize(float64(free)))}
}

// CheckServeLock reports whether another `scanmaster serve` holds the lock.
func CheckServeLock(path string) Result {
	const name = "Serve lock"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: "free"}
	}
	lock := flock.New(path)
	ok, err := lock.TryRLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !ok {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("held by a running instance (%s)", path)}
	}
	_ = lock.Unlock()
	return Result{Name: name, Passed: true, Detail: "free"}
}

// CheckBackend calls the scan backend health endpoint.
func CheckBackend(ctx context.Context, cfg *config.Config) Result {
	const name = "Scan backend"
	base := strings.TrimSpace(cfg.Backend.BaseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	started := time.Now()
	client := scanapi.NewFromConfig(cfg, nil)
	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", base, summarizeBackendError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable in %s)", base, time.Since(started).Round(time.Millisecond))}
}

// CheckGenerator reports whether sample generation is configured.
func CheckGenerator(cfg config.Generator) Result {
	const name = "Sample generator"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Optional: true, Detail: "API key missing (sample generation disabled)"}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("model %s", cfg.Model)}
}

func summarizeBackendError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out"
	}
	return services.Details(err).Message
}

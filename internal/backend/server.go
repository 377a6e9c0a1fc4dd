package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanmaster/internal/config"
	"scanmaster/internal/logging"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/services"
)

const (
	defaultJPEGQuality = 90
	defaultRetention   = 24 * time.Hour
	pruneInterval      = time.Hour
	maxJSONBody        = 1 << 20
	uploadHeadroom     = 1 << 20
)

// SimulatedFailureMessage is the envelope message of an injected failure.
const SimulatedFailureMessage = "Simulated network timeout"

// Server is the reference scan backend.
type Server struct {
	store       *Store
	bind        string
	quality     int
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	maxUpload   int64
	retention   time.Duration
	logger      *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customizes a Server.
type Option func(*Server)

// WithRand seeds latency, failure and margin draws.
func WithRand(rng *rand.Rand) Option {
	return func(s *Server) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetention sets how long stored blobs are kept.
func WithRetention(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewServer builds a backend from the [mock_backend] and [backend] sections.
func NewServer(cfg *config.Config, store *Store, opts ...Option) *Server {
	minDelay, maxDelay := cfg.MockBackend.DelayRange()
	quality := cfg.MockBackend.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	s := &Server{
		store:       store,
		bind:        strings.TrimSpace(cfg.MockBackend.Bind),
		quality:     quality,
		failureRate: cfg.MockBackend.FailureRate,
		minDelay:    minDelay,
		maxDelay:    max(maxDelay, minDelay),
		maxUpload:   cfg.Backend.MaxUploadBytes(),
		retention:   defaultRetention,
		logger:      logging.NewNop(),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5ca11)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "scan-backend")
	return s
}

// Handler returns the backend routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/predict_crop", s.handlePredictCrop)
	mux.HandleFunc("POST /api/detect", s.handleDetect)
	mux.HandleFunc("POST /api/crop", s.handleCrop)
	mux.HandleFunc("GET /uploads/{id}", s.blobHandler(BlobUpload))
	mux.HandleFunc("GET /previews/{id}", s.blobHandler(BlobPreview))
	mux.HandleFunc("GET /crops/{id}", s.blobHandler(BlobCrop))
	return s.withRequestLog(mux)
}

// Run serves until ctx is cancelled. ready, when set, receives the bound
// address once the listener is open.
func (s *Server) Run(ctx context.Context, ready func(addr string)) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("backend listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	go s.pruneLoop(ctx)

	addr := listener.Addr().String()
	s.logger.Info("scan backend listening",
		logging.String(logging.FieldEventType, "backend_started"),
		logging.String("address", addr),
		logging.String("database", s.store.Path()),
		logging.Duration("min_delay", s.minDelay),
		logging.Duration("max_delay", s.maxDelay),
		logging.Any("failure_rate", s.failureRate),
	)
	if ready != nil {
		ready(addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("backend shutdown: %w", err)
		}
		s.logger.Info("scan backend stopped", logging.String(logging.FieldEventType, "backend_stopped"))
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("backend serve: %w", err)
	}
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.Prune(ctx, time.Now().Add(-s.retention))
			if err != nil {
				s.logger.Warn("blob prune failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "blob_prune_failed"),
					logging.String(logging.FieldErrorHint, "check the backend database file"),
				)
				continue
			}
			if removed > 0 {
				s.logger.Info("blobs pruned", logging.Int64("removed", removed))
			}
		}
	}
}

// simulate applies the configured latency and random failure to one call.
func (s *Server) simulate(ctx context.Context) error {
	s.rngMu.Lock()
	delay := s.minDelay
	if spread := s.maxDelay - s.minDelay; spread > 0 {
		delay += time.Duration(s.rng.Int64N(int64(spread)))
	}
	failed := s.failureRate > 0 && s.rng.Float64() < s.failureRate
	s.rngMu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failed {
		return errSimulated
	}
	return nil
}

func (s *Server) boundaryFor(bounds image.Rectangle) scanapi.Boundary {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return detectBoundary(bounds, s.rng)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := services.WithRequestID(r.Context(), requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("backend request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeEnvelope[T any](w http.ResponseWriter, status int, env scanapi.Envelope[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData[T any](w http.ResponseWriter, data T) {
	writeEnvelope(w, http.StatusOK, scanapi.Success(data))
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, scanapi.Failure(status, message))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func serveBytes(w http.ResponseWriter, mimeType string, data []byte) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

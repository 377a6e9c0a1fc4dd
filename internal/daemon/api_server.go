package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"scanmaster/internal/api"
	"scanmaster/internal/config"
	"scanmaster/internal/export"
	"scanmaster/internal/logging"
	"scanmaster/internal/queue"
	"scanmaster/internal/services"
	"scanmaster/internal/session"
	"scanmaster/internal/workflow"
)

const maxJSONBody = 1 << 20

type apiServer struct {
	bind      string
	token     string
	maxUpload int64
	logger    *slog.Logger
	daemon    *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		token:     strings.TrimSpace(cfg.Paths.APIToken),
		maxUpload: cfg.Backend.MaxUploadBytes(),
		logger:    logger,
		daemon:    d,
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/items", s.handleListItems)
	mux.HandleFunc("POST /api/items", s.handleAddItems)
	mux.HandleFunc("DELETE /api/items", s.handleRemoveItems)
	mux.HandleFunc("POST /api/items/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/items/retry", s.handleRetryItems)
	mux.HandleFunc("GET /api/items/{id}", s.handleGetItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleRemoveItem)
	mux.HandleFunc("POST /api/items/{id}/retry", s.handleRetryItem)
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.handleDismissNotification)
	mux.HandleFunc("GET /api/export", s.handleExport)
	return authMiddleware(s.token, mux.ServeHTTP)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) session() *session.Session {
	return s.daemon.session
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		BackendURL:   status.BackendURL,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Backend:      api.FromBackendHealth(status.Backend),
	})
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	var filter map[queue.Status]struct{}
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		if filter == nil {
			filter = make(map[queue.Status]struct{})
		}
		filter[status] = struct{}{}
	}

	items := s.session().Items()
	if filter != nil {
		kept := items[:0]
		for _, item := range items {
			if _, ok := filter[item.Status]; ok {
				kept = append(kept, item)
			}
		}
		items = kept
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: api.FromItems(items)})
}

func (s *apiServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.session().Item(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: api.FromItem(item)})
}

func (s *apiServer) handleAddItems(w http.ResponseWriter, r *http.Request) {
	files, err := readUploads(w, r, s.maxUpload)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	items, err := s.session().AddFiles(files...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ItemListResponse{Items: api.FromItems(items)})
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	item, err := s.session().GenerateSample(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ItemResponse{Item: api.FromItem(item)})
}

func (s *apiServer) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if !s.session().RemoveItem(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	var req api.IDsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	s.writeJSON(w, http.StatusOK, api.RemoveItemsByID(s.session(), req.IDs))
}

func (s *apiServer) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.session().RetryItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: api.FromItem(item)})
}

// handleRetryItems retries the listed ids, or every failed item when the
// list is empty.
func (s *apiServer) handleRetryItems(w http.ResponseWriter, r *http.Request) {
	var req api.IDsRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	ids := req.IDs
	if len(ids) == 0 {
		for _, item := range s.session().Items() {
			if item.Status == queue.StatusError {
				ids = append(ids, item.ID)
			}
		}
	}
	result, err := api.RetryFailedItemsByID(r.Context(), s.session(), ids)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	queued := s.session().StartProcessing(r.Context())
	s.writeJSON(w, http.StatusAccepted, api.ProcessResponse{
		Queued:       queued,
		IsProcessing: s.session().IsProcessing(),
	})
}

func (s *apiServer) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.session().ResetAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.NotificationListResponse{
		Notifications: api.FromNotifications(s.session().Notifications()),
	})
}

func (s *apiServer) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.session().DismissNotification(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	manifest, err := s.session().Export(r.Context(), &buf)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName))
	size := buf.Len()
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log().Warn("export write interrupted", logging.Error(err))
		return
	}
	s.log().Info("export served",
		logging.String(logging.FieldEventType, "export_served"),
		logging.Int("items", len(manifest.Items)),
		logging.Size("size", size),
	)
}

func (s *apiServer) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode request", "Invalid JSON body", err)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeFailure maps err onto an HTTP status and a user-facing body.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	details := services.Details(err)
	message := details.Message
	kind := string(details.Kind)
	switch {
	case errors.Is(err, workflow.ErrItemNotFound):
		message, kind = "item not found", string(services.KindNotFound)
	case errors.Is(err, workflow.ErrNotRetryable):
		message, kind = workflow.ErrNotRetryable.Error(), "conflict"
	case errors.Is(err, export.ErrNothingToExport):
		message, kind = export.ErrNothingToExport.Error(), "conflict"
	}
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workflow.ErrItemNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNotRetryable), errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrPayload):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrTransport), errors.Is(err, services.ErrNoResults):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}

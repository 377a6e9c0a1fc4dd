package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/docker/go-units"

	"scanmaster/internal/config"
	"scanmaster/internal/logging"
	"scanmaster/internal/services"
)

const (
	stageName             = "scanapi"
	defaultHTTPTimeout    = 60 * time.Second
	defaultMaxUploadBytes = 10 * 1000 * 1000
	maxResponseBytes      = 64 << 20
	userAgent             = "scanmaster/0.1.0"
)

// HTTPClient implements Client against the scan backend HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxUpload  int64
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxUploadBytes caps upload payload size.
func WithMaxUploadBytes(limit int64) Option {
	return func(c *HTTPClient) {
		if limit > 0 {
			c.maxUpload = limit
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPClient constructs a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxUpload:  defaultMaxUploadBytes,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "scanapi")
	return client
}

// NewFromConfig builds a client from the [backend] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *HTTPClient {
	return NewHTTPClient(cfg.Backend.BaseURL,
		WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout()}),
		WithMaxUploadBytes(cfg.Backend.MaxUploadBytes()),
		WithLogger(logger),
	)
}

// BaseURL returns the backend base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Upload sends the payload as multipart field "file" and returns the remote reference.
func (c *HTTPClient) Upload(ctx context.Context, payload Payload) (string, error) {
	if len(payload.Data) == 0 {
		return "", services.Wrap(services.ErrValidation, stageName, "upload", "Empty upload payload", nil)
	}
	if int64(len(payload.Data)) > c.maxUpload {
		msg := fmt.Sprintf("File exceeds upload limit of %s", units.HumanSize(float64(c.maxUpload)))
		return "", services.Wrap(services.ErrValidation, stageName, "upload", msg, nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, uploadName(payload.Name)))
	contentType := strings.TrimSpace(payload.MIMEType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", services.Wrap(services.ErrPayload, stageName, "upload", "Failed to build upload request", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return "", services.Wrap(services.ErrPayload, stageName, "upload", "Failed to build upload request", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrPayload, stageName, "upload", "Failed to build upload request", err)
	}

	var data uploadData
	if err := c.do(ctx, "upload", http.MethodPost, "/api/upload", writer.FormDataContentType(), &body, &data); err != nil {
		return "", err
	}
	ref := strings.TrimSpace(data.Ref)
	if ref == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "upload", "Backend returned no upload reference", nil)
	}
	c.logger.Debug("upload stored",
		logging.String("name", payload.Name),
		logging.Size("size", len(payload.Data)),
		logging.String("remote_ref", ref),
	)
	return ref, nil
}

// PredictAndCrop runs detection and cropping for refs in a single call.
func (c *HTTPClient) PredictAndCrop(ctx context.Context, refs []string) ([]BackendResult, error) {
	return c.results(ctx, "predict_crop", "/api/predict_crop", PredictRequest{Images: refs})
}

// Detect returns the document boundary for ref.
func (c *HTTPClient) Detect(ctx context.Context, ref string) (Boundary, error) {
	body, err := json.Marshal(PredictRequest{Images: []string{ref}})
	if err != nil {
		return Boundary{}, services.Wrap(services.ErrPayload, stageName, "detect", "Failed to encode request", err)
	}
	var boundary Boundary
	if err := c.do(ctx, "detect", http.MethodPost, "/api/detect", "application/json", bytes.NewReader(body), &boundary); err != nil {
		return Boundary{}, err
	}
	if boundary.Width <= 0 || boundary.Height <= 0 {
		return Boundary{}, services.Wrap(services.ErrNoResults, stageName, "detect", "No document boundary detected", nil)
	}
	return boundary, nil
}

// Crop crops ref to boundary.
func (c *HTTPClient) Crop(ctx context.Context, ref string, boundary Boundary) ([]BackendResult, error) {
	return c.results(ctx, "crop", "/api/crop", CropRequest{Image: ref, Boundary: boundary})
}

// Health calls the backend liveness endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "health", "Invalid backend URL", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError("health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrTransport, stageName, "health", fmt.Sprintf("Backend health returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *HTTPClient) results(ctx context.Context, operation, path string, request any) ([]BackendResult, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, services.Wrap(services.ErrPayload, stageName, operation, "Failed to encode request", err)
	}
	var wire []wireResult
	if err := c.do(ctx, operation, http.MethodPost, path, "application/json", bytes.NewReader(body), &wire); err != nil {
		return nil, err
	}
	out := make([]BackendResult, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.resolve(c.baseURL))
	}
	return out, nil
}

// StatusError is returned when the backend responds with a non-success HTTP
// status or envelope code.
type StatusError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scan backend: http %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, operation, "Invalid backend URL", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(operation, err)
	}
	c.logger.Debug("backend call",
		logging.String("operation", operation),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	var envelope Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &envelope)
	if resp.StatusCode >= http.StatusMultipleChoices || (decodeErr == nil && envelope.Code != CodeSuccess) {
		message := strings.TrimSpace(envelope.Message)
		if decodeErr != nil || message == "" {
			message = fmt.Sprintf("Backend returned HTTP %d", resp.StatusCode)
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Code: envelope.Code, Message: message}
		marker := services.ErrTransport
		if isClientError(resp.StatusCode, envelope.Code) {
			marker = services.ErrValidation
		}
		return services.Wrap(marker, stageName, operation, message, statusErr)
	}
	if decodeErr != nil {
		return services.Wrap(services.ErrValidation, stageName, operation, "Malformed backend response", decodeErr)
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return services.Wrap(services.ErrValidation, stageName, operation, "Malformed backend response", err)
	}
	return nil
}

func isClientError(status, code int) bool {
	if status >= 400 && status < 500 {
		return true
	}
	return status < 300 && code >= 400 && code < 500
}

func transportError(operation string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stageName, operation, "Request timed out", err)
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrTransport, stageName, operation, "Request cancelled", err)
	default:
		var timeout interface{ Timeout() bool }
		if errors.As(err, &timeout) && timeout.Timeout() {
			return services.Wrap(services.ErrTimeout, stageName, operation, "Request timed out", err)
		}
		return services.Wrap(services.ErrTransport, stageName, operation, "Scan backend unreachable", err)
	}
}

func uploadName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return name
}

package session

import (
	"fmt"
	"log/slog"
	"net/http"

	"scanmaster/internal/config"
	"scanmaster/internal/generator"
	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/sources"
	"scanmaster/internal/workflow"
)

// Open builds a session wired to the HTTP scan backend, ntfy publisher and
// Gemini provider described by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	client := scanapi.NewFromConfig(cfg, logger)
	return OpenWithClient(cfg, client, logger)
}

// OpenWithClient is Open with an explicit backend client.
func OpenWithClient(cfg *config.Config, client scanapi.Client, logger *slog.Logger) (*Session, error) {
	publisher := notifications.NewPublisher(cfg)
	sink := notifications.NewSink(cfg.Notifications.TTL(),
		notifications.WithPublisher(publisher),
		notifications.WithLogger(logger),
	)
	resolver := sources.NewResolver(
		sources.WithMaxBytes(cfg.Backend.MaxUploadBytes()),
		sources.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout()}),
	)
	manager, err := workflow.NewManagerFromConfig(cfg, queue.NewRegistry(), client, logger,
		workflow.WithSink(sink),
		workflow.WithNotifier(publisher),
		workflow.WithResolver(resolver),
	)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("workflow manager: %w", err)
	}
	return New(manager, sink,
		WithProvider(generator.NewGemini(cfg.Generator, logger)),
		WithLoader(resolver),
		WithLogger(logger),
	), nil
}

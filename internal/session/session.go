package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"scanmaster/internal/export"
	"scanmaster/internal/generator"
	"scanmaster/internal/logging"
	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
	"scanmaster/internal/services"
	"scanmaster/internal/workflow"
)

const stageName = "session"

// File is an uploaded image handed to AddFiles.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Session is the single surface the UI layers talk to.
type Session struct {
	registry *queue.Registry
	manager  *workflow.Manager
	sink     *notifications.Sink
	provider generator.Provider
	loader   export.Loader
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithProvider sets the asset provider used by GenerateSample.
func WithProvider(p generator.Provider) Option {
	return func(s *Session) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithLoader sets the loader used to fetch result bytes on export.
func WithLoader(l export.Loader) Option {
	return func(s *Session) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for generated item names.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New binds a session to a manager and notification sink.
func New(manager *workflow.Manager, sink *notifications.Sink, opts ...Option) *Session {
	s := &Session{
		registry: manager.Registry(),
		manager:  manager,
		sink:     sink,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "session")
	return s
}

// Items returns an ordered snapshot of the registry.
func (s *Session) Items() []queue.Item {
	return s.registry.List()
}

// Item returns one item by id.
func (s *Session) Item(id string) (queue.Item, bool) {
	return s.registry.Get(id)
}

// IsProcessing reports whether a run is active.
func (s *Session) IsProcessing() bool {
	return s.manager.IsProcessing()
}

// HasStarted reports whether processing was started since the last reset.
func (s *Session) HasStarted() bool {
	return s.manager.HasStarted()
}

// Notifications returns the visible notifications.
func (s *Session) Notifications() []notifications.Notification {
	return s.sink.List()
}

// Progress is the share of attempted items that finished cropped.
func (s *Session) Progress() int {
	return s.registry.Stats().Progress()
}

// Status returns workflow diagnostics.
func (s *Session) Status() workflow.StatusSummary {
	return s.manager.Status()
}

// BackendHealth checks the scan backend.
func (s *Session) BackendHealth(ctx context.Context) workflow.BackendHealth {
	return s.manager.BackendHealth(ctx)
}

// AddFiles registers one idle item per file, in order.
func (s *Session) AddFiles(files ...File) ([]queue.Item, error) {
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "add files", "No files provided", nil)
	}
	items := make([]*queue.Item, 0, len(files))
	for idx, f := range files {
		if len(f.Data) == 0 {
			return nil, services.Wrap(services.ErrValidation, stageName, "add files", fmt.Sprintf("File %q is empty", f.Name), nil)
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = fmt.Sprintf("upload_%d", idx+1)
		}
		items = append(items, queue.NewFileItem(name, strings.TrimSpace(f.MIMEType), f.Data))
	}
	return s.add(items)
}

// AddGeneratedItem registers an idle item for an image reference produced by
// the asset provider.
func (s *Session) AddGeneratedItem(ref string) (queue.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return queue.Item{}, services.Wrap(services.ErrValidation, stageName, "add generated", "Empty image reference", nil)
	}
	added, err := s.add([]*queue.Item{queue.NewRefItem(GeneratedName(s.now()), ref)})
	if err != nil {
		return queue.Item{}, err
	}
	return added[0], nil
}

// GenerateSample asks the asset provider for an image and adds it. Provider
// failures leave the registry untouched.
func (s *Session) GenerateSample(ctx context.Context) (queue.Item, error) {
	if s.provider == nil {
		return queue.Item{}, services.Wrap(services.ErrConfiguration, stageName, "generate", "Sample generation is not configured", nil)
	}
	ref, err := s.provider.Generate(ctx)
	if err != nil {
		return queue.Item{}, err
	}
	return s.AddGeneratedItem(ref)
}

// RemoveItem deletes an item. In-flight work for it is discarded on completion.
func (s *Session) RemoveItem(id string) bool {
	removed := s.registry.Remove(id)
	if removed {
		s.logger.Info("item removed",
			logging.String(logging.FieldEventType, "item_removed"),
			logging.String(logging.FieldItemID, id),
		)
	}
	return removed
}

// StartProcessing queues every idle item and returns how many were queued.
func (s *Session) StartProcessing(ctx context.Context) int {
	return s.manager.Start(ctx)
}

// RetryItem re-admits a failed item and restarts processing.
func (s *Session) RetryItem(ctx context.Context, id string) (queue.Item, error) {
	return s.manager.Retry(ctx, id)
}

// Wait blocks until the active run drains.
func (s *Session) Wait(ctx context.Context) error {
	return s.manager.Wait(ctx)
}

// ResetAll clears items, notifications and run flags.
func (s *Session) ResetAll() {
	s.manager.Reset()
	s.sink.Clear()
}

// DismissNotification removes a notification before it expires.
func (s *Session) DismissNotification(id string) bool {
	return s.sink.Dismiss(id)
}

// Export writes a zip of every cropped result to w.
func (s *Session) Export(ctx context.Context, w io.Writer) (export.Manifest, error) {
	return export.Write(ctx, w, s.registry.List(), s.loader)
}

// ExportToDir writes the archive into dir and returns its path.
func (s *Session) ExportToDir(ctx context.Context, dir string) (string, export.Manifest, error) {
	return export.WriteFile(ctx, dir, s.registry.List(), s.loader)
}

// Close stops processing and flushes pending notification pushes.
func (s *Session) Close() {
	s.manager.Stop()
	s.sink.Close()
}

func (s *Session) add(items []*queue.Item) ([]queue.Item, error) {
	if err := s.registry.Add(items...); err != nil {
		return nil, fmt.Errorf("add items: %w", err)
	}
	out := make([]queue.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
		s.logger.Info("item added",
			logging.String(logging.FieldEventType, "item_added"),
			logging.String(logging.FieldItemID, item.ID),
			logging.ItemName(item.Name),
			logging.Bool("file", item.Source.IsFile()),
		)
	}
	return out, nil
}

// GeneratedName names a generated sample after the last four digits of the
// millisecond clock.
func GeneratedName(now time.Time) string {
	return fmt.Sprintf("AI_Sample_%04d.png", now.UnixMilli()%10000)
}

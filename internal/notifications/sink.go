package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanmaster/internal/logging"
)

// DefaultTTL is how long a notification stays visible when no TTL is configured.
const DefaultTTL = 3 * time.Second

const publishTimeout = 15 * time.Second

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a transient message about one item outcome.
type Notification struct {
	ID        string
	Message   string
	Kind      Kind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Sink holds auto-expiring notifications in creation order. Duplicates are kept.
type Sink struct {
	mu        sync.Mutex
	ttl       time.Duration
	items     []Notification
	timers    map[string]*time.Timer
	publisher Publisher
	logger    *slog.Logger
	pending   sync.WaitGroup
}

// SinkOption customizes a Sink.
type SinkOption func(*Sink)

// WithPublisher mirrors every notification to p.
func WithPublisher(p Publisher) SinkOption {
	return func(s *Sink) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSink constructs a sink whose notifications expire after ttl.
func NewSink(ttl time.Duration, opts ...SinkOption) *Sink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Sink{
		ttl:       ttl,
		timers:    make(map[string]*time.Timer),
		publisher: noopPublisher{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "notifications")
	return s
}

// TTL returns the configured notification lifetime.
func (s *Sink) TTL() time.Duration {
	return s.ttl
}

// Notify appends a notification and schedules its removal after the TTL.
func (s *Sink) Notify(message string, kind Kind) Notification {
	now := time.Now().UTC()
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	id := n.ID
	s.timers[id] = time.AfterFunc(s.ttl, func() { s.Dismiss(id) })
	s.mu.Unlock()

	level := slog.LevelInfo
	event := EventItemCropped
	if kind == KindError {
		level = slog.LevelWarn
		event = EventItemFailed
	}
	s.logger.Log(context.Background(), level, "notification",
		logging.String(logging.FieldEventType, string(event)),
		logging.String("notification_id", n.ID),
		logging.String("message", message),
	)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, event, Payload{"message": message}); err != nil {
			s.logger.Warn("notification publish failed",
				logging.String(logging.FieldEventType, "notification_publish_failed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.Error(err),
			)
		}
	}()
	return n
}

// Dismiss removes a notification ahead of its expiry. It reports whether the id was present.
func (s *Sink) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	for idx, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return true
		}
	}
	return false
}

// List returns the visible notifications in creation order.
func (s *Sink) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if now.Before(n.ExpiresAt) {
			out = append(out, n)
		}
	}
	return out
}

// Clear removes every notification.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.items = nil
}

// Close clears the sink and waits for in-flight publishes.
func (s *Sink) Close() {
	s.Clear()
	s.pending.Wait()
}

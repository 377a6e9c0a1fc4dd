package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scanmaster/internal/config"
	"scanmaster/internal/logging"
	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/sources"
)

// DefaultConcurrencyLimit is the worker count used when none is configured.
const DefaultConcurrencyLimit = 2

// PayloadResolver turns an item's source into an uploadable payload.
type PayloadResolver interface {
	Resolve(ctx context.Context, item queue.Item) (scanapi.Payload, error)
}

// Notifier receives per-item outcome messages.
type Notifier interface {
	Notify(message string, kind notifications.Kind) notifications.Notification
}

// Manager coordinates item processing against the scan backend.
type Manager struct {
	registry *queue.Registry
	client   scanapi.Client
	health   scanapi.HealthChecker
	resolver PayloadResolver
	sink     Notifier
	notifier notifications.Publisher
	producer Producer
	logger   *slog.Logger

	limit       int
	pacing      time.Duration
	callTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	pending    []job
	inFlight   map[string]struct{}
	workers    int
	processing bool
	started    bool
	drained    chan struct{}
	queueStart time.Time
	lastErr    error
	lastItem   *queue.Item
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithConcurrencyLimit bounds the number of items processed at once.
func WithConcurrencyLimit(limit int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithPacing inserts a delay between items handled by the same worker.
func WithPacing(delay time.Duration) Option {
	return func(m *Manager) {
		if delay > 0 {
			m.pacing = delay
		}
	}
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.callTimeout = timeout
		}
	}
}

// WithProducer selects the result producer strategy.
func WithProducer(p Producer) Option {
	return func(m *Manager) {
		if p != nil {
			m.producer = p
		}
	}
}

// WithResolver overrides the payload resolver.
func WithResolver(r PayloadResolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithSink routes per-item outcomes to n.
func WithSink(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.sink = n
		}
	}
}

// WithNotifier sets the publisher used for queue-level summaries.
func WithNotifier(p notifications.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.notifier = p
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a workflow manager over registry using client.
func NewManager(registry *queue.Registry, client scanapi.Client, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry: registry,
		client:   client,
		resolver: sources.NewResolver(),
		notifier: notifications.NewNoopPublisher(),
		producer: CombinedProducer{},
		logger:   logging.NewNop(),
		limit:    DefaultConcurrencyLimit,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if checker, ok := client.(scanapi.HealthChecker); ok {
		m.health = checker
	}
	m.client = withCallTimeout(client, m.callTimeout)
	m.logger = logging.NewComponentLogger(m.logger, "workflow-manager")
	return m
}

// NewManagerFromConfig wires a manager from the [workflow] and [backend]
// sections. Extra options are applied last.
func NewManagerFromConfig(cfg *config.Config, registry *queue.Registry, client scanapi.Client, logger *slog.Logger, opts ...Option) (*Manager, error) {
	producer, err := ProducerFor(cfg.Backend.Producer)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithConcurrencyLimit(cfg.Workflow.ConcurrencyLimit),
		WithPacing(cfg.Workflow.Pacing()),
		WithCallTimeout(cfg.Workflow.CallTimeout()),
		WithProducer(producer),
		WithResolver(sources.NewResolver(sources.WithMaxBytes(cfg.Backend.MaxUploadBytes()))),
		WithNotifier(notifications.NewPublisher(cfg)),
		WithLogger(logger),
	}
	return NewManager(registry, client, append(base, opts...)...), nil
}

// Registry returns the registry the manager writes to.
func (m *Manager) Registry() *queue.Registry {
	return m.registry
}

// ConcurrencyLimit reports the worker bound.
func (m *Manager) ConcurrencyLimit() int {
	return m.limit
}

// IsProcessing reports whether a run is active.
func (m *Manager) IsProcessing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// HasStarted reports whether processing was started since the last reset.
func (m *Manager) HasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Reset clears the registry and abandons queued work. Workers already inside
// a pipeline finish their current call; the registry generation check drops
// whatever they write back, and they no longer count toward the limit.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	generation := m.registry.Reset()
	for _, j := range m.pending {
		delete(m.inFlight, j.id)
	}
	m.pending = nil
	m.workers = 0
	m.started = false
	m.queueStart = time.Time{}
	if m.processing {
		m.processing = false
		close(m.drained)
	}
	m.lastErr = nil
	m.lastItem = nil
	m.logger.Info("queue reset",
		logging.String(logging.FieldEventType, "queue_reset"),
		logging.Any("generation", generation),
	)
}

// Stop cancels in-flight work and waits for workers to exit. Items are left
// in whatever state they reached.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item queue.Item) {
	m.mu.Lock()
	copy := item.Clone()
	m.lastItem = &copy
	m.mu.Unlock()
}

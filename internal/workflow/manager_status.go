package workflow

import (
	"context"
	"time"

	"scanmaster/internal/queue"
	"scanmaster/internal/services"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Processing       bool
	HasStarted       bool
	Pending          int
	InFlight         int
	Workers          int
	ConcurrencyLimit int
	Producer         string
	Stats            queue.Stats
	Progress         int
	LastError        string
	LastItem         *queue.Item
}

// BackendHealth is the result of probing the scan backend.
type BackendHealth struct {
	Checked bool
	Ready   bool
	Detail  string
	Latency time.Duration
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Processing:       m.processing,
		HasStarted:       m.started,
		Pending:          len(m.pending),
		InFlight:         len(m.inFlight),
		Workers:          m.workers,
		ConcurrencyLimit: m.limit,
		Producer:         m.producer.Name(),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		copy := m.lastItem.Clone()
		summary.LastItem = &copy
	}
	m.mu.Unlock()

	summary.Stats = m.registry.Stats()
	summary.Progress = summary.Stats.Progress()
	return summary
}

// BackendHealth checks the backend when the client supports it.
func (m *Manager) BackendHealth(ctx context.Context) BackendHealth {
	if m.health == nil {
		return BackendHealth{}
	}
	started := time.Now()
	err := m.health.Health(ctx)
	health := BackendHealth{Checked: true, Ready: err == nil, Latency: time.Since(started)}
	if err != nil {
		health.Detail = services.Details(err).Message
	}
	return health
}

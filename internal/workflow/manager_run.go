package workflow

import (
	"context"
	"time"

	"scanmaster/internal/logging"
)

type job struct {
	id         string
	generation uint64
}

// Start queues every idle item that is not already owned by a worker and
// returns how many were queued. With nothing to queue it changes no state.
// A Start issued during an active run feeds the same worker pool.
func (m *Manager) Start(ctx context.Context) int {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return 0
	}

	generation := m.registry.Generation()
	queued := 0
	for _, id := range m.registry.SnapshotIdleIDs() {
		if _, busy := m.inFlight[id]; busy {
			continue
		}
		m.inFlight[id] = struct{}{}
		m.pending = append(m.pending, job{id: id, generation: generation})
		queued++
	}
	if queued == 0 {
		m.mu.Unlock()
		return 0
	}

	m.started = true
	firstRun := !m.processing
	if firstRun {
		m.processing = true
		m.drained = make(chan struct{})
		m.queueStart = time.Now()
	}
	spawn := min(m.limit-m.workers, len(m.pending))
	for range spawn {
		m.workers++
		m.wg.Add(1)
		go m.worker(generation)
	}
	m.mu.Unlock()

	m.logger.Debug("items queued",
		logging.String(logging.FieldEventType, "items_queued"),
		logging.Int("queued", queued),
		logging.Int("workers_spawned", max(spawn, 0)),
	)
	if firstRun {
		m.onQueueStarted(ctx, queued)
	}
	return queued
}

// Wait blocks until the active run drains or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.processing {
		m.mu.Unlock()
		return nil
	}
	done := m.drained
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) worker(generation uint64) {
	defer m.wg.Done()
	for {
		next, ok := m.nextJob(generation)
		if !ok {
			return
		}
		m.processItem(next)
		if m.pacing > 0 && m.hasPending() {
			timer := time.NewTimer(m.pacing)
			select {
			case <-timer.C:
			case <-m.ctx.Done():
				timer.Stop()
			}
		}
	}
}

// nextJob pops the next queued id. When none is left the worker retires, and
// the last worker out closes the run. A worker spawned before a Reset retires
// without touching the current run; Reset already dropped it from m.workers.
func (m *Manager) nextJob(generation uint64) (job, bool) {
	m.mu.Lock()
	if generation != m.registry.Generation() {
		m.mu.Unlock()
		return job{}, false
	}
	if m.ctx.Err() == nil && len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		return next, true
	}

	if m.ctx.Err() != nil {
		for _, j := range m.pending {
			delete(m.inFlight, j.id)
		}
		m.pending = nil
	}
	m.workers--
	finished := m.workers == 0 && m.processing
	var start time.Time
	if finished {
		m.processing = false
		close(m.drained)
		start = m.queueStart
		m.queueStart = time.Time{}
	}
	m.mu.Unlock()

	if finished {
		m.onQueueCompleted(start)
	}
	return job{}, false
}

func (m *Manager) hasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0
}

func (m *Manager) release(j job) {
	m.mu.Lock()
	delete(m.inFlight, j.id)
	m.mu.Unlock()
}

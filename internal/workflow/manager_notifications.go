package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scanmaster/internal/logging"
	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
)

const publishTimeout = 15 * time.Second

// notifyItem is called with m.mu held; the sink must not call back into the
// manager.
func (m *Manager) notifyItem(item queue.Item) {
	if m.sink == nil {
		return
	}
	switch item.Status {
	case queue.StatusCropped:
		m.sink.Notify(fmt.Sprintf("%s processed", item.Name), notifications.KindSuccess)
	case queue.StatusError:
		m.sink.Notify(fmt.Sprintf("%s: %s", item.Name, item.ErrorMessage), notifications.KindError)
	}
}

func (m *Manager) onQueueStarted(ctx context.Context, count int) {
	m.logger.Info("queue started",
		logging.String(logging.FieldEventType, string(notifications.EventQueueStarted)),
		logging.Int("count", count),
		logging.Int("concurrency_limit", m.limit),
	)
	m.publish(logging.WithContext(ctx, m.logger), notifications.EventQueueStarted, notifications.Payload{"count": count})
}

func (m *Manager) onQueueCompleted(start time.Time) {
	stats := m.registry.Stats()
	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	m.logger.Info("queue completed",
		logging.String(logging.FieldEventType, string(notifications.EventQueueCompleted)),
		logging.Int("cropped", stats.Cropped),
		logging.Int("failed", stats.Failed),
		logging.Int("progress", stats.Progress()),
		logging.Duration("duration", duration),
	)
	m.publish(m.logger, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats.Cropped,
		"failed":    stats.Failed,
		"duration":  duration,
	})
}

// publish sends a queue-level event without blocking the caller.
func (m *Manager) publish(logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, publishTimeout)
		defer cancel()
		if err := m.notifier.Publish(ctx, event, payload); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Debug("shutting down, could not send queue notification", logging.String(logging.FieldEventType, string(event)))
			} else {
				logger.Debug("queue notification failed", logging.String(logging.FieldEventType, string(event)), logging.Error(err))
			}
		}
	}()
}

package workflow

import (
	"context"
	"errors"
	"fmt"

	"scanmaster/internal/logging"
	"scanmaster/internal/queue"
)

var (
	// ErrItemNotFound reports a retry for an id the registry does not hold.
	ErrItemNotFound = errors.New("item not found")
	// ErrNotRetryable reports a retry for an item that has not failed.
	ErrNotRetryable = errors.New("item is not in error state")
)

// Retry returns a failed item to idle and starts processing. Every idle item
// is picked up, not only the retried one.
func (m *Manager) Retry(ctx context.Context, id string) (queue.Item, error) {
	item, ok, err := m.registry.Update(id, (*queue.Item).ResetForRetry)
	if !ok {
		return queue.Item{}, fmt.Errorf("retry %s: %w", id, ErrItemNotFound)
	}
	if err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			return item, fmt.Errorf("retry %s (status %s): %w", id, item.Status, ErrNotRetryable)
		}
		return item, fmt.Errorf("retry %s: %w", id, err)
	}

	logging.WithContext(ctx, m.logger).Info("item queued for retry",
		logging.String(logging.FieldEventType, "item_retry"),
		logging.String(logging.FieldItemID, id),
		logging.ItemName(item.Name),
	)
	m.Start(ctx)
	return item, nil
}

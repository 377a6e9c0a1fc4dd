package api

import (
	"context"
	"errors"

	"scanmaster/internal/queue"
	"scanmaster/internal/workflow"
)

// RetryService captures the session operation needed by per-item retry.
type RetryService interface {
	RetryItem(ctx context.Context, id string) (queue.Item, error)
}

type RetryItemOutcome string

const (
	RetryItemRetried   RetryItemOutcome = "retried"
	RetryItemNotFound  RetryItemOutcome = "not_found"
	RetryItemNotFailed RetryItemOutcome = "not_failed"
)

type RetryItemResult struct {
	ID        string           `json:"id"`
	Outcome   RetryItemOutcome `json:"outcome"`
	NewStatus string           `json:"newStatus,omitempty"`
}

type RetryItemsResult struct {
	RetriedCount int               `json:"retriedCount"`
	Items        []RetryItemResult `json:"items"`
}

// RetryFailedItemsByID retries each id and reports a per-id outcome. Only
// unexpected errors abort the batch.
func RetryFailedItemsByID(ctx context.Context, service RetryService, ids []string) (RetryItemsResult, error) {
	result := RetryItemsResult{Items: make([]RetryItemResult, 0, len(ids))}
	for _, id := range ids {
		item, err := service.RetryItem(ctx, id)
		switch {
		case errors.Is(err, workflow.ErrItemNotFound):
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFound})
		case errors.Is(err, workflow.ErrNotRetryable):
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFailed, NewStatus: string(item.Status)})
		case err != nil:
			return RetryItemsResult{}, err
		default:
			result.RetriedCount++
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemRetried, NewStatus: string(item.Status)})
		}
	}
	return result, nil
}

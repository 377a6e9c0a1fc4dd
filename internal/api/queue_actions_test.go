package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scanmaster/internal/queue"
	"scanmaster/internal/workflow"
)

type retryStub struct {
	statuses map[string]queue.Status
	errAt    string
}

func (s *retryStub) RetryItem(_ context.Context, id string) (queue.Item, error) {
	if id == s.errAt {
		return queue.Item{}, errors.New("registry unavailable")
	}
	status, ok := s.statuses[id]
	if !ok {
		return queue.Item{}, fmt.Errorf("retry %s: %w", id, workflow.ErrItemNotFound)
	}
	if status != queue.StatusError {
		return queue.Item{ID: id, Status: status}, fmt.Errorf("retry %s: %w", id, workflow.ErrNotRetryable)
	}
	return queue.Item{ID: id, Status: queue.StatusIdle}, nil
}

func TestRetryFailedItemsByID(t *testing.T) {
	stub := &retryStub{statuses: map[string]queue.Status{
		"a": queue.StatusError,
		"b": queue.StatusCropped,
	}}

	result, err := RetryFailedItemsByID(context.Background(), stub, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("RetryFailedItemsByID: %v", err)
	}
	if result.RetriedCount != 1 {
		t.Fatalf("RetriedCount = %d, want 1", result.RetriedCount)
	}
	want := []RetryItemOutcome{RetryItemRetried, RetryItemNotFailed, RetryItemNotFound}
	for i, outcome := range want {
		if result.Items[i].Outcome != outcome {
			t.Fatalf("item %d outcome = %s, want %s", i, result.Items[i].Outcome, outcome)
		}
	}
	if result.Items[0].NewStatus != "idle" || result.Items[1].NewStatus != "cropped" {
		t.Fatalf("unexpected statuses %+v", result.Items)
	}
}

func TestRetryFailedItemsByIDError(t *testing.T) {
	stub := &retryStub{statuses: map[string]queue.Status{"a": queue.StatusError}, errAt: "b"}
	if _, err := RetryFailedItemsByID(context.Background(), stub, []string{"a", "b"}); err == nil {
		t.Fatal("expected error")
	}
}

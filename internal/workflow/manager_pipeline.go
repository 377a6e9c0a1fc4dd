package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scanmaster/internal/logging"
	"scanmaster/internal/queue"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/services"
)

const (
	stageResolve = "resolve"
	stageUpload  = "upload"
	stageProduce = "produce"
)

// errItemGone aborts a pipeline whose item was removed or reset away.
var errItemGone = errors.New("item no longer registered")

func (m *Manager) processItem(j job) {
	ctx := services.WithItemID(m.ctx, j.id)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	item, ok, err := m.update(j, (*queue.Item).BeginUpload)
	if !ok {
		m.release(j)
		logger.Debug("item no longer registered; skipping")
		return
	}
	if err != nil {
		m.release(j)
		logger.Debug("item not idle; skipping",
			logging.String("status", string(item.Status)),
			logging.Error(err),
		)
		return
	}

	started := time.Now()
	logger.Info("item processing started",
		logging.String(logging.FieldEventType, "item_started"),
		logging.ItemName(item.Name),
		logging.String("producer", m.producer.Name()),
	)

	results, err := m.runPipeline(ctx, j, item, logger)
	switch {
	case errors.Is(err, errItemGone):
		m.release(j)
		logger.Info("item removed during processing; result discarded",
			logging.String(logging.FieldEventType, "item_discarded"),
			logging.Duration("elapsed", time.Since(started)),
		)
	case err != nil:
		m.handleItemFailure(ctx, j, err)
	default:
		m.completeItem(ctx, j, results, time.Since(started))
	}
}

func (m *Manager) runPipeline(ctx context.Context, j job, item queue.Item, logger *slog.Logger) ([]queue.Result, error) {
	payload, err := m.resolver.Resolve(services.WithStage(ctx, stageResolve), item)
	if err != nil {
		return nil, err
	}

	uploadCtx := services.WithStage(ctx, stageUpload)
	ref, err := m.client.Upload(uploadCtx, payload)
	if err != nil {
		return nil, err
	}
	logger.Debug("upload complete",
		logging.String("remote_ref", ref),
		logging.Size("size", len(payload.Data)),
	)
	if err := m.advance(j, func(it *queue.Item) error { return it.BeginDetect(ref) }); err != nil {
		return nil, err
	}

	beginCrop := func() error {
		return m.advance(j, (*queue.Item).BeginCrop)
	}
	backend, err := m.producer.Produce(services.WithStage(ctx, stageProduce), m.client, ref, beginCrop)
	if err != nil {
		return nil, err
	}
	results := toResults(backend)
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrNoResults, "workflow", stageProduce, "No processed results", nil)
	}
	return results, nil
}

// advance applies a non-terminal transition for the current run.
func (m *Manager) advance(j job, patch func(*queue.Item) error) error {
	_, ok, err := m.update(j, patch)
	if !ok {
		return errItemGone
	}
	return err
}

func (m *Manager) update(j job, patch func(*queue.Item) error) (queue.Item, bool, error) {
	return m.registry.UpdateInGeneration(j.generation, j.id, patch)
}

// finish writes a terminal state, releases ownership of the id and posts the
// outcome notification in one step under m.mu. A Retry that observes the
// terminal state can always requeue it, and a Reset either precedes the write
// (which is then dropped) or follows the notification.
func (m *Manager) finish(j job, patch func(*queue.Item) error) (queue.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, j.id)
	stored, ok, err := m.registry.UpdateInGeneration(j.generation, j.id, patch)
	if ok && err == nil {
		m.notifyItem(stored)
	}
	return stored, ok, err
}

func (m *Manager) completeItem(ctx context.Context, j job, results []queue.Result, elapsed time.Duration) {
	logger := logging.WithContext(ctx, m.logger)
	stored, ok, err := m.finish(j, func(it *queue.Item) error { return it.Complete(results) })
	if !ok {
		logger.Info("item removed during processing; result discarded",
			logging.String(logging.FieldEventType, "item_discarded"),
		)
		return
	}
	if err != nil {
		m.handleItemFailure(ctx, j, err)
		return
	}

	logger.Info("item cropped",
		logging.String(logging.FieldEventType, "item_cropped"),
		logging.ItemName(stored.Name),
		logging.Int("results", len(stored.Results)),
		logging.Duration("elapsed", elapsed),
	)
	m.setLastItem(stored)
}

func toResults(backend []scanapi.BackendResult) []queue.Result {
	out := make([]queue.Result, 0, len(backend))
	for _, r := range backend {
		preview := strings.TrimSpace(r.Preview)
		cropped := strings.TrimSpace(r.Cropped)
		if preview == "" && cropped == "" {
			continue
		}
		out = append(out, queue.Result{
			Original: strings.TrimSpace(r.Original),
			Preview:  preview,
			Cropped:  cropped,
		})
	}
	return out
}

package workflow

import (
	"context"
	"strings"

	"scanmaster/internal/logging"
	"scanmaster/internal/queue"
	"scanmaster/internal/services"
)

func (m *Manager) handleItemFailure(ctx context.Context, j job, itemErr error) {
	logger := logging.WithContext(ctx, m.logger)
	if m.ctx.Err() != nil {
		m.release(j)
		logger.Debug("shutting down, item left in place", logging.Error(itemErr))
		return
	}

	message := classifyFailure(itemErr)
	stored, ok, err := m.finish(j, func(it *queue.Item) error { return it.Fail(message) })
	if !ok {
		logger.Info("item removed during processing; failure discarded",
			logging.String(logging.FieldEventType, "item_discarded"),
			logging.Error(itemErr),
		)
		return
	}
	if err != nil {
		logger.Error("failed to record item failure",
			logging.String(logging.FieldEventType, "item_failure_write_failed"),
			logging.String("status", string(stored.Status)),
			logging.Error(err),
		)
		m.setLastError(err)
		return
	}

	details := services.Details(itemErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(queue.StatusError)),
		logging.String("error_message", message),
		logging.Alert("item_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("error_operation", details.Operation),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
	}
	if details.Stage != "" {
		attrs = append(attrs, logging.String("error_stage", details.Stage))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(itemErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "item_failed"))
	logger.Error("item failed", logging.Args(attrs...)...)

	m.setLastError(itemErr)
	m.setLastItem(stored)
}

func classifyFailure(err error) string {
	if err == nil {
		return queue.DefaultFailureMessage
	}
	message := strings.TrimSpace(services.Details(err).Message)
	if message == "" {
		return queue.DefaultFailureMessage
	}
	return message
}

func failureHint(kind services.Kind) string {
	switch kind {
	case services.KindTransport, services.KindTimeout:
		return "check backend.base_url and that the scan backend is running; retry the item"
	case services.KindPayload:
		return "the image source could not be read; re-add the file"
	case services.KindValidation:
		return "the backend rejected the image; check format and backend.max_upload_size"
	case services.KindNoResults:
		return "no document was found in the image; retry or use a clearer photo"
	default:
		return "retry the item"
	}
}

package api

import (
	"strings"

	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
	"scanmaster/internal/workflow"
)

// FromItem converts a registry item to its API representation.
func FromItem(item queue.Item) Item {
	dto := Item{
		ID:           item.ID,
		Name:         item.Name,
		Status:       string(item.Status),
		Source:       "file",
		RemoteRef:    item.RemoteRef,
		Results:      make([]Result, 0, len(item.Results)),
		ErrorMessage: item.ErrorMessage,
	}
	if !item.Source.IsFile() {
		dto.Source = "reference"
		if ref := item.Source.Ref; !strings.HasPrefix(ref, "data:") {
			dto.SourceRef = ref
		}
	}
	for _, r := range item.Results {
		dto.Results = append(dto.Results, Result{Original: r.Original, Preview: r.Preview, Cropped: r.Cropped})
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromItems converts registry items into API DTOs. It never returns nil.
func FromItems(items []queue.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromNotification converts a sink notification.
func FromNotification(n notifications.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Message:   n.Message,
		Type:      string(n.Kind),
		CreatedAt: n.CreatedAt.UTC().Format(dateTimeFormat),
		ExpiresAt: n.ExpiresAt.UTC().Format(dateTimeFormat),
	}
}

// FromNotifications converts a notification list. It never returns nil.
func FromNotifications(list []notifications.Notification) []Notification {
	out := make([]Notification, 0, len(list))
	for _, n := range list {
		out = append(out, FromNotification(n))
	}
	return out
}

// FromStats converts registry stats.
func FromStats(stats queue.Stats) QueueStats {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for _, status := range queue.AllStatuses() {
		byStatus[string(status)] = stats.ByStatus[status]
	}
	return QueueStats{
		Total:    stats.Total,
		Idle:     stats.Idle,
		Active:   stats.Active,
		Cropped:  stats.Cropped,
		Failed:   stats.Failed,
		ByStatus: byStatus,
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		IsProcessing:     summary.Processing,
		HasStarted:       summary.HasStarted,
		Progress:         summary.Progress,
		Pending:          summary.Pending,
		InFlight:         summary.InFlight,
		ConcurrencyLimit: summary.ConcurrencyLimit,
		Producer:         summary.Producer,
		Stats:            FromStats(summary.Stats),
		LastError:        summary.LastError,
	}
	if summary.LastItem != nil {
		item := FromItem(*summary.LastItem)
		status.LastItem = &item
	}
	return status
}

// FromBackendHealth converts a backend health check result.
func FromBackendHealth(health workflow.BackendHealth) BackendHealth {
	return BackendHealth{
		Checked:   health.Checked,
		Ready:     health.Ready,
		Detail:    health.Detail,
		LatencyMS: health.Latency.Milliseconds(),
	}
}

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scanmaster/internal/config"
)

const userAgent = "scanmaster/0.1.0"

// Event identifies a workflow event that can be pushed to ntfy.
type Event string

const (
	EventItemCropped    Event = "item_cropped"
	EventItemFailed     Event = "item_failed"
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventTest           Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Publisher delivers workflow events to an external channel.
type Publisher interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewPublisher builds an ntfy publisher when a topic is configured, otherwise a no-op.
func NewPublisher(cfg *config.Config) Publisher {
	if cfg == nil {
		return noopPublisher{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopPublisher{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyPublisher{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		queue:    cfg.Notifications.Queue,
		errors:   cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyPublisher struct {
	endpoint string
	client   *http.Client
	queue    bool
	errors   bool
}

func (n *ntfyPublisher) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil {
		return nil
	}
	switch event {
	case EventQueueStarted, EventQueueCompleted:
		if !n.queue {
			return nil
		}
	case EventItemFailed:
		if !n.errors {
			return nil
		}
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventItemCropped:
		return message{
			title: "scanmaster - Scan Ready",
			body:  fmt.Sprintf("✅ %s", text(payload, "message")),
			tags:  []string{"scanmaster", "crop", "completed"},
		}, true
	case EventItemFailed:
		return message{
			title:    "scanmaster - Scan Failed",
			body:     fmt.Sprintf("❌ %s", text(payload, "message")),
			tags:     []string{"scanmaster", "error", "alert"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return message{
			title: "scanmaster - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", number(payload, "count")),
			tags:  []string{"scanmaster", "queue", "started"},
		}, true
	case EventQueueCompleted:
		processed := number(payload, "processed")
		failed := number(payload, "failed")
		duration, _ := payload["duration"].(time.Duration)
		duration = duration.Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		if failed == 0 {
			return message{
				title: "scanmaster - Queue Complete",
				body:  fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, duration),
				tags:  []string{"scanmaster", "queue", "completed"},
			}, true
		}
		return message{
			title: "scanmaster - Queue Complete (with errors)",
			body:  fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:  []string{"scanmaster", "queue", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "scanmaster - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"scanmaster", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func number(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyPublisher) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event, Payload) error { return nil }

// NewNoopPublisher returns a Publisher that drops every event.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

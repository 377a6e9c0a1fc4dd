package testsupport

import (
	"context"
	"testing"
	"time"

	"scanmaster/internal/queue"
)

// AddFileItems registers one file-backed idle item per name and returns them
// in order.
func AddFileItems(t testing.TB, registry *queue.Registry, names ...string) []*queue.Item {
	t.Helper()
	items := make([]*queue.Item, 0, len(names))
	for _, name := range names {
		items = append(items, queue.NewFileItem(name, "image/png", []byte("png:"+name)))
	}
	if err := registry.Add(items...); err != nil {
		t.Fatalf("registry.Add: %v", err)
	}
	return items
}

// WaitForStatus polls until the item reaches status or the timeout elapses.
func WaitForStatus(t testing.TB, registry *queue.Registry, id string, status queue.Status) queue.Item {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if item, ok := registry.Get(id); ok && item.Status == status {
			return item
		}
		time.Sleep(5 * time.Millisecond)
	}
	item, _ := registry.Get(id)
	t.Fatalf("item %s did not reach %s (last status %q)", id, status, item.Status)
	return queue.Item{}
}

// WaitContext returns a context that expires after a generous test deadline.
func WaitContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

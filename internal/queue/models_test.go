package queue_test

import (
	"errors"
	"testing"

	"scanmaster/internal/queue"
)

func TestItemTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []func(*queue.Item) error
		want    queue.Status
		wantErr error
	}{
		{
			name: "combined producer",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.BeginUpload() },
				func(i *queue.Item) error { return i.BeginDetect("ref") },
				func(i *queue.Item) error { return i.Complete([]queue.Result{{Cropped: "c"}}) },
			},
			want: queue.StatusCropped,
		},
		{
			name: "separate producer",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.BeginUpload() },
				func(i *queue.Item) error { return i.BeginDetect("ref") },
				func(i *queue.Item) error { return i.BeginCrop() },
				func(i *queue.Item) error { return i.Complete([]queue.Result{{Cropped: "c"}}) },
			},
			want: queue.StatusCropped,
		},
		{
			name: "detect from idle",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.BeginDetect("ref") },
			},
			want:    queue.StatusIdle,
			wantErr: queue.ErrInvalidTransition,
		},
		{
			name: "fail from idle",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.Fail("nope") },
			},
			want:    queue.StatusIdle,
			wantErr: queue.ErrInvalidTransition,
		},
		{
			name: "complete without results",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.BeginUpload() },
				func(i *queue.Item) error { return i.BeginDetect("ref") },
				func(i *queue.Item) error { return i.Complete(nil) },
			},
			want:    queue.StatusDetecting,
			wantErr: queue.ErrInvariant,
		},
		{
			name: "retry cropped item",
			steps: []func(*queue.Item) error{
				func(i *queue.Item) error { return i.BeginUpload() },
				func(i *queue.Item) error { return i.BeginDetect("ref") },
				func(i *queue.Item) error { return i.Complete([]queue.Result{{Cropped: "c"}}) },
				func(i *queue.Item) error { return i.ResetForRetry() },
			},
			want:    queue.StatusCropped,
			wantErr: queue.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := queue.NewRefItem("a.png", "https://example.com/a.png")
			var err error
			for _, step := range tt.steps {
				if err = step(item); err != nil {
					break
				}
				if verr := item.Validate(); verr != nil {
					t.Fatalf("invariant broken after step: %v", verr)
				}
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if item.Status != tt.want {
				t.Fatalf("status = %s, want %s", item.Status, tt.want)
			}
		})
	}
}

func TestFailThenRetryClearsAttempt(t *testing.T) {
	item := queue.NewFileItem("scan.jpg", "image/jpeg", []byte{0xff, 0xd8})
	if err := item.BeginUpload(); err != nil {
		t.Fatal(err)
	}
	if err := item.BeginDetect("remote-1"); err != nil {
		t.Fatal(err)
	}
	if err := item.Fail(""); err != nil {
		t.Fatal(err)
	}
	if item.ErrorMessage != queue.DefaultFailureMessage {
		t.Fatalf("expected default message, got %q", item.ErrorMessage)
	}
	if err := item.ResetForRetry(); err != nil {
		t.Fatal(err)
	}
	if item.Status != queue.StatusIdle || item.ErrorMessage != "" || item.RemoteRef != "" || len(item.Results) != 0 {
		t.Fatalf("retry did not clear attempt: %+v", item)
	}
	if !item.Source.IsFile() {
		t.Fatal("source must survive retry")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Cropped "); !ok || status != queue.StatusCropped {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("pending"); ok {
		t.Fatal("unknown status must not parse")
	}
	if !queue.StatusError.IsTerminal() || queue.StatusCropping.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}

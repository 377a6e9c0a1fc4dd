package workflow

import (
	"context"
	"time"

	"scanmaster/internal/scanapi"
)

// timeoutClient bounds every backend call with a per-call deadline.
type timeoutClient struct {
	next    scanapi.Client
	timeout time.Duration
}

func withCallTimeout(client scanapi.Client, timeout time.Duration) scanapi.Client {
	if timeout <= 0 {
		return client
	}
	return timeoutClient{next: client, timeout: timeout}
}

func (c timeoutClient) Upload(ctx context.Context, payload scanapi.Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Upload(ctx, payload)
}

func (c timeoutClient) PredictAndCrop(ctx context.Context, refs []string) ([]scanapi.BackendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.PredictAndCrop(ctx, refs)
}

func (c timeoutClient) Detect(ctx context.Context, ref string) (scanapi.Boundary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Detect(ctx, ref)
}

func (c timeoutClient) Crop(ctx context.Context, ref string, boundary scanapi.Boundary) ([]scanapi.BackendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Crop(ctx, ref, boundary)
}

package workflow

import (
	"context"
	"fmt"
	"strings"

	"scanmaster/internal/config"
	"scanmaster/internal/scanapi"
)

// Producer turns an uploaded reference into processed results.
//
// beginCrop is invoked by producers that crop in a separate call, right
// before that call; it returns errItemGone when the item was removed.
type Producer interface {
	Name() string
	Produce(ctx context.Context, client scanapi.Client, ref string, beginCrop func() error) ([]scanapi.BackendResult, error)
}

// CombinedProducer issues one predict-and-crop call.
type CombinedProducer struct{}

func (CombinedProducer) Name() string { return config.ProducerCombined }

func (CombinedProducer) Produce(ctx context.Context, client scanapi.Client, ref string, _ func() error) ([]scanapi.BackendResult, error) {
	return client.PredictAndCrop(ctx, []string{ref})
}

// SeparateProducer detects the boundary first and then crops to it, for
// backends that expose split endpoints. It is the only path into the
// cropping status.
type SeparateProducer struct{}

func (SeparateProducer) Name() string { return config.ProducerSeparate }

func (SeparateProducer) Produce(ctx context.Context, client scanapi.Client, ref string, beginCrop func() error) ([]scanapi.BackendResult, error) {
	boundary, err := client.Detect(ctx, ref)
	if err != nil {
		return nil, err
	}
	if beginCrop != nil {
		if err := beginCrop(); err != nil {
			return nil, err
		}
	}
	return client.Crop(ctx, ref, boundary)
}

// ProducerFor maps a backend.producer setting to its strategy.
func ProducerFor(name string) (Producer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.ProducerCombined:
		return CombinedProducer{}, nil
	case config.ProducerSeparate:
		return SeparateProducer{}, nil
	default:
		return nil, fmt.Errorf("unknown producer %q", name)
	}
}

package runtime

import (
	"context"
	"errors"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
)

// fanout delivers each event to every publisher, so an injected publisher
// does not cut the debug listener's websocket clients off.
type fanout []ports.EventPublisher

func (f fanout) Publish(ctx context.Context, event *domain.AssetEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ ports.EventPublisher = fanout(nil)

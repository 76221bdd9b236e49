package ports

import (
	"context"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/domain"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// EventPublisher fans asset events out to interested clients.
// Implementations: the debug listener's websocket hub.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.AssetEvent) error
	Close() error
}

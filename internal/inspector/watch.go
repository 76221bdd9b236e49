package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/assetd/internal/core/domain"
)

// Publisher receives asset events.
type Publisher interface {
	Publish(ctx context.Context, event *domain.AssetEvent) error
}

// WatchedAsset is one template source the watcher reports on.
type WatchedAsset struct {
	Asset  string
	Route  string
	Source string
}

// SourceWatcher turns filesystem events on template sources into asset
// events. Directories are watched rather than files so that editors which
// replace a file on save keep being tracked.
type SourceWatcher struct {
	watcher *fsnotify.Watcher
	assets  map[string]WatchedAsset // keyed by absolute source path
	pub     Publisher
	logger  *slog.Logger
}

// NewSourceWatcher starts watching the directories holding each source.
func NewSourceWatcher(assets []WatchedAsset, pub Publisher, logger *slog.Logger) (*SourceWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	sw := &SourceWatcher{
		watcher: w,
		assets:  make(map[string]WatchedAsset, len(assets)),
		pub:     pub,
		logger:  logger,
	}

	dirs := make(map[string]struct{})
	for _, a := range assets {
		abs, err := filepath.Abs(a.Source)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("resolve %s: %w", a.Source, err)
		}
		sw.assets[abs] = a
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return sw, nil
}

// Run forwards events until ctx is cancelled or the watcher is closed.
func (sw *SourceWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(ctx, event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("source watcher error", slog.String("error", err.Error()))
		}
	}
}

func (sw *SourceWatcher) handle(ctx context.Context, event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	asset, ok := sw.assets[abs]
	if !ok {
		return
	}

	var typ domain.AssetEventType
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		typ = domain.AssetEventChanged
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		typ = domain.AssetEventRemoved
	default:
		return
	}

	err = sw.pub.Publish(ctx, &domain.AssetEvent{
		Type:      typ,
		Asset:     asset.Asset,
		Route:     asset.Route,
		Source:    asset.Source,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		sw.logger.Warn("failed to publish asset event",
			slog.String("source", asset.Source),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops watching.
func (sw *SourceWatcher) Close() error {
	return sw.watcher.Close()
}

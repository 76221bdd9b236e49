// Package storage opens the compilation journal backend selected in config.
package storage

import (
	"fmt"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/storage/memory"
	"github.com/tjfontaine/assetd/internal/storage/sqlite"
)

// Re-export journal types from core/ports.
type (
	JournalStore       = ports.JournalStore
	JournalListOptions = ports.JournalListOptions
)

// New opens the configured journal. It returns nil, nil for journal.type none.
func New(cfg config.JournalConfig) (JournalStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.Capacity), nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

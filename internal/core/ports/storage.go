package ports

import (
	"context"

	"github.com/tjfontaine/assetd/internal/core/domain"
)

// JournalStore persists compilation records.
// Implementations: bounded in-memory ring (default), SQLite.
type JournalStore interface {
	// Save appends a record. ID and CreatedAt are filled in when empty.
	Save(ctx context.Context, rec *domain.CompilationRecord) error

	// Get returns the record with id, or domain.ErrRecordNotFound.
	Get(ctx context.Context, id string) (*domain.CompilationRecord, error)

	// List returns records newest first.
	List(ctx context.Context, opts JournalListOptions) ([]*domain.CompilationRecord, error)

	// Close releases the underlying storage.
	Close() error
}

// Re-exported so journal callers need only this package.
type JournalListOptions = domain.JournalListOptions

const DefaultJournalLimit = domain.DefaultJournalLimit

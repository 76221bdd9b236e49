package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Store is a bounded in-memory journal. Once full, each Save evicts the
// oldest record.
type Store struct {
	mu       sync.RWMutex
	capacity int
	records  []*domain.CompilationRecord // oldest first
	byID     map[string]*domain.CompilationRecord
}

var _ ports.JournalStore = (*Store)(nil)

// New creates an in-memory journal holding at most capacity records.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		records:  make([]*domain.CompilationRecord, 0, capacity),
		byID:     make(map[string]*domain.CompilationRecord, capacity),
	}
}

func (s *Store) Save(ctx context.Context, rec *domain.CompilationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	stored := clone(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == s.capacity {
		delete(s.byID, s.records[0].ID)
		s.records[0] = nil
		s.records = s.records[1:]
	}
	s.records = append(s.records, stored)
	s.byID[stored.ID] = stored

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.CompilationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (s *Store) List(ctx context.Context, opts ports.JournalListOptions) ([]*domain.CompilationRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultJournalLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CompilationRecord, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		rec := s.records[i]
		if opts.Asset != "" && rec.Asset != opts.Asset {
			continue
		}
		result = append(result, clone(rec))
	}
	return result, nil
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error {
	return nil
}

func clone(rec *domain.CompilationRecord) *domain.CompilationRecord {
	c := *rec
	c.Stages = append([]domain.StageOutcome(nil), rec.Stages...)
	return &c
}

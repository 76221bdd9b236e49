package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
)

// Store is a SQLite implementation of JournalStore.
type Store struct {
	db *sqlx.DB
}

var _ ports.JournalStore = (*Store)(nil)

// New opens (and creates, if needed) the journal database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS compilations (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			asset TEXT NOT NULL,
			route TEXT NOT NULL,
			source TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			stages TEXT NOT NULL,
			output_bytes INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_compilations_asset ON compilations(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_compilations_created ON compilations(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// row is the column layout of the compilations table.
type row struct {
	ID          string         `db:"id"`
	RequestID   sql.NullString `db:"request_id"`
	Asset       string         `db:"asset"`
	Route       string         `db:"route"`
	Source      string         `db:"source"`
	Degraded    bool           `db:"degraded"`
	Stages      string         `db:"stages"`
	OutputBytes int            `db:"output_bytes"`
	DurationNS  int64          `db:"duration_ns"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *row) record() (*domain.CompilationRecord, error) {
	rec := &domain.CompilationRecord{
		ID:          r.ID,
		RequestID:   r.RequestID.String,
		Asset:       r.Asset,
		Route:       r.Route,
		Source:      r.Source,
		Degraded:    r.Degraded,
		OutputBytes: r.OutputBytes,
		Duration:    time.Duration(r.DurationNS),
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Stages), &rec.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}
	return rec, nil
}

const selectColumns = `SELECT id, request_id, asset, route, source, degraded, stages,
	output_bytes, duration_ns, created_at FROM compilations`

func (s *Store) Save(ctx context.Context, rec *domain.CompilationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	var requestID sql.NullString
	if rec.RequestID != "" {
		requestID = sql.NullString{String: rec.RequestID, Valid: true}
	}

	query := `INSERT INTO compilations (
		id, request_id, asset, route, source, degraded, stages, output_bytes, duration_ns, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, requestID, rec.Asset, rec.Route, rec.Source, rec.Degraded,
		string(stages), rec.OutputBytes, int64(rec.Duration), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save compilation: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.CompilationRecord, error) {
	var r row
	err := s.db.GetContext(ctx, &r, selectColumns+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compilation: %w", err)
	}
	return r.record()
}

func (s *Store) List(ctx context.Context, opts ports.JournalListOptions) ([]*domain.CompilationRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultJournalLimit
	}

	query := selectColumns
	args := []any{}
	if opts.Asset != "" {
		query += ` WHERE asset = ?`
		args = append(args, opts.Asset)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list compilations: %w", err)
	}

	result := make([]*domain.CompilationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

package domain

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned by journal lookups for an unknown id.
var ErrRecordNotFound = errors.New("compilation record not found")

// StageStatus tags the outcome of a single stage.
type StageStatus string

const (
	// StatusOK means the stage's output was used.
	StatusOK StageStatus = "ok"
	// StatusDegraded means the stage failed and its input was passed through.
	StatusDegraded StageStatus = "degraded"
)

// StageOutcome records how one stage went.
type StageOutcome struct {
	Stage    string        `json:"stage"`
	Status   StageStatus   `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// CompilationRecord describes one compiled request. It is a log entry, not a
// cache: the compiled output itself is never stored.
type CompilationRecord struct {
	ID          string         `json:"id"`
	RequestID   string         `json:"request_id,omitempty"`
	Asset       string         `json:"asset"`
	Route       string         `json:"route"`
	Source      string         `json:"source"`
	Degraded    bool           `json:"degraded"`
	Stages      []StageOutcome `json:"stages"`
	OutputBytes int            `json:"output_bytes"`
	Duration    time.Duration  `json:"duration_ns"`
	CreatedAt   time.Time      `json:"created_at"`
}

// JournalListOptions filters journal listings.
type JournalListOptions struct {
	Asset string // empty matches every asset kind
	Limit int    // <= 0 selects DefaultJournalLimit
}

// DefaultJournalLimit is the page size used when none is given.
const DefaultJournalLimit = 50

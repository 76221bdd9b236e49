// Package ports defines the core interfaces of the asset server.
// This file contains the transform stage interfaces.
package ports

import (
	"context"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// AssetKind identifies which stage chain compiles an asset.
type AssetKind string

const (
	// AssetScript is compiled template -> transpile -> minify.
	AssetScript AssetKind = "script"
	// AssetStyle is compiled template -> stylesheet compile.
	AssetStyle AssetKind = "style"
)

// ContentType returns the response content type for the asset kind.
func (k AssetKind) ContentType() string {
	switch k {
	case AssetScript:
		return "text/javascript"
	case AssetStyle:
		return "text/css"
	default:
		return "text/plain"
	}
}

// Stage is one text-to-text transform. Implementations must not retain or
// mutate the render context; the same Stage value serves concurrent requests.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Process transforms in. On error the returned text is ignored.
	Process(ctx context.Context, in string, rc rendercontext.Context) (string, error)
}

// Stage outcome types live in domain so the journal can store them.
type (
	StageStatus  = domain.StageStatus
	StageOutcome = domain.StageOutcome
)

const (
	StatusOK       = domain.StatusOK
	StatusDegraded = domain.StatusDegraded
)

// PipelineResult is the compiled artifact plus the per-stage outcomes.
type PipelineResult struct {
	Text        string
	ContentType string
	Outcomes    []StageOutcome
}

// Degraded reports whether any stage fell back to pass-through.
func (r *PipelineResult) Degraded() bool {
	return len(r.DegradedStages()) > 0
}

// DegradedStages lists the failed stages in execution order.
func (r *PipelineResult) DegradedStages() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Status == StatusDegraded {
			names = append(names, o.Stage)
		}
	}
	return names
}

// PipelineExecutor runs an ordered stage chain.
type PipelineExecutor interface {
	// Run never fails: every stage error degrades to pass-through.
	Run(ctx context.Context, text string, rc rendercontext.Context) *PipelineResult
}

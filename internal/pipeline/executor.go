package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

const tracerName = "github.com/tjfontaine/assetd/internal/pipeline"

// Executor runs an ordered list of stages for one asset kind.
// It holds no per-request state and is safe for concurrent use.
type Executor struct {
	kind   ports.AssetKind
	stages []ports.Stage
	logger *slog.Logger
}

// ExecutorConfig configures an executor.
type ExecutorConfig struct {
	Kind   ports.AssetKind
	Stages []StageConfig
	Logger *slog.Logger
}

// StageConfig is the configuration for a single stage.
type StageConfig struct {
	Name  string
	Order int
	Stage ports.Stage
}

// NewExecutor creates an executor from configuration. Stages run in ascending
// Order; equal orders keep their configured position.
func NewExecutor(cfg ExecutorConfig) *Executor {
	stages := append([]StageConfig(nil), cfg.Stages...)
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		kind:   cfg.Kind,
		stages: make([]ports.Stage, len(stages)),
		logger: logger,
	}
	for i, s := range stages {
		e.stages[i] = s.Stage
	}

	return e
}

// Kind returns the asset kind this executor compiles.
func (e *Executor) Kind() ports.AssetKind {
	return e.kind
}

// StageNames returns the stage names in execution order.
func (e *Executor) StageNames() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes all stages in order. A failing stage is logged and its input
// is handed unchanged to the next stage, so Run always produces a result.
func (e *Executor) Run(ctx context.Context, text string, rc rendercontext.Context) *ports.PipelineResult {
	result := &ports.PipelineResult{
		ContentType: e.kind.ContentType(),
		Outcomes:    make([]ports.StageOutcome, 0, len(e.stages)),
	}

	tracer := otel.Tracer(tracerName)
	logger := loggerFrom(ctx, e.logger)

	current := text
	for _, stage := range e.stages {
		stageCtx, span := tracer.Start(ctx, "stage."+stage.Name())
		span.SetAttributes(
			attribute.String("asset", string(e.kind)),
			attribute.Int("input_bytes", len(current)),
		)

		start := time.Now()
		out, err := process(stageCtx, stage, current, rc)
		outcome := ports.StageOutcome{
			Stage:    stage.Name(),
			Status:   ports.StatusOK,
			Duration: time.Since(start),
		}

		if err != nil {
			outcome.Status = ports.StatusDegraded
			outcome.Error = err.Error()

			span.RecordError(err)
			span.SetStatus(codes.Error, "stage degraded")
			logger.LogAttrs(ctx, slog.LevelWarn, "stage failed, passing input through",
				slog.String("asset", string(e.kind)),
				slog.String("stage", stage.Name()),
				slog.String("error", err.Error()),
			)
		} else {
			current = out
		}

		span.SetAttributes(attribute.Bool("degraded", err != nil))
		span.End()

		result.Outcomes = append(result.Outcomes, outcome)
	}

	result.Text = current
	return result
}

// process calls the stage, converting a panic into a StageError.
func process(ctx context.Context, stage ports.Stage, in string, rc rendercontext.Context) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = stage.Process(ctx, in, rc)
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			err = &StageError{Stage: stage.Name(), Cause: err}
		}
	}
	return out, err
}

// StageError is the error recorded when a stage fails.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// IsStageError returns true if err is, or wraps, a StageError.
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

type loggerKey struct{}

// WithLogger attaches a request-scoped logger that Run uses for stage failures.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// Ensure Executor implements the interface.
var _ ports.PipelineExecutor = (*Executor)(nil)

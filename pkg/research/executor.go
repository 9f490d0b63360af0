package research

import (
	"context"
	"fmt"
	"time"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// StepExecutor runs single plan steps against the tool registry. Every
// failure is reported inside the Finding; Execute never returns an error.
type StepExecutor struct {
	registry *tools.Registry
	logger   zerolog.Logger
}

// NewStepExecutor creates an executor over the given registry.
func NewStepExecutor(registry *tools.Registry) (*StepExecutor, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	return &StepExecutor{
		registry: registry,
		logger:   log.With().Str("component", "executor").Logger(),
	}, nil
}

// Execute runs one step and returns its Finding.
func (e *StepExecutor) Execute(ctx context.Context, step PlanStep) Finding {
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.research",
		"research.execute_step",
		attribute.String("tool", step.Tool),
		attribute.Int("step_index", step.Index),
	)
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, e.logger)

	if step.Tool == "" || step.Query == "" {
		return Finding{
			Step:  step,
			Error: "Invalid step: missing tool or query",
		}
	}

	tool, ok := e.registry.Resolve(step.Tool)
	if !ok {
		logger.Warn().Str("tool", step.Tool).Msg("Plan step names an unknown tool")
		return Finding{
			Step:  step,
			Error: fmt.Sprintf("Unknown tool: %s", step.Tool),
		}
	}

	start := time.Now()
	output, err := tool.Invoke(ctx, step.Query)
	observability.RecordToolExecution(tool.Name(), time.Since(start), err == nil)

	if err != nil {
		logger.Warn().
			Str("tool", step.Tool).
			Err(err).
			Msg("Step execution failed")
		return Finding{
			Step:   step,
			Error:  err.Error(),
			Output: fmt.Sprintf("Error using %s: %v", step.Tool, err),
		}
	}

	logger.Debug().
		Str("tool", step.Tool).
		Int("step_index", step.Index).
		Msg("Step executed")

	return Finding{
		Step:    step,
		Success: true,
		Output:  output,
	}
}

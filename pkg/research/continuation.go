package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxIterations bounds executed research steps per query.
const DefaultMaxIterations = 5

// Keyword sets scoring the continuation response. Continue wins only on a
// strictly higher score; ties stop.
var (
	continueKeywords = []string{"continue", "proceed", "more research", "additional"}
	stopKeywords     = []string{"sufficient", "enough", "synthesize", "conclude"}
)

// ContinuationPolicy decides whether the pipeline executes another step or
// moves to synthesis.
type ContinuationPolicy struct {
	generator     llm.Generator
	library       *prompts.Library
	maxIterations int
	logger        zerolog.Logger
}

// NewContinuationPolicy creates a policy bounded by maxIterations.
func NewContinuationPolicy(generator llm.Generator, library *prompts.Library, maxIterations int) (*ContinuationPolicy, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if library == nil {
		library = prompts.NewLibrary()
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &ContinuationPolicy{
		generator:     generator,
		library:       library,
		maxIterations: maxIterations,
		logger:        log.With().Str("component", "continuation").Logger(),
	}, nil
}

// MaxIterations returns the configured bound.
func (c *ContinuationPolicy) MaxIterations() int {
	return c.maxIterations
}

// ShouldContinue applies the continuation rules in order: the iteration
// bound, plan exhaustion, the two-findings evidence floor, then a single
// generation call scored by keywords.
func (c *ContinuationPolicy) ShouldContinue(ctx context.Context, query string, completed []PlanStep, findings []Finding, remaining []PlanStep, iteration int) bool {
	if iteration >= c.maxIterations {
		return false
	}
	if len(remaining) == 0 {
		return false
	}

	var successful []Finding
	for _, f := range findings {
		if f.Success {
			successful = append(successful, f)
		}
	}
	if len(successful) < 2 {
		return true
	}

	completedDesc := make([]string, 0, len(completed))
	for _, step := range completed {
		completedDesc = append(completedDesc, fmt.Sprintf("%s using %s", step.Action, step.Tool))
	}
	findingsSummary := make([]string, 0, len(successful))
	for _, f := range successful {
		findingsSummary = append(findingsSummary, fmt.Sprintf("%s: Found relevant information", f.Step.Tool))
	}

	prompt := c.library.Render(prompts.NameIteration, map[string]string{
		"query":           query,
		"completed_steps": strings.Join(completedDesc, "\n"),
		"findings":        strings.Join(findingsSummary, "\n"),
		"remaining_plan":  fmt.Sprintf("%d steps remaining", len(remaining)),
	})

	logger := tracing.PropagateToLogger(ctx, c.logger)

	response, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("Continuation check failed, stopping research")
		return false
	}

	responseLower := strings.ToLower(response)
	continueScore := 0
	for _, kw := range continueKeywords {
		if strings.Contains(responseLower, kw) {
			continueScore++
		}
	}
	stopScore := 0
	for _, kw := range stopKeywords {
		if strings.Contains(responseLower, kw) {
			stopScore++
		}
	}

	logger.Debug().
		Int("continue_score", continueScore).
		Int("stop_score", stopScore).
		Int("iteration", iteration).
		Msg("Continuation scored")

	return continueScore > stopScore
}

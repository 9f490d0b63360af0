// Package react runs the Think-Act-Observe interpreter loop over a
// generation capability and a tool registry.
//
// Each iteration renders the react prompt with the accumulated scratchpad,
// generates one completion, and parses it. Actions invoke a tool and feed
// the observation back into the scratchpad; a final answer terminates the
// loop; unparseable output feeds a corrective instruction back instead.
// The loop is bounded: when the iteration budget runs out without a final
// answer, it stops with a fixed fallback message and returns everything
// gathered so far.
//
// Invariants:
// - Exactly one generation call per iteration.
// - Tool invocations are sequential; observations join the scratchpad in
//   execution order.
// - Unknown tool names produce an observation, never an error.
// - The returned Result always carries every recorded step, forced or not.
package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/parser"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/aksel/sage/pkg/session"
	"github.com/aksel/sage/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// ForcedStopMessage is returned as the answer when the iteration budget
	// is exhausted before a final answer.
	ForcedStopMessage = "Agent stopped due to iteration limit or time limit."

	// correctiveInstruction is fed back as an observation when a completion
	// could not be parsed.
	correctiveInstruction = "Invalid response format. Please follow the proper format: either provide Thought/Action/Action Input to use a tool, or Thought/Final Answer to finish."

	DefaultMaxIterations = 5
	DefaultContextWindow = 5
)

// Detail entry types.
const (
	TypeAction      = "action"
	TypeFinalAnswer = "final_answer"
	TypeParseError  = "parse_error"
)

// Config bounds a Loop.
type Config struct {
	MaxIterations int
	ContextWindow int
}

// Step is one completed tool invocation.
type Step struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// DetailEntry records one iteration of the loop for transparency.
type DetailEntry struct {
	Iteration   int    `json:"iteration"`
	Thought     string `json:"thought,omitempty"`
	Type        string `json:"type"`
	Tool        string `json:"tool,omitempty"`
	Input       string `json:"input,omitempty"`
	Observation string `json:"observation,omitempty"`
	Answer      string `json:"answer,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result is the outcome of one loop run.
type Result struct {
	Answer string        `json:"answer"`
	Steps  []Step        `json:"steps"`
	Detail []DetailEntry `json:"detail"`
	Forced bool          `json:"forced"`
}

// Loop is the interpreter. Construct with NewLoop.
type Loop struct {
	generator llm.Generator
	registry  *tools.Registry
	library   *prompts.Library
	cfg       Config
	logger    zerolog.Logger
}

// NewLoop creates an interpreter loop over the given generator and tools.
func NewLoop(generator llm.Generator, registry *tools.Registry, library *prompts.Library, cfg Config) (*Loop, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if library == nil {
		library = prompts.NewLibrary()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}

	return &Loop{
		generator: generator,
		registry:  registry,
		library:   library,
		cfg:       cfg,
		logger:    log.With().Str("component", "react").Logger(),
	}, nil
}

// Run executes the loop for one query. History entries beyond the context
// window are dropped; the most recent entries are kept.
func (l *Loop) Run(ctx context.Context, query string, history []session.ConversationEntry) (*Result, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.react",
		"react.run",
		attribute.Int("max_iterations", l.cfg.MaxIterations),
	)
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, l.logger)

	input := l.composeInput(query, history)
	toolDescriptions := l.registry.Describe()
	toolNames := strings.Join(l.registry.Names(), ", ")

	result := &Result{}
	scratchpad := ""

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		prompt := l.library.Render(prompts.NameReact, map[string]string{
			"input":      input,
			"tools":      toolDescriptions,
			"tool_names": toolNames,
			"scratchpad": scratchpad,
		})

		raw, err := l.generator.Generate(ctx, prompt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("generation failed on iteration %d: %w", iteration, err)
		}

		output := parser.Parse(raw)

		switch output.Kind {
		case parser.KindFinalAnswer:
			result.Answer = output.Answer
			result.Detail = append(result.Detail, DetailEntry{
				Iteration: iteration,
				Thought:   output.Thought,
				Type:      TypeFinalAnswer,
				Answer:    output.Answer,
			})

			logger.Debug().
				Int("iteration", iteration).
				Int("steps", len(result.Steps)).
				Msg("Final answer reached")

			return result, nil

		case parser.KindAction:
			observation := l.invokeTool(ctx, output.Tool, output.Input)

			result.Steps = append(result.Steps, Step{
				Tool:   output.Tool,
				Input:  output.Input,
				Output: observation,
			})
			result.Detail = append(result.Detail, DetailEntry{
				Iteration:   iteration,
				Thought:     output.Thought,
				Type:        TypeAction,
				Tool:        output.Tool,
				Input:       output.Input,
				Observation: observation,
			})

			logger.Debug().
				Int("iteration", iteration).
				Str("tool", output.Tool).
				Msg("Tool invoked")

			scratchpad += raw + "\nObservation: " + observation + "\nThought: "

		default:
			observability.RecordParseFailure()

			result.Detail = append(result.Detail, DetailEntry{
				Iteration: iteration,
				Type:      TypeParseError,
				Error:     output.Reason,
			})

			logger.Warn().
				Int("iteration", iteration).
				Str("reason", output.Reason).
				Msg("Unparseable completion, correcting")

			scratchpad += raw + "\nObservation: " + correctiveInstruction + "\nThought: "
		}
	}

	observability.RecordForcedFinish()
	span.SetAttributes(attribute.Bool("forced", true))

	logger.Warn().
		Int("iterations", l.cfg.MaxIterations).
		Int("steps", len(result.Steps)).
		Msg("Iteration budget exhausted")

	result.Answer = ForcedStopMessage
	result.Forced = true
	return result, nil
}

// composeInput prefixes the query with the windowed conversation history.
func (l *Loop) composeInput(query string, history []session.ConversationEntry) string {
	if len(history) == 0 {
		return query
	}
	if len(history) > l.cfg.ContextWindow {
		history = history[len(history)-l.cfg.ContextWindow:]
	}

	var b strings.Builder
	b.WriteString("\nConversation History:\n")
	for _, entry := range history {
		b.WriteString("User: " + entry.Query + "\n")
		b.WriteString("Assistant: " + entry.Response + "\n\n")
	}
	b.WriteString("Current Query:\n")
	b.WriteString(query)
	return b.String()
}

// invokeTool resolves and runs a tool, converting every failure into an
// observation string so the loop keeps running.
func (l *Loop) invokeTool(ctx context.Context, name, input string) string {
	tool, ok := l.registry.Resolve(name)
	if !ok {
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", name, strings.Join(l.registry.Names(), ", "))
	}

	start := time.Now()
	output, err := tool.Invoke(ctx, input)
	observability.RecordToolExecution(tool.Name(), time.Since(start), err == nil)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return output
}

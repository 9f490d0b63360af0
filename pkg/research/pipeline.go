package research

import (
	"context"
	"fmt"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/graph"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/aksel/sage/pkg/session"
	"github.com/aksel/sage/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Node and route names of the research graph.
const (
	nodePlanner     = "planner"
	nodeExecutor    = "executor"
	nodeSynthesizer = "synthesizer"
)

// state threads the research run through the graph. One value per run,
// never shared.
type state struct {
	query    string
	history  []session.ConversationEntry
	plan     []PlanStep
	executed []PlanStep
	findings []Finding

	iteration    int
	continueFlag bool

	answer string
	errMsg string
}

// Result is the outcome of one research run.
type Result struct {
	Answer    string     `json:"answer"`
	Plan      []PlanStep `json:"plan"`
	Findings  []Finding  `json:"findings"`
	Completed int        `json:"completed_steps"`
	Total     int        `json:"total_steps"`
	Error     string     `json:"error,omitempty"`
}

// Pipeline is the compiled research strategy: plan once, execute one step
// per graph tick while the policy allows, then synthesize.
type Pipeline struct {
	planner     *Planner
	executor    *StepExecutor
	policy      *ContinuationPolicy
	synthesizer *Synthesizer
	runner      *graph.Runner[*state]
	logger      zerolog.Logger
}

// NewPipeline wires the research components into their graph.
func NewPipeline(generator llm.Generator, registry *tools.Registry, library *prompts.Library, maxIterations int) (*Pipeline, error) {
	planner, err := NewPlanner(generator, library)
	if err != nil {
		return nil, err
	}
	executor, err := NewStepExecutor(registry)
	if err != nil {
		return nil, err
	}
	policy, err := NewContinuationPolicy(generator, library, maxIterations)
	if err != nil {
		return nil, err
	}
	synthesizer, err := NewSynthesizer(generator, library)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		planner:     planner,
		executor:    executor,
		policy:      policy,
		synthesizer: synthesizer,
		logger:      log.With().Str("component", "research").Logger(),
	}

	g := graph.New[*state]()
	if err := g.AddNode(nodePlanner, p.planNode); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeExecutor, p.executeNode); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeSynthesizer, p.synthesizeNode); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodePlanner, nodeExecutor); err != nil {
		return nil, err
	}
	if err := g.AddConditionalEdge(nodeExecutor, p.continueDecision, map[string]string{
		nodeExecutor:    nodeExecutor,
		nodeSynthesizer: nodeSynthesizer,
	}); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeSynthesizer, graph.END); err != nil {
		return nil, err
	}
	g.SetEntryPoint(nodePlanner)

	runner, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile research graph: %w", err)
	}
	p.runner = runner

	return p, nil
}

// Run conducts research for one query. Strategy-level failures land in
// Result.Error; the returned error is reserved for cancellation and other
// engine-level aborts.
func (p *Pipeline) Run(ctx context.Context, query string, history []session.ConversationEntry) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "sage.research", "research.run")
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, p.logger)

	st := &state{
		query:        query,
		history:      history,
		continueFlag: true,
	}

	st, err := p.runner.Run(ctx, st)
	if err != nil {
		return nil, err
	}

	observability.ObserveResearch(len(st.plan), len(st.executed))
	span.SetAttributes(
		attribute.Int("planned_steps", len(st.plan)),
		attribute.Int("executed_steps", len(st.executed)),
	)

	logger.Info().
		Int("planned_steps", len(st.plan)).
		Int("executed_steps", len(st.executed)).
		Msg("Research completed")

	return &Result{
		Answer:    st.answer,
		Plan:      st.plan,
		Findings:  st.findings,
		Completed: len(st.executed),
		Total:     len(st.plan),
		Error:     st.errMsg,
	}, nil
}

func (p *Pipeline) planNode(ctx context.Context, st *state) (*state, error) {
	st.plan = p.planner.CreatePlan(ctx, st.query, st.history)
	st.iteration = 0
	st.continueFlag = len(st.plan) > 0
	return st, nil
}

// executeNode runs exactly one plan step per tick; the conditional edge
// loops back here while the policy allows.
func (p *Pipeline) executeNode(ctx context.Context, st *state) (*state, error) {
	next := len(st.executed)
	if next >= len(st.plan) {
		st.continueFlag = false
		return st, nil
	}

	step := st.plan[next]
	finding := p.executor.Execute(ctx, step)

	st.executed = append(st.executed, step)
	st.findings = append(st.findings, finding)
	st.iteration++

	cont := p.policy.ShouldContinue(ctx, st.query, st.executed, st.findings, st.plan[next+1:], st.iteration)
	st.continueFlag = cont && st.iteration < p.policy.MaxIterations()

	return st, nil
}

func (p *Pipeline) synthesizeNode(ctx context.Context, st *state) (*state, error) {
	answer, err := p.synthesizer.Synthesize(ctx, st.query, st.findings, st.history)
	if err != nil {
		st.answer = fmt.Sprintf("Research failed: %v", err)
		st.errMsg = err.Error()
		st.continueFlag = false
		return st, nil
	}

	st.answer = answer
	st.continueFlag = false
	return st, nil
}

func (p *Pipeline) continueDecision(ctx context.Context, st *state) string {
	if st.continueFlag {
		return nodeExecutor
	}
	return nodeSynthesizer
}

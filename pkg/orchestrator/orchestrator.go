// Package orchestrator wires the router and the two answer strategies into
// the top-level query graph and owns the conversation session.
//
// One query flows router -> (general | research) -> END. The router never
// fails, strategy failures degrade into the result's Error field, and each
// completed query appends exactly one entry to the session. RunQuery
// returns a Go error only for cancellation and other engine-level aborts.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/graph"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/aksel/sage/pkg/react"
	"github.com/aksel/sage/pkg/research"
	"github.com/aksel/sage/pkg/router"
	"github.com/aksel/sage/pkg/session"
	"github.com/aksel/sage/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Node names of the top-level graph.
const (
	nodeRouter   = "router"
	nodeGeneral  = "general"
	nodeResearch = "research"
)

// Message roles recorded in GraphState.Messages.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Message is one transcript line accumulated while a query runs.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Step is one completed tool invocation, normalized across strategies.
type Step struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// GraphState threads one query through the top-level graph. Created fresh
// per query and owned by that run exclusively.
type GraphState struct {
	Query     string
	Route     string
	Reasoning string
	Messages  []Message
	Response  string
	Steps     []Step
	Error     string

	// history is the session snapshot taken when the query started, so
	// every node sees the same context.
	history []session.ConversationEntry
}

// Result is the outcome of one query.
type Result struct {
	Query     string `json:"query"`
	Route     string `json:"route"`
	Reasoning string `json:"reasoning"`
	Answer    string `json:"answer"`
	Steps     []Step `json:"steps"`
	Error     string `json:"error,omitempty"`
}

// Config assembles an Orchestrator.
type Config struct {
	Generator llm.Generator
	Registry  *tools.Registry
	Library   *prompts.Library

	// Session supplies history context to every strategy and receives one
	// ConversationEntry per completed query.
	Session *session.Session

	// Observer, when set, receives progress events.
	Observer Observer

	// MaxIterations bounds the general strategy loop; zero keeps the
	// react default.
	MaxIterations int

	// ResearchMaxIterations bounds the research pipeline; zero keeps the
	// research default.
	ResearchMaxIterations int
}

// Orchestrator answers queries. Construct with New.
type Orchestrator struct {
	router   *router.Router
	general  *react.Loop
	research *research.Pipeline
	session  *session.Session
	observer Observer
	runner   *graph.Runner[*GraphState]
	logger   zerolog.Logger
}

// New builds the top-level query graph over the given generator, tools and
// session.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if cfg.Library == nil {
		cfg.Library = prompts.NewLibrary()
	}

	rtr, err := router.New(cfg.Generator, cfg.Library)
	if err != nil {
		return nil, err
	}
	general, err := react.NewLoop(cfg.Generator, cfg.Registry, cfg.Library, react.Config{
		MaxIterations: cfg.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := research.NewPipeline(cfg.Generator, cfg.Registry, cfg.Library, cfg.ResearchMaxIterations)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		router:   rtr,
		general:  general,
		research: pipeline,
		session:  cfg.Session,
		observer: cfg.Observer,
		logger:   log.With().Str("component", "orchestrator").Logger(),
	}

	g := graph.New[*GraphState]()
	if err := g.AddNode(nodeRouter, o.routeNode); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeGeneral, o.generalNode); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeResearch, o.researchNode); err != nil {
		return nil, err
	}
	if err := g.AddConditionalEdge(nodeRouter, o.routeDecision, map[string]string{
		router.RouteGeneral:  nodeGeneral,
		router.RouteResearch: nodeResearch,
	}); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeGeneral, graph.END); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeResearch, graph.END); err != nil {
		return nil, err
	}
	g.SetEntryPoint(nodeRouter)

	runner, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile query graph: %w", err)
	}
	o.runner = runner

	return o, nil
}

// RunQuery answers one query end to end: route it, run the chosen strategy,
// record the exchange. Strategy failures degrade into Result.Error; the
// returned error is reserved for cancellation and other engine-level aborts.
func (o *Orchestrator) RunQuery(ctx context.Context, query string) (*Result, error) {
	ctx = tracing.NewQueryContext(ctx, o.session.Key())
	ctx, span := tracing.StartSpan(ctx, "sage.orchestrator", "orchestrator.run_query")
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, o.logger)

	start := time.Now()
	st := &GraphState{
		Query:   query,
		Route:   router.RouteGeneral,
		history: o.session.History(),
	}

	st, err := o.runner.Run(ctx, st)
	if err != nil {
		observability.RecordQuery(st.Route, time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	observability.RecordQuery(st.Route, time.Since(start), st.Error == "")
	span.SetAttributes(
		attribute.String("route", st.Route),
		attribute.Int("steps", len(st.Steps)),
	)

	if err := o.session.Append(ctx, session.NewEntry(query, st.Response, st.Route, st.Reasoning)); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist conversation entry")
	}

	for _, s := range st.Steps {
		step := s
		o.emit(ctx, Event{Type: EventStepExecuted, Route: st.Route, Step: &step})
	}
	o.emit(ctx, Event{Type: EventAnswerReady, Route: st.Route, Answer: st.Response, Error: st.Error})

	logger.Info().
		Str("route", st.Route).
		Int("steps", len(st.Steps)).
		Bool("success", st.Error == "").
		Dur("duration", time.Since(start)).
		Msg("Query completed")

	return &Result{
		Query:     query,
		Route:     st.Route,
		Reasoning: st.Reasoning,
		Answer:    st.Response,
		Steps:     st.Steps,
		Error:     st.Error,
	}, nil
}

// History returns the conversation entries accumulated so far.
func (o *Orchestrator) History() []session.ConversationEntry {
	return o.session.History()
}

// ClearHistory discards the conversation, in memory and in the store.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	return o.session.Clear(ctx)
}

// HistorySummary renders the conversation for display.
func (o *Orchestrator) HistorySummary() string {
	return o.session.Summary()
}

func (o *Orchestrator) routeNode(ctx context.Context, st *GraphState) (*GraphState, error) {
	if n := len(st.Messages); n == 0 || st.Messages[n-1].Content != st.Query {
		st.Messages = append(st.Messages, Message{Role: roleUser, Content: st.Query})
	}

	decision := o.router.Route(ctx, st.Query, st.history)
	st.Route = decision.Route
	st.Reasoning = decision.Reasoning

	o.emit(ctx, Event{Type: EventRouteDecided, Query: st.Query, Route: st.Route, Reasoning: st.Reasoning})
	return st, nil
}

func (o *Orchestrator) routeDecision(ctx context.Context, st *GraphState) string {
	return st.Route
}

func (o *Orchestrator) generalNode(ctx context.Context, st *GraphState) (*GraphState, error) {
	result, err := o.general.Run(ctx, st.Query, st.history)
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Response = fmt.Sprintf("I encountered an error: %v", err)
		st.Error = err.Error()
		st.Messages = append(st.Messages, Message{Role: roleAssistant, Content: st.Response})
		return st, nil
	}

	st.Response = result.Answer
	st.Steps = reactSteps(result.Steps)
	st.Messages = append(st.Messages, Message{Role: roleAssistant, Content: st.Response})
	return st, nil
}

func (o *Orchestrator) researchNode(ctx context.Context, st *GraphState) (*GraphState, error) {
	result, err := o.research.Run(ctx, st.Query, st.history)
	if err != nil {
		return st, err
	}

	st.Response = result.Answer
	st.Error = result.Error
	st.Steps = findingSteps(result.Findings)
	st.Messages = append(st.Messages, Message{Role: roleAssistant, Content: st.Response})
	return st, nil
}

func (o *Orchestrator) emit(ctx context.Context, event Event) {
	if o.observer == nil {
		return
	}
	event.QueryID = tracing.GetQueryID(ctx)
	o.observer.Notify(event)
}

func reactSteps(steps []react.Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, Step{Tool: s.Tool, Input: s.Input, Output: s.Output})
	}
	return out
}

// findingSteps keeps only successful findings; failed ones already shaped
// the synthesized answer.
func findingSteps(findings []research.Finding) []Step {
	var out []Step
	for _, f := range findings {
		if !f.Success {
			continue
		}
		out = append(out, Step{Tool: f.Step.Tool, Input: f.Step.Query, Output: f.Output})
	}
	return out
}

// Package graph provides a minimal directed-graph execution engine for
// orchestration pipelines. Nodes are named state transforms, edges are either
// unconditional or selected by a condition function over the current state,
// and traversal runs sequentially from the entry point until END.
//
// The engine carries no business logic. Callers model their pipeline as
// transforms over a single state value; the engine only validates the wiring
// and walks it.
package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// END is the terminal pseudo-node. Any edge or conditional route targeting
// END stops traversal and returns the current state.
const END = "__end__"

// maxTraversalSteps bounds a single Run. Cyclic graphs (self-loops) must
// terminate via their condition functions well before this.
const maxTraversalSteps = 250

// NodeFunc transforms the state at one node. It returns the next state;
// implementations should treat the input as owned and may mutate or replace
// fields freely.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// ConditionFunc inspects the state after a node runs and returns the route
// key used to select the next node from the registered route map.
type ConditionFunc[S any] func(ctx context.Context, state S) string

type conditionalEdge[S any] struct {
	condition ConditionFunc[S]
	routes    map[string]string
}

// Graph is a builder for a directed execution graph over state type S.
// Configure nodes and edges, then Compile to obtain a Runner.
type Graph[S any] struct {
	nodes       map[string]NodeFunc[S]
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	entry       string
}

// New creates an empty graph builder.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
	}
}

// AddNode registers a named transform.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) error {
	if name == "" {
		return fmt.Errorf("node name is required")
	}
	if name == END {
		return fmt.Errorf("node name %s is reserved", END)
	}
	if fn == nil {
		return fmt.Errorf("node function is required")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %s already registered", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge registers an unconditional edge. The target may be END.
func (g *Graph[S]) AddEdge(from, to string) error {
	if from == "" || to == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("node %s already has an edge", from)
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdge registers a condition function for the node and the
// route map its return values select from. Route targets may be END.
func (g *Graph[S]) AddConditionalEdge(from string, condition ConditionFunc[S], routes map[string]string) error {
	if from == "" {
		return fmt.Errorf("edge source is required")
	}
	if condition == nil {
		return fmt.Errorf("condition function is required")
	}
	if len(routes) == 0 {
		return fmt.Errorf("conditional edge from %s has no routes", from)
	}
	if _, exists := g.conditional[from]; exists {
		return fmt.Errorf("node %s already has a conditional edge", from)
	}
	g.conditional[from] = conditionalEdge[S]{condition: condition, routes: routes}
	return nil
}

// SetEntryPoint designates the node traversal starts from.
func (g *Graph[S]) SetEntryPoint(name string) {
	g.entry = name
}

// Compile validates the wiring and returns an executable Runner. Every edge
// must originate from and target a registered node (or END), the entry point
// must be set and registered, and no node may carry both an unconditional
// and a conditional edge.
func (g *Graph[S]) Compile() (*Runner[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("entry point is required")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("entry point %s is not a registered node", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %s", from)
		}
		if _, ok := g.conditional[from]; ok {
			return nil, fmt.Errorf("node %s has both an edge and a conditional edge", from)
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("edge from %s to unknown node %s", from, to)
			}
		}
	}
	for from, ce := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("conditional edge from unknown node %s", from)
		}
		for key, to := range ce.routes {
			if to != END {
				if _, ok := g.nodes[to]; !ok {
					return nil, fmt.Errorf("conditional route %q from %s targets unknown node %s", key, from, to)
				}
			}
		}
	}
	return &Runner[S]{
		nodes:       g.nodes,
		edges:       g.edges,
		conditional: g.conditional,
		entry:       g.entry,
		logger:      log.With().Str("component", "graph").Logger(),
	}, nil
}

// Runner is a compiled, immutable graph ready for execution. A Runner is
// safe for concurrent use; each Run owns its state value exclusively.
type Runner[S any] struct {
	nodes       map[string]NodeFunc[S]
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	entry       string
	logger      zerolog.Logger
}

// Run executes the graph from the entry point, threading the state through
// each node's transform and following edges until END is reached.
func (r *Runner[S]) Run(ctx context.Context, state S) (S, error) {
	current := r.entry

	for step := 0; step < maxTraversalSteps; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		fn := r.nodes[current]

		r.logger.Debug().
			Str("node", current).
			Int("step", step).
			Msg("Executing graph node")

		next, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		state = next

		target, err := r.nextNode(ctx, current, state)
		if err != nil {
			return state, err
		}
		if target == END {
			return state, nil
		}
		current = target
	}

	return state, fmt.Errorf("graph exceeded %d steps without reaching END", maxTraversalSteps)
}

func (r *Runner[S]) nextNode(ctx context.Context, current string, state S) (string, error) {
	if ce, ok := r.conditional[current]; ok {
		key := ce.condition(ctx, state)
		target, ok := ce.routes[key]
		if !ok {
			return "", fmt.Errorf("conditional edge from %s returned unknown route %q", current, key)
		}
		return target, nil
	}
	if target, ok := r.edges[current]; ok {
		return target, nil
	}
	return "", fmt.Errorf("no edge from node %s", current)
}

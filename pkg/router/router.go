// Package router classifies queries into execution strategies using a
// structured generation call. Routing never fails: any classification error
// falls back to the general strategy with a reasoning string that says so.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/aksel/sage/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Route values.
const (
	RouteGeneral  = "general"
	RouteResearch = "research"
)

// contextWindow is how many history entries inform the routing decision.
const contextWindow = 3

// routingSchema constrains the classification response.
var routingSchema = llm.Schema{
	Name:   "routing",
	Strict: true,
	Raw: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"route": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{RouteGeneral, RouteResearch},
				"description": "Which agent to route to based on query complexity",
			},
			"reasoning": map[string]interface{}{
				"type":        "string",
				"description": "Brief explanation of routing decision",
			},
		},
		"required": []interface{}{"route", "reasoning"},
	},
}

// Decision is the routing outcome for one query.
type Decision struct {
	Route     string `json:"route"`
	Reasoning string `json:"reasoning"`
}

// Router classifies queries. Construct with New.
type Router struct {
	generator llm.Generator
	library   *prompts.Library
	logger    zerolog.Logger
}

// New creates a router over the given generator.
func New(generator llm.Generator, library *prompts.Library) (*Router, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if library == nil {
		library = prompts.NewLibrary()
	}

	return &Router{
		generator: generator,
		library:   library,
		logger:    log.With().Str("component", "router").Logger(),
	}, nil
}

// Route classifies one query, consulting the recent conversation history.
// It always returns a usable Decision.
func (r *Router) Route(ctx context.Context, query string, history []session.ConversationEntry) Decision {
	ctx, span := tracing.StartSpan(ctx, "sage.router", "router.route")
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, r.logger)

	prompt := r.library.Render(prompts.NameRouting, map[string]string{
		"query": composeQuery(query, history),
	})

	decoded, err := r.generator.GenerateStructured(ctx, prompt, routingSchema)
	if err != nil {
		decision := Decision{
			Route:     RouteGeneral,
			Reasoning: fmt.Sprintf("Defaulting to general agent due to routing error: %v", err),
		}
		span.SetAttributes(attribute.String("route", decision.Route), attribute.Bool("fallback", true))
		logger.Warn().Err(err).Msg("Routing failed, defaulting to general")
		return decision
	}

	route, _ := decoded["route"].(string)
	reasoning, _ := decoded["reasoning"].(string)
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	switch route {
	case RouteGeneral, RouteResearch:
	default:
		reasoning = fmt.Sprintf("Defaulting to general agent due to unrecognized route %q", route)
		route = RouteGeneral
	}

	span.SetAttributes(attribute.String("route", route))
	logger.Debug().
		Str("route", route).
		Str("reasoning", reasoning).
		Msg("Query routed")

	return Decision{Route: route, Reasoning: reasoning}
}

// composeQuery prefixes the query with the windowed history, truncating each
// prior response to its first 100 characters.
func composeQuery(query string, history []session.ConversationEntry) string {
	if len(history) == 0 {
		return query
	}
	if len(history) > contextWindow {
		history = history[len(history)-contextWindow:]
	}

	var b strings.Builder
	b.WriteString("\n\nConversation History:\n")
	for _, entry := range history {
		response := entry.Response
		if len(response) > 100 {
			response = response[:100]
		}
		b.WriteString("User: " + entry.Query + "\n")
		fmt.Fprintf(&b, "Assistant (%s): %s...\n\n", entry.Route, response)
	}
	b.WriteString("Current Query:\n")
	b.WriteString(query)
	return b.String()
}

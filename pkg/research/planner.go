package research

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

// planContextWindow is how many history entries inform planning.
const planContextWindow = 3

// fallbackTool receives the single fallback step when planning fails.
const fallbackTool = "web_search"

// backfillTools are search tools whose steps survive a missing query by
// falling back to the original user query.
var backfillTools = map[string]bool{
	"arxiv":      true,
	"web_search": true,
}

// planSchema describes the structured plan response. Validation is lenient:
// per-step repair happens here, not in the generation layer.
var planSchema = llm.Schema{
	Name: "plan",
	Raw: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plan": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"step": map[string]interface{}{
							"type":        "integer",
							"description": "Step number in the plan",
						},
						"action": map[string]interface{}{
							"type":        "string",
							"description": "What to do in this step",
						},
						"tool": map[string]interface{}{
							"type":        "string",
							"enum":        []interface{}{"wikipedia", "arxiv", "web_search", "python_repl"},
							"description": "Which tool to use",
						},
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Query/code to execute with the tool",
						},
					},
					"required": []interface{}{"step", "action", "tool", "query"},
				},
			},
		},
		"required": []interface{}{"plan"},
	},
}

// Planner turns a query into an ordered research plan.
type Planner struct {
	generator llm.Generator
	library   *prompts.Library
	logger    zerolog.Logger
}

// NewPlanner creates a planner over the given generator.
func NewPlanner(generator llm.Generator, library *prompts.Library) (*Planner, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if library == nil {
		library = prompts.NewLibrary()
	}

	return &Planner{
		generator: generator,
		library:   library,
		logger:    log.With().Str("component", "planner").Logger(),
	}, nil
}

// CreatePlan requests a structured plan and validates it step by step. The
// returned plan is never empty: planning failures and fully invalid plans
// collapse to a single generic search step over the original query.
func (p *Planner) CreatePlan(ctx context.Context, query string, history []session.ConversationEntry) []PlanStep {
	ctx, span := tracing.StartSpan(ctx, "sage.research", "research.plan")
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, p.logger)

	prompt := p.library.Render(prompts.NamePlanning, map[string]string{
		"query": composePlanQuery(query, history),
	})

	decoded, err := p.generator.GenerateStructured(ctx, prompt, planSchema)
	if err != nil {
		logger.Warn().Err(err).Msg("Planning failed, using fallback plan")
		span.SetAttributes(attribute.Bool("fallback", true))
		return fallbackPlan(query)
	}

	plan := decodePlan(decoded, query)
	if len(plan) == 0 {
		logger.Warn().Msg("Plan had no valid steps, using fallback plan")
		span.SetAttributes(attribute.Bool("fallback", true))
		return fallbackPlan(query)
	}

	span.SetAttributes(attribute.Int("steps", len(plan)))
	logger.Debug().Int("steps", len(plan)).Msg("Research plan created")

	return plan
}

// decodePlan keeps steps with both tool and query, backfills search steps
// missing only their query with the original query, and drops the rest.
func decodePlan(decoded map[string]interface{}, originalQuery string) []PlanStep {
	rawPlan, _ := decoded["plan"].([]interface{})

	var plan []PlanStep
	for _, raw := range rawPlan {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		action, _ := item["action"].(string)
		tool, _ := item["tool"].(string)
		stepQuery, _ := item["query"].(string)

		switch {
		case tool != "" && stepQuery != "":
		case backfillTools[tool] && stepQuery == "":
			stepQuery = originalQuery
		default:
			continue
		}

		plan = append(plan, NewPlanStep(len(plan)+1, action, tool, stepQuery))
	}

	return plan
}

func fallbackPlan(query string) []PlanStep {
	return []PlanStep{
		NewPlanStep(1, "Search for general information", fallbackTool, query),
	}
}

// composePlanQuery prefixes the query with the windowed history. Unlike the
// routing and synthesis prompts there is no "Current Query:" separator.
func composePlanQuery(query string, history []session.ConversationEntry) string {
	if len(history) == 0 {
		return query
	}
	if len(history) > planContextWindow {
		history = history[len(history)-planContextWindow:]
	}

	var b strings.Builder
	b.WriteString("\n\nConversation History:\n")
	for _, entry := range history {
		response := entry.Response
		if len(response) > 100 {
			response = response[:100]
		}
		b.WriteString("User: " + entry.Query + "\n")
		b.WriteString("Assistant: " + response + "...\n\n")
	}
	b.WriteString(query)
	return b.String()
}

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
	"go.opentelemetry.io/otel/codes"
)

// synthesisContextWindow is how many history entries inform synthesis.
const synthesisContextWindow = 3

// Synthesizer folds findings into one comprehensive answer.
type Synthesizer struct {
	generator llm.Generator
	library   *prompts.Library
	logger    zerolog.Logger
}

// NewSynthesizer creates a synthesizer over the given generator.
func NewSynthesizer(generator llm.Generator, library *prompts.Library) (*Synthesizer, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if library == nil {
		library = prompts.NewLibrary()
	}

	return &Synthesizer{
		generator: generator,
		library:   library,
		logger:    log.With().Str("component", "synthesizer").Logger(),
	}, nil
}

// Synthesize issues one generation call over the successful findings.
// Failed findings keep their position in the numbering but contribute no
// text.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, findings []Finding, history []session.ConversationEntry) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.research",
		"research.synthesize",
		attribute.Int("findings", len(findings)),
	)
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, s.logger)

	var sections []string
	for i, f := range findings {
		if !f.Success {
			continue
		}
		sections = append(sections, fmt.Sprintf("Step %d - %s:\n%s", i+1, f.Step.Tool, f.Output))
	}

	prompt := s.library.Render(prompts.NameSynthesis, map[string]string{
		"query":    composeSynthesisQuery(query, history),
		"findings": strings.Join(sections, "\n\n"),
	})

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	logger.Debug().
		Int("sections", len(sections)).
		Msg("Findings synthesized")

	return answer, nil
}

// composeSynthesisQuery prefixes the query with the windowed history.
func composeSynthesisQuery(query string, history []session.ConversationEntry) string {
	if len(history) == 0 {
		return query
	}
	if len(history) > synthesisContextWindow {
		history = history[len(history)-synthesisContextWindow:]
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
	b.WriteString("Current Query:\n")
	b.WriteString(query)
	return b.String()
}

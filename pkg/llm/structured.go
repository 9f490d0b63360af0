package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/prompts"
)

// GenerateStructured wraps the prompt with the JSON generation
// template, strips markdown fences from the response, and decodes it.
// Strict schemas are additionally validated with gojsonschema. All
// failures return a *StructuredError preserving the raw model text.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, schema Schema) (map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.llm",
		"llm.generate_structured",
		attribute.String("provider", c.provider.Name()),
		attribute.String("schema", schema.Name),
	)
	defer span.End()

	schemaJSON, err := json.MarshalIndent(schema.Raw, "", "  ")
	if err != nil {
		return nil, &StructuredError{Reason: fmt.Sprintf("invalid schema %q", schema.Name), Err: err}
	}

	wrapped := c.library.Render(prompts.NameJSON, map[string]string{
		"prompt": prompt,
		"schema": string(schemaJSON),
	})

	start := time.Now()
	response, err := c.callWithRetry(ctx, Request{
		Model:       c.cfg.Model,
		Prompt:      wrapped,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		observability.RecordGeneration(c.provider.Name(), "structured", time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StructuredError{Reason: "generation failed", Err: err}
	}

	decoded, serr := decodeStructured(response.Content, schema)
	observability.RecordGeneration(c.provider.Name(), "structured", time.Since(start), serr == nil)
	if serr != nil {
		span.SetStatus(codes.Error, serr.Reason)
		c.logger.Warn().
			Str("schema", schema.Name).
			Str("reason", serr.Reason).
			Msg("Structured generation failed")
		return nil, serr
	}

	return decoded, nil
}

// decodeStructured cleans, parses, and optionally validates a raw
// structured response.
func decodeStructured(raw string, schema Schema) (map[string]interface{}, *StructuredError) {
	cleaned := cleanJSONResponse(raw)

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, &StructuredError{
			Reason:      "failed to parse JSON response",
			RawResponse: raw,
			Err:         err,
		}
	}

	if schema.Strict {
		if err := validateAgainstSchema(schema.Raw, decoded); err != nil {
			return nil, &StructuredError{
				Reason:      "schema validation failed",
				RawResponse: raw,
				Err:         err,
			}
		}
	}

	return decoded, nil
}

// cleanJSONResponse removes markdown code-fence wrapping.
func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// validateAgainstSchema validates a decoded document against a JSON
// Schema document.
func validateAgainstSchema(schemaDoc map[string]interface{}, document map[string]interface{}) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDoc))
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, verr := range result.Errors() {
			errors = append(errors, verr.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}

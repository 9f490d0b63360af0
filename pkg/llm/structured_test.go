package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routingTestSchema = Schema{
	Name: "routing",
	Raw: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"route": map[string]interface{}{
				"type": "string",
				"enum": []string{"general", "research"},
			},
			"reasoning": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"route", "reasoning"},
	},
	Strict: true,
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"route": "general"}`, `{"route": "general"}`},
		{"json fence", "```json\n{\"route\": \"general\"}\n```", `{"route": "general"}`},
		{"bare fence", "```\n{\"route\": \"general\"}\n```", `{"route": "general"}`},
		{"leading whitespace", "  \n{\"a\": 1}\n  ", `{"a": 1}`},
		{"fence without newline", "```json{\"a\": 1}```", `{"a": 1}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSONResponse(tt.input))
		})
	}
}

func TestDecodeStructured(t *testing.T) {
	t.Run("should decode valid document", func(t *testing.T) {
		decoded, serr := decodeStructured(`{"route": "general", "reasoning": "simple question"}`, routingTestSchema)

		require.Nil(t, serr)
		assert.Equal(t, "general", decoded["route"])
		assert.Equal(t, "simple question", decoded["reasoning"])
	})

	t.Run("should decode fenced document", func(t *testing.T) {
		raw := "```json\n{\"route\": \"research\", \"reasoning\": \"needs sources\"}\n```"
		decoded, serr := decodeStructured(raw, routingTestSchema)

		require.Nil(t, serr)
		assert.Equal(t, "research", decoded["route"])
	})

	t.Run("should preserve raw text on parse failure", func(t *testing.T) {
		raw := "I think the route should be general."
		_, serr := decodeStructured(raw, routingTestSchema)

		require.NotNil(t, serr)
		assert.Equal(t, "failed to parse JSON response", serr.Reason)
		assert.Equal(t, raw, serr.RawResponse)
	})

	t.Run("should reject strict schema violations", func(t *testing.T) {
		_, serr := decodeStructured(`{"route": "neither", "reasoning": "x"}`, routingTestSchema)

		require.NotNil(t, serr)
		assert.Equal(t, "schema validation failed", serr.Reason)
		assert.Contains(t, serr.Err.Error(), "route")
	})

	t.Run("should reject missing required fields under strict schema", func(t *testing.T) {
		_, serr := decodeStructured(`{"route": "general"}`, routingTestSchema)

		require.NotNil(t, serr)
		assert.Equal(t, "schema validation failed", serr.Reason)
	})

	t.Run("should skip validation for lenient schema", func(t *testing.T) {
		lenient := Schema{Name: "plan", Raw: routingTestSchema.Raw}
		decoded, serr := decodeStructured(`{"route": "neither"}`, lenient)

		require.Nil(t, serr)
		assert.Equal(t, "neither", decoded["route"])
	})
}

func TestGenerateStructured(t *testing.T) {
	t.Run("should wrap prompt with schema", func(t *testing.T) {
		fake := &fakeProvider{responses: []string{`{"route": "general", "reasoning": "greeting"}`}}
		client := newTestClient(fake, 3)

		decoded, err := client.GenerateStructured(context.Background(), "Classify: hello", routingTestSchema)

		require.NoError(t, err)
		assert.Equal(t, "general", decoded["route"])
		require.Len(t, fake.requests, 1)
		assert.Contains(t, fake.requests[0].Prompt, "Classify: hello")
		assert.Contains(t, fake.requests[0].Prompt, `"route"`)
		assert.Contains(t, fake.requests[0].Prompt, "valid JSON")
	})

	t.Run("should return structured error when generation fails", func(t *testing.T) {
		fake := &fakeProvider{errs: []error{fmt.Errorf("boom")}}
		client := newTestClient(fake, 3)

		_, err := client.GenerateStructured(context.Background(), "Classify: hello", routingTestSchema)

		require.Error(t, err)
		var serr *StructuredError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "generation failed", serr.Reason)
		assert.Empty(t, serr.RawResponse)
	})

	t.Run("should return structured error with raw text on bad JSON", func(t *testing.T) {
		fake := &fakeProvider{responses: []string{"not json at all"}}
		client := newTestClient(fake, 3)

		_, err := client.GenerateStructured(context.Background(), "Classify: hello", routingTestSchema)

		require.Error(t, err)
		var serr *StructuredError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "not json at all", serr.RawResponse)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"rate limit status", fmt.Errorf("429 too many requests"), true},
		{"rate limit text", fmt.Errorf("rate limit exceeded"), true},
		{"server error", fmt.Errorf("502 bad gateway"), true},
		{"timeout", fmt.Errorf("read tcp: ETIMEDOUT"), true},
		{"connection reset", fmt.Errorf("ECONNRESET by peer"), true},
		{"auth failure", fmt.Errorf("401 unauthorized"), false},
		{"bad request", fmt.Errorf("400 invalid model"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableError(tt.err))
		})
	}
}

func TestStructuredError(t *testing.T) {
	t.Run("should render reason and cause", func(t *testing.T) {
		serr := &StructuredError{Reason: "failed to parse JSON response", Err: fmt.Errorf("unexpected token")}

		assert.Contains(t, serr.Error(), "failed to parse JSON response")
		assert.Contains(t, serr.Error(), "unexpected token")
		assert.Equal(t, "unexpected token", serr.Unwrap().Error())
	})

	t.Run("should render without cause", func(t *testing.T) {
		serr := &StructuredError{Reason: "schema validation failed"}

		assert.Equal(t, "structured generation: schema validation failed", serr.Error())
		assert.Nil(t, serr.Unwrap())
	})
}

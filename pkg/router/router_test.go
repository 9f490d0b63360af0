package router

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type structuredFake struct {
	result  map[string]interface{}
	err     error
	prompts []string
}

func (f *structuredFake) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("plain generation not scripted")
}

func (f *structuredFake) GenerateStructured(ctx context.Context, prompt string, schema llm.Schema) (map[string]interface{}, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestNew(t *testing.T) {
	t.Run("should require a generator", func(t *testing.T) {
		_, err := New(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "generator is required")
	})
}

func TestRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass through a research classification", func(t *testing.T) {
		gen := &structuredFake{result: map[string]interface{}{
			"route":     "research",
			"reasoning": "requires multiple academic sources",
		}}
		r, err := New(gen, nil)
		require.NoError(t, err)

		decision := r.Route(ctx, "survey of diffusion models since 2023", nil)
		assert.Equal(t, RouteResearch, decision.Route)
		assert.Equal(t, "requires multiple academic sources", decision.Reasoning)
	})

	t.Run("should default to general when the structured call errors", func(t *testing.T) {
		gen := &structuredFake{err: fmt.Errorf("schema validation failed")}
		r, err := New(gen, nil)
		require.NoError(t, err)

		decision := r.Route(ctx, "what is 2+2", nil)
		assert.Equal(t, RouteGeneral, decision.Route)
		assert.Contains(t, decision.Reasoning, "Defaulting to general agent due to routing error")
		assert.Contains(t, decision.Reasoning, "schema validation failed")
	})

	t.Run("should default to general on an unrecognized route value", func(t *testing.T) {
		gen := &structuredFake{result: map[string]interface{}{
			"route":     "escalate",
			"reasoning": "unsure",
		}}
		r, err := New(gen, nil)
		require.NoError(t, err)

		decision := r.Route(ctx, "anything", nil)
		assert.Equal(t, RouteGeneral, decision.Route)
		assert.Contains(t, decision.Reasoning, `unrecognized route "escalate"`)
	})

	t.Run("should fill in missing reasoning", func(t *testing.T) {
		gen := &structuredFake{result: map[string]interface{}{
			"route": "general",
		}}
		r, err := New(gen, nil)
		require.NoError(t, err)

		decision := r.Route(ctx, "anything", nil)
		assert.Equal(t, RouteGeneral, decision.Route)
		assert.Equal(t, "No reasoning provided", decision.Reasoning)
	})

	t.Run("should window history to the last three entries", func(t *testing.T) {
		gen := &structuredFake{result: map[string]interface{}{
			"route":     "general",
			"reasoning": "fine",
		}}
		r, err := New(gen, nil)
		require.NoError(t, err)

		long := strings.Repeat("y", 150)
		history := []session.ConversationEntry{
			{Query: "first", Response: "r1", Route: "general"},
			{Query: "second", Response: "r2", Route: "general"},
			{Query: "third", Response: long, Route: "research"},
			{Query: "fourth", Response: "r4", Route: "general"},
		}

		r.Route(ctx, "current", history)

		require.Len(t, gen.prompts, 1)
		prompt := gen.prompts[0]
		assert.Contains(t, prompt, "Conversation History:")
		assert.NotContains(t, prompt, "User: first")
		assert.Contains(t, prompt, "User: second")
		assert.Contains(t, prompt, "Assistant (research): "+strings.Repeat("y", 100)+"...")
		assert.NotContains(t, prompt, strings.Repeat("y", 101))
		assert.Contains(t, prompt, "Assistant (general): r4...")
		assert.Contains(t, prompt, "Current Query:\ncurrent")
	})

	t.Run("should keep the bare query without history", func(t *testing.T) {
		gen := &structuredFake{result: map[string]interface{}{
			"route":     "general",
			"reasoning": "fine",
		}}
		r, err := New(gen, nil)
		require.NoError(t, err)

		r.Route(ctx, "standalone", nil)
		assert.NotContains(t, gen.prompts[0], "Conversation History:")
		assert.Contains(t, gen.prompts[0], "standalone")
	})
}

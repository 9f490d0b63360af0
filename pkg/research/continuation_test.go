package research

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successFinding(tool string) Finding {
	return Finding{Step: NewPlanStep(1, "search", tool, "q"), Success: true, Output: "data"}
}

func failedFinding(tool string) Finding {
	return Finding{Step: NewPlanStep(1, "search", tool, "q"), Error: "boom"}
}

func TestNewContinuationPolicy(t *testing.T) {
	t.Run("should require a generator", func(t *testing.T) {
		_, err := NewContinuationPolicy(nil, nil, 5)
		require.Error(t, err)
	})

	t.Run("should default the iteration bound", func(t *testing.T) {
		c, err := NewContinuationPolicy(&fakeGenerator{}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxIterations, c.MaxIterations())
	})
}

func TestShouldContinue(t *testing.T) {
	ctx := context.Background()
	remaining := []PlanStep{NewPlanStep(3, "next", "web_search", "more")}
	completed := []PlanStep{
		NewPlanStep(1, "Find papers", "arxiv", "topic"),
		NewPlanStep(2, "Search web", "web_search", "topic data"),
	}

	t.Run("should stop at the iteration bound", func(t *testing.T) {
		gen := &fakeGenerator{}
		c, err := NewContinuationPolicy(gen, nil, 3)
		require.NoError(t, err)

		got := c.ShouldContinue(ctx, "q", completed, []Finding{successFinding("arxiv")}, remaining, 3)
		assert.False(t, got)
		assert.Empty(t, gen.textPrompts)
	})

	t.Run("should stop when the plan is exhausted", func(t *testing.T) {
		gen := &fakeGenerator{}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		got := c.ShouldContinue(ctx, "q", completed, []Finding{successFinding("arxiv")}, nil, 1)
		assert.False(t, got)
		assert.Empty(t, gen.textPrompts)
	})

	t.Run("should continue unconditionally with fewer than two successes", func(t *testing.T) {
		gen := &fakeGenerator{}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		findings := []Finding{successFinding("arxiv"), failedFinding("web_search")}
		got := c.ShouldContinue(ctx, "q", completed, findings, remaining, 2)
		assert.True(t, got)
		assert.Empty(t, gen.textPrompts)
	})

	t.Run("should consult generation once evidence is sufficient", func(t *testing.T) {
		gen := &fakeGenerator{textResponses: []string{
			"Please continue, more research needed, additional sources would help.",
		}}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		findings := []Finding{successFinding("arxiv"), successFinding("web_search")}
		got := c.ShouldContinue(ctx, "the query", completed, findings, remaining, 2)
		assert.True(t, got)

		require.Len(t, gen.textPrompts, 1)
		prompt := gen.textPrompts[0]
		assert.Contains(t, prompt, "Find papers using arxiv")
		assert.Contains(t, prompt, "arxiv: Found relevant information")
		assert.Contains(t, prompt, "1 steps remaining")
		assert.Contains(t, prompt, "the query")
	})

	t.Run("should stop when stop keywords dominate", func(t *testing.T) {
		gen := &fakeGenerator{textResponses: []string{
			"The findings are sufficient; enough evidence gathered, synthesize and conclude.",
		}}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		findings := []Finding{successFinding("arxiv"), successFinding("web_search")}
		got := c.ShouldContinue(ctx, "q", completed, findings, remaining, 2)
		assert.False(t, got)
	})

	t.Run("should stop on a tied score", func(t *testing.T) {
		gen := &fakeGenerator{textResponses: []string{
			"You could continue, but this looks sufficient.",
		}}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		findings := []Finding{successFinding("arxiv"), successFinding("web_search")}
		got := c.ShouldContinue(ctx, "q", completed, findings, remaining, 2)
		assert.False(t, got)
	})

	t.Run("should stop when the continuation call fails", func(t *testing.T) {
		gen := &fakeGenerator{textErr: fmt.Errorf("unavailable")}
		c, err := NewContinuationPolicy(gen, nil, 5)
		require.NoError(t, err)

		findings := []Finding{successFinding("arxiv"), successFinding("web_search")}
		got := c.ShouldContinue(ctx, "q", completed, findings, remaining, 2)
		assert.False(t, got)
	})
}

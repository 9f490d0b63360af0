package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTool struct {
	name string
	text string
}

func (s *staticTool) Name() string        { return s.name }
func (s *staticTool) Description() string { return "a static tool" }
func (s *staticTool) Invoke(ctx context.Context, query string) (string, error) {
	return s.text, nil
}

func TestRegistry(t *testing.T) {
	t.Run("should register and resolve tools", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&staticTool{name: "web_search", text: "hits"}))

		tool, ok := registry.Resolve("web_search")
		require.True(t, ok)
		assert.Equal(t, "web_search", tool.Name())
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&staticTool{name: "arxiv"}))

		err := registry.Register(&staticTool{name: "Arxiv"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject empty names", func(t *testing.T) {
		registry := NewRegistry()
		assert.Error(t, registry.Register(&staticTool{name: ""}))
	})

	t.Run("should resolve names case and space insensitively", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&staticTool{name: "web_search"}))

		for _, name := range []string{"Web_Search", "WEB_SEARCH", "  web_search  "} {
			_, ok := registry.Resolve(name)
			assert.True(t, ok, "should resolve %q", name)
		}

		_, ok := registry.Resolve("calculator")
		assert.False(t, ok)
	})

	t.Run("should list names in registration order", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&staticTool{name: "wikipedia"}))
		require.NoError(t, registry.Register(&staticTool{name: "arxiv"}))

		assert.Equal(t, []string{"wikipedia", "arxiv"}, registry.Names())
		assert.Equal(t, []string{"arxiv", "wikipedia"}, registry.SortedNames())
	})

	t.Run("should describe tools one per line", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&staticTool{name: "wikipedia"}))
		require.NoError(t, registry.Register(&staticTool{name: "arxiv"}))

		assert.Equal(t, "wikipedia: a static tool\narxiv: a static tool", registry.Describe())
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"web_search", "web_search"},
		{"Web_Search", "web_search"},
		{"  WIKIPEDIA  ", "wikipedia"},
		{"web search", "web_search"},
		{"python  repl", "python_repl"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	t.Run("should register the standard tools", func(t *testing.T) {
		registry, err := NewDefaultRegistry(Options{})

		require.NoError(t, err)
		assert.Equal(t, []string{"web_search", "wikipedia", "arxiv", "python_repl"}, registry.Names())
	})

	t.Run("should add web_fetch when enabled", func(t *testing.T) {
		registry, err := NewDefaultRegistry(Options{WebFetch: WebFetchOptions{Enabled: true}})

		require.NoError(t, err)
		_, ok := registry.Resolve("web_fetch")
		assert.True(t, ok)
	})
}

package orchestrator

import (
	"context"
	"testing"

	"github.com/aksel/sage/pkg/session"
	"github.com/aksel/sage/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, gen *fakeGenerator, store *session.Store) *Service {
	t.Helper()

	svc, err := NewService(Config{Generator: gen, Registry: tools.NewRegistry()}, store)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("should require a generator", func(t *testing.T) {
		_, err := NewService(Config{Registry: tools.NewRegistry()}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "generator is required")
	})

	t.Run("should require a tool registry", func(t *testing.T) {
		_, err := NewService(Config{Generator: &fakeGenerator{}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool registry is required")
	})
}

func TestForSession(t *testing.T) {
	t.Run("should reuse the orchestrator for a key", func(t *testing.T) {
		svc := newTestService(t, &fakeGenerator{}, nil)

		first, err := svc.ForSession("alpha")
		require.NoError(t, err)
		second, err := svc.ForSession("alpha")
		require.NoError(t, err)
		assert.Same(t, first, second)

		other, err := svc.ForSession("beta")
		require.NoError(t, err)
		assert.NotSame(t, first, other)
	})

	t.Run("should map an empty key to the default session", func(t *testing.T) {
		svc := newTestService(t, &fakeGenerator{}, nil)

		unnamed, err := svc.ForSession("")
		require.NoError(t, err)
		named, err := svc.ForSession(DefaultSessionKey)
		require.NoError(t, err)
		assert.Same(t, unnamed, named)
	})

	t.Run("should reject invalid session keys", func(t *testing.T) {
		store, err := session.NewStore(t.TempDir())
		require.NoError(t, err)
		svc := newTestService(t, &fakeGenerator{}, store)

		_, err = svc.ForSession("../escape")
		require.Error(t, err)
	})
}

func TestServiceQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep session histories separate", func(t *testing.T) {
		gen := &fakeGenerator{
			structuredResults: []map[string]interface{}{routeResult("general", "simple")},
			textResponses:     []string{"Thought: x\nFinal Answer: ok"},
		}
		svc := newTestService(t, gen, nil)

		_, err := svc.RunQuery(ctx, "alpha", "first question")
		require.NoError(t, err)

		alpha, err := svc.History("alpha")
		require.NoError(t, err)
		assert.Len(t, alpha, 1)

		beta, err := svc.History("beta")
		require.NoError(t, err)
		assert.Empty(t, beta)
	})

	t.Run("should clear only the named session", func(t *testing.T) {
		gen := &fakeGenerator{
			structuredResults: []map[string]interface{}{routeResult("general", "simple")},
			textResponses:     []string{"Thought: x\nFinal Answer: ok"},
		}
		svc := newTestService(t, gen, nil)

		_, err := svc.RunQuery(ctx, "alpha", "question a")
		require.NoError(t, err)
		_, err = svc.RunQuery(ctx, "beta", "question b")
		require.NoError(t, err)

		require.NoError(t, svc.ClearHistory(ctx, "alpha"))

		alpha, err := svc.History("alpha")
		require.NoError(t, err)
		assert.Empty(t, alpha)

		beta, err := svc.History("beta")
		require.NoError(t, err)
		assert.Len(t, beta, 1)
	})

	t.Run("should persist sessions through the store", func(t *testing.T) {
		dir := t.TempDir()
		store, err := session.NewStore(dir)
		require.NoError(t, err)

		gen := &fakeGenerator{
			structuredResults: []map[string]interface{}{routeResult("general", "simple")},
			textResponses:     []string{"Thought: x\nFinal Answer: saved"},
		}
		svc := newTestService(t, gen, store)

		_, err = svc.RunQuery(ctx, "persisted", "a question")
		require.NoError(t, err)

		reloaded, err := store.Load(ctx, "persisted")
		require.NoError(t, err)
		require.Len(t, reloaded, 1)
		assert.Equal(t, "a question", reloaded[0].Query)
		assert.Equal(t, "saved", reloaded[0].Response)
	})
}

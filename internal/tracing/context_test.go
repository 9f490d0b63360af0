package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	t.Run("round trip all keys", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-1")
		ctx = WithQueryID(ctx, "query-1")
		ctx = WithSessionKey(ctx, "cli")
		ctx = WithRoute(ctx, "research")

		assert.Equal(t, "trace-1", GetTraceID(ctx))
		assert.Equal(t, "query-1", GetQueryID(ctx))
		assert.Equal(t, "cli", GetSessionKey(ctx))
		assert.Equal(t, "research", GetRoute(ctx))
	})

	t.Run("empty context returns empty strings", func(t *testing.T) {
		ctx := context.Background()
		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetQueryID(ctx))
		assert.Empty(t, GetSessionKey(ctx))
		assert.Empty(t, GetRoute(ctx))
	})

	t.Run("from context and back", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-2")
		ctx = WithRoute(ctx, "general")

		tc := FromContext(ctx)
		assert.Equal(t, "trace-2", tc.TraceID)
		assert.Equal(t, "general", tc.Route)
		assert.Empty(t, tc.QueryID)

		rebuilt := NewContext(context.Background(), tc)
		assert.Equal(t, "trace-2", GetTraceID(rebuilt))
		assert.Equal(t, "general", GetRoute(rebuilt))
	})

	t.Run("new query context stamps ids", func(t *testing.T) {
		ctx := NewQueryContext(context.Background(), "repl")
		assert.NotEmpty(t, GetQueryID(ctx))
		assert.NotEmpty(t, GetTraceID(ctx))
		assert.Equal(t, "repl", GetSessionKey(ctx))
	})

	t.Run("new query context keeps existing trace id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "existing")
		ctx = NewQueryContext(ctx, "")
		assert.Equal(t, "existing", GetTraceID(ctx))
		assert.Empty(t, GetSessionKey(ctx))
	})
}

func TestPropagateToLogger(t *testing.T) {
	t.Run("fields appear in log output", func(t *testing.T) {
		var buf bytes.Buffer
		base := zerolog.New(&buf)

		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-3")
		ctx = WithQueryID(ctx, "query-3")
		ctx = WithRoute(ctx, "general")

		logger := LoggerFromContext(ctx, base)
		logger.Info().Msg("routed")

		out := buf.String()
		require.NotEmpty(t, out)
		assert.Contains(t, out, `"trace_id":"trace-3"`)
		assert.Contains(t, out, `"query_id":"query-3"`)
		assert.Contains(t, out, `"route":"general"`)
	})

	t.Run("empty context adds nothing", func(t *testing.T) {
		var buf bytes.Buffer
		base := zerolog.New(&buf)

		logger := PropagateToLogger(context.Background(), base)
		logger.Info().Msg("bare")

		out := buf.String()
		assert.NotContains(t, out, "trace_id")
		assert.NotContains(t, out, "session_key")
	})
}

func TestStartSpan(t *testing.T) {
	t.Run("span trace id lands in context", func(t *testing.T) {
		require.NoError(t, InitOpenTelemetry("sage-test"))

		ctx, span := StartSpan(context.Background(), "tracing_test", "test.op")
		defer span.End()

		assert.NotEmpty(t, GetTraceID(ctx))
	})
}

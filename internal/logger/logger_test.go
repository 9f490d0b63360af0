package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("create logger with console output", func(t *testing.T) {
		cfg := Config{
			Level:   "info",
			Console: true,
			Pretty:  false,
		}

		logger, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)

		logger.Close()
	})

	t.Run("create logger with file output", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "test.log")

		cfg := Config{
			Level:   "debug",
			File:    logFile,
			Console: false,
		}

		logger, err := New(cfg)
		require.NoError(t, err)

		zl := logger.GetZerolog()
		zl.Info().Str("route", "general").Msg("query routed")
		logger.Close()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "query routed")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "chatty", Console: true})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, "info", logger.GetZerolog().GetLevel().String())
	})

	t.Run("redaction strips provider keys from file output", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "test.log")

		cfg := Config{
			Level:     "info",
			File:      logFile,
			Console:   false,
			Redaction: true,
		}

		logger, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger.redactor)

		zl := logger.GetZerolog()
		zl.Info().Str("key", "sk-ant-REDACTED").Msg("configured")
		logger.Close()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[REDACTED]")
		assert.NotContains(t, string(data), "sk-ant-REDACTED")
	})
}

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name  string
		input string
	}{
		{"openai key", "calling with sk-proj1234567890abcdefghij"},
		{"anthropic key", "key=sk-ant-REDACTED"},
		{"bearer token", "Authorization: Bearer abc.def.ghi"},
		{"secret assignment", `"secret": "hunter2-and-more"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.Contains(t, out, "[REDACTED]")
		})
	}

	t.Run("plain text passes through", func(t *testing.T) {
		in := "routed query to research strategy"
		assert.Equal(t, in, r.Redact(in))
	})

	t.Run("add custom pattern", func(t *testing.T) {
		r := NewRedactor()
		require.NoError(t, r.AddPattern(`internal-[0-9]+`))
		assert.Equal(t, "[REDACTED]", r.Redact("internal-42"))

		err := r.AddPattern(`[`)
		assert.Error(t, err)
	})

	t.Run("wrap writer redacts", func(t *testing.T) {
		var sb strings.Builder
		w := r.Wrap(&sb)
		_, err := w.Write([]byte("token sk-1234567890abcdefghijklmn"))
		require.NoError(t, err)
		assert.Contains(t, sb.String(), "[REDACTED]")
	})
}

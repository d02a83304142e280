package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestSetup(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer

		Setup("warn", WithFormat(FormatJSON), WithWriter(&buf))

		WithModule("petflow-worker").Info("dropped")
		WithModule("petflow-worker").Warn("Lease expired", "execution_id", "exec-1")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

		assert.Equal(t, "WARN", line["level"])
		assert.Equal(t, "Lease expired", line["msg"])
		assert.Equal(t, "petflow-worker", line["module"])
		assert.Equal(t, "exec-1", line["execution_id"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer

		Setup("debug", WithWriter(&buf))

		WithModule("petflow-trigger").Debug("Record event evaluated")

		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "module=petflow-trigger")
	})
}

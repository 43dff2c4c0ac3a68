package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Cleanup(func() { verbose = false })
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger(&buf, "info", "json")
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("shown", "problem_id", 7)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "shown", rec["msg"])
		assert.Equal(t, float64(7), rec["problem_id"])
	})

	t.Run("text warn level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger(&buf, "warn", "text")
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		verbose = true
		defer func() { verbose = false }()

		var buf bytes.Buffer
		logger, err := newLogger(&buf, "error", "text")
		require.NoError(t, err)

		logger.Debug("detail")
		assert.Contains(t, buf.String(), "msg=detail")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := newLogger(&bytes.Buffer{}, "loud", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log.level")
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := newLogger(&bytes.Buffer{}, "info", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log.format")
	})
}

package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, logging.ParseLevel(in), "level %q", in)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("debug", &buf)

	ctx := logging.With(context.Background(), logger)
	require.Same(t, logger, logging.From(ctx))

	logging.From(ctx).Info("tone analyzed", "tone", "playful")
	assert.Contains(t, buf.String(), "tone analyzed")
}

func TestFromWithoutLoggerReturnsDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.From(context.Background()))
}

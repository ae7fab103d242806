package slogpretty

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandler_WritesMessageAndAttrs(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug}}
	log := slog.New(opts.NewPrettyHandler(&buf)).With(slog.String("op", "test.op"))

	log.Info("session created", slog.String("session_id", "s-1"))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, `"op": "test.op"`)
	assert.Contains(t, out, `"session_id": "s-1"`)
}

func TestPrettyHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelWarn}}
	log := slog.New(opts.NewPrettyHandler(&buf))

	log.Info("dropped")
	assert.Empty(t, buf.String())
}

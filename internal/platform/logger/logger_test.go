package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core))

	l.Event("TASK_ADDED", "kid-1", "Clean room")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "event", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "TASK_ADDED", fields["event_type"])
	assert.Equal(t, "kid-1", fields["actor"])
	assert.Equal(t, "Clean room", fields["details"])
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With(zap.String("user", "u1"))

	l.Warn("remote write failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "u1", logs.All()[0].ContextMap()["user"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New(Options{Level: "shouting", Encoding: "console"})
	require.NoError(t, err)
	assert.False(t, l.Zap().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Zap().Core().Enabled(zapcore.InfoLevel))
}

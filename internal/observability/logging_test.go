package observability

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/action-initiative/internal/config"
)

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			logger, err := NewLogger(config.LoggingConfig{Level: level, Format: format})
			require.NoError(t, err, "%s/%s", format, level)
			assert.NotNil(t, logger)
		}
	}
}

func TestNewLogger_Rejects(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "trace", Format: "json"})
	assert.Error(t, err)
	_, err = NewLogger(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewCore_JSONOutputHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	core, err := newCore(config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger := zap.New(core)

	logger.Info("dropped")
	logger.Warn("kept", zap.Int("round", 3))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"round":3`)
}

func TestScopedLoggers_AddFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := ForParticipant(zap.New(core), config.ParticipantConfig{ID: "gm", Owner: true})
	ForEncounter(logger, "ambush").Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "gm", fields["participant"])
	assert.Equal(t, true, fields["owner"])
	assert.Equal(t, "ambush", fields["encounter"])
}

func TestCaptureLibraryLogs_RedirectsStdLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := CaptureLibraryLogs(zap.New(core))
	log.Print("from the standard library")
	restore()

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stdlib", entry.LoggerName)
	assert.Equal(t, "from the standard library", entry.Message)
}

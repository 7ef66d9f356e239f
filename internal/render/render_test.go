package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/action-initiative/internal/render"
)

func TestRecorder_RecordsTriggers(t *testing.T) {
	rec := &render.Recorder{}
	rec.RefreshTurnOrder()
	rec.RefreshTimer("42")
	rec.RedrawTokenEffects("tok-1")
	rec.HighlightToken("tok-2", true)
	rec.Warn("careful")

	assert.Equal(t, []string{
		"turn_order",
		"timer:42",
		"redraw:tok-1",
		"highlight:tok-2:true",
		"warn:careful",
	}, rec.Events())
	assert.Equal(t, "42", rec.TimerText())
	assert.Equal(t, 1, rec.Count("redraw:tok-1"))

	rec.Reset()
	assert.Empty(t, rec.Events())
	assert.Empty(t, rec.TimerText())
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &render.Recorder{}, &render.Recorder{}
	m := render.Multi{a, render.Nop{}, b}
	m.RefreshTimer("--")
	m.HighlightToken("t", false)
	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, "--", b.TimerText())
}

func TestLogSink_LevelsAndTimerDedup(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := render.NewLogSink(zap.New(core))

	sink.RefreshTimer("30")
	sink.RefreshTimer("30")
	sink.RefreshTimer("29")
	sink.Warn("timer is paused")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "29", entries[1].ContextMap()["text"])
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, "render", entries[2].LoggerName)
}

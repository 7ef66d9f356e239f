package render

import (
	"sync"

	"go.uber.org/zap"
)

// LogSink writes triggers to a logger. Warnings are logged at warn level and
// everything else at debug; timer text is only logged when it changes.
type LogSink struct {
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("render")}
}

func (l *LogSink) RefreshTurnOrder() { l.logger.Debug("turn order refreshed") }

func (l *LogSink) RefreshTimer(text string) {
	l.mu.Lock()
	changed := text != l.last
	l.last = text
	l.mu.Unlock()
	if changed {
		l.logger.Debug("timer", zap.String("text", text))
	}
}

func (l *LogSink) RedrawTokenEffects(tokenID string) {
	l.logger.Debug("token effects redrawn", zap.String("token", tokenID))
}

func (l *LogSink) HighlightToken(tokenID string, on bool) {
	l.logger.Debug("token highlight", zap.String("token", tokenID), zap.Bool("on", on))
}

func (l *LogSink) Warn(message string) { l.logger.Warn(message) }

// Package observability builds the zap loggers shared by every participant
// process and routes library log output through them.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapgrpc"
	"google.golang.org/grpc/grpclog"

	"github.com/cory-johannsen/action-initiative/internal/config"
)

// NewLogger builds a logger writing to stderr.
//
// Precondition: cfg.Level is one of "debug", "info", "warn", "error" and
// cfg.Format is "json" or "console".
// Postcondition: Returns a logger that adds caller info and attaches
// stack traces to error entries, or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	core, err := newCore(cfg, zapcore.Lock(os.Stderr))
	if err != nil {
		return nil, err
	}
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newCore(cfg config.LoggingConfig, out zapcore.WriteSyncer) (zapcore.Core, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(enc)
	case "console":
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeDuration = zapcore.StringDurationEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zapcore.NewCore(encoder, out, level), nil
}

// ForParticipant scopes logger to the local participant.
//
// Precondition: logger must be non-nil.
func ForParticipant(logger *zap.Logger, p config.ParticipantConfig) *zap.Logger {
	return logger.With(
		zap.String("participant", p.ID),
		zap.Bool("owner", p.Owner),
	)
}

// ForEncounter tags logger with the encounter being run.
func ForEncounter(logger *zap.Logger, encounterID string) *zap.Logger {
	return logger.With(zap.String("encounter", encounterID))
}

// CaptureLibraryLogs sends the standard library logger and gRPC's internal
// logger through logger. gRPC chatter below warn is dropped.
//
// Precondition: called once, before any gRPC server or client is created.
// Postcondition: the returned func restores the standard library logger.
func CaptureLibraryLogs(logger *zap.Logger) func() {
	grpcLogger := logger.Named("grpc").WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	grpclog.SetLoggerV2(zapgrpc.NewLogger(grpcLogger))
	return zap.RedirectStdLog(logger.Named("stdlib"))
}

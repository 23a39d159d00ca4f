package logger

import (
	"context"

	"mimic/internal/config"
	"mimic/internal/models"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/google/uuid"
)

var globalKeys = []string{"service_name", "service_version", "service_id"}

// GetLoggerContext builds the logger of one simulated backend.
func GetLoggerContext(backend models.LogDescriptor) (*scribe.Scribe, error) {
	logSettings := config.GetLogSettings()

	path := backend.Path
	if path == "" {
		path = logSettings.Path
	}

	loggerConfig := &scribe.ConfigLogger{
		FilePath:          path,
		MinLevel:          logSettings.MinLevel,
		RotationMaxSizeMB: logSettings.RotationMaxSizeMB,
		MaxBackups:        logSettings.MaxBackups,
		MaxAgeDay:         logSettings.MaxAgeDay,
		Compress:          logSettings.Compress,
		Console:           backend.Logger,
		BeutifyConsoleLog: logSettings.BeautifyConsoleLog,
		File:              backend.File,
	}

	globals := map[string]interface{}{
		"service_name":    backend.Name,
		"service_version": backend.Version,
		"service_id":      uuid.New().String(),
	}

	globalContext := scribe.NewGlobalLogContext(globals, globalKeys)

	return scribe.New(loggerConfig, globalContext, append(globalKeys, "request_trace_id"))
}

// Quiet returns a console logger that only emits fatal events. Components
// fall back to it when no logger is injected.
func Quiet() *scribe.Scribe {
	log, err := scribe.New(&scribe.ConfigLogger{
		MinLevel: "fatal",
		Console:  true,
	}, nil, nil)
	if err != nil {
		panic(err)
	}
	return log
}

// OrQuiet returns log, or Quiet when log is nil.
func OrQuiet(log *scribe.Scribe) *scribe.Scribe {
	if log == nil {
		return Quiet()
	}
	return log
}

// WithTrace attaches a fresh request_trace_id to ctx.
func WithTrace(ctx context.Context) (context.Context, string) {
	ctx = scribe.WithCtx(ctx)
	traceID := uuid.New().String()
	scribe.GetLogContext(ctx).Set("request_trace_id", traceID)
	return ctx, traceID
}

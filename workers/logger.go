package workers

import (
	"context"
	"log/slog"
	"time"

	"ah_scanner/models"
	"ah_scanner/storage"
)

// LogFunc writes an operational line to the poll_logs table
type LogFunc func(runID *int64, level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(runID *int64, level models.LogLevel, source, message string) {}

// StoreLogger mirrors each line to slog and to the ops store. A failed store
// write is only reported to slog.
func StoreLogger(store storage.OpsStore) LogFunc {
	return func(runID *int64, level models.LogLevel, source, message string) {
		attrs := []any{"source", source}
		if runID != nil {
			attrs = append(attrs, "run_id", *runID)
		}
		switch level {
		case models.LogLevelError:
			slog.Error(message, attrs...)
		case models.LogLevelWarn:
			slog.Warn(message, attrs...)
		default:
			slog.Info(message, attrs...)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Log(ctx, runID, level, message, source); err != nil {
			slog.Warn("poll log write failed", "error", err)
		}
	}
}

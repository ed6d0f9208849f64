package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// InitLogger installs the process logger: JSON for production, text otherwise.
func InitLogger(w io.Writer, production bool) *slog.Logger {
	var h slog.Handler
	if production {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	l := slog.New(h)
	logger.Store(l)
	slog.SetDefault(l)
	return l
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// LogEvent writes a standardized line with module/action/request_id.
// Avoid logging sensitive payload; message should be summarized.
func LogEvent(requestID, module, action, message string, attrs ...any) {
	args := append([]any{
		"module", strings.ToUpper(module),
		"action", action,
		"request_id", strings.TrimSpace(requestID),
	}, attrs...)
	Logger().Info(message, args...)
}

// LogError is LogEvent at error level.
func LogError(requestID, module, action string, err error, attrs ...any) {
	args := append([]any{
		"module", strings.ToUpper(module),
		"action", action,
		"request_id", strings.TrimSpace(requestID),
		"error", err,
	}, attrs...)
	Logger().Error("failed", args...)
}

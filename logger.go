package vkms

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/vkms/internal/vblank"
	"github.com/gogpu/vkms/internal/workqueue"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for vkms and all its sub-packages.
// By default, vkms produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by vkms:
//   - [slog.LevelDebug]: coalesced vblanks and worker races
//   - [slog.LevelInfo]: lifecycle events (output enabled, CRC source changed)
//   - [slog.LevelWarn]: timer overruns, dropped CRC entries and events
//   - [slog.LevelError]: failed allocations and compositions
//
// Example:
//
//	// Enable info-level logging to stderr:
//	vkms.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	vkms.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	vblank.SetLogger(l)
	workqueue.SetLogger(l)
}

// Logger returns the current logger used by vkms.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

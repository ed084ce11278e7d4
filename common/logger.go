package common

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// nopHandler discards every record. It is the default sink so the engine stays silent
// until the host application installs a logger.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by every engine package.
// The same logger is forwarded to the gogpu HAL so backend diagnostics land in one sink.
// Passing nil restores the silent default.
//
// Parameters:
//   - l: the logger to install, or nil
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	hal.SetLogger(l)
}

// Logger returns the logger installed with SetLogger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the current engine logger (never nil)
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

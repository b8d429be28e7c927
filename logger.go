package computeplay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/computeplay/internal/binder"
	"github.com/gogpu/computeplay/internal/pipeline"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for computeplay and its internal packages.
// By default nothing is logged. Pass nil to restore silence.
//
// Log levels used by computeplay:
//   - [slog.LevelDebug]: pipeline state, buffer sizes, bind set rebuilds
//   - [slog.LevelInfo]: lifecycle events (device opened, node state changes)
//   - [slog.LevelWarn]: skipped frames, pipeline compile failures
//
// Adapters that accept a logger receive the current one when a Playground
// is created.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	pipeline.SetLogger(l)
	binder.SetLogger(l)
}

// Logger returns the current logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by adapters that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(target any, l *slog.Logger) {
	if ls, ok := target.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

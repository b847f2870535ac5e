// Package cli implements the hoist command line interface.
//
// The package wires the resolution pipeline into cobra commands:
// resolve, plan, graph, add, cache, and registry. Command handlers stay
// thin; the heavy lifting lives in pkg/pipeline and below. Logging goes
// to stderr so stdout remains clean for machine-readable output such as
// plan JSON and DOT graphs.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w at the given level.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks elapsed time for a single step so log lines can
// report how long it took. Safe for sequential use by one goroutine.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(logger *log.Logger) *progress {
	return &progress{logger: logger, start: time.Now()}
}

// done logs msg with the elapsed time appended, rounded to the nearest
// millisecond.
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is a private type for context keys defined in this package.
type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a context carrying the logger.
func withLogger(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// loggerFromContext extracts the logger from the context, falling back
// to the default logger when none is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return logger
	}
	return log.Default()
}

// Package cli implements the dbtlineage command-line interface.
//
// Commands read a lineage input (a JSON or YAML file, a directory of compiled
// dbt projects, or a metadata API URL),
// run it through the pipeline, and write documents, exports or diagrams. The
// same graph can be served over HTTP or browsed in a terminal UI.
//
// # Commands
//
//   - assemble: write the assembled document (models, links, positions)
//   - layout: write positions and a level summary
//   - render: write json, yaml, dot or svg output
//   - export: write the metadata export
//   - models: list models as a table
//   - fetch: pull a metadata API into an input file
//   - serve: run the HTTP API
//   - watch: re-render whenever the input changes
//   - browse: explore models interactively
//   - cache: manage the response cache
//   - config: print the effective configuration
//
// # Configuration
//
// Settings are layered: built-in defaults, then dbtlineage.toml (or
// ~/.config/dbtlineage/config.toml), then .env and DBTLINEAGE_* variables,
// then command flags.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// logs pipeline, cache and HTTP events.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs completion of an operation with its elapsed time.
// It is not safe for concurrent use.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Re-rendered lineage.svg (12ms)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the attached logger, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

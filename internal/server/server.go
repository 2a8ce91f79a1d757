// Package server exposes an assembled lineage graph over an HTTP API.
//
// The server loads input from a [source.Source], runs it through a
// [pipeline.Runner], and serves the resulting document. Reloads build a
// complete new state before swapping it in, so requests always see one
// consistent graph.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
	"github.com/matzehuels/dbtlineage/pkg/source"
)

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = ":8000"

const shutdownTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	Addr        string
	CORSOrigins []string

	// Source is reloaded on start, on POST /api/refresh, and on file
	// changes when watching.
	Source source.Source

	// Options holds layout and render settings. Input fields are ignored.
	Options pipeline.Options

	Runner *pipeline.Runner
	Logger *log.Logger
}

// state is one loaded graph. It is never mutated after construction.
type state struct {
	graph    *lineage.Graph
	doc      graph.Document
	runID    string
	loadedAt time.Time
}

// Server serves lineage queries for the most recently loaded graph.
type Server struct {
	cfg    Config
	runner *pipeline.Runner
	logger *log.Logger

	mu    sync.RWMutex
	state *state

	reloadMu sync.Mutex
}

// New creates a server. Nothing is loaded until [Server.Reload].
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	return &Server{
		cfg:    cfg,
		runner: cfg.Runner,
		logger: cfg.Logger.WithPrefix("server"),
		state:  &state{graph: lineage.NewGraph(nil, nil), doc: graph.Document{Warnings: []lineage.Warning{}}},
	}
}

// Reload loads the source, assembles and lays it out, and swaps in the
// result. On error the previous state stays in place.
func (s *Server) Reload(ctx context.Context, refresh bool) error {
	if s.cfg.Source == nil {
		return errors.New("server has no source")
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	in, err := s.cfg.Source.Load(ctx, refresh)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.cfg.Source, err)
	}
	next, err := s.build(ctx, in, refresh)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.logger.Info("loaded lineage",
		"source", s.cfg.Source.String(),
		"models", next.graph.ModelCount(),
		"links", next.graph.LinkCount(),
		"warnings", len(next.doc.Warnings))
	return nil
}

func (s *Server) build(ctx context.Context, in lineage.Input, refresh bool) (*state, error) {
	opts := s.cfg.Options
	opts.Input = &in
	opts.InputPath = ""
	opts.Refresh = refresh
	opts.Formats = []string{pipeline.FormatJSON}

	res, err := s.runner.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &state{graph: res.Graph, doc: res.Document, runID: res.RunID, loadedAt: time.Now()}, nil
}

func (s *Server) current() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Watch reloads whenever the files behind the configured source change,
// until ctx is done. Remote sources cannot be watched.
func (s *Server) Watch(ctx context.Context, debounce time.Duration) error {
	if s.cfg.Source == nil {
		return errors.New("server has no source")
	}
	return source.WatchSource(ctx, s.cfg.Source, debounce, func(ctx context.Context) {
		if err := s.Reload(ctx, false); err != nil {
			s.logger.Error("reload failed", "source", s.cfg.Source.String(), "err", err)
		}
	})
}

// ListenAndServe serves the API until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/dbtlineage/pkg/cache"
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/observability"
)

// Runner executes the pipeline against a cache.
//
// A Runner keeps no per-run state, so one Runner may serve concurrent runs
// with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner returns a runner. A nil cache disables caching, a nil keyer
// uses [cache.DefaultKeyer], and a nil logger uses the default logger.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs assemble → layout → render.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString()}
	logger := r.Logger.With("run", result.RunID[:8])

	start := time.Now()
	g, warnings, hit, err := r.AssembleWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	result.Graph = g
	result.Warnings = warnings
	result.GraphHash = graphHash(g)
	result.CacheInfo.AssembleHit = hit
	result.Stats.AssembleTime = time.Since(start)
	result.Stats.ModelCount = g.ModelCount()
	result.Stats.LinkCount = g.LinkCount()
	result.Stats.ColumnLinkCount = g.ColumnLinkCount()
	logger.Info("assembled lineage",
		"models", g.ModelCount(),
		"links", g.LinkCount(),
		"warnings", len(warnings),
		"cached", hit,
		"duration", result.Stats.AssembleTime)

	start = time.Now()
	res, hit, err := r.ComputeLayoutWithCacheInfo(ctx, g, opts)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	result.Layout = res
	result.CacheInfo.LayoutHit = hit
	result.Stats.LayoutTime = time.Since(start)
	result.Stats.Depth = res.Depth()
	logger.Info("computed layout",
		"levels", res.Depth(),
		"back_edges", len(res.BackEdges),
		"cached", hit,
		"duration", result.Stats.LayoutTime)

	result.Document = graph.NewDocument(g, res, warnings)

	start = time.Now()
	artifacts, hit, err := r.RenderWithCacheInfo(ctx, result.Document, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.CacheInfo.RenderHit = hit
	result.Stats.RenderTime = time.Since(start)
	logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", hit,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// AssembleWithCacheInfo assembles the input, reusing a cached graph for an
// identical input unless opts.Refresh is set. The bool reports a cache hit.
func (r *Runner) AssembleWithCacheInfo(ctx context.Context, opts Options) (*lineage.Graph, []lineage.Warning, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForAssemble(); err != nil {
		return nil, nil, false, err
	}
	in, err := LoadInput(opts)
	if err != nil {
		return nil, nil, false, err
	}

	hooks := observability.Pipeline()
	hooks.OnAssembleStart(ctx, len(in.Edges))
	start := time.Now()

	inputHash, err := cache.HashJSON(in)
	if err != nil {
		hooks.OnAssembleComplete(ctx, 0, 0, 0, time.Since(start), err)
		return nil, nil, false, fmt.Errorf("hash input: %w", err)
	}
	key := r.Keyer.GraphKey(inputHash, cache.GraphKeyOpts{})

	if !opts.Refresh {
		var cached assembled
		if r.load(ctx, key, cache.KeyTypeGraph, &cached) {
			g := lineage.NewGraph(cached.Models, cached.Links)
			hooks.OnAssembleComplete(ctx, g.ModelCount(), g.LinkCount(), len(cached.Warnings), time.Since(start), nil)
			return g, cached.Warnings, true, nil
		}
	}

	g, warnings := assembleInput(in)
	for _, w := range warnings {
		opts.Logger.Warn("skipped edge", "code", w.Code, "edge", w.Edge, "msg", w.Message)
	}
	hooks.OnAssembleComplete(ctx, g.ModelCount(), g.LinkCount(), len(warnings), time.Since(start), nil)

	r.store(ctx, key, cache.KeyTypeGraph, assembled{Models: g.Models(), Links: g.Links(), Warnings: warnings}, cache.TTLGraph)
	return g, warnings, false, nil
}

// ComputeLayoutWithCacheInfo lays out g, keyed by its content hash and the
// layout options.
func (r *Runner) ComputeLayoutWithCacheInfo(ctx context.Context, g *lineage.Graph, opts Options) (layout.Result, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForLayout(); err != nil {
		return layout.Result{}, false, err
	}

	hooks := observability.Pipeline()
	hooks.OnLayoutStart(ctx, opts.Leveling, g.ModelCount())
	start := time.Now()

	key := r.Keyer.LayoutKey(graphHash(g), opts.LayoutKeyOpts())
	var res layout.Result
	if r.load(ctx, key, cache.KeyTypeLayout, &res) {
		hooks.OnLayoutComplete(ctx, opts.Leveling, res.Depth(), time.Since(start), nil)
		return res, true, nil
	}

	res, err := ComputeLayout(g, opts)
	hooks.OnLayoutComplete(ctx, opts.Leveling, res.Depth(), time.Since(start), err)
	if err != nil {
		return layout.Result{}, false, err
	}
	r.store(ctx, key, cache.KeyTypeLayout, res, cache.TTLLayout)
	return res, false, nil
}

// RenderWithCacheInfo renders doc. The bool is true only when every
// requested format came from cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, doc graph.Document, opts Options) (map[string][]byte, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForRender(); err != nil {
		return nil, false, err
	}

	docData, err := graph.MarshalDocument(doc)
	if err != nil {
		return nil, false, fmt.Errorf("serialize document for cache key: %w", err)
	}
	docHash := cache.Hash(docData)

	artifacts := make(map[string][]byte, len(opts.Formats))
	var missing []string
	for _, format := range opts.Formats {
		key := r.Keyer.ArtifactKey(docHash, opts.ArtifactKeyOpts(format))
		if data, ok := r.get(ctx, key, cache.KeyTypeArtifact); ok {
			artifacts[format] = data
			continue
		}
		missing = append(missing, format)
	}
	if len(missing) == 0 {
		return artifacts, true, nil
	}

	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, missing)
	start := time.Now()

	sub := opts
	sub.Formats = missing
	rendered, err := Render(ctx, doc, sub)
	hooks.OnRenderComplete(ctx, missing, time.Since(start), err)
	if err != nil {
		return nil, false, err
	}
	for format, data := range rendered {
		artifacts[format] = data
		key := r.Keyer.ArtifactKey(docHash, opts.ArtifactKeyOpts(format))
		r.set(ctx, key, cache.KeyTypeArtifact, data, cache.TTLArtifact)
	}
	return artifacts, false, nil
}

// Assemble is AssembleWithCacheInfo without the hit flag.
func (r *Runner) Assemble(ctx context.Context, opts Options) (*lineage.Graph, []lineage.Warning, error) {
	g, warnings, _, err := r.AssembleWithCacheInfo(ctx, opts)
	return g, warnings, err
}

// ComputeLayout is ComputeLayoutWithCacheInfo without the hit flag.
func (r *Runner) ComputeLayout(ctx context.Context, g *lineage.Graph, opts Options) (layout.Result, error) {
	res, _, err := r.ComputeLayoutWithCacheInfo(ctx, g, opts)
	return res, err
}

// Render is RenderWithCacheInfo without the hit flag.
func (r *Runner) Render(ctx context.Context, doc graph.Document, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, doc, opts)
	return artifacts, err
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// =============================================================================
// Cache helpers
// =============================================================================

func (r *Runner) get(ctx context.Context, key, keyType string) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Debug("cache read failed", "type", keyType, "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

func (r *Runner) set(ctx context.Context, key, keyType string, data []byte, ttl time.Duration) {
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Debug("cache write failed", "type", keyType, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

// load decodes a cached JSON value into v. Undecodable entries count as
// misses.
func (r *Runner) load(ctx context.Context, key, keyType string, v any) bool {
	data, ok := r.get(ctx, key, keyType)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.Logger.Debug("discarding corrupt cache entry", "type", keyType, "err", err)
		return false
	}
	return true
}

func (r *Runner) store(ctx context.Context, key, keyType string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r.set(ctx, key, keyType, data, ttl)
}

// applyLogger gives opts the runner's logger when it has none.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// graphHash identifies a graph by its canonical models and links.
func graphHash(g *lineage.Graph) string {
	h, _ := cache.HashJSON(assembled{Models: g.Models(), Links: g.Links()})
	return h
}

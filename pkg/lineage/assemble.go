package lineage

import (
	"fmt"
	"slices"
)

// AssembleOption configures [Assemble].
type AssembleOption func(*assembleConfig)

type assembleConfig struct {
	matcher Matcher
	catalog []Model
	lineage map[string]ColumnLineage
}

// WithMatcher replaces [MatchColumns] as the inference fallback.
func WithMatcher(m Matcher) AssembleOption {
	return func(c *assembleConfig) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithCatalog registers additional model snapshots after those embedded in
// the edges. Catalog models resolve id-only endpoints and appear in the
// graph even when no edge touches them.
func WithCatalog(models ...Model) AssembleOption {
	return func(c *assembleConfig) {
		c.catalog = append(c.catalog, models...)
	}
}

// WithColumnLineage supplies explicit column lineage keyed by model id.
// Explicit lineage outranks inferred lineage.
func WithColumnLineage(cl map[string]ColumnLineage) AssembleOption {
	return func(c *assembleConfig) {
		c.lineage = cl
	}
}

// linkKey is the ordered (source, target) pair identifying a Link.
type linkKey struct{ source, target string }

// Assemble builds a canonical lineage graph from raw edges.
//
// Models are registered in a single pass over the edges, source snapshot
// before target snapshot; the first snapshot seen for an id wins and a
// missing project becomes [DefaultProject]. Catalog models follow.
//
// Links are then built in edge order, one per ordered (source, target) pair.
// A duplicate edge is discarded without re-running the matcher, except that
// its supplied column links are adopted when the existing link has none.
//
// Edges with a missing id or an id that resolves to no model are skipped and
// reported in the returned warnings. The input is never mutated.
func Assemble(edges []RawEdge, opts ...AssembleOption) (*Graph, []Warning) {
	cfg := assembleConfig{matcher: MatchColumns}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := newGraph()
	for _, e := range edges {
		if e.Source.Model != nil {
			g.register(*e.Source.Model)
		}
		if e.Target.Model != nil {
			g.register(*e.Target.Model)
		}
	}
	for _, m := range cfg.catalog {
		g.register(m)
	}

	var warnings []Warning
	index := make(map[linkKey]int, len(edges))

	for i, e := range edges {
		src, tgt := e.Source.ModelID(), e.Target.ModelID()
		if src == "" || tgt == "" {
			warnings = append(warnings, Warning{
				Code:    WarnMissingEndpoint,
				Edge:    i,
				Message: fmt.Sprintf("edge %d: missing source or target id (source=%q target=%q)", i, src, tgt),
			})
			continue
		}
		srcModel, okSrc := g.byID[src]
		tgtModel, okTgt := g.byID[tgt]
		if !okSrc || !okTgt {
			missing := src
			if okSrc {
				missing = tgt
			}
			warnings = append(warnings, Warning{
				Code:    WarnUnresolvedModel,
				Edge:    i,
				Message: fmt.Sprintf("edge %d: model %q not found", i, missing),
			})
			continue
		}

		key := linkKey{src, tgt}
		if at, dup := index[key]; dup {
			if len(g.links[at].ColumnLinks) == 0 && len(e.ColumnLinks) > 0 {
				g.links[at].ColumnLinks = slices.Clone(e.ColumnLinks)
			}
			continue
		}

		links := cfg.columnLinks(e, g.models[srcModel], g.models[tgtModel])
		if links == nil {
			links = []ColumnLink{}
		}
		index[key] = len(g.links)
		g.links = append(g.links, Link{Source: src, Target: tgt, ColumnLinks: links})
	}

	return g, warnings
}

// columnLinks picks column links for a new link: supplied, then explicit,
// then inferred.
func (c *assembleConfig) columnLinks(e RawEdge, src, tgt Model) []ColumnLink {
	if len(e.ColumnLinks) > 0 {
		return slices.Clone(e.ColumnLinks)
	}
	if explicit := explicitLinks(c.lineage, src.ID, tgt.ID); len(explicit) > 0 {
		return explicit
	}
	if len(src.Columns) == 0 || len(tgt.Columns) == 0 {
		return []ColumnLink{}
	}
	return c.matcher(src.Columns, tgt.Columns)
}

// explicitLinks derives column links for (src, tgt) from the target's
// upstream records and the source's downstream records.
func explicitLinks(cl map[string]ColumnLineage, src, tgt string) []ColumnLink {
	if len(cl) == 0 {
		return nil
	}

	var links []ColumnLink
	seen := make(map[[2]string]bool)
	add := func(from, to string, conf float64) {
		k := [2]string{from, to}
		if seen[k] || from == "" || to == "" {
			return
		}
		seen[k] = true
		if conf <= 0 {
			conf = ConfidenceExplicit
		}
		links = append(links, ColumnLink{SourceColumn: from, TargetColumn: to, Confidence: conf})
	}

	if tl, ok := cl[tgt]; ok {
		for _, key := range tl.orderedKeys(tl.UpstreamColumns) {
			col := tl.columnName(key)
			for _, rel := range tl.UpstreamColumns[key] {
				if rel.ModelID == "" || string(rel.ModelID) == src {
					add(rel.Name, col, rel.Confidence)
				}
			}
		}
	}
	if sl, ok := cl[src]; ok {
		for _, key := range sl.orderedKeys(sl.DownstreamColumns) {
			col := sl.columnName(key)
			for _, rel := range sl.DownstreamColumns[key] {
				if string(rel.ModelID) == tgt {
					add(col, rel.Name, rel.Confidence)
				}
			}
		}
	}
	return links
}

// orderedKeys returns the keys of m in column declaration order, followed
// by any keys that name no declared column, sorted.
func (cl ColumnLineage) orderedKeys(m map[string][]RelatedColumn) []string {
	keys := make([]string, 0, len(m))
	used := make(map[string]bool, len(m))
	for _, c := range cl.Columns {
		for _, k := range []string{string(c.ID), c.Name} {
			if _, ok := m[k]; ok && k != "" && !used[k] {
				keys = append(keys, k)
				used[k] = true
			}
		}
	}
	var rest []string
	for k := range m {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// Package lineage assembles model-level lineage graphs and infers
// column-level lineage between dbt-style transformation models.
//
// # Overview
//
// The package works on three plain record types:
//
//   - [Model]: a transformation unit with an ordered list of [Column] values
//   - [Link]: a directed model-to-model edge, keyed by (source, target)
//   - [ColumnLink]: a scored column-to-column edge embedded in a Link
//
// Raw input arrives as a list of [RawEdge] values. Each endpoint is either an
// embedded model snapshot or a bare model id that resolves against snapshots
// seen elsewhere in the input (or a catalog supplied with [WithCatalog]).
//
// # Assembly
//
// [Assemble] canonicalizes models (first snapshot wins), builds one Link per
// ordered (source, target) pair and attaches column links:
//
//	g, warnings := lineage.Assemble(edges,
//	    lineage.WithColumnLineage(explicit),
//	)
//	for _, w := range warnings {
//	    log.Warn(w.Message, "edge", w.Edge)
//	}
//
// Column links come from, in order of precedence: links supplied on the raw
// edge, explicit [ColumnLineage] records, and finally [MatchColumns]. A
// duplicate raw edge never re-runs matching; it may only fill in column links
// when the existing link has none.
//
// Malformed edges (missing ids, unresolvable models) are skipped and reported
// as [Warning] values. Assembly never fails.
//
// # Column Matching
//
// [MatchColumns] is a cheap, order-stable name heuristic:
//
//	links := lineage.MatchColumns(
//	    []lineage.Column{{Name: "user_id"}},
//	    []lineage.Column{{Name: "USER_ID"}},
//	)
//	// [{user_id USER_ID 0.8}]
//
// When nothing matches and both sides have columns, a single fallback link
// between the first columns is emitted with [ConfidenceFallback].
//
// # Queries
//
// A [Graph] answers the questions the explorer views ask: [Graph.Neighborhood]
// returns one hop of upstream and downstream models, [Graph.RelatedColumns]
// finds same-named columns across models and [Graph.Filter] narrows the graph
// by project, name, tag or materialization.
//
// # Concurrency
//
// All functions are pure. A Graph is immutable after Assemble returns and is
// safe for concurrent reads.
package lineage

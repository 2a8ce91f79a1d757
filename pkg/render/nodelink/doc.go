// Package nodelink renders a lineage [graph.Document] as a node-link diagram.
//
// # Usage
//
//	dot := nodelink.ToDOT(doc, nodelink.Options{ShowColumns: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Positions
//
// Nodes are pinned to the layout positions: x is kept, y is negated because
// Graphviz grows upward, and both are converted from points to inches.
// [RenderSVG] uses the neato engine, which honors pinned positions instead
// of computing its own ranks.
//
// # Options
//
//   - ShowColumns: label each edge with its column links
//   - Detailed: add project, materialization, and column count to node
//     labels, and draw self-loops
//
// Nodes are filled by materialization (table, view, incremental,
// ephemeral, source).
//
// [graph.Document]: github.com/matzehuels/dbtlineage/pkg/graph.Document
package nodelink

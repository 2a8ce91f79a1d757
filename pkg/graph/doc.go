// Package graph defines the file and wire formats around a lineage graph.
//
// Three formats are handled here:
//
//   - Input: the raw edge list fed to the assembler, with optional model
//     catalog and explicit column lineage. JSON or YAML.
//   - [Document]: an assembled and laid out graph, ready to render. This is
//     what the CLI writes and the HTTP API serves.
//   - [Export]: a portable metadata dump of projects, models, and lineage.
//
// Input files are recognized by extension (.yaml and .yml are YAML,
// everything else JSON):
//
//	in, err := graph.ReadInputFile("lineage.yaml")
//	g, warnings := lineage.Assemble(in.Edges, in.Options()...)
//
// Documents always serialize as indented JSON so that hashing a document
// is stable across runs.
package graph

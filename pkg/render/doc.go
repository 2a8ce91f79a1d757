// Package render groups the output renderers for lineage documents.
//
// The [nodelink] subpackage draws a laid out document as a Graphviz
// node-link diagram, keeping every model at the position computed by
// pkg/layout.
//
// [nodelink]: github.com/matzehuels/dbtlineage/pkg/render/nodelink
package render

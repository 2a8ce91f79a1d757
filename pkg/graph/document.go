package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// =============================================================================
// Document - Render-ready Graph
// =============================================================================

// Document is an assembled graph together with its layout.
//
// Models and Links are in assembly order. Positions and Levels have an
// entry for every model. Warnings is never null when encoded.
type Document struct {
	Models    []lineage.Model            `json:"models" yaml:"models"`
	Links     []lineage.Link             `json:"links" yaml:"links"`
	Positions map[string]layout.Position `json:"positions" yaml:"positions"`
	Levels    map[string]int             `json:"levels" yaml:"levels"`
	Rows      [][]string                 `json:"rows,omitempty" yaml:"rows,omitempty"`
	BackEdges [][2]string                `json:"back_edges,omitempty" yaml:"back_edges,omitempty"`
	Warnings  []lineage.Warning          `json:"warnings" yaml:"warnings"`
}

// NewDocument combines a graph, its layout, and assembly warnings.
func NewDocument(g *lineage.Graph, res layout.Result, warnings []lineage.Warning) Document {
	if warnings == nil {
		warnings = []lineage.Warning{}
	}
	return Document{
		Models:    g.Models(),
		Links:     g.Links(),
		Positions: res.Positions,
		Levels:    res.Levels,
		Rows:      res.Rows,
		BackEdges: res.BackEdges,
		Warnings:  warnings,
	}
}

// Graph rebuilds the lineage graph held by d.
func (d Document) Graph() *lineage.Graph {
	return lineage.NewGraph(d.Models, d.Links)
}

// Layout returns the layout part of d.
func (d Document) Layout() layout.Result {
	order := make([]string, 0, len(d.Models))
	for _, row := range d.Rows {
		order = append(order, row...)
	}
	return layout.Result{
		Positions: d.Positions,
		Levels:    d.Levels,
		Rows:      d.Rows,
		Order:     order,
		BackEdges: d.BackEdges,
	}
}

// =============================================================================
// Serialization
// =============================================================================

// MarshalDocument encodes d as indented JSON.
func MarshalDocument(d Document) ([]byte, error) {
	return encode(d, FormatJSON)
}

// MarshalDocumentYAML encodes d as YAML.
func MarshalDocumentYAML(d Document) ([]byte, error) {
	return encode(d, FormatYAML)
}

// UnmarshalDocument decodes a JSON document.
func UnmarshalDocument(data []byte) (Document, error) {
	var d Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&d); err != nil {
		return Document{}, errs.Wrap(errs.ErrCodeInvalidFormat, err, "decode document")
	}
	if d.Warnings == nil {
		d.Warnings = []lineage.Warning{}
	}
	return d, nil
}

// WriteDocumentFile writes d as JSON to path.
func WriteDocumentFile(d Document, path string) error {
	data, err := MarshalDocument(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadDocumentFile reads a JSON document from path.
func ReadDocumentFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, errs.Wrap(errs.ErrCodeFileNotFound, err, "document %s not found", path)
	}
	if err != nil {
		return Document{}, err
	}
	return UnmarshalDocument(data)
}

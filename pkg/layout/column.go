package layout

import "github.com/matzehuels/dbtlineage/pkg/lineage"

// Column focus spacing.
const (
	ColumnOffsetX  = 300.0
	ColumnStartY   = -150.0
	ColumnSpacingY = 100.0
)

// ColumnNode is a positioned column in a column focus layout.
type ColumnNode struct {
	Key        string   `json:"key"`
	ModelID    string   `json:"model_id"`
	Column     string   `json:"column"`
	Confidence float64  `json:"confidence,omitempty"`
	Focus      bool     `json:"focus,omitempty"`
	Position   Position `json:"position"`
}

// ColumnEdge connects two column node keys.
type ColumnEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ColumnLayout is the output of [ColumnFocus].
type ColumnLayout struct {
	Nodes []ColumnNode `json:"nodes"`
	Edges []ColumnEdge `json:"edges"`
}

// ColumnKey identifies a column node as "model_id.column".
func ColumnKey(modelID, column string) string { return modelID + "." + column }

// ColumnFocus lays out the one-hop lineage of a column.
//
// The focal column sits at (0,0). Upstream column i is placed at
// (-300, -150+i*100) and downstream column i at (300, -150+i*100). A column
// that appears more than once keeps its first position but still gets an
// edge for every occurrence, and the index of later columns is not
// compacted.
func ColumnFocus(trace lineage.ColumnTrace) ColumnLayout {
	focusKey := ColumnKey(trace.ModelID, trace.Column)
	out := ColumnLayout{
		Nodes: []ColumnNode{{Key: focusKey, ModelID: trace.ModelID, Column: trace.Column, Focus: true}},
		Edges: []ColumnEdge{},
	}
	added := map[string]bool{focusKey: true}

	place := func(refs []lineage.ColumnRefAt, x float64, upstream bool) {
		for i, ref := range refs {
			key := ColumnKey(ref.ModelID, ref.Column)
			if !added[key] {
				added[key] = true
				out.Nodes = append(out.Nodes, ColumnNode{
					Key:        key,
					ModelID:    ref.ModelID,
					Column:     ref.Column,
					Confidence: ref.Confidence,
					Position:   Position{X: x, Y: ColumnStartY + float64(i)*ColumnSpacingY},
				})
			}
			if upstream {
				out.Edges = append(out.Edges, ColumnEdge{Source: key, Target: focusKey})
			} else {
				out.Edges = append(out.Edges, ColumnEdge{Source: focusKey, Target: key})
			}
		}
	}
	place(trace.Upstream, -ColumnOffsetX, true)
	place(trace.Downstream, ColumnOffsetX, false)
	return out
}

package nodelink

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// Options configures diagram generation.
type Options struct {
	// ShowColumns labels edges with "source -> target" column pairs.
	ShowColumns bool

	// Detailed adds model metadata to labels and keeps self-loops.
	Detailed bool
}

const pointsPerInch = 72.0

var materializedFill = map[string]string{
	"table":       "#dbeafe",
	"view":        "#dcfce7",
	"incremental": "#fef3c7",
	"ephemeral":   "#f3e8ff",
	"source":      "#e5e7eb",
}

// ToDOT converts a document to Graphviz DOT. Output is deterministic: nodes
// follow document model order and edges follow link order.
func ToDOT(doc graph.Document, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph lineage {\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  splines=true;\n")
	buf.WriteString("  outputorder=edgesfirst;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [color=\"#64748b\", fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("\n")

	for _, m := range doc.Models {
		attrs := []string{fmt.Sprintf("label=%q", fmtLabel(m, opts.Detailed))}
		if p, ok := doc.Positions[m.ID]; ok {
			attrs = append(attrs, fmt.Sprintf("pos=%q", fmtPos(p.X, p.Y)))
		}
		if fill, ok := materializedFill[m.Materialized]; ok {
			attrs = append(attrs, fmt.Sprintf("fillcolor=%q", fill))
		}
		if m.Description != "" {
			attrs = append(attrs, fmt.Sprintf("tooltip=%q", m.Description))
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", m.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, l := range doc.Links {
		if l.IsSelfLoop() && !opts.Detailed {
			continue
		}
		if opts.ShowColumns && len(l.ColumnLinks) > 0 {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", l.Source, l.Target, fmtColumnLinks(l.ColumnLinks))
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", l.Source, l.Target)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// fmtPos returns a pinned neato position in inches with y flipped.
func fmtPos(x, y float64) string {
	return strconv.FormatFloat(x/pointsPerInch, 'f', 4, 64) + "," +
		strconv.FormatFloat(-y/pointsPerInch, 'f', 4, 64) + "!"
}

func fmtLabel(m lineage.Model, detailed bool) string {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	if !detailed {
		return name
	}
	parts := []string{name, "project: " + m.Project}
	if m.Materialized != "" {
		parts = append(parts, "materialized: "+m.Materialized)
	}
	parts = append(parts, fmt.Sprintf("columns: %d", len(m.Columns)))
	return strings.Join(parts, "\n")
}

func fmtColumnLinks(links []lineage.ColumnLink) string {
	lines := make([]string, len(links))
	for i, cl := range links {
		lines[i] = cl.SourceColumn + " -> " + cl.TargetColumn
	}
	return strings.Join(lines, "\n")
}

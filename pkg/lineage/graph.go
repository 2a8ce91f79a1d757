package lineage

import (
	"slices"
	"strings"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
)

// Graph is an assembled lineage graph: canonical models in registration
// order and unique links in first-occurrence order.
//
// A Graph is immutable once returned by [Assemble] or [NewGraph]; accessor
// methods return copies.
type Graph struct {
	models []Model
	byID   map[string]int
	links  []Link
}

func newGraph() *Graph {
	return &Graph{byID: make(map[string]int)}
}

// NewGraph rebuilds a Graph from already canonical models and links, as
// stored in a serialized document. Later duplicates of a model id or link
// pair are dropped and links to unknown models are ignored.
func NewGraph(models []Model, links []Link) *Graph {
	g := newGraph()
	for _, m := range models {
		g.register(m)
	}
	seen := make(map[linkKey]bool, len(links))
	for _, l := range links {
		k := linkKey{l.Source, l.Target}
		if seen[k] || !g.Has(l.Source) || !g.Has(l.Target) {
			continue
		}
		seen[k] = true
		l.ColumnLinks = slices.Clone(l.ColumnLinks)
		if l.ColumnLinks == nil {
			l.ColumnLinks = []ColumnLink{}
		}
		g.links = append(g.links, l)
	}
	return g
}

// register adds m unless its id is already known. First write wins.
func (g *Graph) register(m Model) {
	if m.ID == "" {
		return
	}
	if _, ok := g.byID[m.ID]; ok {
		return
	}
	if m.Project == "" {
		m.Project = DefaultProject
	}
	m = m.clone()
	if m.Columns == nil {
		m.Columns = []Column{}
	}
	g.byID[m.ID] = len(g.models)
	g.models = append(g.models, m)
}

// =============================================================================
// Accessors
// =============================================================================

// Models returns the canonical models in registration order.
func (g *Graph) Models() []Model {
	out := make([]Model, len(g.models))
	for i, m := range g.models {
		out[i] = m.clone()
	}
	return out
}

// Links returns the canonical links in first-occurrence order.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	for i, l := range g.links {
		l.ColumnLinks = slices.Clone(l.ColumnLinks)
		out[i] = l
	}
	return out
}

// ModelCount returns the number of canonical models.
func (g *Graph) ModelCount() int { return len(g.models) }

// LinkCount returns the number of canonical links.
func (g *Graph) LinkCount() int { return len(g.links) }

// ColumnLinkCount returns the total number of column links over all links.
func (g *Graph) ColumnLinkCount() int {
	n := 0
	for _, l := range g.links {
		n += len(l.ColumnLinks)
	}
	return n
}

// Has reports whether a model with id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Model returns the canonical model with id.
func (g *Graph) Model(id string) (Model, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Model{}, false
	}
	return g.models[i].clone(), true
}

// Link returns the link for the ordered pair (source, target).
func (g *Graph) Link(source, target string) (Link, bool) {
	for _, l := range g.links {
		if l.Source == source && l.Target == target {
			return l, true
		}
	}
	return Link{}, false
}

// =============================================================================
// Neighborhood
// =============================================================================

// Neighbor is a model adjacent to the focus of a [Neighborhood], together
// with the column links of the connecting link.
type Neighbor struct {
	Model       Model        `json:"model" yaml:"model"`
	ColumnLinks []ColumnLink `json:"columnLinks" yaml:"columnLinks"`
}

// Neighborhood is one hop of lineage around a model.
type Neighborhood struct {
	Model      Model      `json:"model" yaml:"model"`
	Upstream   []Neighbor `json:"upstream" yaml:"upstream"`
	Downstream []Neighbor `json:"downstream" yaml:"downstream"`
}

// Neighborhood returns the model with id plus its direct parents and
// children, in link order. A self-loop lists the model on both sides.
// No transitive closure is computed.
func (g *Graph) Neighborhood(id string) (Neighborhood, error) {
	m, ok := g.Model(id)
	if !ok {
		return Neighborhood{}, errs.New(errs.ErrCodeModelNotFound, "model %q not found", id)
	}

	n := Neighborhood{Model: m, Upstream: []Neighbor{}, Downstream: []Neighbor{}}
	for _, l := range g.links {
		if l.Target == id {
			up, _ := g.Model(l.Source)
			n.Upstream = append(n.Upstream, Neighbor{Model: up, ColumnLinks: slices.Clone(l.ColumnLinks)})
		}
		if l.Source == id {
			down, _ := g.Model(l.Target)
			n.Downstream = append(n.Downstream, Neighbor{Model: down, ColumnLinks: slices.Clone(l.ColumnLinks)})
		}
	}
	return n, nil
}

// =============================================================================
// Column Search
// =============================================================================

// ColumnMatch locates a column on a specific model.
type ColumnMatch struct {
	ModelID   string `json:"model_id" yaml:"model_id"`
	ModelName string `json:"model_name" yaml:"model_name"`
	Project   string `json:"project" yaml:"project"`
	Column    Column `json:"column" yaml:"column"`
}

// RelatedColumns returns every column across all models whose name equals
// name, ignoring case, in model then column order.
func (g *Graph) RelatedColumns(name string) []ColumnMatch {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var out []ColumnMatch
	for _, m := range g.models {
		for _, c := range m.Columns {
			if strings.EqualFold(c.Name, name) {
				out = append(out, ColumnMatch{ModelID: m.ID, ModelName: m.Name, Project: m.Project, Column: c})
			}
		}
	}
	return out
}

// ColumnRefAt is a column on a specific model reached through a column link.
type ColumnRefAt struct {
	ModelID    string  `json:"model_id" yaml:"model_id"`
	Column     string  `json:"column" yaml:"column"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// ColumnTrace is one hop of column lineage around a single column.
type ColumnTrace struct {
	ModelID    string        `json:"model_id" yaml:"model_id"`
	Column     string        `json:"column" yaml:"column"`
	Upstream   []ColumnRefAt `json:"upstream" yaml:"upstream"`
	Downstream []ColumnRefAt `json:"downstream" yaml:"downstream"`
}

// ColumnTrace follows the column links of every link touching modelID and
// collects the columns feeding into or fed by column. Column names compare
// case-insensitively; the model's own spelling is reported.
func (g *Graph) ColumnTrace(modelID, column string) (ColumnTrace, error) {
	m, ok := g.Model(modelID)
	if !ok {
		return ColumnTrace{}, errs.New(errs.ErrCodeModelNotFound, "model %q not found", modelID)
	}
	name := ""
	for _, c := range m.Columns {
		if strings.EqualFold(c.Name, column) {
			name = c.Name
			break
		}
	}
	if name == "" {
		return ColumnTrace{}, errs.New(errs.ErrCodeNotFound, "column %q not found on model %q", column, modelID)
	}

	tr := ColumnTrace{ModelID: modelID, Column: name, Upstream: []ColumnRefAt{}, Downstream: []ColumnRefAt{}}
	for _, l := range g.links {
		for _, cl := range l.ColumnLinks {
			if l.Target == modelID && strings.EqualFold(cl.TargetColumn, name) {
				tr.Upstream = append(tr.Upstream, ColumnRefAt{ModelID: l.Source, Column: cl.SourceColumn, Confidence: cl.Confidence})
			}
			if l.Source == modelID && strings.EqualFold(cl.SourceColumn, name) {
				tr.Downstream = append(tr.Downstream, ColumnRefAt{ModelID: l.Target, Column: cl.TargetColumn, Confidence: cl.Confidence})
			}
		}
	}
	return tr, nil
}

// =============================================================================
// Filtering
// =============================================================================

// Filter narrows a graph. Empty fields match everything; set fields must all
// match.
type Filter struct {
	Project      string
	Search       string // case-insensitive substring of the model name
	Tag          string
	Materialized string
}

// IsZero reports whether the filter matches every model.
func (f Filter) IsZero() bool { return f == Filter{} }

// Matches reports whether m passes the filter.
func (f Filter) Matches(m Model) bool {
	if f.Project != "" && m.Project != f.Project {
		return false
	}
	if s := strings.TrimSpace(f.Search); s != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(s)) {
		return false
	}
	if f.Tag != "" && !m.HasTag(f.Tag) {
		return false
	}
	if f.Materialized != "" && m.Materialized != f.Materialized {
		return false
	}
	return true
}

// Filter returns the subgraph of models passing f and the links between
// them. Order is preserved.
func (g *Graph) Filter(f Filter) *Graph {
	if f.IsZero() {
		return NewGraph(g.models, g.links)
	}
	var models []Model
	for _, m := range g.models {
		if f.Matches(m) {
			models = append(models, m)
		}
	}
	return NewGraph(models, g.links)
}

// ProjectSummary counts the models of one project.
type ProjectSummary struct {
	Name       string `json:"name" yaml:"name"`
	ModelCount int    `json:"model_count" yaml:"model_count"`
}

// Projects lists the projects present in the graph in first-seen order.
func (g *Graph) Projects() []ProjectSummary {
	out := []ProjectSummary{}
	at := make(map[string]int)
	for _, m := range g.models {
		i, ok := at[m.Project]
		if !ok {
			i = len(out)
			at[m.Project] = i
			out = append(out, ProjectSummary{Name: m.Project})
		}
		out[i].ModelCount++
	}
	return out
}

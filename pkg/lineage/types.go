package lineage

import "slices"

// DefaultProject is the project assigned to models that arrive without one.
const DefaultProject = "default"

// Confidence scores attached to column links.
const (
	// ConfidenceExplicit is used for explicit lineage records that omit a score.
	ConfidenceExplicit = 1.0

	// ConfidenceHeuristic is the score of every name-based candidate match.
	ConfidenceHeuristic = 0.8

	// ConfidenceFallback is the score of the first-column fallback link.
	ConfidenceFallback = 0.5
)

// =============================================================================
// Entities
// =============================================================================

// Model is a transformation unit: a dbt model, seed or source table.
//
// Only ID, Name, Project and Columns take part in assembly. The remaining
// fields are carried through for filtering and display.
type Model struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Project      string   `json:"project,omitempty" yaml:"project,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Materialized string   `json:"materialized,omitempty" yaml:"materialized,omitempty"`
	Schema       string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Columns      []Column `json:"columns" yaml:"columns"`
}

// HasTag reports whether the model carries tag.
func (m Model) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m Model) clone() Model {
	m.Columns = slices.Clone(m.Columns)
	m.Tags = slices.Clone(m.Tags)
	return m
}

// Column is a named, optionally typed column owned by a Model.
type Column struct {
	Name         string `json:"name" yaml:"name"`
	DataType     string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty" yaml:"is_primary_key,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Link is a directed model-level lineage edge. Source and Target are model
// ids; the pair is unique within an assembled Graph.
type Link struct {
	Source      string       `json:"source" yaml:"source"`
	Target      string       `json:"target" yaml:"target"`
	ColumnLinks []ColumnLink `json:"columnLinks" yaml:"columnLinks"`
}

// IsSelfLoop reports whether the link starts and ends at the same model.
func (l Link) IsSelfLoop() bool { return l.Source == l.Target }

// ColumnLink connects a source column to a target column. Confidence is a
// heuristic score in [0,1], not a probability.
type ColumnLink struct {
	SourceColumn string  `json:"sourceColumn" yaml:"sourceColumn"`
	TargetColumn string  `json:"targetColumn" yaml:"targetColumn"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
}

// =============================================================================
// Raw Input
// =============================================================================

// RawEdge is an unvalidated lineage edge as delivered by a metadata source.
// ColumnLinks, when present, are used as-is instead of inferred links.
type RawEdge struct {
	Source      Endpoint     `json:"source" yaml:"source"`
	Target      Endpoint     `json:"target" yaml:"target"`
	ColumnLinks []ColumnLink `json:"columnLinks,omitempty" yaml:"columnLinks,omitempty"`
}

// Endpoint references a model from a RawEdge. It holds either an embedded
// snapshot (Model != nil) or only an id that must be resolved elsewhere.
type Endpoint struct {
	ID    string
	Model *Model
}

// Ref returns an id-only endpoint.
func Ref(id string) Endpoint { return Endpoint{ID: id} }

// Snapshot returns an endpoint embedding m.
func Snapshot(m Model) Endpoint { return Endpoint{ID: m.ID, Model: &m} }

// ModelID returns the referenced model id, preferring the snapshot's id.
func (e Endpoint) ModelID() string {
	if e.Model != nil && e.Model.ID != "" {
		return e.Model.ID
	}
	return e.ID
}

// Input bundles everything a metadata source delivers for one assembly.
type Input struct {
	Models        []Model                  `json:"models,omitempty" yaml:"models,omitempty"`
	Edges         []RawEdge                `json:"edges" yaml:"edges"`
	ColumnLineage map[string]ColumnLineage `json:"column_lineage,omitempty" yaml:"column_lineage,omitempty"`
}

// Options converts the optional parts of the input into assembly options.
func (in Input) Options() []AssembleOption {
	var opts []AssembleOption
	if len(in.Models) > 0 {
		opts = append(opts, WithCatalog(in.Models...))
	}
	if len(in.ColumnLineage) > 0 {
		opts = append(opts, WithColumnLineage(in.ColumnLineage))
	}
	return opts
}

// =============================================================================
// Explicit Column Lineage
// =============================================================================

// ColumnLineage is explicit, pre-computed column lineage for one model.
// Map keys are column names or column ids; ids resolve through Columns.
type ColumnLineage struct {
	Columns           []ColumnRef                `json:"columns" yaml:"columns"`
	UpstreamColumns   map[string][]RelatedColumn `json:"upstream_columns,omitempty" yaml:"upstream_columns,omitempty"`
	DownstreamColumns map[string][]RelatedColumn `json:"downstream_columns,omitempty" yaml:"downstream_columns,omitempty"`
}

// ColumnRef identifies a column inside a ColumnLineage record.
type ColumnRef struct {
	ID           FlexString `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string     `json:"name" yaml:"name"`
	DataType     string     `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	IsPrimaryKey bool       `json:"is_primary_key,omitempty" yaml:"is_primary_key,omitempty"`
}

// RelatedColumn is a column on another model linked to the keyed column.
type RelatedColumn struct {
	ID          FlexString `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string     `json:"name" yaml:"name"`
	ModelID     FlexString `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	ModelName   string     `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	ProjectName string     `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	Confidence  float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// columnName resolves a map key to a column name.
func (cl ColumnLineage) columnName(key string) string {
	for _, c := range cl.Columns {
		if c.ID != "" && string(c.ID) == key {
			return c.Name
		}
	}
	return key
}

// =============================================================================
// Diagnostics
// =============================================================================

// WarningCode classifies a skipped raw edge.
type WarningCode string

const (
	// WarnMissingEndpoint marks an edge without a source or target id.
	WarnMissingEndpoint WarningCode = "missing_endpoint"

	// WarnUnresolvedModel marks an edge whose id matches no known model.
	WarnUnresolvedModel WarningCode = "unresolved_model"
)

// Warning is a non-fatal assembly diagnostic. Edge is the index of the
// offending raw edge.
type Warning struct {
	Code    WarningCode `json:"code" yaml:"code"`
	Edge    int         `json:"edge" yaml:"edge"`
	Message string      `json:"message" yaml:"message"`
}

func (w Warning) String() string { return string(w.Code) + ": " + w.Message }

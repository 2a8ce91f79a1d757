package metadata

import "github.com/matzehuels/dbtlineage/pkg/lineage"

// apiModel is the /api/models wire shape. Column types arrive as "type" or
// "data_type" and primary keys as "isPrimaryKey" or "is_primary_key",
// depending on the service version.
type apiModel struct {
	ID           lineage.FlexString `json:"id"`
	Name         string             `json:"name"`
	Project      lineage.FlexString `json:"project"`
	Description  string             `json:"description"`
	Materialized string             `json:"materialized"`
	Schema       string             `json:"schema"`
	Tags         []string           `json:"tags"`
	Columns      []apiColumn        `json:"columns"`
}

type apiColumn struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	DataType     string `json:"data_type,omitempty"`
	Description  string `json:"description,omitempty"`
	IsPrimaryKey bool   `json:"isPrimaryKey,omitempty"`
	PrimaryKey   bool   `json:"is_primary_key,omitempty"`
}

func (m apiModel) toModel() lineage.Model {
	out := lineage.Model{
		ID:           string(m.ID),
		Name:         m.Name,
		Project:      string(m.Project),
		Description:  m.Description,
		Materialized: m.Materialized,
		Schema:       m.Schema,
		Tags:         m.Tags,
		Columns:      make([]lineage.Column, 0, len(m.Columns)),
	}
	if out.Name == "" {
		out.Name = out.ID
	}
	if out.Schema == "" {
		out.Schema = DefaultSchema
	}
	if out.Materialized == "" {
		out.Materialized = DefaultMaterialized
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	for _, c := range m.Columns {
		dt := c.DataType
		if dt == "" {
			dt = c.Type
		}
		out.Columns = append(out.Columns, lineage.Column{
			Name:         c.Name,
			DataType:     dt,
			Description:  c.Description,
			IsPrimaryKey: c.IsPrimaryKey || c.PrimaryKey,
		})
	}
	return out
}

package graph

import "github.com/matzehuels/dbtlineage/pkg/lineage"

// MetadataVersion is written to every export.
const MetadataVersion = "1.0"

// Export is a portable dump of a lineage graph. Field order is preserved in
// both JSON and YAML output.
type Export struct {
	MetadataVersion string                   `json:"metadata_version" yaml:"metadata_version"`
	Projects        []lineage.ProjectSummary `json:"projects" yaml:"projects"`
	Models          []lineage.Model          `json:"models" yaml:"models"`
	Lineage         []lineage.Link           `json:"lineage" yaml:"lineage"`
}

// NewExport snapshots g.
func NewExport(g *lineage.Graph) Export {
	return Export{
		MetadataVersion: MetadataVersion,
		Projects:        g.Projects(),
		Models:          g.Models(),
		Lineage:         g.Links(),
	}
}

// MarshalExport encodes e as indented JSON or YAML.
func MarshalExport(e Export, f Format) ([]byte, error) {
	return encode(e, f)
}

// ExportFilename is the suggested download name for an export.
func ExportFilename(f Format) string {
	return "dbt_metadata_export." + string(f)
}

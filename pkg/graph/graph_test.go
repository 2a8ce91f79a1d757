package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

const jsonInput = `{
  "models": [
    {"id": "orders", "name": "orders", "project": "shop"},
    {"id": "raw_orders", "name": "raw_orders", "project": "shop"}
  ],
  "edges": [
    {
      "source": {"id": "stg_orders", "name": "stg_orders", "columns": [{"name": "order_id"}]},
      "target": {"id": "orders", "name": "orders", "columns": [{"name": "order_id"}]}
    },
    {"source": "raw_orders", "target": "stg_orders"}
  ]
}`

const yamlInput = `
edges:
  - source:
      id: stg_orders
      name: stg_orders
      columns:
        - name: order_id
    target:
      id: orders
      name: orders
      columns:
        - name: order_id
  - source: raw_orders
    target: stg_orders
column_lineage:
  orders:
    columns:
      - id: 7
        name: order_id
    upstream_columns:
      "7":
        - name: order_id
          model_id: stg_orders
          confidence: 1
`

func TestReadInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		format   Format
		models   int
		lineages int
	}{
		{"json", jsonInput, FormatJSON, 2, 0},
		{"yaml", yamlInput, FormatYAML, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ReadInput(strings.NewReader(tt.body), tt.format)
			if err != nil {
				t.Fatalf("ReadInput: %v", err)
			}
			if len(in.Edges) != 2 {
				t.Fatalf("edges = %d, want 2", len(in.Edges))
			}
			if got := in.Edges[1].Source.ModelID(); got != "raw_orders" {
				t.Errorf("string endpoint id = %q", got)
			}
			if in.Edges[0].Source.Model == nil || len(in.Edges[0].Source.Model.Columns) != 1 {
				t.Error("object endpoint should carry a model snapshot")
			}
			if len(in.Models) != tt.models || len(in.ColumnLineage) != tt.lineages {
				t.Errorf("models=%d lineage=%d", len(in.Models), len(in.ColumnLineage))
			}
		})
	}
}

func TestReadInputInvalid(t *testing.T) {
	_, err := ReadInput(strings.NewReader(`{"edges": [`), FormatJSON)
	if !errs.Is(err, errs.ErrCodeInvalidFormat) {
		t.Errorf("want INVALID_FORMAT, got %v", err)
	}

	in, err := ReadInput(strings.NewReader(""), FormatYAML)
	if err != nil || len(in.Edges) != 0 {
		t.Errorf("empty yaml should decode to an empty input: %v", err)
	}
}

func TestReadInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lineage.yml")
	if err := os.WriteFile(path, []byte(yamlInput), 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := ReadInputFile(path)
	if err != nil {
		t.Fatalf("ReadInputFile: %v", err)
	}
	if len(in.Edges) != 2 {
		t.Errorf("edges = %d", len(in.Edges))
	}

	_, err = ReadInputFile(filepath.Join(dir, "missing.json"))
	if !errs.Is(err, errs.ErrCodeFileNotFound) {
		t.Errorf("want FILE_NOT_FOUND, got %v", err)
	}
}

func TestWriteInputFileRoundTrip(t *testing.T) {
	in, err := ReadInput(strings.NewReader(jsonInput), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "copy.yaml")
	if err := WriteInputFile(in, path); err != nil {
		t.Fatalf("WriteInputFile: %v", err)
	}
	back, err := ReadInputFile(path)
	if err != nil {
		t.Fatalf("ReadInputFile: %v", err)
	}

	g1, _ := lineage.Assemble(in.Edges, in.Options()...)
	g2, _ := lineage.Assemble(back.Edges, back.Options()...)
	if g1.ModelCount() != g2.ModelCount() || g1.ColumnLinkCount() != g2.ColumnLinkCount() {
		t.Errorf("graph changed across yaml round trip: %d/%d vs %d/%d",
			g1.ModelCount(), g1.ColumnLinkCount(), g2.ModelCount(), g2.ColumnLinkCount())
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"toml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}

	if FormatFromPath("a/b.YAML") != FormatYAML || FormatFromPath("x.json") != FormatJSON || FormatFromPath("noext") != FormatJSON {
		t.Error("FormatFromPath picked the wrong format")
	}
}

func sampleDocument(t *testing.T) Document {
	t.Helper()
	in, err := ReadInput(strings.NewReader(jsonInput), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	g, warnings := lineage.Assemble(in.Edges, in.Options()...)
	res := layout.Compute(g.Models(), g.Links(), layout.Options{})
	return NewDocument(g, res, warnings)
}

func TestDocumentFile(t *testing.T) {
	doc := sampleDocument(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := WriteDocumentFile(doc, path); err != nil {
		t.Fatalf("WriteDocumentFile: %v", err)
	}

	back, err := ReadDocumentFile(path)
	if err != nil {
		t.Fatalf("ReadDocumentFile: %v", err)
	}
	if len(back.Models) != 3 || len(back.Links) != 2 {
		t.Errorf("models=%d links=%d", len(back.Models), len(back.Links))
	}
	if back.Positions["raw_orders"] != doc.Positions["raw_orders"] {
		t.Error("positions changed")
	}
	if back.Graph().ColumnLinkCount() != 1 {
		t.Errorf("column links = %d, want 1", back.Graph().ColumnLinkCount())
	}
	if got := back.Layout().Depth(); got != 3 {
		t.Errorf("depth = %d, want 3", got)
	}

	if _, err := ReadDocumentFile(filepath.Join(t.TempDir(), "nope.json")); !errs.Is(err, errs.ErrCodeFileNotFound) {
		t.Errorf("want FILE_NOT_FOUND, got %v", err)
	}
}

func TestDocumentEncodesEmptyWarnings(t *testing.T) {
	data, err := MarshalDocument(sampleDocument(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"warnings": []`) {
		t.Errorf("warnings should encode as []:\n%s", data)
	}

	d, err := UnmarshalDocument([]byte(`{"models": [], "links": []}`))
	if err != nil || d.Warnings == nil {
		t.Errorf("UnmarshalDocument should default warnings: %v", err)
	}
}

func TestMarshalExport(t *testing.T) {
	g := sampleDocument(t).Graph()
	e := NewExport(g)

	y, err := MarshalExport(e, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(y), "\n")
	if lines[0] != `metadata_version: "1.0"` || lines[1] != "projects:" {
		t.Errorf("yaml export should keep key order, got:\n%s", y)
	}
	if !strings.Contains(string(y), "\nmodels:\n") || !strings.Contains(string(y), "\nlineage:\n") {
		t.Errorf("yaml export missing sections:\n%s", y)
	}

	j, err := MarshalExport(e, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(j), "{\n  \"metadata_version\": \"1.0\",\n  \"projects\"") {
		t.Errorf("json export unexpected:\n%s", j)
	}

	if ExportFilename(FormatYAML) != "dbt_metadata_export.yaml" {
		t.Error("unexpected export filename")
	}
}

package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

const shopManifest = `{
  "metadata": {"project_name": "shop"},
  "nodes": {
    "model.shop.stg_orders": {
      "resource_type": "model", "package_name": "shop", "name": "stg_orders",
      "schema": "staging", "description": "Cleaned orders", "tags": ["staging"],
      "config": {"materialized": "view"},
      "columns": {
        "order_id": {"name": "order_id", "description": "Order key", "data_type": "integer",
                     "constraints": [{"type": "primary_key"}]},
        "amount": {"name": "amount", "data_type": "numeric"}
      },
      "depends_on": {"nodes": ["source.shop.raw.orders"]}
    },
    "model.shop.orders": {
      "resource_type": "model", "package_name": "shop", "name": "orders",
      "schema": "mart", "config": {"materialized": "table"},
      "columns": {"revenue": {"name": "revenue"}, "order_id": {"name": "order_id"}},
      "depends_on": {"nodes": []},
      "raw_code": "select * from {{ ref('stg_orders') }}"
    },
    "test.shop.not_null_orders_order_id": {
      "resource_type": "test", "package_name": "shop", "name": "not_null_orders_order_id",
      "depends_on": {"nodes": ["model.shop.orders"]}
    }
  },
  "sources": {
    "source.shop.raw.orders": {
      "resource_type": "source", "package_name": "shop", "name": "orders",
      "source_name": "raw", "schema": "raw"
    }
  }
}`

const shopCatalog = `{
  "nodes": {
    "model.shop.stg_orders": {
      "columns": {
        "amount": {"name": "amount", "type": "NUMERIC", "index": 2},
        "order_id": {"name": "order_id", "type": "INTEGER", "index": 1, "comment": "from warehouse"}
      }
    }
  },
  "sources": {
    "source.shop.raw.orders": {
      "columns": {"amount": {"name": "amount", "type": "NUMERIC", "index": 1}}
    }
  }
}`

const analyticsManifest = `{
  "metadata": {"project_name": "analytics"},
  "nodes": {
    "model.analytics.revenue": {
      "resource_type": "model", "package_name": "analytics", "name": "revenue",
      "config": {"materialized": "table"},
      "depends_on": {"nodes": ["model.shop.orders", "model.finance.ledger"]}
    },
    "model.analytics.daily": {
      "resource_type": "model", "package_name": "analytics", "name": "daily",
      "config": {"materialized": "incremental"},
      "raw_code": "select * from {{ ref('stg_orders') }} join {{ ref('shop', 'orders') }} using (order_id)"
    }
  }
}`

func writeProject(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func dbtWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "shop"), map[string]string{
		ManifestPath: shopManifest,
		CatalogPath:  shopCatalog,
	})
	writeProject(t, filepath.Join(root, "analytics"), map[string]string{
		ManifestPath: analyticsManifest,
	})
	// neither compiled nor visible
	writeProject(t, filepath.Join(root, "docs"), map[string]string{"README.md": "docs"})
	writeProject(t, filepath.Join(root, ".hidden"), map[string]string{ManifestPath: shopManifest})
	return root
}

func modelIDs(models []lineage.Model) []string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids
}

func TestDBTProjectLoad(t *testing.T) {
	root := dbtWorkspace(t)

	in, err := DBTProject{Dir: root}.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	wantModels := []string{"analytics_daily", "analytics_revenue", "shop_orders", "shop_stg_orders", "shop_raw_orders"}
	if got := modelIDs(in.Models); !reflect.DeepEqual(got, wantModels) {
		t.Errorf("models = %v, want %v", got, wantModels)
	}

	type pair struct{ src, tgt string }
	var got []pair
	for _, e := range in.Edges {
		got = append(got, pair{e.Source.ModelID(), e.Target.ModelID()})
	}
	want := []pair{
		{"shop_stg_orders", "analytics_daily"},
		{"shop_orders", "analytics_daily"},
		{"shop_orders", "analytics_revenue"},
		{"model.finance.ledger", "analytics_revenue"},
		{"shop_stg_orders", "shop_orders"},
		{"shop_raw_orders", "shop_stg_orders"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
}

func TestDBTProjectModelDetails(t *testing.T) {
	in, err := DBTProject{Dir: dbtWorkspace(t)}.Load(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	byID := make(map[string]lineage.Model)
	for _, m := range in.Models {
		byID[m.ID] = m
	}

	stg := byID["shop_stg_orders"]
	if stg.Project != "shop" || stg.Materialized != "view" || stg.Schema != "staging" {
		t.Errorf("stg_orders = %+v", stg)
	}
	if !stg.HasTag("staging") || stg.Description != "Cleaned orders" {
		t.Errorf("stg_orders metadata = %+v", stg)
	}
	// catalog order and types, manifest descriptions and constraints
	wantCols := []lineage.Column{
		{Name: "order_id", DataType: "INTEGER", IsPrimaryKey: true, Description: "Order key"},
		{Name: "amount", DataType: "NUMERIC"},
	}
	if !reflect.DeepEqual(stg.Columns, wantCols) {
		t.Errorf("stg_orders columns = %+v, want %+v", stg.Columns, wantCols)
	}

	// no catalog entry: manifest declaration order
	orders := byID["shop_orders"]
	if len(orders.Columns) != 2 || orders.Columns[0].Name != "revenue" || orders.Columns[1].Name != "order_id" {
		t.Errorf("orders columns = %+v", orders.Columns)
	}
	if orders.Materialized != "table" {
		t.Errorf("orders materialized = %q", orders.Materialized)
	}

	src := byID["shop_raw_orders"]
	if src.Materialized != "source" || src.Schema != "raw" || len(src.Columns) != 1 {
		t.Errorf("source = %+v", src)
	}
}

func TestDBTProjectAssembles(t *testing.T) {
	in, err := DBTProject{Dir: dbtWorkspace(t)}.Load(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	g, warnings := lineage.Assemble(in.Edges, in.Options()...)

	if g.ModelCount() != 5 || g.LinkCount() != 5 {
		t.Errorf("models=%d links=%d, want 5 and 5", g.ModelCount(), g.LinkCount())
	}
	if len(warnings) != 1 || warnings[0].Code != lineage.WarnUnresolvedModel {
		t.Errorf("warnings = %+v, want one unresolved model", warnings)
	}
	if _, ok := g.Link("shop_orders", "analytics_revenue"); !ok {
		t.Error("cross-project link shop_orders -> analytics_revenue missing")
	}
}

func TestDBTProjectSingleProject(t *testing.T) {
	root := dbtWorkspace(t)
	p := DBTProject{Dir: filepath.Join(root, "shop")}

	in, err := p.Load(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	// orders falls back to the ref() in its SQL
	wantModels := []string{"shop_orders", "shop_stg_orders", "shop_raw_orders"}
	if got := modelIDs(in.Models); !reflect.DeepEqual(got, wantModels) {
		t.Errorf("models = %v, want %v", got, wantModels)
	}
	if len(in.Edges) != 2 || in.Edges[0].Source.ModelID() != "shop_stg_orders" || in.Edges[0].Target.ModelID() != "shop_orders" {
		t.Errorf("edges = %+v", in.Edges)
	}

	paths, err := p.WatchPaths()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(p.Dir, ManifestPath), filepath.Join(p.Dir, CatalogPath)}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("WatchPaths() = %v, want %v", paths, want)
	}
}

func TestDBTProjectErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		code  errs.Code
	}{
		{"missing dir", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, errs.ErrCodeFileNotFound},
		{"no manifests", func(t *testing.T) string { return t.TempDir() }, errs.ErrCodeFileNotFound},
		{"malformed manifest", func(t *testing.T) string {
			dir := t.TempDir()
			writeProject(t, dir, map[string]string{ManifestPath: "{not json"})
			return dir
		}, errs.ErrCodeInvalidInput},
		{"file instead of dir", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "manifest.json")
			writeProject(t, filepath.Dir(path), map[string]string{"manifest.json": "{}"})
			return path
		}, errs.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DBTProject{Dir: tt.setup(t)}.Load(context.Background(), false)
			if !errs.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestExtractReferences(t *testing.T) {
	sql := `
select * from {{ ref('stg_orders') }} o
join {{ ref("shop", "customers") }} c on o.customer_id = c.id
join {{ source('raw', 'payments') }} p using (order_id)
left join {{ ref( 'stg_orders' ) }} again using (order_id)
-- preference(x) is not a ref
`
	got := ExtractReferences(sql)
	want := []Reference{
		{Name: "stg_orders"},
		{Package: "shop", Name: "customers"},
		{Source: "raw", Name: "payments"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractReferences() = %+v, want %+v", got, want)
	}
}

func TestModelID(t *testing.T) {
	tests := []struct {
		pkg, source, name, want string
	}{
		{"shop", "", "orders", "shop_orders"},
		{"My Project", "", "orders", "my_project_orders"},
		{"shop", "raw", "orders", "shop_raw_orders"},
	}
	for _, tt := range tests {
		if got := ModelID(tt.pkg, tt.source, tt.name); got != tt.want {
			t.Errorf("ModelID(%q, %q, %q) = %q, want %q", tt.pkg, tt.source, tt.name, got, tt.want)
		}
	}
}

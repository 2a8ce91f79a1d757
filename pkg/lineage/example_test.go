package lineage_test

import (
	"fmt"

	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

func ExampleMatchColumns() {
	links := lineage.MatchColumns(
		[]lineage.Column{{Name: "order_date"}, {Name: "amount"}},
		[]lineage.Column{{Name: "ship_date"}},
	)
	for _, l := range links {
		fmt.Printf("%s -> %s (%.1f)\n", l.SourceColumn, l.TargetColumn, l.Confidence)
	}
	// Output:
	// order_date -> ship_date (0.8)
}

func ExampleMatchColumns_fallback() {
	links := lineage.MatchColumns(
		[]lineage.Column{{Name: "foo"}},
		[]lineage.Column{{Name: "bar"}},
	)
	fmt.Printf("%+v\n", links)
	// Output:
	// [{SourceColumn:foo TargetColumn:bar Confidence:0.5}]
}

func ExampleAssemble() {
	orders := lineage.Model{ID: "orders", Name: "orders", Columns: []lineage.Column{{Name: "id"}, {Name: "amount"}}}
	totals := lineage.Model{ID: "totals", Name: "totals", Columns: []lineage.Column{{Name: "id"}, {Name: "total"}}}

	g, warnings := lineage.Assemble([]lineage.RawEdge{
		{Source: lineage.Snapshot(orders), Target: lineage.Snapshot(totals)},
		{Source: lineage.Ref("orders"), Target: lineage.Ref("totals")},
		{Source: lineage.Ref("orders"), Target: lineage.Ref("missing")},
	})

	for _, l := range g.Links() {
		fmt.Println(l.Source, "->", l.Target, l.ColumnLinks)
	}
	for _, w := range warnings {
		fmt.Println(w)
	}
	// Output:
	// orders -> totals [{id id 0.8}]
	// unresolved_model: edge 2: model "missing" not found
}

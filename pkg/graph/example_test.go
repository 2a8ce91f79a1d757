package graph_test

import (
	"fmt"
	"strings"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

func ExampleReadInput() {
	body := `
models:
  - {id: raw_customers, name: raw_customers}
  - {id: stg_customers, name: stg_customers}
  - {id: customers, name: customers}
edges:
  - source: raw_customers
    target: stg_customers
  - source: stg_customers
    target: customers
  - source: customers
    target: dim_customers
`
	in, err := graph.ReadInput(strings.NewReader(body), graph.FormatYAML)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	g, warnings := lineage.Assemble(in.Edges, in.Options()...)
	fmt.Println("models:", g.ModelCount())
	fmt.Println("links:", g.LinkCount())
	fmt.Println("warnings:", len(warnings))
	for _, w := range warnings {
		fmt.Println(w)
	}
	// Output:
	// models: 3
	// links: 2
	// warnings: 1
	// unresolved_model: edge 2: model "dim_customers" not found
}

func ExampleMarshalExport() {
	g := lineage.NewGraph(
		[]lineage.Model{{ID: "a", Name: "a", Project: "shop"}, {ID: "b", Name: "b", Project: "shop"}},
		[]lineage.Link{{Source: "a", Target: "b"}},
	)

	data, _ := graph.MarshalExport(graph.NewExport(g), graph.FormatYAML)
	fmt.Print(string(data))
	// Output:
	// metadata_version: "1.0"
	// projects:
	//   - name: shop
	//     model_count: 2
	// models:
	//   - id: a
	//     name: a
	//     project: shop
	//     columns: []
	//   - id: b
	//     name: b
	//     project: shop
	//     columns: []
	// lineage:
	//   - source: a
	//     target: b
	//     columnLinks: []
}

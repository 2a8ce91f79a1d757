// Package pkg holds the libraries behind dbtlineage, a tool that turns dbt
// model lineage into laid out, renderable graphs.
//
// # Data flow
//
//	lineage input (file or metadata API)
//	         ↓
//	    [source] / [integrations/metadata]  load the raw edges
//	         ↓
//	    [lineage]   assemble the canonical model graph
//	         ↓
//	    [layout]    assign levels and positions
//	         ↓
//	    [graph] / [render/nodelink]  serialize as json, yaml, dot or svg
//
// [pipeline] chains these stages and caches each one through [cache].
// Errors carry machine readable codes from [errors]; [observability]
// wires structured logging into the pipeline, cache and HTTP hooks.
//
// # Quick start
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, nil)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    InputPath: "lineage.json",
//	    Formats:   []string{pipeline.FormatDOT},
//	})
//	if err != nil {
//	    return err
//	}
//	os.Stdout.Write(result.Artifacts[pipeline.FormatDOT])
//
// [source]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/source
// [integrations/metadata]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/integrations/metadata
// [lineage]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/lineage
// [layout]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/layout
// [graph]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/graph
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/render/nodelink
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/dbtlineage/pkg/observability
package pkg

package pipeline

import (
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// ComputeLayout positions every model of g.
func ComputeLayout(g *lineage.Graph, opts Options) (layout.Result, error) {
	if err := opts.ValidateForLayout(); err != nil {
		return layout.Result{}, err
	}
	return layout.Compute(g.Models(), g.Links(), opts.LayoutOptions()), nil
}

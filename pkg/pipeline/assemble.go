package pipeline

import (
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// LoadInput returns opts.Input, or reads opts.InputPath.
func LoadInput(opts Options) (lineage.Input, error) {
	if opts.Input != nil {
		return *opts.Input, nil
	}
	return graph.ReadInputFile(opts.InputPath)
}

// Assemble loads the input and builds the lineage graph. Warnings are
// logged at warn level and returned.
func Assemble(opts Options) (*lineage.Graph, []lineage.Warning, error) {
	if err := opts.ValidateForAssemble(); err != nil {
		return nil, nil, err
	}
	in, err := LoadInput(opts)
	if err != nil {
		return nil, nil, err
	}
	g, warnings := assembleInput(in)
	for _, w := range warnings {
		opts.Logger.Warn("skipped edge", "code", w.Code, "edge", w.Edge, "msg", w.Message)
	}
	return g, warnings, nil
}

func assembleInput(in lineage.Input) (*lineage.Graph, []lineage.Warning) {
	g, warnings := lineage.Assemble(in.Edges, in.Options()...)
	if warnings == nil {
		warnings = []lineage.Warning{}
	}
	return g, warnings
}

// assembled is the cached form of the assemble stage.
type assembled struct {
	Models   []lineage.Model   `json:"models"`
	Links    []lineage.Link    `json:"links"`
	Warnings []lineage.Warning `json:"warnings"`
}

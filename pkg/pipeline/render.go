package pipeline

import (
	"context"
	"fmt"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/render/nodelink"
)

// Render produces one artifact per requested format.
func Render(ctx context.Context, doc graph.Document, opts Options) (map[string][]byte, error) {
	if err := opts.ValidateForRender(); err != nil {
		return nil, err
	}

	artifacts := make(map[string][]byte, len(opts.Formats))
	var dot string
	for _, format := range opts.Formats {
		var data []byte
		var err error

		switch format {
		case FormatJSON:
			data, err = graph.MarshalDocument(doc)
		case FormatYAML:
			data, err = graph.MarshalDocumentYAML(doc)
		case FormatDOT, FormatSVG:
			if dot == "" {
				dot = nodelink.ToDOT(doc, opts.nodelinkOptions())
			}
			if format == FormatDOT {
				data = []byte(dot)
			} else {
				data, err = nodelink.RenderSVG(ctx, dot)
			}
		default:
			return nil, errs.New(errs.ErrCodeUnsupported, "unsupported format: %s", format)
		}

		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

func (o *Options) nodelinkOptions() nodelink.Options {
	return nodelink.Options{ShowColumns: o.ShowColumns, Detailed: o.Detailed}
}

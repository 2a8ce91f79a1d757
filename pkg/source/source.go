// Package source loads lineage input from local files, compiled dbt
// projects and remote metadata services, and watches local files for
// changes.
package source

import (
	"context"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/integrations/metadata"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// Source delivers assembly input.
type Source interface {
	// Load returns the current input. refresh bypasses any response cache.
	Load(ctx context.Context, refresh bool) (lineage.Input, error)
	// String describes the source for logs.
	String() string
}

// Watchable is implemented by sources backed by local files.
type Watchable interface {
	// WatchPaths lists the files whose changes alter the loaded input.
	WatchPaths() ([]string, error)
}

// File reads a JSON or YAML input file.
type File struct {
	Path string
}

func (f File) Load(ctx context.Context, _ bool) (lineage.Input, error) {
	if err := ctx.Err(); err != nil {
		return lineage.Input{}, err
	}
	return graph.ReadInputFile(f.Path)
}

func (f File) String() string { return f.Path }

func (f File) WatchPaths() ([]string, error) { return []string{f.Path}, nil }

// Remote pulls input from a metadata service.
type Remote struct {
	Client *metadata.Client
}

func (r Remote) Load(ctx context.Context, refresh bool) (lineage.Input, error) {
	return r.Client.FetchInput(ctx, refresh)
}

func (r Remote) String() string { return r.Client.BaseURL() }

var (
	_ Source    = File{}
	_ Source    = Remote{}
	_ Source    = DBTProject{}
	_ Watchable = File{}
	_ Watchable = DBTProject{}
)

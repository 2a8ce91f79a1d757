package cli

import (
	"context"
	"fmt"

	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// execute loads input (a file or a metadata API URL) and runs the pipeline
// on it behind a spinner.
func (c *CLI) execute(ctx context.Context, input string, opts pipeline.Options, noCache bool) (*pipeline.Result, error) {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return nil, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	src, err := c.newSource(input, runner.Cache)
	if err != nil {
		return nil, err
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Loading %s...", src))
	spinner.Start()

	in, err := src.Load(ctx, opts.Refresh)
	if err != nil {
		spinner.StopWithError("Load failed")
		return nil, fmt.Errorf("load %s: %w", src, err)
	}
	opts.Input = &in
	opts.Logger = c.Logger

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.StopWithError("Pipeline failed")
		return nil, err
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// writeArtifact writes data to path, or to stdout when path is empty.
func writeArtifact(path string, data []byte) error {
	w, err := openOutput(path)
	if err != nil {
		return fmt.Errorf("open output %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return w.Close()
}

// printWarnings lists assembly warnings.
func printWarnings(warnings []lineage.Warning) {
	for _, w := range warnings {
		printWarning("%s", w)
	}
}

// printResultSummary reports the written file and graph size. Nothing is
// printed when the artifact went to stdout.
func printResultSummary(result *pipeline.Result, path string) {
	if path == "" {
		return
	}
	printFile(path)
	printStats(result.Stats.ModelCount, result.Stats.LinkCount, result.CacheInfo.AssembleHit)
}

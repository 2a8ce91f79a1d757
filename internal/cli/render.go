package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/pipeline"
	"github.com/matzehuels/dbtlineage/pkg/source"
)

// defaultBase names outputs when the input is a URL or a dbt project
// directory and no -o is given.
const defaultBase = "lineage"

// renderOpts holds the render-specific flags shared by render and watch.
type renderOpts struct {
	output      string // output file (single format) or base path
	formats     string // comma-separated output formats
	showColumns bool   // label edges with column links
	detailed    bool   // model metadata in labels, keep self-loops
}

func (o *renderOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output file (single format, \"-\" for stdout) or base path (multiple)")
	cmd.Flags().StringVarP(&o.formats, "format", "f", pipeline.FormatSVG, "output format(s): "+strings.Join(pipeline.ValidFormats, ", ")+" (comma-separated)")
	cmd.Flags().BoolVar(&o.showColumns, "columns", false, "label edges with column links (dot, svg)")
	cmd.Flags().BoolVar(&o.detailed, "detailed", false, "show model metadata in labels (dot, svg)")
}

// apply parses the formats into opts.
func (o *renderOpts) apply(opts *pipeline.Options) error {
	formats, err := pipeline.ParseFormats(o.formats)
	if err != nil {
		return err
	}
	opts.Formats = formats
	opts.ShowColumns = o.showColumns
	opts.Detailed = o.detailed
	return nil
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		ro    renderOpts
		flags layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "render <input>",
		Short: "Render lineage to json, yaml, dot or svg",
		Long: `Render lineage to json, yaml, dot or svg.

json and yaml write the positioned document. dot writes a Graphviz graph
with every model pinned at its computed position, and svg renders that
graph with the embedded Graphviz.

With one format, -o names the file. With several, -o is a base path and
each file gets its format as extension. Without -o, outputs are named
after the input file, or written as lineage.<format> inside a dbt project
directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(c.Config.Layout)
			if err := ro.apply(&opts); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], opts, ro.output, flags.noCache)
		},
	}

	ro.register(cmd)
	flags.register(cmd)

	return cmd
}

// runRender runs the pipeline and writes one file per format.
func (c *CLI) runRender(ctx context.Context, input string, opts pipeline.Options, output string, noCache bool) error {
	result, err := c.execute(ctx, input, opts, noCache)
	if err != nil {
		return err
	}
	paths, err := writeArtifacts(result, input, output, opts.Formats)
	if err != nil {
		return err
	}

	printWarnings(result.Warnings)
	if len(paths) == 0 {
		return nil
	}
	printSuccess("Rendered %s", strings.Join(opts.Formats, ", "))
	for _, p := range paths {
		printFile(p)
	}
	printStats(result.Stats.ModelCount, result.Stats.LinkCount, result.CacheInfo.RenderHit)
	return nil
}

// writeArtifacts writes every requested format and returns the written
// paths. A single format with output "-" goes to stdout.
func writeArtifacts(result *pipeline.Result, input, output string, formats []string) ([]string, error) {
	if len(formats) == 1 && output == "-" {
		return nil, writeArtifact("", result.Artifacts[formats[0]])
	}

	var paths []string
	for _, format := range formats {
		path := outputPath(input, output, format, len(formats))
		if err := writeArtifact(path, result.Artifacts[format]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// outputPath picks the file for format. A single format uses output as
// given; otherwise output (or the input name) is a base path.
func outputPath(input, output, format string, count int) string {
	if count == 1 && output != "" {
		return output
	}
	return basePath(output, input) + "." + format
}

// basePath derives the base output path. If output is empty, the input's
// extension is stripped; a URL input falls back to "lineage". A known
// format extension on output is stripped as well.
func basePath(output, input string) string {
	if output == "" {
		if isURL(input) {
			return defaultBase
		}
		if isDir(input) {
			return filepath.Join(input, defaultBase)
		}
		return strings.TrimSuffix(input, filepath.Ext(input))
	}
	ext := filepath.Ext(output)
	if slices.Contains(pipeline.ValidFormats, strings.TrimPrefix(ext, ".")) {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	var (
		ro    renderOpts
		flags layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "watch <input>",
		Short: "Re-render whenever the input changes",
		Long: `Re-render whenever the input changes.

The input is an input file or a directory of compiled dbt projects, in
which case every target/manifest.json and target/catalog.json is watched.
It is rendered once at start and again after every write, with
rapid successive writes collapsed into one run. Failed runs are logged and
the previous outputs are kept. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if isURL(args[0]) {
				return fmt.Errorf("watch needs a local file or dbt project, got %s", args[0])
			}
			opts := flags.options(c.Config.Layout)
			if err := ro.apply(&opts); err != nil {
				return err
			}
			return c.runWatch(cmd.Context(), args[0], opts, ro.output, flags.noCache)
		},
	}

	ro.register(cmd)
	flags.register(cmd)

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, input string, opts pipeline.Options, output string, noCache bool) error {
	logger := loggerFromContext(ctx).WithPrefix("watch")
	if output == "-" {
		output = ""
	}

	rebuild := func(ctx context.Context) {
		prog := newProgress(logger)
		result, err := c.execute(ctx, input, opts, noCache)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("render failed", "err", err)
			}
			return
		}
		paths, err := writeArtifacts(result, input, output, opts.Formats)
		if err != nil {
			logger.Error("write failed", "err", err)
			return
		}
		for _, w := range result.Warnings {
			logger.Warn(w.Message, "code", w.Code)
		}
		prog.done("Rendered " + strings.Join(paths, ", "))
	}

	src, err := c.newSource(input, nil)
	if err != nil {
		return err
	}
	rebuild(ctx)
	printInfo("Watching %s (Ctrl+C to stop)", input)
	return source.WatchSource(ctx, src, c.Config.Watch.Debounce, rebuild)
}

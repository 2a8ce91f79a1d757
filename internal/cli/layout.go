package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// layoutCommand creates the layout command for computing model positions.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		output string
		flags  layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "layout <input>",
		Short: "Compute hierarchical positions for every model",
		Long: `Compute hierarchical positions for every model.

Models are assigned levels by a depth-first walk from the roots (models
with no upstream link). With --leveling longest-path (the default) a model
sits one level below its deepest parent; with first-visit it keeps the
level of the first path that reached it.

The output is JSON with positions, levels, rows and back edges. A level
summary is printed after the file is written.

Results are cached locally for faster subsequent runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(c.Config.Layout)
			opts.Formats = []string{pipeline.FormatJSON}
			return c.runLayout(cmd.Context(), args[0], opts, output, flags.noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	flags.register(cmd)

	return cmd
}

// runLayout runs the pipeline and writes the layout result.
func (c *CLI) runLayout(ctx context.Context, input string, opts pipeline.Options, output string, noCache bool) error {
	result, err := c.execute(ctx, input, opts, noCache)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result.Layout, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}
	if err := writeArtifact(output, append(data, '\n')); err != nil {
		return err
	}

	printWarnings(result.Warnings)
	printSuccess("Layout complete: %d levels", result.Layout.Depth())
	printLevels(result.Layout)
	if output != "" {
		printResultSummary(result, output)
	}
	return nil
}

// printLevels prints one line per level with its models in placement order.
func printLevels(res layout.Result) {
	for level, row := range res.Rows {
		printKeyValue(fmt.Sprintf("level %d", level), strings.Join(row, ", "))
	}
	if n := len(res.BackEdges); n > 0 {
		printDetail("%d back edge(s) ignored for leveling", n)
	}
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// assembleCommand creates the assemble command.
func (c *CLI) assembleCommand() *cobra.Command {
	var (
		output string
		flags  layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "assemble <input>",
		Short: "Assemble lineage into a positioned document",
		Long: `Assemble lineage into a positioned document.

The input is a JSON or YAML file of raw edges (optionally with a model
catalog and explicit column lineage), a dbt project directory, or the URL
of a metadata API. A dbt project is read from target/manifest.json and
target/catalog.json; a directory holding several projects loads them all
and links models across projects. Edges that reference unknown models are
skipped and reported as warnings.

The output is the document JSON: models, links with column links,
positions, levels and warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(c.Config.Layout)
			opts.Formats = []string{pipeline.FormatJSON}
			return c.runAssemble(cmd.Context(), args[0], opts, output, flags.noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	flags.register(cmd)

	return cmd
}

func (c *CLI) runAssemble(ctx context.Context, input string, opts pipeline.Options, output string, noCache bool) error {
	result, err := c.execute(ctx, input, opts, noCache)
	if err != nil {
		return err
	}
	if err := writeArtifact(output, result.Artifacts[pipeline.FormatJSON]); err != nil {
		return err
	}

	printWarnings(result.Warnings)
	if output != "" {
		printSuccess("Assembled lineage")
		printResultSummary(result, output)
		printNewline()
		printNextStep("Render", appName+" render "+input+" -f svg")
	}
	return nil
}

// exportCommand creates the export command.
func (c *CLI) exportCommand() *cobra.Command {
	var (
		output  string
		format  string
		refresh bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Write the metadata export (models and links)",
		Long: `Write the metadata export: every model and every link, without layout.

With -o . the export is written to dbt_metadata_export.json (or .yaml) in
the current directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := graph.ParseFormat(format)
			if err != nil {
				return err
			}
			opts := pipeline.Options{Refresh: refresh}
			return c.runExport(cmd.Context(), args[0], opts, f, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout, \".\" for the default file name)")
	cmd.Flags().StringVar(&format, "format", string(graph.FormatJSON), "export format: json, yaml")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results and remote responses")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runExport(ctx context.Context, input string, opts pipeline.Options, f graph.Format, output string, noCache bool) error {
	opts.Formats = []string{pipeline.FormatJSON}
	result, err := c.execute(ctx, input, opts, noCache)
	if err != nil {
		return err
	}

	data, err := graph.MarshalExport(graph.NewExport(result.Graph), f)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if output == "." {
		output = graph.ExportFilename(f)
	}
	if err := writeArtifact(output, data); err != nil {
		return err
	}

	printWarnings(result.Warnings)
	if output != "" {
		printSuccess("Exported %d models", result.Graph.ModelCount())
		printFile(output)
	}
	return nil
}

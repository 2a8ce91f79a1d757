package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// modelsCommand creates the models command.
func (c *CLI) modelsCommand() *cobra.Command {
	var (
		filter  lineage.Filter
		refresh bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "models <input>",
		Short: "List models as a table",
		Long: `List models as a table with their project, materialization, column
count and direct upstream and downstream link counts.

Filters combine: every given filter must match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{Refresh: refresh, Formats: []string{pipeline.FormatJSON}}
			result, err := c.execute(cmd.Context(), args[0], opts, noCache)
			if err != nil {
				return err
			}
			printWarnings(result.Warnings)
			return renderModels(cmd.OutOrStdout(), result.Graph, filter)
		},
	}

	cmd.Flags().StringVar(&filter.Project, "project", "", "only models of this project")
	cmd.Flags().StringVar(&filter.Search, "search", "", "only models whose name contains this text")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only models with this tag")
	cmd.Flags().StringVar(&filter.Materialized, "materialized", "", "only models with this materialization")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results and remote responses")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

// renderModels writes the models of g passing f. Link counts are taken from
// the whole graph, so filtered-out neighbors still count.
func renderModels(w io.Writer, g *lineage.Graph, f lineage.Filter) error {
	up := make(map[string]int)
	down := make(map[string]int)
	for _, l := range g.Links() {
		down[l.Source]++
		up[l.Target]++
	}

	models := g.Filter(f).Models()
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, "(0 models)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Project", "Materialized", "Columns", "Upstream", "Downstream", "Tags"})
	for _, m := range models {
		t.AppendRow(table.Row{
			m.ID, m.Name, m.Project, m.Materialized,
			len(m.Columns), up[m.ID], down[m.ID],
			strings.Join(m.Tags, ", "),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d models", len(models))})
	t.Render()
	return nil
}

// fetchCommand creates the fetch command.
func (c *CLI) fetchCommand() *cobra.Command {
	var (
		url     string
		output  string
		refresh bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Pull lineage from a metadata API into an input file",
		Long: `Pull models, model lineage and column lineage from a metadata API and
write them as an input file for the other commands.

The API must serve /api/models, /api/lineage and
/api/models/{id}/column-lineage, as "dbtlineage serve" does. Responses
are cached; use --refresh to bypass the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = c.Config.Source.URL
			}
			if url == "" {
				return fmt.Errorf("no source URL: pass --url or set [source] url")
			}
			return c.runFetch(cmd.Context(), url, output, refresh, noCache)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "metadata API base URL (default: [source] url)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, .json or .yaml (default: stdout)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass cached responses")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runFetch(ctx context.Context, url, output string, refresh, noCache bool) error {
	backend, err := c.newCache(ctx, noCache)
	if err != nil {
		return err
	}
	defer backend.Close()

	client, err := c.newMetadataClient(url, backend)
	if err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, "Fetching "+client.BaseURL()+"...")
	spinner.Start()
	in, err := client.FetchInput(ctx, refresh)
	if err != nil {
		spinner.StopWithError("Fetch failed")
		return err
	}
	spinner.Stop()

	if output == "" {
		data, err := graph.MarshalInput(in, graph.FormatJSON)
		if err != nil {
			return err
		}
		return writeArtifact("", data)
	}
	if err := graph.WriteInputFile(in, output); err != nil {
		return fmt.Errorf("write output %s: %w", output, err)
	}
	printSuccess("Fetched %d models, %d edges", len(in.Models), len(in.Edges))
	printFile(output)
	printNewline()
	printNextStep("Render", appName+" render "+output+" -f svg")
	return nil
}

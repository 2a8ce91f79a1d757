package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dbtlineage/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		url         string
		addr        string
		watch       bool
		corsOrigins []string
		flags       layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "serve [input]",
		Short: "Serve the lineage graph over HTTP",
		Long: `Serve the lineage graph over HTTP.

The graph is read from an input file, a directory of compiled dbt
projects, or a metadata API (--url or [source] url in the config). Endpoints live under /api: models, lineage,
column lineage, related columns, exports, rendered diagrams, and
POST /api/refresh to reload the source.

With --watch the input is reloaded whenever its files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := url
			if len(args) == 1 {
				input = args[0]
			}
			if input == "" {
				input = c.Config.Source.URL
			}
			if input == "" {
				return fmt.Errorf("no input: pass a file, a dbt project, --url, or set [source] url")
			}
			if watch && isURL(input) {
				return fmt.Errorf("--watch needs a local file or dbt project, got %s", input)
			}
			if !cmd.Flags().Changed("addr") {
				addr = c.Config.Server.Addr
			}
			if !cmd.Flags().Changed("cors-origin") {
				corsOrigins = c.Config.Server.CORSOrigins
			}

			cfg := server.Config{
				Addr:        addr,
				CORSOrigins: corsOrigins,
				Options:     flags.options(c.Config.Layout),
			}
			return c.runServe(cmd.Context(), input, cfg, watch, flags.noCache)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "metadata API base URL")
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload when the input files change")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "allowed CORS origin (repeatable, default: *)")
	flags.register(cmd)

	return cmd
}

// runServe loads the source once, then serves until ctx is done. A failed
// initial load aborts; later reload failures keep the previous graph.
func (c *CLI) runServe(ctx context.Context, input string, cfg server.Config, watch, noCache bool) error {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	src, err := c.newSource(input, runner.Cache)
	if err != nil {
		return err
	}
	cfg.Source = src
	cfg.Runner = runner
	cfg.Logger = c.Logger

	srv := server.New(cfg)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Loading %s...", src))
	spinner.Start()
	if err := srv.Reload(ctx, cfg.Options.Refresh); err != nil {
		spinner.StopWithError("Load failed")
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Loaded %s", src))
	printKeyValue("Listening", cfg.Addr)
	if watch {
		printKeyValue("Watching", input)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if watch {
		g.Go(func() error { return srv.Watch(ctx, c.Config.Watch.Debounce) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result and response cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheStatsCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Long: `Remove every cached entry from the configured backend.

For the redis backend only keys written by dbtlineage are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, where, err := c.clearCache(cmd.Context())
			if err != nil {
				return err
			}
			if where == "" {
				printInfo("Cache backend %q keeps nothing to clear", c.Config.Cache.Backend)
				return nil
			}
			printSuccess("Cleared %d cached entries", n)
			printDetail("Location: %s", where)
			return nil
		},
	}
}

// clearCache empties the configured backend and reports where it lives.
// Backends without persistent state return an empty location.
func (c *CLI) clearCache(ctx context.Context) (int, string, error) {
	switch c.Config.Cache.Backend {
	case cacheRedis:
		rc, err := cache.NewRedisCache(ctx, c.Config.Cache.RedisURL)
		if err != nil {
			return 0, "", err
		}
		defer rc.Close()
		n, err := rc.Clear(ctx)
		return n, c.Config.Cache.RedisURL, err
	case cacheFile:
		dir, err := c.cacheDir()
		if err != nil {
			return 0, "", fmt.Errorf("get cache dir: %w", err)
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return 0, "", err
		}
		n, err := fc.Clear()
		return n, dir, err
	}
	return 0, "", nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.Config.Cache.Backend == cacheRedis {
				fmt.Fprintln(cmd.OutOrStdout(), c.Config.Cache.RedisURL)
				return nil
			}
			dir, err := c.cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the size of the file cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.Config.Cache.Backend != cacheFile {
				printInfo("Stats are only available for the file backend (current: %s)", c.Config.Cache.Backend)
				return nil
			}
			dir, err := c.cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return err
			}
			entries, size, err := fc.Stats()
			if err != nil {
				return err
			}
			printKeyValue("Directory", dir)
			printKeyValue("Entries", fmt.Sprintf("%d", entries))
			printKeyValue("Size", formatBytes(size))
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

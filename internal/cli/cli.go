package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/buildinfo"
	"github.com/matzehuels/dbtlineage/pkg/cache"
	"github.com/matzehuels/dbtlineage/pkg/integrations/metadata"
	"github.com/matzehuels/dbtlineage/pkg/observability"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
	"github.com/matzehuels/dbtlineage/pkg/source"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "dbtlineage"

	// memoryCacheSize bounds the in-process cache backend.
	memoryCacheSize = 1024
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config

	configFile string
	verbose    bool
}

// New creates a new CLI instance with a default logger and the built-in
// configuration. The config file is read when a command runs.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: defaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "dbtlineage assembles and lays out dbt model lineage",
		Long: `dbtlineage builds a lineage graph from dbt model metadata, infers
column-level links, computes a hierarchical layout, and renders it as JSON,
YAML, DOT or SVG. It can also serve the graph over HTTP.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "config file (default: ./dbtlineage.toml or ~/.config/dbtlineage/config.toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(c.assembleCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.modelsCommand())
	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration and wires logging hooks before any command.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	path, explicit := c.configFile, c.configFile != ""
	if !explicit {
		path = configPath()
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return err
	}
	c.Config = cfg

	if c.verbose {
		c.SetLogLevel(LogDebug)
		hooks := observability.NewLogHooks(c.Logger)
		observability.SetPipelineHooks(hooks)
		observability.SetCacheHooks(hooks)
		observability.SetHTTPHooks(hooks)
	}
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	backend, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(backend, c.newKeyer(), c.Logger), nil
}

// newCache opens the configured cache backend.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.Config.Cache.Backend {
	case cacheNone:
		return cache.NewNullCache(), nil
	case cacheMemory:
		return cache.NewMemoryCache(memoryCacheSize)
	case cacheRedis:
		return cache.NewRedisCache(ctx, c.Config.Cache.RedisURL)
	}
	dir, err := c.cacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

func (c *CLI) newKeyer() cache.Keyer {
	keyer := cache.NewDefaultKeyer()
	if c.Config.Cache.Scope != "" {
		keyer = cache.NewScopedKeyer(keyer, c.Config.Cache.Scope)
	}
	return keyer
}

// =============================================================================
// Sources
// =============================================================================

// newSource resolves an input argument. http(s) URLs are read from a
// metadata API through the cache; anything else is a local file.
// newSource picks the source for input: a metadata API URL, a directory of
// compiled dbt projects, or an input file.
func (c *CLI) newSource(input string, backend cache.Cache) (source.Source, error) {
	if isDir(input) {
		return source.DBTProject{Dir: input}, nil
	}
	if !isURL(input) {
		return source.File{Path: input}, nil
	}
	client, err := c.newMetadataClient(input, backend)
	if err != nil {
		return nil, err
	}
	return source.Remote{Client: client}, nil
}

func (c *CLI) newMetadataClient(url string, backend cache.Cache) (*metadata.Client, error) {
	opts := []metadata.Option{metadata.WithConcurrency(c.Config.Source.Concurrency)}
	if c.Config.Source.Token != "" {
		opts = append(opts, metadata.WithToken(c.Config.Source.Token))
	}
	return metadata.NewClient(backend, url, c.Config.Cache.TTL, opts...)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the configured cache directory, falling back to the XDG
// location (~/.cache/dbtlineage/).
func (c *CLI) cacheDir() (string, error) {
	if c.Config.Cache.Dir != "" {
		return c.Config.Cache.Dir, nil
	}
	return cacheDir()
}

// cacheDir returns the cache directory using XDG standard (~/.cache/dbtlineage/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// openOutput opens path for writing, or stdout when path is empty or "-".
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// =============================================================================
// Options Helpers
// =============================================================================

// layoutFlags are the layout options shared by several commands. Values
// start from the configuration; flags override only when set.
type layoutFlags struct {
	leveling string
	hSpacing float64
	vSpacing float64
	offsetX  float64
	offsetY  float64
	refresh  bool
	noCache  bool
	cmd      *cobra.Command
}

func (f *layoutFlags) register(cmd *cobra.Command) {
	f.cmd = cmd
	cmd.Flags().StringVar(&f.leveling, "leveling", pipeline.DefaultLeveling, "leveling mode: longest-path, first-visit")
	cmd.Flags().Float64Var(&f.hSpacing, "horizontal-spacing", pipeline.DefaultHorizontalSpacing, "horizontal distance between models")
	cmd.Flags().Float64Var(&f.vSpacing, "vertical-spacing", pipeline.DefaultVerticalSpacing, "vertical distance between levels")
	cmd.Flags().Float64Var(&f.offsetX, "offset-x", pipeline.DefaultOffsetX, "x offset of every position")
	cmd.Flags().Float64Var(&f.offsetY, "offset-y", pipeline.DefaultOffsetY, "y offset of every position")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore cached results and remote responses")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
}

// options merges configuration and explicitly set flags.
func (f *layoutFlags) options(cfg LayoutConfig) pipeline.Options {
	opts := pipeline.Options{
		Leveling:          cfg.Leveling,
		HorizontalSpacing: cfg.HorizontalSpacing,
		VerticalSpacing:   cfg.VerticalSpacing,
		OffsetX:           cfg.OffsetX,
		OffsetY:           cfg.OffsetY,
		Refresh:           f.refresh,
	}
	changed := func(name string) bool { return f.cmd != nil && f.cmd.Flags().Changed(name) }
	if changed("leveling") {
		opts.Leveling = f.leveling
	}
	if changed("horizontal-spacing") {
		opts.HorizontalSpacing = f.hSpacing
	}
	if changed("vertical-spacing") {
		opts.VerticalSpacing = f.vSpacing
	}
	if changed("offset-x") {
		opts.OffsetX = f.offsetX
	}
	if changed("offset-y") {
		opts.OffsetY = f.offsetY
	}
	return opts
}

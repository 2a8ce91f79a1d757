package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/internal/server"
	"github.com/matzehuels/dbtlineage/pkg/cache"
	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/source"
)

// envPrefix prefixes every environment override.
const envPrefix = "DBTLINEAGE_"

// Cache backends.
const (
	cacheFile   = "file"
	cacheRedis  = "redis"
	cacheMemory = "memory"
	cacheNone   = "none"
)

// Config is the layered CLI configuration: defaults, then the TOML file,
// then .env and DBTLINEAGE_* variables. Command flags are applied last by
// each command.
type Config struct {
	Layout LayoutConfig `toml:"layout"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
	Source SourceConfig `toml:"source"`
	Watch  WatchConfig  `toml:"watch"`
}

type LayoutConfig struct {
	Leveling          string  `toml:"leveling"`
	HorizontalSpacing float64 `toml:"horizontal_spacing"`
	VerticalSpacing   float64 `toml:"vertical_spacing"`
	OffsetX           float64 `toml:"offset_x"`
	OffsetY           float64 `toml:"offset_y"`
}

type CacheConfig struct {
	Backend  string        `toml:"backend"`
	Dir      string        `toml:"dir"`
	RedisURL string        `toml:"redis_url"`
	Scope    string        `toml:"scope"` // key prefix, for caches shared between setups
	TTL      time.Duration `toml:"ttl"`   // metadata API responses
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

type SourceConfig struct {
	URL         string `toml:"url"`
	Token       string `toml:"token"`
	Concurrency int    `toml:"concurrency"`
}

type WatchConfig struct {
	Debounce time.Duration `toml:"debounce"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() Config {
	return Config{
		Layout: LayoutConfig{
			Leveling:          string(layout.DefaultLeveling),
			HorizontalSpacing: layout.DefaultHorizontalSpacing,
			VerticalSpacing:   layout.DefaultVerticalSpacing,
			OffsetX:           layout.DefaultOffsetX,
			OffsetY:           layout.DefaultOffsetY,
		},
		Cache:  CacheConfig{Backend: cacheFile, TTL: cache.TTLHTTP},
		Server: ServerConfig{Addr: server.DefaultAddr},
		Watch:  WatchConfig{Debounce: source.DefaultDebounce},
	}
}

// configPath returns the config file to read. ./dbtlineage.toml wins over
// the user config directory.
func configPath() string {
	if _, err := os.Stat(appName + ".toml"); err == nil {
		return appName + ".toml"
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

// loadConfig builds the configuration. An explicit path must exist; the
// default path and .env are optional.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicit {
				return cfg, errs.Wrap(errs.ErrCodeInvalidInput, err, "read config %s", path)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, errs.Wrap(errs.ErrCodeInvalidInput, err, "read .env")
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

// applyEnv overlays DBTLINEAGE_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"LEVELING":      &c.Layout.Leveling,
		"CACHE_BACKEND": &c.Cache.Backend,
		"CACHE_DIR":     &c.Cache.Dir,
		"CACHE_SCOPE":   &c.Cache.Scope,
		"REDIS_URL":     &c.Cache.RedisURL,
		"SERVER_ADDR":   &c.Server.Addr,
		"SOURCE_URL":    &c.Source.URL,
		"SOURCE_TOKEN":  &c.Source.Token,
	}
	for name, dst := range strs {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"HORIZONTAL_SPACING": &c.Layout.HorizontalSpacing,
		"VERTICAL_SPACING":   &c.Layout.VerticalSpacing,
		"OFFSET_X":           &c.Layout.OffsetX,
		"OFFSET_Y":           &c.Layout.OffsetY,
	}
	for name, dst := range floats {
		v := getenv(envPrefix + name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.ErrCodeInvalidInput, "%s%s: invalid number %q", envPrefix, name, v)
		}
		*dst = f
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL":      &c.Cache.TTL,
		"WATCH_DEBOUNCE": &c.Watch.Debounce,
	}
	for name, dst := range durations {
		v := getenv(envPrefix + name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.New(errs.ErrCodeInvalidInput, "%s%s: invalid duration %q", envPrefix, name, v)
		}
		*dst = d
	}

	if v := getenv(envPrefix + "SOURCE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.ErrCodeInvalidInput, "%sSOURCE_CONCURRENCY: invalid integer %q", envPrefix, v)
		}
		c.Source.Concurrency = n
	}
	if v := getenv(envPrefix + "CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := layout.ParseLeveling(c.Layout.Leveling); err != nil {
		return err
	}
	if err := errs.ValidateOneOf(errs.ErrCodeInvalidInput, "cache backend", c.Cache.Backend,
		cacheFile, cacheRedis, cacheMemory, cacheNone); err != nil {
		return err
	}
	if c.Cache.Backend == cacheRedis && c.Cache.RedisURL == "" {
		return errs.New(errs.ErrCodeInvalidInput, "cache backend redis requires redis_url")
	}
	if c.Source.URL != "" {
		if err := errs.ValidateURL(c.Source.URL); err != nil {
			return err
		}
	}
	return nil
}

// String renders the effective configuration as TOML with the token masked.
func (c Config) String() string {
	masked := c
	if masked.Source.Token != "" {
		masked.Source.Token = "****"
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(masked); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), c.Config.String())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file that is read by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configPath())
			return nil
		},
	})
	return cmd
}

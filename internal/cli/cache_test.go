package cli

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/matzehuels/dbtlineage/pkg/cache"
)

func TestCacheDir(t *testing.T) {
	t.Run("xdg", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
		dir, err := cacheDir()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join("/tmp/xdg-cache", appName); dir != want {
			t.Errorf("cacheDir() = %q, want %q", dir, want)
		}
	})

	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("XDG_CACHE_HOME", "")
		t.Setenv("HOME", home)
		dir, err := cacheDir()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(home, ".cache", appName); dir != want {
			t.Errorf("cacheDir() = %q, want %q", dir, want)
		}
	})

	t.Run("config override", func(t *testing.T) {
		c := New(io.Discard, LogInfo)
		c.Config.Cache.Dir = "/srv/cache"
		dir, err := c.cacheDir()
		if err != nil {
			t.Fatal(err)
		}
		if dir != "/srv/cache" {
			t.Errorf("cacheDir() = %q, want config value", dir)
		}
	})
}

func TestNewCacheBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		backend string
		noCache bool
		check   func(cache.Cache) bool
	}{
		{"file", cacheFile, false, func(c cache.Cache) bool { _, ok := c.(*cache.FileCache); return ok }},
		{"memory", cacheMemory, false, func(c cache.Cache) bool { _, ok := c.(*cache.MemoryCache); return ok }},
		{"redis", cacheRedis, false, func(c cache.Cache) bool { _, ok := c.(*cache.RedisCache); return ok }},
		{"none", cacheNone, false, func(c cache.Cache) bool { _, ok := c.(cache.NullCache); return ok }},
		{"no-cache flag", cacheFile, true, func(c cache.Cache) bool { _, ok := c.(cache.NullCache); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(io.Discard, LogInfo)
			c.Config.Cache.Backend = tt.backend
			c.Config.Cache.Dir = t.TempDir()
			c.Config.Cache.RedisURL = "redis://" + mr.Addr()

			got, err := c.newCache(ctx, tt.noCache)
			if err != nil {
				t.Fatalf("newCache: %v", err)
			}
			defer got.Close()
			if !tt.check(got) {
				t.Errorf("newCache() = %T", got)
			}
		})
	}
}

func TestNewKeyerScope(t *testing.T) {
	c := New(io.Discard, LogInfo)
	plain := c.newKeyer().HTTPKey("ns", "k")

	c.Config.Cache.Scope = "team-a"
	scoped := c.newKeyer().HTTPKey("ns", "k")
	if scoped == plain {
		t.Errorf("scoped key %q should differ from %q", scoped, plain)
	}
}

func TestClearCacheFile(t *testing.T) {
	ctx := context.Background()
	c := New(io.Discard, LogInfo)
	c.Config.Cache.Dir = t.TempDir()

	fc, err := cache.NewFileCache(c.Config.Cache.Dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := fc.Set(ctx, k, []byte(k), time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	n, where, err := c.clearCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || where != c.Config.Cache.Dir {
		t.Errorf("cleared %d at %q, want 3 at %q", n, where, c.Config.Cache.Dir)
	}
	if _, hit, _ := fc.Get(ctx, "a"); hit {
		t.Error("entry survived clear")
	}
}

func TestClearCacheRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c := New(io.Discard, LogInfo)
	c.Config.Cache.Backend = cacheRedis
	c.Config.Cache.RedisURL = "redis://" + mr.Addr()

	rc, err := cache.NewRedisCache(ctx, c.Config.Cache.RedisURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if err := rc.Set(ctx, "graph:x", []byte("{}"), time.Hour); err != nil {
		t.Fatal(err)
	}
	mr.Set("unrelated", "keep")

	n, _, err := c.clearCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cleared %d, want 1", n)
	}
	if !mr.Exists("unrelated") {
		t.Error("clear removed a foreign key")
	}
}

func TestClearCacheMemory(t *testing.T) {
	c := New(io.Discard, LogInfo)
	c.Config.Cache.Backend = cacheMemory
	n, where, err := c.clearCache(context.Background())
	if err != nil || n != 0 || where != "" {
		t.Errorf("got %d, %q, %v; want nothing to clear", n, where, err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/hoist/pkg/cache"
	"github.com/matzehuels/hoist/pkg/pipeline"
)

// appName names the binary for cache paths and user-facing text.
const appName = "hoist"

// Log levels exposed to callers of New.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI bundles the state shared by all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a CLI logging to w at the given level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel adjusts the logger level after construction.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// newRunner builds a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	backend, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(backend, nil, c.Logger), nil
}

// newCache selects the registry cache backend. The HOIST_CACHE variable
// overrides the default: "off" disables caching, a redis:// URL shares a
// Redis instance, and any other non-empty value is used as the cache
// directory. Without an override, responses are cached on disk under the
// user cache directory.
func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch env := os.Getenv("HOIST_CACHE"); {
	case env == "off":
		return cache.NewNullCache(), nil
	case strings.HasPrefix(env, "redis://"), strings.HasPrefix(env, "rediss://"):
		return cache.NewRedisCache(env)
	case env != "":
		return cache.NewFileCache(env)
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the default on-disk cache location, honoring
// XDG_CACHE_HOME and falling back to ~/.cache.
func cacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// registryOverride returns the registry URL from HOIST_REGISTRY, if set.
func registryOverride() string {
	return os.Getenv("HOIST_REGISTRY")
}

// pipelineOptions seeds the options shared by resolve, plan, and graph.
func (c *CLI) pipelineOptions(dir string) pipeline.Options {
	return pipeline.Options{
		Dir:      dir,
		Registry: registryOverride(),
		Logger:   c.Logger,
	}
}

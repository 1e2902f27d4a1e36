package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractaliser/pkg/cache"
	"github.com/matzehuels/fractaliser/pkg/config"
	"github.com/matzehuels/fractaliser/pkg/observability"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "fractaliser"

	// defaultJobs bounds concurrent renders in batch mode.
	defaultJobs = 4
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

	// configPath is the --config flag; empty means the XDG default.
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
	}
}

// SetLogLevel updates the logger's level. At debug level the observability
// hooks are routed to the logger too.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		hooks := observability.NewLogHooks(c.Logger)
		observability.SetPipelineHooks(hooks)
		observability.SetCacheHooks(hooks)
		observability.SetHTTPHooks(hooks)
	}
}

// =============================================================================
// Config & Runner Factory
// =============================================================================

// loadConfig reads the config file selected by --config.
func (c *CLI) loadConfig() (config.Config, error) {
	return config.Load(c.configPath)
}

// newRunner creates a pipeline runner backed by the configured cache.
// A cache that cannot be opened is logged and replaced by no cache; a
// render never fails because the cache is down.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config, noCache bool) *pipeline.Runner {
	runner := pipeline.NewRunner(c.openCache(ctx, cfg, noCache), nil, c.Logger)
	runner.TTL = cfg.Cache.TTL.Duration
	return runner
}

func (c *CLI) openCache(ctx context.Context, cfg config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	settings, err := cfg.CacheSettings()
	if err != nil {
		c.Logger.Warn("cache disabled", "err", err)
		return cache.NewNullCache()
	}
	ch, err := cache.Open(ctx, settings)
	if err != nil {
		c.Logger.Warn("cache disabled", "backend", settings.Backend, "err", err)
		return cache.NewNullCache()
	}
	c.Logger.Debug("cache opened", "backend", settings.Backend)
	return ch
}

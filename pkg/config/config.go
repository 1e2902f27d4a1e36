// Package config loads fractaliser settings from a TOML file.
//
// The file lives at $XDG_CONFIG_HOME/fractaliser/config.toml (falling back to
// ~/.config/fractaliser/config.toml) unless a path is given explicitly. Every
// key is optional; missing keys keep the values from [Default]. Unknown keys
// are rejected so typos do not go unnoticed.
//
//	[defaults]
//	slices = 25
//	blur = 0.0
//	brightness = 100
//
//	[viewport]
//	width = 0        # 0 = source width
//	height = 0
//	pixel_ratio = 1
//
//	[render]
//	interpolation = "bilinear"
//	blur_kernel = "box"
//	overflow = "clamp"
//	compression = "default"
//
//	[cache]
//	backend = "file"   # file | memory | redis | none
//	ttl = "168h"
//
//	[server]
//	addr = ":8080"
//	max_upload_mb = 20
//	session_ttl = "30m"
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/fractaliser/pkg/cache"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/session"
)

// appName names the config and cache directories.
const appName = "fractaliser"

// Duration is a time.Duration written as a Go duration string ("30m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the full configuration file.
type Config struct {
	Defaults render.Params   `toml:"defaults"`
	Viewport render.Viewport `toml:"viewport"`
	Render   RenderConfig    `toml:"render"`
	Cache    CacheConfig     `toml:"cache"`
	Server   ServerConfig    `toml:"server"`
}

// RenderConfig holds the non-parameter render options.
type RenderConfig struct {
	Interpolation string `toml:"interpolation"`
	BlurKernel    string `toml:"blur_kernel"`
	Overflow      string `toml:"overflow"`
	Compression   string `toml:"compression"`
}

// CacheConfig selects the artifact cache.
type CacheConfig struct {
	Backend       string   `toml:"backend"`
	Dir           string   `toml:"dir,omitempty"`
	MaxEntries    int      `toml:"max_entries"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password,omitempty"`
	RedisDB       int      `toml:"redis_db"`
	Namespace     string   `toml:"namespace"`
	TTL           Duration `toml:"ttl"`
}

// ServerConfig configures `fractaliser serve`.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	MaxUploadMB int      `toml:"max_upload_mb"`
	SessionTTL  Duration `toml:"session_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Defaults: render.DefaultParams(),
		Viewport: render.Viewport{PixelRatio: 1},
		Render: RenderConfig{
			Interpolation: pipeline.DefaultInterpolation,
			BlurKernel:    pipeline.DefaultBlurKernel,
			Overflow:      pipeline.DefaultOverflow,
			Compression:   pipeline.DefaultCompression,
		},
		Cache: CacheConfig{
			Backend:    string(cache.BackendFile),
			MaxEntries: cache.DefaultMemoryEntries,
			RedisAddr:  "localhost:6379",
			Namespace:  appName + ":",
			TTL:        Duration{cache.TTLArtifact},
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 20,
			SessionTTL:  Duration{session.DefaultTTL},
		},
	}
}

// Load reads the config file at path over [Default]. An empty path means
// [DefaultPath]; a missing default file is not an error, a missing explicit
// file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("[defaults]: %w", err)
	}
	if c.Viewport.Width < 0 || c.Viewport.Height < 0 || c.Viewport.PixelRatio < 0 {
		return fmt.Errorf("[viewport]: dimensions must not be negative")
	}
	opts := c.PipelineOptions()
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return fmt.Errorf("[render]: %w", err)
	}
	if _, err := cache.ParseBackend(c.Cache.Backend); err != nil {
		return fmt.Errorf("[cache]: %w", err)
	}
	if c.Cache.TTL.Duration < 0 {
		return fmt.Errorf("[cache]: ttl must not be negative")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("[server]: max_upload_mb must be positive")
	}
	if c.Server.SessionTTL.Duration <= 0 {
		return fmt.Errorf("[server]: session_ttl must be positive")
	}
	return nil
}

// PipelineOptions returns pipeline options seeded from the config.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Params:        c.Defaults,
		Viewport:      c.Viewport,
		Interpolation: c.Render.Interpolation,
		BlurKernel:    c.Render.BlurKernel,
		Overflow:      c.Render.Overflow,
		Compression:   c.Render.Compression,
	}
}

// CacheSettings returns the cache backend configuration. An empty file
// cache directory resolves to [DefaultCacheDir].
func (c Config) CacheSettings() (cache.Config, error) {
	backend, err := cache.ParseBackend(c.Cache.Backend)
	if err != nil {
		return cache.Config{}, err
	}
	dir := c.Cache.Dir
	if backend == cache.BackendFile && dir == "" {
		if dir, err = DefaultCacheDir(); err != nil {
			return cache.Config{}, err
		}
	}
	return cache.Config{
		Backend:    backend,
		Dir:        dir,
		MaxEntries: c.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			Addr:      c.Cache.RedisAddr,
			Password:  c.Cache.RedisPassword,
			DB:        c.Cache.RedisDB,
			Namespace: c.Cache.Namespace,
		},
	}, nil
}

// MaxUploadBytes returns the server upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// Encode writes c as TOML.
func Encode(w io.Writer, c Config) error {
	return toml.NewEncoder(w).Encode(c)
}

// =============================================================================
// Paths
// =============================================================================

// DefaultPath returns the config file path using XDG standard
// (~/.config/fractaliser/config.toml).
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// DefaultCacheDir returns the cache directory using XDG standard (~/.cache/fractaliser/).
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

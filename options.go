package livecore

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MatchaCake/livecore/internal/imagefetch"
	"github.com/MatchaCake/livecore/internal/sites/bililive"
	"github.com/MatchaCake/livecore/internal/sites/douyu"
)

// Config is the process-wide, immutable-after-construction configuration
// every facade call reads from.
type Config struct {
	ImageTimeout         time.Duration `yaml:"image_timeout"`
	ImageMaxBytes        int64         `yaml:"image_max_bytes"`
	ImageCacheMaxEntries int           `yaml:"image_cache_max_entries"`
	ImageCacheMaxBytes   int64         `yaml:"image_cache_max_bytes"`

	BiliLive bililive.Endpoints `yaml:"bililive_endpoints"`
	Douyu    douyu.Endpoints    `yaml:"douyu_endpoints"`
}

// DefaultConfig returns the documented defaults (§6.3): 12s image
// timeout, 2,500,000-byte image cap, 256-entry / 64MiB image cache.
func DefaultConfig() Config {
	img := imagefetch.DefaultConfig()
	return Config{
		ImageTimeout:         img.Timeout,
		ImageMaxBytes:        img.MaxBytes,
		ImageCacheMaxEntries: img.CacheMaxEntries,
		ImageCacheMaxBytes:   img.CacheMaxBytes,
		BiliLive:             bililive.DefaultEndpoints(),
		Douyu:                douyu.DefaultEndpoints(),
	}
}

// Option mutates a Config during New.
type Option func(*Config)

func WithImageTimeout(d time.Duration) Option {
	return func(c *Config) { c.ImageTimeout = d }
}

func WithImageMaxBytes(n int64) Option {
	return func(c *Config) { c.ImageMaxBytes = n }
}

func WithImageCacheLimits(maxEntries int, maxBytes int64) Option {
	return func(c *Config) {
		c.ImageCacheMaxEntries = maxEntries
		c.ImageCacheMaxBytes = maxBytes
	}
}

func WithBiliLiveEndpoints(ep bililive.Endpoints) Option {
	return func(c *Config) { c.BiliLive = ep }
}

func WithDouyuEndpoints(ep douyu.Endpoints) Option {
	return func(c *Config) { c.Douyu = ep }
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig; test
// harnesses and self-hosted deployments use this to point endpoints at
// local stand-ins without recompiling.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) imagefetchConfig() imagefetch.Config {
	return imagefetch.Config{
		Timeout:         c.ImageTimeout,
		MaxBytes:        c.ImageMaxBytes,
		CacheMaxEntries: c.ImageCacheMaxEntries,
		CacheMaxBytes:   c.ImageCacheMaxBytes,
	}
}

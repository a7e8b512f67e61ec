// Package config handles TOML-based configuration loading and validation.
// Values are layered: defaults, then the config file, then .env and
// BILIRELAY_* environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "BILIRELAY_"

// Config holds all application configuration.
type Config struct {
	Listen    string `toml:"listen"`
	PublicURL string `toml:"public_url"`
	APIBase   string `toml:"api_base"`
	Quality   int    `toml:"quality"`
	Timeout   int    `toml:"timeout"` // seconds, per upstream call
	Debug     bool   `toml:"debug"`
	LogJSON   bool   `toml:"log_json"`

	Cache CacheConfig `toml:"cache"`
	Proxy ProxyConfig `toml:"proxy"`
}

// CacheConfig selects the response cache store.
type CacheConfig struct {
	Backend       string `toml:"backend"`
	TTL           int    `toml:"ttl"` // seconds
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// ProxyConfig configures the media relay.
type ProxyConfig struct {
	AllowedHosts []string `toml:"allowed_hosts"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		APIBase: "https://api.bilibili.com",
		Quality: 80,
		Timeout: 8,
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     1200,
		},
		Proxy: ProxyConfig{
			AllowedHosts: []string{"bilivideo.com", "bilivideo.cn", "akamaized.net", "hdslb.com"},
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bilirelay"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bilirelay"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath returns the default sqlite cache location.
func CachePath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "bilirelay", "cache.db"), nil
}

// Load reads the config file at path (the XDG location when empty), merges
// it with defaults and applies environment overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// .env only fills variables that are not already set.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Cache.Backend == "sqlite" && cfg.Cache.Path == "" {
		p, err := CachePath()
		if err != nil {
			return nil, err
		}
		cfg.Cache.Path = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN":         &c.Listen,
		"PUBLIC_URL":     &c.PublicURL,
		"API_BASE":       &c.APIBase,
		"CACHE_BACKEND":  &c.Cache.Backend,
		"CACHE_PATH":     &c.Cache.Path,
		"REDIS_ADDR":     &c.Cache.RedisAddr,
		"REDIS_PASSWORD": &c.Cache.RedisPassword,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"QUALITY":   &c.Quality,
		"TIMEOUT":   &c.Timeout,
		"CACHE_TTL": &c.Cache.TTL,
		"REDIS_DB":  &c.Cache.RedisDB,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"DEBUG":    &c.Debug,
		"LOG_JSON": &c.LogJSON,
	}
	for name, dst := range bools {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = b
	}

	if v, ok := os.LookupEnv(envPrefix + "ALLOWED_HOSTS"); ok {
		c.Proxy.AllowedHosts = splitList(v)
	}

	// PORT is what most hosting platforms hand us.
	if port := os.Getenv("PORT"); port != "" {
		c.Listen = ":" + port
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if u, err := url.Parse(c.APIBase); err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("api_base %q must be an absolute https URL", c.APIBase)
	}

	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("public_url %q must be an absolute http(s) URL", c.PublicURL)
		}
	}

	validQualities := map[int]bool{
		6: true, 16: true, 32: true, 64: true, 74: true,
		80: true, 112: true, 116: true, 120: true,
	}
	if !validQualities[c.Quality] {
		return fmt.Errorf("unsupported quality %d (valid: 6, 16, 32, 64, 74, 80, 112, 116, 120)", c.Quality)
	}

	if c.Timeout < 1 || c.Timeout > 120 {
		return fmt.Errorf("timeout %d out of range (1-120 seconds)", c.Timeout)
	}

	validBackends := map[string]bool{
		"memory": true, "sqlite": true, "redis": true, "none": true,
	}
	if !validBackends[strings.ToLower(c.Cache.Backend)] {
		return fmt.Errorf("unsupported cache backend %q (valid: memory, sqlite, redis, none)", c.Cache.Backend)
	}
	c.Cache.Backend = strings.ToLower(c.Cache.Backend)

	if c.Cache.TTL < 1 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis cache backend needs redis_addr")
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return fmt.Errorf("sqlite cache backend needs a path")
	}

	if len(c.Proxy.AllowedHosts) == 0 {
		return fmt.Errorf("proxy allowed_hosts cannot be empty")
	}

	return nil
}

// RequestTimeout returns the per-call upstream timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CacheTTL returns the response cache freshness window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

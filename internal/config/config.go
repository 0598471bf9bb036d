// Package config loads client settings from a YAML file, COGNITUS_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "COGNITUS"
	appDir    = "cognitus"
)

// Config mirrors the config.yaml layout
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
	Stream StreamConfig `mapstructure:"stream"`
}

// ServerConfig locates the backend
type ServerConfig struct {
	URL       string        `mapstructure:"url"`
	AssetsURL string        `mapstructure:"assets_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds the bearer credential. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// CacheConfig controls the local history cache
type CacheConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StreamConfig tunes the event stream reader
type StreamConfig struct {
	ReadBuffer int `mapstructure:"read_buffer"`
}

// Load reads configuration. An explicit path must exist; without one the
// default locations are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appDir))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8000")
	v.SetDefault("server.assets_url", "")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", defaultPath(os.UserConfigDir, "token"))
	v.SetDefault("cache.path", defaultPath(os.UserCacheDir, "history.db"))
	v.SetDefault("cache.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("stream.read_buffer", 4096)
}

func defaultPath(base func() (string, error), name string) string {
	dir, err := base()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDir, name)
}

// Validate checks the settings a command needs to reach the server
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Server.AssetsURL != "" {
		if a, err := url.Parse(c.Server.AssetsURL); err != nil || a.Scheme == "" {
			return fmt.Errorf("server.assets_url %q is not an absolute URL", c.Server.AssetsURL)
		}
	}
	if c.Stream.ReadBuffer < 0 {
		return fmt.Errorf("stream.read_buffer must not be negative")
	}
	return nil
}

// AssetsBase returns the prefix for relative file map entries, defaulting to the server URL
func (c *Config) AssetsBase() string {
	if c.Server.AssetsURL != "" {
		return c.Server.AssetsURL
	}
	return c.Server.URL
}

// Package config loads stepwise configuration from a YAML file and applies
// STEPWISE_* environment overrides on top of it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "STEPWISE_CONFIG"

// Config is the full application configuration.
type Config struct {
	LogMode    string           `yaml:"log_mode"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	API        APIConfig        `yaml:"api"`
	Assets     AssetsConfig     `yaml:"assets"`
	Layout     LayoutConfig     `yaml:"layout"`
	Tessellate TessellateConfig `yaml:"tessellate"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	AllowOrigins  []string      `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"` // empty = in-memory
	ShareTTL  time.Duration `yaml:"share_ttl"`
}

// APIConfig tells the desktop shell where the persistence service lives.
// An empty BaseURL keeps the editor fully local.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	SessionToken string        `yaml:"session_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AssetsConfig struct {
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

type LayoutConfig struct {
	Strategy string `yaml:"strategy"` // authored | hierarchical
}

type TessellateConfig struct {
	Cells int `yaml:"cells"`
}

// Default returns a configuration that works without any file.
func Default() Config {
	return Config{
		LogMode: "dev",
		Server: ServerConfig{
			Addr:          ":8080",
			SessionSecret: "change-me",
			SessionTTL:    24 * time.Hour,
			AllowOrigins:  []string{"http://localhost:34115", "wails://wails"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "stepwise.db",
		},
		Cache: CacheConfig{
			ShareTTL: time.Hour,
		},
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Assets: AssetsConfig{
			MaxUploadBytes: 50 << 20,
			FetchTimeout:   30 * time.Second,
		},
		Layout: LayoutConfig{
			Strategy: "authored",
		},
		Tessellate: TessellateConfig{
			Cells: 48,
		},
	}
}

// Load reads the file at path (or $STEPWISE_CONFIG when path is empty) over
// the defaults, then applies environment overrides. A missing file named only
// through the environment is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the system cannot work with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Layout.Strategy {
	case "authored", "hierarchical":
	default:
		return fmt.Errorf("config: unknown layout strategy %q", c.Layout.Strategy)
	}
	if c.Assets.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: assets.max_upload_bytes must be positive")
	}
	if c.Tessellate.Cells < 8 {
		return fmt.Errorf("config: tessellate.cells must be at least 8")
	}
	return nil
}

func applyEnv(c *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("STEPWISE_LOG_MODE", &c.LogMode)
	str("STEPWISE_SERVER_ADDR", &c.Server.Addr)
	str("STEPWISE_SESSION_SECRET", &c.Server.SessionSecret)
	dur("STEPWISE_SESSION_TTL", &c.Server.SessionTTL)
	str("STEPWISE_DB_DRIVER", &c.Database.Driver)
	str("STEPWISE_DB_DSN", &c.Database.DSN)
	str("STEPWISE_REDIS_ADDR", &c.Cache.RedisAddr)
	dur("STEPWISE_SHARE_TTL", &c.Cache.ShareTTL)
	str("STEPWISE_API_BASE_URL", &c.API.BaseURL)
	str("STEPWISE_API_SESSION_TOKEN", &c.API.SessionToken)
	str("STEPWISE_LAYOUT_STRATEGY", &c.Layout.Strategy)
	dur("STEPWISE_FETCH_TIMEOUT", &c.Assets.FetchTimeout)

	if v := strings.TrimSpace(getenv("STEPWISE_MAX_UPLOAD_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Assets.MaxUploadBytes = n
		}
	}
	if v := strings.TrimSpace(getenv("STEPWISE_TESSELLATE_CELLS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tessellate.Cells = n
		}
	}
}

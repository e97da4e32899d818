// Package config loads the search client configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Sternrassler/nyt-search-client/pkg/client"
	"github.com/Sternrassler/nyt-search-client/pkg/logging"
	"github.com/Sternrassler/nyt-search-client/pkg/pacing"
	"github.com/Sternrassler/nyt-search-client/pkg/pagination"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides the configured API key when set.
const EnvAPIKey = "NYT_API_KEY"

// Config holds the search client configuration.
type Config struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	UserAgent  string `yaml:"user_agent" toml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_sec" toml:"timeout_sec"`

	Pacing  PacingConfig  `yaml:"pacing" toml:"pacing"`
	Redis   RedisConfig   `yaml:"redis" toml:"redis"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
}

// PacingConfig holds request pacing settings.
type PacingConfig struct {
	Mode              string `yaml:"mode" toml:"mode"` // delay, limiter, shared, none (default: delay)
	DelayMS           int    `yaml:"delay_ms" toml:"delay_ms"`
	RequestsPerMinute int    `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int    `yaml:"burst" toml:"burst"`
	PaceAfterLast     *bool  `yaml:"pace_after_last" toml:"pace_after_last"`
}

// RedisConfig holds the diagnostics store settings. An empty Addr keeps
// diagnostics in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	TTLSec   int    `yaml:"ttl_sec" toml:"ttl_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"` // debug, info, warn, error
	Pretty     bool   `yaml:"pretty" toml:"pretty"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// ServerConfig holds search-proxy HTTP settings.
type ServerConfig struct {
	Port            int `yaml:"port" toml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec" toml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" toml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

// Default returns a configuration with every default applied. Only the API
// key is missing; it is taken from NYT_API_KEY if set.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads the configuration file at path. The format is chosen by
// extension: .yaml/.yml or .toml. ${VAR} and ${VAR:-default} references are
// expanded before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = client.ArticleSearchURL
	}
	if c.UserAgent == "" {
		c.UserAgent = client.DefaultConfig("").UserAgent
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 30
	}
	if c.Pacing.Mode == "" {
		c.Pacing.Mode = string(pacing.ModeDelay)
	}
	if c.Pacing.DelayMS <= 0 {
		c.Pacing.DelayMS = int(pacing.DefaultDelay / time.Millisecond)
	}
	if c.Pacing.RequestsPerMinute <= 0 {
		c.Pacing.RequestsPerMinute = 10
	}
	if c.Pacing.Burst <= 0 {
		c.Pacing.Burst = 1
	}
	if c.Pacing.PaceAfterLast == nil {
		paceAfterLast := pagination.DefaultConfig().PaceAfterLast
		c.Pacing.PaceAfterLast = &paceAfterLast
	}
	if c.Redis.TTLSec <= 0 {
		c.Redis.TTLSec = 24 * 60 * 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LevelInfo)
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 28
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		// a paginated fetch of many pages is paced, so allow for it
		c.Server.WriteTimeoutSec = 600
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set %s)", EnvAPIKey)
	}
	switch pacing.Mode(c.Pacing.Mode) {
	case pacing.ModeDelay, pacing.ModeLimiter, pacing.ModeNone:
	case pacing.ModeShared:
		if c.Redis.Addr == "" {
			return fmt.Errorf("pacing.mode %q requires redis.addr", c.Pacing.Mode)
		}
	default:
		return fmt.Errorf("pacing.mode must be one of delay, limiter, shared, none; got %q", c.Pacing.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}
	return nil
}

// ClientConfig returns the search client configuration. The diagnostics
// recorder is left for the caller to attach.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		Timeout:   time.Duration(c.TimeoutSec) * time.Second,
	}
}

// PacingConfig returns the pacer configuration.
func (c Config) PacingConfig() pacing.Config {
	return pacing.Config{
		Mode:              pacing.Mode(c.Pacing.Mode),
		Delay:             time.Duration(c.Pacing.DelayMS) * time.Millisecond,
		RequestsPerMinute: c.Pacing.RequestsPerMinute,
		Burst:             c.Pacing.Burst,
	}
}

// PaginationConfig returns the paginated fetcher configuration.
func (c Config) PaginationConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	if c.Pacing.PaceAfterLast != nil {
		cfg.PaceAfterLast = *c.Pacing.PaceAfterLast
	}
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	cfg.FilePath = c.Logging.File
	cfg.MaxSizeMB = c.Logging.MaxSizeMB
	cfg.MaxBackups = c.Logging.MaxBackups
	cfg.MaxAgeDays = c.Logging.MaxAgeDays
	cfg.Compress = c.Logging.Compress
	return cfg
}

// RedisTTL returns how long diagnostics records are kept in Redis.
func (c Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSec) * time.Second
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

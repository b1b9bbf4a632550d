package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Executor modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// ExecutorConfig selects the execution backend. In remote mode URL is the
// base URL of the executor service and WSURL its live log endpoint
// (derived from URL when empty).
type ExecutorConfig struct {
	Mode           string        `yaml:"mode"`
	URL            string        `yaml:"url"`
	WSURL          string        `yaml:"ws_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LiveURL returns the websocket endpoint of the executor's live log
// channel: WSURL when set, otherwise URL with a ws(s) scheme and /ws path.
func (e ExecutorConfig) LiveURL() (string, error) {
	if e.WSURL != "" {
		return e.WSURL, nil
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", fmt.Errorf("executor.url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// execution history in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig selects the slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LimitsConfig bounds the local executor.
type LimitsConfig struct {
	GlobalMax int `yaml:"global_max"` // concurrent workflows (default: 10)
	PerTool   int `yaml:"per_tool"`   // concurrent calls of one tool (default: 3)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Executor: ExecutorConfig{
			Mode:           ModeLocal,
			PollInterval:   3 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Limits:  LimitsConfig{GlobalMax: 10, PerTool: 3},
	}
}

// Load reads a YAML configuration file at path, then applies FLOWDECK_*
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadDefault loads ".env" (if present) into the environment and then
// "config.yaml" from the current directory. A missing file yields the
// defaults plus environment overrides.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := Load("config.yaml")
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Executor.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.Executor.URL == "" {
			return errors.New("executor.url is required in remote mode")
		}
	default:
		return fmt.Errorf("executor.mode: unknown mode %q", c.Executor.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Executor.PollInterval <= 0 {
		return errors.New("executor.poll_interval must be positive")
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("FLOWDECK_HOST", &c.Server.Host)
	setString("FLOWDECK_EXECUTOR_MODE", &c.Executor.Mode)
	setString("FLOWDECK_EXECUTOR_URL", &c.Executor.URL)
	setString("FLOWDECK_EXECUTOR_WS_URL", &c.Executor.WSURL)
	setString("FLOWDECK_DATABASE_URL", &c.Database.URL)
	setString("FLOWDECK_LOG_LEVEL", &c.Logging.Level)
	setString("FLOWDECK_LOG_FORMAT", &c.Logging.Format)

	if v, ok := os.LookupEnv("FLOWDECK_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLOWDECK_PORT: %w", err)
		}
		c.Server.Port = port
	}
	for key, dst := range map[string]*time.Duration{
		"FLOWDECK_POLL_INTERVAL":   &c.Executor.PollInterval,
		"FLOWDECK_REQUEST_TIMEOUT": &c.Executor.RequestTimeout,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

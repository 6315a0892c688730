package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
	Query   QueryConfig   `yaml:"query"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"CUBICO_ADDR"`
	EnableCORS      bool          `yaml:"enable_cors" env:"CUBICO_ENABLE_CORS"`
	RateLimit       float64       `yaml:"rate_limit" env:"CUBICO_RATE_LIMIT"` // requests per second, 0 disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CUBICO_SHUTDOWN_TIMEOUT"`
}

// DataConfig selects the dataset loaded at startup. CSVPath wins over
// SQLiteDSN when both are set.
type DataConfig struct {
	CSVPath     string `yaml:"csv_path" env:"CUBICO_CSV_PATH"`
	SQLiteDSN   string `yaml:"sqlite_dsn" env:"CUBICO_SQLITE_DSN"`
	SQLiteQuery string `yaml:"sqlite_query" env:"CUBICO_SQLITE_QUERY"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" env:"CUBICO_LOG_LEVEL"`
}

// QueryConfig holds defaults for query endpoints
type QueryConfig struct {
	DefaultLimit int  `yaml:"default_limit" env:"CUBICO_DEFAULT_LIMIT"`
	MaxLimit     int  `yaml:"max_limit" env:"CUBICO_MAX_LIMIT"`
	Approximate  bool `yaml:"approximate" env:"CUBICO_APPROXIMATE"` // default std-dev mode
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			EnableCORS:      true,
			RateLimit:       50,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			MaxLimit:     10000,
		},
	}
}

// Load reads a YAML file over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if addr := os.Getenv("CUBICO_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if cors := os.Getenv("CUBICO_ENABLE_CORS"); cors != "" {
		v, err := strconv.ParseBool(cors)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_ENABLE_CORS: %w", err)
		}
		c.Server.EnableCORS = v
	}
	if rate := os.Getenv("CUBICO_RATE_LIMIT"); rate != "" {
		v, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_RATE_LIMIT: %w", err)
		}
		c.Server.RateLimit = v
	}
	if timeout := os.Getenv("CUBICO_SHUTDOWN_TIMEOUT"); timeout != "" {
		v, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_SHUTDOWN_TIMEOUT: %w", err)
		}
		c.Server.ShutdownTimeout = v
	}

	if path := os.Getenv("CUBICO_CSV_PATH"); path != "" {
		c.Data.CSVPath = path
	}
	if dsn := os.Getenv("CUBICO_SQLITE_DSN"); dsn != "" {
		c.Data.SQLiteDSN = dsn
	}
	if query := os.Getenv("CUBICO_SQLITE_QUERY"); query != "" {
		c.Data.SQLiteQuery = query
	}

	if level := os.Getenv("CUBICO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if limit := os.Getenv("CUBICO_DEFAULT_LIMIT"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_DEFAULT_LIMIT: %w", err)
		}
		c.Query.DefaultLimit = v
	}
	if limit := os.Getenv("CUBICO_MAX_LIMIT"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_MAX_LIMIT: %w", err)
		}
		c.Query.MaxLimit = v
	}
	if approx := os.Getenv("CUBICO_APPROXIMATE"); approx != "" {
		v, err := strconv.ParseBool(approx)
		if err != nil {
			return fmt.Errorf("invalid CUBICO_APPROXIMATE: %w", err)
		}
		c.Query.Approximate = v
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address must not be empty")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative: %v", c.Server.RateLimit)
	}
	if c.Data.SQLiteDSN != "" && c.Data.CSVPath == "" && c.Data.SQLiteQuery == "" {
		return fmt.Errorf("sqlite_query is required with sqlite_dsn")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Query.DefaultLimit <= 0 || c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("invalid query limits: default %d, max %d", c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	return nil
}

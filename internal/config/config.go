package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read once at process start
type Config struct {
	DBPath        string        `env:"FSTR_DB_PATH" envDefault:"./pereval.db"`
	DBBusyTimeout time.Duration `env:"FSTR_DB_BUSY_TIMEOUT" envDefault:"5s"`
	OpTimeout     time.Duration `env:"FSTR_OP_TIMEOUT" envDefault:"15s"`

	Port        int    `env:"PORT" envDefault:"8001"`
	Bind        string `env:"FSTR_BIND"`
	AllowSubnet string `env:"FSTR_ALLOW_SUBNET"`

	LogLevel string `env:"FSTR_LOG_LEVEL" envDefault:"info"`
	Log      LogConfig

	OptimizeSchedule string `env:"FSTR_OPTIMIZE_SCHEDULE" envDefault:"@daily"`
}

// LogConfig controls the rotating log file
type LogConfig struct {
	File       string `env:"FSTR_LOG_FILE"`
	MaxSizeMB  int    `env:"FSTR_LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"FSTR_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"FSTR_LOG_MAX_AGE_DAYS" envDefault:"30"`
	Compress   bool   `env:"FSTR_LOG_COMPRESS" envDefault:"true"`
}

// Load reads the optional dotenv files into the environment (existing
// variables win) and parses Config from it.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks values that flags or env may have set
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return fmt.Errorf("invalid bind address: %s", c.Bind)
	}
	if c.AllowSubnet != "" {
		if _, _, err := net.ParseCIDR(c.AllowSubnet); err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", c.AllowSubnet)
		}
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// AllowedNet returns the parsed allow-subnet, or nil when unrestricted
func (c *Config) AllowedNet() *net.IPNet {
	if c.AllowSubnet == "" {
		return nil
	}
	_, n, err := net.ParseCIDR(c.AllowSubnet)
	if err != nil {
		return nil
	}
	return n
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

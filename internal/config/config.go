package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

type Config struct {
	Redis      RedisConfig      `toml:"redis"`
	Collection CollectionConfig `toml:"collection"`
	Source     SourceConfig     `toml:"source"`
	Logging    LoggingConfig    `toml:"logging"`
}

type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	DialTimeout  Duration `toml:"dial_timeout"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	PoolSize     int      `toml:"pool_size"`
}

type CollectionConfig struct {
	TTL          Duration `toml:"ttl"`
	WatchRetries int      `toml:"watch_retries"`
}

type SourceConfig struct {
	Path   string `toml:"path"`
	Bucket string `toml:"bucket"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string ("90s", "5m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:         "127.0.0.1:6379",
			DialTimeout:  Duration{5 * time.Second},
			ReadTimeout:  Duration{3 * time.Second},
			WriteTimeout: Duration{3 * time.Second},
			PoolSize:     10,
		},
		Source: SourceConfig{
			Path:   "~/.rediscache/source.db",
			Bucket: "companies",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, only defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		// Try default location
		path = expandHome("~/.rediscache/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if err := validateAddr(c.Redis.Addr); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("redis.addr: %w", err))
	}
	if c.Redis.DB < 0 {
		errs = multierror.Append(errs, fmt.Errorf("redis.db: must not be negative, got %d", c.Redis.DB))
	}
	if c.Redis.PoolSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("redis.pool_size: must not be negative, got %d", c.Redis.PoolSize))
	}
	for name, d := range map[string]Duration{
		"redis.dial_timeout":  c.Redis.DialTimeout,
		"redis.read_timeout":  c.Redis.ReadTimeout,
		"redis.write_timeout": c.Redis.WriteTimeout,
		"collection.ttl":      c.Collection.TTL,
	} {
		if d.Duration < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: must not be negative, got %s", name, d.Duration))
		}
	}
	if c.Collection.WatchRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("collection.watch_retries: must not be negative, got %d", c.Collection.WatchRetries))
	}
	if strings.TrimSpace(c.Source.Path) == "" {
		errs = multierror.Append(errs, fmt.Errorf("source.path: required"))
	}
	if strings.TrimSpace(c.Source.Bucket) == "" {
		errs = multierror.Append(errs, fmt.Errorf("source.bucket: required"))
	}
	if err := validateLogLevel(c.Logging.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := validateLogFormat(c.Logging.Format); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("logging.format: %w", err))
	}

	return errs.ErrorOrNil()
}

func validateAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("empty host in %q", addr)
	}
	if port == "" {
		return fmt.Errorf("empty port in %q", addr)
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown level %q", level)
}

func validateLogFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

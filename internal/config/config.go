package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the persistence backend.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Config represents the application configuration
type Config struct {
	Backend         Backend           `yaml:"backend"` // sqlite | redis; empty picks redis when redis.address is set
	Database        DatabaseConfig    `yaml:"database"`
	Redis           RedisConfig       `yaml:"redis"`
	Store           StoreConfig       `yaml:"store"`
	HTTP            HTTPConfig        `yaml:"http"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Log             LogConfig         `yaml:"log"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains document store connection settings
type RedisConfig struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	PoolSize     int      `yaml:"pool_size"`
	MinIdleConns int      `yaml:"min_idle_conns"`
	DialTimeout  Duration `yaml:"dial_timeout"`
}

// StoreConfig contains settings applied to every repository call
type StoreConfig struct {
	Timeout Duration `yaml:"timeout"` // Per-call store timeout (default: 5s)
}

// HTTPConfig contains API server settings
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"use_json"`
	Colors  bool   `yaml:"colors"`
}

// Addr returns host:port for the API server
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns host:port for the health server
func (c HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
// A missing file is not an error: defaults (plus environment) are used.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lights.sqlite"
	}

	// Backend defaults to redis only when it is configured, mirroring "use the
	// document store when its URI is set, otherwise keep SQLite".
	if cfg.Backend == "" {
		if cfg.Redis.Address != "" {
			cfg.Backend = BackendRedis
		} else {
			cfg.Backend = BackendSQLite
		}
	}

	// Redis defaults
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = 1
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = Duration(5 * time.Second)
	}

	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = Duration(5 * time.Second)
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8000
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that have no sensible default.
func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendSQLite:
	case BackendRedis:
		if cfg.Redis.Address == "" {
			return fmt.Errorf("backend %q requires redis.address", cfg.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", cfg.Backend, BackendSQLite, BackendRedis)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

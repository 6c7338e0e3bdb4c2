package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values mirrored by the CLI flags
const (
	DefaultEndpoint       = "https://overpass-api.de/api/interpreter"
	DefaultPadding        = 0.02 // degrees around the chunk coordinate
	DefaultQueryTimeout   = 180  // seconds, passed to Overpass as [timeout:N]
	DefaultMaxRetries     = 5
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultRadius         = 5
	DefaultMetersPerLevel = 3.0

	// Center used when no point is given (Tbilisi)
	DefaultLat = 41.715
	DefaultLon = 44.783
)

// Config holds the settings shared by all commands
type Config struct {
	// Upstream settings
	Endpoint     string        `yaml:"endpoint"`
	UserAgent    string        `yaml:"user_agent"`
	Padding      float64       `yaml:"padding"`
	QueryTimeout int           `yaml:"query_timeout"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`

	// Survey settings
	Radius         int     `yaml:"radius"`
	MetersPerLevel float64 `yaml:"meters_per_level"`
	Workers        int     `yaml:"workers"`

	// Database settings (import command)
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`
	DBTable    string `yaml:"db_table"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		UserAgent:       "osmbuildings-go/1.0",
		Padding:         DefaultPadding,
		QueryTimeout:    DefaultQueryTimeout,
		HTTPTimeout:     200 * time.Second, // a little above the Overpass query timeout
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		Radius:          DefaultRadius,
		MetersPerLevel:  DefaultMetersPerLevel,
		Workers:         min(runtime.NumCPU(), 4),
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		DBTable:         "osm_buildings",
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile reads a YAML file on top of the defaults
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Padding <= 0 || math.IsNaN(c.Padding) {
		return fmt.Errorf("padding must be positive, got %v", c.Padding)
	}
	if c.QueryTimeout < 1 {
		return fmt.Errorf("query timeout must be at least 1 second")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if c.Radius < 1 {
		return fmt.Errorf("radius must be at least 1")
	}
	if c.MetersPerLevel < 0 {
		return fmt.Errorf("meters per level must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// Package config provides centralized configuration management for nutriclean.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Pipeline PipelineConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Server   ServerConfig
	Run      RunConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// PipelineConfig holds the read/filter/write settings.
type PipelineConfig struct {
	// InputPath is the tab-separated product export to clean
	InputPath string `env:"INPUT_PATH" default:"fr.openfoodfacts.org.products.csv"`

	// OutputPath is where the cleaned file is written (default: db_file.csv)
	OutputPath string `env:"OUTPUT_PATH" default:"db_file.csv"`

	// Format is the output format: csv or parquet (default: csv)
	Format string `env:"OUTPUT_FORMAT" default:"csv"`

	// ProfilePath is an optional YAML filter profile; empty uses the built-in lists
	ProfilePath string `env:"PROFILE_PATH"`

	// ChunkBytes is the amount of input parsed per chunk (default: 25MB)
	ChunkBytes int64 `env:"CHUNK_BYTES" default:"25000000"`

	// SampleBytes is the amount of input used to infer column types (default: 256KB)
	SampleBytes int64 `env:"SAMPLE_BYTES" default:"256000"`
}

// DatabaseConfig holds the optional Postgres load settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the load step
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Table receives the cleaned rows (default: products_import)
	Table string `env:"DB_TABLE" default:"products_import"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`
}

// Enabled reports whether a database load was configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// StorageConfig holds the optional S3/MinIO publish settings.
type StorageConfig struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Bucket    string `env:"S3_BUCKET"`
	Region    string `env:"S3_REGION"`
	UseSSL    bool   `env:"S3_USE_SSL" default:"false"`

	// Prefix is prepended to the object key of published files
	Prefix string `env:"S3_PREFIX"`
}

// Enabled reports whether publishing to object storage was configured.
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" || c.Bucket != ""
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies lists CIDRs or IPs whose X-Real-IP/X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys guards the run trigger endpoint; empty leaves it open
	APIKeys []string `env:"API_KEYS"`
}

// RunConfig controls how many pipeline runs may execute at once.
type RunConfig struct {
	// MaxConcurrent is the number of simultaneous runs (default: 1)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"1"`

	// MaxWait is how long a trigger waits for a free run slot (default: 5s)
	MaxWait time.Duration `env:"RUN_MAX_WAIT" default:"5s"`

	// Timeout bounds a single run started by serve mode (default: 30m)
	Timeout time.Duration `env:"RUN_TIMEOUT" default:"30m"`
}

// ScheduleConfig holds serve-mode triggers.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron spec; empty disables scheduled runs
	Cron string `env:"SCHEDULE_CRON"`

	// WatchInput reruns the pipeline when the input file changes
	WatchInput bool `env:"WATCH_INPUT" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// String returns a safe string representation of the config for logging.
// Secrets like the database URL and the S3 secret key are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Pipeline: {Input: %q, Output: %q, Format: %q, ChunkBytes: %d}, ",
		c.Pipeline.InputPath, c.Pipeline.OutputPath, c.Pipeline.Format, c.Pipeline.ChunkBytes))
	if c.Database.Enabled() {
		b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], Table: %q}, ", c.Database.Table))
	} else {
		b.WriteString("Database: {disabled}, ")
	}
	if c.Storage.Enabled() {
		b.WriteString(fmt.Sprintf("Storage: {Endpoint: %q, Bucket: %q, SecretKey: [MASKED]}, ",
			c.Storage.Endpoint, c.Storage.Bucket))
	} else {
		b.WriteString("Storage: {disabled}, ")
	}
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

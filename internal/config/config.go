package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Auth     AuthConfig     `yaml:"auth"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Server   ServerConfig   `yaml:"server"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // mysql or postgres
	URL          string `yaml:"url"`    // DSN for mysql, connection URL for postgres
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type EncoderConfig struct {
	URL          string        `yaml:"url"` // embedding server base URL
	Timeout      time.Duration `yaml:"timeout"`
	MaxImageSize int           `yaml:"max_image_size"` // longest edge in px before upload
}

type AuthConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type GalleryConfig struct {
	CacheTTL             time.Duration `yaml:"cache_ttl"`
	StrictPopulation     bool          `yaml:"strict_population"`      // single-flight loads per key
	InvalidateOnRegister bool          `yaml:"invalidate_on_register"` // drop cached gallery after a register
}

type AuditConfig struct {
	RedisURL string `yaml:"redis_url"` // empty disables the stream sink
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // empty logs to stdout
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ServerConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"` // 0 means unbounded, 1 serves requests serially
	Backlog        int           `yaml:"backlog"`        // requests queued while MaxConcurrent are in flight
	BacklogTimeout time.Duration `yaml:"backlog_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Defaults returns the embedded defaults without any environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Database.Driver = strings.ToLower(envString("DATABASE_DRIVER", cfg.Database.Driver))
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Encoder.URL = envString("ENCODER_URL", cfg.Encoder.URL)
	cfg.Encoder.Timeout = envDuration("ENCODER_TIMEOUT", cfg.Encoder.Timeout)
	cfg.Encoder.MaxImageSize = envInt("ENCODER_MAX_IMAGE_SIZE", cfg.Encoder.MaxImageSize)

	cfg.Auth.CacheTTL = envDuration("AUTH_CACHE_TTL", cfg.Auth.CacheTTL)

	cfg.Gallery.CacheTTL = envDuration("GALLERY_CACHE_TTL", cfg.Gallery.CacheTTL)
	cfg.Gallery.StrictPopulation = envBool("GALLERY_STRICT_POPULATION", cfg.Gallery.StrictPopulation)
	cfg.Gallery.InvalidateOnRegister = envBool("GALLERY_INVALIDATE_ON_REGISTER", cfg.Gallery.InvalidateOnRegister)

	cfg.Audit.RedisURL = envString("AUDIT_REDIS_URL", cfg.Audit.RedisURL)
	cfg.Audit.Stream = envString("AUDIT_REDIS_STREAM", cfg.Audit.Stream)
	cfg.Audit.MaxLen = envInt64("AUDIT_REDIS_MAXLEN", cfg.Audit.MaxLen)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = envString("LOG_FILE", cfg.Log.File)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	cfg.Server.MaxConcurrent = envInt("SERVER_MAX_CONCURRENT", cfg.Server.MaxConcurrent)
	cfg.Server.Backlog = envInt("SERVER_BACKLOG", cfg.Server.Backlog)
	cfg.Server.BacklogTimeout = envDuration("SERVER_BACKLOG_TIMEOUT", cfg.Server.BacklogTimeout)
	cfg.Server.MaxBodyBytes = envInt64("SERVER_MAX_BODY_BYTES", cfg.Server.MaxBodyBytes)

	return cfg
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want %s or %s)", c.Database.Driver, DriverMySQL, DriverPostgres)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Encoder.URL == "" {
		return fmt.Errorf("ENCODER_URL is required")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid WEB_PORT %d", c.Web.Port)
	}
	return nil
}

// Addr returns the host:port the web server listens on.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v2"

	"github.com/maauso/vidgen/internal/kie"
)

// Upload backends.
const (
	UploadBackendKIE = "kie"
	UploadBackendS3  = "s3"
)

// Static errors for configuration validation.
var (
	// ErrAPIKeyRequired is returned when KIE_API_KEY is not set.
	ErrAPIKeyRequired = errors.New("config: KIE_API_KEY is required")
	// ErrS3BucketRequired is returned when the s3 upload backend has no bucket.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET is required when UPLOAD_BACKEND=s3")
	// ErrUnknownUploadBackend is returned for an unsupported UPLOAD_BACKEND.
	ErrUnknownUploadBackend = errors.New("config: UPLOAD_BACKEND must be kie or s3")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Provider settings
	KIEAPIKey     string `env:"KIE_API_KEY, required" json:"-"` // Masked in JSON
	KIEBaseURL    string `env:"KIE_BASE_URL, default=https://api.kie.ai" json:"kie_base_url"`
	CallbackURL   string `env:"KIE_CALLBACK_URL" json:"callback_url,omitempty"`
	EndpointsFile string `env:"ENDPOINTS_FILE" json:"endpoints_file,omitempty"`

	// Upload settings
	UploadBackend string        `env:"UPLOAD_BACKEND, default=kie" json:"upload_backend"` // "kie" or "s3"
	UploadBaseURL string        `env:"KIE_UPLOAD_BASE_URL, default=https://kieai.redpandaai.co" json:"upload_base_url"`
	UploadPath    string        `env:"KIE_UPLOAD_PATH, default=videogen/images" json:"upload_path"`
	UploadDelay   time.Duration `env:"UPLOAD_DELAY, default=1s" json:"upload_delay"`

	// Processing settings
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT, default=30s" json:"request_timeout"`
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=5s" json:"poll_interval"`
	MaxPollAttempts int           `env:"MAX_POLL_ATTEMPTS, default=60" json:"max_poll_attempts"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/vidgen" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional record store
	RedisAddr     string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string        `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int           `env:"REDIS_DB, default=0" json:"redis_db"`
	RecordTTL     time.Duration `env:"RECORD_TTL, default=168h" json:"record_ttl"`

	// Optional completion events
	AMQPURL      string `env:"AMQP_URL" json:"-"` // Masked in JSON, may carry credentials
	AMQPExchange string `env:"AMQP_EXCHANGE, default=vidgen.events" json:"amqp_exchange"`

	// Inbound auth
	JWTSecret string `env:"JWT_SECRET" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if an S3 bucket is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// RedisEnabled returns true if records should be stored in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// EventsEnabled returns true if completion events should be published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// AuthEnabled returns true if inbound requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "KIE_API_KEY") {
			return nil, ErrAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.KIEAPIKey == "" {
		return ErrAPIKeyRequired
	}
	switch strings.ToLower(c.UploadBackend) {
	case UploadBackendKIE:
	case UploadBackendS3:
		if !c.S3Enabled() {
			return ErrS3BucketRequired
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownUploadBackend, c.UploadBackend)
	}
	return nil
}

// Endpoints returns the provider endpoint overlay read from ENDPOINTS_FILE.
// Without a file it returns the defaults. Paths missing from the file are
// empty and keep their defaults once passed to kie.WithEndpoints.
func (c *Config) Endpoints() (kie.Endpoints, error) {
	if c.EndpointsFile == "" {
		return kie.DefaultEndpoints(), nil
	}
	return LoadEndpoints(c.EndpointsFile)
}

// LoadEndpoints reads a YAML endpoint overlay such as:
//
//	frames_submit: /api/v1/veo/generate
//	jobs_status: /api/v1/jobs/recordInfo
func LoadEndpoints(path string) (kie.Endpoints, error) {
	f, err := os.Open(path)
	if err != nil {
		return kie.Endpoints{}, fmt.Errorf("config: open endpoints file: %w", err)
	}
	defer f.Close()

	var e kie.Endpoints
	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(&e); err != nil && !errors.Is(err, io.EOF) {
		return kie.Endpoints{}, fmt.Errorf("config: decode endpoints file %s: %w", path, err)
	}
	return e, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, KIEAPIKey: %s, KIEBaseURL: %s, UploadBackend: %s, UploadBaseURL: %s, PollInterval: %s, MaxPollAttempts: %d, TempDir: %s, S3Bucket: %s, S3Region: %s, RedisAddr: %s, AMQPURL: %s, AMQPExchange: %s, JWTSecret: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.KIEAPIKey),
		c.KIEBaseURL,
		c.UploadBackend,
		c.UploadBaseURL,
		c.PollInterval,
		c.MaxPollAttempts,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.RedisAddr,
		mask(c.AMQPURL),
		c.AMQPExchange,
		mask(c.JWTSecret),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the reMind service.
// Environment variables are parsed from the REMIND_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override drivers
	DBDriver   string `envconfig:"DB_DRIVER" default:"auto"`
	BlobDriver string `envconfig:"BLOB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort       int      `envconfig:"HTTP_PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	// Bearer keys accepted by the API; empty leaves it open
	APIKeys []string `envconfig:"API_KEYS" default:""`

	// Share links are built against the companion web uploader
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"https://remind-f54ef.web.app"`

	// Document store
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// Change feed relay; empty disables cross-instance fan-out
	RedisAddr    string `envconfig:"REDIS_ADDR" default:""`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"remind:changes"`

	// Blob/CDN store
	CloudinaryAPIBase      string `envconfig:"CLOUDINARY_API_BASE" default:"https://api.cloudinary.com"`
	CloudinaryCloudName    string `envconfig:"CLOUDINARY_CLOUD_NAME" default:""`
	CloudinaryUploadPreset string `envconfig:"CLOUDINARY_UPLOAD_PRESET" default:"remind_unsigned"`
	UploadFolder           string `envconfig:"UPLOAD_FOLDER" default:"remind_avatars"`
	LocalBlobDir           string `envconfig:"LOCAL_BLOB_DIR" default:""`
	LocalBlobBaseURL       string `envconfig:"LOCAL_BLOB_BASE_URL" default:"http://localhost:8080"`

	// Upload limits and retry policy
	MaxImages         int           `envconfig:"MAX_IMAGES" default:"3"`
	MaxImageSizeBytes int64         `envconfig:"MAX_IMAGE_SIZE_BYTES" default:"10485760"`
	MaxAudioSizeBytes int64         `envconfig:"MAX_AUDIO_SIZE_BYTES" default:"52428800"`
	UploadMaxRetries  int           `envconfig:"UPLOAD_MAX_RETRIES" default:"3"`
	UploadBaseDelay   time.Duration `envconfig:"UPLOAD_BASE_DELAY" default:"1s"`
	ImageTimeout      time.Duration `envconfig:"IMAGE_TIMEOUT" default:"30s"`
	AudioTimeout      time.Duration `envconfig:"AUDIO_TIMEOUT" default:"60s"`
	VerifyTimeout     time.Duration `envconfig:"VERIFY_TIMEOUT" default:"10s"`

	// Health checks
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and BlobDriver
// when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB, defaultBlob string

	switch c.BuildTarget {
	case "local":
		defaultDB, defaultBlob = "sqlite", "local"
	case "cloud":
		defaultDB, defaultBlob = "postgres", "cloudinary"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.BlobDriver == "" || c.BlobDriver == "auto" {
		c.BlobDriver = defaultBlob
	}

	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			c.SQLitePath = "remind.db"
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.BlobDriver {
	case "local":
		if c.LocalBlobDir == "" {
			c.LocalBlobDir = "uploads"
		}
	case "cloudinary":
		if c.CloudinaryCloudName == "" {
			return fmt.Errorf("CLOUDINARY_CLOUD_NAME is required for BLOB_DRIVER=cloudinary")
		}
	default:
		return fmt.Errorf("unsupported BLOB_DRIVER: %s", c.BlobDriver)
	}

	if c.MaxImages <= 0 {
		return fmt.Errorf("MAX_IMAGES must be > 0")
	}
	if c.UploadMaxRetries < 0 {
		return fmt.Errorf("UPLOAD_MAX_RETRIES must be >= 0")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Outside production a .env file in the working directory is loaded first;
// variables already present in the environment win.
// Example: REMIND_HTTP_PORT, REMIND_CLOUDINARY_CLOUD_NAME
func New() (*Config, error) {
	if os.Getenv("REMIND_ENVIRONMENT") != string(EnvProduction) {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("REMIND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("blob_driver", cfg.BlobDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("public_base_url", cfg.PublicBaseURL).
		Bool("redis_relay", cfg.RedisAddr != "").
		Int("max_images", cfg.MaxImages).
		Int("upload_max_retries", cfg.UploadMaxRetries).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "sqlite",
		BlobDriver:                "local",
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		AllowedOrigins:            []string{"*"},
		PublicBaseURL:             "https://remind.test",
		SQLitePath:                ":memory:",
		RedisChannel:              "remind:changes",
		CloudinaryAPIBase:         "https://api.cloudinary.com",
		CloudinaryUploadPreset:    "remind_unsigned",
		UploadFolder:              "remind_avatars",
		LocalBlobBaseURL:          "http://localhost:8080",
		MaxImages:                 3,
		MaxImageSizeBytes:         10 * 1024 * 1024,
		MaxAudioSizeBytes:         50 * 1024 * 1024,
		UploadMaxRetries:          3,
		UploadBaseDelay:           time.Millisecond,
		ImageTimeout:              time.Second,
		AudioTimeout:              time.Second,
		VerifyTimeout:             time.Second,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Job record store backends.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds the application configuration
type Config struct {
	AppEnv     string
	ServerPort string

	// AWS
	AWSRegion      string
	ArtifactBucket string

	// Job record store
	JobStore    string
	JobTable    string
	DatabaseURL string

	// Asset catalog
	CatalogTable  string
	CatalogBucket string

	// Signed URLs
	PresignValidity time.Duration
	URLCacheTTL     time.Duration
	URLCacheSize    int

	// Image generation
	ImageModelID     string
	ImageRegion      string
	RemoveBackground bool

	// Pipeline
	PipelineConfig    string
	ReconstructTarget string
	ConvertTarget     string
	FollowUpLease     time.Duration
	VerifyTargets     bool

	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables, after reading a .env
// file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "production"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		AWSRegion:         getEnv("AWS_REGION", "us-west-2"),
		ArtifactBucket:    os.Getenv("ARTIFACT_BUCKET"),
		JobStore:          strings.ToLower(getEnv("JOB_STORE", StoreDynamoDB)),
		JobTable:          getEnv("JOB_TABLE", "run-command-output"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		CatalogTable:      getEnv("CATALOG_TABLE", "RetailAssets"),
		CatalogBucket:     os.Getenv("CATALOG_BUCKET"),
		PresignValidity:   time.Second * time.Duration(getEnvInt("PRESIGN_TTL_SECONDS", 3600)),
		URLCacheTTL:       time.Second * time.Duration(getEnvInt("URL_CACHE_TTL_SECONDS", 300)),
		URLCacheSize:      getEnvInt("URL_CACHE_SIZE", 4096),
		ImageModelID:      getEnv("IMAGE_MODEL_ID", "amazon.nova-canvas-v1:0"),
		ImageRegion:       getEnv("IMAGE_REGION", "us-east-1"),
		RemoveBackground:  getEnvBool("REMOVE_BACKGROUND", false),
		PipelineConfig:    os.Getenv("PIPELINE_CONFIG"),
		ReconstructTarget: os.Getenv("RECONSTRUCT_TARGET"),
		ConvertTarget:     os.Getenv("CONVERT_TARGET"),
		FollowUpLease:     time.Second * time.Duration(getEnvInt("FOLLOW_UP_LEASE_SECONDS", 120)),
		VerifyTargets:     getEnvBool("VERIFY_TARGETS", false),
		ShutdownTimeout:   time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)),
	}

	if cfg.CatalogBucket == "" {
		cfg.CatalogBucket = cfg.ArtifactBucket
	}
	if cfg.JobStore == StoreSQLite && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "jobs.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and cross-field constraints.
func (c *Config) Validate() error {
	if c.ArtifactBucket == "" {
		return errors.New("ARTIFACT_BUCKET is required")
	}
	switch c.JobStore {
	case StoreDynamoDB:
		if c.JobTable == "" {
			return errors.New("JOB_TABLE is required for the dynamodb job store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres job store")
		}
	case StoreSQLite:
	default:
		return fmt.Errorf("unknown JOB_STORE %q", c.JobStore)
	}
	if c.PresignValidity <= 0 || c.URLCacheTTL <= 0 {
		return errors.New("PRESIGN_TTL_SECONDS and URL_CACHE_TTL_SECONDS must be positive")
	}
	if c.URLCacheTTL >= c.PresignValidity {
		return fmt.Errorf("URL_CACHE_TTL_SECONDS (%s) must be shorter than PRESIGN_TTL_SECONDS (%s)", c.URLCacheTTL, c.PresignValidity)
	}
	if c.URLCacheSize <= 0 {
		return errors.New("URL_CACHE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/api needs to assemble the service.
type Config struct {
	Addr        string // listen address
	Environment string // development | production

	// Storage. An empty DSN selects the in-memory store (development only).
	DatabaseURL string

	// Token issuance.
	TokenTTL time.Duration

	// HTTP limits.
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigin     string

	// Document blob storage: "local" or "s3".
	BlobBackend     string
	BlobLocalDir    string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string // custom endpoint for S3-compatible stores
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	PresignLifetime time.Duration
}

// Load reads configuration from the environment. A .env file is honored when
// present so local runs do not need exported variables.
func Load() (*Config, error) {
	// Ignore the error: absence of .env just means plain env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getEnv("CURIA_ADDR", ":8080"),
		Environment:     getEnv("CURIA_ENV", "development"),
		DatabaseURL:     getEnv("CURIA_DB_DSN", ""),
		TokenTTL:        getEnvDuration("CURIA_TOKEN_TTL", 30*time.Minute),
		MaxBodyBytes:    getEnvInt64("CURIA_MAX_BODY_BYTES", 10<<20),
		RateLimitRPS:    getEnvFloat("CURIA_RATE_RPS", 50),
		RateLimitBurst:  getEnvInt("CURIA_RATE_BURST", 100),
		CORSOrigin:      getEnv("CURIA_CORS_ORIGIN", "*"),
		BlobBackend:     strings.ToLower(getEnv("CURIA_BLOB_BACKEND", "local")),
		BlobLocalDir:    getEnv("CURIA_BLOB_DIR", "data/blobs"),
		S3Bucket:        getEnv("CURIA_S3_BUCKET", ""),
		S3Region:        getEnv("CURIA_S3_REGION", "auto"),
		S3Endpoint:      getEnv("CURIA_S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("CURIA_S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("CURIA_S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle:  getEnvBool("CURIA_S3_PATH_STYLE", false),
		PresignLifetime: getEnvDuration("CURIA_PRESIGN_TTL", 15*time.Minute),
	}

	if cfg.BlobBackend != "local" && cfg.BlobBackend != "s3" {
		return nil, fmt.Errorf("config: unknown blob backend %q", cfg.BlobBackend)
	}
	if cfg.BlobBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("config: CURIA_S3_BUCKET is required for the s3 backend")
	}
	if cfg.Environment == "production" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: CURIA_DB_DSN is required in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

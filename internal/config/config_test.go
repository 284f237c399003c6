package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"CURIA_ADDR", "CURIA_ENV", "CURIA_DB_DSN", "CURIA_TOKEN_TTL",
		"CURIA_MAX_BODY_BYTES", "CURIA_RATE_RPS", "CURIA_BLOB_BACKEND", "CURIA_S3_BUCKET",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.BlobBackend != "local" {
		t.Fatalf("unexpected blob backend: %s", cfg.BlobBackend)
	}
	if cfg.MaxBodyBytes != 10<<20 {
		t.Fatalf("unexpected max body: %d", cfg.MaxBodyBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CURIA_ADDR", ":9999")
	t.Setenv("CURIA_ENV", "development")
	t.Setenv("CURIA_TOKEN_TTL", "2h")
	t.Setenv("CURIA_RATE_RPS", "5.5")
	t.Setenv("CURIA_RATE_BURST", "7")
	t.Setenv("CURIA_BLOB_BACKEND", "s3")
	t.Setenv("CURIA_S3_BUCKET", "curia-docs")
	t.Setenv("CURIA_S3_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.TokenTTL != 2*time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RateLimitRPS != 5.5 || cfg.RateLimitBurst != 7 {
		t.Fatalf("rate limits not applied: %+v", cfg)
	}
	if !cfg.S3UsePathStyle || cfg.S3Bucket != "curia-docs" {
		t.Fatalf("s3 settings not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("CURIA_BLOB_BACKEND", "ftp")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown blob backend")
	}
	t.Setenv("CURIA_BLOB_BACKEND", "s3")
	t.Setenv("CURIA_S3_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for s3 backend without bucket")
	}
	t.Setenv("CURIA_BLOB_BACKEND", "local")
	t.Setenv("CURIA_ENV", "production")
	t.Setenv("CURIA_DB_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for production without dsn")
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curia.org/internal/audit"
	"curia.org/internal/authz"
	"curia.org/internal/blob"
	"curia.org/internal/config"
	"curia.org/internal/httpapi"
	"curia.org/internal/obs"
	"curia.org/internal/registry"
	"curia.org/internal/store/pg"
	"curia.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	// Реестр: Postgres при заданном DSN, иначе in-memory для разработки.
	var (
		store   registry.Store
		trail   audit.Store
		pgStore *pg.Store
	)
	if cfg.DatabaseURL != "" {
		pgStore, err = pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pgStore.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("ping db: %v", err)
		}
		store = pgStore
		trail = pgStore.Audit()
	} else {
		log.Printf("CURIA_DB_DSN is empty, using in-memory stores")
		store = registry.NewInMemory()
		trail = audit.NewMemory()
	}

	// Хранилище документов: локальный каталог или S3-совместимый бакет.
	var blobs blob.Store
	switch cfg.BlobBackend {
	case "s3":
		s3store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			log.Fatalf("s3 client: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = s3store.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("s3 bucket %s: %v", cfg.S3Bucket, err)
		}
		blobs = s3store
	default:
		local, err := blob.NewLocal(cfg.BlobLocalDir)
		if err != nil {
			log.Fatalf("blob dir: %v", err)
		}
		blobs = local
	}

	recorder := audit.NewRecorder(trail)
	events := stream.New()
	engine := authz.NewEngine(store, recorder, authz.WithEvents(events))

	// HTTP API
	api := httpapi.New(httpapi.Options{
		Store:    store,
		Engine:   engine,
		Recorder: recorder,
		Trail:    trail,
		Blobs:    blobs,
		Events:   events,
		Version:  version,

		TokenTTL:   cfg.TokenTTL,
		MaxBody:    cfg.MaxBodyBytes,
		RateRPS:    int(cfg.RateLimitRPS),
		RateBurst:  cfg.RateLimitBurst,
		CORSOrigin: cfg.CORSOrigin,
		PresignTTL: cfg.PresignLifetime,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout не задан: поток решений держит соединение открытым.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting curia-api %s on %s (env=%s, blob=%s)", version, srv.Addr, cfg.Environment, cfg.BlobBackend)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

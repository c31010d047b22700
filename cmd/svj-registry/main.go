package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"svj-registry/internal/config"
	"svj-registry/internal/database"
	httpapi "svj-registry/internal/http"
	"svj-registry/internal/logger"
	"svj-registry/internal/match"
	"svj-registry/internal/repository"
	"svj-registry/internal/service"
	"svj-registry/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "svj-registry")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Staging cache: Redis when configured, in-process otherwise.
	var kv store.KV
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kv = store.NewRedisKV(redisClient)
		log.Info("Redis staging cache enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		kv = store.NewMemoryKV()
	}

	// Persistence: Postgres when available, in-memory fallback for dev.
	var db *sql.DB
	var registryRepo repository.RegistryRepository
	var syncRepo repository.SyncRepository
	var auditRepo repository.AuditRepository
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for svj-registry")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	if db != nil {
		registryRepo = repository.NewPostgresRegistryRepo(db)
		syncRepo = repository.NewPostgresSyncRepo(db)
		auditRepo = repository.NewPostgresAuditRepo(db)
	} else {
		mem := repository.NewMemoryStore()
		registryRepo = mem
		syncRepo = mem
		auditRepo = mem
	}

	thresholds := match.Thresholds{
		Partial: cfg.Sync.PartialThreshold,
		Suggest: cfg.Sync.SuggestThreshold,
		Auto:    cfg.Sync.AutoThreshold,
	}
	classifier := match.NewClassifier(thresholds)

	syncSvc := service.NewSyncService(registryRepo, syncRepo, auditRepo, classifier, log)
	importSvc := service.NewImportService(kv, syncSvc,
		time.Duration(cfg.Sync.ImportTTLMinutes)*time.Minute, log)
	exchangeSvc := service.NewExchangeService(registryRepo, syncRepo, auditRepo, thresholds, log)

	router := httpapi.NewRouter(log)
	router.RegisterSyncRoutes(httpapi.NewSyncHandler(importSvc, syncSvc, exchangeSvc, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dental-inference-service/internal/adapters/primary/http/handlers"
	"dental-inference-service/internal/adapters/primary/http/middleware"
	"dental-inference-service/internal/adapters/secondary/objectstore"
	"dental-inference-service/internal/adapters/secondary/panoai"
	"dental-inference-service/internal/adapters/secondary/postgres"
	"dental-inference-service/internal/adapters/secondary/rediscache"
	"dental-inference-service/internal/adapters/secondary/runpod"
	"dental-inference-service/internal/config"
	ports "dental-inference-service/internal/core/ports/output"
	"dental-inference-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create directory %s: %v", dir, err)
		}
	}

	// Analysis history (optional - based on config)
	var history ports.AnalysisRepository
	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			log.Fatalf("parse db config: %v", err)
		}
		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
		if err != nil {
			log.Fatalf("create db pool: %v", err)
		}
		defer dbpool.Close()

		if err := dbpool.Ping(context.Background()); err != nil {
			log.Fatalf("ping db: %v", err)
		}
		if err := postgres.EnsureSchema(context.Background(), dbpool); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		history = postgres.NewAnalysisRepository(dbpool)
		log.Info("analysis history enabled")
	} else {
		log.Info("analysis history disabled")
	}

	// Result cache (optional - based on config)
	var cache ports.ResultCache
	if cfg.Redis.Addr != "" {
		c := rediscache.NewCache(&cfg.Redis)
		if err := c.Ping(context.Background()); err != nil {
			log.Warnf("redis unavailable (continuing without result cache): %v", err)
		} else {
			cache = c
			defer c.Close()
			log.Info("result cache initialized")
		}
	} else {
		log.Info("result cache disabled")
	}

	// Model runner sidecar. A startup failure is not fatal: the server keeps
	// serving and health reports models_available=false until a load succeeds.
	runner := panoai.NewRunner(&cfg.Runner)
	if err := runner.Start(context.Background()); err != nil {
		log.Warnf("model runner not ready (local analyses will fail until it is): %v", err)
	}
	defer runner.Close()

	remote := runpod.NewClient(&cfg.RunPod)
	if remote.Configured() {
		log.Info("remote compute configured")
	} else {
		log.Info("remote compute disabled")
	}

	store := objectstore.NewStore(cfg.Storage, "", cfg.InspectedEnvFiles())

	// Core services
	lifecycle := services.NewLifecycleManager(runner, cfg.Paths.ModelsDir)
	pipeline := services.NewPipelineService(runner, lifecycle)
	pool := services.NewPool(cfg.Inference.MaxConcurrent, cfg.Inference.QueueTimeout)
	analysisSvc := services.NewAnalysisService(lifecycle, pipeline, remote, store, history, cache, pool, cfg.Paths.ResultsDir)

	lifecycle.Warmup(false)

	// Primary adapter (HTTP handlers)
	h := handlers.New(analysisSvc, lifecycle, cfg.Paths.UploadDir, cfg.Worker.Bucket)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.CORS(), gin.Recovery())
	h.RegisterRoutes(router.Group(""))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

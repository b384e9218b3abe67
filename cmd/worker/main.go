package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dental-inference-service/internal/adapters/primary/http/middleware"
	"dental-inference-service/internal/adapters/secondary/objectstore"
	"dental-inference-service/internal/adapters/secondary/panoai"
	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/services"
	"dental-inference-service/internal/worker"

	"github.com/gin-gonic/gin"
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

	runner := panoai.NewRunner(&cfg.Runner)
	if err := runner.Start(context.Background()); err != nil {
		log.Fatalf("start model runner: %v", err)
	}
	defer runner.Close()

	// Models must be up before the queue opens.
	lifecycle := services.NewLifecycleManager(runner, cfg.Paths.ModelsDir)
	if err := lifecycle.LoadModels(context.Background(), true); err != nil {
		log.Fatalf("load models: %v", err)
	}

	pipeline := services.NewPipelineService(runner, lifecycle)
	store := objectstore.NewStore(cfg.Storage, cfg.Worker.Region, cfg.InspectedEnvFiles())
	processor := worker.NewProcessor(pipeline, store, cfg.Paths.UploadDir, cfg.Paths.ResultsDir, cfg.Worker.Bucket)

	svc := worker.NewService(processor, cfg.Worker.Concurrency)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery())
	svc.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting worker on %s with %d dispatchers", addr, cfg.Worker.Concurrency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	svc.Stop()
	log.Info("worker stopped")
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

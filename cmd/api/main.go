package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tranthanhvu011/DTWH/internal/cleanup"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/control"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/handlers"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/pipeline"
	"github.com/tranthanhvu011/DTWH/internal/scheduler"
	"github.com/tranthanhvu011/DTWH/internal/search"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config from %s: %w", configPath, err)
	}
	if err := cfg.ApplyEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("loaded configuration", "path", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	now := func() time.Time { return time.Now().In(loc) }
	rec := metrics.New()

	var searchClient *search.SearchClient
	if m := cfg.Search.Meilisearch; m.Enabled {
		searchClient = search.NewSearchClient(m.Host, m.APIKey, m.Index)
		if err := searchClient.InitIndex(); err != nil {
			log.Warn("failed to initialize search index", "error", err)
		}
	}

	opts := []pipeline.Option{pipeline.WithMetrics(rec)}
	if searchClient != nil {
		opts = append(opts, pipeline.WithIndexer(searchClient))
	}
	runner, err := pipeline.New(cfg, log, opts...)
	if err != nil {
		return err
	}
	if err := runner.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// long-lived read connections for the API
	controlDB, err := database.Open(ctx, cfg.Control, log)
	if err != nil {
		return fmt.Errorf("connect to control: %w", err)
	}
	defer controlDB.Close()
	warehouseDB, err := database.Open(ctx, cfg.Warehouse.Database, log)
	if err != nil {
		return fmt.Errorf("connect to warehouse: %w", err)
	}
	defer warehouseDB.Close()
	martDB, err := database.Open(ctx, cfg.DataMart.Database, log)
	if err != nil {
		return fmt.Errorf("connect to datamart: %w", err)
	}
	defer martDB.Close()

	worker := scheduler.NewWorker(runner.Run, 4, log.With("component", "worker"))
	worker.Start(ctx)

	sched := scheduler.NewScheduler(cfg.Scheduler, loc, worker, log.With("component", "scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	deps := handlers.Deps{
		Control:   control.NewStore(controlDB.DB(), 0, models.ProcessWarehouse, now),
		Cleanup:   cleanup.NewService(controlDB.DB(), now, log),
		Warehouse: warehouse.NewStore(warehouseDB.DB()),
		DataMart:  martDB.DB(),
		Runs:      worker,
		Databases: map[string]handlers.Pinger{
			"control":   controlDB,
			"warehouse": warehouseDB,
			"datamart":  martDB,
		},
		Metrics:   rec.Handler(),
		Retention: cfg.Cleanup,
		Log:       log.With("component", "admin"),
	}
	if searchClient != nil {
		deps.Search = searchClient
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))
	handlers.NewAdminHandler(deps).Register(r)

	port := getEnv("PORT", cfg.Server.Port)
	srv := &http.Server{Addr: ":" + port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	stop()
	<-worker.Done()
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

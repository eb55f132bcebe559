package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/pipeline"
	"github.com/tranthanhvu011/DTWH/internal/scheduler"
	"github.com/tranthanhvu011/DTWH/internal/search"
)

const usage = `usage: etl [-config path] [-env path] <stage>

stages:
  crawl      scrape the shop into the staging CSV files
  staging    load the CSV files into the staging database
  warehouse  load staging into the warehouse (SCD type 2)
  datamart   copy new warehouse versions into the datamart
  cleanup    purge expired control log rows
  all        crawl, staging, warehouse and datamart in order
  migrate    create or upgrade every schema
`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config/config.yaml"), "path to the YAML configuration")
	envPath := flag.String("env", ".env", "optional .env file with credentials")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	stage := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.ApplyEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []pipeline.Option
	if m := cfg.Search.Meilisearch; m.Enabled {
		client := search.NewSearchClient(m.Host, m.APIKey, m.Index)
		if err := client.InitIndex(); err != nil {
			log.Warn("failed to initialize search index", "error", err)
		}
		opts = append(opts, pipeline.WithIndexer(client))
	}

	runner, err := pipeline.New(cfg, log, opts...)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		return 1
	}

	if stage == "migrate" {
		err = runner.Migrate(ctx)
	} else {
		err = runner.Run(ctx, stage)
	}

	switch {
	case errors.Is(err, scheduler.ErrUnknownStage):
		flag.Usage()
		return 2
	case ctx.Err() != nil:
		log.Warn("interrupted", "stage", stage)
		return 1
	case err != nil:
		log.Error("stage failed", "stage", stage, "error", err)
		return 1
	}
	log.Info("stage finished", "stage", stage)
	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

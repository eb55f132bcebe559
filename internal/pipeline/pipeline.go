package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/archive"
	"github.com/tranthanhvu011/DTWH/internal/cleanup"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/crawler"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/datamart"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/notify"
	"github.com/tranthanhvu011/DTWH/internal/orchestrator"
	"github.com/tranthanhvu011/DTWH/internal/scheduler"
	"github.com/tranthanhvu011/DTWH/internal/staging"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
)

// ErrWarehouseRun is returned when a warehouse run ends in Error or Failed
var ErrWarehouseRun = errors.New("warehouse load did not succeed")

// DailyStages is the order the scheduler runs the pipeline in
var DailyStages = []string{
	scheduler.StageCrawl,
	scheduler.StageStaging,
	scheduler.StageWarehouse,
	scheduler.StageDataMart,
}

// Runner builds every stage from configuration. Each stage opens the
// connections it needs and closes them before returning.
type Runner struct {
	cfg      *config.Config
	now      func() time.Time
	notifier notify.Notifier
	indexer  datamart.Indexer
	fetcher  crawler.Fetcher
	metrics  metrics.Recorder
	log      *logger.Logger
}

type Option func(*Runner)

// WithClock overrides the clock; the default is the wall clock in the
// configured time zone.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

func WithIndexer(i datamart.Indexer) Option {
	return func(r *Runner) { r.indexer = i }
}

func WithFetcher(f crawler.Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:      cfg,
		now:      func() time.Time { return time.Now().In(loc) },
		notifier: notify.New(cfg.Notify),
		metrics:  metrics.Nop{},
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = crawler.NewFetcher(cfg.Crawler, log)
	}
	return r, nil
}

// Run executes one stage by name
func (r *Runner) Run(ctx context.Context, stage string) error {
	switch stage {
	case scheduler.StageCrawl:
		_, err := r.Crawl(ctx)
		return err
	case scheduler.StageStaging:
		_, err := r.Staging(ctx)
		return err
	case scheduler.StageWarehouse:
		if res := r.Warehouse(ctx); res.Failed() {
			return fmt.Errorf("%w: %s", ErrWarehouseRun, res.Details)
		}
		return nil
	case scheduler.StageDataMart:
		_, err := r.DataMart(ctx)
		return err
	case scheduler.StageCleanup:
		_, err := r.Cleanup(ctx)
		return err
	case scheduler.StageAll:
		return scheduler.Sequence(ctx, r.Run, DailyStages...)
	default:
		return fmt.Errorf("%w: %q", scheduler.ErrUnknownStage, stage)
	}
}

// Migrate applies pending migrations to all four databases
func (r *Runner) Migrate(ctx context.Context) error {
	targets := []struct {
		cfg config.DatabaseConfig
		set database.MigrationSet
	}{
		{r.cfg.Control, database.ControlMigrations},
		{r.cfg.Staging.Database, database.StagingMigrations},
		{r.cfg.Warehouse.Database, database.WarehouseMigrations},
		{r.cfg.DataMart.Database, database.DataMartMigrations},
	}
	for _, t := range targets {
		err := database.WithSession(ctx, t.cfg, r.log, func(gdb *database.GormDB) error {
			return gdb.InitSchema(ctx, t.set)
		})
		if err != nil {
			return fmt.Errorf("migrate %s: %w", t.set.Schema, err)
		}
	}
	return nil
}

func (r *Runner) stagingFiles() staging.Files {
	c := r.cfg.Staging
	return staging.FilesIn(c.DataDir, c.ProductsFile, c.ImagesFile, c.SpecificationsFile)
}

func (r *Runner) withControl(ctx context.Context, configID int, process string, fn func(*controlSession) error) error {
	cs := newControlSession(r.cfg.Control, configID, process, r.now, r.log)
	defer cs.Close()
	if err := cs.Ping(ctx); err != nil {
		return err
	}
	return fn(cs)
}

// Crawl scrapes the shop into the staging CSV files
func (r *Runner) Crawl(ctx context.Context) (*crawler.Result, error) {
	var result *crawler.Result
	err := r.withControl(ctx, r.cfg.Crawler.ConfigID, models.ProcessCrawl, func(cs *controlSession) error {
		var err error
		c := crawler.New(r.cfg.Crawler, r.fetcher, r.stagingFiles(), cs, r.metrics, r.log.With("stage", "crawl"))
		result, err = c.Run(ctx)
		return err
	})
	return result, err
}

// Staging loads the CSV files into the staging database and archives them
func (r *Runner) Staging(ctx context.Context) (*staging.Result, error) {
	started := time.Now()
	var result *staging.Result
	err := r.withControl(ctx, r.cfg.Staging.ConfigID, models.ProcessStaging, func(cs *controlSession) error {
		archiver, err := archive.New(ctx, r.cfg.Archive, r.now)
		if err != nil {
			return err
		}
		return database.WithSession(ctx, r.cfg.Staging.Database, r.log, func(gdb *database.GormDB) error {
			loader := staging.NewLoader(gdb.DB(), cs, archiver, r.stagingFiles(), r.log.With("stage", "staging"))
			var err error
			result, err = loader.Run(ctx)
			return err
		})
	})

	status := models.StatusFailed
	if result != nil {
		status = result.Status
		r.metrics.ProductsLoaded("staging", "inserted", result.Products.Inserted)
		r.metrics.ProductsLoaded("staging", "updated", result.Products.Updated)
		r.metrics.ProductsLoaded("staging", "unchanged", result.Products.Unchanged)
	}
	r.metrics.StageFinished("staging", status, started)
	return result, err
}

// Warehouse runs the guarded warehouse load
func (r *Runner) Warehouse(ctx context.Context) *orchestrator.Result {
	cs := newControlSession(r.cfg.Control, r.cfg.Warehouse.ConfigID, models.ProcessWarehouse, r.now, r.log)
	defer cs.Close()

	policy, err := warehouse.ParseChildPolicy(r.cfg.Warehouse.ChildPolicy)
	if err != nil {
		policy = warehouse.ChildrenOnIdentityCreate
		r.log.Warn("unknown child policy, using default", "policy", r.cfg.Warehouse.ChildPolicy)
	}

	o := orchestrator.New(orchestrator.Options{
		Control:    cs,
		Open:       r.openWarehouse(policy),
		Notifier:   r.notifier,
		Recipients: r.cfg.Notify.Recipients,
		Subject:    r.cfg.Warehouse.Subject,
		RecentRows: r.cfg.Notify.RecentRows,
		Metrics:    r.metrics,
		Log:        r.log.With("stage", "warehouse"),
	})
	return o.Run(ctx)
}

func (r *Runner) openWarehouse(policy warehouse.ChildPolicy) orchestrator.SessionOpener {
	return func(ctx context.Context) (orchestrator.Session, error) {
		gdb, err := database.Open(ctx, r.cfg.Warehouse.Database, r.log)
		if err != nil {
			return nil, err
		}
		loader := warehouse.NewLoader(gdb.DB(), r.log.With("stage", "warehouse"),
			warehouse.WithChildPolicy(policy),
			warehouse.WithClock(r.now),
		)
		source := staging.NewSessionSource(r.cfg.Staging.Database, r.log)
		return warehouse.NewSession(gdb, loader, source), nil
	}
}

// DataMart copies new warehouse versions into the datamart
func (r *Runner) DataMart(ctx context.Context) (*datamart.Summary, error) {
	var summary *datamart.Summary
	err := r.withControl(ctx, r.cfg.DataMart.ConfigID, models.ProcessDataMart, func(cs *controlSession) error {
		return database.WithSession(ctx, r.cfg.Warehouse.Database, r.log, func(wh *database.GormDB) error {
			return database.WithSession(ctx, r.cfg.DataMart.Database, r.log, func(mart *database.GormDB) error {
				loader := datamart.NewLoader(wh.DB(), mart.DB(), r.now, r.log.With("stage", "datamart"))
				runner := datamart.NewRunner(datamart.RunnerOptions{
					Control: cs,
					Load:    loader.Load,
					Indexer: r.indexer,
					Current: func(ctx context.Context) ([]models.MartProduct, error) {
						return datamart.CurrentProducts(ctx, mart.DB(), -1, -1)
					},
					Notifier:   r.notifier,
					Recipients: r.cfg.Notify.Recipients,
					Subject:    r.cfg.DataMart.Subject,
					RecentRows: r.cfg.Notify.RecentRows,
					Metrics:    r.metrics,
					Log:        r.log.With("stage", "datamart"),
				})
				var err error
				summary, err = runner.Run(ctx)
				return err
			})
		})
	})
	return summary, err
}

// Cleanup purges expired control log rows
func (r *Runner) Cleanup(ctx context.Context) (*cleanup.Result, error) {
	var result *cleanup.Result
	err := database.WithSession(ctx, r.cfg.Control, r.log, func(gdb *database.GormDB) error {
		var err error
		result, err = cleanup.NewService(gdb.DB(), r.now, r.log).Purge(ctx, r.cfg.Cleanup)
		return err
	})
	return result, err
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/logger"
)

// Scheduler submits the daily pipeline and the log cleanup on their cron
// schedules.
type Scheduler struct {
	cron      *cron.Cron
	config    config.SchedulerConfig
	worker    *Worker
	log       *logger.Logger
	isRunning bool
}

// NewScheduler creates a new scheduler evaluating specs in loc
func NewScheduler(cfg config.SchedulerConfig, loc *time.Location, worker *Worker, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		config: cfg,
		worker: worker,
		log:    log,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if s.config.DailyRunEnabled {
		spec, err := DailySpec(s.config.DailyRunTime)
		if err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(spec, s.submit(StageAll)); err != nil {
			return fmt.Errorf("failed to schedule daily run: %w", err)
		}
		s.log.Info("scheduler: daily run registered", "time", s.config.DailyRunTime, "cron", spec)
	} else {
		s.log.Info("scheduler: daily run is disabled in configuration")
	}

	if s.config.CleanupSpec != "" {
		if _, err := s.cron.AddFunc(s.config.CleanupSpec, s.submit(StageCleanup)); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		s.log.Info("scheduler: cleanup registered", "cron", s.config.CleanupSpec)
	}

	s.cron.Start()
	s.isRunning = true
	return nil
}

// Stop stops the cron loop and waits for a job being submitted
func (s *Scheduler) Stop() {
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.Info("scheduler: stopped")
}

// RunNow queues the full pipeline immediately
func (s *Scheduler) RunNow() (Run, error) {
	s.log.Info("scheduler: manual trigger")
	return s.worker.Submit(StageAll)
}

// NextRuns returns the next activation time of every registered job
func (s *Scheduler) NextRuns() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

func (s *Scheduler) submit(stage string) func() {
	return func() {
		if _, err := s.worker.Submit(stage); err != nil {
			s.log.Warn("scheduler: failed to queue run", "stage", stage, "error", err)
		}
	}
}

// DailySpec converts "HH:MM" to a cron specification.
// Example: "02:00" -> "0 2 * * *"
func DailySpec(timeStr string) (string, error) {
	hour, minute, err := config.ParseDailyRunTime(timeStr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Sequence runs the daily stages in order and stops at the first failure
func Sequence(ctx context.Context, run RunFunc, stages ...string) error {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := run(ctx, stage); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}
	return nil
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/testutil"
)

func TestDailySpec(t *testing.T) {
	spec, err := DailySpec("02:30")
	if err != nil {
		t.Fatalf("DailySpec: %v", err)
	}
	if spec != "30 2 * * *" {
		t.Fatalf("spec = %q", spec)
	}
	if _, err := DailySpec("2pm"); err == nil {
		t.Fatalf("expected error")
	}
}

func waitFor(t *testing.T, w *Worker, id, state string) Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := w.Get(id); ok && r.State == state {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	r, _ := w.Get(id)
	t.Fatalf("run %s did not reach %s: %+v", id, state, r)
	return Run{}
}

func TestWorkerRunsSubmittedStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	w := NewWorker(func(ctx context.Context, stage string) error {
		got = append(got, stage)
		if stage == StageCleanup {
			return errors.New("boom")
		}
		return nil
	}, 4, testutil.Logger(t))

	if _, err := w.Submit(StageAll); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
	w.Start(ctx)

	ok, err := w.Submit(StageWarehouse)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	bad, err := w.Submit(StageCleanup)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, w, ok.ID, RunSucceeded)
	failed := waitFor(t, w, bad.ID, RunFailed)
	if failed.Error != "boom" || failed.StartedAt == nil || failed.FinishedAt == nil {
		t.Fatalf("failed run = %+v", failed)
	}
	if len(got) != 2 || got[0] != StageWarehouse {
		t.Fatalf("executed = %v", got)
	}

	recent := w.Recent(10)
	if len(recent) != 2 || recent[0].ID != bad.ID {
		t.Fatalf("recent = %+v", recent)
	}
	if _, err := w.Submit("deploy"); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("err = %v, want ErrUnknownStage", err)
	}

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestWorkerRejectsOverlapAndFullQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	w := NewWorker(func(ctx context.Context, stage string) error {
		started <- struct{}{}
		<-release
		return nil
	}, 1, testutil.Logger(t))
	w.Start(ctx)

	first, err := w.Submit(StageAll)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if _, err := w.Submit(StageAll); !errors.Is(err, ErrInProgress) {
		t.Fatalf("err = %v, want ErrInProgress", err)
	}
	if _, err := w.Submit(StageCleanup); err != nil {
		t.Fatalf("cleanup Submit should queue: %v", err)
	}
	if _, err := w.Submit(StageCrawl); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if r, _ := w.Get(first.ID); r.State != RunRunning {
		t.Fatalf("first run state = %s", r.State)
	}
	close(release)
}

func TestSequenceStopsAtFirstFailure(t *testing.T) {
	var ran []string
	err := Sequence(context.Background(), func(ctx context.Context, stage string) error {
		ran = append(ran, stage)
		if stage == StageWarehouse {
			return errors.New("halted")
		}
		return nil
	}, StageCrawl, StageStaging, StageWarehouse, StageDataMart)
	if err == nil || err.Error() != "warehouse: halted" {
		t.Fatalf("err = %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("ran = %v", ran)
	}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(func(ctx context.Context, stage string) error { return nil }, 1, testutil.Logger(t))
	w.Start(ctx)

	cfg := config.SchedulerConfig{DailyRunEnabled: true, DailyRunTime: "02:00", CleanupSpec: "0 3 * * 0"}
	s := NewScheduler(cfg, time.UTC, w, testutil.Logger(t))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	next := s.NextRuns()
	if len(next) != 2 {
		t.Fatalf("next runs = %v", next)
	}
	for _, n := range next {
		if n.IsZero() {
			t.Fatalf("job without next activation: %v", next)
		}
	}

	run, err := s.RunNow()
	if err != nil || run.Stage != StageAll {
		t.Fatalf("RunNow = %+v, %v", run, err)
	}

	bad := NewScheduler(config.SchedulerConfig{DailyRunEnabled: true, DailyRunTime: "x"}, time.UTC, w, testutil.Logger(t))
	if err := bad.Start(); err == nil {
		t.Fatalf("expected error for bad run time")
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tranthanhvu011/DTWH/internal/logger"
)

// Stages a run can target
const (
	StageCrawl     = "crawl"
	StageStaging   = "staging"
	StageWarehouse = "warehouse"
	StageDataMart  = "datamart"
	StageAll       = "all"
	StageCleanup   = "cleanup"
)

// Run states
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

var (
	ErrQueueFull    = errors.New("run queue is full")
	ErrUnknownStage = errors.New("unknown stage")
	ErrNotStarted   = errors.New("worker not started")
	ErrInProgress   = errors.New("stage already queued or running")
)

const keepRuns = 50

// ValidStage reports whether stage names something the worker can run
func ValidStage(stage string) bool {
	switch stage {
	case StageCrawl, StageStaging, StageWarehouse, StageDataMart, StageAll, StageCleanup:
		return true
	}
	return false
}

// RunFunc executes one stage
type RunFunc func(ctx context.Context, stage string) error

// Run is one queued pipeline execution
type Run struct {
	ID         string     `json:"id"`
	Stage      string     `json:"stage"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Worker executes submitted runs one at a time, so a manual trigger never
// overlaps the scheduled pipeline.
type Worker struct {
	run   RunFunc
	queue chan string
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	runs    map[string]*Run
	order   []string
	started bool
	done    chan struct{}
}

// NewWorker creates a worker holding at most capacity pending runs
func NewWorker(run RunFunc, capacity int, log *logger.Logger) *Worker {
	if capacity <= 0 {
		capacity = 1
	}
	return &Worker{
		run:   run,
		queue: make(chan string, capacity),
		log:   log,
		now:   time.Now,
		runs:  make(map[string]*Run),
		done:  make(chan struct{}),
	}
}

// Start processes the queue until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.log.Info("run worker stopped")
				return
			case id := <-w.queue:
				w.execute(ctx, id)
			}
		}
	}()
}

// Done is closed once the worker loop has returned
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Submit queues a run of stage
func (w *Worker) Submit(stage string) (Run, error) {
	if !ValidStage(stage) {
		return Run{}, ErrUnknownStage
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return Run{}, ErrNotStarted
	}
	for _, id := range w.order {
		r := w.runs[id]
		if r.Stage == stage && (r.State == RunQueued || r.State == RunRunning) {
			return Run{}, ErrInProgress
		}
	}

	r := &Run{ID: uuid.NewString(), Stage: stage, State: RunQueued, QueuedAt: w.now()}
	select {
	case w.queue <- r.ID:
	default:
		return Run{}, ErrQueueFull
	}
	w.runs[r.ID] = r
	w.order = append(w.order, r.ID)
	w.trim()
	w.log.Info("run queued", "id", r.ID, "stage", stage)
	return *r, nil
}

// Get returns a run by id
func (w *Worker) Get(id string) (Run, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.runs[id]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// Recent returns up to n runs, newest first
func (w *Worker) Recent(n int) []Run {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Run, 0, n)
	for i := len(w.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *w.runs[w.order[i]])
	}
	return out
}

func (w *Worker) execute(ctx context.Context, id string) {
	stage := w.update(id, func(r *Run) {
		t := w.now()
		r.State = RunRunning
		r.StartedAt = &t
	})

	w.log.Info("run started", "id", id, "stage", stage)
	err := w.run(ctx, stage)

	w.update(id, func(r *Run) {
		t := w.now()
		r.FinishedAt = &t
		r.State = RunSucceeded
		if err != nil {
			r.State = RunFailed
			r.Error = err.Error()
		}
	})
	if err != nil {
		w.log.Error("run failed", "id", id, "stage", stage, "error", err)
		return
	}
	w.log.Info("run finished", "id", id, "stage", stage)
}

func (w *Worker) update(id string, fn func(*Run)) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.runs[id]
	if !ok {
		return ""
	}
	fn(r)
	return r.Stage
}

// trim forgets the oldest finished runs beyond keepRuns
func (w *Worker) trim() {
	for len(w.order) > keepRuns {
		oldest := w.runs[w.order[0]]
		if oldest.State == RunQueued || oldest.State == RunRunning {
			return
		}
		delete(w.runs, w.order[0])
		w.order = w.order[1:]
	}
}

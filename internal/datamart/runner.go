package datamart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/notify"
	"github.com/tranthanhvu011/DTWH/internal/search"
)

// ErrNotReady is returned when the warehouse has not been loaded today
var ErrNotReady = errors.New("warehouse not loaded today")

const stageName = "datamart"

// ControlLog is the subset of the control store the runner needs
type ControlLog interface {
	Write(ctx context.Context, action, details, status string) error
	ExistsToday(ctx context.Context, action, status string) (bool, error)
	Recent(ctx context.Context, n int) ([]models.LogEntry, error)
}

// Indexer receives the current products after a load
type Indexer interface {
	IndexProducts(docs []search.Document) error
}

// Source provides the rows pushed to the indexer
type Source func(ctx context.Context) ([]models.MartProduct, error)

type RunnerOptions struct {
	Control    ControlLog
	Load       func(ctx context.Context) (*Summary, error)
	Indexer    Indexer
	Current    Source
	Notifier   notify.Notifier
	Recipients []string
	Subject    string
	RecentRows int
	Metrics    metrics.Recorder
	Log        *logger.Logger
}

// Runner guards and reports a datamart load the same way the warehouse stage
// does.
type Runner struct {
	opts RunnerOptions
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Notifier == nil {
		opts.Notifier = notify.NopNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.RecentRows <= 0 {
		opts.RecentRows = 5
	}
	if opts.Subject == "" {
		opts.Subject = "Load DataMart Completed"
	}
	return &Runner{opts: opts}
}

// Run returns ErrNotReady when the warehouse guard fails and a nil summary
// with no error when the mart was already loaded today.
func (r *Runner) Run(ctx context.Context) (summary *Summary, err error) {
	started := time.Now()
	logCtx := context.WithoutCancel(ctx)
	status := models.StatusSuccess
	defer func() {
		r.opts.Metrics.StageFinished(stageName, status, started)
		r.notify(logCtx)
	}()

	ready, err := r.opts.Control.ExistsToday(ctx, models.ActionLoadWarehouse, models.StatusSuccess)
	if err != nil {
		status = models.StatusError
		r.write(logCtx, fmt.Sprintf("Failed to read the control log: %v", err), status)
		return nil, err
	}
	if !ready {
		status = models.StatusWarning
		r.write(logCtx, "Warehouse has not been loaded today", status)
		return nil, ErrNotReady
	}

	done, err := r.opts.Control.ExistsToday(ctx, models.ActionLoadDataMart, models.StatusSuccess)
	if err != nil {
		status = models.StatusError
		r.write(logCtx, fmt.Sprintf("Failed to read the control log: %v", err), status)
		return nil, err
	}
	if done {
		status = models.StatusInfo
		r.write(logCtx, "Data has already been loaded from Warehouse to DataMart", status)
		return nil, nil
	}

	summary, err = r.opts.Load(ctx)
	if err != nil {
		status = models.StatusFailed
		r.write(logCtx, fmt.Sprintf("Load data from Warehouse to DataMart failed: %v", err), status)
		return nil, err
	}
	r.write(logCtx, summary.Details(), models.StatusSuccess)
	r.opts.Metrics.ProductsLoaded(stageName, "inserted", summary.Inserted)

	r.index(ctx)
	return summary, nil
}

func (r *Runner) index(ctx context.Context) {
	if r.opts.Indexer == nil || r.opts.Current == nil {
		return
	}
	rows, err := r.opts.Current(ctx)
	if err != nil {
		r.opts.Log.Warn("failed to read datamart for indexing", "error", err)
		return
	}
	docs, err := Documents(rows)
	if err != nil {
		r.opts.Log.Warn("some datamart rows were indexed without images or specifications", "error", err)
	}
	if err := r.opts.Indexer.IndexProducts(docs); err != nil {
		r.opts.Log.Warn("failed to index datamart products", "error", err)
		return
	}
	r.opts.Log.Info("datamart products indexed", "count", len(rows))
}

func (r *Runner) write(ctx context.Context, details, status string) {
	if err := r.opts.Control.Write(ctx, models.ActionLoadDataMart, details, status); err != nil {
		r.opts.Log.Error("failed to write control log", "status", status, "error", err)
	}
}

func (r *Runner) notify(ctx context.Context) {
	entries, err := r.opts.Control.Recent(ctx, r.opts.RecentRows)
	if err != nil {
		r.opts.Log.Warn("failed to read recent logs for notification", "error", err)
	}
	body, err := notify.RenderLogTable("Recent Logs", entries)
	if err != nil {
		r.opts.Log.Warn("failed to render notification", "error", err)
		return
	}
	if err := r.opts.Notifier.Send(ctx, r.opts.Subject, body, r.opts.Recipients); err != nil {
		r.opts.Log.Warn("failed to send notification", "error", err)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/notify"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
)

// State of a warehouse load run
type State string

const (
	StateInit                  State = "INIT"
	StateControlConnected      State = "CONTROL_CONNECTED"
	StateStagingVerified       State = "STAGING_VERIFIED"
	StateWarehouseNotYetLoaded State = "WAREHOUSE_NOT_YET_LOADED"
	StateWarehouseConnected    State = "WAREHOUSE_CONNECTED"
	StateLoaded                State = "LOADED"
	StateNotified              State = "NOTIFIED"
	StateError                 State = "ERROR"
)

const stageName = "warehouse"

// ControlLog is the log sink the orchestrator reads guards from and writes to
type ControlLog interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, action, details, status string) error
	ExistsToday(ctx context.Context, action, status string) (bool, error)
	Recent(ctx context.Context, n int) ([]models.LogEntry, error)
}

// Session is an open warehouse connection able to run one load
type Session interface {
	Ping(ctx context.Context) error
	Load(ctx context.Context) (*warehouse.Summary, error)
	Close() error
}

// SessionOpener acquires a warehouse session
type SessionOpener func(ctx context.Context) (Session, error)

// Options configures an Orchestrator
type Options struct {
	Control    ControlLog
	Open       SessionOpener
	Notifier   notify.Notifier
	Recipients []string
	Subject    string
	RecentRows int
	Metrics    metrics.Recorder
	Log        *logger.Logger
}

// Orchestrator drives one warehouse load through its guarded states
type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
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
		opts.Subject = "Load DataWareHouse Completed"
	}
	return &Orchestrator{opts: opts}
}

// Result describes where a run stopped
type Result struct {
	// State is the last state reached. A clean halt on a guard leaves the
	// run in the state whose guard failed; faults end in StateError.
	State State
	// Trail lists every state entered, in order.
	Trail []State
	// Status is the status written with the final log row.
	Status   string
	Details  string
	Summary  *warehouse.Summary
	Notified bool
	Err      error
}

// Failed reports whether the run should be treated as a failure by callers
func (r *Result) Failed() bool {
	return r.Status == models.StatusError || r.Status == models.StatusFailed
}

// Run executes the state machine once. Every halt, clean or not, writes a
// control log row and sends the status notification.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	started := time.Now()
	res := &Result{}
	res.enter(StateInit)

	o.run(ctx, res)
	o.notify(ctx, res)

	o.opts.Metrics.StageFinished(stageName, res.Status, started)
	if res.Summary != nil {
		o.opts.Metrics.ProductsLoaded(stageName, "new", res.Summary.Added)
		o.opts.Metrics.ProductsLoaded(stageName, "versioned", res.Summary.Versioned)
		o.opts.Metrics.ProductsLoaded(stageName, "unchanged", res.Summary.Unchanged)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, res *Result) {
	logCtx := context.WithoutCancel(ctx)

	if o.interrupted(ctx, logCtx, res) {
		return
	}
	if err := o.opts.Control.Ping(ctx); err != nil {
		if o.interrupted(ctx, logCtx, res) {
			return
		}
		o.fail(logCtx, res, models.StatusError, "Failed to connect to Control", err)
		return
	}
	res.enter(StateControlConnected)

	staged, err := o.opts.Control.ExistsToday(ctx, models.ActionEndStaging, models.StatusCompleted)
	if err != nil {
		o.fail(logCtx, res, models.StatusError, "Failed to read the control log", err)
		return
	}
	if !staged {
		o.halt(logCtx, res, models.StatusWarning, "No data available in Staging")
		return
	}
	res.enter(StateStagingVerified)

	loaded, err := o.opts.Control.ExistsToday(ctx, models.ActionLoadWarehouse, models.StatusSuccess)
	if err != nil {
		o.fail(logCtx, res, models.StatusError, "Failed to read the control log", err)
		return
	}
	if loaded {
		o.halt(logCtx, res, models.StatusInfo, "Data has already been loaded from Staging to Warehouse")
		return
	}
	res.enter(StateWarehouseNotYetLoaded)

	if o.interrupted(ctx, logCtx, res) {
		return
	}
	session, err := o.opts.Open(ctx)
	if err != nil {
		o.fail(logCtx, res, models.StatusError, "Failed to get Warehouse connection", err)
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			o.opts.Log.Warn("failed to close warehouse session", "error", cerr)
		}
	}()
	if err := session.Ping(ctx); err != nil {
		o.fail(logCtx, res, models.StatusError, "Failed to connect to Warehouse", err)
		return
	}
	res.enter(StateWarehouseConnected)

	summary, err := session.Load(ctx)
	if err != nil {
		details := "Load data from Staging to Warehouse failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			details = "Load data from Staging to Warehouse interrupted"
		}
		o.fail(logCtx, res, models.StatusFailed, details, err)
		return
	}
	res.Summary = summary
	res.enter(StateLoaded)

	res.Status = models.StatusSuccess
	res.Details = summary.Details()
	if err := o.opts.Control.Write(logCtx, models.ActionLoadWarehouse, res.Details, models.StatusSuccess); err != nil {
		// the load is committed; only the audit row is missing
		res.Err = fmt.Errorf("record warehouse success: %w", err)
		o.opts.Log.Error("failed to write success log", "error", err)
	}
	o.opts.Log.Info("warehouse load finished", "total", summary.Total(), "unchanged", summary.Unchanged)
}

// interrupted fails the run as Failed once ctx is done, so a termination
// signal is not reported as a connection fault.
func (o *Orchestrator) interrupted(ctx, logCtx context.Context, res *Result) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	o.fail(logCtx, res, models.StatusFailed, "Load data to Warehouse interrupted", err)
	return true
}

// halt stops the run cleanly on a guard
func (o *Orchestrator) halt(ctx context.Context, res *Result, status, details string) {
	res.Status = status
	res.Details = details
	o.writeLog(ctx, status, details)
	o.opts.Log.Info("warehouse load halted", "state", res.State, "status", status, "details", details)
}

// fail moves the run to StateError
func (o *Orchestrator) fail(ctx context.Context, res *Result, status, details string, err error) {
	res.Status = status
	res.Details = fmt.Sprintf("%s: %v", details, err)
	res.Err = err
	o.writeLog(ctx, status, res.Details)
	o.opts.Log.Error("warehouse load failed", "state", res.State, "details", details, "error", err)
	res.enter(StateError)
}

func (o *Orchestrator) writeLog(ctx context.Context, status, details string) {
	if err := o.opts.Control.Write(ctx, models.ActionLoadWarehouse, details, status); err != nil {
		o.opts.Log.Error("failed to write control log", "status", status, "error", err)
	}
}

// notify is best effort; a failure never changes the run status
func (o *Orchestrator) notify(ctx context.Context, res *Result) {
	ctx = context.WithoutCancel(ctx)

	entries, err := o.opts.Control.Recent(ctx, o.opts.RecentRows)
	if err != nil {
		o.opts.Log.Warn("failed to read recent logs for notification", "error", err)
	}
	body, err := notify.RenderLogTable("Recent Logs", entries)
	if err != nil {
		o.opts.Log.Warn("failed to render notification", "error", err)
		return
	}
	if err := o.opts.Notifier.Send(ctx, o.opts.Subject, body, o.opts.Recipients); err != nil {
		o.opts.Log.Warn("failed to send notification", "error", err)
		return
	}
	res.Notified = true
	if res.State == StateLoaded {
		res.enter(StateNotified)
	}
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

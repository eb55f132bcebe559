package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/control"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

// controlSession connects to the control database on first Ping so that a
// connection failure surfaces through the caller's own guard and log path.
type controlSession struct {
	cfg      config.DatabaseConfig
	configID int
	process  string
	now      func() time.Time
	log      *logger.Logger

	mu    sync.Mutex
	gdb   *database.GormDB
	store *control.Store
}

func newControlSession(cfg config.DatabaseConfig, configID int, process string, now func() time.Time, log *logger.Logger) *controlSession {
	return &controlSession{cfg: cfg, configID: configID, process: process, now: now, log: log}
}

func (c *controlSession) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store.Ping(ctx)
	}
	gdb, err := database.Open(ctx, c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrUnreachable, err)
	}
	c.gdb = gdb
	c.store = control.NewStore(gdb.DB(), c.configID, c.process, c.now)
	return nil
}

func (c *controlSession) current() (*control.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil, control.ErrUnreachable
	}
	return c.store, nil
}

func (c *controlSession) Write(ctx context.Context, action, details, status string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.Write(ctx, action, details, status)
}

func (c *controlSession) ExistsToday(ctx context.Context, action, status string) (bool, error) {
	s, err := c.current()
	if err != nil {
		return false, err
	}
	return s.ExistsToday(ctx, action, status)
}

func (c *controlSession) Recent(ctx context.Context, n int) ([]models.LogEntry, error) {
	s, err := c.current()
	if err != nil {
		return nil, err
	}
	return s.Recent(ctx, n)
}

func (c *controlSession) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gdb == nil {
		return
	}
	if err := c.gdb.Close(); err != nil {
		c.log.Warn("failed to close control session", "error", err)
	}
	c.gdb, c.store = nil, nil
}

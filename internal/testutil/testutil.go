package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"gorm.io/gorm"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// GormDB opens a private in-memory sqlite database, applies the given
// migration sets and closes it when the test ends.
func GormDB(tb testing.TB, sets ...database.MigrationSet) *database.GormDB {
	tb.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	cfg := config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)},
	}
	gdb, err := database.Open(context.Background(), cfg, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	tb.Cleanup(func() { _ = gdb.Close() })

	for _, set := range sets {
		if _, err := database.Migrate(context.Background(), gdb.DB(), set); err != nil {
			tb.Fatalf("failed to migrate %s: %v", set.Schema, err)
		}
	}
	return gdb
}

func DB(tb testing.TB, sets ...database.MigrationSet) *gorm.DB {
	tb.Helper()
	return GormDB(tb, sets...).DB()
}

// Clock is a settable clock for deterministic tests
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// FixedClock returns a clock set to 2026-10-19 10:30 UTC
func FixedClock() *Clock {
	return NewClock(time.Date(2026, time.October, 19, 10, 30, 0, 0, time.UTC))
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

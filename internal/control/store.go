package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnreachable is returned when the control database cannot be reached
var ErrUnreachable = errors.New("control store unreachable")

// Store is the append-only control log. Each store writes rows for one
// process and config id.
type Store struct {
	db       *gorm.DB
	configID int
	process  string
	now      func() time.Time
}

// NewStore creates a log store. now decides both row timestamps and which
// calendar day counts as "today".
func NewStore(db *gorm.DB, configID int, process string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, configID: configID, process: process, now: now}
}

// ForProcess returns a store sharing the same database that writes rows for
// another process.
func (s *Store) ForProcess(configID int, process string) *Store {
	return &Store{db: s.db, configID: configID, process: process, now: s.now}
}

// Process returns the process name written by this store
func (s *Store) Process() string {
	return s.process
}

// Ping checks the control database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}

// Write appends one log row
func (s *Store) Write(ctx context.Context, action, details, status string) error {
	entry := models.LogEntry{
		ConfigID:  s.configID,
		Timestamp: s.now().UTC().Truncate(time.Second),
		Action:    action,
		Details:   details,
		Process:   s.process,
		Status:    status,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("write log %q: %w", action, err)
	}
	return nil
}

// ExistsOn reports whether a row with action and status was written on the
// calendar day of day, in day's location. Rows of every process count.
func (s *Store) ExistsOn(ctx context.Context, day time.Time, action, status string) (bool, error) {
	start, end := DayBounds(day)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LogEntry{}).
		Where("action = ? AND status = ?", action, status).
		Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: start}).
		Where(clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: end}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query log %q/%q: %w", action, status, err)
	}
	return count > 0, nil
}

// ExistsToday is ExistsOn for the store's current day
func (s *Store) ExistsToday(ctx context.Context, action, status string) (bool, error) {
	return s.ExistsOn(ctx, s.now(), action, status)
}

// Recent returns the latest n rows, newest first
func (s *Store) Recent(ctx context.Context, n int) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("read recent logs: %w", err)
	}
	return entries, nil
}

// DayBounds returns the UTC instants delimiting the calendar day of t in t's
// location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

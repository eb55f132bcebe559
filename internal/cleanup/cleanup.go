package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service purges control log rows older than the retention window
type Service struct {
	db  *gorm.DB
	now func() time.Time
	log *logger.Logger
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB, now func() time.Time, log *logger.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, now: now, log: log}
}

// Result holds the result of a cleanup operation
type Result struct {
	TargetCount  int64     `json:"target_count"`
	DeletedCount int64     `json:"deleted_count"`
	DryRun       bool      `json:"dry_run"`
	Cutoff       time.Time `json:"cutoff"`
	ExecutedAt   time.Time `json:"executed_at"`
}

func (s *Service) cutoff(retentionDays int) time.Time {
	return s.now().UTC().AddDate(0, 0, -retentionDays)
}

func (s *Service) expired(ctx context.Context, cutoff time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.LogEntry{}).
		Where(clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: cutoff})
}

// CountExpired returns how many rows are older than retentionDays
func (s *Service) CountExpired(ctx context.Context, retentionDays int) (int64, error) {
	var n int64
	if err := s.expired(ctx, s.cutoff(retentionDays)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count expired logs: %w", err)
	}
	return n, nil
}

// Purge deletes expired rows. It refuses to run when more than
// MaxDeletionCount rows would go, and only counts them on a dry run.
func (s *Service) Purge(ctx context.Context, cfg config.CleanupConfig) (*Result, error) {
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("retention_days must be positive, got %d", cfg.RetentionDays)
	}
	result := &Result{
		DryRun:     cfg.DryRun,
		Cutoff:     s.cutoff(cfg.RetentionDays),
		ExecutedAt: s.now(),
	}

	if err := s.expired(ctx, result.Cutoff).Count(&result.TargetCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count expired logs: %w", err)
	}
	if result.TargetCount == 0 {
		s.log.Info("no expired control logs", "cutoff", result.Cutoff)
		return result, nil
	}
	if cfg.MaxDeletionCount > 0 && result.TargetCount > int64(cfg.MaxDeletionCount) {
		return nil, fmt.Errorf("safety check failed: %d logs exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}
	if cfg.DryRun {
		s.log.Info("dry run: control logs would be deleted", "count", result.TargetCount, "cutoff", result.Cutoff)
		return result, nil
	}

	res := s.expired(ctx, result.Cutoff).Delete(&models.LogEntry{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete expired logs: %w", res.Error)
	}
	result.DeletedCount = res.RowsAffected
	s.log.Info("control logs purged", "deleted", result.DeletedCount, "retention_days", cfg.RetentionDays)
	return result, nil
}

// Stats returns log counts grouped by process and status
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.LogEntry{}).Count(&total).Error; err != nil {
		return nil, err
	}
	stats["total"] = total

	var rows []struct {
		Process string
		Status  string
		Count   int64
	}
	if err := s.db.WithContext(ctx).Model(&models.LogEntry{}).
		Select("process, status, count(*) as count").
		Group("process, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	byProcess := make(map[string]map[string]int64)
	for _, r := range rows {
		if byProcess[r.Process] == nil {
			byProcess[r.Process] = make(map[string]int64)
		}
		byProcess[r.Process][r.Status] = r.Count
	}
	stats["by_process"] = byProcess
	return stats, nil
}

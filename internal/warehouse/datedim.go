package warehouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DateResolver maps calendar days to date dimension rows
type DateResolver struct {
	now func() time.Time
}

func NewDateResolver(now func() time.Time) *DateResolver {
	if now == nil {
		now = time.Now
	}
	return &DateResolver{now: now}
}

// ResolveToday returns the date dimension id of the current calendar day
func (r *DateResolver) ResolveToday(tx *gorm.DB) (uint, error) {
	return ResolveDate(tx, r.now())
}

// ResolveDate returns the id of the row for day's calendar date, inserting it
// when absent. The insert ignores a unique conflict on full_date so a
// concurrent resolver inserting the same day ends up with the same id.
func ResolveDate(tx *gorm.DB, day time.Time) (uint, error) {
	want := BuildDimDate(day)

	id, err := findDate(tx, want.FullDate)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup date dimension: %w", err)
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "full_date"}},
		DoNothing: true,
	}).Create(&want).Error
	if err != nil {
		return 0, fmt.Errorf("insert date dimension: %w", err)
	}

	id, err = findDate(tx, want.FullDate)
	if err != nil {
		return 0, fmt.Errorf("reload date dimension: %w", err)
	}
	return id, nil
}

func findDate(tx *gorm.DB, fullDate time.Time) (uint, error) {
	var row models.DimDate
	if err := tx.Where("full_date = ?", fullDate).First(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// BuildDimDate computes the dimension attributes of t's calendar date. The
// stored full_date is that date at midnight UTC.
func BuildDimDate(t time.Time) models.DimDate {
	y, m, d := t.Date()
	_, week := t.ISOWeek()
	return models.DimDate{
		FullDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Day:        d,
		Month:      int(m),
		Year:       y,
		MonthYear:  fmt.Sprintf("%d-%d", int(m), y),
		WeekOfYear: week,
		DayName:    t.Weekday().String(),
	}
}

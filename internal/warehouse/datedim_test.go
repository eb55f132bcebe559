package warehouse

import (
	"testing"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/testutil"
)

func TestBuildDimDate(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	got := BuildDimDate(time.Date(2026, time.October, 19, 23, 59, 0, 0, loc))

	if !got.FullDate.Equal(time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("full_date = %v", got.FullDate)
	}
	if got.Day != 19 || got.Month != 10 || got.Year != 2026 {
		t.Fatalf("components = %d/%d/%d", got.Day, got.Month, got.Year)
	}
	if got.MonthYear != "10-2026" {
		t.Fatalf("month_year = %q", got.MonthYear)
	}
	if got.WeekOfYear != 43 {
		t.Fatalf("week = %d, want 43", got.WeekOfYear)
	}
	if got.DayName != "Monday" {
		t.Fatalf("day name = %q", got.DayName)
	}
}

func TestResolveDateIsIdempotent(t *testing.T) {
	db := testutil.DB(t, database.WarehouseMigrations)
	day := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

	first, err := ResolveDate(db, day)
	if err != nil {
		t.Fatalf("ResolveDate: %v", err)
	}
	second, err := ResolveDate(db, day.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("ResolveDate: %v", err)
	}
	if first == 0 || first != second {
		t.Fatalf("ids = %d, %d", first, second)
	}

	var n int64
	db.Model(&models.DimDate{}).Count(&n)
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
}

func TestDimDateUniqueFullDate(t *testing.T) {
	db := testutil.DB(t, database.WarehouseMigrations)
	row := BuildDimDate(time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC))
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := BuildDimDate(time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC))
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("duplicate full_date must be rejected")
	}
}

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func memoryConfig() config.DatabaseConfig {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)},
	}
}

func openMemory(t *testing.T) *GormDB {
	t.Helper()
	gdb, err := Open(context.Background(), memoryConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = gdb.Close() })
	return gdb
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.MySQLConfig{Host: "db", Port: 3306, User: "etl", Password: "pw", Database: "warehouse"})
	for _, want := range []string{"etl:pw@tcp(db:3306)/warehouse", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestPostgresDSNDefaultsSSLMode(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{Host: "pg", Port: 5432, User: "u", Password: "p", Database: "dw"})
	if !strings.Contains(dsn, "sslmode=disable") || !strings.Contains(dsn, "dbname=dw") {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestDialectorRejectsUnknownType(t *testing.T) {
	if _, err := Dialector(config.DatabaseConfig{Type: "oracle"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Dialector(config.DatabaseConfig{Type: "sqlite"}); err == nil {
		t.Fatalf("expected error for empty sqlite path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	gdb := openMemory(t)
	ctx := context.Background()

	n, err := Migrate(ctx, gdb.DB(), WarehouseMigrations)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if n != 2 {
		t.Fatalf("applied = %d, want 2", n)
	}

	n, err = Migrate(ctx, gdb.DB(), WarehouseMigrations)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if n != 0 {
		t.Fatalf("second run applied = %d, want 0", n)
	}

	for _, table := range []string{"products", "images", "specifications", "dim_date"} {
		if !gdb.DB().Migrator().HasTable(table) {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestMigrateSchemasAreIndependent(t *testing.T) {
	gdb := openMemory(t)
	ctx := context.Background()

	for _, set := range []MigrationSet{ControlMigrations, StagingMigrations, WarehouseMigrations, DataMartMigrations} {
		if _, err := Migrate(ctx, gdb.DB(), set); err != nil {
			t.Fatalf("Migrate %s: %v", set.Schema, err)
		}
	}

	var count int64
	if err := gdb.DB().Model(&models.SchemaMigration{}).Count(&count).Error; err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 5 {
		t.Fatalf("schema_migrations rows = %d, want 5", count)
	}
}

func TestMigrateStopsOnFailure(t *testing.T) {
	gdb := openMemory(t)
	boom := errors.New("boom")
	set := MigrationSet{
		Schema: "broken",
		Migrations: []Migration{
			{Version: 1, Name: "ok", Up: func(tx *gorm.DB) error { return nil }},
			{Version: 2, Name: "fails", Up: func(tx *gorm.DB) error { return boom }},
			{Version: 3, Name: "never", Up: func(tx *gorm.DB) error { return nil }},
		},
	}

	n, err := Migrate(context.Background(), gdb.DB(), set)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}

	var versions []int
	gdb.DB().Model(&models.SchemaMigration{}).Where("schema_name = ?", "broken").Pluck("version", &versions)
	if len(versions) != 1 || versions[0] != 1 {
		t.Fatalf("recorded versions = %v", versions)
	}
}

func TestWithSessionClosesOnError(t *testing.T) {
	cfg := memoryConfig()
	var captured *GormDB
	want := errors.New("phase failed")

	err := WithSession(context.Background(), cfg, logger.Nop(), func(gdb *GormDB) error {
		captured = gdb
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if err := captured.Ping(context.Background()); err == nil {
		t.Fatalf("session should be closed after WithSession returns")
	}
}

func TestGormLoggerSkipsMissesAndReportsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	gdb, err := Open(context.Background(), memoryConfig(), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer gdb.Close()
	db := gdb.DB()

	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	var row models.SchemaMigration
	err = db.Where("schema_name = ?", "nowhere").First(&row).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("a lookup miss logged %d entries: %v", n, logs.All())
	}

	if err := db.Exec("SELECT * FROM missing_table").Error; err == nil {
		t.Fatalf("expected an error for a missing table")
	}
	entries := logs.FilterMessageSnippet("missing_table").All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		t.Fatalf("entries = %v", logs.All())
	}
	if entries[0].ContextMap()["component"] != "gorm" {
		t.Fatalf("fields = %v", entries[0].ContextMap())
	}
}

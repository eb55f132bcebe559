package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// Migration is one numbered schema change
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// MigrationSet is the ordered list of migrations for one schema
type MigrationSet struct {
	Schema     string
	Migrations []Migration
}

// Migrate applies every migration of set that is not yet recorded in
// schema_migrations and returns how many were applied.
func Migrate(ctx context.Context, db *gorm.DB, set MigrationSet) (int, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []models.SchemaMigration
	if err := db.Where("schema_name = ?", set.Schema).Find(&applied).Error; err != nil {
		return 0, fmt.Errorf("read applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	pending := make([]Migration, 0, len(set.Migrations))
	for _, m := range set.Migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	count := 0
	for _, m := range pending {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaMigration{
				SchemaName: set.Schema,
				Version:    m.Version,
				Name:       m.Name,
				AppliedAt:  time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return count, fmt.Errorf("migration %s/%d (%s): %w", set.Schema, m.Version, m.Name, err)
		}
		count++
	}
	return count, nil
}

// InitSchema migrates the database behind gdb
func (gdb *GormDB) InitSchema(ctx context.Context, set MigrationSet) error {
	n, err := Migrate(ctx, gdb.db, set)
	if err != nil {
		return err
	}
	if n > 0 && gdb.log != nil {
		gdb.log.Info("schema migrated", "schema", set.Schema, "applied", n)
	}
	return nil
}

func autoMigrate(dst ...interface{}) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.AutoMigrate(dst...)
	}
}

package models

import "time"

// SchemaMigration records an applied schema version
type SchemaMigration struct {
	SchemaName string    `gorm:"type:varchar(50);primaryKey" json:"schema_name"`
	Version    int       `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	AppliedAt  time.Time `gorm:"not null" json:"applied_at"`
}

// TableName specifies the table name
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

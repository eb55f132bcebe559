package models

import "time"

// LogEntry is one row of the control log shared by every pipeline stage.
type LogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConfigID  int       `gorm:"not null;index" json:"config_id"`
	Timestamp time.Time `gorm:"not null;index:idx_logs_action_status_time,priority:3" json:"timestamp"`
	Action    string    `gorm:"type:varchar(100);not null;index:idx_logs_action_status_time,priority:1" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	Process   string    `gorm:"type:varchar(50);not null" json:"process"`
	Status    string    `gorm:"type:varchar(50);not null;index:idx_logs_action_status_time,priority:2" json:"status"`
}

// TableName specifies the table name
func (LogEntry) TableName() string {
	return "logs"
}

// Log actions
const (
	ActionStartCrawl     = "Start Crawl"
	ActionEndCrawl       = "End Crawl"
	ActionStartStaging   = "Start Staging"
	ActionStagingSummary = "Staging Summary"
	ActionEndStaging     = "End Staging"
	ActionLoadWarehouse  = "Load data to Warehouse"
	ActionLoadDataMart   = "Load data to DataMart"
)

// Log statuses
const (
	StatusInProgress     = "In Progress"
	StatusCompleted      = "Completed"
	StatusPartialSuccess = "Partial Success"
	StatusSuccess        = "Success"
	StatusError          = "Error"
	StatusWarning        = "Warning"
	StatusInfo           = "Info"
	StatusFailed         = "Failed"
)

// Process names written to the process column
const (
	ProcessCrawl     = "crawl"
	ProcessStaging   = "staging"
	ProcessWarehouse = "warehouse"
	ProcessDataMart  = "datamart"
)

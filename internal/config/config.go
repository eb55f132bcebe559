package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Control   DatabaseConfig  `yaml:"control"`
	Staging   StagingConfig   `yaml:"staging"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	DataMart  DataMartConfig  `yaml:"datamart"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Notify    NotifyConfig    `yaml:"notify"`
	Search    SearchConfig    `yaml:"search"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
}

// DatabaseConfig selects and configures one database connection
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains the database file path
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StagingConfig contains the staging stage settings
type StagingConfig struct {
	Database           DatabaseConfig `yaml:"database"`
	ConfigID           int            `yaml:"config_id"`
	DataDir            string         `yaml:"data_dir"`
	ProductsFile       string         `yaml:"products_file"`
	ImagesFile         string         `yaml:"images_file"`
	SpecificationsFile string         `yaml:"specifications_file"`
}

// WarehouseConfig contains the warehouse stage settings
type WarehouseConfig struct {
	Database    DatabaseConfig `yaml:"database"`
	ConfigID    int            `yaml:"config_id"`
	ChildPolicy string         `yaml:"child_policy"`
	Subject     string         `yaml:"subject"`
}

// DataMartConfig contains the datamart stage settings
type DataMartConfig struct {
	Database DatabaseConfig `yaml:"database"`
	ConfigID int            `yaml:"config_id"`
	Subject  string         `yaml:"subject"`
}

// CrawlerConfig contains crawler settings
type CrawlerConfig struct {
	ConfigID               int             `yaml:"config_id"`
	ListingURL             string          `yaml:"listing_url"`
	UseBrowser             bool            `yaml:"use_browser"`
	ChromePath             string          `yaml:"chrome_path"`
	UserAgent              string          `yaml:"user_agent"`
	RequestDelaySeconds    int             `yaml:"request_delay_seconds"`
	TimeoutSeconds         int             `yaml:"timeout_seconds"`
	MaxProducts            int             `yaml:"max_products"`
	MaxConsecutiveFailures int             `yaml:"max_consecutive_failures"`
	CircuitCooldownSeconds int             `yaml:"circuit_cooldown_seconds"`
	Selectors              SelectorsConfig `yaml:"selectors"`
}

// SelectorsConfig holds the CSS selectors used to read product pages
type SelectorsConfig struct {
	ListingLink     string `yaml:"listing_link"`
	Name            string `yaml:"name"`
	Price           string `yaml:"price"`
	DiscountedPrice string `yaml:"discounted_price"`
	DiscountPercent string `yaml:"discount_percent"`
	Thumb           string `yaml:"thumb"`
	SpecRows        string `yaml:"spec_rows"`
	GalleryLinks    string `yaml:"gallery_links"`
}

// ArchiveConfig selects where processed CSV files go
type ArchiveConfig struct {
	Type       string   `yaml:"type"`
	HistoryDir string   `yaml:"history_dir"`
	S3         S3Config `yaml:"s3"`
}

// S3Config contains S3 archive settings
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// NotifyConfig contains SMTP notification settings
type NotifyConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
	StartTLS   bool     `yaml:"starttls"`
	RecentRows int      `yaml:"recent_rows"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
	Index   string `yaml:"index"`
}

// SchedulerConfig contains the daily pipeline schedule
type SchedulerConfig struct {
	DailyRunEnabled bool   `yaml:"daily_run_enabled"`
	DailyRunTime    string `yaml:"daily_run_time"`
	CleanupSpec     string `yaml:"cleanup_spec"`
}

// CleanupConfig contains control log retention settings
type CleanupConfig struct {
	RetentionDays    int  `yaml:"retention_days"`
	MaxDeletionCount int  `yaml:"max_deletion_count"`
	DryRun           bool `yaml:"dry_run"`
}

// ServerConfig contains admin API settings
type ServerConfig struct {
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

// Child policies accepted in warehouse.child_policy
const (
	ChildPolicyIdentityCreate   = "identity-create"
	ChildPolicyRefreshOnVersion = "refresh-on-version"
)

func defaultMySQL(database string) DatabaseConfig {
	return DatabaseConfig{
		Type: "mysql",
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Database: database,
		},
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Control: defaultMySQL("control"),
		Staging: StagingConfig{
			Database:           defaultMySQL("staging"),
			ConfigID:           1,
			DataDir:            "data",
			ProductsFile:       "products.csv",
			ImagesFile:         "images.csv",
			SpecificationsFile: "specifications.csv",
		},
		Warehouse: WarehouseConfig{
			Database:    defaultMySQL("warehouse"),
			ConfigID:    2,
			ChildPolicy: ChildPolicyIdentityCreate,
			Subject:     "Load DataWareHouse Completed",
		},
		DataMart: DataMartConfig{
			Database: defaultMySQL("datamart"),
			ConfigID: 3,
			Subject:  "Load DataMart Completed",
		},
		Crawler: CrawlerConfig{
			ConfigID:               1,
			ListingURL:             "https://gearvn.com/collections/laptop",
			UserAgent:              "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			RequestDelaySeconds:    2,
			TimeoutSeconds:         30,
			MaxProducts:            0,
			MaxConsecutiveFailures: 5,
			CircuitCooldownSeconds: 60,
			Selectors: SelectorsConfig{
				ListingLink:     ".proloop .proloop-name a",
				Name:            ".product-name h1",
				Price:           ".product-price .pro-price",
				DiscountedPrice: ".product-price del",
				DiscountPercent: ".product-price .pro-percent",
				Thumb:           ".img-default",
				SpecRows:        "#tblGeneralAttribute tr",
				GalleryLinks:    ".product-gallery--photo a",
			},
		},
		Archive: ArchiveConfig{
			Type:       "local",
			HistoryDir: "data/history",
			S3: S3Config{
				Region: "ap-southeast-1",
				Prefix: "history",
			},
		},
		Notify: NotifyConfig{
			Host:       "smtp.gmail.com",
			Port:       587,
			StartTLS:   true,
			RecentRows: 5,
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Host:  "http://localhost:7700",
				Index: "products",
			},
		},
		Scheduler: SchedulerConfig{
			DailyRunEnabled: false,
			DailyRunTime:    "02:00",
			CleanupSpec:     "0 3 * * 0",
		},
		Cleanup: CleanupConfig{
			RetentionDays:    180,
			MaxDeletionCount: 10000,
		},
		Server: ServerConfig{
			Port:         "8080",
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Mode: "development",
		},
		Timezone: "Asia/Ho_Chi_Minh",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv loads an optional .env file and overrides credentials from the
// environment. Variables already set in the process win over the file.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	applyDatabaseEnv("CONTROL", &c.Control)
	applyDatabaseEnv("STAGING", &c.Staging.Database)
	applyDatabaseEnv("WAREHOUSE", &c.Warehouse.Database)
	applyDatabaseEnv("DATAMART", &c.DataMart.Database)

	if v := os.Getenv("DTWH_SMTP_USERNAME"); v != "" {
		c.Notify.Username = v
	}
	if v := os.Getenv("DTWH_SMTP_PASSWORD"); v != "" {
		c.Notify.Password = v
	}
	if v := os.Getenv("DTWH_NOTIFY_RECIPIENTS"); v != "" {
		c.Notify.Recipients = splitList(v)
	}
	if v := os.Getenv("DTWH_MEILI_API_KEY"); v != "" {
		c.Search.Meilisearch.APIKey = v
	}
	if v := os.Getenv("DTWH_S3_ACCESS_KEY_ID"); v != "" {
		c.Archive.S3.AccessKeyID = v
	}
	if v := os.Getenv("DTWH_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Archive.S3.SecretAccessKey = v
	}
	return nil
}

func applyDatabaseEnv(schema string, db *DatabaseConfig) {
	prefix := "DTWH_" + schema + "_DB_"
	if v := os.Getenv(prefix + "TYPE"); v != "" {
		db.Type = v
	}
	host := os.Getenv(prefix + "HOST")
	user := os.Getenv(prefix + "USER")
	password := os.Getenv(prefix + "PASSWORD")
	name := os.Getenv(prefix + "NAME")
	port, _ := strconv.Atoi(os.Getenv(prefix + "PORT"))

	switch db.Type {
	case "postgres":
		setIfNotEmpty(&db.Postgres.Host, host)
		setIfNotEmpty(&db.Postgres.User, user)
		setIfNotEmpty(&db.Postgres.Password, password)
		setIfNotEmpty(&db.Postgres.Database, name)
		if port > 0 {
			db.Postgres.Port = port
		}
	case "sqlite":
		setIfNotEmpty(&db.SQLite.Path, name)
	default:
		setIfNotEmpty(&db.MySQL.Host, host)
		setIfNotEmpty(&db.MySQL.User, user)
		setIfNotEmpty(&db.MySQL.Password, password)
		setIfNotEmpty(&db.MySQL.Database, name)
		if port > 0 {
			db.MySQL.Port = port
		}
	}
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	dbs := map[string]DatabaseConfig{
		"control":   c.Control,
		"staging":   c.Staging.Database,
		"warehouse": c.Warehouse.Database,
		"datamart":  c.DataMart.Database,
	}
	for name, db := range dbs {
		switch db.Type {
		case "mysql", "postgres":
		case "sqlite":
			if db.SQLite.Path == "" {
				return fmt.Errorf("%s: sqlite path is required", name)
			}
		default:
			return fmt.Errorf("%s: unsupported database type %q", name, db.Type)
		}
	}

	switch c.Warehouse.ChildPolicy {
	case ChildPolicyIdentityCreate, ChildPolicyRefreshOnVersion:
	default:
		return fmt.Errorf("unsupported warehouse child policy %q", c.Warehouse.ChildPolicy)
	}

	switch c.Archive.Type {
	case "local":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive: s3 bucket is required")
		}
	default:
		return fmt.Errorf("unsupported archive type %q", c.Archive.Type)
	}

	if c.Notify.RecentRows <= 0 {
		return fmt.Errorf("notify.recent_rows must be positive, got %d", c.Notify.RecentRows)
	}
	if _, _, err := ParseDailyRunTime(c.Scheduler.DailyRunTime); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ParseDailyRunTime parses "HH:MM" into hour and minute
func ParseDailyRunTime(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid daily_run_time %q (expected HH:MM)", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in daily_run_time %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in daily_run_time %q", value)
	}
	return hour, minute, nil
}

// Location returns the configured time zone, defaulting to local time
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NotificationsEnabled reports whether an SMTP notifier can be built
func (c *NotifyConfig) NotificationsEnabled() bool {
	return c.Enabled && c.Host != "" && len(c.Recipients) > 0
}

// GetRequestDelay returns the request delay as a duration
func (c *CrawlerConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetTimeout returns the timeout as a duration
func (c *CrawlerConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetCircuitCooldown returns the circuit breaker cooldown as a duration
func (c *CrawlerConfig) GetCircuitCooldown() time.Duration {
	return time.Duration(c.CircuitCooldownSeconds) * time.Second
}

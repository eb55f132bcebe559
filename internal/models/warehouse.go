package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WarehouseProduct is one version of a product. ID is shared by every version
// of the same product; SK numbers the versions starting at 1. The row with the
// highest SK is the current one, all others are history and never change.
type WarehouseProduct struct {
	ID              uint                `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SK              int                 `gorm:"column:sk;primaryKey;autoIncrement:false" json:"sk"`
	ProductName     string              `gorm:"type:varchar(255);not null;index" json:"product_name"`
	Price           decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	DiscountedPrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"discounted_price"`
	DiscountPercent decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"discount_percent"`
	ThumbImage      *string             `gorm:"type:text" json:"thumb_image,omitempty"`
	DateUpdate      uint                `gorm:"not null;index" json:"date_update"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (WarehouseProduct) TableName() string {
	return "products"
}

// WarehouseImage belongs to a product identity, not to a specific version
type WarehouseImage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint   `gorm:"not null;index" json:"product_id"`
	ImageURL  string `gorm:"type:text;not null" json:"image_url"`
}

// TableName specifies the table name
func (WarehouseImage) TableName() string {
	return "images"
}

// WarehouseSpecification belongs to a product identity, not to a specific version
type WarehouseSpecification struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint   `gorm:"not null;index" json:"product_id"`
	SpecName  string `gorm:"type:varchar(255);not null" json:"spec_name"`
	SpecValue string `gorm:"type:text" json:"spec_value"`
}

// TableName specifies the table name
func (WarehouseSpecification) TableName() string {
	return "specifications"
}

// DimDate is the calendar date dimension. FullDate is unique.
type DimDate struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FullDate   time.Time `gorm:"type:date;not null;uniqueIndex:idx_dim_date_full_date" json:"full_date"`
	Day        int       `gorm:"not null" json:"day"`
	Month      int       `gorm:"not null" json:"month"`
	Year       int       `gorm:"not null" json:"year"`
	MonthYear  string    `gorm:"type:varchar(10);not null" json:"month_year"`
	WeekOfYear int       `gorm:"not null" json:"week_of_year"`
	DayName    string    `gorm:"type:varchar(10);not null" json:"day_name"`
}

// TableName specifies the table name
func (DimDate) TableName() string {
	return "dim_date"
}

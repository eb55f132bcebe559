package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MartProduct is a denormalized warehouse product version for reporting.
type MartProduct struct {
	ProductID       uint                `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	SK              int                 `gorm:"column:sk;primaryKey;autoIncrement:false" json:"sk"`
	ProductName     string              `gorm:"type:varchar(255);not null;index" json:"product_name"`
	Price           decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	DiscountedPrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"discounted_price"`
	DiscountPercent decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"discount_percent"`
	ThumbImage      *string             `gorm:"type:text" json:"thumb_image,omitempty"`
	FullDate        time.Time           `gorm:"type:date;not null" json:"full_date"`
	DayName         string              `gorm:"type:varchar(10)" json:"day_name"`
	MonthYear       string              `gorm:"type:varchar(10)" json:"month_year"`
	Images          datatypes.JSON      `json:"images"`
	Specifications  datatypes.JSON      `json:"specifications"`
	IsCurrent       bool                `gorm:"not null;default:false;index" json:"is_current"`
	LoadedAt        time.Time           `gorm:"not null" json:"loaded_at"`
}

// TableName specifies the table name
func (MartProduct) TableName() string {
	return "datamart_products"
}

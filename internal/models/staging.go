package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StagingProduct is the current, deduplicated state of a crawled product.
type StagingProduct struct {
	ID              uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductName     string              `gorm:"type:varchar(255);not null;uniqueIndex" json:"product_name"`
	Price           decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	DiscountedPrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"discounted_price"`
	DiscountPercent decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"discount_percent"`
	ThumbImage      *string             `gorm:"type:text" json:"thumb_image,omitempty"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (StagingProduct) TableName() string {
	return "staging_products"
}

// StagingImage is a gallery image of a staging product
type StagingImage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_staging_image,priority:1" json:"product_id"`
	ImageURL  string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_staging_image,priority:2" json:"image_url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (StagingImage) TableName() string {
	return "staging_images"
}

// StagingSpecification is one technical attribute of a staging product
type StagingSpecification struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_staging_spec,priority:1" json:"product_id"`
	SpecName  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_staging_spec,priority:2" json:"spec_name"`
	SpecValue string    `gorm:"type:text" json:"spec_value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (StagingSpecification) TableName() string {
	return "staging_specifications"
}

// SpecPair is a specification name/value pair detached from any table.
type SpecPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StagedProduct is a staging product together with its child rows, as handed
// to the warehouse loader.
type StagedProduct struct {
	StagingID       uint
	ProductName     string
	Price           decimal.Decimal
	DiscountedPrice decimal.NullDecimal
	DiscountPercent decimal.NullDecimal
	ThumbImage      *string
	Images          []string
	Specifications  []SpecPair
}

package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// ErrMissingKey is returned when a row lacks the natural key it is stored by
var ErrMissingKey = errors.New("staging row is missing its key")

// Outcome of writing one staging row
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

// Store holds the current state of every crawled product
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertProduct inserts p or updates the row with the same product name when
// any field differs.
func (s *Store) UpsertProduct(tx *gorm.DB, p models.StagingProduct) (uint, Outcome, error) {
	if strings.TrimSpace(p.ProductName) == "" {
		return 0, 0, ErrMissingKey
	}
	var existing models.StagingProduct
	err := tx.Where("product_name = ?", p.ProductName).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(&p).Error; err != nil {
			return 0, 0, fmt.Errorf("insert product %q: %w", p.ProductName, err)
		}
		return p.ID, OutcomeInserted, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lookup product %q: %w", p.ProductName, err)
	}

	if sameProduct(existing, p) {
		return existing.ID, OutcomeUnchanged, nil
	}
	err = tx.Model(&existing).Updates(map[string]interface{}{
		"price":            p.Price,
		"discounted_price": p.DiscountedPrice,
		"discount_percent": p.DiscountPercent,
		"thumb_image":      p.ThumbImage,
	}).Error
	if err != nil {
		return 0, 0, fmt.Errorf("update product %q: %w", p.ProductName, err)
	}
	return existing.ID, OutcomeUpdated, nil
}

func sameProduct(a, b models.StagingProduct) bool {
	return a.Price.Equal(b.Price) &&
		nullDecimalEqual(a.DiscountedPrice, b.DiscountedPrice) &&
		nullDecimalEqual(a.DiscountPercent, b.DiscountPercent) &&
		stringPtrEqual(a.ThumbImage, b.ThumbImage)
}

func nullDecimalEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// ProductIDs maps product names to staging ids
func (s *Store) ProductIDs(tx *gorm.DB) (map[string]uint, error) {
	var rows []models.StagingProduct
	if err := tx.Select("id", "product_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read product ids: %w", err)
	}
	ids := make(map[string]uint, len(rows))
	for _, r := range rows {
		ids[r.ProductName] = r.ID
	}
	return ids, nil
}

// AddImage inserts the image unless the product already has it
func (s *Store) AddImage(tx *gorm.DB, productID uint, url string) (Outcome, error) {
	if productID == 0 || strings.TrimSpace(url) == "" {
		return 0, ErrMissingKey
	}
	var n int64
	err := tx.Model(&models.StagingImage{}).
		Where("product_id = ? AND image_url = ?", productID, url).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("lookup image: %w", err)
	}
	if n > 0 {
		return OutcomeUnchanged, nil
	}
	if err := tx.Create(&models.StagingImage{ProductID: productID, ImageURL: url}).Error; err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return OutcomeInserted, nil
}

// UpsertSpecification writes a specification keyed by (product, name)
func (s *Store) UpsertSpecification(tx *gorm.DB, productID uint, name, value string) (Outcome, error) {
	if productID == 0 || strings.TrimSpace(name) == "" {
		return 0, ErrMissingKey
	}
	var existing models.StagingSpecification
	err := tx.Where("product_id = ? AND spec_name = ?", productID, name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := models.StagingSpecification{ProductID: productID, SpecName: name, SpecValue: value}
		if err := tx.Create(&row).Error; err != nil {
			return 0, fmt.Errorf("insert specification %q: %w", name, err)
		}
		return OutcomeInserted, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup specification %q: %w", name, err)
	}
	if existing.SpecValue == value {
		return OutcomeUnchanged, nil
	}
	if err := tx.Model(&existing).Update("spec_value", value).Error; err != nil {
		return 0, fmt.Errorf("update specification %q: %w", name, err)
	}
	return OutcomeUpdated, nil
}

// StagedProducts returns every staging product ordered by id with its
// images and specifications attached.
func (s *Store) StagedProducts(ctx context.Context) ([]models.StagedProduct, error) {
	db := s.db.WithContext(ctx)

	var products []models.StagingProduct
	if err := db.Order("id ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("read staging products: %w", err)
	}
	var images []models.StagingImage
	if err := db.Order("id ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("read staging images: %w", err)
	}
	var specs []models.StagingSpecification
	if err := db.Order("id ASC").Find(&specs).Error; err != nil {
		return nil, fmt.Errorf("read staging specifications: %w", err)
	}

	imagesByProduct := make(map[uint][]string)
	for _, img := range images {
		imagesByProduct[img.ProductID] = append(imagesByProduct[img.ProductID], img.ImageURL)
	}
	specsByProduct := make(map[uint][]models.SpecPair)
	for _, sp := range specs {
		specsByProduct[sp.ProductID] = append(specsByProduct[sp.ProductID], models.SpecPair{Name: sp.SpecName, Value: sp.SpecValue})
	}

	staged := make([]models.StagedProduct, 0, len(products))
	for _, p := range products {
		staged = append(staged, models.StagedProduct{
			StagingID:       p.ID,
			ProductName:     p.ProductName,
			Price:           p.Price,
			DiscountedPrice: p.DiscountedPrice,
			DiscountPercent: p.DiscountPercent,
			ThumbImage:      p.ThumbImage,
			Images:          imagesByProduct[p.ID],
			Specifications:  specsByProduct[p.ID],
		})
	}
	return staged, nil
}

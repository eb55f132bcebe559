package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// ErrEmptyProductName is returned for a staged product without a natural key
var ErrEmptyProductName = errors.New("product name is empty")

// ErrConcurrentVersion is returned when the version being written already
// exists, meaning another writer advanced the product first.
var ErrConcurrentVersion = errors.New("product version already exists")

// Store reads and appends warehouse product versions and their children.
// Methods taking a tx run inside the caller's transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CurrentVersion returns the highest sk row for the product name, or nil if
// the product has never been loaded.
func (s *Store) CurrentVersion(tx *gorm.DB, productName string) (*models.WarehouseProduct, error) {
	if productName == "" {
		return nil, ErrEmptyProductName
	}
	var current models.WarehouseProduct
	err := tx.Where("product_name = ?", productName).
		Order("sk DESC").
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup current version of %q: %w", productName, err)
	}
	return &current, nil
}

// NextIdentity allocates the id for a product seen for the first time
func (s *Store) NextIdentity(tx *gorm.DB) (uint, error) {
	var maxID uint
	if err := tx.Model(&models.WarehouseProduct{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return 0, fmt.Errorf("allocate product id: %w", err)
	}
	return maxID + 1, nil
}

// InsertVersion appends a product version. A primary key collision on
// (id, sk) yields ErrConcurrentVersion.
func (s *Store) InsertVersion(tx *gorm.DB, version *models.WarehouseProduct) error {
	err := tx.Create(version).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: id=%d sk=%d", ErrConcurrentVersion, version.ID, version.SK)
	}
	if err != nil {
		return fmt.Errorf("insert product %d version %d: %w", version.ID, version.SK, err)
	}
	return nil
}

// InsertChildren copies image and specification rows for a product identity
func (s *Store) InsertChildren(tx *gorm.DB, productID uint, images []string, specs []models.SpecPair) (int, int, error) {
	if len(images) > 0 {
		rows := make([]models.WarehouseImage, 0, len(images))
		for _, url := range images {
			rows = append(rows, models.WarehouseImage{ProductID: productID, ImageURL: url})
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return 0, 0, fmt.Errorf("insert images of product %d: %w", productID, err)
		}
	}
	if len(specs) > 0 {
		rows := make([]models.WarehouseSpecification, 0, len(specs))
		for _, spec := range specs {
			rows = append(rows, models.WarehouseSpecification{ProductID: productID, SpecName: spec.Name, SpecValue: spec.Value})
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return 0, 0, fmt.Errorf("insert specifications of product %d: %w", productID, err)
		}
	}
	return len(images), len(specs), nil
}

// ReplaceChildren deletes the identity's children and inserts the given ones
func (s *Store) ReplaceChildren(tx *gorm.DB, productID uint, images []string, specs []models.SpecPair) (int, int, error) {
	if err := tx.Where("product_id = ?", productID).Delete(&models.WarehouseImage{}).Error; err != nil {
		return 0, 0, fmt.Errorf("delete images of product %d: %w", productID, err)
	}
	if err := tx.Where("product_id = ?", productID).Delete(&models.WarehouseSpecification{}).Error; err != nil {
		return 0, 0, fmt.Errorf("delete specifications of product %d: %w", productID, err)
	}
	return s.InsertChildren(tx, productID, images, specs)
}

// History returns every version of a product, oldest first
func (s *Store) History(ctx context.Context, productID uint) ([]models.WarehouseProduct, error) {
	var versions []models.WarehouseProduct
	err := s.db.WithContext(ctx).
		Where("id = ?", productID).
		Order("sk ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("read history of product %d: %w", productID, err)
	}
	return versions, nil
}

// Versions returns every product version ordered by id and sk
func (s *Store) Versions(ctx context.Context) ([]models.WarehouseProduct, error) {
	var versions []models.WarehouseProduct
	if err := s.db.WithContext(ctx).Order("id ASC").Order("sk ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("read product versions: %w", err)
	}
	return versions, nil
}

// CurrentVersions returns the highest sk row of every product
func (s *Store) CurrentVersions(ctx context.Context) ([]models.WarehouseProduct, error) {
	var versions []models.WarehouseProduct
	err := s.db.WithContext(ctx).
		Table("products AS p").
		Select("p.*").
		Joins("JOIN (SELECT id, MAX(sk) AS max_sk FROM products GROUP BY id) latest ON latest.id = p.id AND latest.max_sk = p.sk").
		Order("p.id ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("read current versions: %w", err)
	}
	return versions, nil
}

// Images returns the image URLs of a product identity
func (s *Store) Images(ctx context.Context, productID uint) ([]string, error) {
	var urls []string
	err := s.db.WithContext(ctx).Model(&models.WarehouseImage{}).
		Where("product_id = ?", productID).
		Order("id ASC").
		Pluck("image_url", &urls).Error
	if err != nil {
		return nil, fmt.Errorf("read images of product %d: %w", productID, err)
	}
	return urls, nil
}

// Specifications returns the specifications of a product identity
func (s *Store) Specifications(ctx context.Context, productID uint) ([]models.SpecPair, error) {
	var rows []models.WarehouseSpecification
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read specifications of product %d: %w", productID, err)
	}
	specs := make([]models.SpecPair, 0, len(rows))
	for _, r := range rows {
		specs = append(specs, models.SpecPair{Name: r.SpecName, Value: r.SpecValue})
	}
	return specs, nil
}

// DateOf returns a date dimension row by id
func (s *Store) DateOf(ctx context.Context, id uint) (*models.DimDate, error) {
	var row models.DimDate
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("read date %d: %w", id, err)
	}
	return &row, nil
}

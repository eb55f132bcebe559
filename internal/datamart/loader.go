package datamart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/search"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Summary counts the outcome of one datamart load
type Summary struct {
	Inserted int
	Current  int
}

func (s Summary) Details() string {
	return fmt.Sprintf("Load data from Warehouse to DataMart: %d product versions have been added.", s.Inserted)
}

type martKey struct {
	id uint
	sk int
}

// Loader copies warehouse product versions into the denormalized mart table
type Loader struct {
	warehouse *warehouse.Store
	mart      *gorm.DB
	now       func() time.Time
	log       *logger.Logger
}

func NewLoader(warehouseDB, martDB *gorm.DB, now func() time.Time, log *logger.Logger) *Loader {
	if now == nil {
		now = time.Now
	}
	return &Loader{warehouse: warehouse.NewStore(warehouseDB), mart: martDB, now: now, log: log}
}

// Load inserts every warehouse version missing from the mart and flags the
// latest version of each product as current.
func (l *Loader) Load(ctx context.Context) (*Summary, error) {
	versions, err := l.warehouse.Versions(ctx)
	if err != nil {
		return nil, err
	}

	var existing []models.MartProduct
	if err := l.mart.WithContext(ctx).Select("product_id", "sk").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("read datamart keys: %w", err)
	}
	seen := make(map[martKey]bool, len(existing))
	for _, e := range existing {
		seen[martKey{e.ProductID, e.SK}] = true
	}

	latest := make(map[uint]int)
	for _, v := range versions {
		if v.SK > latest[v.ID] {
			latest[v.ID] = v.SK
		}
	}

	rows := make([]models.MartProduct, 0)
	dates := make(map[uint]*models.DimDate)
	loadedAt := l.now().UTC()
	for _, v := range versions {
		if seen[martKey{v.ID, v.SK}] {
			continue
		}
		row, err := l.denormalize(ctx, v, dates)
		if err != nil {
			return nil, err
		}
		row.IsCurrent = v.SK == latest[v.ID]
		row.LoadedAt = loadedAt
		rows = append(rows, *row)
	}

	summary := &Summary{Inserted: len(rows), Current: len(latest)}
	if len(rows) == 0 {
		return summary, nil
	}

	err = l.mart.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if !row.IsCurrent {
				continue
			}
			err := tx.Model(&models.MartProduct{}).
				Where("product_id = ? AND sk < ?", row.ProductID, row.SK).
				Update("is_current", false).Error
			if err != nil {
				return fmt.Errorf("retire old versions of product %d: %w", row.ProductID, err)
			}
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return nil, fmt.Errorf("write datamart: %w", err)
	}

	l.log.Info("datamart load committed", "inserted", summary.Inserted, "products", summary.Current)
	return summary, nil
}

func (l *Loader) denormalize(ctx context.Context, v models.WarehouseProduct, dates map[uint]*models.DimDate) (*models.MartProduct, error) {
	date, ok := dates[v.DateUpdate]
	if !ok {
		var err error
		date, err = l.warehouse.DateOf(ctx, v.DateUpdate)
		if err != nil {
			return nil, err
		}
		dates[v.DateUpdate] = date
	}

	images, err := l.warehouse.Images(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	specs, err := l.warehouse.Specifications(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	imagesJSON, err := json.Marshal(nonNil(images))
	if err != nil {
		return nil, err
	}
	specMap := make(map[string]string, len(specs))
	for _, s := range specs {
		specMap[s.Name] = s.Value
	}
	specsJSON, err := json.Marshal(specMap)
	if err != nil {
		return nil, err
	}

	return &models.MartProduct{
		ProductID:       v.ID,
		SK:              v.SK,
		ProductName:     v.ProductName,
		Price:           v.Price,
		DiscountedPrice: v.DiscountedPrice,
		DiscountPercent: v.DiscountPercent,
		ThumbImage:      v.ThumbImage,
		FullDate:        date.FullDate,
		DayName:         date.DayName,
		MonthYear:       date.MonthYear,
		Images:          datatypes.JSON(imagesJSON),
		Specifications:  datatypes.JSON(specsJSON),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CurrentProducts returns the current version of every product in the mart
func CurrentProducts(ctx context.Context, mart *gorm.DB, limit, offset int) ([]models.MartProduct, error) {
	var rows []models.MartProduct
	err := mart.WithContext(ctx).
		Where("is_current = ?", true).
		Order("product_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read datamart products: %w", err)
	}
	return rows, nil
}

// Documents converts mart rows into search documents. A row whose images or
// specifications cannot be decoded is still returned without that field, and
// the decode errors are joined into err.
func Documents(rows []models.MartProduct) (docs []search.Document, err error) {
	docs = make([]search.Document, 0, len(rows))
	var errs []error
	for _, r := range rows {
		doc := search.Document{
			ID:          r.ProductID,
			SK:          r.SK,
			ProductName: r.ProductName,
			Price:       r.Price.InexactFloat64(),
			UpdatedOn:   r.FullDate.Format("2006-01-02"),
		}
		if r.DiscountedPrice.Valid {
			v := r.DiscountedPrice.Decimal.InexactFloat64()
			doc.DiscountedPrice = &v
		}
		if r.DiscountPercent.Valid {
			v := r.DiscountPercent.Decimal.InexactFloat64()
			doc.DiscountPercent = &v
		}
		if r.ThumbImage != nil {
			doc.ThumbImage = *r.ThumbImage
		}
		if len(r.Images) > 0 {
			if err := json.Unmarshal(r.Images, &doc.Images); err != nil {
				doc.Images = nil
				errs = append(errs, fmt.Errorf("decode images of product %d sk %d: %w", r.ProductID, r.SK, err))
			}
		}
		if len(r.Specifications) > 0 {
			if err := json.Unmarshal(r.Specifications, &doc.Specifications); err != nil {
				doc.Specifications = nil
				errs = append(errs, fmt.Errorf("decode specifications of product %d sk %d: %w", r.ProductID, r.SK, err))
			}
		}
		docs = append(docs, doc)
	}
	return docs, errors.Join(errs...)
}

package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// Source yields the staged products of one batch in a stable order
type Source interface {
	StagedProducts(ctx context.Context) ([]models.StagedProduct, error)
}

// Summary counts the outcome of one load run
type Summary struct {
	Added     int
	Versioned int
	Unchanged int
	Images    int
	Specs     int
	DateID    uint
}

// Total is the number of products that received a new version row
func (s Summary) Total() int {
	return s.Added + s.Versioned
}

// Details is the text recorded in the control log for a successful run
func (s Summary) Details() string {
	return fmt.Sprintf("Load data from Staging to Warehouse: %d products have been added (%d new, %d new versions, %d unchanged).",
		s.Total(), s.Added, s.Versioned, s.Unchanged)
}

// Loader applies a staged batch to the warehouse product dimension
type Loader struct {
	db       *gorm.DB
	store    *Store
	detector *ChangeDetector
	dates    *DateResolver
	policy   ChildPolicy
	log      *logger.Logger
}

type Option func(*Loader)

// WithChildPolicy overrides ChildrenOnIdentityCreate
func WithChildPolicy(p ChildPolicy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithClock sets the clock used to resolve the date dimension
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.dates = NewDateResolver(now) }
}

func NewLoader(db *gorm.DB, log *logger.Logger, opts ...Option) *Loader {
	store := NewStore(db)
	l := &Loader{
		db:       db,
		store:    store,
		detector: NewChangeDetector(store),
		dates:    NewDateResolver(time.Now),
		policy:   ChildrenOnIdentityCreate,
		log:      log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the loader's warehouse store
func (l *Loader) Store() *Store {
	return l.store
}

// Load reads the batch from source and writes it in a single transaction.
// Any error, including cancellation of ctx, rolls the whole run back.
func (l *Loader) Load(ctx context.Context, source Source) (*Summary, error) {
	staged, err := source.StagedProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read staged products: %w", err)
	}

	summary := &Summary{}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dateID, err := l.dates.ResolveToday(tx)
		if err != nil {
			return err
		}
		summary.DateID = dateID

		for _, product := range staged {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.apply(tx, product, summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("warehouse load committed",
		"added", summary.Added,
		"versioned", summary.Versioned,
		"unchanged", summary.Unchanged,
		"date_id", summary.DateID,
	)
	return summary, nil
}

func (l *Loader) apply(tx *gorm.DB, product models.StagedProduct, summary *Summary) error {
	if strings.TrimSpace(product.ProductName) == "" {
		return fmt.Errorf("%w: staged row with price %s", ErrEmptyProductName, product.Price.String())
	}
	detection, err := l.detector.Detect(tx, product)
	if err != nil {
		return err
	}

	switch detection.Decision {
	case DecisionNew:
		id, err := l.store.NextIdentity(tx)
		if err != nil {
			return err
		}
		if err := l.store.InsertVersion(tx, newVersion(product, id, 1, summary.DateID)); err != nil {
			return err
		}
		images, specs, err := l.store.InsertChildren(tx, id, product.Images, product.Specifications)
		if err != nil {
			return err
		}
		summary.Added++
		summary.Images += images
		summary.Specs += specs
		l.log.Debug("product added", "product", product.ProductName, "id", id)

	case DecisionChanged:
		current := detection.Current
		next := current.SK + 1
		if err := l.store.InsertVersion(tx, newVersion(product, current.ID, next, summary.DateID)); err != nil {
			return err
		}
		if l.policy == ChildrenRefreshOnVersion {
			images, specs, err := l.store.ReplaceChildren(tx, current.ID, product.Images, product.Specifications)
			if err != nil {
				return err
			}
			summary.Images += images
			summary.Specs += specs
		}
		summary.Versioned++
		l.log.Debug("product versioned",
			"product", product.ProductName,
			"id", current.ID,
			"sk", next,
			"old_price", current.Price.String(),
			"new_price", product.Price.String(),
		)

	case DecisionUnchanged:
		summary.Unchanged++
	}
	return nil
}

func newVersion(p models.StagedProduct, id uint, sk int, dateID uint) *models.WarehouseProduct {
	return &models.WarehouseProduct{
		ID:              id,
		SK:              sk,
		ProductName:     p.ProductName,
		Price:           p.Price,
		DiscountedPrice: p.DiscountedPrice,
		DiscountPercent: p.DiscountPercent,
		ThumbImage:      p.ThumbImage,
		DateUpdate:      dateID,
	}
}

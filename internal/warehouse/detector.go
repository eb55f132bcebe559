package warehouse

import (
	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// Decision is the outcome of comparing a staged product with the warehouse
type Decision int

const (
	DecisionNew Decision = iota
	DecisionUnchanged
	DecisionChanged
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// Detection pairs a decision with the current version it was made against.
// Current is nil for DecisionNew.
type Detection struct {
	Decision Decision
	Current  *models.WarehouseProduct
}

// Detect classifies staged against the current warehouse version. Only the
// price takes part in the comparison.
func Detect(staged models.StagedProduct, current *models.WarehouseProduct) Decision {
	if current == nil {
		return DecisionNew
	}
	if staged.Price.Equal(current.Price) {
		return DecisionUnchanged
	}
	return DecisionChanged
}

// ChangeDetector looks up the current version of a staged product and
// classifies it.
type ChangeDetector struct {
	store *Store
}

func NewChangeDetector(store *Store) *ChangeDetector {
	return &ChangeDetector{store: store}
}

func (d *ChangeDetector) Detect(tx *gorm.DB, staged models.StagedProduct) (Detection, error) {
	current, err := d.store.CurrentVersion(tx, staged.ProductName)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Decision: Detect(staged, current), Current: current}, nil
}

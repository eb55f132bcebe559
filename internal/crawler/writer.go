package crawler

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/tranthanhvu011/DTWH/internal/staging"
)

// KnownProducts returns the product names already present in a products file
func KnownProducts(path string) (map[string]bool, error) {
	records, err := staging.ReadFile[staging.ProductRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.ProductName] = true
	}
	return known, nil
}

// WriteProducts appends the products to the three staging input files,
// writing a header only when a file is new or empty.
func WriteProducts(files staging.Files, products []*Product) error {
	if len(products) == 0 {
		return nil
	}

	var (
		productRows []staging.ProductRecord
		imageRows   []staging.ImageRecord
		specRows    []staging.SpecRecord
	)
	for _, p := range products {
		productRows = append(productRows, p.record())
		for _, img := range p.Images {
			imageRows = append(imageRows, staging.ImageRecord{ProductName: p.Name, ImageURL: img})
		}
		for _, s := range p.Specifications {
			specRows = append(specRows, staging.SpecRecord{ProductName: p.Name, SpecName: s.Name, SpecValue: s.Value})
		}
	}

	if err := appendCSV(files.Products, productRows); err != nil {
		return err
	}
	if err := appendCSV(files.Images, imageRows); err != nil {
		return err
	}
	return appendCSV(files.Specifications, specRows)
}

func (p *Product) record() staging.ProductRecord {
	r := staging.ProductRecord{ProductName: p.Name, ThumbImage: p.ThumbImage}
	if p.Price.Valid {
		r.Price = p.Price.Decimal.String()
	}
	if p.DiscountedPrice.Valid {
		r.DiscountedPrice = p.DiscountedPrice.Decimal.String()
	}
	if p.DiscountPercent.Valid {
		r.DiscountPercent = p.DiscountPercent.Decimal.String()
	}
	return r
}

func appendCSV[T any](path string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = info.Size() == 0
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

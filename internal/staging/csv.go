package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/shopspring/decimal"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

// ProductRecord is one line of products.csv
type ProductRecord struct {
	ProductName     string `csv:"product_name"`
	Price           string `csv:"price"`
	DiscountedPrice string `csv:"discounted_price,omitempty"`
	DiscountPercent string `csv:"discount_percent,omitempty"`
	ThumbImage      string `csv:"thumb_image,omitempty"`
}

// ImageRecord is one line of images.csv
type ImageRecord struct {
	ProductName string `csv:"product_name"`
	ImageURL    string `csv:"image_url"`
}

// SpecRecord is one line of specifications.csv
type SpecRecord struct {
	ProductName string `csv:"product_name"`
	SpecName    string `csv:"spec_name"`
	SpecValue   string `csv:"spec_value"`
}

// ReadFile decodes every record of a CSV file with a header line. A missing
// file yields no records.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read[T](f)
}

// Read decodes every record from r
func Read[T any](r io.Reader) ([]T, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []T
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	return records, nil
}

// ToStagingProduct validates a CSV record
func (r ProductRecord) ToStagingProduct() (models.StagingProduct, error) {
	name := strings.TrimSpace(r.ProductName)
	if name == "" {
		return models.StagingProduct{}, fmt.Errorf("product_name is empty")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return models.StagingProduct{}, fmt.Errorf("product %q: invalid price %q", name, r.Price)
	}
	discounted, err := parseOptional(r.DiscountedPrice)
	if err != nil {
		return models.StagingProduct{}, fmt.Errorf("product %q: invalid discounted_price %q", name, r.DiscountedPrice)
	}
	percent, err := parseOptional(r.DiscountPercent)
	if err != nil {
		return models.StagingProduct{}, fmt.Errorf("product %q: invalid discount_percent %q", name, r.DiscountPercent)
	}

	p := models.StagingProduct{
		ProductName:     name,
		Price:           price,
		DiscountedPrice: discounted,
		DiscountPercent: percent,
	}
	if thumb := strings.TrimSpace(r.ThumbImage); thumb != "" {
		p.ThumbImage = &thumb
	}
	return p, nil
}

func parseOptional(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

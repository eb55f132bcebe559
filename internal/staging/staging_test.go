package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tranthanhvu011/DTWH/internal/archive"
	"github.com/tranthanhvu011/DTWH/internal/control"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/testutil"
	"gorm.io/gorm"
)

const productsCSV = `product_name,price,discounted_price,discount_percent,thumb_image
Laptop A,999.00,1099.00,9,a.jpg
Laptop B,500,,,
`

const imagesCSV = `product_name,image_url
Laptop A,https://img/a1.jpg
Laptop A,https://img/a2.jpg
Laptop B,https://img/b1.jpg
`

const specsCSV = `product_name,spec_name,spec_value
Laptop A,CPU,i7
Laptop A,RAM,16GB
Laptop B,CPU,i5
`

type fixture struct {
	dir     string
	files   Files
	db      *gorm.DB
	control *control.Store
	loader  *Loader
	history string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		files:   FilesIn(dir, "products.csv", "images.csv", "specifications.csv"),
		db:      testutil.DB(t, database.StagingMigrations),
		history: filepath.Join(dir, "history"),
	}
	f.control = control.NewStore(testutil.DB(t, database.ControlMigrations), 1, models.ProcessStaging, clock.Now)
	f.loader = NewLoader(f.db, f.control, archive.NewLocalArchiver(f.history, clock.Now), f.files, testutil.Logger(t))
	return f
}

func (f *fixture) write(t *testing.T, products, images, specs string) {
	t.Helper()
	for path, body := range map[string]string{f.files.Products: products, f.files.Images: images, f.files.Specifications: specs} {
		if body == "" {
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func (f *fixture) actions(t *testing.T) []models.LogEntry {
	t.Helper()
	entries, err := f.control.Recent(context.Background(), 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	// oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func TestReadProducts(t *testing.T) {
	records, err := Read[ProductRecord](strings.NewReader(productsCSV))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].ProductName != "Laptop A" || records[0].ThumbImage != "a.jpg" {
		t.Fatalf("record = %+v", records[0])
	}
	if records[1].DiscountedPrice != "" {
		t.Fatalf("empty column should decode as empty string")
	}
}

func TestReadEmptyInput(t *testing.T) {
	records, err := Read[ImageRecord](strings.NewReader(""))
	if err != nil || len(records) != 0 {
		t.Fatalf("records=%v err=%v", records, err)
	}
}

func TestToStagingProduct(t *testing.T) {
	p, err := ProductRecord{ProductName: " Laptop A ", Price: "999.50", DiscountPercent: "10"}.ToStagingProduct()
	if err != nil {
		t.Fatalf("ToStagingProduct: %v", err)
	}
	if p.ProductName != "Laptop A" || !p.Price.Equal(decimal.RequireFromString("999.5")) {
		t.Fatalf("product = %+v", p)
	}
	if p.DiscountedPrice.Valid || !p.DiscountPercent.Valid {
		t.Fatalf("optional fields = %+v %+v", p.DiscountedPrice, p.DiscountPercent)
	}
	if p.ThumbImage != nil {
		t.Fatalf("empty thumb should be nil")
	}

	for _, bad := range []ProductRecord{
		{ProductName: "", Price: "1"},
		{ProductName: "x", Price: "abc"},
		{ProductName: "x", Price: "1", DiscountedPrice: "n/a"},
	} {
		if _, err := bad.ToStagingProduct(); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}

func TestRunLoadsAndArchives(t *testing.T) {
	f := newFixture(t)
	f.write(t, productsCSV, imagesCSV, specsCSV)

	result, err := f.loader.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != models.StatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Products.Inserted != 2 || result.Images.Inserted != 3 || result.Specifications.Inserted != 3 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Archived) != 3 {
		t.Fatalf("archived = %v", result.Archived)
	}
	if _, err := os.Stat(filepath.Join(f.history, "products_20261019.csv")); err != nil {
		t.Fatalf("archived products file missing: %v", err)
	}

	entries := f.actions(t)
	want := []string{models.ActionStartStaging, models.ActionStagingSummary, models.ActionEndStaging}
	if len(entries) != len(want) {
		t.Fatalf("log rows = %d, want %d", len(entries), len(want))
	}
	for i, action := range want {
		if entries[i].Action != action {
			t.Fatalf("log[%d] = %s, want %s", i, entries[i].Action, action)
		}
	}
	if entries[2].Status != models.StatusCompleted {
		t.Fatalf("End Staging status = %s", entries[2].Status)
	}
}

func TestRunUpsertsOnSecondPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, productsCSV, imagesCSV, specsCSV)
	if _, err := f.loader.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	f.write(t, "product_name,price,discounted_price,discount_percent,thumb_image\nLaptop A,899.00,1099.00,9,a.jpg\nLaptop B,500,,,\n",
		"product_name,image_url\nLaptop A,https://img/a1.jpg\n",
		"product_name,spec_name,spec_value\nLaptop A,RAM,32GB\n")
	result, err := f.loader.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.Products.Updated != 1 || result.Products.Unchanged != 1 {
		t.Fatalf("products = %+v", result.Products)
	}
	if result.Images.Unchanged != 1 || result.Specifications.Updated != 1 {
		t.Fatalf("images = %+v specs = %+v", result.Images, result.Specifications)
	}

	var a models.StagingProduct
	if err := f.db.Where("product_name = ?", "Laptop A").First(&a).Error; err != nil {
		t.Fatalf("First: %v", err)
	}
	if !a.Price.Equal(decimal.RequireFromString("899")) {
		t.Fatalf("price = %s", a.Price)
	}
}

func TestRunIsolatesBadRows(t *testing.T) {
	f := newFixture(t)
	f.write(t,
		"product_name,price,discounted_price,discount_percent,thumb_image\nLaptop A,999,,,\nBroken,not-a-price,,,\n",
		"product_name,image_url\nLaptop A,https://img/a1.jpg\nGhost,https://img/g.jpg\n",
		"")

	result, err := f.loader.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != models.StatusPartialSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Products.Inserted != 1 || result.Products.Errors != 1 {
		t.Fatalf("products = %+v", result.Products)
	}
	if result.Images.Inserted != 1 || result.Images.Errors != 1 {
		t.Fatalf("images = %+v", result.Images)
	}

	var n int64
	f.db.Model(&models.StagingProduct{}).Count(&n)
	if n != 1 {
		t.Fatalf("staging products = %d, want 1", n)
	}

	entries := f.actions(t)
	last := entries[len(entries)-1]
	if last.Action != models.ActionEndStaging || last.Status != models.StatusCompleted {
		t.Fatalf("last log = %+v", last)
	}
}

func TestRunWithoutInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.loader.Run(context.Background())
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	entries := f.actions(t)
	if len(entries) != 1 || entries[0].Status != models.StatusFailed {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRunCancelledWritesFailed(t *testing.T) {
	f := newFixture(t)
	f.write(t, productsCSV, imagesCSV, specsCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.loader.Run(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	entries := f.actions(t)
	last := entries[len(entries)-1]
	if last.Action != models.ActionEndStaging || last.Status != models.StatusFailed {
		t.Fatalf("last log = %+v", last)
	}
	if _, err := os.Stat(f.files.Products); err != nil {
		t.Fatalf("input must not be archived after a failed run")
	}
}

func TestStagedProductsGroupsChildren(t *testing.T) {
	f := newFixture(t)
	f.write(t, productsCSV, imagesCSV, specsCSV)
	if _, err := f.loader.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	staged, err := NewStore(f.db).StagedProducts(context.Background())
	if err != nil {
		t.Fatalf("StagedProducts: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("staged = %d", len(staged))
	}
	a := staged[0]
	if a.ProductName != "Laptop A" || len(a.Images) != 2 || len(a.Specifications) != 2 {
		t.Fatalf("Laptop A = %+v", a)
	}
	if !a.DiscountedPrice.Valid || !a.DiscountedPrice.Decimal.Equal(decimal.RequireFromString("1099")) {
		t.Fatalf("discounted price = %+v", a.DiscountedPrice)
	}
	if staged[1].ThumbImage != nil {
		t.Fatalf("Laptop B thumb should be nil")
	}
}

func TestStoreRejectsMissingKeys(t *testing.T) {
	db := testutil.DB(t, database.StagingMigrations)
	store := NewStore(db)

	if _, _, err := store.UpsertProduct(db, models.StagingProduct{ProductName: "Laptop A", Price: decimal.NewFromInt(999)}); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if _, _, err := store.UpsertProduct(db, models.StagingProduct{ProductName: " ", Price: decimal.NewFromInt(5)}); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("UpsertProduct err = %v, want ErrMissingKey", err)
	}
	if _, err := store.AddImage(db, 0, "https://img/x.jpg"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("AddImage err = %v, want ErrMissingKey", err)
	}
	if _, err := store.UpsertSpecification(db, 1, "", "i7"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("UpsertSpecification err = %v, want ErrMissingKey", err)
	}

	var products []models.StagingProduct
	if err := db.Find(&products).Error; err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(products) != 1 || !products[0].Price.Equal(decimal.NewFromInt(999)) {
		t.Fatalf("products = %+v", products)
	}
}

package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tranthanhvu011/DTWH/internal/archive"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"gorm.io/gorm"
)

// ErrNoInput is returned when the products file is missing
var ErrNoInput = errors.New("no input files")

// LogWriter appends control log rows
type LogWriter interface {
	Write(ctx context.Context, action, details, status string) error
}

// Files locates the three CSV inputs
type Files struct {
	Products       string
	Images         string
	Specifications string
}

// FilesIn returns the inputs with the given names inside dir
func FilesIn(dir, products, images, specs string) Files {
	return Files{
		Products:       filepath.Join(dir, products),
		Images:         filepath.Join(dir, images),
		Specifications: filepath.Join(dir, specs),
	}
}

// Counts tallies row outcomes for one input file
type Counts struct {
	Inserted  int
	Updated   int
	Unchanged int
	Errors    int
}

func (c *Counts) add(o Outcome) {
	switch o {
	case OutcomeInserted:
		c.Inserted++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeUnchanged:
		c.Unchanged++
	}
}

func (c Counts) String() string {
	return fmt.Sprintf("inserted=%d updated=%d unchanged=%d errors=%d", c.Inserted, c.Updated, c.Unchanged, c.Errors)
}

// Result is the outcome of one staging run
type Result struct {
	Products       Counts
	Images         Counts
	Specifications Counts
	Status         string
	Archived       []string
}

// Errors is the number of rejected rows over all files
func (r *Result) Errors() int {
	return r.Products.Errors + r.Images.Errors + r.Specifications.Errors
}

func (r *Result) details() string {
	return fmt.Sprintf("Products: %s; Images: %s; Specifications: %s", r.Products, r.Images, r.Specifications)
}

// Loader moves the crawler's CSV files into the staging tables
type Loader struct {
	db       *gorm.DB
	store    *Store
	control  LogWriter
	archiver archive.Archiver
	files    Files
	log      *logger.Logger
}

func NewLoader(db *gorm.DB, control LogWriter, archiver archive.Archiver, files Files, log *logger.Logger) *Loader {
	return &Loader{
		db:       db,
		store:    NewStore(db),
		control:  control,
		archiver: archiver,
		files:    files,
		log:      log,
	}
}

// Run loads every CSV row inside one transaction. A row that fails is rolled
// back to its savepoint and counted; the rest of the batch continues. "End
// Staging" is always written, as Completed or Failed.
func (l *Loader) Run(ctx context.Context) (result *Result, err error) {
	logCtx := context.WithoutCancel(ctx)

	if _, statErr := os.Stat(l.files.Products); statErr != nil {
		l.writeLog(logCtx, models.ActionEndStaging, fmt.Sprintf("Input file not found: %s", l.files.Products), models.StatusFailed)
		return nil, fmt.Errorf("%w: %s", ErrNoInput, l.files.Products)
	}

	l.writeLog(logCtx, models.ActionStartStaging, "Staging process started", models.StatusInProgress)
	defer func() {
		if err != nil {
			l.writeLog(logCtx, models.ActionEndStaging, fmt.Sprintf("Staging failed: %v", err), models.StatusFailed)
			return
		}
		l.writeLog(logCtx, models.ActionEndStaging, "Staging process completed", models.StatusCompleted)
	}()

	products, err := ReadFile[ProductRecord](l.files.Products)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.files.Products, err)
	}
	images, err := ReadFile[ImageRecord](l.files.Images)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.files.Images, err)
	}
	specs, err := ReadFile[SpecRecord](l.files.Specifications)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.files.Specifications, err)
	}

	result = &Result{}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range products {
			if err := ctx.Err(); err != nil {
				return err
			}
			var outcome Outcome
			rowErr := tx.Transaction(func(sp *gorm.DB) error {
				p, err := rec.ToStagingProduct()
				if err != nil {
					return err
				}
				_, outcome, err = l.store.UpsertProduct(sp, p)
				return err
			})
			if rowErr != nil {
				result.Products.Errors++
				l.log.Warn("staging product row rejected", "product", rec.ProductName, "error", rowErr)
				continue
			}
			result.Products.add(outcome)
		}

		ids, err := l.store.ProductIDs(tx)
		if err != nil {
			return err
		}

		for _, rec := range images {
			if err := ctx.Err(); err != nil {
				return err
			}
			var outcome Outcome
			rowErr := tx.Transaction(func(sp *gorm.DB) error {
				id, ok := ids[strings.TrimSpace(rec.ProductName)]
				if !ok {
					return fmt.Errorf("unknown product %q", rec.ProductName)
				}
				url := strings.TrimSpace(rec.ImageURL)
				if url == "" {
					return fmt.Errorf("empty image_url")
				}
				var err error
				outcome, err = l.store.AddImage(sp, id, url)
				return err
			})
			if rowErr != nil {
				result.Images.Errors++
				l.log.Warn("staging image row rejected", "product", rec.ProductName, "error", rowErr)
				continue
			}
			result.Images.add(outcome)
		}

		for _, rec := range specs {
			if err := ctx.Err(); err != nil {
				return err
			}
			var outcome Outcome
			rowErr := tx.Transaction(func(sp *gorm.DB) error {
				id, ok := ids[strings.TrimSpace(rec.ProductName)]
				if !ok {
					return fmt.Errorf("unknown product %q", rec.ProductName)
				}
				name := strings.TrimSpace(rec.SpecName)
				if name == "" {
					return fmt.Errorf("empty spec_name")
				}
				var err error
				outcome, err = l.store.UpsertSpecification(sp, id, name, strings.TrimSpace(rec.SpecValue))
				return err
			})
			if rowErr != nil {
				result.Specifications.Errors++
				l.log.Warn("staging specification row rejected", "product", rec.ProductName, "error", rowErr)
				continue
			}
			result.Specifications.add(outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Status = models.StatusCompleted
	if result.Errors() > 0 {
		result.Status = models.StatusPartialSuccess
	}
	l.writeLog(logCtx, models.ActionStagingSummary, result.details(), result.Status)

	for _, path := range []string{l.files.Products, l.files.Images, l.files.Specifications} {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		dest, archErr := l.archiver.Archive(ctx, path)
		if archErr != nil {
			l.log.Warn("failed to archive input file", "file", path, "error", archErr)
			continue
		}
		result.Archived = append(result.Archived, dest)
	}

	l.log.Info("staging completed",
		"status", result.Status,
		"products", result.Products.String(),
		"images", result.Images.String(),
		"specifications", result.Specifications.String(),
	)
	return result, nil
}

func (l *Loader) writeLog(ctx context.Context, action, details, status string) {
	if err := l.control.Write(ctx, action, details, status); err != nil {
		l.log.Error("failed to write control log", "action", action, "error", err)
	}
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/staging"
)

const stageName = "crawl"

// LogWriter appends control log rows
type LogWriter interface {
	Write(ctx context.Context, action, details, status string) error
}

// Result summarizes one crawl
type Result struct {
	Links   int
	New     int
	Skipped int
	Failed  int
}

func (r *Result) details() string {
	return fmt.Sprintf("Crawled %d product links: %d new, %d already known, %d failed", r.Links, r.New, r.Skipped, r.Failed)
}

// Crawler scrapes the category page and every product it links to, then
// appends unseen products to the staging input files.
type Crawler struct {
	cfg     config.CrawlerConfig
	fetcher Fetcher
	files   staging.Files
	control LogWriter
	metrics metrics.Recorder
	log     *logger.Logger
}

func New(cfg config.CrawlerConfig, fetcher Fetcher, files staging.Files, control LogWriter, rec metrics.Recorder, log *logger.Logger) *Crawler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Crawler{cfg: cfg, fetcher: fetcher, files: files, control: control, metrics: rec, log: log}
}

// NewFetcher builds the fetcher selected by the crawler settings
func NewFetcher(cfg config.CrawlerConfig, log *logger.Logger) Fetcher {
	pacer := NewPacer(cfg.GetRequestDelay(), cfg.GetRequestDelay()/2)
	if cfg.UseBrowser {
		return NewBrowserFetcher(cfg.ChromePath, cfg.UserAgent, cfg.GetTimeout(), pacer, log)
	}
	breaker := NewCircuitBreaker(cfg.MaxConsecutiveFailures, cfg.GetCircuitCooldown())
	return NewHTTPFetcher(cfg.GetTimeout(), cfg.UserAgent, breaker, pacer, log)
}

// Run always ends with an "End Crawl" row: Completed, or Failed when the
// listing could not be read, the context was cancelled or the files could not
// be written.
func (c *Crawler) Run(ctx context.Context) (result *Result, err error) {
	started := time.Now()
	logCtx := context.WithoutCancel(ctx)
	result = &Result{}

	c.write(logCtx, models.ActionStartCrawl, fmt.Sprintf("Start crawl at %s", started.Format("2006-01-02 15:04:05")), models.StatusInProgress)
	defer func() {
		status := models.StatusCompleted
		details := result.details()
		if err != nil {
			status = models.StatusFailed
			details = fmt.Sprintf("%s; error: %v", details, err)
		}
		c.write(logCtx, models.ActionEndCrawl, details, status)
		c.metrics.StageFinished(stageName, status, started)
		c.metrics.ProductsLoaded(stageName, "new", result.New)
	}()

	known, err := KnownProducts(c.files.Products)
	if err != nil {
		return result, err
	}

	listing, err := c.fetcher.Fetch(ctx, c.cfg.ListingURL)
	if err != nil {
		return result, fmt.Errorf("fetch listing: %w", err)
	}
	links, err := ParseListing(listing, c.cfg.ListingURL, c.cfg.Selectors.ListingLink)
	if err != nil {
		return result, err
	}
	if c.cfg.MaxProducts > 0 && len(links) > c.cfg.MaxProducts {
		links = links[:c.cfg.MaxProducts]
	}
	result.Links = len(links)
	c.log.Info("crawl listing parsed", "url", c.cfg.ListingURL, "links", len(links))

	var fresh []*Product
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			// keep what was scraped before the interruption
			if werr := WriteProducts(c.files, fresh); werr != nil {
				c.log.Error("failed to write partial crawl", "error", werr)
			}
			return result, err
		}

		html, err := c.fetcher.Fetch(ctx, link)
		if err != nil {
			result.Failed++
			c.log.Warn("failed to fetch product", "url", link, "error", err)
			if errors.Is(err, ErrCircuitOpen) {
				break
			}
			continue
		}
		product, err := ParseProduct(html, link, c.cfg.Selectors)
		if err != nil {
			result.Failed++
			c.log.Warn("failed to parse product", "url", link, "error", err)
			continue
		}
		if known[product.Name] {
			result.Skipped++
			continue
		}
		known[product.Name] = true
		fresh = append(fresh, product)
		result.New++
	}

	if err := WriteProducts(c.files, fresh); err != nil {
		return result, err
	}
	c.log.Info("crawl finished", "new", result.New, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (c *Crawler) write(ctx context.Context, action, details, status string) {
	if c.control == nil {
		return
	}
	if err := c.control.Write(ctx, action, details, status); err != nil {
		c.log.Error("failed to write control log", "action", action, "error", err)
	}
}

package crawler

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/tranthanhvu011/DTWH/internal/logger"
)

// ErrCircuitOpen is returned while the circuit breaker refuses requests
var ErrCircuitOpen = errors.New("circuit breaker open")

// Fetcher returns the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP client
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	breaker   *CircuitBreaker
	pacer     *Pacer
	log       *logger.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, breaker *CircuitBreaker, pacer *Pacer, log *logger.Logger) *HTTPFetcher {
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Warn("failed to create cookie jar", "error", err)
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout, Jar: jar},
		userAgent: userAgent,
		breaker:   breaker,
		pacer:     pacer,
		log:       log,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.breaker != nil && !f.breaker.CanProceed() {
		_, failures, total := f.breaker.Status()
		return "", fmt.Errorf("%w (%d/%d failures)", ErrCircuitOpen, failures, total)
	}
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	applyBrowserHeaders(req, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure(0)
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.recordFailure(resp.StatusCode)
		return "", fmt.Errorf("failed to fetch %s: status code %d", url, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			f.recordFailure(0)
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		f.recordFailure(0)
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}
	return string(body), nil
}

func (f *HTTPFetcher) recordFailure(status int) {
	if f.breaker != nil {
		f.breaker.RecordFailure(status)
	}
	f.log.Debug("fetch failed", "status", status)
}

func applyBrowserHeaders(req *http.Request, userAgent string) {
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// BrowserFetcher renders pages in headless Chrome so script-built markup is
// present in the returned HTML.
type BrowserFetcher struct {
	execPath  string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	pacer     *Pacer
	log       *logger.Logger
}

func NewBrowserFetcher(execPath, userAgent string, timeout time.Duration, pacer *Pacer, log *logger.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		execPath:  execPath,
		userAgent: userAgent,
		timeout:   timeout,
		settle:    3 * time.Second,
		pacer:     pacer,
		log:       log,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx); err != nil {
			return "", err
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if f.execPath != "" {
		opts = append(opts, chromedp.ExecPath(f.execPath))
	}
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(f.settle),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp error: %w", err)
	}
	f.log.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}

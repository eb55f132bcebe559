package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

// Product is one scraped product page
type Product struct {
	Name            string
	Price           decimal.NullDecimal
	DiscountedPrice decimal.NullDecimal
	DiscountPercent decimal.NullDecimal
	ThumbImage      string
	Images          []string
	Specifications  []models.SpecPair
}

// ParseListing returns the unique absolute product links of a category page
func ParseListing(html, pageURL, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link := resolve(base, href)
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links, nil
}

// ParseProduct extracts a product from its detail page. A page without a
// product name is an error; every other field is optional.
func ParseProduct(html, pageURL string, sel config.SelectorsConfig) (*Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	base, _ := url.Parse(pageURL)

	name := text(doc.Find(sel.Name))
	if name == "" {
		return nil, fmt.Errorf("no product name on %s", pageURL)
	}

	p := &Product{
		Name:            name,
		Price:           CleanPrice(text(doc.Find(sel.Price))),
		DiscountedPrice: CleanPrice(text(doc.Find(sel.DiscountedPrice))),
		DiscountPercent: CleanDiscount(text(doc.Find(sel.DiscountPercent))),
	}
	if src, ok := doc.Find(sel.Thumb).First().Attr("src"); ok && src != "" {
		p.ThumbImage = resolve(base, src)
	}

	doc.Find(sel.SpecRows).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return
		}
		p.Specifications = append(p.Specifications, models.SpecPair{
			Name:  text(cells.Eq(0)),
			Value: text(cells.Eq(1)),
		})
	})

	doc.Find(sel.GalleryLinks).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			p.Images = append(p.Images, resolve(base, href))
		}
	})
	return p, nil
}

// CleanPrice parses a shop price such as "25.990.000₫". Dots group thousands
// and a comma marks decimals.
func CleanPrice(s string) decimal.NullDecimal {
	s = strings.NewReplacer("₫", "", ".", "", ",", ".", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// CleanDiscount parses a percentage such as "-12%"
func CleanDiscount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(strings.NewReplacer("%", "", "-", "").Replace(s))
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

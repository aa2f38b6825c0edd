// Package scrape collects product cards from the shop's category page.
//
// The selectors target inet.se's game category listing. They live in
// one place so a site redesign is a one-file fix.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// MaxProducts caps how many cards one scrape collects. The seeder
// pushes every product through an LLM call, so the cap also bounds
// quota usage.
const MaxProducts = 20

// Product is one scraped listing before LLM enrichment.
type Product struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ProductURL  string  `json:"productUrl"`
	ImageURL    string  `json:"imageUrl"`
}

// Scraper fetches product listings from a category page.
type Scraper struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Scraper for the given category URL.
func New(url string, logger *slog.Logger) (*Scraper, error) {
	if url == "" {
		return nil, fmt.Errorf("scrape URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{url: url, timeout: 30 * time.Second, logger: logger}, nil
}

// Scrape visits the category page and returns up to MaxProducts
// listings. Cards missing a name are dropped; missing numbers parse as
// zero so a partially rendered card still yields a product.
func (s *Scraper) Scrape(ctx context.Context) ([]Product, error) {
	c := colly.NewCollector()
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var products []Product
	c.OnHTML(`li[data-test-id^="search_product_"]`, func(e *colly.HTMLElement) {
		if len(products) >= MaxProducts {
			return
		}

		name := strings.TrimSpace(e.ChildText("h3"))
		if name == "" {
			s.logger.Warn("skipping card without a name", "url", e.Request.URL.String())
			return
		}

		products = append(products, Product{
			Name:        name,
			Description: strings.TrimSpace(e.ChildText("p.pjvw5xb")),
			Price:       float64(digits(e.ChildText("span[data-test-is-discounted-price]"))),
			Stock:       digits(e.ChildText("div.s1g68ibl span")),
			ProductURL:  e.Request.AbsoluteURL(e.ChildAttr("a", "href")),
			ImageURL:    e.Request.AbsoluteURL(e.ChildAttr("img", "src")),
		})
	})

	var visitErr error
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(s.url); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", s.url, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scrape canceled: %w", err)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("scraping %s: %w", s.url, visitErr)
	}

	s.logger.Info("scrape complete", "url", s.url, "products", len(products))
	return products, nil
}

// digits extracts the integer hidden in price and stock labels such as
// "399 kr" or "50+ i butik". Non-digits are stripped first.
func digits(text string) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

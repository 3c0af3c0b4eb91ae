package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
	"golang.org/x/time/rate"
)

type FetcherConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second
	UserAgent string
}

// Fetcher retrieves a single page and extracts its main text content.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.UserAgent == "" {
		config.UserAgent = "ragd/1.0"
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Fetcher {
	return NewWithConfig(FetcherConfig{})
}

// Fetch downloads the page at url and returns its cleaned text. The fetch
// is bounded by the configured timeout; an unreachable page, a non-200
// response, or a page with no usable text all fail.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (models.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", errs.ErrFetch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", errs.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", errs.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("%w: status %d for %s", errs.ErrFetch, resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", errs.ErrExtraction, err)
	}

	content := f.extractMainContent(doc)
	if content == "" {
		return models.Document{}, fmt.Errorf("%w: %s", errs.ErrEmptyContent, urlStr)
	}

	return models.Document{
		URL:     urlStr,
		Title:   strings.TrimSpace(doc.Find("title").Text()),
		Content: content,
	}, nil
}

func (f *Fetcher) extractMainContent(doc *goquery.Document) string {
	// Boilerplate never helps retrieval
	doc.Find("script, style, nav, header, footer, aside").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

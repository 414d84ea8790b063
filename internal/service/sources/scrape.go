package sources

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	pkghttp "MarketPull/pkg/http"
	"MarketPull/pkg/util"
)

// Page is one scrapeable quote page: its URL and a pattern whose first
// capture group is the quoted value.
type Page struct {
	URL     string
	Pattern string
}

// ScrapeAdapter is the last-resort web-scrape parser. It yields a single
// point stamped with the current local time; no trailing history.
type ScrapeAdapter struct {
	client *pkghttp.Client
	pages  map[string]compiledPage
}

type compiledPage struct {
	url string
	re  *regexp.Regexp
}

// NewScrapeAdapter compiles the configured page patterns. Pages with invalid
// patterns are rejected up front rather than failing mid-run.
func NewScrapeAdapter(client *pkghttp.Client, pages map[string]Page) (*ScrapeAdapter, error) {
	compiled := make(map[string]compiledPage, len(pages))
	for sym, p := range pages {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("scrape page %s: %w", sym, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("scrape page %s: pattern needs a capture group", sym)
		}
		compiled[sym] = compiledPage{url: p.URL, re: re}
	}
	return &ScrapeAdapter{client: client, pages: compiled}, nil
}

func (a *ScrapeAdapter) Name() string { return "scrape" }

func (a *ScrapeAdapter) Attempt(ctx context.Context, req catalog.Request) (models.Series, error) {
	sym, err := symbolFor(req, a.Name())
	if err != nil {
		return nil, err
	}
	page, ok := a.pages[sym]
	if !ok {
		return nil, fmt.Errorf("%w: no page for %s", ErrUnavailable, sym)
	}

	var body []byte
	err = a.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    page.url,
	}, &body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	m := page.re.FindSubmatch(body)
	if m == nil || len(m) < 2 {
		return nil, fmt.Errorf("%w: pattern not found", ErrMalformedPayload)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(string(m[1]), ",", ""), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return models.Series{{Time: util.Now(), Value: v}}, nil
}

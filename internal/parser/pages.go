package parser

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
)

// FetchFunc retrieves raw markup for a URL. It is supplied by the retrieval
// collaborator; the parser holds no connection or retry state.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// deposit entries aren't real listings, they are a payment vehicle for
// reservations and would pollute change detection
const depositEntryMark = "예약금결제"

// WalkPages scrapes up to maxPages pages of one category listing, calling the
// single-page parser once per page and concatenating results. The walk stops
// early on a fetch failure, a layout change or an empty page. Skipped-row
// counts are accumulated into the returned result.
func WalkPages(ctx context.Context, fetch FetchFunc, cat CatalogPager, category string, maxPages int) ListResult {
	total := ListResult{}
	for page := 1; page <= maxPages; page++ {
		pageURL, err := cat.PageURL(category, page)
		if err != nil {
			slog.WarnContext(ctx, "bad category path", "catalog", cat.Catalog.Name, "category", category, "err", err)
			break
		}

		markup, err := fetch(ctx, pageURL)
		if err != nil {
			slog.WarnContext(ctx, "listing fetch failed",
				"catalog", cat.Catalog.Name, "category", category, "page", page, "err", err)
			break
		}

		res, err := ParseListing(ctx, cat.Catalog, markup, category)
		if err != nil {
			slog.WarnContext(ctx, "listing parse failed",
				"catalog", cat.Catalog.Name, "category", category, "page", page, "err", err)
			break
		}
		if res.LayoutChanged {
			slog.ErrorContext(ctx, "listing layout unrecognizable, possible shop redesign",
				"catalog", cat.Catalog.Name, "category", category, "page", page)
			total.LayoutChanged = true
			break
		}

		total.Skipped += res.Skipped
		kept := 0
		for _, item := range res.Items {
			if strings.Contains(item.Name, depositEntryMark) {
				continue
			}
			total.Items = append(total.Items, item)
			kept++
		}
		slog.InfoContext(ctx, "parsed listing page",
			"catalog", cat.Catalog.Name, "category", category, "page", page,
			"items", kept, "skipped", res.Skipped)

		if len(res.Items) == 0 {
			break
		}
	}
	return total
}

// CatalogPager builds per-page listing URLs for one catalog.
type CatalogPager struct {
	Catalog catalog.Catalog
}

// PageURL resolves a category path against the catalog base URL with the
// page query parameter set.
func (p CatalogPager) PageURL(category string, page int) (string, error) {
	path, ok := p.Catalog.Categories[category]
	if !ok {
		path = category
	}

	base, err := url.Parse(p.Catalog.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	full := base.ResolveReference(ref)

	query := full.Query()
	query.Set("page", strconv.Itoa(page))
	full.RawQuery = query.Encode()
	return full.String(), nil
}

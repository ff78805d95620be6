// Package parser turns fetched Cafe24 listing and detail markup into
// candidate product records. One generic algorithm handles every monitored
// shop, parameterized by the catalog's rule table.
package parser

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("figure-scrapper/parser")

var (
	anchorBoxRe  = regexp.MustCompile(`^anchorBoxId_(\d+)$`)
	compareRe    = regexp.MustCompile(`^xECPCNO_(\d+)$`)
	slugURLRe    = regexp.MustCompile(`/product/[^/]+/(\d+)/`)
	deadlineRe   = regexp.MustCompile(`예약\s*마감일\s*[:：]\s*(.+)`)
	currencyMark = "원"
)

// ParseListing extracts candidate products from one listing page. Rows
// missing any required field (id, name, price, url) are skipped and counted;
// an unrecognizable listing container yields zero items with LayoutChanged
// set.
func ParseListing(ctx context.Context, cat catalog.Catalog, markup []byte, category string) (ListResult, error) {
	_, span := tracer.Start(ctx, "ParseListing", trace.WithAttributes(
		attribute.String("catalog", cat.Name),
		attribute.String("category", category),
	))
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return ListResult{}, err
	}

	base, err := url.Parse(cat.BaseURL)
	if err != nil {
		return ListResult{}, err
	}

	root := doc.Selection
	if cat.Rules.ContainerSelector != "" {
		container := doc.Find(cat.Rules.ContainerSelector)
		if container.Length() == 0 {
			span.AddEvent("listing container missing")
			return ListResult{LayoutChanged: true}, nil
		}
		root = container
	}

	var rows *goquery.Selection
	for _, sel := range cat.Rules.ItemSelectors {
		rows = root.Find(sel)
		if rows.Length() > 0 {
			break
		}
	}
	if rows == nil || rows.Length() == 0 {
		span.AddEvent("no listing rows matched")
		// An exhausted category still renders its empty product list; only
		// the list itself going missing suggests a redesign.
		layoutChanged := cat.Rules.ContainerSelector == "" && doc.Find("ul.prdList").Length() == 0
		return ListResult{LayoutChanged: layoutChanged}, nil
	}

	result := ListResult{}
	rows.Each(func(_ int, row *goquery.Selection) {
		item, ok := parseRow(cat, base, row, category)
		if !ok {
			result.Skipped++
			return
		}
		result.Items = append(result.Items, item)
	})

	span.SetAttributes(
		attribute.Int("items", len(result.Items)),
		attribute.Int("skipped", result.Skipped),
	)
	return result, nil
}

func parseRow(cat catalog.Catalog, base *url.URL, row *goquery.Selection, category string) (Candidate, bool) {
	rules := cat.Rules

	href := rowHref(row, rules)
	id := rowID(row, href, rules)
	if id == "" {
		return Candidate{}, false
	}

	rawName := rowName(row, rules)
	if rawName == "" {
		return Candidate{}, false
	}
	status, name := ParseStatusPrefix(rawName)

	item := Candidate{
		CatalogID: id,
		Name:      name,
		Status:    status,
		Category:  category,
		URL:       htmlutil.AbsoluteURL(base, href),
		ImageURL:  rowImage(base, row),
	}

	price, ok := rowPrice(row, rules, &item)
	if !ok {
		return Candidate{}, false
	}
	item.Price = price

	if detectSoldout(row, rules) {
		item.Status = catalog.StatusSoldout
	}

	for _, kw := range rules.BonusKeywords {
		if strings.Contains(rawName, kw) {
			item.HasBonus = true
			break
		}
	}

	if rules.DeadlineFromSpec {
		row.Find("ul.spec li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			m := deadlineRe.FindStringSubmatch(li.Text())
			if m != nil {
				item.OrderDeadline = strings.TrimSpace(m[1])
				return false
			}
			return true
		})
	}

	if rules.ReviewCountSelector != "" {
		text := strings.TrimSpace(row.Find(rules.ReviewCountSelector).First().Text())
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			item.ReviewCount = n
		}
	}

	return item, true
}

// rowHref finds the product link for a row, preferring the anchorBox link.
func rowHref(row *goquery.Selection, rules catalog.Rules) string {
	if href, ok := row.Find(`a[name^="anchorBoxName_"]`).First().Attr("href"); ok {
		return href
	}
	for _, sel := range []string{"a.prdImg", "a.name"} {
		if href, ok := row.Find(sel).First().Attr("href"); ok {
			return href
		}
	}
	for _, sel := range rules.NameSelectors {
		if href, ok := row.Find(sel).First().Attr("href"); ok {
			return href
		}
	}
	return ""
}

// rowID recovers the catalog-local item id. Cafe24 encodes it redundantly:
// the li id, the compare checkbox class, and the product URL all carry it.
func rowID(row *goquery.Selection, href string, rules catalog.Rules) string {
	if rules.IDFromHref && href != "" {
		if id := ProductIDFromURL(href); id != "" {
			return id
		}
	}
	if liID, ok := row.Attr("id"); ok {
		if m := anchorBoxRe.FindStringSubmatch(liID); m != nil {
			return m[1]
		}
	}
	if classes, ok := row.Find("input.ProductCompareClass").First().Attr("class"); ok {
		for _, cls := range strings.Fields(classes) {
			if m := compareRe.FindStringSubmatch(cls); m != nil {
				return m[1]
			}
		}
	}
	if href != "" {
		return ProductIDFromURL(href)
	}
	return ""
}

// ProductIDFromURL extracts the numeric product id from either Cafe24 URL
// style:
//
//	/product/detail.html?product_no=12345  → "12345"
//	/product/slug/12345/category/...       → "12345"
func ProductIDFromURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if no := parsed.Query().Get("product_no"); no != "" {
		return no
	}
	if m := slugURLRe.FindStringSubmatch(parsed.Path); m != nil {
		return m[1]
	}
	return ""
}

func rowName(row *goquery.Selection, rules catalog.Rules) string {
	var anchor *goquery.Selection
	for _, sel := range rules.NameSelectors {
		anchor = row.Find(sel).First()
		if anchor.Length() > 0 {
			break
		}
	}
	if anchor == nil || anchor.Length() == 0 {
		return ""
	}

	switch rules.NameMode {
	case catalog.NameDirectText:
		if name := htmlutil.DirectText(anchor); name != "" {
			return strings.TrimLeft(name, ": ")
		}
	case catalog.NameFirstSpan:
		if span := anchor.Find("span").First(); span.Length() > 0 {
			if name := htmlutil.CleanText(span.Text()); name != "" {
				return name
			}
		}
	case catalog.NameLastVisibleSpan:
		spans := anchor.Find("span")
		for i := spans.Length() - 1; i >= 0; i-- {
			span := spans.Eq(i)
			if span.HasClass("displaynone") {
				continue
			}
			if name := htmlutil.CleanText(span.Text()); name != "" {
				return name
			}
		}
	}
	return htmlutil.CleanText(anchor.Text())
}

// rowPrice resolves the price through the catalog's sources in order,
// also filling labeled spec fields (manufacturer, deadline, release date)
// encountered along the way. Returns false when no source yields a valid
// price.
func rowPrice(row *goquery.Selection, rules catalog.Rules, item *Candidate) (int64, bool) {
	if rules.PriceFromDataAttr {
		if attr, ok := row.Attr("data-price"); ok && attr != "" {
			if price, err := ParseDataPrice(attr); err == nil {
				fillLabeledSpecs(row, rules, item, nil)
				return price, true
			}
		}
	}

	if rules.PriceRelSelector != "" {
		found := int64(0)
		row.Find(rules.PriceRelSelector).First().Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			text := strings.TrimSpace(span.Text())
			if !strings.Contains(text, currencyMark) {
				return true
			}
			if price, err := ParsePrice(text); err == nil {
				found = price
				return false
			}
			return true
		})
		if found > 0 {
			fillLabeledSpecs(row, rules, item, nil)
			return found, true
		}
	}

	if rules.LabeledSpecSelector != "" {
		var price int64
		fillLabeledSpecs(row, rules, item, &price)
		if price > 0 {
			return price, true
		}
	}

	if rules.PlainSpecSelector != "" {
		found := int64(0)
		row.Find(rules.PlainSpecSelector).EachWithBreak(func(_ int, span *goquery.Selection) bool {
			text := strings.TrimSpace(span.Text())
			if !strings.Contains(text, currencyMark) {
				return true
			}
			if price, err := ParsePrice(text); err == nil {
				found = price
				return false
			}
			return true
		})
		if found > 0 {
			return found, true
		}
	}

	return 0, false
}

// fillLabeledSpecs walks strong-labeled spec rows, mapping labels through the
// catalog's LabelFields by substring match. When price is non-nil the 판매가
// row is parsed into it.
func fillLabeledSpecs(row *goquery.Selection, rules catalog.Rules, item *Candidate, price *int64) {
	if rules.LabeledSpecSelector == "" {
		return
	}
	row.Find(rules.LabeledSpecSelector).Each(func(_ int, li *goquery.Selection) {
		strong := li.Find("strong").First()
		if strong.Length() == 0 {
			return
		}
		label := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strong.Text()), ":"))
		if label == "" {
			return
		}

		value := labeledSpecValue(li, label)
		if value == "" {
			return
		}

		for key, field := range rules.LabelFields {
			if !strings.Contains(label, key) {
				continue
			}
			switch field {
			case catalog.ListPrice:
				if price != nil {
					if p, err := ParsePrice(value); err == nil {
						*price = p
					}
				}
			case catalog.ListManufacturer:
				item.Manufacturer = value
			case catalog.ListDeadline:
				item.OrderDeadline = value
			case catalog.ListReleaseDate:
				item.ReleaseDate = value
			}
			break
		}
	})
}

// labeledSpecValue finds the last span in the row whose text isn't the label
// itself. Some skins render empty decoration spans after the value.
func labeledSpecValue(li *goquery.Selection, label string) string {
	value := ""
	spans := li.Find("span")
	for i := spans.Length() - 1; i >= 0; i-- {
		text := strings.TrimSpace(spans.Eq(i).Text())
		if text == "" || text == label || text == ":" {
			continue
		}
		value = text
		break
	}
	return value
}

// rowImage pulls the thumbnail, trying each known skin's image slot.
func rowImage(base *url.URL, row *goquery.Selection) string {
	for _, sel := range []string{
		`a[name^="anchorBoxName_"] img`,
		"a.prdImg img",
		"div.add_thumb img",
	} {
		if src, ok := row.Find(sel).First().Attr("src"); ok && src != "" {
			return htmlutil.AbsoluteURL(base, src)
		}
	}
	return ""
}

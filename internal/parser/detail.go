package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/catalog"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
)

// ParseDetail extracts the spec table of a product detail page as normalized
// label→value pairs, filtered through the catalog's detail label map. Cafe24
// detail pages keep specs in th/td table rows; everything else on the page is
// ignored. Returns nil when the catalog defines no detail labels or nothing
// matched.
func ParseDetail(ctx context.Context, cat catalog.Catalog, markup []byte) (map[catalog.DetailField]string, error) {
	_, span := tracer.Start(ctx, "ParseDetail")
	defer span.End()
	span.SetAttributes(attribute.String("catalog", cat.Name))

	if len(cat.Rules.DetailLabels) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, err
	}

	specs := map[catalog.DetailField]string{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		label := strings.TrimSuffix(strings.TrimSpace(th.Text()), ":")
		value := strings.TrimSpace(td.Text())
		if value == "" || value == label {
			return
		}

		for key, field := range cat.Rules.DetailLabels {
			if strings.Contains(label, key) {
				specs[field] = value
				break
			}
		}
	})

	if len(specs) == 0 {
		return nil, nil
	}
	return specs, nil
}

// Package extractor derives normalized descriptive fields (series, character,
// manufacturer, scale, version, product line) from raw Korean listing names.
// Deterministic keyword rules run first; a classification service fills in
// when the rules are not confident enough. Detail pages fetched here are
// mined for everything they hold in one pass, identity codes included.
package extractor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/parser"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("figure-scrapper/extractor")

// DefaultThreshold is the rules confidence at or above which the
// classification service is not consulted.
const DefaultThreshold = 0.7

// Confidence assigned to classifier output, which reports no uncertainty of
// its own. A detail page in the prompt earns the higher figure.
const (
	classifierConfidence         = 0.85
	classifierWithPageConfidence = 0.90
)

const minIdentityCodeLen = 8

// ClassifyRequest carries one product name plus whatever context is
// available to the classification service.
type ClassifyRequest struct {
	Name     string
	Catalog  string
	Category string
	// PageSpecs holds detail-page label/value pairs, nil when no detail page
	// was fetched.
	PageSpecs map[catalog.DetailField]string
}

// Classifier is the external classification service boundary. A nil
// Classifier disables the fallback entirely.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (productstore.Attributes, error)
}

type Extractor struct {
	store      productstore.Store
	classifier Classifier
	// fetch retrieves detail pages. It must already enforce the per-catalog
	// request spacing; nil disables detail fetches.
	fetch     parser.FetchFunc
	threshold float64
}

func New(store productstore.Store, classifier Classifier, fetch parser.FetchFunc, threshold float64) Extractor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Extractor{store: store, classifier: classifier, fetch: fetch, threshold: threshold}
}

// Result summarizes one extraction run.
type Result struct {
	Extracted      int
	ViaClassifier  int
	CodesPersisted int
	CodesRejected  int
	Failed         int
}

// ProcessNew extracts attributes for freshly discovered products. Each
// product is handled independently; one failure never stops the batch.
func (e Extractor) ProcessNew(ctx context.Context, cat catalog.Catalog, productIDs []int64) Result {
	ctx, span := tracer.Start(ctx, "ProcessNew")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog", cat.Name),
		attribute.Int("products", len(productIDs)),
	)

	var result Result
	for _, id := range productIDs {
		p, ok, err := e.store.GetByID(ctx, id)
		if err != nil || !ok {
			slog.WarnContext(ctx, "product lookup failed before extraction",
				"catalog", cat.Name, "product_id", id, "err", err)
			result.Failed++
			continue
		}
		e.extractOne(ctx, cat, p, &result)
	}
	span.SetAttributes(attribute.Int("extracted", result.Extracted))
	return result
}

// Backfill re-runs extraction over products whose normalized fields were
// never derived. This is the explicit bulk path, separate from the per-cycle
// hot path.
func (e Extractor) Backfill(ctx context.Context, cat catalog.Catalog) (Result, error) {
	ctx, span := tracer.Start(ctx, "Backfill")
	defer span.End()
	span.SetAttributes(attribute.String("catalog", cat.Name))

	pending, err := e.store.Unextracted(ctx, cat.Name)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, p := range pending {
		e.extractOne(ctx, cat, p, &result)
	}
	slog.InfoContext(ctx, "extraction backfill finished",
		"catalog", cat.Name, "pending", len(pending), "extracted", result.Extracted)
	return result, nil
}

// BackfillCodes fetches detail pages for products missing an identity code
// and persists whatever codes the pages carry.
func (e Extractor) BackfillCodes(ctx context.Context, cat catalog.Catalog) (Result, error) {
	ctx, span := tracer.Start(ctx, "BackfillCodes")
	defer span.End()
	span.SetAttributes(attribute.String("catalog", cat.Name))

	var result Result
	if e.fetch == nil {
		return result, nil
	}
	missing, err := e.store.MissingIdentityCode(ctx, cat.Name)
	if err != nil {
		return Result{}, err
	}
	for _, p := range missing {
		specs := e.fetchSpecs(ctx, cat, p.URL)
		if specs == nil {
			result.Failed++
			continue
		}
		e.persistSpecs(ctx, cat, p, specs, &result)
	}
	return result, nil
}

// extractOne fetches the detail page once, then feeds that single response
// to every consumer: rules context, classifier prompt, spec columns and
// identity code capture.
func (e Extractor) extractOne(ctx context.Context, cat catalog.Catalog, p productstore.Product, result *Result) {
	var specs map[catalog.DetailField]string
	if e.fetch != nil && p.URL != "" {
		specs = e.fetchSpecs(ctx, cat, p.URL)
	}

	existingMfr := p.Manufacturer
	if existingMfr == "" && specs != nil {
		existingMfr = specs[catalog.DetailManufacturer]
	}

	attrs, confidence := ExtractWithRules(p.Name, existingMfr)
	method := productstore.ExtractionRules

	if confidence < e.threshold && e.classifier != nil {
		llmAttrs, err := e.classifier.Classify(ctx, ClassifyRequest{
			Name:      p.Name,
			Catalog:   cat.Name,
			Category:  p.Category,
			PageSpecs: specs,
		})
		if err != nil {
			// Degrade to the rules result, never block on the service.
			slog.WarnContext(ctx, "classification failed, keeping rules result",
				"catalog", cat.Name, "product_id", p.ID, "err", err)
		} else {
			attrs = mergeAttributes(llmAttrs, attrs)
			method = productstore.ExtractionLLM
			confidence = classifierConfidence
			if specs != nil {
				confidence = classifierWithPageConfidence
			}
			result.ViaClassifier++
		}
	}

	if err := e.store.SaveExtraction(ctx, p.ID, attrs, method, confidence); err != nil {
		slog.WarnContext(ctx, "failed to persist extraction",
			"catalog", cat.Name, "product_id", p.ID, "err", err)
		result.Failed++
		return
	}
	result.Extracted++

	if specs != nil {
		e.persistSpecs(ctx, cat, p, specs, result)
	}
}

func (e Extractor) fetchSpecs(ctx context.Context, cat catalog.Catalog, url string) map[catalog.DetailField]string {
	body, err := e.fetch(ctx, url)
	if err != nil {
		slog.DebugContext(ctx, "detail fetch failed",
			"catalog", cat.Name, "url", url, "err", err)
		return nil
	}
	specs, err := parser.ParseDetail(ctx, cat, body)
	if err != nil {
		slog.DebugContext(ctx, "detail parse failed",
			"catalog", cat.Name, "url", url, "err", err)
		return nil
	}
	return specs
}

func (e Extractor) persistSpecs(ctx context.Context, cat catalog.Catalog, p productstore.Product, specs map[catalog.DetailField]string, result *Result) {
	err := e.store.SaveDetailSpecs(ctx, p.ID,
		specs[catalog.DetailSize], specs[catalog.DetailMaterial],
		specs[catalog.DetailManufacturer])
	if err != nil {
		slog.WarnContext(ctx, "failed to persist detail specs",
			"catalog", cat.Name, "product_id", p.ID, "err", err)
	}

	code := specs[catalog.DetailJANCode]
	if len(code) < minIdentityCodeLen {
		return
	}
	err = e.store.SetIdentityCode(ctx, p.ID, cat.Name, code)
	switch {
	case err == nil:
		result.CodesPersisted++
	case errors.Is(err, productstore.ErrDuplicateCode):
		// A code shared by distinct items in one catalog is corrupt, most
		// likely a cached detail response served for the wrong product.
		slog.WarnContext(ctx, "rejected duplicate identity code",
			"catalog", cat.Name, "product_id", p.ID, "code", code)
		result.CodesRejected++
	default:
		slog.WarnContext(ctx, "failed to persist identity code",
			"catalog", cat.Name, "product_id", p.ID, "err", err)
	}
}

// mergeAttributes prefers the classifier's answer per field, falling back to
// the rules answer where the classifier returned nothing.
func mergeAttributes(primary, fallback productstore.Attributes) productstore.Attributes {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return productstore.Attributes{
		Series:       pick(primary.Series, fallback.Series),
		Character:    pick(primary.Character, fallback.Character),
		Manufacturer: pick(primary.Manufacturer, fallback.Manufacturer),
		Scale:        pick(primary.Scale, fallback.Scale),
		Version:      pick(primary.Version, fallback.Version),
		ProductLine:  pick(primary.ProductLine, fallback.ProductLine),
	}
}

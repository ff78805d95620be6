// Package pipeline runs the scrape cycle: fetch every configured catalog's
// listings, detect state transitions, extract attributes for new items and
// hand outward changes to the event sink. Catalogs run sequentially; one
// catalog failing never takes down the cycle.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/detector"
	"github.com/moyedx3/figure-scrapper/internal/extractor"
	"github.com/moyedx3/figure-scrapper/internal/parser"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("figure-scrapper/pipeline")

type Options struct {
	Catalogs []catalog.Catalog
	// NewFetcher builds one Fetcher per catalog so each carries its own
	// request spacing.
	NewFetcher func(cat catalog.Catalog) Fetcher
	Classifier extractor.Classifier
	Sink       EventSink
	MaxPages   int
	Threshold  float64
}

type Pipeline struct {
	store    productstore.Store
	detector detector.Detector
	opts     Options
}

func New(store productstore.Store, opts Options) Pipeline {
	if opts.Sink == nil {
		opts.Sink = SlogSink{}
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	return Pipeline{
		store:    store,
		detector: detector.NewDetector(store),
		opts:     opts,
	}
}

// CatalogSummary is one catalog's share of a cycle.
type CatalogSummary struct {
	Catalog       string
	Items         int
	Skipped       int
	New           int
	Changes       int
	Extracted     int
	ViaClassifier int
	Failed        bool
	LayoutChanged bool
}

// Summary aggregates one full cycle.
type Summary struct {
	Started  time.Time
	Duration time.Duration
	Catalogs []CatalogSummary
}

func (s Summary) Failed() int {
	n := 0
	for _, c := range s.Catalogs {
		if c.Failed {
			n++
		}
	}
	return n
}

func (s Summary) TotalChanges() int {
	n := 0
	for _, c := range s.Catalogs {
		n += c.Changes
	}
	return n
}

// Cycle scrapes every configured catalog once.
func (p Pipeline) Cycle(ctx context.Context) Summary {
	ctx, span := tracer.Start(ctx, "Cycle")
	defer span.End()

	started := time.Now()
	summary := Summary{Started: started}

	for _, cat := range p.opts.Catalogs {
		cs := p.runCatalog(ctx, cat)
		summary.Catalogs = append(summary.Catalogs, cs)
	}

	summary.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("catalogs", len(summary.Catalogs)),
		attribute.Int("catalogs_failed", summary.Failed()),
		attribute.Int("changes", summary.TotalChanges()),
	)
	slog.InfoContext(ctx, "cycle finished",
		"duration", summary.Duration,
		"catalogs", len(summary.Catalogs),
		"failed", summary.Failed(),
		"changes", summary.TotalChanges(),
	)
	return summary
}

func (p Pipeline) runCatalog(ctx context.Context, cat catalog.Catalog) CatalogSummary {
	ctx, span := tracer.Start(ctx, "runCatalog")
	defer span.End()
	span.SetAttributes(attribute.String("catalog", cat.Name))

	cs := CatalogSummary{Catalog: cat.Name}

	fetcher := p.opts.NewFetcher(cat)
	fetch := parser.FetchFunc(fetcher.Fetch)
	ext := extractor.New(p.store, p.opts.Classifier, fetch, p.opts.Threshold)
	pager := parser.CatalogPager{Catalog: cat}
	now := time.Now()

	sawItems := false
	for category := range cat.Categories {
		res := parser.WalkPages(ctx, fetch, pager, category, p.opts.MaxPages)
		cs.Items += len(res.Items)
		cs.Skipped += res.Skipped
		if res.LayoutChanged {
			cs.LayoutChanged = true
		}
		if len(res.Items) == 0 {
			continue
		}
		sawItems = true

		batch := p.detector.Process(ctx, cat.Name, res.Items, now)
		for _, change := range batch.Changes {
			if detector.Outward(change.Kind) {
				p.opts.Sink.EmitChange(ctx, change)
			}
		}
		cs.New += len(batch.NewProductIDs)
		cs.Changes += len(batch.Changes)

		extRes := ext.ProcessNew(ctx, cat, batch.NewProductIDs)
		cs.Extracted += extRes.Extracted
		cs.ViaClassifier += extRes.ViaClassifier
	}

	if !sawItems {
		// Zero items across every category means the catalog never answered
		// or its markup changed shape.
		cs.Failed = true
		slog.ErrorContext(ctx, "catalog produced no items", "catalog", cat.Name)
	}
	return cs
}

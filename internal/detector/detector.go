// Package detector turns scraped snapshots into stored state transitions.
// It compares each parsed candidate against the product store, writes the
// appropriate change events and price samples and reports which items are
// newly discovered so the extractor can pick them up.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/parser"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("figure-scrapper/detector")

// Change is one outward-facing transition detected in a cycle.
type Change struct {
	ProductID int64
	Catalog   string
	CatalogID string
	Name      string
	Kind      productstore.ChangeKind
	OldValue  string
	NewValue  string
}

// Result summarizes one batch run.
type Result struct {
	// NewProductIDs lists store row ids discovered this batch, in input
	// order. The extractor runs over exactly these.
	NewProductIDs []int64
	Changes       []Change
	Failed        int
}

type Detector struct {
	store productstore.Store
}

func NewDetector(store productstore.Store) Detector {
	return Detector{store: store}
}

// Process runs the state machine over one batch of candidates from a single
// catalog. A failure on one candidate is logged and counted, never fatal to
// the rest of the batch.
func (d Detector) Process(ctx context.Context, catalogName string, candidates []parser.Candidate, now time.Time) Result {
	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog", catalogName),
		attribute.Int("candidates", len(candidates)),
	)

	var result Result
	for _, c := range candidates {
		changes, newID, err := d.processOne(ctx, catalogName, c, now)
		if err != nil {
			slog.WarnContext(ctx, "candidate failed detection",
				"catalog", catalogName, "id", c.CatalogID, "err", err)
			result.Failed++
			continue
		}
		if newID != 0 {
			result.NewProductIDs = append(result.NewProductIDs, newID)
		}
		result.Changes = append(result.Changes, changes...)
	}
	span.SetAttributes(attribute.Int("failed", result.Failed))
	return result
}

func (d Detector) processOne(ctx context.Context, catalogName string, c parser.Candidate, now time.Time) ([]Change, int64, error) {
	if c.CatalogID == "" {
		return nil, 0, fmt.Errorf("candidate has no catalog id")
	}
	if c.Price <= 0 {
		return nil, 0, fmt.Errorf("candidate has non-positive price %d", c.Price)
	}

	prev, existed, err := d.store.Get(ctx, catalogName, c.CatalogID)
	if err != nil {
		return nil, 0, err
	}

	id, err := d.store.Upsert(ctx, productstore.UpsertObservation{
		Catalog:       catalogName,
		CatalogID:     c.CatalogID,
		Name:          c.Name,
		Price:         c.Price,
		Status:        c.Status,
		Category:      c.Category,
		Manufacturer:  c.Manufacturer,
		OrderDeadline: c.OrderDeadline,
		ReleaseDate:   c.ReleaseDate,
		HasBonus:      c.HasBonus,
		ReviewCount:   c.ReviewCount,
		ImageURL:      c.ImageURL,
		URL:           c.URL,
		ObservedAt:    now,
	})
	if err != nil {
		return nil, 0, err
	}

	// Every processed cycle records a price sample, changed or not.
	if err := d.store.RecordPriceSample(ctx, id, c.Price, now); err != nil {
		return nil, 0, err
	}

	var changes []Change
	emit := func(kind productstore.ChangeKind, oldValue, newValue string) error {
		if err := d.store.RecordChange(ctx, id, kind, oldValue, newValue, now); err != nil {
			return err
		}
		changes = append(changes, Change{
			ProductID: id,
			Catalog:   catalogName,
			CatalogID: c.CatalogID,
			Name:      c.Name,
			Kind:      kind,
			OldValue:  oldValue,
			NewValue:  newValue,
		})
		return nil
	}

	if !existed {
		if err := emit(productstore.ChangeNew, "", string(c.Status)); err != nil {
			return nil, 0, err
		}
		if c.Status == catalog.StatusSoldout {
			if err := d.store.MarkSoldout(ctx, id, now); err != nil {
				return nil, 0, err
			}
		}
		return changes, id, nil
	}

	if prev.Status != c.Status {
		switch {
		case c.Status == catalog.StatusSoldout:
			if err := emit(productstore.ChangeSoldout, string(prev.Status), string(c.Status)); err != nil {
				return nil, 0, err
			}
			if err := d.store.MarkSoldout(ctx, id, now); err != nil {
				return nil, 0, err
			}
		case c.Status == catalog.StatusAvailable &&
			(prev.Status == catalog.StatusSoldout || prev.Status == catalog.StatusPreorder):
			if err := emit(productstore.ChangeRestock, string(prev.Status), string(c.Status)); err != nil {
				return nil, 0, err
			}
		default:
			// History only, e.g. available → preorder.
			if err := emit(productstore.ChangeStatus, string(prev.Status), string(c.Status)); err != nil {
				return nil, 0, err
			}
		}
	}

	if prev.Price != c.Price {
		old := strconv.FormatInt(prev.Price, 10)
		next := strconv.FormatInt(c.Price, 10)
		if err := emit(productstore.ChangePrice, old, next); err != nil {
			return nil, 0, err
		}
	}

	return changes, 0, nil
}

// Outward reports whether a change kind should reach downstream consumers.
// Status history rows stay internal.
func Outward(kind productstore.ChangeKind) bool {
	return kind != productstore.ChangeStatus
}

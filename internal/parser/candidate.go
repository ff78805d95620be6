package parser

import (
	"github.com/moyedx3/figure-scrapper/internal/catalog"
)

// Candidate is one parsed-but-not-yet-reconciled item record from a single
// listing-page scrape. The detector compares it against stored state.
type Candidate struct {
	CatalogID     string
	Name          string
	Price         int64
	Status        catalog.Status
	Category      string
	Manufacturer  string
	OrderDeadline string
	ReleaseDate   string
	HasBonus      bool
	ReviewCount   int64
	ImageURL      string
	URL           string
}

// ListResult is the outcome of parsing one listing page. Skipped counts rows
// that were present but unusable (missing id, name or price); it is reported,
// never raised.
type ListResult struct {
	Items []Candidate
	// Skipped is the number of rows dropped for missing required fields.
	Skipped int
	// LayoutChanged is set when the expected listing container itself is
	// absent, which usually means the shop shipped a redesign.
	LayoutChanged bool
}

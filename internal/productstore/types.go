package productstore

import (
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
)

// ChangeKind classifies one detected transition.
type ChangeKind string

const (
	ChangeNew     ChangeKind = "new"
	ChangeRestock ChangeKind = "restock"
	ChangeSoldout ChangeKind = "soldout"
	ChangePrice   ChangeKind = "price"
	// ChangeStatus records transitions that carry no outward event, such as
	// available → preorder. They stay in the history table only.
	ChangeStatus ChangeKind = "status"
)

// ExtractionMethod tags how a product's normalized fields were derived.
type ExtractionMethod string

const (
	ExtractionNone  ExtractionMethod = "none"
	ExtractionRules ExtractionMethod = "rules"
	ExtractionLLM   ExtractionMethod = "llm"
)

// MatchTier identifies which matching policy produced a group.
type MatchTier string

const (
	TierExactCode  MatchTier = "exact-code"
	TierStructured MatchTier = "structured"
	TierPartial    MatchTier = "partial-structured"
)

// Product is one row per (catalog, catalog-local id). The identity pair is
// immutable once created; every other scraped field tracks the latest
// observation.
type Product struct {
	ID        int64
	Catalog   string
	CatalogID string
	Name      string
	Price     int64
	Status    catalog.Status

	Category      string
	Manufacturer  string
	JANCode       string
	ReleaseDate   string
	OrderDeadline string
	Size          string
	Material      string
	HasBonus      bool
	ReviewCount   int64
	ImageURL      string
	URL           string

	Series                string
	CharacterName         string
	Scale                 string
	Version               string
	ProductLine           string
	ExtractedManufacturer string
	ExtractionMethod      ExtractionMethod
	ExtractionConfidence  float64

	FirstSeenAt   time.Time
	LastCheckedAt time.Time
	// SoldoutAt is set on the first soldout observation and never cleared.
	SoldoutAt time.Time
}

// ChangeEvent is an immutable record of one detected transition.
type ChangeEvent struct {
	ID        int64
	ProductID int64
	Kind      ChangeKind
	OldValue  string
	NewValue  string
	ChangedAt time.Time
}

// PriceSample is one append-only timeseries row, written every scrape.
type PriceSample struct {
	ProductID  int64
	Price      int64
	RecordedAt time.Time
}

// MatchGroup is a set of products believed to denote the same physical item.
// Groups are derived artifacts, recomputed wholesale on every matching run.
type MatchGroup struct {
	Key        string
	Tier       MatchTier
	Confidence float64
	Suspicious bool
	ProductIDs []int64
}

// Attributes is the normalized descriptive field set shared by the rule and
// LLM extraction paths and by the matcher.
type Attributes struct {
	Series       string
	Character    string
	Manufacturer string
	Scale        string
	Version      string
	ProductLine  string
}

// Package catalog declares the monitored storefronts and the per-catalog
// rule tables the generic parser is parameterized with. All five shops run
// on the Cafe24 platform, so the differences are limited to row selection,
// label text and status-marker details.
package catalog

// Status is the stocking state of a listed item as observed on a scrape.
type Status string

const (
	StatusPreorder  Status = "preorder"
	StatusAvailable Status = "available"
	StatusSoldout   Status = "soldout"
)

// NameMode selects how the visible product name is pulled out of the name
// anchor, the one piece of markup the shops render differently.
type NameMode int

const (
	// last span that doesn't carry the displaynone class
	NameLastVisibleSpan NameMode = iota
	// first span inside the anchor
	NameFirstSpan
	// direct text nodes of the anchor, skipping hidden child spans
	NameDirectText
)

// DetailField is a normalized detail-page spec field.
type DetailField string

const (
	DetailJANCode      DetailField = "jan_code"
	DetailManufacturer DetailField = "manufacturer"
	DetailSize         DetailField = "size"
	DetailMaterial     DetailField = "material"
	DetailSeriesHint   DetailField = "series_hint"
	DetailDescription  DetailField = "description"
)

// ListField is a normalized labeled spec-row field on a listing page.
type ListField string

const (
	ListPrice        ListField = "price"
	ListManufacturer ListField = "manufacturer"
	ListDeadline     ListField = "order_deadline"
	ListReleaseDate  ListField = "release_date"
)

// Rules drives the generic listing/detail extraction algorithm.
type Rules struct {
	// ContainerSelector, when set, must be present on the page; its absence
	// is treated as an upstream layout change and the page yields no items.
	ContainerSelector string
	// ItemSelectors are tried in order until one yields rows.
	ItemSelectors []string

	NameSelectors []string
	NameMode      NameMode

	// Item ids normally come from li#anchorBoxId_* or the compare checkbox
	// class. IDFromHref catalogs carry it only in the product link query.
	IDFromHref bool

	// Price resolution order: data-price attribute, rel-tagged row, labeled
	// spec rows, then any spec span carrying the currency suffix.
	PriceFromDataAttr bool
	PriceRelSelector  string
	// LabeledSpecSelector rows pair a <strong> label with span values,
	// mapped through LabelFields by substring match.
	LabeledSpecSelector string
	LabelFields         map[string]ListField
	PlainSpecSelector   string

	// DeadlineFromSpec scans plain spec rows for a 예약 마감일 line.
	DeadlineFromSpec bool

	// ReviewCountSelector holds a per-item review/like counter when present.
	ReviewCountSelector string

	// SoldoutSelectors mark a row as sold out when any of them matches.
	SoldoutSelectors []string

	BonusKeywords []string

	// DetailLabels maps detail-page th label text (substring match) to
	// normalized fields. Catalogs without an entry skip detail parsing.
	DetailLabels map[string]DetailField
}

// Catalog is one monitored storefront.
type Catalog struct {
	Name        string
	DisplayName string
	BaseURL     string
	// Categories maps a category label to the listing path scraped for it.
	Categories map[string]string
	Rules      Rules
}

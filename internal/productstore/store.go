// Package productstore is the durable record of every item ever seen per
// catalog, its current state and its full change history. It exposes
// idempotent upserts and point queries and holds no business logic; the
// detector, extractor and matcher decide what gets written.
package productstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
)

// ErrDuplicateCode is returned when persisting an exact identity code that
// another item in the same catalog already carries. Such codes are a
// data-quality failure (usually a CDN cache collision during scraping) and
// must never be trusted.
var ErrDuplicateCode = errors.New("identity code already present in catalog")

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

const productColumns = `id, catalog, catalog_id, name, price, status,
	category, manufacturer, jan_code, release_date, order_deadline,
	size, material, has_bonus, review_count, image_url, url,
	series, character_name, scale, version, product_line,
	extracted_manufacturer, extraction_method, extraction_confidence,
	first_seen_at, last_checked_at, soldout_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var status, method string
	var jan, series, character, scale, version, line, mfr sql.NullString
	var confidence sql.NullFloat64
	var firstSeen, lastChecked int64
	var soldoutAt sql.NullInt64

	err := row.Scan(
		&p.ID, &p.Catalog, &p.CatalogID, &p.Name, &p.Price, &status,
		&p.Category, &p.Manufacturer, &jan, &p.ReleaseDate, &p.OrderDeadline,
		&p.Size, &p.Material, &p.HasBonus, &p.ReviewCount, &p.ImageURL, &p.URL,
		&series, &character, &scale, &version, &line,
		&mfr, &method, &confidence,
		&firstSeen, &lastChecked, &soldoutAt,
	)
	if err != nil {
		return Product{}, err
	}

	p.Status = catalog.Status(status)
	p.JANCode = jan.String
	p.Series = series.String
	p.CharacterName = character.String
	p.Scale = scale.String
	p.Version = version.String
	p.ProductLine = line.String
	p.ExtractedManufacturer = mfr.String
	p.ExtractionMethod = ExtractionMethod(method)
	p.ExtractionConfidence = confidence.Float64
	p.FirstSeenAt = time.Unix(firstSeen, 0)
	p.LastCheckedAt = time.Unix(lastChecked, 0)
	if soldoutAt.Valid {
		p.SoldoutAt = time.Unix(soldoutAt.Int64, 0)
	}
	return p, nil
}

// Get looks up one product by its identity pair. The second return is false
// when the pair has never been seen.
func (s Store) Get(ctx context.Context, catalogName, catalogID string) (Product, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE catalog = ? AND catalog_id = ?`,
		catalogName, catalogID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

// GetByID looks up one product by its database row id.
func (s Store) GetByID(ctx context.Context, productID int64) (Product, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

// UpsertObservation is the scraped state written for a product every cycle.
type UpsertObservation struct {
	Catalog       string
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
	ObservedAt    time.Time
}

// Upsert inserts a product on first sighting or refreshes its scraped fields
// and last-checked timestamp. The identity pair is never rewritten. Returns
// the database row id.
func (s Store) Upsert(ctx context.Context, obs UpsertObservation) (int64, error) {
	now := obs.ObservedAt.Unix()

	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM products WHERE catalog = ? AND catalog_id = ?`,
		obs.Catalog, obs.CatalogID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO products
				(catalog, catalog_id, name, price, status, category,
				 manufacturer, order_deadline, release_date, has_bonus,
				 review_count, image_url, url, first_seen_at, last_checked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			obs.Catalog, obs.CatalogID, obs.Name, obs.Price, string(obs.Status),
			obs.Category, obs.Manufacturer, obs.OrderDeadline, obs.ReleaseDate,
			obs.HasBonus, obs.ReviewCount, obs.ImageURL, obs.URL, now, now)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE products SET
			name = ?, price = ?, status = ?, category = ?, manufacturer = ?,
			order_deadline = ?, release_date = ?, has_bonus = ?,
			review_count = ?, image_url = ?, url = ?, last_checked_at = ?
		WHERE id = ?`,
		obs.Name, obs.Price, string(obs.Status), obs.Category, obs.Manufacturer,
		obs.OrderDeadline, obs.ReleaseDate, obs.HasBonus,
		obs.ReviewCount, obs.ImageURL, obs.URL, now, id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MarkSoldout stamps the soldout-since timestamp, only if it has never been
// set. Repeated soldout observations keep the original timestamp.
func (s Store) MarkSoldout(ctx context.Context, productID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET soldout_at = ? WHERE id = ? AND soldout_at IS NULL`,
		at.Unix(), productID)
	return err
}

// RecordChange appends one immutable change event.
func (s Store) RecordChange(ctx context.Context, productID int64, kind ChangeKind, oldValue, newValue string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_events (product_id, kind, old_value, new_value, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		productID, string(kind), oldValue, newValue, at.Unix())
	return err
}

// RecordPriceSample appends one price timeseries row.
func (s Store) RecordPriceSample(ctx context.Context, productID, price int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_samples (product_id, price, recorded_at) VALUES (?, ?, ?)`,
		productID, price, at.Unix())
	return err
}

// PriceSamples returns the recorded series for one product, oldest first.
func (s Store) PriceSamples(ctx context.Context, productID int64) ([]PriceSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, price, recorded_at FROM price_samples
		WHERE product_id = ? ORDER BY recorded_at, id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []PriceSample
	for rows.Next() {
		var sample PriceSample
		var at int64
		if err := rows.Scan(&sample.ProductID, &sample.Price, &at); err != nil {
			return nil, err
		}
		sample.RecordedAt = time.Unix(at, 0)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// ChangeEvents returns the change history for one product, oldest first.
func (s Store) ChangeEvents(ctx context.Context, productID int64) ([]ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, kind, old_value, new_value, changed_at
		FROM change_events WHERE product_id = ? ORDER BY changed_at, id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		var ev ChangeEvent
		var kind string
		var at int64
		if err := rows.Scan(&ev.ID, &ev.ProductID, &kind, &ev.OldValue, &ev.NewValue, &at); err != nil {
			return nil, err
		}
		ev.Kind = ChangeKind(kind)
		ev.ChangedAt = time.Unix(at, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveExtraction stores the normalized fields for a product along with the
// method that produced them and the confidence score.
func (s Store) SaveExtraction(ctx context.Context, productID int64, attrs Attributes, method ExtractionMethod, confidence float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET
			series = ?, character_name = ?, extracted_manufacturer = ?,
			scale = ?, version = ?, product_line = ?,
			extraction_method = ?, extraction_confidence = ?
		WHERE id = ?`,
		nullable(attrs.Series), nullable(attrs.Character), nullable(attrs.Manufacturer),
		nullable(attrs.Scale), nullable(attrs.Version), nullable(attrs.ProductLine),
		string(method), confidence, productID)
	return err
}

// SaveDetailSpecs stores raw detail-page fields (size, material, page
// manufacturer) without touching the normalized columns.
func (s Store) SaveDetailSpecs(ctx context.Context, productID int64, size, material, manufacturer string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET
			size = CASE WHEN ? != '' THEN ? ELSE size END,
			material = CASE WHEN ? != '' THEN ? ELSE material END,
			manufacturer = CASE WHEN manufacturer = '' AND ? != '' THEN ? ELSE manufacturer END
		WHERE id = ?`,
		size, size, material, material, manufacturer, manufacturer, productID)
	return err
}

// SetIdentityCode persists an exact identity code after validating it is not
// already carried by a different item in the same catalog. Duplicates return
// ErrDuplicateCode and leave the row untouched.
func (s Store) SetIdentityCode(ctx context.Context, productID int64, catalogName, code string) error {
	if code == "" {
		return fmt.Errorf("empty identity code")
	}
	var clashes int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE catalog = ? AND jan_code = ? AND id != ?`,
		catalogName, code, productID).Scan(&clashes)
	if err != nil {
		return err
	}
	if clashes > 0 {
		return ErrDuplicateCode
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE products SET jan_code = ? WHERE id = ?`, code, productID)
	return err
}

// All returns every product across catalogs, the matcher's working set.
func (s Store) All(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY catalog, id`)
}

// Unextracted returns products whose normalized fields have never been
// derived, optionally limited to one catalog. This feeds the bulk backfill
// path, not the per-cycle hot path.
func (s Store) Unextracted(ctx context.Context, catalogName string) ([]Product, error) {
	if catalogName != "" {
		return s.queryProducts(ctx,
			`SELECT `+productColumns+` FROM products
			WHERE extraction_method = 'none' AND catalog = ? ORDER BY id`, catalogName)
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE extraction_method = 'none' ORDER BY catalog, id`)
}

// MissingIdentityCode returns products with a detail-page URL but no stored
// identity code, for the code backfill path.
func (s Store) MissingIdentityCode(ctx context.Context, catalogName string) ([]Product, error) {
	if catalogName != "" {
		return s.queryProducts(ctx,
			`SELECT `+productColumns+` FROM products
			WHERE (jan_code IS NULL OR jan_code = '') AND url != '' AND catalog = ?
			ORDER BY id`, catalogName)
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE (jan_code IS NULL OR jan_code = '') AND url != ''
		ORDER BY catalog, id`)
}

func (s Store) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ReplaceMatchGroups discards all stored group membership and writes the
// given set in one transaction. Matching is recomputed wholesale, never
// patched incrementally.
func (s Store) ReplaceMatchGroups(ctx context.Context, groups []MatchGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM match_groups`)
	if err != nil {
		return err
	}
	for _, g := range groups {
		for _, pid := range g.ProductIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO match_groups (group_key, tier, confidence, suspicious, product_id)
				VALUES (?, ?, ?, ?, ?)`,
				g.Key, string(g.Tier), g.Confidence, g.Suspicious, pid)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// MatchGroupMember is one product's membership row joined with its listing,
// for read-only consumers.
type MatchGroupMember struct {
	GroupKey   string
	Tier       MatchTier
	Confidence float64
	Suspicious bool
	Product    Product
}

// MatchGroupMembers returns all stored membership rows ordered by group.
func (s Store) MatchGroupMembers(ctx context.Context) ([]MatchGroupMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mg.group_key, mg.tier, mg.confidence, mg.suspicious, `+prefixedProductColumns("p")+`
		FROM match_groups mg
		JOIN products p ON p.id = mg.product_id
		ORDER BY mg.group_key, p.catalog`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []MatchGroupMember
	for rows.Next() {
		var m MatchGroupMember
		var tier string
		var p Product
		var status, method string
		var jan, series, character, scale, version, line, mfr sql.NullString
		var confidence sql.NullFloat64
		var firstSeen, lastChecked int64
		var soldoutAt sql.NullInt64

		err := rows.Scan(
			&m.GroupKey, &tier, &m.Confidence, &m.Suspicious,
			&p.ID, &p.Catalog, &p.CatalogID, &p.Name, &p.Price, &status,
			&p.Category, &p.Manufacturer, &jan, &p.ReleaseDate, &p.OrderDeadline,
			&p.Size, &p.Material, &p.HasBonus, &p.ReviewCount, &p.ImageURL, &p.URL,
			&series, &character, &scale, &version, &line,
			&mfr, &method, &confidence,
			&firstSeen, &lastChecked, &soldoutAt,
		)
		if err != nil {
			return nil, err
		}
		m.Tier = MatchTier(tier)
		p.Status = catalog.Status(status)
		p.JANCode = jan.String
		p.Series = series.String
		p.CharacterName = character.String
		p.Scale = scale.String
		p.Version = version.String
		p.ProductLine = line.String
		p.ExtractedManufacturer = mfr.String
		p.ExtractionMethod = ExtractionMethod(method)
		p.ExtractionConfidence = confidence.Float64
		p.FirstSeenAt = time.Unix(firstSeen, 0)
		p.LastCheckedAt = time.Unix(lastChecked, 0)
		if soldoutAt.Valid {
			p.SoldoutAt = time.Unix(soldoutAt.Int64, 0)
		}
		m.Product = p
		members = append(members, m)
	}
	return members, rows.Err()
}

func prefixedProductColumns(alias string) string {
	return alias + `.id, ` + alias + `.catalog, ` + alias + `.catalog_id, ` +
		alias + `.name, ` + alias + `.price, ` + alias + `.status, ` +
		alias + `.category, ` + alias + `.manufacturer, ` + alias + `.jan_code, ` +
		alias + `.release_date, ` + alias + `.order_deadline, ` +
		alias + `.size, ` + alias + `.material, ` + alias + `.has_bonus, ` +
		alias + `.review_count, ` + alias + `.image_url, ` + alias + `.url, ` +
		alias + `.series, ` + alias + `.character_name, ` + alias + `.scale, ` +
		alias + `.version, ` + alias + `.product_line, ` +
		alias + `.extracted_manufacturer, ` + alias + `.extraction_method, ` +
		alias + `.extraction_confidence, ` + alias + `.first_seen_at, ` +
		alias + `.last_checked_at, ` + alias + `.soldout_at`
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

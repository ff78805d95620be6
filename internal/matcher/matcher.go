// Package matcher finds listings across catalogs that denote the same
// physical item. Three tiers, strongest first: shared identity codes,
// full structured-attribute agreement, then series+character alone for
// whatever the stronger tiers left unmatched.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/lib/textutil"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("figure-scrapper/matcher")

const (
	// SuspiciousPriceRatio flags groups whose price spread suggests a
	// deposit listing got matched against a full-price listing.
	SuspiciousPriceRatio = 2.0

	partialConfidence = 0.6

	// partialSimilarityFloor gates Tier-3 membership: a candidate whose
	// raw name strays too far from the rest of the group is dropped.
	partialSimilarityFloor = 0.5
)

type Matcher struct {
	store productstore.Store
}

func NewMatcher(store productstore.Store) Matcher {
	return Matcher{store: store}
}

// Run rebuilds the full match-group set from current store state and
// persists it, replacing whatever the previous run produced.
func (m Matcher) Run(ctx context.Context) ([]productstore.MatchGroup, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	products, err := m.store.All(ctx)
	if err != nil {
		return nil, err
	}

	groups := Compute(products)
	if err := m.store.ReplaceMatchGroups(ctx, groups); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("products", len(products)),
		attribute.Int("groups", len(groups)),
	)
	slog.InfoContext(ctx, "matching complete",
		"products", len(products), "groups", len(groups))
	return groups, nil
}

// Compute derives match groups from a product snapshot. Pure function,
// deterministic for a given input set.
func Compute(products []productstore.Product) []productstore.MatchGroup {
	matched := map[int64]bool{}
	var groups []productstore.MatchGroup

	for _, g := range exactCodeGroups(products) {
		for _, id := range g.ProductIDs {
			matched[id] = true
		}
		groups = append(groups, g)
	}
	for _, g := range structuredGroups(products, matched) {
		for _, id := range g.ProductIDs {
			matched[id] = true
		}
		groups = append(groups, g)
	}
	groups = append(groups, partialGroups(products, matched)...)

	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// exactCodeGroups groups by shared identity code. A code carried by two
// distinct items inside one catalog is corrupt and disqualified outright.
func exactCodeGroups(products []productstore.Product) []productstore.MatchGroup {
	byCode := map[string][]productstore.Product{}
	for _, p := range products {
		if p.JANCode == "" {
			continue
		}
		byCode[p.JANCode] = append(byCode[p.JANCode], p)
	}

	var groups []productstore.MatchGroup
	for code, members := range byCode {
		if len(members) < 2 {
			continue
		}
		perCatalog := map[string]int{}
		for _, p := range members {
			perCatalog[p.Catalog]++
		}
		poisoned := false
		for _, n := range perCatalog {
			if n > 1 {
				poisoned = true
				break
			}
		}
		if poisoned {
			continue
		}

		g := productstore.MatchGroup{
			Key:        "jan:" + code,
			Tier:       productstore.TierExactCode,
			Confidence: 1.0,
			ProductIDs: memberIDs(members),
			Suspicious: suspiciousSpread(members),
		}
		groups = append(groups, g)
	}
	return groups
}

// structuredGroups groups unmatched items on the full attribute tuple.
// Version differences stay inside a group as variants.
func structuredGroups(products []productstore.Product, matched map[int64]bool) []productstore.MatchGroup {
	byKey := map[string][]productstore.Product{}
	for _, p := range products {
		if matched[p.ID] || p.Series == "" || p.CharacterName == "" {
			continue
		}
		key := fmt.Sprintf("struct:%s|%s|%s|%s",
			p.Series,
			NormalizeCharacter(p.CharacterName),
			normalizeManufacturer(p.ExtractedManufacturer),
			p.Scale)
		byKey[key] = append(byKey[key], p)
	}
	return emitMultiCatalog(byKey, productstore.TierStructured, averageConfidence)
}

// partialGroups relaxes to series+character for items no stronger tier
// claimed, with a name-similarity floor against runaway grouping.
func partialGroups(products []productstore.Product, matched map[int64]bool) []productstore.MatchGroup {
	byKey := map[string][]productstore.Product{}
	for _, p := range products {
		if matched[p.ID] || p.Series == "" || p.CharacterName == "" {
			continue
		}
		key := fmt.Sprintf("partial:%s|%s", p.Series, NormalizeCharacter(p.CharacterName))
		byKey[key] = append(byKey[key], p)
	}

	for key, members := range byKey {
		byKey[key] = cohesiveMembers(members)
	}
	return emitMultiCatalog(byKey, productstore.TierPartial,
		func([]productstore.Product) float64 { return partialConfidence })
}

// cohesiveMembers drops members whose raw name diverges from the group
// anchor beyond the similarity floor.
func cohesiveMembers(members []productstore.Product) []productstore.Product {
	if len(members) < 3 {
		return members
	}
	anchor := strings.ToLower(members[0].Name)
	kept := members[:1]
	for _, p := range members[1:] {
		if matchr.JaroWinkler(anchor, strings.ToLower(p.Name), false) >= partialSimilarityFloor {
			kept = append(kept, p)
		}
	}
	return kept
}

func emitMultiCatalog(byKey map[string][]productstore.Product, tier productstore.MatchTier, confidence func([]productstore.Product) float64) []productstore.MatchGroup {
	var groups []productstore.MatchGroup
	for key, members := range byKey {
		catalogs := map[string]bool{}
		for _, p := range members {
			catalogs[p.Catalog] = true
		}
		if len(catalogs) < 2 {
			continue
		}
		groups = append(groups, productstore.MatchGroup{
			Key:        key,
			Tier:       tier,
			Confidence: confidence(members),
			ProductIDs: memberIDs(members),
			Suspicious: suspiciousSpread(members),
		})
	}
	return groups
}

func averageConfidence(members []productstore.Product) float64 {
	var sum float64
	for _, p := range members {
		sum += p.ExtractionConfidence
	}
	return sum / float64(len(members))
}

func suspiciousSpread(members []productstore.Product) bool {
	minPrice, maxPrice := members[0].Price, members[0].Price
	for _, p := range members[1:] {
		if p.Price < minPrice {
			minPrice = p.Price
		}
		if p.Price > maxPrice {
			maxPrice = p.Price
		}
	}
	return minPrice > 0 && float64(maxPrice) > SuspiciousPriceRatio*float64(minPrice)
}

func memberIDs(members []productstore.Product) []int64 {
	ids := make([]int64, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var (
	edgeCodeRe    = regexp.MustCompile(`^\s*[A-Z]{1,4}[-_]?\d{2,}\s+|\s+[A-Z]{1,4}[-_]?\d{2,}\s*$`)
	leakedLineRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)pop\s*up\s*parade`),
		regexp.MustCompile(`(?i)nendoroid|넨도로이드`),
		regexp.MustCompile(`(?i)figma`),
		regexp.MustCompile(`(?i)artfx\s*j?`),
	}
)

// NormalizeCharacter canonicalizes a character name for grouping: case
// folded, leading/trailing product codes and leaked line keywords removed.
func NormalizeCharacter(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	for {
		stripped := edgeCodeRe.ReplaceAllString(s, " ")
		stripped = strings.TrimSpace(stripped)
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.ToLower(s)
	for _, re := range leakedLineRes {
		s = re.ReplaceAllString(s, " ")
	}
	return textutil.CollapseWhitespace(s)
}

// normalizeManufacturer collapses spelling variance ("굿스마일 컴퍼니" vs
// "굿스마일컴퍼니") by dropping whitespace entirely.
func normalizeManufacturer(name string) string {
	return textutil.NormalizeName(name)
}

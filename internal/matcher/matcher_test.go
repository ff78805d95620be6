package matcher

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/internal/productstore/db"
	"github.com/moyedx3/figure-scrapper/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func groupByTier(groups []productstore.MatchGroup, tier productstore.MatchTier) []productstore.MatchGroup {
	var out []productstore.MatchGroup
	for _, g := range groups {
		if g.Tier == tier {
			out = append(out, g)
		}
	}
	return out
}

func TestComputeExactCode(t *testing.T) {
	groups := Compute([]productstore.Product{
		{ID: 1, Catalog: "figurepresso", Price: 198000, JANCode: "4571234567890"},
		{ID: 2, Catalog: "comicsart", Price: 189000, JANCode: "4571234567890"},
		{ID: 3, Catalog: "maniahouse", Price: 52000, JANCode: "4909999999999"},
	})

	exact := groupByTier(groups, productstore.TierExactCode)
	require.Len(t, exact, 1)
	require.Equal(t, "jan:4571234567890", exact[0].Key)
	require.Equal(t, []int64{1, 2}, exact[0].ProductIDs)
	require.InDelta(t, 1.0, exact[0].Confidence, 1e-9)
	require.False(t, exact[0].Suspicious)
}

func TestComputeExcludesCodeDuplicatedWithinCatalog(t *testing.T) {
	// Two distinct items in one catalog carrying the same code means the
	// code is corrupt; it must not anchor any group.
	groups := Compute([]productstore.Product{
		{ID: 1, Catalog: "rabbits", Price: 100000, JANCode: "4571234567890"},
		{ID: 2, Catalog: "rabbits", Price: 52000, JANCode: "4571234567890"},
		{ID: 3, Catalog: "comicsart", Price: 99000, JANCode: "4571234567890"},
	})
	require.Empty(t, groupByTier(groups, productstore.TierExactCode))
}

func TestComputeStructuredTier(t *testing.T) {
	groups := Compute([]productstore.Product{
		{
			ID: 1, Catalog: "figurepresso", Price: 198000,
			Series: "원신", CharacterName: "호두", ExtractedManufacturer: "알터",
			Scale: "1/7", ExtractionConfidence: 0.8,
		},
		{
			ID: 2, Catalog: "ttabbaemall", Price: 192000,
			Series: "원신", CharacterName: "호두", ExtractedManufacturer: "알터",
			Scale: "1/7", ExtractionConfidence: 0.6, Version: "한정판",
		},
		// Same attributes, same catalog only: no group.
		{
			ID: 3, Catalog: "figurepresso", Price: 55000,
			Series: "원신", CharacterName: "종려", ExtractedManufacturer: "알터",
			Scale: "1/7", ExtractionConfidence: 0.8,
		},
	})

	structured := groupByTier(groups, productstore.TierStructured)
	require.Len(t, structured, 1)
	require.Equal(t, []int64{1, 2}, structured[0].ProductIDs)
	// Confidence is the average of member extraction confidences.
	require.InDelta(t, 0.7, structured[0].Confidence, 1e-9)
}

func TestComputeTierPrecedence(t *testing.T) {
	// Items joined by code never reappear in a weaker tier.
	groups := Compute([]productstore.Product{
		{
			ID: 1, Catalog: "figurepresso", Price: 198000, JANCode: "4571234567890",
			Series: "원신", CharacterName: "호두", ExtractedManufacturer: "알터", Scale: "1/7",
		},
		{
			ID: 2, Catalog: "comicsart", Price: 189000, JANCode: "4571234567890",
			Series: "원신", CharacterName: "호두", ExtractedManufacturer: "알터", Scale: "1/7",
		},
	})
	require.Len(t, groups, 1)
	require.Equal(t, productstore.TierExactCode, groups[0].Tier)
}

func TestComputePartialTier(t *testing.T) {
	// Manufacturer disagreement keeps these out of the structured tier;
	// series+character still pairs them at fixed lower confidence.
	groups := Compute([]productstore.Product{
		{
			ID: 1, Catalog: "figurepresso", Price: 198000,
			Name: "원신 호두 1/7 피규어", Series: "원신", CharacterName: "호두",
			ExtractedManufacturer: "알터", ExtractionConfidence: 0.6,
		},
		{
			ID: 2, Catalog: "maniahouse", Price: 189000,
			Name: "원신 호두 1/7 스케일", Series: "원신", CharacterName: "호두",
			ExtractedManufacturer: "맥스팩토리", ExtractionConfidence: 0.4,
		},
	})

	partial := groupByTier(groups, productstore.TierPartial)
	require.Len(t, partial, 1)
	require.Equal(t, []int64{1, 2}, partial[0].ProductIDs)
	require.InDelta(t, 0.6, partial[0].Confidence, 1e-9)
	require.Empty(t, groupByTier(groups, productstore.TierStructured))
}

func TestComputeSuspiciousPriceSpread(t *testing.T) {
	groups := Compute([]productstore.Product{
		// Looks like a deposit listing matched against full price.
		{ID: 1, Catalog: "figurepresso", Price: 40000, JANCode: "4571234567890"},
		{ID: 2, Catalog: "comicsart", Price: 198000, JANCode: "4571234567890"},
	})
	require.Len(t, groups, 1)
	require.True(t, groups[0].Suspicious)
}

func TestNormalizeCharacter(t *testing.T) {
	require.Equal(t, "호두", NormalizeCharacter("  호두  "))
	require.Equal(t, "호두", NormalizeCharacter("호두 GS-1234"))
	require.Equal(t, "호두", NormalizeCharacter("AB-99 호두"))
	require.Equal(t, "호두", NormalizeCharacter("넨도로이드 호두"))
	require.Equal(t, NormalizeCharacter("Hutao"), NormalizeCharacter("HUTAO"))
}

func TestMatcherRunReplacesGroups(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:matcher")
	defer cleanup()

	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer sqlite.Close()
	_, err = sqlite.Exec(db.Schema)
	require.NoError(t, err)

	store := productstore.NewStore(sqlite)
	ctx := context.Background()
	seen := time.Unix(1_700_000_000, 0)

	var ids []int64
	for _, row := range []struct{ cat, cid string }{
		{"figurepresso", "1"}, {"comicsart", "2"},
	} {
		id, err := store.Upsert(ctx, productstore.UpsertObservation{
			Catalog: row.cat, CatalogID: row.cid, Name: "원신 호두 1/7",
			Price: 198000, Status: catalog.StatusAvailable, ObservedAt: seen,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, store.SetIdentityCode(ctx, ids[0], "figurepresso", "4571234567890"))
	require.NoError(t, store.SetIdentityCode(ctx, ids[1], "comicsart", "4571234567890"))

	m := NewMatcher(store)
	groups, err := m.Run(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	members, err := store.MatchGroupMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)

	// A rerun after state change replaces membership wholesale.
	_, err = sqlite.Exec(`UPDATE products SET jan_code = NULL`)
	require.NoError(t, err)
	groups, err = m.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, groups)

	members, err = store.MatchGroupMembers(ctx)
	require.NoError(t, err)
	require.Empty(t, members)
}

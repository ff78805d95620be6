package productstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/productstore/db"
	"github.com/moyedx3/figure-scrapper/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) Store {
	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	_, err = sqlite.Exec(db.Schema)
	require.NoError(t, err)
	return NewStore(sqlite)
}

func TestStore(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:productstore")
	defer cleanup()

	store := openTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	seen := time.Unix(1_700_000_000, 0)

	var aliceID int64
	{
		id, err := store.Upsert(ctx, UpsertObservation{
			Catalog:    "figurepresso",
			CatalogID:  "12345",
			Name:       "하츠네 미쿠 1/7 스케일 피규어",
			Price:      198000,
			Status:     catalog.StatusAvailable,
			Category:   "scale-figure",
			URL:        "https://figurepresso.com/product/x/12345/",
			ObservedAt: seen,
		})
		require.NoError(t, err)
		require.NotZero(t, id)
		aliceID = id
	}
	{
		p, ok, err := store.Get(ctx, "figurepresso", "12345")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, aliceID, p.ID)
		require.Equal(t, int64(198000), p.Price)
		require.Equal(t, catalog.StatusAvailable, p.Status)
		require.Equal(t, ExtractionNone, p.ExtractionMethod)
		require.Equal(t, seen.Unix(), p.FirstSeenAt.Unix())
		require.True(t, p.SoldoutAt.IsZero())
	}

	// Upserting the same identity pair refreshes the scraped fields but
	// keeps the row id and first-seen timestamp.
	{
		later := seen.Add(time.Hour)
		id, err := store.Upsert(ctx, UpsertObservation{
			Catalog:    "figurepresso",
			CatalogID:  "12345",
			Name:       "하츠네 미쿠 1/7 스케일 피규어",
			Price:      178000,
			Status:     catalog.StatusAvailable,
			Category:   "scale-figure",
			URL:        "https://figurepresso.com/product/x/12345/",
			ObservedAt: later,
		})
		require.NoError(t, err)
		require.Equal(t, aliceID, id)

		p, ok, err := store.Get(ctx, "figurepresso", "12345")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(178000), p.Price)
		require.Equal(t, seen.Unix(), p.FirstSeenAt.Unix())
		require.Equal(t, later.Unix(), p.LastCheckedAt.Unix())
	}

	{
		_, ok, err := store.Get(ctx, "figurepresso", "nope")
		require.NoError(t, err)
		require.False(t, ok)

		// The identity pair is scoped per catalog.
		_, ok, err = store.Get(ctx, "comicsart", "12345")
		require.NoError(t, err)
		require.False(t, ok)
	}

	{
		err := store.RecordChange(ctx, aliceID, ChangePrice, "198000", "178000", seen.Add(time.Hour))
		require.NoError(t, err)
		err = store.RecordPriceSample(ctx, aliceID, 198000, seen)
		require.NoError(t, err)
		err = store.RecordPriceSample(ctx, aliceID, 178000, seen.Add(time.Hour))
		require.NoError(t, err)

		events, err := store.ChangeEvents(ctx, aliceID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, ChangePrice, events[0].Kind)
		require.Equal(t, "198000", events[0].OldValue)

		samples, err := store.PriceSamples(ctx, aliceID)
		require.NoError(t, err)
		require.Len(t, samples, 2)
		require.Equal(t, int64(198000), samples[0].Price)
		require.Equal(t, int64(178000), samples[1].Price)
	}

	{
		err := store.SaveExtraction(ctx, aliceID, Attributes{
			Series:       "초속5센티미터",
			Character:    "하츠네 미쿠",
			Manufacturer: "굿스마일",
			Scale:        "1/7",
		}, ExtractionRules, 0.8)
		require.NoError(t, err)

		p, _, err := store.Get(ctx, "figurepresso", "12345")
		require.NoError(t, err)
		require.Equal(t, "하츠네 미쿠", p.CharacterName)
		require.Equal(t, "1/7", p.Scale)
		require.Equal(t, ExtractionRules, p.ExtractionMethod)
		require.InDelta(t, 0.8, p.ExtractionConfidence, 1e-9)
	}
}

func TestStoreSoldoutTimestamp(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:productstore")
	defer cleanup()

	store := openTestStore(t)
	ctx := context.Background()

	seen := time.Unix(1_700_000_000, 0)
	id, err := store.Upsert(ctx, UpsertObservation{
		Catalog:    "maniahouse",
		CatalogID:  "77",
		Name:       "넨도로이드 레무",
		Price:      52000,
		Status:     catalog.StatusSoldout,
		ObservedAt: seen,
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkSoldout(ctx, id, seen))
	// Observed soldout again later; the original timestamp must survive.
	require.NoError(t, store.MarkSoldout(ctx, id, seen.Add(24*time.Hour)))

	p, _, err := store.Get(ctx, "maniahouse", "77")
	require.NoError(t, err)
	require.Equal(t, seen.Unix(), p.SoldoutAt.Unix())
}

func TestStoreIdentityCode(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:productstore")
	defer cleanup()

	store := openTestStore(t)
	ctx := context.Background()

	seen := time.Unix(1_700_000_000, 0)
	first, err := store.Upsert(ctx, UpsertObservation{
		Catalog: "rabbits", CatalogID: "1", Name: "a", Price: 1000,
		Status: catalog.StatusAvailable, ObservedAt: seen,
	})
	require.NoError(t, err)
	second, err := store.Upsert(ctx, UpsertObservation{
		Catalog: "rabbits", CatalogID: "2", Name: "b", Price: 1000,
		Status: catalog.StatusAvailable, ObservedAt: seen,
	})
	require.NoError(t, err)
	elsewhere, err := store.Upsert(ctx, UpsertObservation{
		Catalog: "comicsart", CatalogID: "9", Name: "c", Price: 1000,
		Status: catalog.StatusAvailable, ObservedAt: seen,
	})
	require.NoError(t, err)

	require.NoError(t, store.SetIdentityCode(ctx, first, "rabbits", "4571234567890"))

	// Same code inside the same catalog is rejected and leaves the row bare.
	err = store.SetIdentityCode(ctx, second, "rabbits", "4571234567890")
	require.ErrorIs(t, err, ErrDuplicateCode)
	p, _, err := store.Get(ctx, "rabbits", "2")
	require.NoError(t, err)
	require.Empty(t, p.JANCode)

	// The same code across catalogs is exactly what matching relies on.
	require.NoError(t, store.SetIdentityCode(ctx, elsewhere, "comicsart", "4571234567890"))

	require.Error(t, store.SetIdentityCode(ctx, first, "rabbits", ""))
}

func TestStoreUnextracted(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:productstore")
	defer cleanup()

	store := openTestStore(t)
	ctx := context.Background()

	seen := time.Unix(1_700_000_000, 0)
	a, err := store.Upsert(ctx, UpsertObservation{
		Catalog: "ttabbaemall", CatalogID: "1", Name: "a", Price: 1000,
		Status: catalog.StatusAvailable, ObservedAt: seen,
	})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, UpsertObservation{
		Catalog: "ttabbaemall", CatalogID: "2", Name: "b", Price: 1000,
		Status: catalog.StatusAvailable, ObservedAt: seen,
	})
	require.NoError(t, err)

	require.NoError(t, store.SaveExtraction(ctx, a, Attributes{Character: "레무"}, ExtractionLLM, 0.85))

	pending, err := store.Unextracted(ctx, "ttabbaemall")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "2", pending[0].CatalogID)

	all, err := store.Unextracted(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStoreMatchGroups(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:productstore")
	defer cleanup()

	store := openTestStore(t)
	ctx := context.Background()

	seen := time.Unix(1_700_000_000, 0)
	var ids []int64
	for _, row := range []struct {
		cat, id string
		price   int64
	}{
		{"figurepresso", "10", 198000},
		{"comicsart", "20", 189000},
		{"maniahouse", "30", 410000},
	} {
		id, err := store.Upsert(ctx, UpsertObservation{
			Catalog: row.cat, CatalogID: row.id, Name: "x", Price: row.price,
			Status: catalog.StatusAvailable, ObservedAt: seen,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	err := store.ReplaceMatchGroups(ctx, []MatchGroup{
		{
			Key: "jan:4571234567890", Tier: TierExactCode, Confidence: 1.0,
			ProductIDs: []int64{ids[0], ids[1]},
		},
	})
	require.NoError(t, err)

	members, err := store.MatchGroupMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, TierExactCode, members[0].Tier)

	// A rerun replaces the previous grouping wholesale.
	err = store.ReplaceMatchGroups(ctx, []MatchGroup{
		{
			Key: "struct:abc", Tier: TierStructured, Confidence: 0.7, Suspicious: true,
			ProductIDs: []int64{ids[1], ids[2]},
		},
	})
	require.NoError(t, err)

	members, err = store.MatchGroupMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "struct:abc", members[0].GroupKey)
	require.True(t, members[0].Suspicious)
}

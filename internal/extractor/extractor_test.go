package extractor

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/internal/productstore/db"
	"github.com/moyedx3/figure-scrapper/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type stubClassifier struct {
	calls int
	attrs productstore.Attributes
	err   error
}

func (s *stubClassifier) Classify(ctx context.Context, req ClassifyRequest) (productstore.Attributes, error) {
	s.calls++
	return s.attrs, s.err
}

func setupStore(t *testing.T) productstore.Store {
	cleanup := telemetry.SetupForTesting(t, "test:extractor")
	t.Cleanup(cleanup)

	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	_, err = sqlite.Exec(db.Schema)
	require.NoError(t, err)
	return productstore.NewStore(sqlite)
}

func insertProduct(t *testing.T, store productstore.Store, catalogName, catalogID, name, url string) int64 {
	id, err := store.Upsert(context.Background(), productstore.UpsertObservation{
		Catalog:    catalogName,
		CatalogID:  catalogID,
		Name:       name,
		Price:      100000,
		Status:     catalog.StatusAvailable,
		URL:        url,
		ObservedAt: time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)
	return id
}

func TestExtractorRulesConfidentSkipsClassifier(t *testing.T) {
	store := setupStore(t)
	stub := &stubClassifier{}
	ext := New(store, stub, nil, DefaultThreshold)

	id := insertProduct(t, store, "figurepresso", "1",
		"[굿스마일컴퍼니] POP UP PARADE 귀멸의 칼날 카마도 탄지로", "")

	res := ext.ProcessNew(context.Background(), catalog.Catalog{Name: "figurepresso"}, []int64{id})
	require.Equal(t, 1, res.Extracted)
	require.Zero(t, stub.calls)

	p, _, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, productstore.ExtractionRules, p.ExtractionMethod)
	require.Equal(t, "귀멸의 칼날", p.Series)
	require.Equal(t, "카마도 탄지로", p.CharacterName)
}

func TestExtractorFallsBackToClassifier(t *testing.T) {
	store := setupStore(t)
	stub := &stubClassifier{attrs: productstore.Attributes{
		Series:    "명조",
		Character: "장리",
		Scale:     "1/7",
	}}
	ext := New(store, stub, nil, DefaultThreshold)

	id := insertProduct(t, store, "comicsart", "2", "수수께끼 한정 세트 XQ-9", "")

	res := ext.ProcessNew(context.Background(), catalog.Catalog{Name: "comicsart"}, []int64{id})
	require.Equal(t, 1, res.Extracted)
	require.Equal(t, 1, res.ViaClassifier)
	require.Equal(t, 1, stub.calls)

	p, _, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, productstore.ExtractionLLM, p.ExtractionMethod)
	require.Equal(t, "명조", p.Series)
	require.Equal(t, "장리", p.CharacterName)
	require.InDelta(t, 0.85, p.ExtractionConfidence, 1e-9)
}

func TestExtractorClassifierFailureDegradesToRules(t *testing.T) {
	store := setupStore(t)
	stub := &stubClassifier{err: fmt.Errorf("service unavailable")}
	ext := New(store, stub, nil, DefaultThreshold)

	id := insertProduct(t, store, "rabbits", "3", "수수께끼 한정 세트 XQ-9", "")

	res := ext.ProcessNew(context.Background(), catalog.Catalog{Name: "rabbits"}, []int64{id})
	require.Equal(t, 1, res.Extracted)
	require.Zero(t, res.ViaClassifier)

	p, _, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, productstore.ExtractionRules, p.ExtractionMethod)
}

func TestExtractorNilClassifierNeverBlocks(t *testing.T) {
	store := setupStore(t)
	ext := New(store, nil, nil, DefaultThreshold)

	id := insertProduct(t, store, "rabbits", "4", "수수께끼 한정 세트 XQ-9", "")

	res := ext.ProcessNew(context.Background(), catalog.Catalog{Name: "rabbits"}, []int64{id})
	require.Equal(t, 1, res.Extracted)

	// The stored confidence is exactly what the rules produced.
	p, _, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, productstore.ExtractionRules, p.ExtractionMethod)
	_, want := ExtractWithRules("수수께끼 한정 세트 XQ-9", "")
	require.InDelta(t, want, p.ExtractionConfidence, 1e-9)
}

func detailPage(jan string) []byte {
	return []byte(`<html><body><table>
		<tr><th>제조사</th><td>굿스마일컴퍼니</td></tr>
		<tr><th>JAN코드</th><td>` + jan + `</td></tr>
		<tr><th>크기</th><td>약 240mm</td></tr>
	</table></body></html>`)
}

func ttabbaemallRules() catalog.Catalog {
	cat, _ := catalog.ByName("ttabbaemall")
	return cat
}

func TestExtractorDetailPageCodeCapture(t *testing.T) {
	store := setupStore(t)
	cat := ttabbaemallRules()

	var fetched []string
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		fetched = append(fetched, url)
		return detailPage("4571234567890"), nil
	}
	ext := New(store, nil, fetch, DefaultThreshold)

	id := insertProduct(t, store, cat.Name, "5", "수수께끼 한정 세트 XQ-9",
		"https://ttabbaemall.example/product/x/5/")

	res := ext.ProcessNew(context.Background(), cat, []int64{id})
	require.Equal(t, 1, res.Extracted)
	require.Equal(t, 1, res.CodesPersisted)
	// One item, one fetch.
	require.Len(t, fetched, 1)

	p, _, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "4571234567890", p.JANCode)
	require.Equal(t, "약 240mm", p.Size)
}

func TestExtractorRejectsDuplicateCodeInCatalog(t *testing.T) {
	store := setupStore(t)
	cat := ttabbaemallRules()

	// Upstream cache serves the same detail page for both items.
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return detailPage("4571234567890"), nil
	}
	ext := New(store, nil, fetch, DefaultThreshold)

	a := insertProduct(t, store, cat.Name, "10", "상품 하나", "https://ttabbaemall.example/product/x/10/")
	b := insertProduct(t, store, cat.Name, "11", "상품 둘", "https://ttabbaemall.example/product/x/11/")

	res := ext.ProcessNew(context.Background(), cat, []int64{a, b})
	require.Equal(t, 1, res.CodesPersisted)
	require.Equal(t, 1, res.CodesRejected)

	pb, _, err := store.GetByID(context.Background(), b)
	require.NoError(t, err)
	require.Empty(t, pb.JANCode)
}

func TestExtractorBackfillCodes(t *testing.T) {
	store := setupStore(t)
	cat := ttabbaemallRules()

	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return detailPage("4902312345678"), nil
	}
	ext := New(store, nil, fetch, DefaultThreshold)

	insertProduct(t, store, cat.Name, "20", "상품", "https://ttabbaemall.example/product/x/20/")

	res, err := ext.BackfillCodes(context.Background(), cat)
	require.NoError(t, err)
	require.Equal(t, 1, res.CodesPersisted)

	p, _, err := store.Get(context.Background(), cat.Name, "20")
	require.NoError(t, err)
	require.Equal(t, "4902312345678", p.JANCode)
}

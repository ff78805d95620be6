package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/detector"
	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/internal/productstore/db"
	"github.com/moyedx3/figure-scrapper/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeFetcher struct {
	// body served for listing page 1; page 2 and beyond serve an empty list
	body string
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(url, "page=1") {
		return []byte(f.body), nil
	}
	return []byte(`<html><body><ul class="prdList"></ul></body></html>`), nil
}

type captureSink struct {
	changes []detector.Change
}

func (c *captureSink) EmitChange(ctx context.Context, change detector.Change) {
	c.changes = append(c.changes, change)
}

func testCatalog(name string) catalog.Catalog {
	return catalog.Catalog{
		Name:    name,
		BaseURL: "https://" + name + ".example",
		Categories: map[string]string{
			"all": "/product/list.html?cate_no=1",
		},
		Rules: catalog.Rules{
			ItemSelectors:     []string{"ul.prdList li[id^='anchorBoxId_']"},
			NameSelectors:     []string{"p.name a"},
			NameMode:          catalog.NameDirectText,
			PriceFromDataAttr: true,
		},
	}
}

func listing(items ...string) string {
	return `<html><body><ul class="prdList">` + strings.Join(items, "") + `</ul></body></html>`
}

func listingItem(id, name string, price int) string {
	return fmt.Sprintf(
		`<li id="anchorBoxId_%s" data-price="^%d">
			<p class="name"><a href="/product/detail.html?product_no=%s">%s</a></p>
		</li>`, id, price, id, name)
}

func newTestStore(t *testing.T) productstore.Store {
	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	_, err = sqlite.Exec(db.Schema)
	require.NoError(t, err)
	return productstore.NewStore(sqlite)
}

func TestPipelineCycle(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:pipeline")
	defer cleanup()

	store := newTestStore(t)
	sink := &captureSink{}

	body := listing(
		listingItem("1", "원신 호두 1/7 스케일 피규어", 198000),
		listingItem("2", "넨도로이드 레무", 52000),
	)
	p := New(store, Options{
		Catalogs:   []catalog.Catalog{testCatalog("shopa")},
		NewFetcher: func(catalog.Catalog) Fetcher { return fakeFetcher{body: body} },
		Sink:       sink,
		MaxPages:   5,
	})

	summary := p.Cycle(context.Background())
	require.Len(t, summary.Catalogs, 1)
	cs := summary.Catalogs[0]
	require.False(t, cs.Failed)
	require.Equal(t, 2, cs.Items)
	require.Equal(t, 2, cs.New)
	require.Equal(t, 2, cs.Extracted)
	require.Len(t, sink.changes, 2)
	require.Equal(t, productstore.ChangeNew, sink.changes[0].Kind)

	// Products landed in the store with extraction applied.
	prod, ok, err := store.Get(context.Background(), "shopa", "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "원신", prod.Series)
	require.NotEqual(t, productstore.ExtractionNone, prod.ExtractionMethod)

	// A second identical cycle emits nothing new.
	sink.changes = nil
	summary = p.Cycle(context.Background())
	require.Zero(t, summary.Catalogs[0].New)
	require.Empty(t, sink.changes)
}

func TestPipelineCatalogFailureIsolated(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:pipeline")
	defer cleanup()

	store := newTestStore(t)
	body := listing(listingItem("9", "figma 미쿠", 98000))
	fetchers := map[string]Fetcher{
		"deadshop": fakeFetcher{err: fmt.Errorf("connection refused")},
		"liveshop": fakeFetcher{body: body},
	}
	p := New(store, Options{
		Catalogs:   []catalog.Catalog{testCatalog("deadshop"), testCatalog("liveshop")},
		NewFetcher: func(cat catalog.Catalog) Fetcher { return fetchers[cat.Name] },
	})

	summary := p.Cycle(context.Background())
	require.Len(t, summary.Catalogs, 2)
	require.Equal(t, 1, summary.Failed())

	require.True(t, summary.Catalogs[0].Failed)
	require.False(t, summary.Catalogs[1].Failed)
	require.Equal(t, 1, summary.Catalogs[1].New)

	// The healthy catalog's items were stored despite the dead one.
	_, ok, err := store.Get(context.Background(), "liveshop", "9")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPipelineCycleFeedsQueueSink(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:pipeline")
	defer cleanup()

	store := newTestStore(t)
	queue := NewQueueSink(8)

	body := listing(listingItem("1", "원신 호두 1/7 스케일 피규어", 198000))
	p := New(store, Options{
		Catalogs:   []catalog.Catalog{testCatalog("shopq")},
		NewFetcher: func(catalog.Catalog) Fetcher { return fakeFetcher{body: body} },
		Sink:       queue,
	})

	p.Cycle(context.Background())

	// The cycle's outward changes wait in the queue for a dispatcher.
	drained := queue.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, productstore.ChangeNew, drained[0].Kind)
	require.Equal(t, "1", drained[0].CatalogID)
	require.Empty(t, queue.Drain())
}

func TestQueueSinkDropsWhenFull(t *testing.T) {
	sink := NewQueueSink(2)
	for i := 0; i < 5; i++ {
		sink.EmitChange(context.Background(), detector.Change{CatalogID: fmt.Sprint(i)})
	}
	drained := sink.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "0", drained[0].CatalogID)
}

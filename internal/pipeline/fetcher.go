package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/moyedx3/figure-scrapper/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher retrieves raw markup. The rest of the system never touches
// connections, headers or retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RestyFetcher is the default Fetcher: one resty client per catalog with a
// rate limiter spacing out successive requests. The spacing doubles as the
// anti-cache delay between detail fetches; upstream CDNs have been seen
// serving one item's page for the next request when hit back to back.
type RestyFetcher struct {
	http    *resty.Client
	limiter *rate.Limiter
}

type FetcherOptions struct {
	// MinDelay is the minimum gap between two requests to the same catalog.
	MinDelay  time.Duration
	Timeout   time.Duration
	UserAgent string
}

func NewRestyFetcher(opts FetcherOptions) *RestyFetcher {
	if opts.MinDelay <= 0 {
		opts.MinDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(opts.MinDelay)

	restyutil.InstrumentClient(client, "pipeline/fetcher/http")

	return &RestyFetcher{
		http:    client,
		limiter: rate.NewLimiter(rate.Every(opts.MinDelay), 1),
	}
}

func (f *RestyFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch %s: status %s", url, res.Status())
	}
	return res.Body(), nil
}

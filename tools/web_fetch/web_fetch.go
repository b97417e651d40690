package web_fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/static"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	ChromedpFetcherType FetcherType = "chromedp"
	HTTPFetcherType     FetcherType = "http"
)

type Options struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
	// HTTPClient is used by the http fetcher; nil means http.DefaultClient.
	HTTPClient *http.Client
}

func NewWebFetcher(fetcherType FetcherType, opts Options) (WebFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = MaxCharsDefault
	}

	switch fetcherType {
	case ChromedpFetcherType:
		return chromedp.Fetch{Timeout: opts.Timeout, MaxChars: opts.MaxChars, UserAgent: opts.UserAgent}, nil
	case HTTPFetcherType:
		return static.Fetch{Client: opts.HTTPClient, Timeout: opts.Timeout, MaxChars: opts.MaxChars, UserAgent: opts.UserAgent}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type %q", fetcherType)
	}
}

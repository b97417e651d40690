package web_search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/researcher/internal/httpclient"
	"github.com/mohammad-safakhou/researcher/tools/web_search/brave"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/serper"
)

// ErrSearch wraps every failure returned by Searcher.Search.
var ErrSearch = errors.New("search failed")

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type ProviderOptions struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

func NewWebSearcher(provider Provider, opts ProviderOptions) (WebSearcher, error) {
	client := httpclient.New(opts.Timeout, opts.Retries, 0)
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: opts.APIKey, Endpoint: opts.Endpoint, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: opts.APIKey, Endpoint: opts.Endpoint, Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// Cache stores the URLs found for a query.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, urls []string, ttl time.Duration) error
}

// Searcher turns a WebSearcher into the query -> URLs lookup the research
// agent consumes, with an optional result cache.
type Searcher struct {
	provider   WebSearcher
	name       Provider
	maxResults int
	cache      Cache
	cacheTTL   time.Duration
	logger     *zap.SugaredLogger
}

type SearcherOptions struct {
	Provider   WebSearcher
	Name       Provider
	MaxResults int
	Cache      Cache
	CacheTTL   time.Duration
	Logger     *zap.SugaredLogger
}

func NewSearcher(opts SearcherOptions) *Searcher {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Searcher{
		provider:   opts.Provider,
		name:       opts.Name,
		maxResults: opts.MaxResults,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		logger:     opts.Logger,
	}
}

// Search returns the result URLs for query in rank order. Cache failures are
// logged and never fail the search.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrSearch)
	}

	key := s.cacheKey(query)
	if s.cache != nil {
		urls, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Errorf("search cache get %q: %v", key, err)
		case ok:
			s.logger.Debugf("search cache hit for %q (%d urls)", query, len(urls))
			return urls, nil
		}
	}

	results, err := s.provider.Discover(ctx, query, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSearch, s.name, err)
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	s.logger.Debugf("search %q returned %d urls", query, len(urls))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, urls, s.cacheTTL); err != nil {
			s.logger.Errorf("search cache set %q: %v", key, err)
		}
	}
	return urls, nil
}

func (s *Searcher) cacheKey(query string) string {
	return fmt.Sprintf("%s:%d:%s", s.name, s.maxResults, strings.ToLower(query))
}

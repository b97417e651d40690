package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/agent/researcher"
	"github.com/mohammad-safakhou/researcher/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/repository"
	"github.com/mohammad-safakhou/researcher/tools/crawler"
	"github.com/mohammad-safakhou/researcher/tools/embedding"
	"github.com/mohammad-safakhou/researcher/tools/knowledge"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
)

// needs selects the collaborators a command builds. Commands that do not
// touch a backend do not require its credentials.
type needs struct {
	retrieve bool // embeddings for the knowledge store
	infer    bool
	crawl    bool
	search   bool
	redis    bool
	rebuild  bool // warm the memory-only index from the research folder
}

type researchRuntime struct {
	cfg       *config.Config
	logger    *zap.Logger
	sugar     *zap.SugaredLogger
	registry  *prometheus.Registry
	telemetry *telemetry.Telemetry
	redis     *redis.Client
	store     *knowledge.Store
	agent     *researcher.Agent
}

func bootstrapRuntime(ctx context.Context, cfgPath string, n needs) (*researchRuntime, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.General)
	if err != nil {
		return nil, err
	}
	rt := &researchRuntime{cfg: cfg, logger: logger, sugar: logger.Sugar(), registry: prometheus.NewRegistry()}

	if err := rt.build(ctx, n); err != nil {
		rt.sugar.Errorf("Failed to start: %v", err)
		rt.Shutdown()
		return nil, err
	}
	return rt, nil
}

func (rt *researchRuntime) build(ctx context.Context, n needs) error {
	cfg := rt.cfg
	var err error
	if rt.telemetry, err = telemetry.New(rt.registry); err != nil {
		return err
	}

	if n.redis || cfg.Storage.Redis.Enabled {
		if n.redis && !cfg.Storage.Redis.Enabled {
			return errors.New("storage.redis.enabled must be true for this command")
		}
		if rt.redis, err = repository.NewRedisClient(ctx, cfg.Storage.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	storeOpts := knowledge.Options{
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
		TopK:         cfg.Knowledge.TopK,
		Logger:       rt.sugar.Named("knowledge"),
	}
	if n.retrieve {
		embedder, err := provider.NewEmbedder(cfg.Knowledge.Embeddings, cfg.LLM)
		if err != nil {
			return fmt.Errorf("embeddings: %w", err)
		}
		if embedder != nil {
			storeOpts.Embedder = embedding.NewEmbedding(embedder, embedding.DefaultBatchSize)
		}
	}
	if rt.store, err = knowledge.NewStore(storeOpts); err != nil {
		return err
	}

	opts := researcher.Options{
		Folder:    cfg.Research.Folder,
		Store:     rt.store,
		Logger:    rt.sugar.Named("researcher"),
		Telemetry: rt.telemetry,
	}
	if n.infer {
		inferer, err := provider.NewInferer(cfg.LLM)
		if err != nil {
			return fmt.Errorf("inferer: %w", err)
		}
		opts.Inferer = inferer
	}
	if n.crawl {
		c, err := rt.crawler()
		if err != nil {
			return err
		}
		opts.Crawler = c
	}
	if n.search {
		s, err := rt.searcher()
		if err != nil {
			return err
		}
		opts.Searcher = s
	}
	if rt.agent, err = researcher.New(opts); err != nil {
		return err
	}

	if n.rebuild && cfg.Knowledge.RebuildOnStartup {
		if err := rt.agent.Reindex(ctx); err != nil {
			var partial *researcher.ReindexError
			if !errors.As(err, &partial) {
				return err
			}
			rt.sugar.Errorf("Startup reindex incomplete: %v", err)
		}
	}
	return nil
}

func (rt *researchRuntime) crawler() (*crawler.Crawler, error) {
	cfg := rt.cfg.Crawler
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetcher), web_fetch.Options{
		Timeout:   cfg.Timeout,
		MaxChars:  cfg.MaxChars,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	return crawler.New(crawler.Options{
		Fetcher:     fetcher,
		Policy:      cfg.CrawlPolicy,
		Concurrency: cfg.Concurrency,
		Logger:      rt.sugar.Named("crawler"),
	}), nil
}

func (rt *researchRuntime) searcher() (*web_search.Searcher, error) {
	cfg := rt.cfg.Sources.WebSearch
	name := web_search.Provider(cfg.Provider)
	key := cfg.SerperAPIKey
	if name == web_search.BraveProvider {
		key = cfg.BraveAPIKey
	}
	if key == "" {
		return nil, fmt.Errorf("sources.web_search: no api key for %s", name)
	}
	backend, err := web_search.NewWebSearcher(name, web_search.ProviderOptions{
		APIKey:   key,
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
	})
	if err != nil {
		return nil, err
	}
	opts := web_search.SearcherOptions{
		Provider:   backend,
		Name:       name,
		MaxResults: cfg.MaxResults,
		CacheTTL:   cfg.CacheTTL,
		Logger:     rt.sugar.Named("search"),
	}
	if cache := repository.NewSearchCacheRepository(rt.redis); cache != nil {
		opts.Cache = cache
	}
	return web_search.NewSearcher(opts), nil
}

// Shutdown releases everything bootstrapRuntime opened.
func (rt *researchRuntime) Shutdown() {
	if rt == nil {
		return
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.sugar.Errorf("Failed to close knowledge store: %v", err)
		}
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	_ = rt.logger.Sync()
}

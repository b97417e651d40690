// Package crawler fetches batches of URLs into a research folder. Each call
// to Crawl writes one new sub-folder named by a random batch id, holding one
// document per successfully fetched page.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/knowledge"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
)

// ErrCrawl wraps every failure returned by Crawl.
var ErrCrawl = errors.New("crawl failed")

type Options struct {
	Fetcher     web_fetch.WebFetcher
	Policy      config.CrawlPolicyConfig
	Concurrency int
	Logger      *zap.SugaredLogger
}

type Crawler struct {
	fetcher     web_fetch.WebFetcher
	policy      config.CrawlPolicyConfig
	concurrency int
	logger      *zap.SugaredLogger

	now     func() time.Time
	batchID func() string
}

// Report summarises one Crawl call.
type Report struct {
	Folder  string
	Saved   int
	Failed  int
	Skipped int
}

func New(opts Options) *Crawler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Crawler{
		fetcher:     opts.Fetcher,
		policy:      opts.Policy.Normalize(),
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         time.Now,
		batchID:     uuid.NewString,
	}
}

// Crawl fetches urls into a new batch folder under destination.
// Invalid, duplicate and policy-refused URLs are skipped. Pages that fail to
// fetch are logged and skipped; Crawl fails only when nothing could be saved
// from a non-empty batch or when the folder cannot be written.
func (c *Crawler) Crawl(ctx context.Context, urls []string, destination string) error {
	_, err := c.CrawlReport(ctx, urls, destination)
	return err
}

// CrawlReport is Crawl with a summary of what happened.
func (c *Crawler) CrawlReport(ctx context.Context, urls []string, destination string) (Report, error) {
	var report Report
	targets := c.plan(urls, &report)
	if len(targets) == 0 {
		c.logger.Infof("crawl: nothing to fetch (%d urls skipped)", report.Skipped)
		return report, nil
	}

	folder := filepath.Join(destination, c.batchID())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return report, fmt.Errorf("%w: create batch folder: %v", ErrCrawl, err)
	}
	report.Folder = folder
	c.logger.Infof("crawl: fetching %d urls into %s", len(targets), folder)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, target := range targets {
		g.Go(func() error {
			res, err := c.fetcher.Exec(gctx, target)
			if err != nil {
				c.logger.Errorf("crawl: fetch %s: %v", target, err)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}
			if err := c.save(folder, target, res.Title, res.Text); err != nil {
				return err
			}
			mu.Lock()
			report.Saved++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.discard(&report)
		return report, fmt.Errorf("%w: %v", ErrCrawl, err)
	}

	if report.Saved == 0 {
		c.discard(&report)
		return report, fmt.Errorf("%w: all %d urls failed to fetch", ErrCrawl, len(targets))
	}
	c.logger.Infof("crawl: saved %d pages to %s (%d failed, %d skipped)", report.Saved, folder, report.Failed, report.Skipped)
	return report, nil
}

// discard removes a batch folder that must not reach the index.
func (c *Crawler) discard(report *Report) {
	if err := os.RemoveAll(report.Folder); err != nil {
		c.logger.Warnf("crawl: remove %s: %v", report.Folder, err)
	}
	report.Folder = ""
}

// plan canonicalises and filters the requested urls.
func (c *Crawler) plan(urls []string, report *Report) []string {
	unique, invalid := helpers.DedupeURLs(urls)
	for _, raw := range invalid {
		c.logger.Debugf("crawl: skipping invalid url %q", raw)
	}
	report.Skipped = len(urls) - len(unique)

	targets := make([]string, 0, len(unique))
	for _, u := range unique {
		if d := c.policy.Check(u); !d.Allowed {
			c.logger.Debugf("crawl: skipping %s: %s", u, d.Reason)
			report.Skipped++
			continue
		}
		targets = append(targets, u)
	}
	return targets
}

func (c *Crawler) save(folder, target, title, text string) error {
	fp, err := helpers.URLFingerprint(target)
	if err != nil {
		return err
	}
	if title == "" {
		title = c.fallbackTitle(target)
	}
	doc := knowledge.Document{
		Title:   title,
		URL:     target,
		Fetched: c.now(),
		Body:    text,
	}
	path := filepath.Join(folder, fp+".md")
	if err := os.WriteFile(path, []byte(doc.Render()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *Crawler) fallbackTitle(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	if name := c.policy.SourceName(u.Hostname()); name != "" {
		return name
	}
	return u.Hostname()
}

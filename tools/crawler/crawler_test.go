package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/tools/knowledge"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeFetcher struct {
	mu       sync.Mutex
	fetched  []string
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	onFetch  func(url string)
}

func (f *fakeFetcher) Exec(ctx context.Context, url string) (models.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(url)
	}
	if f.fail[url] {
		return models.Result{URL: url}, errors.New("connection reset")
	}
	return models.Result{URL: url, Title: "Page " + url, Text: "content of " + url}, nil
}

func newTestCrawler(f *fakeFetcher, policy config.CrawlPolicyConfig, concurrency int) *Crawler {
	c := New(Options{Fetcher: f, Policy: policy, Concurrency: concurrency})
	c.batchID = func() string { return "batch-1" }
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func readBatch(t *testing.T, dir string) map[string]knowledge.Document {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	docs := make(map[string]knowledge.Document)
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		doc := knowledge.ParseDocument(string(raw))
		docs[doc.URL] = doc
	}
	return docs
}

func TestCrawlWritesBatchFolder(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 2)

	report, err := c.CrawlReport(context.Background(), []string{
		"https://example.com/a",
		"https://example.com/a?utm_source=feed",
		"https://example.com/b",
		"not a url at all ::",
	}, dest)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if report.Folder != filepath.Join(dest, "batch-1") || report.Saved != 2 || report.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	docs := readBatch(t, report.Folder)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	doc := docs["https://example.com/a"]
	if doc.Title != "Page https://example.com/a" || doc.Body != "content of https://example.com/a" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if !doc.Fetched.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("fetched = %v", doc.Fetched)
	}
}

func TestCrawlAppliesPolicy(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{}
	c := newTestCrawler(f, config.CrawlPolicyConfig{Disallow: []string{"blocked.com"}}, 1)

	report, err := c.CrawlReport(context.Background(), []string{"https://blocked.com/x", "https://ok.com/y"}, dest)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(f.fetched) != 1 || f.fetched[0] != "https://ok.com/y" {
		t.Fatalf("fetched = %v", f.fetched)
	}
	if report.Skipped != 1 {
		t.Fatalf("skipped = %d", report.Skipped)
	}
}

func TestCrawlEmptyBatchIsNoop(t *testing.T) {
	dest := t.TempDir()
	c := newTestCrawler(&fakeFetcher{}, config.CrawlPolicyConfig{}, 1)
	if err := c.Crawl(context.Background(), nil, dest); err != nil {
		t.Fatalf("Crawl(nil): %v", err)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Fatalf("empty crawl created %d entries", len(entries))
	}
}

func TestCrawlPartialFailure(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{fail: map[string]bool{"https://example.com/down": true}}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 2)

	report, err := c.CrawlReport(context.Background(), []string{"https://example.com/down", "https://example.com/up"}, dest)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if report.Saved != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCrawlAllFailed(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{fail: map[string]bool{"https://example.com/down": true}}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 1)

	err := c.Crawl(context.Background(), []string{"https://example.com/down"}, dest)
	if !errors.Is(err, ErrCrawl) || !strings.Contains(err.Error(), "all 1 urls failed") {
		t.Fatalf("expected ErrCrawl, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dest, "batch-1")); !os.IsNotExist(statErr) {
		t.Fatalf("failed batch folder left behind: %v", statErr)
	}
}

func TestCrawlUnwritableDestination(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newTestCrawler(&fakeFetcher{}, config.CrawlPolicyConfig{}, 1)
	if err := c.Crawl(context.Background(), []string{"https://example.com/"}, file); !errors.Is(err, ErrCrawl) {
		t.Fatalf("expected ErrCrawl, got %v", err)
	}
}

func TestCrawlBoundsConcurrency(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{delay: 10 * time.Millisecond}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 3)

	var urls []string
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		urls = append(urls, "https://example.com/"+p)
	}
	if err := c.Crawl(context.Background(), urls, dest); err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if peak := f.peak.Load(); peak > 3 {
		t.Fatalf("concurrency exceeded limit: %d", peak)
	}
}

func TestCrawlCancelled(t *testing.T) {
	dest := t.TempDir()
	f := &fakeFetcher{delay: time.Second}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Crawl(ctx, []string{"https://example.com/a"}, dest); !errors.Is(err, ErrCrawl) {
		t.Fatalf("expected ErrCrawl, got %v", err)
	}
}

func TestFallbackTitleUsesAttribution(t *testing.T) {
	c := newTestCrawler(&fakeFetcher{}, config.CrawlPolicyConfig{Attribution: []config.SourceAttribution{{Host: "example.com", Name: "Example Daily"}}}, 1)
	if got := c.fallbackTitle("https://news.example.com/x"); got != "Example Daily" {
		t.Fatalf("fallbackTitle = %q", got)
	}
	if got := c.fallbackTitle("https://other.org/x"); got != "other.org" {
		t.Fatalf("fallbackTitle = %q", got)
	}
}

func TestCrawlCancelledRemovesPartialBatch(t *testing.T) {
	dest := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	f := &fakeFetcher{onFetch: func(string) { once.Do(cancel) }}
	c := newTestCrawler(f, config.CrawlPolicyConfig{}, 1)

	report, err := c.CrawlReport(ctx, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, dest)
	if !errors.Is(err, ErrCrawl) {
		t.Fatalf("expected ErrCrawl, got %v", err)
	}
	if report.Folder != "" {
		t.Fatalf("expected no folder in report, got %q", report.Folder)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected partial batch removed, found %d entries", len(entries))
	}
}

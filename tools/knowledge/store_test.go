package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/researcher/tools/embedding"
)

func writeDoc(t *testing.T, dir, name string, doc Document) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc.Render()), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func seedFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDoc(t, dir, "sched.md", Document{
		Title: "Go scheduler",
		URL:   "https://example.com/scheduler",
		Body:  "The goroutine scheduler multiplexes goroutines onto OS threads using work stealing.",
	})
	writeDoc(t, dir, "gc.md", Document{
		Title: "Garbage collector",
		URL:   "https://example.com/gc",
		Body:  "The concurrent mark and sweep collector reduces pause times for heap allocations.",
	})
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := NewStore(opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreIndexAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{ChunkSize: 200, TopK: 2})
	dir := seedFolder(t)

	receipt, err := s.Index(ctx, dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if receipt.Files != 2 || receipt.Chunks != 2 || receipt.Folder != filepath.Clean(dir) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	got, err := s.RetrieveContext(ctx, "goroutine scheduler")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if !strings.HasPrefix(got, "[1] Go scheduler (https://example.com/scheduler)\n") {
		t.Fatalf("scheduler doc not ranked first:\n%s", got)
	}
	if !strings.Contains(got, "work stealing") {
		t.Fatalf("context missing chunk text:\n%s", got)
	}
}

func TestStoreReindexReplacesFolder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{ChunkSize: 200})
	dir := seedFolder(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Index(ctx, dir); err != nil {
			t.Fatalf("Index #%d: %v", i, err)
		}
	}
	folders, chunks := s.Stats()
	if folders != 1 || chunks != 2 {
		t.Fatalf("repeated indexing duplicated content: folders=%d chunks=%d", folders, chunks)
	}

	if err := os.Remove(filepath.Join(dir, "gc.md")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Index(ctx, dir); err != nil {
		t.Fatalf("Index after removal: %v", err)
	}
	hits, err := s.Search(ctx, "collector", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("removed document still retrievable: %+v", hits)
	}
}

func TestStoreIndexSkipsSubdirectories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, nested, "deep.md", Document{Title: "Deep", Body: "nested content"})

	receipt, err := s.Index(ctx, dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if receipt.Files != 0 || receipt.Chunks != 0 {
		t.Fatalf("subdirectory content indexed: %+v", receipt)
	}
}

func TestStoreIndexMissingFolder(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.Index(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestStoreRetrieveEmpty(t *testing.T) {
	s := newTestStore(t, Options{})
	got, err := s.RetrieveContext(context.Background(), "anything")
	if err != nil || got != "" {
		t.Fatalf("RetrieveContext on empty store = %q, %v", got, err)
	}
}

// keywordEmbedder maps texts onto two axes: scheduling and memory.
type keywordEmbedder struct {
	failOn string
}

func (k keywordEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if k.failOn != "" && strings.Contains(t, k.failOn) {
			return nil, errors.New("embedding backend down")
		}
		lower := strings.ToLower(t)
		var v [2]float32
		if strings.Contains(lower, "thread") || strings.Contains(lower, "goroutine") {
			v[0] = 1
		}
		if strings.Contains(lower, "memory") || strings.Contains(lower, "heap") {
			v[1] = 1
		}
		out[i] = v[:]
	}
	return out, nil
}

func TestStoreHybridRetrieval(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{Embedder: embedding.NewEmbedding(keywordEmbedder{}, 0), TopK: 1})
	if _, err := s.Index(ctx, seedFolder(t)); err != nil {
		t.Fatalf("Index: %v", err)
	}
	// no lexical overlap with either document; the vector leg decides
	hits, err := s.Search(ctx, "memory", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].URL != "https://example.com/gc" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestStoreEmbeddingFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{Embedder: embedding.NewEmbedding(keywordEmbedder{failOn: "collector"}, 0)})
	if _, err := s.Index(ctx, seedFolder(t)); !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}

	s = newTestStore(t, Options{Embedder: embedding.NewEmbedding(keywordEmbedder{failOn: "explode"}, 0)})
	if _, err := s.Index(ctx, seedFolder(t)); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if _, err := s.RetrieveContext(ctx, "explode"); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestFuseRRF(t *testing.T) {
	a := []Hit{{ChunkID: "x", Rank: 1}, {ChunkID: "y", Rank: 2}}
	b := []Hit{{ChunkID: "y", Rank: 1}, {ChunkID: "z", Rank: 2}}
	got := fuseRRF(a, b, 2)
	if len(got) != 2 || got[0].ChunkID != "y" || got[0].Rank != 1 || got[1].ChunkID != "x" {
		t.Fatalf("unexpected fusion: %+v", got)
	}
}

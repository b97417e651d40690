package knowledge

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/mapping"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/researcher/tools/embedding"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// indexable lists the file extensions read from research folders.
var indexable = map[string]bool{".md": true, ".txt": true}

// Options configures a Store.
type Options struct {
	// Embedder enables the vector leg of retrieval; nil means BM25 only.
	Embedder     *embedding.Embedding
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Logger       *zap.SugaredLogger
}

// Store is an in-memory knowledge base over research folders. Full-text
// ranking comes from a bleve index, semantic ranking from chunk embeddings,
// and the two are fused with reciprocal rank fusion.
type Store struct {
	mu      sync.RWMutex
	bleve   bleve.Index
	chunks  map[string]Chunk
	vectors map[string]embedding.EmbedVec
	folders map[string][]string // folder -> chunk ids

	embedder     *embedding.Embedding
	chunkSize    int
	chunkOverlap int
	topK         int
	logger       *zap.SugaredLogger
}

// NewStore creates an empty store.
func NewStore(opts Options) (*Store, error) {
	index, err := bleve.NewMemOnly(chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Store{
		bleve:        index,
		chunks:       make(map[string]Chunk),
		vectors:      make(map[string]embedding.EmbedVec),
		folders:      make(map[string][]string),
		embedder:     opts.Embedder,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		topK:         opts.TopK,
		logger:       opts.Logger,
	}, nil
}

// Index reads the documents directly inside folder and replaces whatever
// was previously indexed for it. Subdirectories are not descended into.
func (s *Store) Index(ctx context.Context, folder string) (IndexReceipt, error) {
	folder = filepath.Clean(folder)
	receipt := IndexReceipt{Folder: folder}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return receipt, fmt.Errorf("%w: read %s: %v", ErrIndex, folder, err)
	}

	var chunks []Chunk
	for _, entry := range entries {
		if entry.IsDir() || !indexable[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return receipt, fmt.Errorf("%w: %v", ErrIndex, err)
		}
		path := filepath.Join(folder, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return receipt, fmt.Errorf("%w: read %s: %v", ErrIndex, path, err)
		}
		doc := ParseDocument(string(raw))
		receipt.Files++
		fileID := sha1Hex(path)
		for i, part := range makeChunks(doc.Body, s.chunkSize, s.chunkOverlap) {
			chunks = append(chunks, Chunk{
				ID:         fmt.Sprintf("%s#%03d", fileID, i),
				Folder:     folder,
				Path:       path,
				URL:        doc.URL,
				Title:      doc.Title,
				Text:       part,
				ChunkIndex: i,
			})
		}
	}

	var vecs [][]float32
	if s.embedder != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = embeddingText(c)
		}
		vecs, err = s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return receipt, fmt.Errorf("%w: embed %s: %v", ErrIndex, folder, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.bleve.NewBatch()
	stale := s.folders[folder]
	for _, id := range stale {
		batch.Delete(id)
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := batch.Index(c.ID, c); err != nil {
			return receipt, fmt.Errorf("%w: index chunk %s: %v", ErrIndex, c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	if err := s.bleve.Batch(batch); err != nil {
		return receipt, fmt.Errorf("%w: apply batch: %v", ErrIndex, err)
	}

	for _, id := range stale {
		delete(s.chunks, id)
		delete(s.vectors, id)
	}
	for i, c := range chunks {
		s.chunks[c.ID] = c
		if vecs != nil {
			s.vectors[c.ID] = embedding.EmbedVec{DocID: c.ID, Vec: vecs[i]}
		}
	}
	s.folders[folder] = ids

	receipt.Chunks = len(chunks)
	s.logger.Debugf("indexed folder %s: %d files, %d chunks (replaced %d)", folder, receipt.Files, receipt.Chunks, len(stale))
	return receipt, nil
}

// RetrieveContext renders the top hits for query as a numbered context block.
// An empty knowledge base yields an empty context.
func (s *Store) RetrieveContext(ctx context.Context, query string) (string, error) {
	hits, err := s.Search(ctx, query, s.topK)
	if err != nil {
		return "", err
	}
	return renderContext(hits), nil
}

// Search returns up to k fused hits for query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = s.topK
	}

	var qvec []float32
	if s.embedder != nil && s.hasVectors() {
		var err error
		qvec, err = s.embedder.EmbedOne(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: embed query: %v", ErrRetrieval, err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, err := s.bm25Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	if qvec == nil {
		return bm, nil
	}
	return fuseRRF(bm, s.vectorSearch(qvec, k), k), nil
}

// Stats reports the number of indexed folders and chunks.
func (s *Store) Stats() (folders, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.folders), len(s.chunks)
}

// Close releases the bleve index.
func (s *Store) Close() error {
	return s.bleve.Close()
}

func (s *Store) hasVectors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors) > 0
}

func (s *Store) bm25Search(ctx context.Context, q string, k int) ([]Hit, error) {
	query := bleve.NewMatchQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := s.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for _, h := range res.Hits {
		c, ok := s.chunks[h.ID]
		if !ok {
			continue
		}
		out = append(out, hitFor(c, h.Score, len(out)+1))
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (s *Store) vectorSearch(q []float32, k int) []Hit {
	type scored struct {
		id    string
		score float64
	}
	scoreds := make([]scored, 0, len(s.vectors))
	for id, v := range s.vectors {
		scoreds = append(scoreds, scored{id: id, score: embedding.Cosine(q, v.Vec)})
	}
	sort.Slice(scoreds, func(i, j int) bool {
		if scoreds[i].score == scoreds[j].score {
			return scoreds[i].id < scoreds[j].id
		}
		return scoreds[i].score > scoreds[j].score
	})
	var out []Hit
	for _, sc := range scoreds {
		out = append(out, hitFor(s.chunks[sc.id], sc.score, len(out)+1))
		if len(out) >= k {
			break
		}
	}
	return out
}

func fuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		hit   Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.ChunkID]
			if !ok {
				x = &agg{hit: h}
				m[h.ChunkID] = x
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	items := make([]*agg, 0, len(m))
	for _, v := range m {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score == items[j].score {
			return items[i].hit.ChunkID < items[j].hit.ChunkID
		}
		return items[i].score > items[j].score
	})
	out := make([]Hit, 0, min(k, len(items)))
	for i := 0; i < min(k, len(items)); i++ {
		h := items[i].hit
		h.Score = items[i].score
		h.Rank = i + 1
		out = append(out, h)
	}
	return out
}

// chunkMapping indexes only the title and text of a chunk.
func chunkMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("text", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func hitFor(c Chunk, score float64, rank int) Hit {
	return Hit{ChunkID: c.ID, URL: c.URL, Title: c.Title, Text: c.Text, Score: score, Rank: rank}
}

func renderContext(hits []Hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]", i+1)
		if h.Title != "" {
			b.WriteString(" " + h.Title)
		}
		if h.URL != "" {
			fmt.Fprintf(&b, " (%s)", h.URL)
		}
		b.WriteString("\n")
		b.WriteString(h.Text)
	}
	return b.String()
}

func embeddingText(c Chunk) string {
	if c.Title == "" {
		return c.Text
	}
	return c.Title + "\n" + c.Text
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

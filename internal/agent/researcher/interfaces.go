package researcher

import (
	"context"

	"github.com/mohammad-safakhou/researcher/tools/knowledge"
)

// Crawler fetches urls and persists their content under destination.
type Crawler interface {
	Crawl(ctx context.Context, urls []string, destination string) error
}

// Searcher resolves a query to result URLs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// KnowledgeStore indexes research folders and retrieves context from them.
type KnowledgeStore interface {
	Index(ctx context.Context, folder string) (knowledge.IndexReceipt, error)
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// Inferer produces an answer from retrieved context and a problem statement.
type Inferer interface {
	Infer(ctx context.Context, retrieved, problem string) (string, error)
}

// Logger is the logging capability the agent needs. *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Errorf(template string, args ...any)
}

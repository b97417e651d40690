// Package researcher implements the research agent: it answers lifecycle
// messages from the orchestrator, grows a knowledge base from the web and
// answers problem statements from it.
package researcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/researcher/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/protocol"
)

// ErrNotConfigured is returned when an operation needs a collaborator the agent was built without.
var ErrNotConfigured = errors.New("collaborator not configured")

// OutcomeKind tells the caller what to do after a message was handled.
type OutcomeKind int

const (
	// OutcomeReply means Reply should be sent back to the sender.
	OutcomeReply OutcomeKind = iota + 1
	// OutcomeTerminate means the workflow is finished and the caller should stop.
	OutcomeTerminate
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReply:
		return "reply"
	case OutcomeTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Outcome is the result of handling one message.
type Outcome struct {
	Kind  OutcomeKind
	Reply *protocol.Acknowledgement
}

// Options wires an Agent. Store is required; Inferer, Crawler and Searcher
// are only needed by the operations that use them.
type Options struct {
	Folder    string
	Store     KnowledgeStore
	Inferer   Inferer
	Crawler   Crawler
	Searcher  Searcher
	Logger    Logger
	Telemetry *telemetry.Telemetry
}

// Agent is the research agent. It keeps no state between calls besides its
// collaborators and is not safe for concurrent use.
type Agent struct {
	folder    string
	store     KnowledgeStore
	inferer   Inferer
	crawler   Crawler
	searcher  Searcher
	logger    Logger
	telemetry *telemetry.Telemetry
}

// New creates an agent over the research folder opts.Folder.
func New(opts Options) (*Agent, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	opts.Logger.Infof("Initializing research agent (folder %s)", opts.Folder)
	switch {
	case opts.Folder == "":
		return nil, errors.New("research folder required")
	case opts.Store == nil:
		return nil, fmt.Errorf("knowledge store: %w", ErrNotConfigured)
	}
	a := &Agent{
		folder:    opts.Folder,
		store:     opts.Store,
		inferer:   opts.Inferer,
		crawler:   opts.Crawler,
		searcher:  opts.Searcher,
		logger:    opts.Logger,
		telemetry: opts.Telemetry,
	}
	opts.Logger.Infof("Completed initializing research agent")
	return a, nil
}

// Folder returns the research folder root.
func (a *Agent) Folder() string { return a.folder }

// HandleMessage parses raw and dispatches on its action. Lifecycle events
// are acknowledged back to their sender; solution-complete asks the caller
// to terminate. Parse errors are returned unchanged; any other action fails
// with an *UnknownActionError.
func (a *Agent) HandleMessage(ctx context.Context, raw string) (Outcome, error) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		a.logger.Errorf("Failed to parse message: %v", err)
		a.telemetry.RecordMessage("invalid", "error")
		return Outcome{}, err
	}
	a.logger.Debugf("Received %s from %s to %s", msg.RawAction, msg.From, msg.To)

	switch msg.Action {
	case protocol.ActionStepStarted, protocol.ActionStepCompleted:
		ack := protocol.NewAcknowledgement(msg, nil)
		a.telemetry.RecordMessage(msg.Action.String(), OutcomeReply.String())
		return Outcome{Kind: OutcomeReply, Reply: &ack}, nil
	case protocol.ActionSolutionComplete:
		a.logger.Infof("Solution complete, %s is done", msg.To)
		a.telemetry.RecordMessage(msg.Action.String(), OutcomeTerminate.String())
		return Outcome{Kind: OutcomeTerminate}, nil
	default:
		a.telemetry.RecordMessage(protocol.ActionUnknown.String(), "error")
		return Outcome{}, &UnknownActionError{Action: msg.RawAction}
	}
}

// Index crawls urls into the research folder, then reindexes the folder.
// A crawl failure aborts before anything is indexed.
func (a *Agent) Index(ctx context.Context, urls []string) (err error) {
	done := a.telemetry.Track(telemetry.OpIndex)
	defer func() { done(err) }()

	if a.crawler == nil {
		return fmt.Errorf("crawler: %w", ErrNotConfigured)
	}
	a.logger.Infof("Started indexing %d urls", len(urls))
	if err := a.crawler.Crawl(ctx, urls, a.folder); err != nil {
		a.logger.Errorf("Crawl failed: %v", err)
		return err
	}
	if err := a.Reindex(ctx); err != nil {
		return err
	}
	a.logger.Infof("Completed indexing %d urls", len(urls))
	return nil
}

// SearchAndIndex resolves query to URLs and indexes them. An empty result
// still runs Index.
func (a *Agent) SearchAndIndex(ctx context.Context, query string) (err error) {
	done := a.telemetry.Track(telemetry.OpSearchAndIndex)
	defer func() { done(err) }()

	if a.searcher == nil {
		return fmt.Errorf("searcher: %w", ErrNotConfigured)
	}
	a.logger.Infof("Started searching for %q", query)
	urls, err := a.searcher.Search(ctx, query)
	if err != nil {
		a.logger.Errorf("Search failed: %v", err)
		return err
	}
	a.logger.Infof("Completed searching for %q: %d urls", query, len(urls))
	return a.Index(ctx, urls)
}

// Infer retrieves context for problem and hands both to the inferer. The
// answer is returned as produced.
func (a *Agent) Infer(ctx context.Context, problem string) (answer string, err error) {
	done := a.telemetry.Track(telemetry.OpInfer)
	defer func() { done(err) }()

	if a.inferer == nil {
		return "", fmt.Errorf("inferer: %w", ErrNotConfigured)
	}
	retrieved, err := a.store.RetrieveContext(ctx, problem)
	if err != nil {
		a.logger.Errorf("Retrieval failed: %v", err)
		return "", err
	}
	a.logger.Debugf("Retrieved %d bytes of context", len(retrieved))
	answer, err = a.inferer.Infer(ctx, retrieved, problem)
	if err != nil {
		a.logger.Errorf("Inference failed: %v", err)
		return "", err
	}
	return answer, nil
}

// Reindex submits every directory below the research folder, at any depth,
// to the knowledge store exactly once. Files are not indexed individually.
// A missing research folder has nothing to index. Folders that fail are
// logged and skipped; the pass then returns a *ReindexError listing them.
func (a *Agent) Reindex(ctx context.Context) (err error) {
	done := a.telemetry.Track(telemetry.OpReindex)
	defer func() { done(err) }()

	a.logger.Infof("Started recursive reindex of %s", a.folder)
	root := filepath.Clean(a.folder)
	var (
		failures error
		indexed  int
	)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			a.logger.Errorf("Cannot read %s: %v", path, walkErr)
			failures = multierr.Append(failures, &FolderError{Folder: path, Err: walkErr})
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}

		a.logger.Debugf("Indexing folder %s", path)
		receipt, err := a.store.Index(ctx, path)
		a.telemetry.RecordFolder(err)
		if err != nil {
			a.logger.Errorf("Failed to index %s: %v", path, err)
			failures = multierr.Append(failures, &FolderError{Folder: path, Err: err})
			return nil
		}
		indexed++
		a.logger.Debugf("Indexed %s: %d files, %d chunks", path, receipt.Files, receipt.Chunks)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("reindex %s: %w", root, walkErr)
	}
	if failures != nil {
		return &ReindexError{Indexed: indexed, err: failures}
	}
	a.logger.Infof("Completed recursive reindex of %s: %d folders", a.folder, indexed)
	return nil
}

// Package worker connects the research agent to the Redis message streams.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/researcher/internal/agent/researcher"
	"github.com/mohammad-safakhou/researcher/internal/protocol"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
)

const (
	defaultBlock   = 5 * time.Second
	readBatch      = 16
	readRetryDelay = time.Second
	claimMinIdle   = time.Minute
)

// Handler handles one raw protocol message.
type Handler interface {
	HandleMessage(ctx context.Context, raw string) (researcher.Outcome, error)
}

// Source is the inbound side of the stream.
type Source interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
	Ack(ctx context.Context, stream string, ids ...string) error
}

// Sink is the outbound side of the stream.
type Sink interface {
	PublishMessage(ctx context.Context, stream, body string, opts ...streams.PublishOption) (string, error)
}

// Options configures a Processor.
type Options struct {
	Handler Handler
	Source  Source
	Sink    Sink
	Inbox   string
	Outbox  string
	Block   time.Duration
	Logger  *zap.SugaredLogger
}

// Processor feeds inbox messages to the handler and publishes its replies to
// the outbox until the workflow completes or the context is cancelled.
type Processor struct {
	handler Handler
	source  Source
	sink    Sink
	inbox   string
	outbox  string
	block   time.Duration
	logger  *zap.SugaredLogger
}

func NewProcessor(opts Options) *Processor {
	if opts.Block <= 0 {
		opts.Block = defaultBlock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Processor{
		handler: opts.Handler,
		source:  opts.Source,
		sink:    opts.Sink,
		inbox:   opts.Inbox,
		outbox:  opts.Outbox,
		block:   opts.Block,
		logger:  opts.Logger,
	}
}

// Start blocks until a solution-complete message arrives (returning nil) or
// ctx is cancelled. Entries left pending by a crashed consumer are handled
// first. Every entry is acknowledged once handled, even when handling fails.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Infof("Worker consuming %s, replying on %s", p.inbox, p.outbox)

	if done, err := p.resumePending(ctx); done || err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			p.logger.Infof("Worker stopping: %v", err)
			return err
		}
		msgs, err := p.source.Read(ctx, p.inbox, streams.WithBlock(p.block), streams.WithCount(readBatch))
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Errorf("Error reading %s: %v", p.inbox, err)
				_ = sleep(ctx, readRetryDelay)
			}
			continue
		}
		if p.process(ctx, msgs) {
			return nil
		}
	}
}

func (p *Processor) resumePending(ctx context.Context) (bool, error) {
	start := "0-0"
	for {
		msgs, next, err := p.source.AutoClaim(ctx, p.inbox, claimMinIdle, start, readBatch)
		if err != nil {
			p.logger.Errorf("Failed to reclaim pending entries: %v", err)
			return false, nil
		}
		if len(msgs) > 0 {
			p.logger.Infof("Reclaimed %d pending entries", len(msgs))
		}
		if p.process(ctx, msgs) {
			return true, nil
		}
		if next == "" || next == "0-0" {
			return false, ctx.Err()
		}
		start = next
	}
}

// process handles msgs in order and reports whether the workflow finished.
// Entries after a solution-complete message stay pending.
func (p *Processor) process(ctx context.Context, msgs []streams.Message) bool {
	for _, msg := range msgs {
		terminate := p.handle(ctx, msg)
		if err := p.source.Ack(ctx, p.inbox, msg.ID); err != nil {
			p.logger.Errorf("Failed to ack %s: %v", msg.ID, err)
		}
		if terminate {
			p.logger.Infof("Workflow complete, worker exiting")
			return true
		}
	}
	return false
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) bool {
	body, err := msg.Envelope.Body()
	if err != nil {
		p.logger.Errorf("Skipping entry %s: %v", msg.ID, err)
		return false
	}
	outcome, err := p.handler.HandleMessage(ctx, body)
	if err != nil {
		var unknown *researcher.UnknownActionError
		if errors.As(err, &unknown) {
			p.logger.Infof("Ignoring entry %s: %v", msg.ID, err)
		} else {
			p.logger.Errorf("Failed to handle entry %s: %v", msg.ID, err)
		}
		return false
	}

	switch outcome.Kind {
	case researcher.OutcomeReply:
		if outcome.Reply == nil {
			return false
		}
		id, err := p.sink.PublishMessage(ctx, p.outbox, protocol.Serialize(*outcome.Reply))
		if err != nil {
			p.logger.Errorf("Failed to publish reply to %s: %v", outcome.Reply.To, err)
			return false
		}
		p.logger.Debugf("Replied to %s as %s", outcome.Reply.To, id)
	case researcher.OutcomeTerminate:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

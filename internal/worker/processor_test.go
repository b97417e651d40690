package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/researcher/internal/agent/researcher"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/tools/knowledge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopStore struct{}

func (nopStore) Index(context.Context, string) (knowledge.IndexReceipt, error) {
	return knowledge.IndexReceipt{}, nil
}
func (nopStore) RetrieveContext(context.Context, string) (string, error) { return "", nil }

type nopInferer struct{}

func (nopInferer) Infer(context.Context, string, string) (string, error) { return "", nil }

// fakeSource serves scripted batches, then blocks until the context ends.
type fakeSource struct {
	mu      sync.Mutex
	pending []streams.Message
	batches [][]streams.Message
	readErr error
	acked   []string
}

func (f *fakeSource) Read(ctx context.Context, _ string, _ ...streams.ConsumerOption) ([]streams.Message, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSource) AutoClaim(context.Context, string, time.Duration, string, int64) ([]streams.Message, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.pending
	f.pending = nil
	return msgs, "0-0", nil
}

func (f *fakeSource) Ack(_ context.Context, _ string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

type published struct{ stream, body string }

type fakeSink struct {
	mu   sync.Mutex
	out  []published
	fail error
}

func (f *fakeSink) PublishMessage(_ context.Context, stream, body string, _ ...streams.PublishOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.out = append(f.out, published{stream, body})
	return "1-0", nil
}

func entry(t *testing.T, id, body string) streams.Message {
	t.Helper()
	env, err := streams.NewMessageEnvelope(body)
	if err != nil {
		t.Fatal(err)
	}
	env.EventID = id
	return streams.Message{ID: id, Envelope: env}
}

func newProcessor(t *testing.T, src *fakeSource, sink *fakeSink) *Processor {
	t.Helper()
	agent, err := researcher.New(researcher.Options{Folder: t.TempDir(), Store: nopStore{}, Inferer: nopInferer{}})
	if err != nil {
		t.Fatal(err)
	}
	return NewProcessor(Options{
		Handler: agent,
		Source:  src,
		Sink:    sink,
		Inbox:   "in",
		Outbox:  "out",
		Logger:  zaptest.NewLogger(t).Sugar(),
	})
}

func TestProcessorRepliesAndTerminates(t *testing.T) {
	src := &fakeSource{batches: [][]streams.Message{
		{entry(t, "1", "FROM: orchestrator\nTO: researcher\nACTION: step-started\nDETAILS:\n\nstep 1")},
		{
			entry(t, "2", "FROM: orchestrator\nTO: researcher\nACTION: solution-complete\nDETAILS:\n"),
			entry(t, "3", "FROM: orchestrator\nTO: researcher\nACTION: step-started\nDETAILS:\n"),
		},
	}}
	sink := &fakeSink{}
	if err := newProcessor(t, src, sink).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []published{{"out", "FROM: researcher\nTO: orchestrator\nACTION: acknowledge\nDETAILS:\n\n"}}
	if diff := cmp.Diff(want, sink.out, cmp.AllowUnexported(published{})); diff != "" {
		t.Fatalf("published (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2"}, src.acked); diff != "" {
		t.Fatalf("acked (-want +got):\n%s", diff)
	}
}

func TestProcessorSkipsBadMessages(t *testing.T) {
	src := &fakeSource{
		readErr: errors.New("connection reset"),
		batches: [][]streams.Message{{
			entry(t, "1", "not a message"),
			entry(t, "2", "FROM: o\nTO: r\nACTION: step-paused\nDETAILS:\n"),
			entry(t, "3", "FROM: o\nTO: r\nACTION: solution-complete\nDETAILS:\n"),
		}},
	}
	sink := &fakeSink{}
	if err := newProcessor(t, src, sink).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sink.out) != 0 {
		t.Fatalf("unexpected replies: %v", sink.out)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, src.acked); diff != "" {
		t.Fatalf("acked (-want +got):\n%s", diff)
	}
}

func TestProcessorPublishFailureStillAcks(t *testing.T) {
	src := &fakeSource{batches: [][]streams.Message{{
		entry(t, "1", "FROM: o\nTO: r\nACTION: step-completed\nDETAILS:\n"),
		entry(t, "2", "FROM: o\nTO: r\nACTION: solution-complete\nDETAILS:\n"),
	}}}
	sink := &fakeSink{fail: errors.New("redis down")}
	if err := newProcessor(t, src, sink).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, src.acked); diff != "" {
		t.Fatalf("acked (-want +got):\n%s", diff)
	}
}

func TestProcessorResumesPending(t *testing.T) {
	src := &fakeSource{pending: []streams.Message{
		entry(t, "0", "FROM: o\nTO: r\nACTION: solution-complete\nDETAILS:\n"),
	}}
	if err := newProcessor(t, src, &fakeSink{}).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if diff := cmp.Diff([]string{"0"}, src.acked); diff != "" {
		t.Fatalf("acked (-want +got):\n%s", diff)
	}
}

func TestProcessorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	p := newProcessor(t, &fakeSource{}, &fakeSink{})
	go func() { errc <- p.Start(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
}

package streams_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/testutil"
)

func TestPublishReadAck(t *testing.T) {
	client := testutil.StartRedis(t)
	ctx := context.Background()
	reg, err := streams.NewBaseRegistry()
	if err != nil {
		t.Fatal(err)
	}
	const stream, group = "researcher.inbox", "researcher"
	if err := streams.EnsureGroup(ctx, client, stream, group); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if err := streams.EnsureGroup(ctx, client, stream, group); err != nil {
		t.Fatalf("EnsureGroup twice: %v", err)
	}

	pub := streams.NewPublisher(client, reg)
	body := "FROM: orchestrator\nTO: researcher\nACTION: step-started\nDETAILS:\n\nplan"
	if _, err := pub.PublishMessage(ctx, stream, body); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	if _, err := pub.PublishMessage(ctx, stream, ""); err == nil {
		t.Fatal("expected empty body to be rejected")
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]any{"junk": "1"}}).Err(); err != nil {
		t.Fatal(err)
	}

	cons := streams.NewConsumer(client, reg, group, "worker-1", nil)
	msgs, err := cons.Read(ctx, stream, streams.WithBlock(time.Second), streams.WithCount(10))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	got, err := msgs[0].Envelope.Body()
	if err != nil || got != body {
		t.Fatalf("Body = %q, %v", got, err)
	}

	lag, err := cons.Lag(ctx, stream)
	if err != nil {
		t.Fatalf("Lag: %v", err)
	}
	if lag.Pending != 1 || lag.PendingByConsumer["worker-1"] != 1 || lag.Lag != 0 {
		t.Fatalf("unexpected lag after read: %+v", lag)
	}
	if err := cons.Ack(ctx, stream, msgs[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	lag, err = cons.Lag(ctx, stream)
	if err != nil {
		t.Fatalf("Lag: %v", err)
	}
	if lag.Pending != 0 {
		t.Fatalf("pending after ack = %d", lag.Pending)
	}
}

func TestAutoClaimTakesOverStaleEntries(t *testing.T) {
	client := testutil.StartRedis(t)
	ctx := context.Background()
	const stream, group = "researcher.inbox", "researcher"
	if err := streams.EnsureGroup(ctx, client, stream, group); err != nil {
		t.Fatal(err)
	}
	if _, err := streams.NewPublisher(client, nil).PublishMessage(ctx, stream, "msg"); err != nil {
		t.Fatal(err)
	}
	crashed := streams.NewConsumer(client, nil, group, "crashed", nil)
	if msgs, err := crashed.Read(ctx, stream, streams.WithBlock(time.Second)); err != nil || len(msgs) != 1 {
		t.Fatalf("Read = %v, %v", msgs, err)
	}

	rescuer := streams.NewConsumer(client, nil, group, "rescuer", nil)
	msgs, _, err := rescuer.AutoClaim(ctx, stream, 0, "0-0", 10)
	if err != nil {
		t.Fatalf("AutoClaim: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("claimed %d, want 1", len(msgs))
	}
}

package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Consumer reads envelopes from Redis streams as a member of a consumer group.
type Consumer struct {
	client   *redis.Client
	registry *SchemaRegistry
	group    string
	name     string
	logger   *zap.SugaredLogger
}

// ConsumerOption configures XREADGROUP.
type ConsumerOption func(*redis.XReadGroupArgs)

// WithBlock sets how long a read waits for new entries.
func WithBlock(d time.Duration) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if d > 0 {
			args.Block = d
		}
	}
}

// WithCount caps the number of entries returned by one read.
func WithCount(n int64) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if n > 0 {
			args.Count = n
		}
	}
}

// NewConsumer builds a consumer named name in group. Entries that fail to
// decode or validate are acknowledged, logged on logger and skipped.
func NewConsumer(client *redis.Client, registry *SchemaRegistry, group, name string, logger *zap.SugaredLogger) *Consumer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Consumer{client: client, registry: registry, group: group, name: name, logger: logger}
}

// EnsureGroup creates the consumer group, and the stream with it, if missing.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Message is a consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Read returns new entries of stream for this consumer. A read that times out
// returns no messages and no error.
func (c *Consumer) Read(ctx context.Context, stream string, opts ...ConsumerOption) ([]Message, error) {
	if err := c.check(stream); err != nil {
		return nil, err
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{stream, ">"},
	}
	for _, opt := range opts {
		opt(args)
	}

	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var out []Message
	for _, st := range res {
		for _, msg := range st.Messages {
			if decoded, ok := c.decode(ctx, stream, msg); ok {
				out = append(out, decoded)
			}
		}
	}
	return out, nil
}

// Ack acknowledges processed entries.
func (c *Consumer) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// AutoClaim takes over entries another consumer left pending for longer than
// minIdle. Pass the returned cursor as start to continue.
func (c *Consumer) AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	if err := c.check(stream); err != nil {
		return nil, "", err
	}
	args := &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}
	msgs, next, err := c.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim: %w", err)
	}
	var out []Message
	for _, msg := range msgs {
		if decoded, ok := c.decode(ctx, stream, msg); ok {
			out = append(out, decoded)
		}
	}
	return out, next, nil
}

// Lag reports the backlog of this consumer's group on stream.
func (c *Consumer) Lag(ctx context.Context, stream string) (LagMetrics, error) {
	return GroupLag(ctx, c.client, stream, c.group)
}

func (c *Consumer) check(stream string) error {
	if stream == "" {
		return fmt.Errorf("stream name is required")
	}
	if c.group == "" || c.name == "" {
		return fmt.Errorf("consumer group and name must be configured")
	}
	return nil
}

func (c *Consumer) decode(ctx context.Context, stream string, msg redis.XMessage) (Message, bool) {
	env, err := c.envelope(msg)
	if err != nil {
		c.logger.Errorf("Dropping entry %s of %s: %v", msg.ID, stream, err)
		if err := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); err != nil {
			c.logger.Errorf("Failed to ack dropped entry %s: %v", msg.ID, err)
		}
		return Message{}, false
	}
	return Message{ID: msg.ID, Envelope: env}, true
}

func (c *Consumer) envelope(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values["envelope"]
	if !ok {
		return Envelope{}, fmt.Errorf("no envelope field")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return Envelope{}, fmt.Errorf("unexpected envelope type %T", raw)
	}
	env, err := UnmarshalEnvelope(data)
	if err != nil {
		return Envelope{}, err
	}
	if c.registry != nil {
		if err := c.registry.Validate(env.EventType, env.PayloadVersion, env.Data); err != nil {
			return Envelope{}, err
		}
	}
	return env, nil
}

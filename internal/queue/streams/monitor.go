package streams

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LagMetrics is the backlog of a consumer group on one stream.
type LagMetrics struct {
	// Lag counts entries not yet delivered to the group; -1 when unknown.
	Lag int64
	// Pending counts delivered entries awaiting XACK.
	Pending int64
	// PendingByConsumer splits Pending by consumer name.
	PendingByConsumer map[string]int64
}

// GroupLag reads the backlog of group on stream.
func GroupLag(ctx context.Context, client *redis.Client, stream, group string) (LagMetrics, error) {
	if client == nil || stream == "" || group == "" {
		return LagMetrics{}, fmt.Errorf("client, stream and group are required")
	}

	infos, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xinfo groups: %w", err)
	}
	m := LagMetrics{Lag: -1}
	found := false
	for _, info := range infos {
		if info.Name == group {
			m.Lag = info.Lag
			found = true
			break
		}
	}
	if !found {
		return m, fmt.Errorf("group %s not found on %s", group, stream)
	}

	summary, err := client.XPending(ctx, stream, group).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return m, fmt.Errorf("xpending: %w", err)
	}
	if summary != nil {
		m.Pending = summary.Count
		m.PendingByConsumer = summary.Consumers
	}
	return m, nil
}

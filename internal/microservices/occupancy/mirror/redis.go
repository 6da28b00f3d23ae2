package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"table-occupancy/internal/domain"
	"table-occupancy/internal/occupancy"
)

// redisCommander is the part of *redis.Client the mirror uses.
type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisMirror copies every new snapshot to Redis so other processes serving
// the same tenant can read it, and announces the generation on a channel.
type RedisMirror struct {
	client redisCommander
	prefix string
	ttl    time.Duration
}

func NewRedisMirror(client redisCommander, prefix string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) Key(tenant domain.TenantID) string {
	return fmt.Sprintf("%s:%s", m.prefix, tenant)
}

func (m *RedisMirror) UpdatesChannel(tenant domain.TenantID) string {
	return m.Key(tenant) + ":updates"
}

func (m *RedisMirror) Publish(ctx context.Context, snap *occupancy.Snapshot) error {
	body, err := json.Marshal(domain.OccupancyResponse{
		TenantID:     snap.Tenant,
		Generation:   snap.Generation,
		ComputedAt:   snap.ComputedAt,
		Tables:       snap.Projections,
		LegacyStatus: snap.LegacyStatus,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.Key(snap.Tenant), body, m.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", m.Key(snap.Tenant), err)
	}
	gen := strconv.FormatUint(snap.Generation, 10)
	if err := m.client.Publish(ctx, m.UpdatesChannel(snap.Tenant), gen).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", m.UpdatesChannel(snap.Tenant), err)
	}
	return nil
}

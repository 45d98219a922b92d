package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KEY_HEALTH_STATUS_DEFAULT  = "health:status:default"
	KEY_HEALTH_STATUS_FALLBACK = "health:status:fallback"
	KEY_HEALTH_MONITOR_LOCK    = "health:monitor-lock"
	CH_HEALTH_NOTIFICATIONS    = "health:notifications"
)

type healthRedisRepository struct {
	db         *redis.Client
	instanceId string
}

func NewHealthRepository(db *redis.Client, instanceId string) *healthRedisRepository {
	return &healthRedisRepository{db: db, instanceId: instanceId}
}

// AcquireProbeLease takes the self-expiring probe lease. Only the holder runs
// the probe cycle; a crashed holder frees the fleet when the TTL lapses.
func (r *healthRedisRepository) AcquireProbeLease(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := r.db.SetNX(ctx, KEY_HEALTH_MONITOR_LOCK, r.instanceId, ttl).Result()
	if err != nil {
		slog.Error("[RP:Health:AcquireProbeLease] - Failed to acquire probe lease", "error", err)
		return false, err
	}
	return ok, nil
}

func boolToFlag(up bool) string {
	if up {
		return "1"
	}
	return "0"
}

// WriteStatuses stores both flags as one logical update. Writing the same
// state twice is harmless, which keeps repeated probes idempotent.
func (r *healthRedisRepository) WriteStatuses(ctx context.Context, defaultUp, fallbackUp bool) error {
	err := r.db.MSet(ctx,
		KEY_HEALTH_STATUS_DEFAULT, boolToFlag(defaultUp),
		KEY_HEALTH_STATUS_FALLBACK, boolToFlag(fallbackUp),
	).Err()
	if err != nil {
		slog.Error("[RP:Health:WriteStatuses] - Failed to write health statuses", "error", err)
	}
	return err
}

func (r *healthRedisRepository) PublishUpdate(ctx context.Context) error {
	err := r.db.Publish(ctx, CH_HEALTH_NOTIFICATIONS, "updated").Err()
	if err != nil {
		slog.Error("[RP:Health:PublishUpdate] - Failed to publish health notification", "error", err)
	}
	return err
}

// LoadStatuses reads both flags. A missing key reads as unavailable.
func (r *healthRedisRepository) LoadStatuses(ctx context.Context) (bool, bool, error) {
	values, err := r.db.MGet(ctx, KEY_HEALTH_STATUS_DEFAULT, KEY_HEALTH_STATUS_FALLBACK).Result()
	if err != nil {
		slog.Error("[RP:Health:LoadStatuses] - Failed to load health statuses", "error", err)
		return false, false, err
	}
	return values[0] == "1", values[1] == "1", nil
}

// SubscribeUpdates delivers one signal per health notification. The signal is
// coalescing: a slow receiver sees at most one pending update.
func (r *healthRedisRepository) SubscribeUpdates(ctx context.Context) <-chan struct{} {
	sub := r.db.Subscribe(ctx, CH_HEALTH_NOTIFICATIONS)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}

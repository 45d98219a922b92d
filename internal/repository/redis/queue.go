package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
)

const KEY_PROCESSING_QUEUE = "payments:processing-queue"

type queueRedisRepository struct {
	db *redis.Client
}

func NewQueueRepository(db *redis.Client) *queueRedisRepository {
	return &queueRedisRepository{db: db}
}

// Enqueue pushes at the head; pops happen at the tail, so draining is
// FIFO-ish. No strict ordering is promised under concurrent workers.
func (r *queueRedisRepository) Enqueue(ctx context.Context, payment *domain.QueuedPayment) error {
	b, err := msgpack.Marshal(payment)
	if err != nil {
		slog.Error("[RP:Queue:Enqueue] - Failed to marshal payment", "correlation_id", payment.CorrelationId, "error", err)
		return err
	}
	if err := r.db.LPush(ctx, KEY_PROCESSING_QUEUE, b).Err(); err != nil {
		slog.Error("[RP:Queue:Enqueue] - Failed to push payment to queue", "correlation_id", payment.CorrelationId, "error", err)
		return err
	}
	return nil
}

// PopWait blocks for up to timeout waiting for one item. A timeout is not an
// error; it returns (nil, nil) so the caller can loop as idle backoff.
func (r *queueRedisRepository) PopWait(ctx context.Context, timeout time.Duration) (*domain.QueuedPayment, error) {
	values, err := r.db.BRPop(ctx, timeout, KEY_PROCESSING_QUEUE).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Error("[RP:Queue:PopWait] - Failed to pop payment from queue", "error", err)
		return nil, err
	}

	return decodePayment([]byte(values[1]))
}

// PopBatch opportunistically drains up to max more items without blocking, to
// amortize round trips after a successful PopWait.
func (r *queueRedisRepository) PopBatch(ctx context.Context, max int) ([]*domain.QueuedPayment, error) {
	if max <= 0 {
		return nil, nil
	}

	values, err := r.db.RPopCount(ctx, KEY_PROCESSING_QUEUE, max).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Error("[RP:Queue:PopBatch] - Failed to batch-pop payments from queue", "error", err)
		return nil, err
	}

	payments := make([]*domain.QueuedPayment, 0, len(values))
	for _, v := range values {
		payment, err := decodePayment([]byte(v))
		if err != nil {
			continue
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func (r *queueRedisRepository) Depth(ctx context.Context) (int64, error) {
	return r.db.LLen(ctx, KEY_PROCESSING_QUEUE).Result()
}

func (r *queueRedisRepository) Purge(ctx context.Context) error {
	return r.db.Del(ctx, KEY_PROCESSING_QUEUE).Err()
}

func decodePayment(data []byte) (*domain.QueuedPayment, error) {
	var payment domain.QueuedPayment
	if err := msgpack.Unmarshal(data, &payment); err != nil {
		slog.Error("[RP:Queue:decodePayment] - Failed to unmarshal payment", "error", err)
		return nil, err
	}
	return &payment, nil
}

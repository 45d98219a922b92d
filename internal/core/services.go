package core

import (
	"context"
	"time"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
)

// HealthStore is the shared-store side of processor health: the flags every
// instance reads, the change-notification channel, and the lease that elects a
// single active prober.
type HealthStore interface {
	AcquireProbeLease(ctx context.Context, ttl time.Duration) (bool, error)
	WriteStatuses(ctx context.Context, defaultUp, fallbackUp bool) error
	PublishUpdate(ctx context.Context) error
	LoadStatuses(ctx context.Context) (defaultUp, fallbackUp bool, err error)
	SubscribeUpdates(ctx context.Context) <-chan struct{}
}

// HealthReader is the read side consumed by routing decisions. Implementations
// must be non-blocking and fail closed: unknown means unavailable.
type HealthReader interface {
	IsAvailable(p domain.Processor) bool
}

// PaymentQueue is the durable processing queue. PopWait returns (nil, nil)
// when the bounded wait elapses with nothing to pop.
type PaymentQueue interface {
	Enqueue(ctx context.Context, payment *domain.QueuedPayment) error
	PopWait(ctx context.Context, timeout time.Duration) (*domain.QueuedPayment, error)
	PopBatch(ctx context.Context, max int) ([]*domain.QueuedPayment, error)
	Depth(ctx context.Context) (int64, error)
	Purge(ctx context.Context) error
}

// SettlementLedger is the append-only per-processor record of what actually
// settled, queried by time range for reconciliation.
type SettlementLedger interface {
	Record(ctx context.Context, p domain.Processor, correlationId string, amountCents int64, settledAtMillis int64) error
	Summarize(ctx context.Context, from, to *time.Time) (*domain.Summary, error)
	Purge(ctx context.Context) error
}

// PaymentDispatcher executes one routing decision for a payment. It never
// reports failure to the caller; every outcome ends in a settlement or a
// re-queue.
type PaymentDispatcher interface {
	Dispatch(ctx context.Context, payment *domain.QueuedPayment)
}

// AsyncDispatcher is the fire-and-forget entry point used by ingestion.
type AsyncDispatcher interface {
	DispatchAsync(payment *domain.QueuedPayment)
}

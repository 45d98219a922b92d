package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/core"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
)

const (
	POP_WAIT_TIMEOUT  = 5 * time.Second
	UNAVAILABLE_DELAY = 100 * time.Millisecond
	ERROR_COOLDOWN    = 1 * time.Second
)

// QueueConsumer drains the durable processing queue with a fixed pool of
// workers and feeds every popped payment back through the dispatcher. Workers
// never terminate on a transient error; they log, cool down and resume.
type QueueConsumer struct {
	queue      core.PaymentQueue
	dispatcher core.PaymentDispatcher
	health     core.HealthReader

	workers   int
	batchSize int
	fanout    int

	popWaitTimeout   time.Duration
	unavailableDelay time.Duration
	cooldown         time.Duration
}

func NewQueueConsumer(queue core.PaymentQueue, dispatcher core.PaymentDispatcher, health core.HealthReader, workers, batchSize, fanout int) *QueueConsumer {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if fanout <= 0 {
		fanout = 8
	}
	return &QueueConsumer{
		queue:            queue,
		dispatcher:       dispatcher,
		health:           health,
		workers:          workers,
		batchSize:        batchSize,
		fanout:           fanout,
		popWaitTimeout:   POP_WAIT_TIMEOUT,
		unavailableDelay: UNAVAILABLE_DELAY,
		cooldown:         ERROR_COOLDOWN,
	}
}

func (c *QueueConsumer) Run(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i+1)
	}
}

func (c *QueueConsumer) worker(ctx context.Context, id int) {
	slog.Info("[Worker:Consumer] - Worker started", "worker_id", id)
	for {
		select {
		case <-ctx.Done():
			slog.Info("[Worker:Consumer] - Worker stopped", "worker_id", id)
			return
		default:
		}

		// With both routes down every pop would end in a re-queue; skip
		// the round trip and re-check shortly.
		if !c.health.IsAvailable(domain.ProcessorDefault) && !c.health.IsAvailable(domain.ProcessorFallback) {
			c.sleep(ctx, c.unavailableDelay)
			continue
		}

		c.drainOnce(ctx, id)
	}
}

// drainOnce performs one pop-and-process cycle. Panics are contained here so
// a poisoned payload cannot take the worker down.
func (c *QueueConsumer) drainOnce(ctx context.Context, id int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Worker:Consumer] - Recovered from panic, cooling down", "worker_id", id, "panic", r)
			c.sleep(ctx, c.cooldown)
		}
	}()

	payment, err := c.queue.PopWait(ctx, c.popWaitTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("[Worker:Consumer] - Queue pop failed, cooling down", "worker_id", id, "error", err)
		c.sleep(ctx, c.cooldown)
		return
	}
	if payment == nil {
		// Bounded wait elapsed with an empty queue; that is the idle
		// backoff, just loop again.
		return
	}

	batch := []*domain.QueuedPayment{payment}
	if more, err := c.queue.PopBatch(ctx, c.batchSize-1); err == nil {
		batch = append(batch, more...)
	}

	// Fan the batch out with bounded sub-concurrency and wait for all of it
	// before popping again, so a recovering processor is not flooded by
	// everything the queue accumulated.
	sem := make(chan struct{}, c.fanout)
	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(item *domain.QueuedPayment) {
			defer func() {
				<-sem
				wg.Done()
				if r := recover(); r != nil {
					slog.Error("[Worker:Consumer] - Recovered from panic in dispatch", "worker_id", id, "panic", r)
				}
			}()
			c.dispatcher.Dispatch(ctx, item)
		}(item)
	}
	wg.Wait()
}

func (c *QueueConsumer) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
)

const (
	KEY_LEDGER_HISTORY_PREFIX = "payments:history:"
	KEY_LEDGER_DATA_PREFIX    = "payments:data:"
)

func historyKey(p domain.Processor) string {
	return KEY_LEDGER_HISTORY_PREFIX + string(p)
}

func dataKey(p domain.Processor) string {
	return KEY_LEDGER_DATA_PREFIX + string(p)
}

type ledgerRedisRepository struct {
	db *redis.Client
}

func NewLedgerRepository(db *redis.Client) *ledgerRedisRepository {
	return &ledgerRedisRepository{db: db}
}

// Record appends one settlement: the correlation id goes into the processor's
// history sorted set keyed by settlement time, the amount into a hash keyed by
// correlation id. Writing the same correlation id again overwrites instead of
// adding, so an already-settled payment can never be counted twice.
func (r *ledgerRedisRepository) Record(ctx context.Context, p domain.Processor, correlationId string, amountCents int64, settledAtMillis int64) error {
	pipe := r.db.TxPipeline()
	pipe.ZAdd(ctx, historyKey(p), redis.Z{Score: float64(settledAtMillis), Member: correlationId})
	pipe.HSet(ctx, dataKey(p), correlationId, amountCents)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("[RP:Ledger:Record] - Failed to record settlement", "correlation_id", correlationId, "processor", p, "error", err)
		return err
	}
	return nil
}

// Summarize aggregates each processor's series independently and in parallel.
// Omitted bounds are open-ended; present bounds are inclusive.
func (r *ledgerRedisRepository) Summarize(ctx context.Context, from, to *time.Time) (*domain.Summary, error) {
	min := "-inf"
	if from != nil {
		min = fmt.Sprintf("%d", from.UnixMilli())
	}
	max := "+inf"
	if to != nil {
		max = fmt.Sprintf("%d", to.UnixMilli())
	}

	summary := &domain.Summary{}
	errs := make([]error, len(domain.Processors()))

	var wg sync.WaitGroup
	for idx, proc := range domain.Processors() {
		wg.Add(1)
		go func(idx int, proc domain.Processor) {
			defer wg.Done()
			item, err := r.summarizeProcessor(ctx, proc, min, max)
			if err != nil {
				errs[idx] = err
				return
			}
			*summary.Item(proc) = *item
		}(idx, proc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Zero-count items still need a concrete 0.00 amount.
	if summary.Default.TotalAmount.IsZero() {
		summary.Default.TotalAmount = domain.CentsToAmount(0)
	}
	if summary.Fallback.TotalAmount.IsZero() {
		summary.Fallback.TotalAmount = domain.CentsToAmount(0)
	}
	return summary, nil
}

func (r *ledgerRedisRepository) summarizeProcessor(ctx context.Context, p domain.Processor, min, max string) (*domain.SummaryItem, error) {
	ids, err := r.db.ZRangeByScore(ctx, historyKey(p), &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		slog.Error("[RP:Ledger:Summarize] - Failed to range settlement history", "processor", p, "error", err)
		return nil, err
	}

	item := &domain.SummaryItem{TotalRequests: int64(len(ids))}
	if len(ids) == 0 {
		item.TotalAmount = domain.CentsToAmount(0)
		return item, nil
	}

	amounts, err := r.db.HMGet(ctx, dataKey(p), ids...).Result()
	if err != nil {
		slog.Error("[RP:Ledger:Summarize] - Failed to fetch settlement amounts", "processor", p, "error", err)
		return nil, err
	}

	var totalCents int64
	for _, a := range amounts {
		if a == nil {
			continue
		}
		value, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("invalid type for settlement amount: %T", a)
		}
		cents, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid settlement amount %q: %w", value, err)
		}
		totalCents += cents
	}

	item.TotalAmount = domain.CentsToAmount(totalCents)
	return item, nil
}

func (r *ledgerRedisRepository) Purge(ctx context.Context) error {
	keys := make([]string, 0, 4)
	for _, proc := range domain.Processors() {
		keys = append(keys, historyKey(proc), dataKey(proc))
	}
	return r.db.Del(ctx, keys...).Err()
}

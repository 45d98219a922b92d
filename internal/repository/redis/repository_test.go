package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
)

// These tests exercise the real store contract (blocking pops, lease expiry,
// inclusive range bounds) and need a disposable Redis. Set TEST_REDIS_ADDR to
// run them; they flush the keys they touch.
func testClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping store integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis not reachable at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		keys := []string{KEY_PROCESSING_QUEUE, KEY_HEALTH_STATUS_DEFAULT, KEY_HEALTH_STATUS_FALLBACK, KEY_HEALTH_MONITOR_LOCK}
		for _, proc := range domain.Processors() {
			keys = append(keys, historyKey(proc), dataKey(proc))
		}
		client.Del(context.Background(), keys...)
		client.Close()
	})
	return client
}

func TestLedgerSummarizeTotals(t *testing.T) {
	r := NewLedgerRepository(testClient(t))
	ctx := context.Background()

	now := time.Now().UnixMilli()
	if err := r.Record(ctx, domain.ProcessorDefault, "id-1", 1000, now); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(ctx, domain.ProcessorDefault, "id-2", 2550, now+1); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(ctx, domain.ProcessorFallback, "id-3", 500, now+2); err != nil {
		t.Fatal(err)
	}

	summary, err := r.Summarize(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Default.TotalRequests != 2 {
		t.Errorf("default count = %d, want 2", summary.Default.TotalRequests)
	}
	if !summary.Default.TotalAmount.Equal(decimal.RequireFromString("35.50")) {
		t.Errorf("default amount = %s, want 35.50", summary.Default.TotalAmount)
	}
	if summary.Fallback.TotalRequests != 1 {
		t.Errorf("fallback count = %d, want 1", summary.Fallback.TotalRequests)
	}
	if !summary.Fallback.TotalAmount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("fallback amount = %s, want 5.00", summary.Fallback.TotalAmount)
	}
}

func TestLedgerRangeBoundaryInclusive(t *testing.T) {
	r := NewLedgerRepository(testClient(t))
	ctx := context.Background()

	settledAt := time.Now().UnixMilli()
	if err := r.Record(ctx, domain.ProcessorDefault, "id-1", 100, settledAt); err != nil {
		t.Fatal(err)
	}

	atBoundary := time.UnixMilli(settledAt)
	summary, err := r.Summarize(ctx, nil, &atBoundary)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Default.TotalRequests != 1 {
		t.Errorf("settlement at exactly 'to' must be included, count = %d", summary.Default.TotalRequests)
	}

	beforeBoundary := time.UnixMilli(settledAt - 1)
	summary, err = r.Summarize(ctx, nil, &beforeBoundary)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Default.TotalRequests != 0 {
		t.Errorf("settlement 1ms past 'to' must be excluded, count = %d", summary.Default.TotalRequests)
	}
}

func TestLedgerDuplicateSettlementNotDoubleCounted(t *testing.T) {
	r := NewLedgerRepository(testClient(t))
	ctx := context.Background()

	now := time.Now().UnixMilli()
	if err := r.Record(ctx, domain.ProcessorDefault, "id-1", 1990, now); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(ctx, domain.ProcessorDefault, "id-1", 1990, now+5); err != nil {
		t.Fatal(err)
	}

	summary, err := r.Summarize(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Default.TotalRequests != 1 {
		t.Errorf("same correlation id settled twice counted %d times", summary.Default.TotalRequests)
	}
	if !summary.Default.TotalAmount.Equal(decimal.RequireFromString("19.90")) {
		t.Errorf("amount = %s, want 19.90", summary.Default.TotalAmount)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	q := NewQueueRepository(testClient(t))
	ctx := context.Background()

	in := &domain.QueuedPayment{CorrelationId: "id-1", AmountCents: 1990, RetryCount: 2}
	if err := q.Enqueue(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := q.PopWait(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("expected a payment, queue was empty")
	}
	if *out != *in {
		t.Fatalf("payment changed across the queue: %+v != %+v", out, in)
	}

	// Empty queue: the bounded wait elapses without an error.
	out, err = q.PopWait(ctx, 50*time.Millisecond)
	if err != nil || out != nil {
		t.Fatalf("expected (nil, nil) on empty queue, got (%+v, %v)", out, err)
	}
}

func TestQueueBatchPopDrainsFIFO(t *testing.T) {
	q := NewQueueRepository(testClient(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, &domain.QueuedPayment{CorrelationId: id, AmountCents: 1}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := q.PopWait(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if first.CorrelationId != "a" {
		t.Errorf("expected oldest item first, got %s", first.CorrelationId)
	}

	rest, err := q.PopBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining items, got %d", len(rest))
	}

	depth, err := q.Depth(ctx)
	if err != nil || depth != 0 {
		t.Fatalf("expected empty queue, depth = %d (err %v)", depth, err)
	}
}

func TestProbeLeaseExcludesSecondHolder(t *testing.T) {
	client := testClient(t)
	first := NewHealthRepository(client, "instance-1")
	second := NewHealthRepository(client, "instance-2")
	ctx := context.Background()

	ok, err := first.AcquireProbeLease(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}

	ok, err = second.AcquireProbeLease(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second instance acquired a held lease")
	}
}

func TestHealthStatusRoundTripAndNotify(t *testing.T) {
	r := NewHealthRepository(testClient(t), "instance-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := r.SubscribeUpdates(ctx)
	// Give the subscription a moment to attach before publishing.
	time.Sleep(100 * time.Millisecond)

	if err := r.WriteStatuses(ctx, true, false); err != nil {
		t.Fatal(err)
	}
	if err := r.PublishUpdate(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}

	defaultUp, fallbackUp, err := r.LoadStatuses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !defaultUp || fallbackUp {
		t.Fatalf("loaded (%v, %v), want (true, false)", defaultUp, fallbackUp)
	}
}

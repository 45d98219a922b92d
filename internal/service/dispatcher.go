package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"github.com/sony/gobreaker"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/core"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/model"
)

// AmbiguousStatusPolicy decides what to do with a non-2xx, non-5xx processor
// response. The default treats it as accepted: the processor most likely
// already recorded the payment and is rejecting a duplicate, so retrying
// would risk settling it twice.
type AmbiguousStatusPolicy string

const (
	PolicyAcceptAmbiguous AmbiguousStatusPolicy = "accept"
	PolicyRetryAmbiguous  AmbiguousStatusPolicy = "retry"
)

const (
	ATTEMPT_TIMEOUT = 2 * time.Second

	// How long a processor stays transiently unusable after a failed
	// payment attempt, independent of the monitor's probe cycle.
	BREAKER_OPEN_TIMEOUT = 5 * time.Second

	ENQUEUE_RETRIES     = 3
	ENQUEUE_RETRY_DELAY = 100 * time.Millisecond
)

type Config struct {
	DefaultProcessorURL    string
	FallbackProcessorURL   string
	FallbackRetryThreshold int
	AmbiguousStatusPolicy  AmbiguousStatusPolicy
	MaxInflightDispatches  int
}

// PaymentDispatcher routes one payment to one processor, settling it in the
// ledger on success and re-queueing it on failure. It never surfaces an error
// to the caller.
//
// A per-processor circuit breaker doubles as the transient-unhealthy marker:
// a failed payment attempt opens it for BREAKER_OPEN_TIMEOUT, a successful
// trial call closes it again, regardless of what the periodic monitor last
// reported.
type PaymentDispatcher struct {
	queue  core.PaymentQueue
	ledger core.SettlementLedger
	health core.HealthReader

	httpClient *http.Client
	urls       map[domain.Processor]string
	breakers   map[domain.Processor]*gobreaker.CircuitBreaker

	fallbackRetryThreshold int
	ambiguousPolicy        AmbiguousStatusPolicy

	inflight chan struct{}
}

func NewPaymentDispatcher(queue core.PaymentQueue, ledger core.SettlementLedger, health core.HealthReader, cfg Config) *PaymentDispatcher {
	tr := &http.Transport{
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 64,
		DisableCompression:  true,
	}

	policy := cfg.AmbiguousStatusPolicy
	if policy == "" {
		policy = PolicyAcceptAmbiguous
	}

	inflight := cfg.MaxInflightDispatches
	if inflight <= 0 {
		inflight = 256
	}

	d := &PaymentDispatcher{
		queue:      queue,
		ledger:     ledger,
		health:     health,
		httpClient: &http.Client{Transport: tr, Timeout: ATTEMPT_TIMEOUT},
		urls: map[domain.Processor]string{
			domain.ProcessorDefault:  cfg.DefaultProcessorURL,
			domain.ProcessorFallback: cfg.FallbackProcessorURL,
		},
		breakers:               make(map[domain.Processor]*gobreaker.CircuitBreaker),
		fallbackRetryThreshold: cfg.FallbackRetryThreshold,
		ambiguousPolicy:        policy,
		inflight:               make(chan struct{}, inflight),
	}

	for _, proc := range domain.Processors() {
		d.breakers[proc] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "processor-" + string(proc),
			MaxRequests: 1,
			Timeout:     BREAKER_OPEN_TIMEOUT,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
		})
	}

	return d
}

// DispatchAsync submits the payment to the bounded dispatch pool and returns
// immediately. When the pool is saturated the payment goes straight to the
// durable queue and the retry consumer picks it up.
func (d *PaymentDispatcher) DispatchAsync(payment *domain.QueuedPayment) {
	select {
	case d.inflight <- struct{}{}:
		go func() {
			defer func() {
				<-d.inflight
				if r := recover(); r != nil {
					slog.Error("[Dispatcher] - Recovered from panic in dispatch", "panic", r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 2*ATTEMPT_TIMEOUT)
			defer cancel()
			d.Dispatch(ctx, payment)
		}()
	default:
		d.enqueue(context.Background(), payment)
	}
}

// Dispatch evaluates the routing policy and executes at most one upstream
// attempt:
//
//  1. DEFAULT usable: attempt DEFAULT.
//  2. FALLBACK usable and the payment has already burned through the retry
//     threshold: attempt FALLBACK. Fallback costs more, so fresh payments
//     keep retrying DEFAULT first.
//  3. Neither: re-queue without an attempt.
func (d *PaymentDispatcher) Dispatch(ctx context.Context, payment *domain.QueuedPayment) {
	var route domain.Processor
	switch {
	case d.usable(domain.ProcessorDefault):
		route = domain.ProcessorDefault
	case d.usable(domain.ProcessorFallback) && payment.RetryCount > d.fallbackRetryThreshold:
		route = domain.ProcessorFallback
	default:
		d.enqueue(ctx, payment)
		return
	}

	settled, attempted := d.attempt(ctx, route, payment)
	if settled {
		return
	}
	if attempted {
		payment.RetryCount++
	}
	d.enqueue(ctx, payment)
}

func (d *PaymentDispatcher) usable(p domain.Processor) bool {
	return d.health.IsAvailable(p) && d.breakers[p].State() != gobreaker.StateOpen
}

// attempt reports whether the payment settled and whether an upstream call
// was actually made. Only a made-and-failed attempt counts against the
// payment's retry budget.
func (d *PaymentDispatcher) attempt(ctx context.Context, p domain.Processor, payment *domain.QueuedPayment) (settled, attempted bool) {
	requestedAt := time.Now().UTC().Truncate(time.Millisecond)

	result, err := d.breakers[p].Execute(func() (interface{}, error) {
		status, err := d.send(ctx, p, payment, requestedAt)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("processor %s returned %d", p, status)
		}
		return status, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Lost the race against the breaker opening; no call was made.
		return false, false
	}
	if err != nil {
		slog.Warn("[Dispatcher] - Payment attempt failed", "correlation_id", payment.CorrelationId, "processor", p, "error", err)
		return false, true
	}

	status := result.(int)
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return d.settle(ctx, p, payment, requestedAt), true
	}

	// Ambiguous response (4xx and friends).
	if d.ambiguousPolicy == PolicyRetryAmbiguous {
		slog.Warn("[Dispatcher] - Ambiguous processor response, retrying per policy", "correlation_id", payment.CorrelationId, "processor", p, "status", status)
		return false, true
	}
	slog.Warn("[Dispatcher] - Ambiguous processor response, treating as accepted", "correlation_id", payment.CorrelationId, "processor", p, "status", status)
	return d.settle(ctx, p, payment, requestedAt), true
}

// settle writes the settlement record. A failed write must never read as
// success: the payment stays in flight and gets re-queued by the caller.
func (d *PaymentDispatcher) settle(ctx context.Context, p domain.Processor, payment *domain.QueuedPayment, requestedAt time.Time) bool {
	err := d.ledger.Record(ctx, p, payment.CorrelationId, payment.AmountCents, requestedAt.UnixMilli())
	if err != nil {
		slog.Error("[Dispatcher] - Settlement accepted upstream but ledger write failed, re-queueing", "correlation_id", payment.CorrelationId, "processor", p, "error", err)
		return false
	}
	return true
}

func (d *PaymentDispatcher) send(ctx context.Context, p domain.Processor, payment *domain.QueuedPayment, requestedAt time.Time) (int, error) {
	body := model.ProcessorPaymentRequest{
		CorrelationID: payment.CorrelationId,
		Amount:        domain.CentsToAmount(payment.AmountCents),
		RequestedAt:   requestedAt,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.urls[p], bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// enqueue pushes the payment back onto the durable queue, with a short
// in-process backoff when the store itself is unreachable. The payment is
// never dropped silently.
func (d *PaymentDispatcher) enqueue(ctx context.Context, payment *domain.QueuedPayment) {
	var err error
	for i := 0; i < ENQUEUE_RETRIES; i++ {
		if err = d.queue.Enqueue(ctx, payment); err == nil {
			return
		}
		time.Sleep(ENQUEUE_RETRY_DELAY)
	}
	slog.Error("[Dispatcher] - Failed to enqueue payment after retries", "correlation_id", payment.CorrelationId, "error", err)
}

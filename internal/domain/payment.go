package domain

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processor identifies one of the two upstream payment processors. The set is
// fixed: routing, health state and the ledger are all keyed by it.
type Processor string

const (
	ProcessorDefault  Processor = "default"
	ProcessorFallback Processor = "fallback"
)

// Processors lists every known processor, in routing-priority order.
func Processors() []Processor {
	return []Processor{ProcessorDefault, ProcessorFallback}
}

var (
	ErrInvalidCorrelationId = errors.New("correlationId must be a valid UUID")
	ErrInvalidAmount        = errors.New("amount must be positive with at most 2 decimal places")
)

// PaymentIntent is a payment as received at ingestion. CorrelationId is the
// immutable identity of the payment for its whole lifetime; Amount is never
// mutated after creation.
type PaymentIntent struct {
	CorrelationId string
	Amount        decimal.Decimal
}

func (p *PaymentIntent) Validate() error {
	if _, err := uuid.Parse(p.CorrelationId); err != nil {
		return ErrInvalidCorrelationId
	}
	if !p.Amount.IsPositive() || p.Amount.Exponent() < -2 {
		return ErrInvalidAmount
	}
	return nil
}

// QueuedPayment is the durable form of a payment, carried through the
// processing queue and across retries. RetryCount grows by exactly 1 each time
// a dispatch attempt fails and the item goes back on the queue.
type QueuedPayment struct {
	CorrelationId string `msgpack:"c"`
	AmountCents   int64  `msgpack:"a"`
	RetryCount    int    `msgpack:"r"`
}

// NewQueuedPayment derives the durable payment from a validated intent,
// converting the amount to integer cents so no binary floating point ever
// touches the ledger.
func NewQueuedPayment(intent *PaymentIntent) *QueuedPayment {
	return &QueuedPayment{
		CorrelationId: intent.CorrelationId,
		AmountCents:   AmountToCents(intent.Amount),
	}
}

func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

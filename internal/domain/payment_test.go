package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAcceptsWellFormedIntent(t *testing.T) {
	intent := PaymentIntent{
		CorrelationId: "4a7901b8-7d0d-4d91-9b31-4d5e2d8c1f5a",
		Amount:        decimal.RequireFromString("19.90"),
	}
	if err := intent.Validate(); err != nil {
		t.Fatalf("expected valid intent, got %v", err)
	}
}

func TestValidateRejectsBadCorrelationId(t *testing.T) {
	intent := PaymentIntent{
		CorrelationId: "not-a-uuid",
		Amount:        decimal.RequireFromString("10.00"),
	}
	if err := intent.Validate(); !errors.Is(err, ErrInvalidCorrelationId) {
		t.Fatalf("expected ErrInvalidCorrelationId, got %v", err)
	}
}

func TestValidateRejectsBadAmounts(t *testing.T) {
	cases := []string{"0", "-1.00", "9.999"}
	for _, raw := range cases {
		intent := PaymentIntent{
			CorrelationId: "4a7901b8-7d0d-4d91-9b31-4d5e2d8c1f5a",
			Amount:        decimal.RequireFromString(raw),
		}
		if err := intent.Validate(); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestAmountCentsConversion(t *testing.T) {
	cases := []struct {
		amount string
		cents  int64
	}{
		{"19.90", 1990},
		{"0.01", 1},
		{"35.50", 3550},
		{"100", 10000},
	}
	for _, tc := range cases {
		got := AmountToCents(decimal.RequireFromString(tc.amount))
		if got != tc.cents {
			t.Errorf("AmountToCents(%s) = %d, want %d", tc.amount, got, tc.cents)
		}
		back := CentsToAmount(tc.cents)
		if !back.Equal(decimal.RequireFromString(tc.amount)) {
			t.Errorf("CentsToAmount(%d) = %s, want %s", tc.cents, back, tc.amount)
		}
	}
}

func TestNewQueuedPaymentStartsAtZeroRetries(t *testing.T) {
	intent := PaymentIntent{
		CorrelationId: "4a7901b8-7d0d-4d91-9b31-4d5e2d8c1f5a",
		Amount:        decimal.RequireFromString("5.00"),
	}
	qp := NewQueuedPayment(&intent)
	if qp.RetryCount != 0 {
		t.Fatalf("expected RetryCount 0, got %d", qp.RetryCount)
	}
	if qp.AmountCents != 500 {
		t.Fatalf("expected 500 cents, got %d", qp.AmountCents)
	}
	if qp.CorrelationId != intent.CorrelationId {
		t.Fatalf("correlation id changed on enqueue")
	}
}

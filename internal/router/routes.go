package router

import (
	"net/http"
	"time"

	json "github.com/json-iterator/go"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/core"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/model"
)

const (
	ROUTE_PAYMENT_SAVE    = "POST /payments"
	ROUTE_PAYMENT_SUMMARY = "GET /payments-summary"
	ROUTE_PAYMENT_PURGE   = "POST /purge-payments"
	ROUTE_HEALTH_CHECK    = "GET /health"
)

type paymentHandler struct {
	dispatcher core.AsyncDispatcher
	ledger     core.SettlementLedger
	queue      core.PaymentQueue
}

func NewPaymentHandler(dispatcher core.AsyncDispatcher, ledger core.SettlementLedger, queue core.PaymentQueue) *paymentHandler {
	return &paymentHandler{dispatcher: dispatcher, ledger: ledger, queue: queue}
}

// SavePayment is accept-fast, settle-async: the payment is handed to the
// dispatch pool and the response never waits on an upstream call.
func (h *paymentHandler) SavePayment(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent := domain.PaymentIntent{
		CorrelationId: req.CorrelationID,
		Amount:        req.Amount,
	}
	if err := intent.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.dispatcher.DispatchAsync(domain.NewQueuedPayment(&intent))

	w.WriteHeader(http.StatusAccepted)
}

func (h *paymentHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time

	if fromQuery := r.URL.Query().Get("from"); fromQuery != "" {
		f, err := time.Parse(time.RFC3339, fromQuery)
		if err != nil {
			http.Error(w, "Invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		from = &f
	}
	if toQuery := r.URL.Query().Get("to"); toQuery != "" {
		t, err := time.Parse(time.RFC3339, toQuery)
		if err != nil {
			http.Error(w, "Invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		to = &t
	}

	summary, err := h.ledger.Summarize(r.Context(), from, to)
	if err != nil {
		http.Error(w, "Failed to get summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, "Failed to encode summary", http.StatusInternalServerError)
		return
	}
}

// PurgePayments resets the ledger and the processing queue. Used between
// load-test runs, not part of the public contract.
func (h *paymentHandler) PurgePayments(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Purge(r.Context()); err != nil {
		http.Error(w, "Failed to purge ledger", http.StatusInternalServerError)
		return
	}
	if err := h.queue.Purge(r.Context()); err != nil {
		http.Error(w, "Failed to purge queue", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *paymentHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		depth = -1
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int64{"queueDepth": depth})
}

func Routes(handler *paymentHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(ROUTE_PAYMENT_SAVE, handler.SavePayment)
	mux.HandleFunc(ROUTE_PAYMENT_SUMMARY, handler.GetSummary)
	mux.HandleFunc(ROUTE_PAYMENT_PURGE, handler.PurgePayments)
	mux.HandleFunc(ROUTE_HEALTH_CHECK, handler.HealthCheck)

	return mux
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/register"
)

type TransactionHandler struct {
	register *register.Register
	log      *logger.Logger
	timeout  time.Duration
}

func NewTransactionHandler(reg *register.Register, log *logger.Logger, timeout time.Duration) *TransactionHandler {
	return &TransactionHandler{
		register: reg,
		log:      log,
		timeout:  timeout,
	}
}

type TransactionDTO struct {
	domain.ServerTransaction
	NetTotal   string `json:"netTotal"`
	Refundable bool   `json:"refundable"`
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	transactions, err := h.register.Transactions(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	result := make([]TransactionDTO, 0, len(transactions))
	for _, tx := range transactions {
		result = append(result, TransactionDTO{
			ServerTransaction: tx,
			NetTotal:          tx.NetTotal().StringFixed(2),
			Refundable:        tx.Status.Refundable(),
		})
	}
	respondJSON(w, http.StatusOK, result)
}

// RefundForm prepares a refund form; ?type=full selects everything still
// refundable, anything else starts a partial refund.
func (h *TransactionHandler) RefundForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	refundType := domain.RefundTypePartial
	if r.URL.Query().Get("type") == string(domain.RefundTypeFull) {
		refundType = domain.RefundTypeFull
	}

	form, err := h.register.PrepareRefund(ctx, id, refundType)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, form)
}

// RefundTransaction marks the whole transaction refunded.
func (h *TransactionHandler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	tx, err := h.register.RefundTransaction(ctx, id)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var form domain.RefundForm
	if !decodeJSON(w, r, &form) {
		return
	}

	// quantities and totals are recomputed from the submitted items
	normalized, err := domain.NewRefundForm(form.TransactionID, form.Type, form.Items)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	normalized.Reason = form.Reason
	if form.Type == domain.RefundTypePartial {
		for _, item := range form.Items {
			normalized.SetQuantity(item.ProductID, item.QuantityToRefund)
		}
	}

	refund, err := h.register.SubmitRefund(ctx, *normalized)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, refund)
}

func (h *TransactionHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	refunds, err := h.register.Refunds(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if refunds == nil {
		refunds = []domain.Refund{}
	}

	respondJSON(w, http.StatusOK, refunds)
}

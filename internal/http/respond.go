package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/go_pos/internal/backend"
	"github.com/fjod/go_pos/internal/cart"
	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/fjod/go_pos/internal/register"
	"github.com/fjod/go_pos/internal/syncer"
	"github.com/go-chi/chi/v5"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError converts a core error into an HTTP status and error code.
func handleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var stockErr *ledger.InsufficientStockError
	var statusErr *backend.StatusError

	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   err.Error(),
			Code:    "insufficient_stock",
			Details: "available=" + strconv.Itoa(stockErr.Available),
		})
	case errors.Is(err, ledger.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, cart.ErrLineItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, register.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, domain.ErrInsufficientCash),
		errors.Is(err, domain.ErrReferenceRequired),
		errors.Is(err, domain.ErrNoPaymentMethod):
		respondError(w, http.StatusUnprocessableEntity, "invalid_payment", err.Error())
	case errors.Is(err, domain.ErrNothingToRefund), errors.Is(err, domain.ErrInvalidRefundType):
		respondError(w, http.StatusUnprocessableEntity, "invalid_refund", err.Error())
	case errors.Is(err, syncer.ErrSyncUnavailable):
		respondError(w, http.StatusServiceUnavailable, "sync_unavailable", err.Error())
	case errors.Is(err, queue.ErrStorage):
		log.Error(r.Context(), "storage failure", err)
		respondError(w, http.StatusInternalServerError, "storage_failure", "local storage failure")
	case errors.Is(err, backend.ErrUnreachable):
		respondError(w, http.StatusServiceUnavailable, "backend_unreachable", err.Error())
	case errors.As(err, &statusErr):
		respondJSON(w, statusErr.Code, ErrorResponse{
			Error:   "backend rejected the request",
			Code:    "backend_rejected",
			Details: statusErr.Body,
		})
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Error(r.Context(), "request failed", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// int64Query reads an optional positive id from the query string; absent
// means zero.
func int64Query(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

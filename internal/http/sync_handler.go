package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/fjod/go_pos/internal/syncer"
	"github.com/go-chi/chi/v5"
)

type SyncHandler struct {
	controller *syncer.Controller
	queue      *queue.Queue
	online     func() bool
	log        *logger.Logger
	timeout    time.Duration
}

func NewSyncHandler(ctrl *syncer.Controller, q *queue.Queue, online func() bool, log *logger.Logger, timeout time.Duration) *SyncHandler {
	return &SyncHandler{
		controller: ctrl,
		queue:      q,
		online:     online,
		log:        log,
		timeout:    timeout,
	}
}

type SyncStatusDTO struct {
	Online   bool       `json:"online"`
	Pending  int        `json:"pending"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

type SyncResponseDTO struct {
	Outcome syncer.Outcome `json:"outcome"`
	*syncer.Result
}

func (h *SyncHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.List(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if pending == nil {
		pending = []domain.PendingTransaction{}
	}
	respondJSON(w, http.StatusOK, pending)
}

func (h *SyncHandler) RemovePending(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "local_id")
	if localID == "" {
		respondError(w, http.StatusBadRequest, "invalid_local_id", "local_id is required")
		return
	}

	if err := h.queue.Remove(r.Context(), localID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.log.Info(h.log.WithLocalID(r.Context(), localID), "pending transaction discarded")
	w.WriteHeader(http.StatusNoContent)
}

func (h *SyncHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.log.Info(r.Context(), "pending transactions cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Sync runs a replay pass now.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.controller.Sync(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, SyncResponseDTO{Outcome: result.Outcome(), Result: result})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.Len(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	status := SyncStatusDTO{Online: h.online(), Pending: pending}
	at, ok, err := h.controller.LastSync(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if ok {
		status.LastSync = &at
	}

	respondJSON(w, http.StatusOK, status)
}

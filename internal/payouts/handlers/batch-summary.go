package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
)

type BatchSummaryService interface {
	GetBatchSummary(ctx context.Context) ([]service.Summary, error)
	GetAttachedSummary(ctx context.Context, batchID string) ([]service.Summary, error)
}

// PendingSummaryHandler serves the live preview over requests no batch has captured yet.
type PendingSummaryHandler struct {
	service BatchSummaryService
	logger  *logging.ZapLogger
}

func NewPendingSummaryHandler(service BatchSummaryService, logger *logging.ZapLogger) *PendingSummaryHandler {
	return &PendingSummaryHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PendingSummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.GetBatchSummary(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBatchSummary("", summaries), h.logger)
}

// BatchSummaryHandler serves the summary over the requests attached to one batch.
type BatchSummaryHandler struct {
	service BatchSummaryService
	logger  *logging.ZapLogger
}

func NewBatchSummaryHandler(service BatchSummaryService, logger *logging.ZapLogger) *BatchSummaryHandler {
	return &BatchSummaryHandler{
		service: service,
		logger:  logger,
	}
}

func (h *BatchSummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, batchIDParam)
	summaries, err := h.service.GetAttachedSummary(r.Context(), batchID)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBatchSummary(batchID, summaries), h.logger)
}

package handlers

import (
	"context"
	"net/http"

	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
)

type CurrentBatchHandler struct {
	service CurrentBatchService
	logger  *logging.ZapLogger
}

type CurrentBatchService interface {
	GetCurrentBatch(ctx context.Context) (data.WeeklyBatch, error)
}

func NewCurrentBatchHandler(service CurrentBatchService, logger *logging.ZapLogger) *CurrentBatchHandler {
	return &CurrentBatchHandler{
		service: service,
		logger:  logger,
	}
}

func (h *CurrentBatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetCurrentBatch(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBatch(batch), h.logger)
}

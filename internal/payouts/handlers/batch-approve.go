package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const batchIDParam = "batchID"

type BatchApproveHandler struct {
	service BatchApproveService
	logger  *logging.ZapLogger
}

type BatchApproveService interface {
	ApproveBatch(ctx context.Context, batchID string, actor string) (data.WeeklyBatch, error)
}

func NewBatchApproveHandler(service BatchApproveService, logger *logging.ZapLogger) *BatchApproveHandler {
	return &BatchApproveHandler{
		service: service,
		logger:  logger,
	}
}

func (h *BatchApproveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := subjectFromCtx(r.Context())
	if err != nil {
		h.logger.DebugCtx(r.Context(), failedToRecoverSubjectErrorMessage, zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	batch, err := h.service.ApproveBatch(r.Context(), chi.URLParam(r, batchIDParam), actor)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBatch(batch), h.logger)
}

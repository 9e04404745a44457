package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

type DisbursementService interface {
	StartProcessing(ctx context.Context, batchID string, actor string) (service.DisbursementReport, error)
	RetryDisbursement(ctx context.Context, batchID string, actor string) (service.DisbursementReport, error)
}

type disburseFunc func(ctx context.Context, batchID string, actor string) (service.DisbursementReport, error)

// DisbursementHandler starts or retries the payout of a batch. A partial
// failure still answers with the per-method report, as 202 Accepted.
type DisbursementHandler struct {
	disburse disburseFunc
	logger   *logging.ZapLogger
}

func NewStartProcessingHandler(service DisbursementService, logger *logging.ZapLogger) *DisbursementHandler {
	return &DisbursementHandler{
		disburse: service.StartProcessing,
		logger:   logger,
	}
}

func NewRetryDisbursementHandler(service DisbursementService, logger *logging.ZapLogger) *DisbursementHandler {
	return &DisbursementHandler{
		disburse: service.RetryDisbursement,
		logger:   logger,
	}
}

func (h *DisbursementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := subjectFromCtx(r.Context())
	if err != nil {
		h.logger.DebugCtx(r.Context(), failedToRecoverSubjectErrorMessage, zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	report, err := h.disburse(r.Context(), chi.URLParam(r, batchIDParam), actor)
	if err != nil {
		if errors.Is(err, service.ErrPartialDisbursementFailure) {
			h.logger.InfoCtx(r.Context(), "disbursement incomplete", zap.Error(err))
			writeJSON(r.Context(), w, http.StatusAccepted, toDisbursement(report), h.logger)
			return
		}
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toDisbursement(report), h.logger)
}

package handlers

import (
	"errors"
	"net/http"

	"go-payouts/internal/common/clientprotocol"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

// statusOf maps the service error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrSubmissionBlocked):
		return http.StatusLocked
	case errors.Is(err, service.ErrCutoffNotReached):
		return http.StatusTooEarly
	case errors.Is(err, service.ErrAggregationMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNoCurrentBatch),
		errors.Is(err, service.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidWithdrawal):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrActorRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, logger *logging.ZapLogger) {
	status := statusOf(err)
	message := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.ErrorCtx(r.Context(), "request failed", zap.Error(err))
		message = http.StatusText(status)
	case errors.Is(err, service.ErrAggregationMismatch):
		logger.ErrorCtx(r.Context(), "batch needs manual reconciliation", zap.Error(err))
	default:
		logger.DebugCtx(r.Context(), "request rejected", zap.Error(err), zap.Int("status", status))
	}
	writeJSON(r.Context(), w, status, clientprotocol.Error{Error: message}, logger)
}

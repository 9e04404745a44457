package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const overrideParam = "override"

type BatchLockHandler struct {
	service BatchLockService
	logger  *logging.ZapLogger
}

type BatchLockService interface {
	LockCurrentBatch(ctx context.Context, override bool) (data.WeeklyBatch, error)
}

func NewBatchLockHandler(service BatchLockService, logger *logging.ZapLogger) *BatchLockHandler {
	return &BatchLockHandler{
		service: service,
		logger:  logger,
	}
}

func (h *BatchLockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	override := false
	if value := r.URL.Query().Get(overrideParam); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			h.logger.DebugCtx(r.Context(), "invalid override flag", zap.String("value", value))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		override = parsed
	}
	if override {
		subject, _ := subjectFromCtx(r.Context())
		h.logger.InfoCtx(r.Context(), "locking before cutoff on operator override", zap.String("actor", subject))
	}

	batch, err := h.service.LockCurrentBatch(r.Context(), override)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBatch(batch), h.logger)
}

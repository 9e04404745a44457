package handlers

import (
	"context"
	"net/http"

	"go-payouts/internal/common/clientprotocol"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

type WithdrawalSubmitHandler struct {
	service WithdrawalSubmitService
	logger  *logging.ZapLogger
}

type WithdrawalSubmitService interface {
	Submit(ctx context.Context, input service.WithdrawalInput) (data.WithdrawalRequest, error)
}

func NewWithdrawalSubmitHandler(service WithdrawalSubmitService, logger *logging.ZapLogger) *WithdrawalSubmitHandler {
	return &WithdrawalSubmitHandler{
		service: service,
		logger:  logger,
	}
}

func (h *WithdrawalSubmitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer closeBody(r.Context(), r.Body, h.logger)

	userID, err := subjectFromCtx(r.Context())
	if err != nil {
		h.logger.DebugCtx(r.Context(), failedToRecoverSubjectErrorMessage, zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	input, err := decodeJSON[clientprotocol.WithdrawalInput](r.Body)
	if err != nil {
		h.logger.DebugCtx(r.Context(), "input decoding error", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	request, err := h.service.Submit(r.Context(), service.WithdrawalInput{
		UserID:        userID,
		UserEmail:     input.UserEmail,
		Country:       input.Country,
		PaymentMethod: data.PaymentMethod(input.PaymentMethod),
		AmountUSD:     input.AmountUSD,
		LocalCurrency: input.LocalCurrency,
	})
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, toWithdrawal(request), h.logger)
}

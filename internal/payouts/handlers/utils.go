package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"go-payouts/internal/common/clientprotocol"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/jwtfactory"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const (
	failedToRecoverSubjectErrorMessage = "failed to recover subject from token"
	failedToWriteResponseErrorMessage  = "failed to write response"
)

var errNoSubject = errors.New("token carries no subject")

func closeBody(ctx context.Context, body io.ReadCloser, logger *logging.ZapLogger) {
	err := body.Close()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to close body", zap.Error(err))
	}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&out)
	return out, err
}

// subjectFromCtx returns the identity the admin identity provider put in the token.
func subjectFromCtx(ctx context.Context) (string, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("reading token claims failed: %w", err)
	}
	subject, ok := claims[jwtfactory.SubjectClaimName].(string)
	if !ok || subject == "" {
		return "", errNoSubject
	}
	return subject, nil
}

func tryWriteResponseJSON(w http.ResponseWriter, status int, responseItem any) error {
	res, err := json.Marshal(responseItem)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(res)
	return err
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, responseItem any, logger *logging.ZapLogger) {
	if err := tryWriteResponseJSON(w, status, responseItem); err != nil {
		logger.ErrorCtx(ctx, failedToWriteResponseErrorMessage, zap.Error(err))
	}
}

func toBatch(batch data.WeeklyBatch) clientprotocol.Batch {
	return clientprotocol.Batch{
		ID:             batch.ID,
		BatchDate:      batch.BatchDate.Format(time.DateOnly),
		CutoffTime:     batch.CutoffTime,
		Status:         string(batch.Status),
		TotalRequests:  batch.Totals.TotalRequests,
		TotalAmountUSD: batch.Totals.TotalAmountUSD.StringFixed(2),
		PayPalAmount:   batch.Totals.PayPalAmount.StringFixed(2),
		PaystackAmount: batch.Totals.PaystackAmount.StringFixed(2),
		CreatedAt:      batch.CreatedAt,
		LockedAt:       batch.LockedAt,
		ApprovedAt:     batch.ApprovedAt,
		ApprovedBy:     batch.ApprovedBy,
		ProcessedAt:    batch.ProcessedAt,
		ProcessedBy:    batch.ProcessedBy,
		CompletedAt:    batch.CompletedAt,
	}
}

func toBatchSummary(batchID string, summaries []service.Summary) clientprotocol.BatchSummary {
	totals := service.TotalsOf(summaries)
	res := clientprotocol.BatchSummary{
		BatchID:        batchID,
		TotalRequests:  totals.TotalRequests,
		TotalAmountUSD: totals.TotalAmountUSD.StringFixed(2),
		Methods:        make([]clientprotocol.MethodSummary, len(summaries)),
	}
	for i, summary := range summaries {
		res.Methods[i] = clientprotocol.MethodSummary{
			PaymentMethod:     string(summary.PaymentMethod),
			Count:             summary.Count,
			GrossAmount:       summary.GrossAmount.StringFixed(2),
			TotalFees:         summary.TotalFees.StringFixed(2),
			NetAmount:         summary.NetAmount.StringFixed(2),
			DistinctCountries: summary.DistinctCountries,
			DistinctUsers:     summary.DistinctUsers,
		}
	}
	return res
}

func toWithdrawal(request data.WithdrawalRequest) clientprotocol.Withdrawal {
	res := clientprotocol.Withdrawal{
		ID:            request.ID,
		PaymentMethod: string(request.PaymentMethod),
		Status:        string(request.Status),
		AmountUSD:     request.AmountUSD.StringFixed(2),
		Fee:           request.Fee.StringFixed(2),
		NetAmount:     request.NetAmount.StringFixed(2),
		LocalCurrency: request.LocalCurrency,
		CreatedAt:     request.CreatedAt,
	}
	if request.LocalAmount.Valid {
		localAmount := request.LocalAmount.Decimal.StringFixed(2)
		res.LocalAmount = &localAmount
	}
	if request.ExchangeRate.Valid {
		rate := request.ExchangeRate.Decimal.String()
		res.ExchangeRate = &rate
	}
	return res
}

func toDisbursement(report service.DisbursementReport) clientprotocol.Disbursement {
	res := clientprotocol.Disbursement{
		Batch:     toBatch(report.Batch),
		Completed: report.Completed,
		Outcomes:  make([]clientprotocol.MethodOutcome, len(report.Outcomes)),
	}
	for i, outcome := range report.Outcomes {
		res.Outcomes[i] = clientprotocol.MethodOutcome{
			PaymentMethod: string(outcome.PaymentMethod),
			Requested:     outcome.Requested,
			Settled:       outcome.Settled,
			Failed:        outcome.Failed,
			Unconfirmed:   outcome.Unconfirmed,
		}
		if outcome.Err != nil {
			res.Outcomes[i].Error = outcome.Err.Error()
		}
	}
	return res
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go-payouts/internal/payouts/cutoff"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/metrics"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const submitAttempts = 2

var hundred = decimal.NewFromInt(100)

type WithdrawalInput struct {
	UserID        string
	UserEmail     string
	Country       string
	PaymentMethod data.PaymentMethod
	AmountUSD     decimal.Decimal
	// LocalCurrency is optional. When set, the local amount is quoted once at intake.
	LocalCurrency string
}

// FeeSchedule holds the fee percent charged per payment method.
type FeeSchedule map[data.PaymentMethod]decimal.Decimal

func (f FeeSchedule) Fee(method data.PaymentMethod, amountUSD decimal.Decimal) decimal.Decimal {
	percent, ok := f[method]
	if !ok {
		return decimal.Zero
	}
	return amountUSD.Mul(percent).Div(hundred).Round(2)
}

type WithdrawalStore interface {
	InsertWithdrawal(ctx context.Context, request *data.WithdrawalRequest) error
	GetPendingWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error)
}

type IntakeBatchRepository interface {
	InsertBatch(ctx context.Context, batch *data.WeeklyBatch) error
	GetLatestBatchForShare(ctx context.Context) (data.WeeklyBatch, error)
}

// Withdrawals is the intake path. It re-checks the submission window inside
// the same transaction that stores the request.
type Withdrawals struct {
	transactionManager   TransactionManager
	batchRepository      IntakeBatchRepository
	withdrawalRepository WithdrawalStore
	rates                RateSource
	fees                 FeeSchedule
	schedule             cutoff.Schedule
	clock                Clock
	logger               *logging.ZapLogger
}

func NewWithdrawals(
	transactionManager TransactionManager,
	batchRepository IntakeBatchRepository,
	withdrawalRepository WithdrawalStore,
	rates RateSource,
	fees FeeSchedule,
	schedule cutoff.Schedule,
	clock Clock,
	logger *logging.ZapLogger,
) *Withdrawals {
	return &Withdrawals{
		transactionManager:   transactionManager,
		batchRepository:      batchRepository,
		withdrawalRepository: withdrawalRepository,
		rates:                rates,
		fees:                 fees,
		schedule:             schedule,
		clock:                clock,
		logger:               logger,
	}
}

func (w *Withdrawals) Submit(ctx context.Context, input WithdrawalInput) (data.WithdrawalRequest, error) {
	if err := validate(input); err != nil {
		metrics.RecordSubmission(string(input.PaymentMethod), metrics.ResultRejected)
		return data.WithdrawalRequest{}, err
	}

	amount := input.AmountUSD.Round(2)
	fee := w.fees.Fee(input.PaymentMethod, amount)
	request := data.WithdrawalRequest{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		UserEmail:     strings.TrimSpace(input.UserEmail),
		Country:       strings.ToUpper(strings.TrimSpace(input.Country)),
		PaymentMethod: input.PaymentMethod,
		Status:        data.PendingWithdrawal,
		AmountUSD:     amount,
		Fee:           fee,
		NetAmount:     amount.Sub(fee),
	}
	w.quoteLocalAmount(ctx, &request, input.LocalCurrency)

	var err error
	for range submitAttempts {
		request.CreatedAt = w.clock()
		err = w.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
			return w.submit(ctx, &request)
		})
		// two first submissions of a week may race to open the batch
		if !errors.Is(err, data.ErrUniqueConstraintViolation) {
			break
		}
	}
	if err != nil {
		result := metrics.ResultError
		switch {
		case errors.Is(err, ErrSubmissionBlocked):
			result = metrics.ResultRejected
			w.logger.DebugCtx(ctx, "withdrawal submission blocked", zap.String("userID", input.UserID))
		case errors.Is(err, data.ErrUniqueConstraintViolation), errors.Is(err, data.ErrSerializationFailure):
			result = metrics.ResultConflict
			err = fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		default:
			w.logger.ErrorCtx(ctx, "withdrawal submission failed", zap.Error(err))
		}
		metrics.RecordSubmission(string(input.PaymentMethod), result)
		return data.WithdrawalRequest{}, err
	}

	metrics.RecordSubmission(string(input.PaymentMethod), metrics.ResultOK)
	w.logger.InfoCtx(
		ctx,
		"withdrawal submitted",
		zap.String("withdrawalID", request.ID),
		zap.String("userID", request.UserID),
		zap.String("paymentMethod", string(request.PaymentMethod)),
		zap.String("amountUSD", request.AmountUSD.StringFixed(2)),
	)
	return request, nil
}

func (w *Withdrawals) submit(ctx context.Context, request *data.WithdrawalRequest) error {
	now := request.CreatedAt
	current, err := w.batchRepository.GetLatestBatchForShare(ctx)
	switch {
	case errors.Is(err, data.ErrNotFound):
		return w.openBatch(ctx, request)
	case err != nil:
		return fmt.Errorf("getting current batch failed: %w", err)
	case current.Status == data.CompletedBatchStatus:
		return w.openBatch(ctx, request)
	case IsBlockedWindow(now, &current):
		return fmt.Errorf("%w: batch %s is %s", ErrSubmissionBlocked, current.ID, current.Status)
	}
	if err := w.withdrawalRepository.InsertWithdrawal(ctx, request); err != nil {
		return fmt.Errorf("inserting withdrawal failed: %w", err)
	}
	return nil
}

// openBatch starts the next collecting batch and stores the request under it.
func (w *Withdrawals) openBatch(ctx context.Context, request *data.WithdrawalRequest) error {
	now := request.CreatedAt
	next := w.schedule.Next(now)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	batch := &data.WeeklyBatch{
		ID:         uuid.NewString(),
		BatchDate:  cutoff.BatchDate(next),
		CutoffTime: next,
		Status:     data.CollectingBatchStatus,
		CreatedAt:  now,
	}
	if err := w.batchRepository.InsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("opening batch failed: %w", err)
	}
	w.logger.InfoCtx(
		ctx,
		"batch opened",
		zap.String("batchID", batch.ID),
		zap.Time("cutoffTime", batch.CutoffTime),
	)
	if err := w.withdrawalRepository.InsertWithdrawal(ctx, request); err != nil {
		return fmt.Errorf("inserting withdrawal failed: %w", err)
	}
	return nil
}

// quoteLocalAmount stores the rate seen at intake. Without a quote the local
// fields stay empty and reports show them as unavailable.
func (w *Withdrawals) quoteLocalAmount(ctx context.Context, request *data.WithdrawalRequest, currency string) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || w.rates == nil {
		return
	}
	rate, err := w.rates.Rate(ctx, currency)
	if err != nil {
		w.logger.WarnCtx(ctx, "exchange rate unavailable", zap.String("currency", currency), zap.Error(err))
		return
	}
	request.LocalCurrency = &currency
	request.ExchangeRate = decimal.NewNullDecimal(rate)
	request.LocalAmount = decimal.NewNullDecimal(request.AmountUSD.Mul(rate).Round(2))
}

// ListPending returns every pending request, batched or not.
func (w *Withdrawals) ListPending(ctx context.Context) ([]data.WithdrawalRequest, error) {
	requests, err := w.withdrawalRepository.GetPendingWithdrawals(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting pending withdrawals failed: %w", err)
	}
	return requests, nil
}

func validate(input WithdrawalInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidWithdrawal)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.UserEmail)); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidWithdrawal, input.UserEmail)
	}
	if !input.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidWithdrawal, input.PaymentMethod)
	}
	if !input.AmountUSD.Round(2).IsPositive() {
		return fmt.Errorf("%w: amount must be at least 0.01 USD", ErrInvalidWithdrawal)
	}
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go-payouts/internal/common/railprotocol"
	"go-payouts/internal/payouts/data"
)

type Clock func() time.Time

type TransactionManager interface {
	DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error
}

type BatchRepository interface {
	InsertBatch(ctx context.Context, batch *data.WeeklyBatch) error
	GetLatestBatch(ctx context.Context) (data.WeeklyBatch, error)
	GetLatestBatchForShare(ctx context.Context) (data.WeeklyBatch, error)
	GetBatch(ctx context.Context, batchID string) (data.WeeklyBatch, error)
	TransitionBatch(ctx context.Context, t data.BatchTransition) error
	SetBatchTotals(ctx context.Context, batchID string, totals data.BatchTotals) error
	ClaimDisbursement(ctx context.Context, batchID string, now time.Time, staleBefore time.Time) (int, error)
	ReleaseDisbursement(ctx context.Context, batchID string, attempt int) error
}

type WithdrawalRepository interface {
	InsertWithdrawal(ctx context.Context, request *data.WithdrawalRequest) error
	AttachPendingWithdrawals(ctx context.Context, batchID string, batchDate time.Time) (int64, error)
	GetUnbatchedWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error)
	GetPendingWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error)
	GetBatchWithdrawals(
		ctx context.Context,
		batchID string,
		allowedStatuses ...data.WithdrawalStatus,
	) ([]data.WithdrawalRequest, error)
	CountBatchWithdrawals(ctx context.Context, batchID string, statuses ...data.WithdrawalStatus) (int, error)
	SetWithdrawalsStatus(
		ctx context.Context,
		batchID string,
		ids []string,
		from data.WithdrawalStatus,
		to data.WithdrawalStatus,
	) (int64, error)
}

// PaymentRail pays out one payment method's share of a batch. Each attempt
// of a batch is a distinct request to the rail.
type PaymentRail interface {
	Disburse(
		ctx context.Context,
		batchID string,
		method data.PaymentMethod,
		attempt int,
		requests []data.WithdrawalRequest,
	) (railprotocol.DisbursementResult, error)
}

// Notifier delivery is best effort. Its errors are logged and never fail a transition.
type Notifier interface {
	BatchCompleted(ctx context.Context, batch data.WeeklyBatch) error
	WindowChanged(ctx context.Context, window SubmissionWindow) error
}

// RateSource quotes how many units of currency one US dollar buys.
type RateSource interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

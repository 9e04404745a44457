package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-payouts/internal/payouts/cutoff"
	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
)

var testFees = FeeSchedule{
	data.PayPal:   decimal.RequireFromString("2.9"),
	data.Paystack: decimal.RequireFromString("1.5"),
}

type withdrawalsFixture struct {
	store       *memoryStore
	clock       *fakeClock
	withdrawals *Withdrawals
}

func newWithdrawalsFixture(t *testing.T, now time.Time) *withdrawalsFixture {
	t.Helper()
	store := newMemoryStore()
	clock := &fakeClock{now: now}
	return &withdrawalsFixture{
		store: store,
		clock: clock,
		withdrawals: NewWithdrawals(
			&memoryTransactions{store: store},
			store,
			store,
			staticRates{"NGN": decimal.RequireFromString("1550.5")},
			testFees,
			cutoff.Default,
			clock.Now,
			logging.NewNop(),
		),
	}
}

func validInput() WithdrawalInput {
	return WithdrawalInput{
		UserID:        "user-1",
		UserEmail:     "ada@example.com",
		Country:       "ng",
		PaymentMethod: data.PayPal,
		AmountUSD:     decimal.RequireFromString("100"),
	}
}

func TestSubmit_OpensBatch(t *testing.T) {
	now := utcTime("2025-03-02T09:00:00Z") // Sunday
	f := newWithdrawalsFixture(t, now)

	request, err := f.withdrawals.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, data.PendingWithdrawal, request.Status)
	assert.Equal(t, "NG", request.Country)
	assert.Equal(t, "100.00", request.AmountUSD.StringFixed(2))
	assert.Equal(t, "2.90", request.Fee.StringFixed(2))
	assert.Equal(t, "97.10", request.NetAmount.StringFixed(2))
	assert.Nil(t, request.BatchID)
	assert.Equal(t, now, request.CreatedAt)

	current, err := f.store.GetLatestBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.CollectingBatchStatus, current.Status)
	assert.Equal(t, utcTime("2025-03-04T14:00:00Z"), current.CutoffTime)
	assert.Equal(t, utcTime("2025-03-04T00:00:00Z"), current.BatchDate)

	stored := f.store.withdrawal(request.ID)
	assert.Equal(t, data.PendingWithdrawal, stored.Status)
	assert.False(t, stored.LocalAmount.Valid)
}

func TestSubmit_JoinsCollectingBatch(t *testing.T) {
	f := newWithdrawalsFixture(t, utcTime("2025-03-02T09:00:00Z"))
	ctx := context.Background()

	_, err := f.withdrawals.Submit(ctx, validInput())
	require.NoError(t, err)
	f.clock.Set(utcTime("2025-03-04T13:59:00Z"))
	_, err = f.withdrawals.Submit(ctx, validInput())
	require.NoError(t, err)

	assert.Len(t, f.store.batches, 1)
	pending, err := f.withdrawals.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSubmit_Blocked(t *testing.T) {
	tests := []struct {
		name   string
		status data.BatchStatus
		now    time.Time
	}{
		{name: "cutoff passed, lock pending", status: data.CollectingBatchStatus, now: tuesdayCutoff.Add(time.Minute)},
		{name: "at cutoff", status: data.CollectingBatchStatus, now: tuesdayCutoff},
		{name: "locked", status: data.LockedBatchStatus, now: tuesdayCutoff.Add(time.Hour)},
		{name: "approved", status: data.ApprovedBatchStatus, now: tuesdayCutoff.Add(time.Hour)},
		{name: "processing on monday", status: data.ProcessingBatchStatus, now: tuesdayCutoff.AddDate(0, 0, 6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWithdrawalsFixture(t, tt.now)
			f.store.putBatch(data.WeeklyBatch{
				ID:         batchID,
				CutoffTime: tuesdayCutoff,
				Status:     tt.status,
				CreatedAt:  createdAt,
				Totals:     zeroTotals(),
			})

			_, err := f.withdrawals.Submit(context.Background(), validInput())
			require.ErrorIs(t, err, ErrSubmissionBlocked)
			assert.Empty(t, f.store.withdrawals)
			assert.Len(t, f.store.batches, 1)
		})
	}
}

func TestSubmit_AfterCompletedBatch(t *testing.T) {
	now := tuesdayCutoff.Add(3 * time.Hour)
	f := newWithdrawalsFixture(t, now)
	f.store.putBatch(data.WeeklyBatch{
		ID:         batchID,
		CutoffTime: tuesdayCutoff,
		Status:     data.CompletedBatchStatus,
		CreatedAt:  createdAt,
		Totals:     zeroTotals(),
	})

	_, err := f.withdrawals.Submit(context.Background(), validInput())
	require.NoError(t, err)

	current, err := f.store.GetLatestBatch(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, batchID, current.ID)
	assert.Equal(t, data.CollectingBatchStatus, current.Status)
	assert.Equal(t, tuesdayCutoff.AddDate(0, 0, 7), current.CutoffTime)
}

func TestSubmit_ExactlyAtCutoffAfterCompletion(t *testing.T) {
	f := newWithdrawalsFixture(t, tuesdayCutoff)

	_, err := f.withdrawals.Submit(context.Background(), validInput())
	require.NoError(t, err)

	current, err := f.store.GetLatestBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tuesdayCutoff.AddDate(0, 0, 7), current.CutoffTime)
}

func TestSubmit_OpenBatchRace(t *testing.T) {
	f := newWithdrawalsFixture(t, utcTime("2025-03-02T09:00:00Z"))
	f.store.insertBatchErr = data.ErrUniqueConstraintViolation

	_, err := f.withdrawals.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.Len(t, f.store.batches, 1)
	assert.Len(t, f.store.withdrawals, 1)
}

func TestSubmit_LocalAmount(t *testing.T) {
	f := newWithdrawalsFixture(t, utcTime("2025-03-02T09:00:00Z"))
	input := validInput()
	input.PaymentMethod = data.Paystack
	input.LocalCurrency = "ngn"

	request, err := f.withdrawals.Submit(context.Background(), input)
	require.NoError(t, err)

	require.NotNil(t, request.LocalCurrency)
	assert.Equal(t, "NGN", *request.LocalCurrency)
	require.True(t, request.LocalAmount.Valid)
	assert.Equal(t, "155050.00", request.LocalAmount.Decimal.StringFixed(2))
	assert.Equal(t, "1.50", request.Fee.StringFixed(2))

	input.LocalCurrency = "XYZ"
	request, err = f.withdrawals.Submit(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, request.LocalCurrency)
	assert.False(t, request.LocalAmount.Valid)
}

func TestSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *WithdrawalInput)
	}{
		{name: "no user", modify: func(in *WithdrawalInput) { in.UserID = "" }},
		{name: "bad email", modify: func(in *WithdrawalInput) { in.UserEmail = "not-an-email" }},
		{name: "unknown method", modify: func(in *WithdrawalInput) { in.PaymentMethod = "stripe" }},
		{name: "zero amount", modify: func(in *WithdrawalInput) { in.AmountUSD = decimal.Zero }},
		{name: "sub-cent amount", modify: func(in *WithdrawalInput) { in.AmountUSD = decimal.RequireFromString("0.004") }},
		{name: "negative amount", modify: func(in *WithdrawalInput) { in.AmountUSD = decimal.NewFromInt(-5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWithdrawalsFixture(t, utcTime("2025-03-02T09:00:00Z"))
			input := validInput()
			tt.modify(&input)

			_, err := f.withdrawals.Submit(context.Background(), input)
			require.ErrorIs(t, err, ErrInvalidWithdrawal)
			assert.Empty(t, f.store.withdrawals)
		})
	}
}

func TestFeeSchedule(t *testing.T) {
	tests := []struct {
		method data.PaymentMethod
		amount string
		want   string
	}{
		{method: data.PayPal, amount: "33.33", want: "0.97"},
		{method: data.Paystack, amount: "10.00", want: "0.15"},
		{method: data.PayPal, amount: "0.01", want: "0.00"},
		{method: "stripe", amount: "10.00", want: "0.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.method)+" "+tt.amount, func(t *testing.T) {
			fee := testFees.Fee(tt.method, decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.want, fee.StringFixed(2))
		})
	}
}

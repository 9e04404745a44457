package data

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PayPal   = PaymentMethod("paypal")
	Paystack = PaymentMethod("paystack")
)

// PaymentMethods is the closed set of disbursement rails, in reporting order.
var PaymentMethods = []PaymentMethod{PayPal, Paystack}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayPal, Paystack:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	PendingWithdrawal    = WithdrawalStatus("pending")
	ProcessingWithdrawal = WithdrawalStatus("processing")
	CompletedWithdrawal  = WithdrawalStatus("completed")
	FailedWithdrawal     = WithdrawalStatus("failed")
)

type BatchStatus string

const (
	CollectingBatchStatus = BatchStatus("collecting")
	LockedBatchStatus     = BatchStatus("locked")
	ApprovedBatchStatus   = BatchStatus("approved")
	ProcessingBatchStatus = BatchStatus("processing")
	CompletedBatchStatus  = BatchStatus("completed")
)

type WithdrawalRequest struct {
	CreatedAt     time.Time
	BatchDate     *time.Time
	BatchID       *string
	LocalCurrency *string
	LocalAmount   decimal.NullDecimal
	ExchangeRate  decimal.NullDecimal
	ID            string
	UserID        string
	UserEmail     string
	Country       string
	PaymentMethod PaymentMethod
	Status        WithdrawalStatus
	AmountUSD     decimal.Decimal
	Fee           decimal.Decimal
	NetAmount     decimal.Decimal
}

// BatchTotals are the frozen aggregates of a batch. They are only ever
// written from a recomputation over the attached requests.
type BatchTotals struct {
	TotalRequests  int
	TotalAmountUSD decimal.Decimal
	PayPalAmount   decimal.Decimal
	PaystackAmount decimal.Decimal
}

type WeeklyBatch struct {
	CreatedAt   time.Time
	BatchDate   time.Time
	CutoffTime  time.Time
	LockedAt    *time.Time
	ApprovedAt  *time.Time
	ProcessedAt *time.Time
	CompletedAt *time.Time
	ApprovedBy  *string
	ProcessedBy *string
	ID          string
	Status      BatchStatus
	Totals      BatchTotals
}

// BatchTransition describes a conditional status update: it applies only while
// the batch is still in From.
type BatchTransition struct {
	At      time.Time
	BatchID string
	Actor   string
	From    BatchStatus
	To      BatchStatus
}

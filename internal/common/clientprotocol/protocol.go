package clientprotocol

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are rendered as strings with exactly two decimals.

type Batch struct {
	CreatedAt      time.Time  `json:"created_at"`
	CutoffTime     time.Time  `json:"cutoff_time"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ProcessedBy    *string    `json:"processed_by,omitempty"`
	ID             string     `json:"id"`
	BatchDate      string     `json:"batch_date"`
	Status         string     `json:"status"`
	TotalAmountUSD string     `json:"total_amount_usd"`
	PayPalAmount   string     `json:"paypal_amount"`
	PaystackAmount string     `json:"paystack_amount"`
	TotalRequests  int        `json:"total_requests"`
}

type MethodSummary struct {
	PaymentMethod     string   `json:"payment_method"`
	GrossAmount       string   `json:"gross_amount"`
	TotalFees         string   `json:"total_fees"`
	NetAmount         string   `json:"net_amount"`
	DistinctCountries []string `json:"distinct_countries"`
	DistinctUsers     []string `json:"distinct_users"`
	Count             int      `json:"count"`
}

type BatchSummary struct {
	BatchID        string          `json:"batch_id,omitempty"`
	TotalAmountUSD string          `json:"total_amount_usd"`
	Methods        []MethodSummary `json:"methods"`
	TotalRequests  int             `json:"total_requests"`
}

type SubmissionWindow struct {
	Now               time.Time `json:"now"`
	Cutoff            time.Time `json:"cutoff"`
	BatchStatus       string    `json:"batch_status,omitempty"`
	Countdown         string    `json:"countdown"`
	RemainingSeconds  int64     `json:"remaining_seconds"`
	CutoffPassed      bool      `json:"cutoff_passed"`
	Warning           bool      `json:"warning"`
	Blocked           bool      `json:"blocked"`
	SubmissionAllowed bool      `json:"submission_allowed"`
}

type WithdrawalInput struct {
	UserEmail     string          `json:"user_email"`
	Country       string          `json:"country"`
	PaymentMethod string          `json:"payment_method"`
	LocalCurrency string          `json:"local_currency,omitempty"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
}

type Withdrawal struct {
	CreatedAt     time.Time `json:"created_at"`
	LocalAmount   *string   `json:"local_amount,omitempty"`
	LocalCurrency *string   `json:"local_currency,omitempty"`
	ExchangeRate  *string   `json:"exchange_rate,omitempty"`
	ID            string    `json:"id"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	AmountUSD     string    `json:"amount_usd"`
	Fee           string    `json:"fee"`
	NetAmount     string    `json:"net_amount"`
}

type MethodOutcome struct {
	PaymentMethod string   `json:"payment_method"`
	Error         string   `json:"error,omitempty"`
	Settled       []string `json:"settled"`
	Failed        []string `json:"failed"`
	Unconfirmed   []string `json:"unconfirmed"`
	Requested     int      `json:"requested"`
}

type Disbursement struct {
	Batch     Batch           `json:"batch"`
	Outcomes  []MethodOutcome `json:"outcomes"`
	Completed bool            `json:"completed"`
}

type Error struct {
	Error string `json:"error"`
}

package railprotocol

import "github.com/shopspring/decimal"

type Payout struct {
	WithdrawalID string          `json:"withdrawal_id"`
	UserEmail    string          `json:"user_email"`
	Country      string          `json:"country,omitempty"`
	Amount       decimal.Decimal `json:"amount_usd"`
}

type DisbursementRequest struct {
	BatchID       string   `json:"batch_id"`
	PaymentMethod string   `json:"payment_method"`
	Payouts       []Payout `json:"payouts"`
	Attempt       int      `json:"attempt"`
}

// DisbursementResult lists which payouts the rail confirmed. Ids in neither
// list are unconfirmed and stay in processing.
type DisbursementResult struct {
	SettledIDs []string `json:"settled_ids"`
	FailedIDs  []string `json:"failed_ids"`
}

package service

import "errors"

var (
	// ErrInvalidTransition: the batch is not in the state the operation starts from. The batch is unchanged.
	ErrInvalidTransition = errors.New("invalid batch transition")
	// ErrConcurrencyConflict: the batch changed between read and conditional update. Refetch and retry.
	ErrConcurrencyConflict = errors.New("batch state changed")
	// ErrSubmissionBlocked: new withdrawal requests are closed until the next collecting batch.
	ErrSubmissionBlocked = errors.New("withdrawal submissions are blocked")
	// ErrAggregationMismatch: recomputed totals disagree with frozen totals. Needs manual reconciliation.
	ErrAggregationMismatch = errors.New("batch totals mismatch")
	// ErrPartialDisbursementFailure: at least one payout is failed or unconfirmed. The batch stays in processing.
	ErrPartialDisbursementFailure = errors.New("partial disbursement failure")

	ErrNoCurrentBatch    = errors.New("no current batch")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrCutoffNotReached  = errors.New("cutoff not reached")
	ErrActorRequired     = errors.New("actor identity required")
	ErrInvalidWithdrawal = errors.New("invalid withdrawal request")
)

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/metrics"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

// disbursementLease is how long a disbursement claim holds before another
// instance may take it over. It outlasts any single run of the rail calls.
const disbursementLease = 15 * time.Minute

// Batches owns the weekly batch state machine:
// collecting -> locked -> approved -> processing -> completed.
// Every transition is a conditional update keyed on the expected current
// status, so two operators (or an operator and the monitor) can never both
// apply the same transition.
type Batches struct {
	transactionManager   TransactionManager
	batchRepository      BatchRepository
	withdrawalRepository WithdrawalRepository
	paymentRail          PaymentRail
	notifier             Notifier
	clock                Clock
	logger               *logging.ZapLogger
}

func NewBatches(
	transactionManager TransactionManager,
	batchRepository BatchRepository,
	withdrawalRepository WithdrawalRepository,
	paymentRail PaymentRail,
	notifier Notifier,
	clock Clock,
	logger *logging.ZapLogger,
) *Batches {
	return &Batches{
		transactionManager:   transactionManager,
		batchRepository:      batchRepository,
		withdrawalRepository: withdrawalRepository,
		paymentRail:          paymentRail,
		notifier:             notifier,
		clock:                clock,
		logger:               logger,
	}
}

// GetCurrentBatch returns the most recently created batch. A collecting batch,
// when one exists, is always the most recent.
func (b *Batches) GetCurrentBatch(ctx context.Context) (data.WeeklyBatch, error) {
	current, err := currentBatch(ctx, b.batchRepository)
	if err != nil {
		return data.WeeklyBatch{}, err
	}
	if current == nil {
		return data.WeeklyBatch{}, ErrNoCurrentBatch
	}
	return *current, nil
}

func (b *Batches) GetBatch(ctx context.Context, batchID string) (data.WeeklyBatch, error) {
	batch, err := b.batchRepository.GetBatch(ctx, batchID)
	if err != nil {
		return data.WeeklyBatch{}, batchLookupError(err, batchID)
	}
	return batch, nil
}

func batchLookupError(err error, batchID string) error {
	switch {
	case errors.Is(err, data.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	default:
		return fmt.Errorf("getting batch failed: %w", err)
	}
}

// GetBatchSummary is the live preview over pending requests not yet captured by a batch.
func (b *Batches) GetBatchSummary(ctx context.Context) ([]Summary, error) {
	requests, err := b.withdrawalRepository.GetUnbatchedWithdrawals(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting unbatched withdrawals failed: %w", err)
	}
	return Summarize(requests), nil
}

// GetAttachedSummary is the post-lock view over the requests captured by a batch.
func (b *Batches) GetAttachedSummary(ctx context.Context, batchID string) ([]Summary, error) {
	if _, err := b.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	requests, err := b.withdrawalRepository.GetBatchWithdrawals(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("getting batch withdrawals failed: %w", err)
	}
	return Summarize(requests), nil
}

// LockCurrentBatch closes the collecting batch. In one transaction it moves the
// batch to locked, captures every pending unbatched request and freezes the
// totals. Before the cutoff it only proceeds with override.
func (b *Batches) LockCurrentBatch(ctx context.Context, override bool) (data.WeeklyBatch, error) {
	now := b.clock()
	var (
		locked   data.WeeklyBatch
		attached int64
	)
	err := b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		batch, err := b.GetCurrentBatch(ctx)
		if err != nil {
			return err
		}
		if batch.Status != data.CollectingBatchStatus {
			return invalidTransition(batch, data.LockedBatchStatus)
		}
		if !override && now.Before(batch.CutoffTime) {
			return fmt.Errorf(
				"%w: batch %s closes at %s",
				ErrCutoffNotReached,
				batch.ID,
				batch.CutoffTime.Format(time.RFC3339),
			)
		}
		if err := b.transition(ctx, batch, data.LockedBatchStatus, "", now); err != nil {
			return err
		}
		attached, err = b.withdrawalRepository.AttachPendingWithdrawals(ctx, batch.ID, batch.BatchDate)
		if err != nil {
			return fmt.Errorf("attaching pending withdrawals failed: %w", err)
		}
		requests, err := b.withdrawalRepository.GetBatchWithdrawals(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("getting batch withdrawals failed: %w", err)
		}
		totals := TotalsOf(Summarize(requests))
		if err := CheckTotals(totals); err != nil {
			return err
		}
		if err := b.batchRepository.SetBatchTotals(ctx, batch.ID, totals); err != nil {
			return fmt.Errorf("freezing batch totals failed: %w", b.conflict(err, batch.ID))
		}
		locked, err = b.GetBatch(ctx, batch.ID)
		return err
	})
	if err != nil {
		b.recordFailure(ctx, "lock", data.CollectingBatchStatus, data.LockedBatchStatus, err)
		return data.WeeklyBatch{}, err
	}
	metrics.RecordTransition(string(data.CollectingBatchStatus), string(data.LockedBatchStatus), metrics.ResultOK)
	metrics.SetLockedBatchTotals(locked.Totals.TotalAmountUSD, locked.Totals.PayPalAmount, locked.Totals.PaystackAmount)
	b.logger.InfoCtx(
		ctx,
		"batch locked",
		zap.String("batchID", locked.ID),
		zap.Bool("override", override),
		zap.Int64("attached", attached),
		zap.String("totalAmountUSD", locked.Totals.TotalAmountUSD.StringFixed(2)),
	)
	return locked, nil
}

// ApproveBatch re-verifies the frozen totals against the attached requests and
// records who approved. A mismatch leaves the batch locked for manual reconciliation.
func (b *Batches) ApproveBatch(ctx context.Context, batchID string, actor string) (data.WeeklyBatch, error) {
	if strings.TrimSpace(actor) == "" {
		return data.WeeklyBatch{}, ErrActorRequired
	}
	now := b.clock()
	var approved data.WeeklyBatch
	err := b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		batch, err := b.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != data.LockedBatchStatus {
			return invalidTransition(batch, data.ApprovedBatchStatus)
		}
		requests, err := b.withdrawalRepository.GetBatchWithdrawals(ctx, batchID)
		if err != nil {
			return fmt.Errorf("getting batch withdrawals failed: %w", err)
		}
		recomputed := TotalsOf(Summarize(requests))
		if !TotalsMatch(recomputed, batch.Totals) {
			metrics.RecordAggregationMismatch()
			b.logger.ErrorCtx(
				ctx,
				"batch totals do not match attached requests",
				zap.String("batchID", batchID),
				zap.Int("frozenRequests", batch.Totals.TotalRequests),
				zap.Int("recomputedRequests", recomputed.TotalRequests),
				zap.String("frozenAmountUSD", batch.Totals.TotalAmountUSD.StringFixed(2)),
				zap.String("recomputedAmountUSD", recomputed.TotalAmountUSD.StringFixed(2)),
			)
			return fmt.Errorf(
				"%w: batch %s froze %d requests / %s USD, attached requests sum to %d / %s USD",
				ErrAggregationMismatch,
				batchID,
				batch.Totals.TotalRequests,
				batch.Totals.TotalAmountUSD.StringFixed(2),
				recomputed.TotalRequests,
				recomputed.TotalAmountUSD.StringFixed(2),
			)
		}
		if err := b.transition(ctx, batch, data.ApprovedBatchStatus, actor, notBefore(now, batch.LockedAt)); err != nil {
			return err
		}
		approved, err = b.GetBatch(ctx, batchID)
		return err
	})
	if err != nil {
		b.recordFailure(ctx, "approve", data.LockedBatchStatus, data.ApprovedBatchStatus, err)
		return data.WeeklyBatch{}, err
	}
	metrics.RecordTransition(string(data.LockedBatchStatus), string(data.ApprovedBatchStatus), metrics.ResultOK)
	b.logger.InfoCtx(ctx, "batch approved", zap.String("batchID", batchID), zap.String("actor", actor))
	return approved, nil
}

// StartProcessing moves an approved batch to processing, marks its requests
// processing and disburses them per payment method. The batch completes only
// once every request is confirmed settled; otherwise the report is returned
// together with ErrPartialDisbursementFailure.
func (b *Batches) StartProcessing(ctx context.Context, batchID string, actor string) (DisbursementReport, error) {
	if strings.TrimSpace(actor) == "" {
		return DisbursementReport{}, ErrActorRequired
	}
	now := b.clock()
	var attempt int
	err := b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		batch, err := b.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != data.ApprovedBatchStatus {
			return invalidTransition(batch, data.ProcessingBatchStatus)
		}
		if err := b.transition(ctx, batch, data.ProcessingBatchStatus, actor, notBefore(now, batch.ApprovedAt)); err != nil {
			return err
		}
		_, err = b.withdrawalRepository.SetWithdrawalsStatus(
			ctx,
			batchID,
			nil,
			data.PendingWithdrawal,
			data.ProcessingWithdrawal,
		)
		if err != nil {
			return fmt.Errorf("marking withdrawals processing failed: %w", err)
		}
		attempt, err = b.claimDisbursement(ctx, batchID, now)
		return err
	})
	if err != nil {
		b.recordFailure(ctx, "start processing", data.ApprovedBatchStatus, data.ProcessingBatchStatus, err)
		return DisbursementReport{}, err
	}
	metrics.RecordTransition(string(data.ApprovedBatchStatus), string(data.ProcessingBatchStatus), metrics.ResultOK)
	b.logger.InfoCtx(ctx, "batch processing started", zap.String("batchID", batchID), zap.String("actor", actor))
	return b.disburse(ctx, batchID, attempt)
}

// RetryDisbursement re-drives a processing batch: failed requests go back to
// processing and every unconfirmed request is disbursed again.
func (b *Batches) RetryDisbursement(ctx context.Context, batchID string, actor string) (DisbursementReport, error) {
	if strings.TrimSpace(actor) == "" {
		return DisbursementReport{}, ErrActorRequired
	}
	now := b.clock()
	var (
		requeued int64
		attempt  int
	)
	err := b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		batch, err := b.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != data.ProcessingBatchStatus {
			return fmt.Errorf(
				"%w: batch %s is %s, only processing batches can be retried",
				ErrInvalidTransition,
				batch.ID,
				batch.Status,
			)
		}
		attempt, err = b.claimDisbursement(ctx, batchID, now)
		if err != nil {
			return err
		}
		requeued, err = b.withdrawalRepository.SetWithdrawalsStatus(
			ctx,
			batchID,
			nil,
			data.FailedWithdrawal,
			data.ProcessingWithdrawal,
		)
		if err != nil {
			return fmt.Errorf("requeueing failed withdrawals failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return DisbursementReport{}, err
	}
	b.logger.InfoCtx(
		ctx,
		"retrying disbursement",
		zap.String("batchID", batchID),
		zap.String("actor", actor),
		zap.Int64("requeued", requeued),
		zap.Int("attempt", attempt),
	)
	return b.disburse(ctx, batchID, attempt)
}

// claimDisbursement takes the batch's disbursement claim in the database, so
// only one instance at a time sends a batch to the payment rails.
func (b *Batches) claimDisbursement(ctx context.Context, batchID string, now time.Time) (int, error) {
	attempt, err := b.batchRepository.ClaimDisbursement(ctx, batchID, now, now.Add(-disbursementLease))
	if err != nil {
		if errors.Is(err, data.ErrNoRowsAffected) {
			return 0, fmt.Errorf("%w: batch %s is being disbursed", ErrConcurrencyConflict, batchID)
		}
		return 0, fmt.Errorf("claiming disbursement of batch %s failed: %w", batchID, b.conflict(err, batchID))
	}
	return attempt, nil
}

func (b *Batches) releaseDisbursement(ctx context.Context, batchID string, attempt int) {
	if err := b.batchRepository.ReleaseDisbursement(ctx, batchID, attempt); err != nil {
		b.logger.ErrorCtx(
			ctx,
			"releasing disbursement claim failed",
			zap.String("batchID", batchID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (b *Batches) transition(
	ctx context.Context,
	batch data.WeeklyBatch,
	to data.BatchStatus,
	actor string,
	at time.Time,
) error {
	err := b.batchRepository.TransitionBatch(ctx, data.BatchTransition{
		BatchID: batch.ID,
		From:    batch.Status,
		To:      to,
		Actor:   actor,
		At:      at,
	})
	if err != nil {
		return fmt.Errorf("moving batch %s to %s failed: %w", batch.ID, to, b.conflict(err, batch.ID))
	}
	return nil
}

// conflict turns a lost conditional update into ErrConcurrencyConflict.
func (b *Batches) conflict(err error, batchID string) error {
	switch {
	case errors.Is(err, data.ErrNoRowsAffected),
		errors.Is(err, data.ErrSerializationFailure),
		errors.Is(err, data.ErrUniqueConstraintViolation):
		return fmt.Errorf("%w: batch %s: %w", ErrConcurrencyConflict, batchID, err)
	default:
		return err
	}
}

func (b *Batches) recordFailure(ctx context.Context, operation string, from, to data.BatchStatus, err error) {
	result := metrics.ResultError
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		result = metrics.ResultConflict
		b.logger.WarnCtx(ctx, operation+" lost a concurrent update", zap.Error(err))
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrCutoffNotReached),
		errors.Is(err, ErrNoCurrentBatch),
		errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrAggregationMismatch):
		result = metrics.ResultRejected
		b.logger.DebugCtx(ctx, operation+" rejected", zap.Error(err))
	default:
		b.logger.ErrorCtx(ctx, operation+" failed", zap.Error(err))
	}
	metrics.RecordTransition(string(from), string(to), result)
}

func invalidTransition(batch data.WeeklyBatch, to data.BatchStatus) error {
	return fmt.Errorf("%w: batch %s is %s, cannot move to %s", ErrInvalidTransition, batch.ID, batch.Status, to)
}

// notBefore keeps audit timestamps ordered even if clocks of two instances disagree.
func notBefore(now time.Time, previous *time.Time) time.Time {
	if previous != nil && now.Before(*previous) {
		return *previous
	}
	return now
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MethodOutcome is what one payment rail confirmed for its share of a batch.
type MethodOutcome struct {
	PaymentMethod data.PaymentMethod
	Requested     int
	Settled       []string
	Failed        []string
	// Unconfirmed requests stay in processing until a retry confirms them.
	Unconfirmed []string
	// Err is set when the rail call failed as a whole. Every request of the method is then failed.
	Err error
}

type DisbursementReport struct {
	Batch     data.WeeklyBatch
	Outcomes  []MethodOutcome
	Completed bool
}

func (r DisbursementReport) counts() (settled, failed, unconfirmed int) {
	for _, outcome := range r.Outcomes {
		settled += len(outcome.Settled)
		failed += len(outcome.Failed)
		unconfirmed += len(outcome.Unconfirmed)
	}
	return settled, failed, unconfirmed
}

// disburse sends every processing request of the batch to its payment rail,
// one concurrent call per method, records what each rail confirmed and
// completes the batch when nothing is left outstanding. The caller holds the
// disbursement claim for attempt; disburse releases it.
// Once started it runs to the end even if the caller's context is cancelled.
func (b *Batches) disburse(ctx context.Context, batchID string, attempt int) (DisbursementReport, error) {
	ctx = context.WithoutCancel(ctx)
	defer b.releaseDisbursement(ctx, batchID, attempt)

	requests, err := b.withdrawalRepository.GetBatchWithdrawals(ctx, batchID, data.ProcessingWithdrawal)
	if err != nil {
		return DisbursementReport{}, fmt.Errorf("getting processing withdrawals failed: %w", err)
	}

	byMethod := make(map[data.PaymentMethod][]data.WithdrawalRequest)
	for _, request := range requests {
		byMethod[request.PaymentMethod] = append(byMethod[request.PaymentMethod], request)
	}
	methods := make([]data.PaymentMethod, 0, len(byMethod))
	for method := range byMethod {
		methods = append(methods, method)
	}
	slices.Sort(methods)

	outcomes := make([]MethodOutcome, len(methods))
	// a failing rail must not cancel the calls to the others
	var g errgroup.Group
	for i, method := range methods {
		g.Go(func() error {
			outcomes[i] = b.disburseMethod(ctx, batchID, method, attempt, byMethod[method])
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		if err := b.recordOutcome(ctx, batchID, outcome); err != nil {
			return DisbursementReport{}, err
		}
	}

	report := DisbursementReport{Outcomes: outcomes}
	report.Batch, report.Completed, err = b.tryComplete(ctx, batchID)
	if err != nil {
		return report, err
	}
	if !report.Completed {
		settled, failed, unconfirmed := report.counts()
		b.logger.WarnCtx(
			ctx,
			"batch disbursed partially",
			zap.String("batchID", batchID),
			zap.Int("settled", settled),
			zap.Int("failed", failed),
			zap.Int("unconfirmed", unconfirmed),
		)
		return report, fmt.Errorf(
			"%w: batch %s has %d failed and %d unconfirmed payouts",
			ErrPartialDisbursementFailure,
			batchID,
			failed,
			unconfirmed,
		)
	}
	return report, nil
}

func (b *Batches) disburseMethod(
	ctx context.Context,
	batchID string,
	method data.PaymentMethod,
	attempt int,
	requests []data.WithdrawalRequest,
) MethodOutcome {
	outcome := MethodOutcome{
		PaymentMethod: method,
		Requested:     len(requests),
		Settled:       make([]string, 0),
		Failed:        make([]string, 0),
		Unconfirmed:   make([]string, 0),
	}
	start := time.Now()
	result, err := b.paymentRail.Disburse(ctx, batchID, method, attempt, requests)
	elapsed := time.Since(start)
	if err != nil {
		b.logger.ErrorCtx(
			ctx,
			"disbursement call failed",
			zap.String("batchID", batchID),
			zap.String("paymentMethod", string(method)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		outcome.Err = err
		result.SettledIDs = nil
		result.FailedIDs = make([]string, 0, len(requests))
		for _, request := range requests {
			result.FailedIDs = append(result.FailedIDs, request.ID)
		}
	}

	// the rail only gets to confirm requests it was actually sent
	settled := make(map[string]struct{}, len(result.SettledIDs))
	for _, id := range result.SettledIDs {
		settled[id] = struct{}{}
	}
	failed := make(map[string]struct{}, len(result.FailedIDs))
	for _, id := range result.FailedIDs {
		failed[id] = struct{}{}
	}
	for _, request := range requests {
		if _, ok := settled[request.ID]; ok {
			outcome.Settled = append(outcome.Settled, request.ID)
			continue
		}
		if _, ok := failed[request.ID]; ok {
			outcome.Failed = append(outcome.Failed, request.ID)
			continue
		}
		outcome.Unconfirmed = append(outcome.Unconfirmed, request.ID)
	}

	metrics.ObserveDisbursement(
		string(method),
		elapsed,
		len(outcome.Settled),
		len(outcome.Failed),
		len(outcome.Unconfirmed),
	)
	b.logger.InfoCtx(
		ctx,
		"disbursement answered",
		zap.String("batchID", batchID),
		zap.String("paymentMethod", string(method)),
		zap.Int("requested", outcome.Requested),
		zap.Int("settled", len(outcome.Settled)),
		zap.Int("failed", len(outcome.Failed)),
		zap.Int("unconfirmed", len(outcome.Unconfirmed)),
	)
	return outcome
}

func (b *Batches) recordOutcome(ctx context.Context, batchID string, outcome MethodOutcome) error {
	return b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		_, err := b.withdrawalRepository.SetWithdrawalsStatus(
			ctx,
			batchID,
			outcome.Settled,
			data.ProcessingWithdrawal,
			data.CompletedWithdrawal,
		)
		if err != nil {
			return fmt.Errorf("marking %s withdrawals completed failed: %w", outcome.PaymentMethod, err)
		}
		_, err = b.withdrawalRepository.SetWithdrawalsStatus(
			ctx,
			batchID,
			outcome.Failed,
			data.ProcessingWithdrawal,
			data.FailedWithdrawal,
		)
		if err != nil {
			return fmt.Errorf("marking %s withdrawals failed failed: %w", outcome.PaymentMethod, err)
		}
		return nil
	})
}

// tryComplete moves the batch to completed once none of its requests is
// pending, processing or failed.
func (b *Batches) tryComplete(ctx context.Context, batchID string) (data.WeeklyBatch, bool, error) {
	var (
		batch        data.WeeklyBatch
		completed    bool
		transitioned bool
	)
	err := b.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		var err error
		batch, err = b.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status == data.CompletedBatchStatus {
			completed = true
			return nil
		}
		if batch.Status != data.ProcessingBatchStatus {
			return invalidTransition(batch, data.CompletedBatchStatus)
		}
		outstanding, err := b.withdrawalRepository.CountBatchWithdrawals(
			ctx,
			batchID,
			data.PendingWithdrawal,
			data.ProcessingWithdrawal,
			data.FailedWithdrawal,
		)
		if err != nil {
			return fmt.Errorf("counting outstanding withdrawals failed: %w", err)
		}
		if outstanding > 0 {
			return nil
		}
		err = b.transition(ctx, batch, data.CompletedBatchStatus, "", notBefore(b.clock(), batch.ProcessedAt))
		if err != nil {
			return err
		}
		completed, transitioned = true, true
		batch, err = b.GetBatch(ctx, batchID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			// a concurrent retry completed it first
			batch, getErr := b.GetBatch(ctx, batchID)
			if getErr == nil && batch.Status == data.CompletedBatchStatus {
				return batch, true, nil
			}
		}
		b.recordFailure(ctx, "complete", data.ProcessingBatchStatus, data.CompletedBatchStatus, err)
		return data.WeeklyBatch{}, false, err
	}
	if !transitioned {
		return batch, completed, nil
	}

	metrics.RecordTransition(string(data.ProcessingBatchStatus), string(data.CompletedBatchStatus), metrics.ResultOK)
	b.logger.InfoCtx(ctx, "batch completed", zap.String("batchID", batchID))
	if b.notifier != nil {
		if err := b.notifier.BatchCompleted(ctx, batch); err != nil {
			b.logger.WarnCtx(ctx, "batch completion notification failed", zap.String("batchID", batchID), zap.Error(err))
		}
	}
	return batch, true, nil
}

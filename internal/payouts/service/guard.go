package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-payouts/internal/payouts/cutoff"
	"go-payouts/internal/payouts/data"
)

type SubmissionWindow struct {
	Now          time.Time
	Cutoff       time.Time
	Remaining    time.Duration
	CutoffPassed bool
	Warning      bool
	Blocked      bool
	// BatchStatus is the status of the current batch, empty when there is none.
	BatchStatus data.BatchStatus
}

type Countdown struct {
	Cutoff    time.Time
	Remaining time.Duration
	Passed    bool
}

func (c Countdown) String() string {
	return cutoff.FormatRemaining(c.Remaining, c.Passed)
}

// IsBlockedWindow reports whether a request submitted at now must be rejected,
// judged by the state of the current batch alone. Submissions are open while
// there is no batch, while the current batch is collecting and before its
// cutoff, and once the current batch is completed.
func IsBlockedWindow(now time.Time, current *data.WeeklyBatch) bool {
	if current == nil {
		return false
	}
	switch current.Status {
	case data.CollectingBatchStatus:
		return !now.Before(current.CutoffTime)
	case data.CompletedBatchStatus:
		return false
	default:
		return true
	}
}

type LatestBatchGetter interface {
	GetLatestBatch(ctx context.Context) (data.WeeklyBatch, error)
}

// Guard answers submission window questions for the intake path and the UI.
// Its answers are advisory; Withdrawals.Submit re-checks at write time.
type Guard struct {
	batchRepository LatestBatchGetter
	schedule        cutoff.Schedule
}

func NewGuard(batchRepository LatestBatchGetter, schedule cutoff.Schedule) *Guard {
	return &Guard{
		batchRepository: batchRepository,
		schedule:        schedule,
	}
}

func (g *Guard) Window(ctx context.Context, now time.Time) (SubmissionWindow, error) {
	current, err := currentBatch(ctx, g.batchRepository)
	if err != nil {
		return SubmissionWindow{}, err
	}
	countdown := g.countdown(now, current)
	window := SubmissionWindow{
		Now:          now,
		Cutoff:       countdown.Cutoff,
		Remaining:    countdown.Remaining,
		CutoffPassed: countdown.Passed,
		Warning:      g.schedule.IsWarningWindow(now),
		Blocked:      IsBlockedWindow(now, current),
	}
	if current != nil {
		window.BatchStatus = current.Status
	}
	return window, nil
}

func (g *Guard) IsSubmissionAllowed(ctx context.Context, now time.Time) (bool, error) {
	window, err := g.Window(ctx, now)
	if err != nil {
		return false, err
	}
	return !window.Blocked, nil
}

// TimeToNextCutoff counts down to the collecting batch's cutoff, which may
// already have passed if the batch is not locked yet. Without a collecting
// batch it counts down to the next scheduled cutoff.
func (g *Guard) TimeToNextCutoff(ctx context.Context, now time.Time) (Countdown, error) {
	current, err := currentBatch(ctx, g.batchRepository)
	if err != nil {
		return Countdown{}, err
	}
	return g.countdown(now, current), nil
}

func (g *Guard) countdown(now time.Time, current *data.WeeklyBatch) Countdown {
	next := g.schedule.Next(now)
	if current != nil && current.Status == data.CollectingBatchStatus {
		next = current.CutoffTime
	}
	left, passed := cutoff.Remaining(now, next)
	return Countdown{
		Cutoff:    next,
		Remaining: left,
		Passed:    passed,
	}
}

// currentBatch returns nil when no batch has ever been created.
func currentBatch(ctx context.Context, repository LatestBatchGetter) (*data.WeeklyBatch, error) {
	batch, err := repository.GetLatestBatch(ctx)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrNotFound):
			return nil, nil
		default:
			return nil, fmt.Errorf("getting current batch failed: %w", err)
		}
	}
	return &batch, nil
}

package batchmonitor

import (
	"context"
	"errors"
	"time"

	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/metrics"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

type WindowSource interface {
	Window(ctx context.Context, now time.Time) (service.SubmissionWindow, error)
}

type BatchLocker interface {
	LockCurrentBatch(ctx context.Context, override bool) (data.WeeklyBatch, error)
}

type WindowNotifier interface {
	WindowChanged(ctx context.Context, window service.SubmissionWindow) error
}

type Config struct {
	TickPeriod time.Duration
	// AutoLock locks the collecting batch on the first tick after its cutoff.
	AutoLock bool
}

type flags struct {
	warning bool
	blocked bool
}

// BatchMonitor polls the submission window. It reports warning and blocked
// flips and, with AutoLock, drives the same lock transition an operator would.
type BatchMonitor struct {
	windows  WindowSource
	locker   BatchLocker
	notifier WindowNotifier
	clock    service.Clock
	config   Config
	logger   *logging.ZapLogger
	last     *flags
	done     chan struct{}
}

func NewBatchMonitor(
	config Config,
	windows WindowSource,
	locker BatchLocker,
	notifier WindowNotifier,
	clock service.Clock,
	logger *logging.ZapLogger,
) *BatchMonitor {
	return &BatchMonitor{
		windows:  windows,
		locker:   locker,
		notifier: notifier,
		clock:    clock,
		config:   config,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run blocks until Stop is called.
func (bm *BatchMonitor) Run() {
	ticker := time.NewTicker(bm.config.TickPeriod)
	defer ticker.Stop()

	ctx := logging.WithContextFields(context.Background(), zap.String("component", "batchmonitor"))
	bm.tick(ctx)
	for {
		select {
		case <-bm.done:
			return
		case <-ticker.C:
			bm.tick(ctx)
		}
	}
}

func (bm *BatchMonitor) Stop() {
	close(bm.done)
}

func (bm *BatchMonitor) tick(ctx context.Context) {
	now := bm.clock()
	window, err := bm.windows.Window(ctx, now)
	if err != nil {
		bm.logger.ErrorCtx(ctx, "error while evaluating submission window", zap.Error(err))
		return
	}

	if bm.config.AutoLock && window.BatchStatus == data.CollectingBatchStatus && window.CutoffPassed {
		bm.lock(ctx)
	}

	metrics.SetSubmissionWindow(window.Warning, window.Blocked)
	current := flags{warning: window.Warning, blocked: window.Blocked}
	previous := bm.last
	bm.last = &current
	if previous == nil || *previous == current {
		return
	}
	bm.logger.InfoCtx(
		ctx,
		"submission window changed",
		zap.Bool("warning", window.Warning),
		zap.Bool("blocked", window.Blocked),
		zap.String("batchStatus", string(window.BatchStatus)),
	)
	if bm.notifier == nil {
		return
	}
	if err := bm.notifier.WindowChanged(ctx, window); err != nil {
		bm.logger.WarnCtx(ctx, "window change notification failed", zap.Error(err))
	}
}

func (bm *BatchMonitor) lock(ctx context.Context) {
	batch, err := bm.locker.LockCurrentBatch(ctx, false)
	if err != nil {
		switch {
		// an operator got there first
		case errors.Is(err, service.ErrInvalidTransition),
			errors.Is(err, service.ErrConcurrencyConflict),
			errors.Is(err, service.ErrNoCurrentBatch),
			errors.Is(err, service.ErrCutoffNotReached):
			bm.logger.DebugCtx(ctx, "automatic lock skipped", zap.Error(err))
		default:
			bm.logger.ErrorCtx(ctx, "automatic lock failed", zap.Error(err))
		}
		return
	}
	bm.logger.InfoCtx(
		ctx,
		"batch locked automatically",
		zap.String("batchID", batch.ID),
		zap.Int("totalRequests", batch.Totals.TotalRequests),
	)
}

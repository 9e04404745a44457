package service

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go-payouts/internal/common/railprotocol"
	"go-payouts/internal/payouts/data"
)

// memoryStore keeps batches and withdrawals in maps and applies every update
// with the same conditions as the SQL statements.
type memoryStore struct {
	mu          sync.Mutex
	batches     map[string]data.WeeklyBatch
	withdrawals map[string]data.WithdrawalRequest
	claims      map[string]disbursementClaim

	// beforeTransition runs ahead of every conditional batch update and may
	// change the stored batch to simulate a concurrent writer.
	beforeTransition func(s *memoryStore, t data.BatchTransition)
	// insertBatchErr, when set, is returned once by InsertBatch.
	insertBatchErr error
}

// disbursementClaim mirrors the disbursing_since and disbursement_attempt columns.
type disbursementClaim struct {
	since   *time.Time
	attempt int
}

type memorySnapshot struct {
	batches     map[string]data.WeeklyBatch
	withdrawals map[string]data.WithdrawalRequest
	claims      map[string]disbursementClaim
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		batches:     make(map[string]data.WeeklyBatch),
		withdrawals: make(map[string]data.WithdrawalRequest),
		claims:      make(map[string]disbursementClaim),
	}
}

func (s *memoryStore) snapshot() memorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memorySnapshot{
		batches:     maps.Clone(s.batches),
		withdrawals: maps.Clone(s.withdrawals),
		claims:      maps.Clone(s.claims),
	}
}

func (s *memoryStore) restore(snapshot memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = snapshot.batches
	s.withdrawals = snapshot.withdrawals
	s.claims = snapshot.claims
}

func (s *memoryStore) claim(batchID string) disbursementClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims[batchID]
}

func (s *memoryStore) putBatch(batch data.WeeklyBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
}

func (s *memoryStore) putWithdrawal(request data.WithdrawalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals[request.ID] = request
}

func (s *memoryStore) batch(id string) data.WeeklyBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id]
}

func (s *memoryStore) withdrawal(id string) data.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals[id]
}

func (s *memoryStore) InsertBatch(_ context.Context, batch *data.WeeklyBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertBatchErr != nil {
		err := s.insertBatchErr
		s.insertBatchErr = nil
		return err
	}
	if _, ok := s.batches[batch.ID]; ok {
		return data.ErrUniqueConstraintViolation
	}
	for _, existing := range s.batches {
		if existing.Status == data.CollectingBatchStatus && batch.Status == data.CollectingBatchStatus {
			return data.ErrUniqueConstraintViolation
		}
	}
	stored := *batch
	stored.Totals = zeroTotals()
	s.batches[batch.ID] = stored
	return nil
}

func (s *memoryStore) GetLatestBatch(_ context.Context) (data.WeeklyBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return data.WeeklyBatch{}, data.ErrNotFound
	}
	batches := slices.Collect(maps.Values(s.batches))
	slices.SortFunc(batches, func(a, b data.WeeklyBatch) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return batches[0], nil
}

func (s *memoryStore) GetLatestBatchForShare(ctx context.Context) (data.WeeklyBatch, error) {
	return s.GetLatestBatch(ctx)
}

func (s *memoryStore) GetBatch(_ context.Context, batchID string) (data.WeeklyBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return data.WeeklyBatch{}, data.ErrNotFound
	}
	return batch, nil
}

func (s *memoryStore) TransitionBatch(_ context.Context, t data.BatchTransition) error {
	if s.beforeTransition != nil {
		s.beforeTransition(s, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[t.BatchID]
	if !ok || batch.Status != t.From {
		return data.ErrNoRowsAffected
	}
	at := t.At
	actor := t.Actor
	batch.Status = t.To
	switch t.To {
	case data.LockedBatchStatus:
		batch.LockedAt = &at
	case data.ApprovedBatchStatus:
		batch.ApprovedAt = &at
		batch.ApprovedBy = &actor
	case data.ProcessingBatchStatus:
		batch.ProcessedAt = &at
		batch.ProcessedBy = &actor
	case data.CompletedBatchStatus:
		batch.CompletedAt = &at
	}
	s.batches[t.BatchID] = batch
	return nil
}

func (s *memoryStore) SetBatchTotals(_ context.Context, batchID string, totals data.BatchTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok || batch.Status != data.LockedBatchStatus {
		return data.ErrNoRowsAffected
	}
	batch.Totals = totals
	s.batches[batchID] = batch
	return nil
}

func (s *memoryStore) ClaimDisbursement(
	_ context.Context,
	batchID string,
	now time.Time,
	staleBefore time.Time,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok || batch.Status != data.ProcessingBatchStatus {
		return 0, data.ErrNoRowsAffected
	}
	claim := s.claims[batchID]
	if claim.since != nil && !claim.since.Before(staleBefore) {
		return 0, data.ErrNoRowsAffected
	}
	claim.since = &now
	claim.attempt++
	s.claims[batchID] = claim
	return claim.attempt, nil
}

func (s *memoryStore) ReleaseDisbursement(_ context.Context, batchID string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[batchID]
	if !ok || claim.attempt != attempt {
		return nil
	}
	claim.since = nil
	s.claims[batchID] = claim
	return nil
}

func (s *memoryStore) InsertWithdrawal(_ context.Context, request *data.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[request.ID]; ok {
		return data.ErrUniqueConstraintViolation
	}
	stored := *request
	stored.BatchID = nil
	stored.BatchDate = nil
	s.withdrawals[request.ID] = stored
	return nil
}

func (s *memoryStore) AttachPendingWithdrawals(_ context.Context, batchID string, batchDate time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch, ok := s.batches[batchID]; !ok || batch.Status != data.LockedBatchStatus {
		return 0, nil
	}
	var attached int64
	for id, request := range s.withdrawals {
		if request.Status != data.PendingWithdrawal || request.BatchID != nil {
			continue
		}
		batchIDCopy, batchDateCopy := batchID, batchDate
		request.BatchID = &batchIDCopy
		request.BatchDate = &batchDateCopy
		s.withdrawals[id] = request
		attached++
	}
	return attached, nil
}

func (s *memoryStore) GetUnbatchedWithdrawals(_ context.Context) ([]data.WithdrawalRequest, error) {
	return s.filter(func(r data.WithdrawalRequest) bool {
		return r.Status == data.PendingWithdrawal && r.BatchID == nil
	}), nil
}

func (s *memoryStore) GetPendingWithdrawals(_ context.Context) ([]data.WithdrawalRequest, error) {
	return s.filter(func(r data.WithdrawalRequest) bool {
		return r.Status == data.PendingWithdrawal
	}), nil
}

func (s *memoryStore) GetBatchWithdrawals(
	_ context.Context,
	batchID string,
	allowedStatuses ...data.WithdrawalStatus,
) ([]data.WithdrawalRequest, error) {
	return s.filter(func(r data.WithdrawalRequest) bool {
		return inBatch(r, batchID) && (len(allowedStatuses) == 0 || slices.Contains(allowedStatuses, r.Status))
	}), nil
}

func (s *memoryStore) CountBatchWithdrawals(
	ctx context.Context,
	batchID string,
	statuses ...data.WithdrawalStatus,
) (int, error) {
	requests, err := s.GetBatchWithdrawals(ctx, batchID, statuses...)
	return len(requests), err
}

func (s *memoryStore) SetWithdrawalsStatus(
	_ context.Context,
	batchID string,
	ids []string,
	from data.WithdrawalStatus,
	to data.WithdrawalStatus,
) (int64, error) {
	if ids != nil && len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for id, request := range s.withdrawals {
		if !inBatch(request, batchID) || request.Status != from {
			continue
		}
		if ids != nil && !slices.Contains(ids, id) {
			continue
		}
		request.Status = to
		s.withdrawals[id] = request
		updated++
	}
	return updated, nil
}

func (s *memoryStore) filter(keep func(data.WithdrawalRequest) bool) []data.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]data.WithdrawalRequest, 0)
	for _, request := range s.withdrawals {
		if keep(request) {
			result = append(result, request)
		}
	}
	slices.SortFunc(result, func(a, b data.WithdrawalRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func inBatch(request data.WithdrawalRequest, batchID string) bool {
	return request.BatchID != nil && *request.BatchID == batchID
}

// memoryTransactions runs transactions one at a time and rolls the store back
// on error. Like a pool it refuses to begin or commit on a cancelled context.
type memoryTransactions struct {
	mu    sync.Mutex
	store *memoryStore
	// afterCommit, when set, runs once after the next successful commit.
	afterCommit func()
}

func (m *memoryTransactions) DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	if err := m.run(ctx, f); err != nil {
		return err
	}
	m.mu.Lock()
	hook := m.afterCommit
	m.afterCommit = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (m *memoryTransactions) run(ctx context.Context, f func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.store.snapshot()
	err := f(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.store.restore(snapshot)
		return err
	}
	return nil
}

type railCall struct {
	BatchID string
	Method  data.PaymentMethod
	Attempt int
	IDs     []string
}

// fakeRail settles everything it is sent unless told otherwise per method.
type fakeRail struct {
	mu     sync.Mutex
	calls  []railCall
	errs   map[data.PaymentMethod]error
	failed map[data.PaymentMethod]bool
	// silent methods answer without confirming anything.
	silent map[data.PaymentMethod]bool
	// entered is signalled on every call, which then waits for gate to close.
	entered chan struct{}
	gate    chan struct{}
	// answered runs after every call has been decided.
	answered func()
}

func newFakeRail() *fakeRail {
	return &fakeRail{
		errs:   make(map[data.PaymentMethod]error),
		failed: make(map[data.PaymentMethod]bool),
		silent: make(map[data.PaymentMethod]bool),
	}
}

func (r *fakeRail) Disburse(
	_ context.Context,
	batchID string,
	method data.PaymentMethod,
	attempt int,
	requests []data.WithdrawalRequest,
) (railprotocol.DisbursementResult, error) {
	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.gate
	}
	if r.answered != nil {
		defer r.answered()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(requests))
	for i, request := range requests {
		ids[i] = request.ID
	}
	r.calls = append(r.calls, railCall{BatchID: batchID, Method: method, Attempt: attempt, IDs: ids})
	if err := r.errs[method]; err != nil {
		return railprotocol.DisbursementResult{}, err
	}
	switch {
	case r.silent[method]:
		return railprotocol.DisbursementResult{}, nil
	case r.failed[method]:
		return railprotocol.DisbursementResult{FailedIDs: ids}, nil
	default:
		return railprotocol.DisbursementResult{SettledIDs: ids}, nil
	}
}

func (r *fakeRail) callsFor(method data.PaymentMethod) []railCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]railCall, 0)
	for _, call := range r.calls {
		if call.Method == method {
			result = append(result, call)
		}
	}
	return result
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []data.WeeklyBatch
	windows   []SubmissionWindow
	err       error
}

func (n *fakeNotifier) BatchCompleted(_ context.Context, batch data.WeeklyBatch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, batch)
	return n.err
}

func (n *fakeNotifier) WindowChanged(_ context.Context, window SubmissionWindow) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.windows = append(n.windows, window)
	return n.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type staticRates map[string]decimal.Decimal

func (r staticRates) Rate(_ context.Context, currency string) (decimal.Decimal, error) {
	rate, ok := r[currency]
	if !ok {
		return decimal.Zero, ErrInvalidWithdrawal
	}
	return rate, nil
}

func zeroTotals() data.BatchTotals {
	return data.BatchTotals{
		TotalAmountUSD: decimal.Zero,
		PayPalAmount:   decimal.Zero,
		PaystackAmount: decimal.Zero,
	}
}

func utcTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func ptr[T any](v T) *T {
	return &v
}

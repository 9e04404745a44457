package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/mock"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/service"
)

type batchesMock struct {
	mock.Mock
}

func (m *batchesMock) GetCurrentBatch(ctx context.Context) (data.WeeklyBatch, error) {
	args := m.Called(ctx)
	return args.Get(0).(data.WeeklyBatch), args.Error(1)
}

func (m *batchesMock) GetBatchSummary(ctx context.Context) ([]service.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]service.Summary), args.Error(1)
}

func (m *batchesMock) GetAttachedSummary(ctx context.Context, batchID string) ([]service.Summary, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]service.Summary), args.Error(1)
}

func (m *batchesMock) LockCurrentBatch(ctx context.Context, override bool) (data.WeeklyBatch, error) {
	args := m.Called(ctx, override)
	return args.Get(0).(data.WeeklyBatch), args.Error(1)
}

func (m *batchesMock) ApproveBatch(ctx context.Context, batchID string, actor string) (data.WeeklyBatch, error) {
	args := m.Called(ctx, batchID, actor)
	return args.Get(0).(data.WeeklyBatch), args.Error(1)
}

func (m *batchesMock) StartProcessing(
	ctx context.Context,
	batchID string,
	actor string,
) (service.DisbursementReport, error) {
	args := m.Called(ctx, batchID, actor)
	return args.Get(0).(service.DisbursementReport), args.Error(1)
}

func (m *batchesMock) RetryDisbursement(
	ctx context.Context,
	batchID string,
	actor string,
) (service.DisbursementReport, error) {
	args := m.Called(ctx, batchID, actor)
	return args.Get(0).(service.DisbursementReport), args.Error(1)
}

type reportsMock struct {
	mock.Mock
}

func (m *reportsMock) ExportPendingReport(ctx context.Context) (service.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.Report), args.Error(1)
}

func (m *reportsMock) ExportBatchReport(ctx context.Context, batchID string) (service.Report, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(service.Report), args.Error(1)
}

type windowMock struct {
	mock.Mock
}

func (m *windowMock) Window(ctx context.Context, now time.Time) (service.SubmissionWindow, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(service.SubmissionWindow), args.Error(1)
}

type withdrawalsMock struct {
	mock.Mock
}

func (m *withdrawalsMock) Submit(ctx context.Context, input service.WithdrawalInput) (data.WithdrawalRequest, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(data.WithdrawalRequest), args.Error(1)
}

var tokenAuth = jwtauth.New("HS256", []byte("secret"), nil)

// withSubject puts a verified token for subject into the request context the
// way jwtauth.Verifier would.
func withSubject(r *http.Request, subject string) *http.Request {
	token, _, err := tokenAuth.Encode(map[string]any{"sub": subject})
	if err != nil {
		panic(err)
	}
	return r.WithContext(jwtauth.NewContext(r.Context(), token, nil))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
}

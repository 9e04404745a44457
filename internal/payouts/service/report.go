package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"go-payouts/internal/payouts/data"
)

const notAvailable = "N/A"

var reportHeader = []string{
	"User Email",
	"Amount (USD)",
	"Payment Method",
	"Local Amount",
	"Local Currency",
	"Status",
	"Requested At",
}

type Report struct {
	Filename string
	Content  []byte
	Rows     int
}

// WriteCSV writes one row per request, in the order given. Missing local
// currency fields are written as N/A so every row has the same columns.
func WriteCSV(w io.Writer, requests []data.WithdrawalRequest) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reportHeader); err != nil {
		return fmt.Errorf("writing report header failed: %w", err)
	}
	for _, request := range requests {
		localAmount := notAvailable
		if request.LocalAmount.Valid {
			localAmount = request.LocalAmount.Decimal.StringFixed(2)
		}
		localCurrency := notAvailable
		if request.LocalCurrency != nil && *request.LocalCurrency != "" {
			localCurrency = *request.LocalCurrency
		}
		err := writer.Write([]string{
			request.UserEmail,
			request.AmountUSD.StringFixed(2),
			string(request.PaymentMethod),
			localAmount,
			localCurrency,
			string(request.Status),
			request.CreatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("writing report row %s failed: %w", request.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing report failed: %w", err)
	}
	return nil
}

type PendingLister interface {
	GetPendingWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error)
}

type BatchWithdrawalsLister interface {
	GetBatchWithdrawals(
		ctx context.Context,
		batchID string,
		allowedStatuses ...data.WithdrawalStatus,
	) ([]data.WithdrawalRequest, error)
}

type ReportRepository interface {
	PendingLister
	BatchWithdrawalsLister
	GetBatch(ctx context.Context, batchID string) (data.WeeklyBatch, error)
}

// Reports produces audit downloads.
type Reports struct {
	repository ReportRepository
	clock      Clock
}

func NewReports(repository ReportRepository, clock Clock) *Reports {
	return &Reports{
		repository: repository,
		clock:      clock,
	}
}

// ExportPendingReport lists every pending request in the store at export time exactly once.
func (r *Reports) ExportPendingReport(ctx context.Context) (Report, error) {
	requests, err := r.repository.GetPendingWithdrawals(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("getting pending withdrawals failed: %w", err)
	}
	filename := fmt.Sprintf("withdrawal-report-%s.csv", r.clock().UTC().Format(time.DateOnly))
	return render(filename, requests)
}

// ExportBatchReport lists every request attached to a batch, whatever its status.
func (r *Reports) ExportBatchReport(ctx context.Context, batchID string) (Report, error) {
	batch, err := r.repository.GetBatch(ctx, batchID)
	if err != nil {
		return Report{}, batchLookupError(err, batchID)
	}
	requests, err := r.repository.GetBatchWithdrawals(ctx, batch.ID)
	if err != nil {
		return Report{}, fmt.Errorf("getting batch withdrawals failed: %w", err)
	}
	filename := fmt.Sprintf("withdrawal-batch-%s-%s.csv", batch.BatchDate.Format(time.DateOnly), batch.ID)
	return render(filename, requests)
}

func render(filename string, requests []data.WithdrawalRequest) (Report, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, requests); err != nil {
		return Report{}, err
	}
	return Report{
		Filename: filename,
		Content:  buf.Bytes(),
		Rows:     len(requests),
	}, nil
}

package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const (
	withdrawalColumns = "id, user_id, user_email, country, amount_usd, fee, net_amount, local_amount, " +
		"local_currency, exchange_rate, payment_method, status, batch_id, batch_date, created_at"
)

type DBStorage interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) (pgx.Row, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryValue(ctx context.Context, query string, args []any, dest []any) error
}

type DBRepository struct {
	storage DBStorage
	logger  *logging.ZapLogger
}

func New(storage DBStorage, logger *logging.ZapLogger) *DBRepository {
	return &DBRepository{
		storage: storage,
		logger:  logger,
	}
}

//go:embed sql/insert_batch.sql
var insertBatchQuery string

func (db *DBRepository) InsertBatch(ctx context.Context, batch *data.WeeklyBatch) error {
	_, err := db.storage.Exec(
		ctx,
		insertBatchQuery,
		batch.ID,
		batch.BatchDate,
		batch.CutoffTime,
		string(batch.Status),
		batch.CreatedAt,
	)
	if err != nil {
		return handleSQLError(err)
	}
	return nil
}

//go:embed sql/select_latest_batch.sql
var selectLatestBatchQuery string

// GetLatestBatch returns the most recently created batch, which is the current one.
func (db *DBRepository) GetLatestBatch(ctx context.Context) (data.WeeklyBatch, error) {
	return db.getBatch(ctx, selectLatestBatchQuery)
}

//go:embed sql/select_latest_batch_for_share.sql
var selectLatestBatchForShareQuery string

// GetLatestBatchForShare is GetLatestBatch holding a share lock on the row
// until the surrounding transaction ends, so a concurrent lock waits for it.
func (db *DBRepository) GetLatestBatchForShare(ctx context.Context) (data.WeeklyBatch, error) {
	return db.getBatch(ctx, selectLatestBatchForShareQuery)
}

//go:embed sql/select_batch.sql
var selectBatchQuery string

func (db *DBRepository) GetBatch(ctx context.Context, batchID string) (data.WeeklyBatch, error) {
	return db.getBatch(ctx, selectBatchQuery, batchID)
}

func (db *DBRepository) getBatch(ctx context.Context, query string, args ...any) (data.WeeklyBatch, error) {
	row, err := db.storage.QueryRow(ctx, query, args...)
	if err != nil {
		return data.WeeklyBatch{}, handleSQLError(err)
	}
	batch, err := scanBatch(row)
	if err != nil {
		return data.WeeklyBatch{}, handleSQLError(err)
	}
	return batch, nil
}

//go:embed sql/update_batch_status.sql
var updateBatchStatusQuery string

// TransitionBatch moves a batch from t.From to t.To in a single conditional
// update. It returns data.ErrNoRowsAffected when the batch was not in t.From.
func (db *DBRepository) TransitionBatch(ctx context.Context, t data.BatchTransition) error {
	db.logger.DebugCtx(
		ctx,
		"transitioning batch",
		zap.String("batchID", t.BatchID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	tag, err := db.storage.Exec(
		ctx,
		updateBatchStatusQuery,
		t.BatchID,
		string(t.From),
		string(t.To),
		t.At,
		t.Actor,
	)
	if err != nil {
		return handleSQLError(err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrNoRowsAffected
	}
	return nil
}

//go:embed sql/update_batch_totals.sql
var updateBatchTotalsQuery string

func (db *DBRepository) SetBatchTotals(ctx context.Context, batchID string, totals data.BatchTotals) error {
	tag, err := db.storage.Exec(
		ctx,
		updateBatchTotalsQuery,
		batchID,
		totals.TotalRequests,
		totals.TotalAmountUSD,
		totals.PayPalAmount,
		totals.PaystackAmount,
	)
	if err != nil {
		return handleSQLError(err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrNoRowsAffected
	}
	return nil
}

//go:embed sql/claim_batch_disbursement.sql
var claimBatchDisbursementQuery string

// ClaimDisbursement marks a processing batch as being disbursed and returns
// the new attempt number. A claim older than staleBefore counts as released.
// It returns data.ErrNoRowsAffected when another claim is still live.
func (db *DBRepository) ClaimDisbursement(
	ctx context.Context,
	batchID string,
	now time.Time,
	staleBefore time.Time,
) (int, error) {
	var attempt int
	err := db.storage.QueryValue(ctx, claimBatchDisbursementQuery, []any{batchID, now, staleBefore}, []any{&attempt})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, data.ErrNoRowsAffected
	}
	if err != nil {
		return 0, handleSQLError(err)
	}
	return attempt, nil
}

//go:embed sql/release_batch_disbursement.sql
var releaseBatchDisbursementQuery string

// ReleaseDisbursement clears the claim taken by attempt. A claim that was
// since taken over by a later attempt is left alone.
func (db *DBRepository) ReleaseDisbursement(ctx context.Context, batchID string, attempt int) error {
	_, err := db.storage.Exec(ctx, releaseBatchDisbursementQuery, batchID, attempt)
	if err != nil {
		return handleSQLError(err)
	}
	return nil
}

//go:embed sql/insert_withdrawal.sql
var insertWithdrawalQuery string

func (db *DBRepository) InsertWithdrawal(ctx context.Context, request *data.WithdrawalRequest) error {
	_, err := db.storage.Exec(
		ctx,
		insertWithdrawalQuery,
		request.ID,
		request.UserID,
		request.UserEmail,
		request.Country,
		request.AmountUSD,
		request.Fee,
		request.NetAmount,
		request.LocalAmount,
		request.LocalCurrency,
		request.ExchangeRate,
		string(request.PaymentMethod),
		string(request.Status),
		request.CreatedAt,
	)
	if err != nil {
		return handleSQLError(err)
	}
	return nil
}

//go:embed sql/attach_pending_withdrawals.sql
var attachPendingWithdrawalsQuery string

// AttachPendingWithdrawals captures every pending, unbatched request into a
// locked batch. Nothing is attached unless the batch is locked.
func (db *DBRepository) AttachPendingWithdrawals(
	ctx context.Context,
	batchID string,
	batchDate time.Time,
) (int64, error) {
	tag, err := db.storage.Exec(ctx, attachPendingWithdrawalsQuery, batchID, batchDate)
	if err != nil {
		return 0, handleSQLError(err)
	}
	return tag.RowsAffected(), nil
}

//go:embed sql/select_unbatched_withdrawals.sql
var selectUnbatchedWithdrawalsQuery string

func (db *DBRepository) GetUnbatchedWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error) {
	return db.getWithdrawals(ctx, selectUnbatchedWithdrawalsQuery)
}

//go:embed sql/select_pending_withdrawals.sql
var selectPendingWithdrawalsQuery string

// GetPendingWithdrawals returns every pending request, batched or not.
func (db *DBRepository) GetPendingWithdrawals(ctx context.Context) ([]data.WithdrawalRequest, error) {
	return db.getWithdrawals(ctx, selectPendingWithdrawalsQuery)
}

func (db *DBRepository) GetBatchWithdrawals(
	ctx context.Context,
	batchID string,
	allowedStatuses ...data.WithdrawalStatus,
) ([]data.WithdrawalRequest, error) {
	query := "SELECT " + withdrawalColumns + " FROM withdrawal_requests WHERE batch_id = $1"
	if len(allowedStatuses) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", formatParams(2, len(allowedStatuses)))
	}
	query += " ORDER BY created_at, id"
	args := []any{batchID}
	for _, allowedStatus := range allowedStatuses {
		args = append(args, string(allowedStatus))
	}
	return db.getWithdrawals(ctx, query, args...)
}

// CountBatchWithdrawals counts the requests of a batch in any of the given statuses.
func (db *DBRepository) CountBatchWithdrawals(
	ctx context.Context,
	batchID string,
	statuses ...data.WithdrawalStatus,
) (count int, err error) {
	query := "SELECT count(*) FROM withdrawal_requests WHERE batch_id = $1"
	if len(statuses) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", formatParams(2, len(statuses)))
	}
	args := []any{batchID}
	for _, status := range statuses {
		args = append(args, string(status))
	}
	err = db.storage.QueryValue(ctx, query, args, []any{&count})
	if err != nil {
		return 0, handleSQLError(err)
	}
	return count, nil
}

//go:embed sql/update_withdrawals_status.sql
var updateWithdrawalsStatusQuery string

// SetWithdrawalsStatus moves requests of a batch from one status to another.
// A nil ids slice applies to every request of the batch in status from.
func (db *DBRepository) SetWithdrawalsStatus(
	ctx context.Context,
	batchID string,
	ids []string,
	from data.WithdrawalStatus,
	to data.WithdrawalStatus,
) (int64, error) {
	if ids != nil && len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.storage.Exec(ctx, updateWithdrawalsStatusQuery, batchID, string(from), string(to), ids)
	if err != nil {
		return 0, handleSQLError(err)
	}
	return tag.RowsAffected(), nil
}

func (db *DBRepository) getWithdrawals(ctx context.Context, query string, args ...any) ([]data.WithdrawalRequest, error) {
	rows, err := db.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	result := make([]data.WithdrawalRequest, 0)
	for rows.Next() {
		var request data.WithdrawalRequest
		err := rows.Scan(
			&request.ID,
			&request.UserID,
			&request.UserEmail,
			&request.Country,
			&request.AmountUSD,
			&request.Fee,
			&request.NetAmount,
			&request.LocalAmount,
			&request.LocalCurrency,
			&request.ExchangeRate,
			&request.PaymentMethod,
			&request.Status,
			&request.BatchID,
			&request.BatchDate,
			&request.CreatedAt,
		)
		if err != nil {
			return nil, handleSQLError(err)
		}
		request.CreatedAt = request.CreatedAt.UTC()
		request.BatchDate = utc(request.BatchDate)
		result = append(result, request)
	}
	if err = rows.Err(); err != nil {
		return nil, handleSQLError(err)
	}
	return result, nil
}

func scanBatch(row pgx.Row) (data.WeeklyBatch, error) {
	var batch data.WeeklyBatch
	err := row.Scan(
		&batch.ID,
		&batch.BatchDate,
		&batch.CutoffTime,
		&batch.Status,
		&batch.Totals.TotalRequests,
		&batch.Totals.TotalAmountUSD,
		&batch.Totals.PayPalAmount,
		&batch.Totals.PaystackAmount,
		&batch.CreatedAt,
		&batch.LockedAt,
		&batch.ApprovedAt,
		&batch.ApprovedBy,
		&batch.ProcessedAt,
		&batch.ProcessedBy,
		&batch.CompletedAt,
	)
	if err != nil {
		return data.WeeklyBatch{}, err //nolint:wrapcheck // unnecessary
	}
	batch.BatchDate = batch.BatchDate.UTC()
	batch.CutoffTime = batch.CutoffTime.UTC()
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.LockedAt = utc(batch.LockedAt)
	batch.ApprovedAt = utc(batch.ApprovedAt)
	batch.ProcessedAt = utc(batch.ProcessedAt)
	batch.CompletedAt = utc(batch.CompletedAt)
	return batch, nil
}

// pgx hands timestamps back in time.Local.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func handleSQLError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return data.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", data.ErrUniqueConstraintViolation, pgErr.ConstraintName)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", data.ErrSerializationFailure, pgErr.Message)
		}
	}
	return err
}

func formatParams(firstNumber, valuesCount int) string {
	currentNum := firstNumber
	values := make([]string, valuesCount)
	for i := range valuesCount {
		values[i] = fmt.Sprintf("$%v", currentNum)
		currentNum++
	}
	return strings.Join(values, ",")
}

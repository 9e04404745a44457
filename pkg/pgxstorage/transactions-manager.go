package pgxstorage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type TransactionsManager struct {
	storage *DBStorage
	opts    pgx.TxOptions
}

// NewTransactionsManager runs every transaction at the given isolation level.
// Read committed lets a statement that waited on a row lock see rows committed
// while it waited, which conditional updates rely on.
func NewTransactionsManager(storage *DBStorage, isoLevel pgx.TxIsoLevel) *TransactionsManager {
	return &TransactionsManager{
		storage: storage,
		opts:    pgx.TxOptions{IsoLevel: isoLevel},
	}
}

// DoWithTransaction joins the transaction already carried by ctx, if any.
func (tm *TransactionsManager) DoWithTransaction(
	ctx context.Context,
	f func(ctx context.Context) error,
) error {
	if _, err := getTransaction(ctx); err == nil {
		return f(ctx)
	}
	ctxWithTransaction, tx, err := tm.storage.withTransaction(ctx, tm.opts)
	if err != nil {
		return err
	}
	err = f(ctxWithTransaction)
	if err != nil {
		rollbackErr := tx.Rollback(context.Background())
		if rollbackErr != nil {
			return fmt.Errorf("transaction rollback failed: %w, rollback caused by %w", rollbackErr, err)
		}
		return err
	}
	// a failed commit already rolls the transaction back
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

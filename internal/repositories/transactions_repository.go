package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/models"
	"github.com/hemiko/topup_reconciler/internal/storage"
)

type TransactionsRepository struct {
	strg TransactionsStorage
	lg   *logging.ZapLogger
}

type TransactionsStorage interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

func NewTransactionsRepository(strg *storage.Storage, lg *logging.ZapLogger) *TransactionsRepository {
	return &TransactionsRepository{strg: strg.DB, lg: lg}
}

func (rep *TransactionsRepository) Create(ctx context.Context, in *models.Transaction) error {
	_, err := rep.strg.Exec(
		ctx,
		`
			INSERT INTO transactions(transaction_id, account_id, primary_key, credit_amount, state, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
		in.TransactionID, in.AccountID, in.PrimaryKey, in.CreditAmount, in.State, in.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("transactions_repository: save transaction error %w", err)
	}

	return nil
}

// FindPending returns pending transactions created at or after oldest, in
// creation order. Older pending rows age out of polling but keep their record.
func (rep *TransactionsRepository) FindPending(ctx context.Context, oldest time.Time) ([]*models.Transaction, error) {
	rows, err := rep.strg.Query(
		ctx,
		`
			SELECT transaction_id, account_id, primary_key, credit_amount, state, created_at
			FROM transactions
			WHERE state = $1 AND created_at >= $2
			ORDER BY created_at ASC
		`,
		models.TransactionPendingState, oldest,
	)
	if err != nil {
		return nil, fmt.Errorf("transactions_repository: query pending transactions error %w", err)
	}
	defer rows.Close()

	return rep.collect(rows)
}

// FindUndelivered returns confirmed transactions whose credit has not been
// applied yet, completion timestamp included so retried deliveries report
// the stored value. Unlike FindPending the selection is not bounded by age:
// a completed transaction keeps its delivery claim until it succeeds.
func (rep *TransactionsRepository) FindUndelivered(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := rep.strg.Query(
		ctx,
		`
			SELECT transaction_id, account_id, primary_key, credit_amount, state, created_at, completed_at
			FROM transactions
			WHERE state = $1 AND delivered = FALSE
			ORDER BY created_at ASC
		`,
		models.TransactionCompletedState,
	)
	if err != nil {
		return nil, fmt.Errorf("transactions_repository: query undelivered transactions error %w", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		t := &models.Transaction{}
		var completedAt sql.NullTime
		if err := rows.Scan(
			&t.TransactionID,
			&t.AccountID,
			&t.PrimaryKey,
			&t.CreditAmount,
			&t.State,
			&t.CreatedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("transactions_repository: scan undelivered transaction error %w", err)
		}

		if completedAt.Valid {
			t.CompletedAt = completedAt.Time
		}

		transactions = append(transactions, t)
	}

	return transactions, nil
}

// MarkCompleted transitions a pending transaction to completed and stamps
// completed_at. The write is conditional on the current state, so confirming
// an already-completed transaction reports false without touching the row.
func (rep *TransactionsRepository) MarkCompleted(ctx context.Context, transactionID string, completedAt time.Time) (bool, error) {
	tag, err := rep.strg.Exec(
		ctx,
		`
			UPDATE transactions
			SET state = $1, completed_at = $2
			WHERE transaction_id = $3 AND state = $4
		`,
		models.TransactionCompletedState, completedAt, transactionID, models.TransactionPendingState,
	)

	if err != nil {
		return false, fmt.Errorf("transactions_repository: mark completed error %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ClaimDeliveryTX flips delivered to true for exactly one caller. The claim
// shares the transaction with the balance credit, so the credit applies iff
// the claim commits.
func (rep *TransactionsRepository) ClaimDeliveryTX(ctx context.Context, tx pgx.Tx, transactionID string) (bool, error) {
	tag, err := tx.Exec(
		ctx,
		`
			UPDATE transactions
			SET delivered = TRUE
			WHERE transaction_id = $1 AND state = $2 AND delivered = FALSE
		`,
		transactionID, models.TransactionCompletedState,
	)

	if err != nil {
		return false, fmt.Errorf("transactions_repository: claim delivery error %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (rep *TransactionsRepository) collect(rows pgx.Rows) ([]*models.Transaction, error) {
	transactions := []*models.Transaction{}
	for rows.Next() {
		t := &models.Transaction{}
		if err := rows.Scan(
			&t.TransactionID,
			&t.AccountID,
			&t.PrimaryKey,
			&t.CreditAmount,
			&t.State,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("transactions_repository: scan transaction error %w", err)
		}

		transactions = append(transactions, t)
	}

	return transactions, nil
}

func (rep *TransactionsRepository) BeginTX(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return rep.strg.BeginTx(ctx, opts)
}

func (rep *TransactionsRepository) CommitTX(ctx context.Context, tx pgx.Tx) error {
	return tx.Commit(ctx)
}

func (rep *TransactionsRepository) RollbackTX(ctx context.Context, tx pgx.Tx) error {
	return tx.Rollback(ctx)
}

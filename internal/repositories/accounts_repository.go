package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/storage"
)

// ErrAccountNotFound indicates a credit addressed to an account the ledger
// does not know.
var ErrAccountNotFound = errors.New("account not found")

type AccountsRepository struct {
	strg AccountsStorage
	lg   *logging.ZapLogger
}

type AccountsStorage interface {
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

func NewAccountsRepository(strg *storage.Storage, lg *logging.ZapLogger) *AccountsRepository {
	return &AccountsRepository{strg: strg.DB, lg: lg}
}

// CreditTX adds amount to the account balance within the caller's
// transaction. The balance only grows through this method.
func (rep *AccountsRepository) CreditTX(ctx context.Context, tx pgx.Tx, accountID int64, amount int64) error {
	tag, err := tx.Exec(
		ctx,
		`
			UPDATE accounts
			SET balance = balance + $1
			WHERE id = $2
		`,
		amount, accountID,
	)

	if err != nil {
		return fmt.Errorf("accounts_repository: credit balance error %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accounts_repository: credit account %d error %w", accountID, ErrAccountNotFound)
	}

	return nil
}

func (rep *AccountsRepository) Balance(ctx context.Context, accountID int64) (int64, error) {
	row := rep.strg.QueryRow(
		ctx,
		`
			SELECT balance
			FROM accounts
			WHERE id = $1
		`,
		accountID,
	)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("accounts_repository: balance of account %d error %w", accountID, ErrAccountNotFound)
		}

		return 0, fmt.Errorf("accounts_repository: scan balance error %w", err)
	}

	return balance, nil
}

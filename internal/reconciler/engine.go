package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/models"
	"github.com/hemiko/topup_reconciler/internal/verification"
)

type TransactionsRepository interface {
	FindPending(ctx context.Context, oldest time.Time) ([]*models.Transaction, error)
	FindUndelivered(ctx context.Context) ([]*models.Transaction, error)
	MarkCompleted(ctx context.Context, transactionID string, completedAt time.Time) (bool, error)
	ClaimDeliveryTX(ctx context.Context, tx pgx.Tx, transactionID string) (bool, error)
	BeginTX(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	CommitTX(ctx context.Context, tx pgx.Tx) error
	RollbackTX(ctx context.Context, tx pgx.Tx) error
}

type AccountsRepository interface {
	CreditTX(ctx context.Context, tx pgx.Tx, accountID int64, amount int64) error
}

type EventsPublisher interface {
	TransactionCompleted(ctx context.Context, t *models.Transaction) error
}

// Engine runs one reconciliation cycle at a time: select pending
// transactions inside the lookback window, verify settlement against the
// payment network, transition confirmed transactions to completed and credit
// the owning account exactly once.
type Engine struct {
	lg           *logging.ZapLogger
	client       verification.Client
	transactions TransactionsRepository
	accounts     AccountsRepository
	events       EventsPublisher
	lookback     time.Duration
	now          func() time.Time
}

func NewEngine(
	cfg *config.Config,
	lg *logging.ZapLogger,
	client verification.Client,
	transactions TransactionsRepository,
	accounts AccountsRepository,
	events EventsPublisher,
) *Engine {
	return &Engine{
		lg:           lg,
		client:       client,
		transactions: transactions,
		accounts:     accounts,
		events:       events,
		lookback:     time.Duration(cfg.ReconcilerLookbackWindow) * time.Millisecond,
		now:          time.Now,
	}
}

// RunCycle performs one full pass. Transactions are processed in store
// order and in isolation: one transaction failing to verify or deliver
// never aborts the rest of the cycle. Only a store-level failure ends the
// cycle early.
func (e *Engine) RunCycle(ctx context.Context) error {
	pending, err := e.transactions.FindPending(ctx, e.now().Add(-e.lookback))
	if err != nil {
		return fmt.Errorf("reconciler: find pending transactions error %w", err)
	}

	if len(pending) > 0 {
		e.lg.DebugCtx(ctx, "checking pending transactions", zap.Int("count", len(pending)))
	}

	for _, t := range pending {
		tctx := e.lg.WithContextFields(ctx, zap.String("transaction_id", t.TransactionID))
		if err := e.process(tctx, t); err != nil {
			e.lg.ErrorCtx(tctx, "process transaction error", zap.Error(err))
		}
	}

	return e.sweepUndelivered(ctx)
}

func (e *Engine) process(ctx context.Context, t *models.Transaction) error {
	if !e.verify(ctx, t) {
		return nil
	}

	completedAt := e.now()
	fresh, err := e.transactions.MarkCompleted(ctx, t.TransactionID, completedAt)
	if err != nil {
		return fmt.Errorf("mark transaction completed error %w", err)
	}

	// Already completed elsewhere: this copy does not know the stored
	// completion time, so the undelivered sweep owns any remaining delivery.
	if !fresh {
		return nil
	}

	e.lg.InfoCtx(ctx, "payment confirmed", zap.Int64("amount", t.CreditAmount))

	t.State = models.TransactionCompletedState
	t.CompletedAt = completedAt

	return e.deliver(ctx, t)
}

// verify applies the two-tier lookup policy: primary key first, then the
// fallback reference, short-circuiting on the first confirmation. Lookup
// errors are inconclusive: the transaction stays pending for the next
// cycle, it is never failed from here.
func (e *Engine) verify(ctx context.Context, t *models.Transaction) bool {
	if t.PrimaryKey != "" {
		lookup, err := e.client.CheckByPrimaryKey(ctx, t.PrimaryKey)
		if err != nil {
			e.lg.DebugCtx(ctx, "primary lookup inconclusive", zap.Error(err))
		} else if lookup.Confirmed() {
			return true
		}
	}

	lookup, err := e.client.CheckByFallbackKey(ctx, t.FallbackRef())
	if err != nil {
		e.lg.DebugCtx(ctx, "fallback lookup inconclusive", zap.Error(err))
		return false
	}

	return lookup.Confirmed()
}

// deliver credits the account for a completed transaction. The delivery
// claim and the balance credit share one database transaction: whichever
// caller wins the conditional claim also applies the credit, everyone else
// rolls back untouched. A failed credit leaves the transaction completed
// and undelivered for the sweep to retry.
func (e *Engine) deliver(ctx context.Context, t *models.Transaction) error {
	tx, err := e.transactions.BeginTX(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin delivery tx error %w", err)
	}
	defer e.transactions.RollbackTX(ctx, tx)

	claimed, err := e.transactions.ClaimDeliveryTX(ctx, tx, t.TransactionID)
	if err != nil {
		return fmt.Errorf("claim delivery error %w", err)
	}

	if !claimed {
		return nil
	}

	if err := e.accounts.CreditTX(ctx, tx, t.AccountID, t.CreditAmount); err != nil {
		return fmt.Errorf("credit account %d error %w", t.AccountID, err)
	}

	if err := e.transactions.CommitTX(ctx, tx); err != nil {
		return fmt.Errorf("commit delivery tx error %w", err)
	}

	t.Delivered = true
	e.lg.InfoCtx(
		ctx,
		"credited account",
		zap.Int64("account_id", t.AccountID),
		zap.Int64("amount", t.CreditAmount),
	)

	if err := e.events.TransactionCompleted(ctx, t); err != nil {
		// the credit is committed, a lost event never undoes a delivery
		e.lg.ErrorCtx(ctx, "publish transaction completed event error", zap.Error(err))
	}

	return nil
}

// sweepUndelivered retries delivery for transactions confirmed earlier
// whose credit did not land, e.g. after a crash between completion and
// delivery or a ledger write failure.
func (e *Engine) sweepUndelivered(ctx context.Context) error {
	undelivered, err := e.transactions.FindUndelivered(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: find undelivered transactions error %w", err)
	}

	for _, t := range undelivered {
		tctx := e.lg.WithContextFields(ctx, zap.String("transaction_id", t.TransactionID))
		if err := e.deliver(tctx, t); err != nil {
			e.lg.ErrorCtx(tctx, "retry delivery error", zap.Error(err))
		}
	}

	return nil
}

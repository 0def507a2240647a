package repositories

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/models"
)

type execCall struct {
	query string
	args  []any
}

type fakeTransactionsStorage struct {
	execs   []execCall
	execTag pgconn.CommandTag
	execErr error
}

func (s *fakeTransactionsStorage) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeTransactionsStorage) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeTransactionsStorage) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return s.execTag, s.execErr
}

// fakeTx stubs only Exec; the embedded interface covers the rest of pgx.Tx.
type fakeTx struct {
	pgx.Tx
	execs   []execCall
	execTag pgconn.CommandTag
	execErr error
}

func (tx *fakeTx) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, execCall{query: query, args: args})
	return tx.execTag, tx.execErr
}

func TestCreatePersistsAllColumns(t *testing.T) {
	strg := &fakeTransactionsStorage{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	rep := &TransactionsRepository{strg: strg, lg: logging.Discard()}

	createdAt := time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC)
	tr := &models.Transaction{
		TransactionID: "TXN-1",
		AccountID:     42,
		PrimaryKey:    "abc",
		CreditAmount:  5_000,
		State:         models.TransactionPendingState,
		CreatedAt:     createdAt,
	}

	if err := rep.Create(context.Background(), tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(strg.execs) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(strg.execs))
	}
	want := []any{"TXN-1", int64(42), "abc", int64(5_000), models.TransactionPendingState, createdAt}
	if !reflect.DeepEqual(strg.execs[0].args, want) {
		t.Fatalf("insert args %v, want %v", strg.execs[0].args, want)
	}
}

func TestCreateWrapsStorageError(t *testing.T) {
	strg := &fakeTransactionsStorage{execErr: errors.New("connection refused")}
	rep := &TransactionsRepository{strg: strg, lg: logging.Discard()}

	err := rep.Create(context.Background(), &models.Transaction{TransactionID: "TXN-2"})
	if err == nil {
		t.Fatal("expected error from storage")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestMarkCompletedConditionalOnPendingState(t *testing.T) {
	completedAt := time.Date(2025, 8, 29, 11, 0, 0, 0, time.UTC)

	strg := &fakeTransactionsStorage{execTag: pgconn.NewCommandTag("UPDATE 1")}
	rep := &TransactionsRepository{strg: strg, lg: logging.Discard()}

	fresh, err := rep.MarkCompleted(context.Background(), "TXN-3", completedAt)
	if err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if !fresh {
		t.Fatal("expected fresh completion when the row transitions")
	}

	args := strg.execs[0].args
	want := []any{models.TransactionCompletedState, completedAt, "TXN-3", models.TransactionPendingState}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("update args %v, want %v", args, want)
	}

	// already completed: the conditional write touches nothing
	strg.execTag = pgconn.NewCommandTag("UPDATE 0")
	fresh, err = rep.MarkCompleted(context.Background(), "TXN-3", completedAt)
	if err != nil {
		t.Fatalf("repeat mark completed: %v", err)
	}
	if fresh {
		t.Fatal("expected no fresh completion for an already-completed row")
	}
}

func TestClaimDeliveryTXConditionalOnUndelivered(t *testing.T) {
	rep := &TransactionsRepository{strg: &fakeTransactionsStorage{}, lg: logging.Discard()}

	tx := &fakeTx{execTag: pgconn.NewCommandTag("UPDATE 1")}
	claimed, err := rep.ClaimDeliveryTX(context.Background(), tx, "TXN-4")
	if err != nil {
		t.Fatalf("claim delivery: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed on an undelivered row")
	}

	tx = &fakeTx{execTag: pgconn.NewCommandTag("UPDATE 0")}
	claimed, err = rep.ClaimDeliveryTX(context.Background(), tx, "TXN-4")
	if err != nil {
		t.Fatalf("repeat claim delivery: %v", err)
	}
	if claimed {
		t.Fatal("expected claim to fail on an already-delivered row")
	}
}

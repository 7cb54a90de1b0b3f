package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/export/memory"
	"kakeibo/internal/storage"
)

func newWorkerFixture(t *testing.T) (*SyncWorker, storage.Repository, *memory.Store, core.Transaction) {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	u, err := repo.CreateUser(ctx, core.User{
		Email: "worker@example.com", Name: "W", PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cat, err := repo.CreateCategory(ctx, core.Category{
		UserID: u.ID, Name: "Groceries", Type: core.Expense, Color: "#ff0000",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	txn, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:     u.ID,
		CategoryID: &cat.ID,
		Date:       core.NewDate(2025, 4, 1),
		Type:       core.Expense,
		Amount:     core.Money{Cents: 1500},
		Memo:       "weekly shop",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	store := memory.New()
	return NewSyncWorker(repo, store, 10), repo, store, txn
}

func TestHandleSyncMessageExportsRow(t *testing.T) {
	w, repo, store, txn := newWorkerFixture(t)

	err := w.HandleSyncMessage(&amqp.TransactionSyncMessage{ID: txn.ID, Version: 1})
	if err != nil {
		t.Fatalf("handle sync message: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 exported row, got %d", len(rows))
	}
	row := rows[0]
	if row.Date != "2025-04-01" || row.Type != "expense" || row.AmountCents != 1500 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.Category != "Groceries" {
		t.Errorf("expected category name, got %q", row.Category)
	}
	if row.UserEmail != "worker@example.com" {
		t.Errorf("expected user email, got %q", row.UserEmail)
	}

	pending, err := repo.GetPendingSyncTransactions(context.Background(), 10)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending rows after export, got %d", len(pending))
	}
}

func TestHandleSyncMessageMissingTransactionIsNoOp(t *testing.T) {
	w, _, store, _ := newWorkerFixture(t)

	if err := w.HandleSyncMessage(&amqp.TransactionSyncMessage{ID: 9999, Version: 1}); err != nil {
		t.Fatalf("missing transaction should not error: %v", err)
	}
	if len(store.Rows()) != 0 {
		t.Errorf("nothing should be exported for a missing transaction")
	}
}

func TestHandleSyncMessageAppendFailureMarksError(t *testing.T) {
	w, repo, store, txn := newWorkerFixture(t)
	store.FailWith(errors.New("quota exceeded"))

	err := w.HandleSyncMessage(&amqp.TransactionSyncMessage{ID: txn.ID, Version: 1})
	if err == nil {
		t.Fatal("expected error when append fails")
	}

	// Row left the pending set and is flagged for operator attention.
	pending, err := repo.GetPendingSyncTransactions(context.Background(), 10)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("errored row should not stay pending, got %d", len(pending))
	}
}

func TestProcessPendingTransactionsSweepsBacklog(t *testing.T) {
	w, repo, store, _ := newWorkerFixture(t)
	ctx := context.Background()

	// Add a second pending transaction without a category.
	u, err := repo.GetUserByEmail(ctx, "worker@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: u.ID,
		Date:   core.NewDate(2025, 4, 2),
		Type:   core.Income,
		Amount: core.Money{Cents: 300000},
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := w.ProcessPendingTransactions(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(rows))
	}

	// Second sweep finds nothing.
	if err := w.ProcessPendingTransactions(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(store.Rows()) != 2 {
		t.Errorf("sweep must not re-export synced rows")
	}
}

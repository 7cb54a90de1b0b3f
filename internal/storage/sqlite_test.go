package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kakeibo/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createTestUser(t *testing.T, repo *SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$notarealhash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	createTestUser(t, repo, "mario@example.com")
	_, err := repo.CreateUser(ctx, core.User{
		Email:        "MARIO@example.com",
		Name:         "Mario Again",
		PasswordHash: "$2a$10$notarealhash",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestGetUserByEmailNormalizesCase(t *testing.T) {
	repo := newTestRepo(t)
	created := createTestUser(t, repo, "Anna@Example.com")

	got, err := repo.GetUserByEmail(context.Background(), "anna@example.com")
	if err != nil {
		t.Fatalf("get user by email: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected user %d, got %d", created.ID, got.ID)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "session@example.com")

	token := "test-token-123"
	if err := repo.CreateSession(ctx, token, u.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := repo.GetSessionUser(ctx, token)
	if err != nil {
		t.Fatalf("get session user: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %d, got %d", u.ID, got.ID)
	}

	if err := repo.DeleteSession(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := repo.GetSessionUser(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "expired@example.com")

	if err := repo.CreateSession(ctx, "stale", u.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := repo.GetSessionUser(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}

	n, err := repo.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("delete expired sessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session deleted, got %d", n)
	}
}

func TestCategoryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "cat@example.com")

	created, err := repo.CreateCategory(ctx, core.Category{
		UserID: u.ID,
		Name:   "Groceries",
		Type:   core.Expense,
		Color:  "#ff0000",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned category id")
	}

	created.Name = "Food"
	created.Color = "#00ff00"
	updated, err := repo.UpdateCategory(ctx, created)
	if err != nil {
		t.Fatalf("update category: %v", err)
	}
	if updated.Name != "Food" || updated.Color != "#00ff00" {
		t.Errorf("update not applied: %+v", updated)
	}

	list, err := repo.ListCategories(ctx, u.ID)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 category, got %d", len(list))
	}

	if err := repo.DeleteCategory(ctx, u.ID, created.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if _, err := repo.GetCategory(ctx, u.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCategoriesScopedPerUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice@example.com")
	bob := createTestUser(t, repo, "bob@example.com")

	cat, err := repo.CreateCategory(ctx, core.Category{
		UserID: alice.ID, Name: "Rent", Type: core.Expense, Color: "#336699",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	if _, err := repo.GetCategory(ctx, bob.ID, cat.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user's category, got %v", err)
	}
	if err := repo.DeleteCategory(ctx, bob.ID, cat.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting other user's category, got %v", err)
	}
}

func TestTransactionCRUDAndDateRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "txn@example.com")

	cat, err := repo.CreateCategory(ctx, core.Category{
		UserID: u.ID, Name: "Salary", Type: core.Income, Color: "#00aa00",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	created, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:     u.ID,
		CategoryID: &cat.ID,
		Date:       core.NewDate(2025, 3, 15),
		Type:       core.Income,
		Amount:     core.Money{Cents: 300000},
		Memo:       "march salary",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	got, err := repo.GetTransaction(ctx, u.ID, created.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.Date.String() != "2025-03-15" {
		t.Errorf("date round trip failed: got %s", got.Date.String())
	}
	if got.Amount.Cents != 300000 {
		t.Errorf("expected 300000 cents, got %d", got.Amount.Cents)
	}
	if got.CategoryID == nil || *got.CategoryID != cat.ID {
		t.Errorf("category id round trip failed: %v", got.CategoryID)
	}

	got.Memo = "corrected"
	updated, err := repo.UpdateTransaction(ctx, got)
	if err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	if updated.Memo != "corrected" {
		t.Errorf("memo not updated: %q", updated.Memo)
	}

	if err := repo.DeleteTransaction(ctx, u.ID, created.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, u.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateTransactionCategoryTypeMismatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "mismatch@example.com")

	cat, err := repo.CreateCategory(ctx, core.Category{
		UserID: u.ID, Name: "Groceries", Type: core.Expense, Color: "#ff0000",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	_, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID:     u.ID,
		CategoryID: &cat.ID,
		Date:       core.NewDate(2025, 1, 1),
		Type:       core.Income,
		Amount:     core.Money{Cents: 100},
	})
	if !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestListTransactionsDateRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "range@example.com")

	dates := []core.Date{
		core.NewDate(2025, 1, 31),
		core.NewDate(2025, 2, 1),
		core.NewDate(2025, 2, 28),
		core.NewDate(2025, 3, 1),
	}
	for _, d := range dates {
		_, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: u.ID, Date: d, Type: core.Expense, Amount: core.Money{Cents: 100},
		})
		if err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}

	got, err := repo.ListTransactions(ctx, u.ID, core.NewDate(2025, 2, 1), core.NewDate(2025, 2, 28))
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions in February, got %d", len(got))
	}
	for _, txn := range got {
		if txn.Date.Month() != 2 {
			t.Errorf("transaction outside range: %s", txn.Date.String())
		}
	}
}

func TestUpdateTransactionResetsSyncStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "sync@example.com")

	created, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: u.ID, Date: core.NewDate(2025, 5, 5), Type: core.Expense,
		Amount: core.Money{Cents: 1500},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := repo.MarkSynced(ctx, created.ID); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, err := repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending transactions after sync, got %d", len(pending))
	}

	created.Memo = "edited"
	if _, err := repo.UpdateTransaction(ctx, created); err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	pending, err = repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending transaction after edit, got %d", len(pending))
	}
	if pending[0].Version != 2 {
		t.Errorf("expected version 2 after edit, got %d", pending[0].Version)
	}
}

func TestSettingsDefaultAndUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "settings@example.com")

	s, err := repo.GetSettings(ctx, u.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if s.Currency != "EUR" {
		t.Errorf("expected default currency EUR, got %s", s.Currency)
	}

	s.Currency = "JPY"
	s.TelegramChatID = 42
	if err := repo.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	s.Currency = "USD"
	if err := repo.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("update settings again: %v", err)
	}

	got, err := repo.GetSettings(ctx, u.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.Currency != "USD" || got.TelegramChatID != 42 {
		t.Errorf("unexpected settings: %+v", got)
	}
}

func TestRecurringDueCandidatesWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "recurring@example.com")

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	templates := []core.RecurringTransaction{
		{UserID: u.ID, StartDate: core.NewDate(2025, 1, 1), Every: core.Monthly, Type: core.Expense, Amount: core.Money{Cents: 90000}, Memo: "rent"},
		{UserID: u.ID, StartDate: core.NewDate(2025, 7, 1), Every: core.Monthly, Type: core.Expense, Amount: core.Money{Cents: 1000}, Memo: "not started"},
		{UserID: u.ID, StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 5, 31), Every: core.Monthly, Type: core.Expense, Amount: core.Money{Cents: 2000}, Memo: "ended"},
	}
	for _, rt := range templates {
		if _, err := repo.CreateRecurring(ctx, rt); err != nil {
			t.Fatalf("create recurring: %v", err)
		}
	}

	due, err := repo.ListDueCandidates(ctx, now)
	if err != nil {
		t.Fatalf("list due candidates: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(due))
	}
	if due[0].Template.Memo != "rent" {
		t.Errorf("unexpected candidate: %+v", due[0].Template)
	}
	if !due[0].LastExecution.IsZero() {
		t.Errorf("expected zero last execution, got %v", due[0].LastExecution)
	}

	executed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.UpdateRecurringLastExecution(ctx, due[0].Template.ID, executed); err != nil {
		t.Fatalf("update last execution: %v", err)
	}
	due, err = repo.ListDueCandidates(ctx, now)
	if err != nil {
		t.Fatalf("list due candidates: %v", err)
	}
	if !due[0].LastExecution.Equal(executed) {
		t.Errorf("expected last execution %v, got %v", executed, due[0].LastExecution)
	}
}

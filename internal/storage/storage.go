// Package storage persists users, categories, transactions and sessions.
// Two backends are supported: SQLite (default, embedded) and Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/config"
	"kakeibo/internal/core"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Sync statuses for the spreadsheet export bookkeeping.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// PendingSyncTransaction carries the minimal data a sync queue message needs.
type PendingSyncTransaction struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// RecurringDue pairs a recurring template with its last materialization time.
type RecurringDue struct {
	Template      core.RecurringTransaction
	LastExecution time.Time
}

// Repository is the storage port used by services and HTTP handlers. All
// reads and writes are scoped to a user except the worker-facing methods,
// which operate by primary key.
type Repository interface {
	// Users and sessions
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	GetUserByID(ctx context.Context, id int64) (core.User, error)
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	GetSessionUser(ctx context.Context, token string) (core.User, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// Categories
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, userID, id int64) error

	// Transactions
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error)
	ListTransactionsByYear(ctx context.Context, userID int64, year int) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) error

	// Export bookkeeping (worker side, unscoped)
	GetTransactionByID(ctx context.Context, id int64) (core.Transaction, error)
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error

	// Settings
	GetSettings(ctx context.Context, userID int64) (core.UserSettings, error)
	UpdateSettings(ctx context.Context, s core.UserSettings) error

	// Recurring templates
	CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, userID int64) ([]core.RecurringTransaction, error)
	DeleteRecurring(ctx context.Context, userID, id int64) error
	ListDueCandidates(ctx context.Context, now time.Time) ([]RecurringDue, error)
	UpdateRecurringLastExecution(ctx context.Context, id int64, executedAt time.Time) error

	Close() error
}

// Open creates the repository selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		return NewSQLiteRepository(cfg.SQLiteDBPath)
	case "postgres":
		return NewPostgresRepository(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// defaultCurrency is used until the user saves settings.
const defaultCurrency = "EUR"

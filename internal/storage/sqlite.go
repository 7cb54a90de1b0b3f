package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kakeibo/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users and sessions ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.PasswordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string) (core.User, error) {
	var expiresAt time.Time
	var userID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan session: %w", err)
	}
	if time.Now().After(expiresAt) {
		return core.User{}, ErrNotFound
	}
	return r.GetUserByID(ctx, userID)
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, type, color) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, c.Type, c.Color)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, errors.New("already exists"))
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	return r.GetCategory(ctx, c.UserID, id)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, color, created_at, updated_at
		 FROM categories WHERE user_id = ? ORDER BY type, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, color, created_at, updated_at
		 FROM categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

// UpdateCategory changes name and color. The type is fixed at creation.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		c.Name, c.Color, c.ID, c.UserID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, ErrNotFound
	}
	return r.GetCategory(ctx, c.UserID, c.ID)
}

// DeleteCategory removes the category; transactions referencing it keep
// their amounts and fall back to uncategorized via ON DELETE SET NULL.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkCategoryType enforces that a transaction's type matches its
// category's type when a category is set.
func (r *SQLiteRepository) checkCategoryType(ctx context.Context, t core.Transaction) error {
	if t.CategoryID == nil {
		return nil
	}
	cat, err := r.GetCategory(ctx, t.UserID, *t.CategoryID)
	if err != nil {
		return fmt.Errorf("category %d: %w", *t.CategoryID, err)
	}
	if cat.Type != t.Type {
		return core.ErrTypeMismatch
	}
	return nil
}

// --- transactions ---

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := r.checkCategoryType(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, category_id, txn_date, type, amount_cents, memo)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, t.Date.String(), t.Type, t.Amount.Cents, t.Memo)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}

	created, err := r.GetTransaction(ctx, t.UserID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", created.ID,
		"transaction_type", created.Type,
		"amount_cents", created.Amount.Cents,
		"date", created.Date.String())
	return created, nil
}

const txnColumns = `id, user_id, category_id, txn_date, type, amount_cents, memo, version, created_at`

func (r *SQLiteRepository) scanTransaction(scan func(...any) error) (core.Transaction, error) {
	var t core.Transaction
	var dateStr string
	var catID sql.NullInt64
	err := scan(&t.ID, &t.UserID, &catID, &dateStr, &t.Type, &t.Amount.Cents, &t.Memo, &t.Version, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if catID.Valid {
		t.CategoryID = &catID.Int64
	}
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	t.Date = d
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	return r.scanTransaction(row.Scan)
}

func (r *SQLiteRepository) GetTransactionByID(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	return r.scanTransaction(row.Scan)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions
		 WHERE user_id = ? AND txn_date >= ? AND txn_date <= ?
		 ORDER BY txn_date DESC, id DESC`,
		userID, from.String(), to.String())
}

func (r *SQLiteRepository) ListTransactionsByYear(ctx context.Context, userID int64, year int) ([]core.Transaction, error) {
	from := core.NewDate(year, 1, 1)
	to := core.NewDate(year, 12, 31)
	return r.ListTransactions(ctx, userID, from, to)
}

// UpdateTransaction rewrites the row, bumps the version and re-queues it for
// export.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := r.checkCategoryType(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET category_id = ?, txn_date = ?, type = ?, amount_cents = ?, memo = ?,
		     version = version + 1, sync_status = 'pending', synced_at = NULL
		 WHERE id = ? AND user_id = ?`,
		t.CategoryID, t.Date.String(), t.Type, t.Amount.Cents, t.Memo, t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, ErrNotFound
	}
	return r.GetTransaction(ctx, t.UserID, t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- export bookkeeping ---

func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, version, created_at FROM transactions
		 WHERE sync_status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncTransaction
	for rows.Next() {
		var p PendingSyncTransaction
		if err := rows.Scan(&p.ID, &p.Version, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// --- settings ---

func (r *SQLiteRepository) GetSettings(ctx context.Context, userID int64) (core.UserSettings, error) {
	s := core.UserSettings{UserID: userID, Currency: defaultCurrency}
	err := r.db.QueryRowContext(ctx,
		`SELECT currency, telegram_chat_id FROM user_settings WHERE user_id = ?`, userID).
		Scan(&s.Currency, &s.TelegramChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil // defaults until first save
	}
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("scan settings: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) UpdateSettings(ctx context.Context, s core.UserSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, currency, telegram_chat_id) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET currency = excluded.currency, telegram_chat_id = excluded.telegram_chat_id`,
		s.UserID, s.Currency, s.TelegramChatID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// --- recurring templates ---

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	var endDate any
	if !rt.EndDate.IsZero() {
		endDate = rt.EndDate.String()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions (user_id, category_id, start_date, end_date, every, type, amount_cents, memo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.UserID, rt.CategoryID, rt.StartDate.String(), endDate, rt.Every, rt.Type, rt.Amount.Cents, rt.Memo)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("insert recurring transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("recurring id: %w", err)
	}
	rt.ID = id
	return rt, nil
}

func (r *SQLiteRepository) listRecurring(ctx context.Context, query string, args ...any) ([]RecurringDue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []RecurringDue
	for rows.Next() {
		var d RecurringDue
		var startStr string
		var endStr sql.NullString
		var catID sql.NullInt64
		var lastExec sql.NullTime
		err := rows.Scan(&d.Template.ID, &d.Template.UserID, &catID, &startStr, &endStr,
			&d.Template.Every, &d.Template.Type, &d.Template.Amount.Cents, &d.Template.Memo, &lastExec)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		if catID.Valid {
			d.Template.CategoryID = &catID.Int64
		}
		if d.Template.StartDate, err = core.ParseDate(startStr); err != nil {
			return nil, fmt.Errorf("parse stored start date %q: %w", startStr, err)
		}
		if endStr.Valid {
			if d.Template.EndDate, err = core.ParseDate(endStr.String); err != nil {
				return nil, fmt.Errorf("parse stored end date %q: %w", endStr.String, err)
			}
		}
		if lastExec.Valid {
			d.LastExecution = lastExec.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const recurringColumns = `id, user_id, category_id, start_date, end_date, every, type, amount_cents, memo, last_execution`

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringTransaction, error) {
	due, err := r.listRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.RecurringTransaction, len(due))
	for i, d := range due {
		out[i] = d.Template
	}
	return out, nil
}

// ListDueCandidates returns templates whose window contains now, across all
// users. Dueness itself is decided by the recurring processor.
func (r *SQLiteRepository) ListDueCandidates(ctx context.Context, now time.Time) ([]RecurringDue, error) {
	today := core.Date{Time: now.UTC()}.String()
	return r.listRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions
		 WHERE start_date <= ? AND (end_date IS NULL OR end_date >= ?) ORDER BY id`,
		today, today)
}

func (r *SQLiteRepository) UpdateRecurringLastExecution(ctx context.Context, id int64, executedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET last_execution = ? WHERE id = ?`, executedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last execution: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

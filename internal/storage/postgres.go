package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"kakeibo/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(ctx context.Context, url string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return r, nil
}

// migrate applies the embedded Postgres migrations in filename order,
// tracking applied versions in schema_migrations.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations/postgres")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		var exists bool
		err := r.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", filename).
			Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration status: %w", err)
		}
		if exists {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/postgres/" + filename)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}
		if _, err := r.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filename, err)
		}
		if _, err := r.pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", filename); err != nil {
			return fmt.Errorf("record migration %s: %w", filename, err)
		}
		slog.Info("Applied migration", "version", filename)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users and sessions ---

func (r *PostgresRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, email, name, password_hash, created_at`,
		strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.PasswordHash).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if isUniqueViolation(err) {
		return core.User{}, ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg any) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *PostgresRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSessionUser(ctx context.Context, token string) (core.User, error) {
	var userID int64
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM sessions WHERE token = $1 AND expires_at > NOW()`, token).
		Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan session: %w", err)
	}
	return r.GetUserByID(ctx, userID)
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- categories ---

func (r *PostgresRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type, color) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		c.UserID, c.Name, c.Type, c.Color).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return core.Category{}, fmt.Errorf("category %q: already exists", c.Name)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, type, color, created_at, updated_at
		 FROM categories WHERE user_id = $1 ORDER BY type, name`, userID)
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

func (r *PostgresRepository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, type, color, created_at, updated_at
		 FROM categories WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $1, color = $2, updated_at = NOW()
		 WHERE id = $3 AND user_id = $4`,
		c.Name, c.Color, c.ID, c.UserID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Category{}, ErrNotFound
	}
	return r.GetCategory(ctx, c.UserID, c.ID)
}

func (r *PostgresRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) checkCategoryType(ctx context.Context, t core.Transaction) error {
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

const pgTxnColumns = `id, user_id, category_id, txn_date, type, amount_cents, memo, version, created_at`

func scanPgTransaction(scan func(...any) error) (core.Transaction, error) {
	var t core.Transaction
	var date time.Time
	err := scan(&t.ID, &t.UserID, &t.CategoryID, &date, &t.Type, &t.Amount.Cents, &t.Memo, &t.Version, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	return t, nil
}

func (r *PostgresRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := r.checkCategoryType(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO transactions (user_id, category_id, txn_date, type, amount_cents, memo)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, version, created_at`,
		t.UserID, t.CategoryID, t.Date.Time, t.Type, t.Amount.Cents, t.Memo).
		Scan(&t.ID, &t.Version, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"transaction_type", t.Type,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())
	return t, nil
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+pgTxnColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	return scanPgTransaction(row.Scan)
}

func (r *PostgresRepository) GetTransactionByID(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+pgTxnColumns+` FROM transactions WHERE id = $1`, id)
	return scanPgTransaction(row.Scan)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanPgTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+pgTxnColumns+` FROM transactions
		 WHERE user_id = $1 AND txn_date >= $2 AND txn_date <= $3
		 ORDER BY txn_date DESC, id DESC`,
		userID, from.Time, to.Time)
}

func (r *PostgresRepository) ListTransactionsByYear(ctx context.Context, userID int64, year int) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, userID, core.NewDate(year, 1, 1), core.NewDate(year, 12, 31))
}

func (r *PostgresRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := r.checkCategoryType(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		 SET category_id = $1, txn_date = $2, type = $3, amount_cents = $4, memo = $5,
		     version = version + 1, sync_status = 'pending', synced_at = NULL
		 WHERE id = $6 AND user_id = $7`,
		t.CategoryID, t.Date.Time, t.Type, t.Amount.Cents, t.Memo, t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, ErrNotFound
	}
	return r.GetTransaction(ctx, t.UserID, t.ID)
}

func (r *PostgresRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- export bookkeeping ---

func (r *PostgresRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, version, created_at FROM transactions
		 WHERE sync_status = 'pending' ORDER BY id LIMIT $1`, limit)
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

func (r *PostgresRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions SET sync_status = 'synced', synced_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkSyncError(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	return nil
}

// --- settings ---

func (r *PostgresRepository) GetSettings(ctx context.Context, userID int64) (core.UserSettings, error) {
	s := core.UserSettings{UserID: userID, Currency: defaultCurrency}
	err := r.pool.QueryRow(ctx,
		`SELECT currency, telegram_chat_id FROM user_settings WHERE user_id = $1`, userID).
		Scan(&s.Currency, &s.TelegramChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("scan settings: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateSettings(ctx context.Context, s core.UserSettings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, currency, telegram_chat_id) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET currency = EXCLUDED.currency, telegram_chat_id = EXCLUDED.telegram_chat_id`,
		s.UserID, s.Currency, s.TelegramChatID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// --- recurring templates ---

func (r *PostgresRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	var endDate any
	if !rt.EndDate.IsZero() {
		endDate = rt.EndDate.Time
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO recurring_transactions (user_id, category_id, start_date, end_date, every, type, amount_cents, memo)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		rt.UserID, rt.CategoryID, rt.StartDate.Time, endDate, rt.Every, rt.Type, rt.Amount.Cents, rt.Memo).
		Scan(&rt.ID)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("insert recurring transaction: %w", err)
	}
	return rt, nil
}

func (r *PostgresRepository) listRecurring(ctx context.Context, query string, args ...any) ([]RecurringDue, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []RecurringDue
	for rows.Next() {
		var d RecurringDue
		var start time.Time
		var end, lastExec *time.Time
		err := rows.Scan(&d.Template.ID, &d.Template.UserID, &d.Template.CategoryID, &start, &end,
			&d.Template.Every, &d.Template.Type, &d.Template.Amount.Cents, &d.Template.Memo, &lastExec)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		d.Template.StartDate = core.NewDate(start.Year(), int(start.Month()), start.Day())
		if end != nil {
			d.Template.EndDate = core.NewDate(end.Year(), int(end.Month()), end.Day())
		}
		if lastExec != nil {
			d.LastExecution = *lastExec
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const pgRecurringColumns = `id, user_id, category_id, start_date, end_date, every, type, amount_cents, memo, last_execution`

func (r *PostgresRepository) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringTransaction, error) {
	due, err := r.listRecurring(ctx,
		`SELECT `+pgRecurringColumns+` FROM recurring_transactions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.RecurringTransaction, len(due))
	for i, d := range due {
		out[i] = d.Template
	}
	return out, nil
}

func (r *PostgresRepository) ListDueCandidates(ctx context.Context, now time.Time) ([]RecurringDue, error) {
	return r.listRecurring(ctx,
		`SELECT `+pgRecurringColumns+` FROM recurring_transactions
		 WHERE start_date <= $1::date AND (end_date IS NULL OR end_date >= $1::date) ORDER BY id`,
		now.UTC())
}

func (r *PostgresRepository) UpdateRecurringLastExecution(ctx context.Context, id int64, executedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recurring_transactions SET last_execution = $1 WHERE id = $2`, executedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last execution: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteRecurring(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM recurring_transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Package sqlite is the single-file document store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ store.Backend = (*Store)(nil)

// dsn opens writers with BEGIN IMMEDIATE so a transaction holds the write
// lock from its first read.
func dsn(path string) string {
	return "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Open creates the database directory, migrates the schema and returns a store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has one writer; a single connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn(dbPath)); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryer, userID string) (core.User, error) {
	var cents int64
	err := q.QueryRowContext(ctx,
		`SELECT total_expense_cents FROM users WHERE id = ?`, userID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: userID, TotalExpense: core.Money{Cents: cents}}, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (core.User, error) {
	return getUser(ctx, s.db, userID)
}

func (s *Store) GetExpense(ctx context.Context, userID, expenseID string) (core.Expense, error) {
	e := core.Expense{ID: expenseID, UserID: userID}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, amount_cents, date_unix_ms FROM expenses WHERE id = ? AND user_id = ?`,
		expenseID, userID).Scan(&e.Name, &e.Amount.Cents, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	e.Date = time.UnixMilli(ms).UTC()
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, amount_cents, date_unix_ms FROM expenses
		 WHERE user_id = ? ORDER BY date_unix_ms DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e := core.Expense{UserID: userID}
		var ms int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Amount.Cents, &ms); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user core.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, total_expense_cents) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET total_expense_cents = excluded.total_expense_cents`,
		user.ID, user.TotalExpense.Cents)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

type tx struct {
	store.TxWrites
	sqlTx *sql.Tx
}

func (t *tx) GetUser(ctx context.Context, userID string) (core.User, error) {
	if err := t.CheckRead(); err != nil {
		return core.User{}, err
	}
	return getUser(ctx, t.sqlTx, userID)
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	t := &tx{sqlTx: sqlTx}
	if err := fn(ctx, t); err != nil {
		return err
	}

	for _, e := range t.Expenses {
		if err := e.Validate(); err != nil {
			return err
		}
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO expenses (id, user_id, name, amount_cents, date_unix_ms) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.UserID, e.Name, e.Amount.Cents, e.Date.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
	}
	for _, u := range t.Users {
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO users (id, total_expense_cents) VALUES (?, ?)
			 ON CONFLICT(id) DO UPDATE SET total_expense_cents = excluded.total_expense_cents`,
			u.ID, u.TotalExpense.Cents)
		if err != nil {
			return fmt.Errorf("write user: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type batch struct {
	store.BatchOps
	s *Store
}

func (s *Store) NewBatch() store.Batch {
	return &batch{s: s}
}

func (b *batch) Commit(ctx context.Context) error {
	sqlTx, err := b.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer sqlTx.Rollback()

	for _, op := range b.Ops {
		if op.IsDelete() {
			res, err := sqlTx.ExecContext(ctx,
				`DELETE FROM expenses WHERE id = ? AND user_id = ?`, op.ExpenseID, op.UserID)
			if err != nil {
				return fmt.Errorf("delete expense: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete expense: %w", err)
			}
			if n == 0 {
				return store.ErrNotFound
			}
			continue
		}
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO users (id, total_expense_cents) VALUES (?, ?)
			 ON CONFLICT(id) DO UPDATE SET total_expense_cents = total_expense_cents + excluded.total_expense_cents`,
			op.UserID, op.Delta.Cents)
		if err != nil {
			return fmt.Errorf("increment total: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, a store.Account) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (email, user_id, password_hash, created_at_unix_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		a.Email, a.UserID, a.PasswordHash, a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if n == 0 {
		return store.ErrAccountExists
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (store.Account, error) {
	a := store.Account{}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT email, user_id, password_hash, created_at_unix_ms FROM accounts WHERE email = ?`,
		email).Scan(&a.Email, &a.UserID, &a.PasswordHash, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = time.UnixMilli(ms).UTC()
	return a, nil
}

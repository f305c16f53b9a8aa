// Package postgres is the document store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

const (
	maxTxAttempts        = 10
	codeSerialization    = "40001"
	codeDeadlockDetected = "40P01"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

// Open migrates the schema at url and connects a pool.
func Open(ctx context.Context, url string) (*Store, error) {
	if err := RunMigrations(url); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q queryer, userID string) (core.User, error) {
	var cents int64
	err := q.QueryRow(ctx, `SELECT total_expense_cents FROM users WHERE id = $1`, userID).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: userID, TotalExpense: core.Money{Cents: cents}}, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (core.User, error) {
	return getUser(ctx, s.pool, userID)
}

func (s *Store) GetExpense(ctx context.Context, userID, expenseID string) (core.Expense, error) {
	e := core.Expense{ID: expenseID, UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT name, amount_cents, date FROM expenses WHERE id = $1 AND user_id = $2`,
		expenseID, userID).Scan(&e.Name, &e.Amount.Cents, &e.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	e.Date = e.Date.UTC()
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, amount_cents, date FROM expenses
		 WHERE user_id = $1 ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e := core.Expense{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Name, &e.Amount.Cents, &e.Date); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date = e.Date.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

const upsertUser = `INSERT INTO users (id, total_expense_cents) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET total_expense_cents = EXCLUDED.total_expense_cents`

func (s *Store) CreateUser(ctx context.Context, user core.User) error {
	if _, err := s.pool.Exec(ctx, upsertUser, user.ID, user.TotalExpense.Cents); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerialization || pgErr.Code == codeDeadlockDetected
	}
	return false
}

type tx struct {
	store.TxWrites
	pgTx pgx.Tx
}

func (t *tx) GetUser(ctx context.Context, userID string) (core.User, error) {
	if err := t.CheckRead(); err != nil {
		return core.User{}, err
	}
	return getUser(ctx, t.pgTx, userID)
}

// RunTransaction runs fn in a serializable transaction. fn may be called
// again when PostgreSQL aborts the attempt on a serialization failure, so it
// must not have side effects outside tx.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runTransactionOnce(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) runTransactionOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	t := &tx{pgTx: pgTx}
	if err := fn(ctx, t); err != nil {
		return err
	}

	b := &pgx.Batch{}
	for _, e := range t.Expenses {
		if err := e.Validate(); err != nil {
			return err
		}
		b.Queue(`INSERT INTO expenses (id, user_id, name, amount_cents, date) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.UserID, e.Name, e.Amount.Cents, e.Date.UTC())
	}
	for _, u := range t.Users {
		b.Queue(upsertUser, u.ID, u.TotalExpense.Cents)
	}
	if b.Len() > 0 {
		if err := pgTx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("write transaction: %w", err)
		}
	}

	if err := pgTx.Commit(ctx); err != nil {
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
	pgTx, err := b.s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer pgTx.Rollback(ctx)

	pb := &pgx.Batch{}
	for _, op := range b.Ops {
		if op.IsDelete() {
			pb.Queue(`DELETE FROM expenses WHERE id = $1 AND user_id = $2`, op.ExpenseID, op.UserID)
			continue
		}
		pb.Queue(`INSERT INTO users (id, total_expense_cents) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET total_expense_cents = users.total_expense_cents + EXCLUDED.total_expense_cents`,
			op.UserID, op.Delta.Cents)
	}

	if err := execBatch(ctx, pgTx, pb, b.Ops); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func execBatch(ctx context.Context, pgTx pgx.Tx, pb *pgx.Batch, ops []store.BatchOp) error {
	br := pgTx.SendBatch(ctx, pb)
	defer br.Close()

	for _, op := range ops {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		if op.IsDelete() && tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
	}
	return br.Close()
}

func (s *Store) CreateAccount(ctx context.Context, a store.Account) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (email, user_id, password_hash, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING`,
		strings.ToLower(a.Email), a.UserID, a.PasswordHash, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAccountExists
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (store.Account, error) {
	var a store.Account
	err := s.pool.QueryRow(ctx,
		`SELECT email, user_id, password_hash, created_at FROM accounts WHERE email = $1`,
		strings.ToLower(email)).Scan(&a.Email, &a.UserID, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

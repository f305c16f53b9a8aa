package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"spendwise/internal/store"
)

// LocalProvider keeps bcrypt credentials in the application's own store.
type LocalProvider struct {
	accounts store.AccountStore
	cost     int
	now      func() time.Time
	newID    func() string
}

var _ Service = (*LocalProvider)(nil)

func NewLocalProvider(accounts store.AccountStore) *LocalProvider {
	return &LocalProvider{
		accounts: accounts,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (Identity, error) {
	if err := checkNewAccount(email, password); err != nil {
		return Identity{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	a := store.Account{
		Email:        NormalizeEmail(email),
		UserID:       p.newID(),
		PasswordHash: hash,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.accounts.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return Identity{}, ErrAccountExists
		}
		return Identity{}, fmt.Errorf("create account: %w", err)
	}
	return Identity{UserID: a.UserID, Email: a.Email}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	if err := checkPresent(email, password); err != nil {
		return Identity{}, err
	}

	a, err := p.accounts.AccountByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("look up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: a.UserID, Email: a.Email}, nil
}

// SignOut has nothing to revoke for local accounts; the session is dropped by the caller.
func (p *LocalProvider) SignOut(context.Context, Identity) error {
	return nil
}

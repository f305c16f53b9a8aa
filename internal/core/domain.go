package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const MaxNameLength = 200

type (
	Money struct {
		Cents int64
	}

	// User is the per-account document holding the cached running total.
	User struct {
		ID           string
		TotalExpense Money
	}

	// Expense is one recorded expense. Records are created and deleted, never edited.
	Expense struct {
		ID     string
		UserID string
		Name   string
		Amount Money
		Date   time.Time
	}
)

var (
	ErrEmptyName     = errors.New("empty name")
	ErrNameTooLong   = errors.New("name too long (max 200 characters)")
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrMissingUser   = errors.New("missing user id")
	ErrTotalOverflow = errors.New("total would exceed the largest representable amount")
)

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// CanAdd reports whether m + o fits in int64.
func (m Money) CanAdd(o Money) bool {
	if o.Cents > 0 {
		return m.Cents <= math.MaxInt64-o.Cents
	}
	return m.Cents >= math.MinInt64-o.Cents
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUser
	}
	if err := validateName(e.Name); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func validateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ParseExpenseInput validates the raw form fields of the entry screen.
// It never touches the store: any error here means nothing was sent.
func ParseExpenseInput(name, amount string) (string, Money, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return "", Money{}, err
	}
	if strings.TrimSpace(amount) == "" {
		return "", Money{}, ErrEmptyAmount
	}
	cents, err := ParseDecimalToCents(amount)
	if err != nil {
		return "", Money{}, err
	}
	return name, Money{Cents: cents}, nil
}

// Package auth signs users in and out and tracks browser sessions.
//
// Providers verify credentials and issue a stable user id; the Sessions store
// maps a cookie token to that id for the lifetime of the session.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

const MinPasswordLength = 6

// Provider messages are shown to the user verbatim.
var (
	ErrInvalidCredentials = errors.New("The supplied auth credential is incorrect, malformed or has expired.")
	ErrAccountExists      = errors.New("The email address is already in use by another account.")
	ErrInvalidEmail       = errors.New("The email address is badly formatted.")
	ErrWeakPassword       = errors.New("The password must be 6 characters long or more.")
	ErrMissingCredentials = errors.New("Please fill in all fields.")
)

// Identity is what a provider returns for an authenticated user.
type Identity struct {
	UserID string
	Email  string
	// AccessToken is the provider's token when it issues one; empty for local accounts.
	AccessToken string
}

// Service is the account service the screens talk to.
type Service interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
	CreateAccount(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context, id Identity) error
}

// NormalizeEmail trims and lower-cases an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkPresent(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// checkNewAccount applies the sign-up rules shared by all providers.
func checkNewAccount(email, password string) error {
	if err := checkPresent(email, password); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return ErrInvalidEmail
	}
	if len([]rune(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

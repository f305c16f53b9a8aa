package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"
)

// gotrueAPI is the slice of the GoTrue client this provider uses.
type gotrueAPI interface {
	Signup(req types.SignupRequest) (*types.SignupResponse, error)
	SignInWithEmailPassword(email, password string) (*types.TokenResponse, error)
}

// SupabaseProvider delegates accounts to a hosted Supabase (GoTrue) project.
type SupabaseProvider struct {
	api    gotrueAPI
	logout func(accessToken string) error
}

var _ Service = (*SupabaseProvider)(nil)

func NewSupabaseProvider(url, key string) (*SupabaseProvider, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseProvider{
		api: client.Auth,
		logout: func(accessToken string) error {
			return client.Auth.WithToken(accessToken).Logout()
		},
	}, nil
}

func (p *SupabaseProvider) CreateAccount(_ context.Context, email, password string) (Identity, error) {
	if err := checkNewAccount(email, password); err != nil {
		return Identity{}, err
	}

	resp, err := p.api.Signup(types.SignupRequest{
		Email:    NormalizeEmail(email),
		Password: password,
	})
	if err != nil {
		return Identity{}, mapSupabaseError(err)
	}
	return Identity{
		UserID:      resp.ID.String(),
		Email:       NormalizeEmail(email),
		AccessToken: resp.AccessToken,
	}, nil
}

func (p *SupabaseProvider) SignIn(_ context.Context, email, password string) (Identity, error) {
	if err := checkPresent(email, password); err != nil {
		return Identity{}, err
	}

	resp, err := p.api.SignInWithEmailPassword(NormalizeEmail(email), password)
	if err != nil {
		return Identity{}, mapSupabaseError(err)
	}
	return Identity{
		UserID:      resp.User.ID.String(),
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
	}, nil
}

func (p *SupabaseProvider) SignOut(_ context.Context, id Identity) error {
	if id.AccessToken == "" {
		return nil
	}
	if err := p.logout(id.AccessToken); err != nil {
		return fmt.Errorf("supabase logout: %w", err)
	}
	return nil
}

// mapSupabaseError turns GoTrue responses into the provider-neutral errors.
// GoTrue reports failures as status text, so matching is on the message.
func mapSupabaseError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already registered"), strings.Contains(msg, "already exists"):
		return ErrAccountExists
	case strings.Contains(msg, "invalid login credentials"), strings.Contains(msg, "invalid_grant"):
		return ErrInvalidCredentials
	case strings.Contains(msg, "password should be at least"):
		return ErrWeakPassword
	case strings.Contains(msg, "unable to validate email"), strings.Contains(msg, "invalid email"):
		return ErrInvalidEmail
	}
	return fmt.Errorf("supabase auth: %w", err)
}

package core

import (
	"context"
	"errors"

	"github.com/arale275/autix-sub003/auth"
)

var (
	// ErrInvalidCredentials is returned when email/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput wraps validation failures on registration input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserNotFound is returned by repositories when no row matches.
	ErrUserNotFound = errors.New("user not found")
)

// Session is what a successful login hands back to the caller.
type Session struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

// AuthService defines authentication behaviour.
type AuthService interface {
	Register(ctx context.Context, email, password string, userType auth.UserType) (Session, error)
	Authenticate(ctx context.Context, email, password string) (Session, error)
	Me(ctx context.Context, claims *auth.Claims) (auth.User, error)
	FederatedLogin(ctx context.Context, identity FederatedIdentity) (Session, error)
}

// FederatedIdentity is the profile returned by an external identity provider.
type FederatedIdentity struct {
	Subject  string
	Email    string
	UserType auth.UserType
}

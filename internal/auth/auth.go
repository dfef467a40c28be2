// Package auth defines the authentication provider consumed by the budget
// store: an opaque user identity plus sign-in/sign-up/sign-out and a
// subscription that fires on every auth-state change.
package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid session token")
)

// User is the identity handed to the rest of the application.
type User struct {
	UID   string
	Email string
}

// StateFunc receives the current user, or nil after sign-out.
type StateFunc func(u *User)

type UnsubscribeFunc func()

// Provider is the consumed contract of the authentication collaborator.
type Provider interface {
	// Subscribe fires immediately with the current state and again on
	// every change.
	Subscribe(fn StateFunc) UnsubscribeFunc
	CurrentUser() *User
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
}

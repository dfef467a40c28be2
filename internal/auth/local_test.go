package auth

import (
	"context"
	"errors"
	"testing"

	"fambudget/internal/docstore/memory"
)

func TestSignUpAndSignIn(t *testing.T) {
	p := NewLocalProvider(memory.New(), "test-secret")
	ctx := context.Background()

	u, err := p.SignUp(ctx, "Anna@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if u.Email != "anna@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if p.CurrentUser() == nil {
		t.Fatalf("signup did not establish a session")
	}

	if _, err := p.SignUp(ctx, "anna@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate signup: %v", err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if p.CurrentUser() != nil {
		t.Fatalf("session survived sign-out")
	}

	back, err := p.SignIn(ctx, "anna@example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if back.UID != u.UID {
		t.Fatalf("uid changed between signup and signin")
	}

	if _, err := p.SignIn(ctx, "anna@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := p.SignIn(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestSubscribeFiresOnChanges(t *testing.T) {
	p := NewLocalProvider(memory.New(), "test-secret")
	ctx := context.Background()

	var states []*User
	unsub := p.Subscribe(func(u *User) { states = append(states, u) })
	defer unsub()

	if len(states) != 1 || states[0] != nil {
		t.Fatalf("expected immediate nil state, got %v", states)
	}

	if _, err := p.SignUp(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	if len(states) != 3 {
		t.Fatalf("expected 3 state callbacks, got %d", len(states))
	}
	if states[1] == nil || states[2] != nil {
		t.Fatalf("state sequence wrong: %v", states)
	}
}

func TestTokenResume(t *testing.T) {
	store := memory.New()
	p := NewLocalProvider(store, "test-secret")
	ctx := context.Background()

	u, err := p.SignUp(ctx, "resume@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	token, err := p.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token while signed in")
	}

	// A fresh provider over the same store can resume the session.
	fresh := NewLocalProvider(store, "test-secret")
	got, err := fresh.Resume(ctx, token)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got.UID != u.UID || got.Email != u.Email {
		t.Fatalf("resumed identity mismatch: %+v", got)
	}

	// Wrong secret is rejected.
	other := NewLocalProvider(store, "different")
	if _, err := other.Resume(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged token accepted: %v", err)
	}
}

func TestTokenEmptyWhenSignedOut(t *testing.T) {
	p := NewLocalProvider(memory.New(), "test-secret")
	token, err := p.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token when signed out")
	}
}

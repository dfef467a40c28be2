package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fambudget/internal/docstore"
)

const usersCollection = "users"

const defaultTokenTTL = 30 * 24 * time.Hour

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// LocalProvider keeps accounts in the document store: bcrypt password
// hashes in a "users" collection, HS256 session tokens so a client can
// resume a session across restarts.
type LocalProvider struct {
	store    docstore.Store
	secret   []byte
	tokenTTL time.Duration

	mu      sync.Mutex
	current *User
	subs    map[int]StateFunc
	nextSub int
}

func NewLocalProvider(store docstore.Store, secret string) *LocalProvider {
	return &LocalProvider{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		subs:     make(map[int]StateFunc),
	}
}

// SetTokenTTL overrides the session token lifetime.
func (p *LocalProvider) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		p.tokenTTL = ttl
	}
}

func (p *LocalProvider) Subscribe(fn StateFunc) UnsubscribeFunc {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *LocalProvider) CurrentUser() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	u := *p.current
	return &u
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	existing, err := p.store.QueryEqual(ctx, usersCollection, "email", email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	uid := uuid.NewString()
	err = p.store.Set(ctx, usersCollection, uid, map[string]any{
		"email":        email,
		"passwordHash": string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}

	u := &User{UID: uid, Email: email}
	p.setCurrent(u)
	return u, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := p.store.QueryEqual(ctx, usersCollection, "email", email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrInvalidCredentials
	}
	doc := docs[0]
	hash, _ := doc.Fields["passwordHash"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	u := &User{UID: doc.ID, Email: email}
	p.setCurrent(u)
	return u, nil
}

func (p *LocalProvider) SignOut(context.Context) error {
	p.setCurrent(nil)
	return nil
}

// Token issues a signed session token for the current user, empty when
// signed out. The client persists it alongside its other local state.
func (p *LocalProvider) Token() (string, error) {
	u := p.CurrentUser()
	if u == nil {
		return "", nil
	}
	now := time.Now()
	claims := &sessionClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Resume restores a session from a persisted token, verifying both the
// signature and that the account still exists.
func (p *LocalProvider) Resume(ctx context.Context, token string) (*User, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := p.store.Get(ctx, usersCollection, claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	u := &User{UID: claims.Subject, Email: claims.Email}
	p.setCurrent(u)
	return u, nil
}

func (p *LocalProvider) setCurrent(u *User) {
	p.mu.Lock()
	p.current = u
	targets := make([]StateFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(u)
	}
}

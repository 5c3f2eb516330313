// Package auth is the authorization collaborator: account signup/login with
// bcrypt-hashed passwords, browser sessions backed by random tokens, and
// Bearer API keys for the programmatic endpoints. The inference core only
// ever consumes its verdict, never credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcules/predict-server/internal/store"
)

// ErrInvalidCredentials covers both unknown account and wrong password, so
// login responses do not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

type Authenticator struct {
	Store *store.Store
}

func NewAuthenticator(s *store.Store) *Authenticator {
	return &Authenticator{Store: s}
}

// SignUp creates an account with a bcrypt password hash.
func (a *Authenticator) SignUp(ctx context.Context, username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.Store.CreateUser(ctx, store.UserRecord{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	})
}

// Login verifies the password and returns the matching account.
func (a *Authenticator) Login(ctx context.Context, email, password string) (store.UserRecord, error) {
	u, ok, err := a.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.UserRecord{}, err
	}
	if !ok {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	return u, nil
}

// StartSession issues a random session token. Only its sha256 hash is
// stored; the plaintext lives in the cookie.
func (a *Authenticator) StartSession(ctx context.Context, username string) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)
	if err := a.Store.CreateSession(ctx, hashToken(token), username); err != nil {
		return "", err
	}
	return token, nil
}

// SessionUser resolves a cookie token to its account.
func (a *Authenticator) SessionUser(ctx context.Context, token string) (store.UserRecord, bool, error) {
	username, ok, err := a.Store.GetSession(ctx, hashToken(token))
	if err != nil || !ok {
		return store.UserRecord{}, false, err
	}
	return a.Store.GetUser(ctx, username)
}

// EndSession invalidates a token. Unknown tokens are a no-op.
func (a *Authenticator) EndSession(ctx context.Context, token string) error {
	return a.Store.DeleteSession(ctx, hashToken(token))
}

// GenerateKey issues a new API key for a user and returns its plaintext,
// which is shown once and never stored.
func (a *Authenticator) GenerateKey(ctx context.Context, username string) (string, store.APIKeyRecord, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", store.APIKeyRecord{}, err
	}
	key := "pk-" + hex.EncodeToString(raw)

	record := store.APIKeyRecord{
		ID:        hex.EncodeToString(raw[:8]),
		Username:  username,
		Prefix:    key[:7],
		HashedKey: hashToken(key),
		CreatedAt: time.Now(),
	}
	if err := a.Store.CreateAPIKey(ctx, record); err != nil {
		return "", store.APIKeyRecord{}, err
	}
	return key, record, nil
}

type ctxKeyUser struct{}

// UserFromContext returns the account attached by Middleware or a session
// handler, or false.
func UserFromContext(ctx context.Context) (store.UserRecord, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(store.UserRecord)
	return u, ok
}

// WithUser attaches an authenticated account to a context.
func WithUser(ctx context.Context, u store.UserRecord) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

// Middleware authenticates API requests by Bearer key.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		record, ok, err := a.Store.GetAPIKeyByHash(r.Context(), hashToken(parts[1]))
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		user, ok, err := a.Store.GetUser(r.Context(), record.Username)
		if err != nil || !ok {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		go func() {
			_ = a.Store.UpdateAPIKeyLastUsed(context.Background(), record.ID)
		}()

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

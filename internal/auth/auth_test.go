package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcules/predict-server/internal/store"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewAuthenticator(s)
}

func TestSignUpAndLogin(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, a.SignUp(ctx, "alice", "alice@example.com", "s3cret"))

	u, err := a.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEqual(t, "s3cret", u.PasswordHash, "password must be hashed at rest")

	_, err = a.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, a.SignUp(ctx, "alice", "alice@example.com", "s3cret"))

	token, err := a.StartSession(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	u, ok, err := a.SessionUser(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)

	_, ok, err = a.SessionUser(ctx, "forged-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.EndSession(ctx, token))
	_, ok, err = a.SessionUser(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIKeyMiddleware(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, a.SignUp(ctx, "alice", "alice@example.com", "s3cret"))
	key, record, err := a.GenerateKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, key[:7], record.Prefix)
	assert.NotContains(t, record.HashedKey, key, "plaintext key must not be stored")

	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFromContext(r.Context()); ok {
			gotUser = u.Username
		}
	})
	handler := a.Middleware(next)

	// Valid key.
	req := httptest.NewRequest(http.MethodGet, "/api/result", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", gotUser)

	// Missing header.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/result", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong scheme.
	req = httptest.NewRequest(http.MethodGet, "/api/result", nil)
	req.Header.Set("Authorization", "Basic "+key)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown key.
	req = httptest.NewRequest(http.MethodGet, "/api/result", nil)
	req.Header.Set("Authorization", "Bearer pk-0000000000")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewJWTVerifier("s3cret").(*jwtVerifier)
	v.now = func() time.Time { return now }

	valid := sign(t, "s3cret", jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	uid, err := v.Verify(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong secret", sign(t, "other", jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})},
		{"expired", sign(t, "s3cret", jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})},
		{"no expiry", sign(t, "s3cret", jwt.RegisteredClaims{Subject: "alice"})},
		{"no subject", sign(t, "s3cret", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

type staticVerifier map[string]string

func (s staticVerifier) Verify(_ context.Context, token string) (string, error) {
	if uid, ok := s[token]; ok {
		return uid, nil
	}
	return "", ErrInvalidToken
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	m := NewAuthMiddleware(staticVerifier{"good": "alice"})
	h := m.RequireAuth(func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("uid").(string))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "unauthorized"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid_token"},
		{"ok", "Bearer good", http.StatusOK, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, h(e.NewContext(req, rec)))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

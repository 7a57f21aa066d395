package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/dwgate/cmd/dwgate/config"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestAuthMiddleware(t *testing.T, authType string) *AuthMiddleware {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	cfg := config.AuthConfig{
		Enabled: true,
		Type:    authType,
	}

	switch authType {
	case "bearer":
		cfg.BearerAuth.Tokens = map[string]string{
			"test-token": "testuser",
		}
		cfg.BearerAuth.TokenLifetime = time.Hour
	case "jwt":
		cfg.JWTAuth = config.JWTAuthConfig{
			Secret:   "test-secret",
			Issuer:   "test-issuer",
			Audience: "test-audience",
		}
	}

	m := NewAuthMiddleware(cfg, logger)
	m.now = func() time.Time { return testNow }
	return m
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "ada",
		"iss":   "test-issuer",
		"aud":   "test-audience",
		"exp":   testNow.Add(time.Hour).Unix(),
		"scope": "query schema",
	}
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	m := setupTestAuthMiddleware(t, "bearer")
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)

	t.Run("valid token", func(t *testing.T) {
		info, err := m.Verify(context.Background(), "test-token", req)
		require.NoError(t, err)
		assert.Equal(t, "testuser", info.Extra["user"])
		assert.Equal(t, testNow.Add(time.Hour), info.Expiration)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := m.Verify(context.Background(), "wrong-token", req)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestAuthMiddleware_JWT(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	secret := []byte("test-secret")

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, secret, validClaims())

		info, err := m.Verify(context.Background(), token, req)
		require.NoError(t, err)
		assert.Equal(t, "ada", info.Extra["user"])
		assert.Equal(t, []string{"query", "schema"}, info.Scopes)
		assert.Equal(t, testNow.Add(time.Hour).Unix(), info.Expiration.Unix())
	})

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name: "wrong secret",
			token: func() string {
				return signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims())
			},
		},
		{
			name: "expired",
			token: func() string {
				claims := validClaims()
				claims["exp"] = testNow.Add(-time.Minute).Unix()
				return signToken(t, jwt.SigningMethodHS256, secret, claims)
			},
		},
		{
			name: "missing exp",
			token: func() string {
				claims := validClaims()
				delete(claims, "exp")
				return signToken(t, jwt.SigningMethodHS256, secret, claims)
			},
		},
		{
			name: "wrong issuer",
			token: func() string {
				claims := validClaims()
				claims["iss"] = "someone-else"
				return signToken(t, jwt.SigningMethodHS256, secret, claims)
			},
		},
		{
			name: "wrong audience",
			token: func() string {
				claims := validClaims()
				claims["aud"] = "another-service"
				return signToken(t, jwt.SigningMethodHS256, secret, claims)
			},
		},
		{
			name: "unsigned",
			token: func() string {
				return signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims())
			},
		},
		{
			name:  "garbage",
			token: func() string { return "not-a-jwt" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(context.Background(), tt.token(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken))
		})
	}
}

func TestAuthMiddleware_Handler(t *testing.T) {
	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{name: "no header", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer test-token", wantStatus: http.StatusNoContent, wantUser: "testuser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			// Expiration is checked against the wall clock, so use the real one here.
			m := setupTestAuthMiddleware(t, "bearer")
			m.now = time.Now

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.Handler(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}

func TestAuthMiddleware_RequiredScopes(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")
	m.now = time.Now
	m.config.Scopes = []string{"query"}

	claims := validClaims()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	claims["scope"] = "schema"
	token := signToken(t, jwt.SigningMethodHS256, []byte("test-secret"), claims)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	m := NewAuthMiddleware(config.AuthConfig{}, zerolog.Nop())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// Package middleware provides the HTTP and gRPC middleware around the
// gateway's network surfaces.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/cmd/dwgate/config"
)

// AuthMiddleware verifies bearer tokens on the MCP HTTP transport.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Handler wraps next so that requests without a valid token get a 401.
// With auth disabled it returns next unchanged.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}
	return auth.RequireBearerToken(m.Verify, &auth.RequireBearerTokenOptions{
		Scopes: m.config.Scopes,
	})(next)
}

// Verify checks token against the configured scheme. Failures unwrap to
// auth.ErrInvalidToken.
func (m *AuthMiddleware) Verify(ctx context.Context, token string, req *http.Request) (*auth.TokenInfo, error) {
	var (
		info *auth.TokenInfo
		err  error
	)
	switch m.config.Type {
	case "bearer":
		info, err = m.verifyBearer(token)
	case "jwt":
		info, err = m.verifyJWT(token)
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", m.config.Type)
	}

	if err != nil {
		m.logger.Warn().Err(err).Str("path", req.URL.Path).Msg("Authentication failed")
		return nil, err
	}
	m.logger.Debug().Interface("user", info.Extra[contextKeyUser]).Msg("Authenticated")
	return info, nil
}

// verifyBearer matches token against the static token table.
func (m *AuthMiddleware) verifyBearer(token string) (*auth.TokenInfo, error) {
	var username string
	for candidate, user := range m.config.BearerAuth.Tokens {
		// Constant time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			username = user
		}
	}
	if username == "" {
		return nil, auth.ErrInvalidToken
	}

	lifetime := m.config.BearerAuth.TokenLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &auth.TokenInfo{
		Scopes:     m.config.Scopes,
		Expiration: m.now().Add(lifetime),
		Extra:      map[string]any{contextKeyUser: username},
	}, nil
}

// verifyJWT validates an HMAC-signed JWT. The exp claim is required; iss and
// aud are checked when configured. Scopes come from the space separated
// scope claim.
func (m *AuthMiddleware) verifyJWT(token string) (*auth.TokenInfo, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.JWTAuth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.JWTAuth.Issuer))
	}
	if m.config.JWTAuth.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.JWTAuth.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(m.config.JWTAuth.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", auth.ErrInvalidToken)
	}
	subject, _ := claims.GetSubject()

	var scopes []string
	if raw, ok := claims["scope"].(string); ok {
		scopes = strings.Fields(raw)
	}

	return &auth.TokenInfo{
		Scopes:     scopes,
		Expiration: exp.Time,
		Extra:      map[string]any{contextKeyUser: subject},
	}, nil
}

const contextKeyUser = "user"

// GetUser extracts the authenticated user from a request context.
func GetUser(ctx context.Context) (string, bool) {
	info := auth.TokenInfoFromContext(ctx)
	if info == nil {
		return "", false
	}
	user, ok := info.Extra[contextKeyUser].(string)
	return user, ok
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const authLogPrefix = "server:auth"

const tokenIssuer = "autodraw-agent"

var authTracer = otel.Tracer("autodraw-agent/auth")

// Claims are the bearer token claims of an API caller.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 API tokens.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a TokenManager. The secret must not be empty.
func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New(authLogPrefix + " - token secret is required")
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

// GenerateToken issues a token for subject that expires after ttl.
func (m *TokenManager) GenerateToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scope: "draw",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%s - failed to sign token: %w", authLogPrefix, err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token.
func (m *TokenManager) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	_, span := authTracer.Start(ctx, "auth.validate_token")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s - failed to parse token: %w", authLogPrefix, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s - invalid token claims", authLogPrefix)
	}
	span.SetAttributes(attribute.String("auth.subject", claims.Subject))
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(m *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Missing or invalid authorization header"))
			return
		}

		claims, err := m.ValidateToken(c.Request.Context(), strings.TrimSpace(header[len(prefix):]))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Rejected token on %s: %v", authLogPrefix, c.Request.URL.Path, err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Invalid or expired token"))
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

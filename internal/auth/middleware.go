// Package auth implements optional bearer-token protection for the
// control endpoints. Tokens are HS256 JWTs signed with a shared secret;
// with no secret configured the middleware passes requests through.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the verified token identity.
type Claims struct {
	Subject string
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const ClaimsKey ContextKey = "claims"

// Middleware verifies bearer tokens on protected handlers.
type Middleware struct {
	secret []byte
}

// NewMiddleware creates auth middleware. An empty secret disables
// verification entirely.
func NewMiddleware(secret string) *Middleware {
	m := &Middleware{}
	if secret != "" {
		m.secret = []byte(secret)
	}
	return m
}

// Enabled reports whether token verification is configured.
func (m *Middleware) Enabled() bool {
	return m.secret != nil
}

// RequireAuth wraps a handler with bearer-token verification. With auth
// disabled the handler is returned unchanged.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	if !m.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			writeUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.verifyToken(token)
		if err != nil {
			writeUnauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// Subject returns the authenticated user from the request context, or
// "" when the request was not authenticated.
func Subject(ctx context.Context) string {
	if claims, ok := ctx.Value(ClaimsKey).(*Claims); ok {
		return claims.Subject
	}
	return ""
}

func (m *Middleware) verifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims := &Claims{}
	if mapClaims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, ok := mapClaims["sub"].(string); ok {
			claims.Subject = sub
		}
	}
	return claims, nil
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

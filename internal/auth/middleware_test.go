package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedHandler(seen *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*seen = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	m := NewMiddleware("")
	assert.False(t, m.Enabled())

	var seen string
	handler := m.RequireAuth(protectedHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/drone/takeoff", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen)
}

func TestValidTokenAccepted(t *testing.T) {
	m := NewMiddleware(testSecret)
	require.True(t, m.Enabled())

	var seen string
	handler := m.RequireAuth(protectedHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/drone/takeoff", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "pilot"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pilot", seen)
}

func TestRejectedRequests(t *testing.T) {
	m := NewMiddleware(testSecret)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"empty token", "Bearer "},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "pilot")},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := m.RequireAuth(protectedHandler(&seen))

			req := httptest.NewRequest(http.MethodGet, "/drone/takeoff", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewMiddleware(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "pilot",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	var seen string
	handler := m.RequireAuth(protectedHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/drone/takeoff", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)
	return v
}

func issue(t *testing.T, v *TokenVerifier, userID string) string {
	t.Helper()
	tok, err := v.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier("")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	v := newVerifier(t)
	other, err := NewTokenVerifier("another-secret")
	require.NoError(t, err)

	expired, err := v.Issue("u1", time.Hour)
	require.NoError(t, err)
	v.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	defer func() { v.now = time.Now }()
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
	v.now = time.Now

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "u1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"valid", issue(t, v, "u1"), "u1", nil},
		{"empty", "", "", ErrNoToken},
		{"garbage", "not-a-token", "", ErrInvalidToken},
		{"wrong secret", issue(t, other, "u1"), "", ErrInvalidToken},
		{"missing userId", noUser, "", ErrInvalidToken},
		{"unexpected algorithm", hs512, "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"query", "/ws?token=abc", "", "abc"},
		{"bearer", "/ws", "Bearer abc", "abc"},
		{"lowercase scheme", "/ws", "bearer abc", "abc"},
		{"bare header", "/ws", "abc", "abc"},
		{"query wins", "/ws?token=q", "Bearer h", "q"},
		{"none", "/ws", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, tokenFromRequest(r))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	v := newVerifier(t)
	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusForbidden},
		{"valid", "Bearer " + issue(t, v, "u42"), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/game/x", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Equal(t, "u42", seen)
}

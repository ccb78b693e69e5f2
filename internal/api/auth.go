package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"arena-clash/internal/metrics"
)

var (
	// ErrNoToken is returned when a request carries no bearer token
	ErrNoToken = errors.New("access denied: no token provided")

	// ErrInvalidToken covers bad signatures, expired tokens and tokens without a userId
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload issued by the account service.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 tokens signed with the shared secret.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier creates a verifier. An empty secret would accept forged
// tokens, so it is refused.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: SECRET_KEY is required")
	}
	return &TokenVerifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify parses a token and returns the userId it carries.
func (v *TokenVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// Issue signs a token for userID. A zero ttl issues a token without expiry.
func (v *TokenVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	claims := Claims{UserID: userID}
	now := v.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// FromRequest verifies the token of an HTTP or WebSocket handshake request.
// Browsers cannot set headers on a WebSocket handshake, so ?token= is
// accepted as well as an Authorization header.
func (v *TokenVerifier) FromRequest(r *http.Request) (string, error) {
	return v.Verify(tokenFromRequest(r))
}

func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	// a bare token is accepted for clients that omit the scheme
	return h
}

type contextKey string

const userIDKey contextKey = "userId"

// Middleware rejects requests without a valid token: 401 when the token is
// missing, 403 when it does not verify.
func (v *TokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := v.FromRequest(r)
		switch {
		case errors.Is(err, ErrNoToken):
			metrics.RecordConnectionRejected("auth")
			writeError(w, http.StatusUnauthorized, "Access denied. No token provided.")
			return
		case err != nil:
			metrics.RecordConnectionRejected("auth")
			writeError(w, http.StatusForbidden, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// UserIDFrom returns the authenticated user of a request that passed Middleware.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCookie is the cookie a session token is read from before the Authorization header
const TokenCookie = "token"

var (
	// ErrNoToken is returned when the request carries no token
	ErrNoToken = errors.New("no token")
	// ErrNoSubject is returned when a valid token names no user
	ErrNoSubject = errors.New("token has no subject")
)

// ExtractToken returns the session token from the token cookie or a Bearer
// Authorization header
func ExtractToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

// ParseSubject validates an HS256 token signed with secret and returns the user
// it names: the sub claim, or the legacy id claim.
func ParseSubject(secret []byte, raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	switch id := claims["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", ErrNoSubject
}

// SignToken issues an HS256 token for userID valid for ttl
func SignToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

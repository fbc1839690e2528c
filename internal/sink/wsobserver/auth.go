package wsobserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("wsobserver: missing authentication token")
	ErrInvalidToken = errors.New("wsobserver: invalid authentication token")
	ErrExpiredToken = errors.New("wsobserver: token has expired")
)

// Authenticator extracts and validates a caller's identity from an
// upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// JWTAuth authenticates connections with an HMAC-signed JWT, checked
// against the Authorization header first and then the "token" query
// parameter (browsers cannot set custom headers on a WebSocket upgrade).
type JWTAuth struct {
	secretKey string
}

// NewJWTAuth builds a JWTAuth validating tokens signed with secretKey.
func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

type jwtClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return a.validate(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return a.validate(token)
	}
	return "", ErrMissingToken
}

func (a *JWTAuth) validate(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// IssueToken mints a token for userID, valid until expiresAt.
func (a *JWTAuth) IssueToken(userID string, expiresAt time.Time) (string, error) {
	claims := jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.secretKey))
}

// NoAuth accepts every connection as anonymous. Intended for local
// development only.
type NoAuth struct{}

func (NoAuth) Authenticate(r *http.Request) (string, error) { return "anonymous", nil }

package wsobserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuth_IssueThenAuthenticateViaHeader(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.IssueToken("user-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestJWTAuth_AuthenticateViaQueryParam(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.IssueToken("user-2", time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	userID, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestJWTAuth_MissingTokenErrors(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, err := auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestJWTAuth_ExpiredTokenErrors(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.IssueToken("user-3", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTAuth_WrongSecretErrors(t *testing.T) {
	issuer := NewJWTAuth("secret-a")
	token, err := issuer.IssueToken("user-4", time.Now().Add(time.Hour))
	require.NoError(t, err)

	verifier := NewJWTAuth("secret-b")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = verifier.Authenticate(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNoAuth_AcceptsEveryConnection(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	userID, err := NoAuth{}.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", userID)
}

package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	creds map[string]StoredCredential
	saved StoredCredential
}

func (f *fakeStore) Get(_ context.Context, id string) (StoredCredential, error) {
	c, ok := f.creds[id]
	if !ok {
		return StoredCredential{}, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) Save(_ context.Context, cred StoredCredential) error {
	f.saved = cred
	f.creds[cred.ID] = cred
	return nil
}

type fakeRefresher struct {
	token     string
	expiresAt time.Time
	err       error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ StoredCredential) (string, time.Time, error) {
	return f.token, f.expiresAt, f.err
}

func TestStoreLoader_LoadReturnsFieldsAndKind(t *testing.T) {
	store := &fakeStore{creds: map[string]StoredCredential{
		"c1": {ID: "c1", Kind: "apikey", Fields: map[string]any{"key": "abc"}},
	}}
	loader := NewStoreLoader(store, nil)

	record, err := loader.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "abc", record["key"])
	assert.Equal(t, "apikey", record["kind"])
}

func TestStoreLoader_LoadUnknownCredentialErrors(t *testing.T) {
	loader := NewStoreLoader(&fakeStore{creds: map[string]StoredCredential{}}, nil)
	_, err := loader.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStoreLoader_RefreshesExpiringOAuthToken(t *testing.T) {
	newExpiry := time.Now().Add(time.Hour)
	store := &fakeStore{creds: map[string]StoredCredential{
		"c1": {ID: "c1", Kind: "oauth2", AccessToken: "old", ExpiresAt: time.Now().Add(time.Minute)},
	}}
	refresher := &fakeRefresher{token: "new-token", expiresAt: newExpiry}
	loader := NewStoreLoader(store, refresher)

	record, err := loader.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "new-token", record["access_token"])
	assert.Equal(t, "new-token", store.saved.AccessToken)
}

func TestStoreLoader_ExpiringTokenWithoutRefresherErrors(t *testing.T) {
	store := &fakeStore{creds: map[string]StoredCredential{
		"c1": {ID: "c1", Kind: "oauth2", AccessToken: "old", ExpiresAt: time.Now().Add(time.Minute)},
	}}
	loader := NewStoreLoader(store, nil)

	_, err := loader.Load(context.Background(), "c1")
	assert.Error(t, err)
}

func TestStoreLoader_RefresherErrorPropagates(t *testing.T) {
	store := &fakeStore{creds: map[string]StoredCredential{
		"c1": {ID: "c1", Kind: "oauth2", ExpiresAt: time.Now().Add(time.Minute)},
	}}
	loader := NewStoreLoader(store, &fakeRefresher{err: errors.New("refresh failed")})

	_, err := loader.Load(context.Background(), "c1")
	assert.Error(t, err)
}

func TestStoreLoader_ValidTokenSkipsRefresh(t *testing.T) {
	store := &fakeStore{creds: map[string]StoredCredential{
		"c1": {ID: "c1", Kind: "oauth2", AccessToken: "still-good", ExpiresAt: time.Now().Add(24 * time.Hour)},
	}}
	loader := NewStoreLoader(store, nil)

	record, err := loader.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "still-good", record["access_token"])
}

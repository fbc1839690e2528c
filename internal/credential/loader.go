// Package credential implements the Credential Loader Interface
// consumed by the engine (spec §6.2): a scoped collaborator that turns
// a stored-credential id into a record a plugin can use, refreshing
// OAuth2 access tokens with a safety window before they expire.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// refreshWindow is the minimum remaining validity an OAuth2 access
// token must have; anything less triggers a refresh before the record
// is handed to a plugin (spec §6.2).
const refreshWindow = 5 * time.Minute

// Loader is the engine-facing credential collaborator.
type Loader interface {
	// Load returns an immutable record for credentialID valid for the
	// duration of a single plugin call.
	Load(ctx context.Context, credentialID string) (plugin.CredentialRecord, error)
}

// StoredCredential is the at-rest representation a Store persists.
type StoredCredential struct {
	ID           string
	Kind         string // "apikey", "oauth2", "basic", ...
	Fields       map[string]any
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher refreshes an OAuth2 access token using its refresh
// token. Implementations call out to the provider's token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred StoredCredential) (accessToken string, expiresAt time.Time, err error)
}

// StoreLoader loads credentials from a Store, refreshing OAuth2 tokens
// that are within refreshWindow of expiring.
type StoreLoader struct {
	store     Store
	refresher TokenRefresher
}

// Store is the persistence side of the credential loader.
type Store interface {
	Get(ctx context.Context, credentialID string) (StoredCredential, error)
	Save(ctx context.Context, cred StoredCredential) error
}

// NewStoreLoader builds a Loader backed by store, refreshing tokens via
// refresher when needed.
func NewStoreLoader(store Store, refresher TokenRefresher) *StoreLoader {
	return &StoreLoader{store: store, refresher: refresher}
}

// Load implements Loader.
func (l *StoreLoader) Load(ctx context.Context, credentialID string) (plugin.CredentialRecord, error) {
	cred, err := l.store.Get(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("credential: load %s: %w", credentialID, err)
	}

	if cred.Kind == "oauth2" && !cred.ExpiresAt.IsZero() && time.Until(cred.ExpiresAt) < refreshWindow {
		if l.refresher == nil {
			return nil, fmt.Errorf("credential: %s access token expires within %s and no refresher is configured", credentialID, refreshWindow)
		}
		token, expiresAt, err := l.refresher.Refresh(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("credential: refresh %s: %w", credentialID, err)
		}
		cred.AccessToken = token
		cred.ExpiresAt = expiresAt
		if err := l.store.Save(ctx, cred); err != nil {
			return nil, fmt.Errorf("credential: persist refreshed token for %s: %w", credentialID, err)
		}
	}

	record := make(plugin.CredentialRecord, len(cred.Fields)+2)
	for k, v := range cred.Fields {
		record[k] = v
	}
	if cred.AccessToken != "" {
		record["access_token"] = cred.AccessToken
	}
	record["kind"] = cred.Kind
	return record, nil
}

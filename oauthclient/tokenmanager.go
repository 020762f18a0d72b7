package oauthclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// defaultResourceKey indexes tokens stored without a resource indicator.
const defaultResourceKey = "default"

// DefaultExpiryBuffer is subtracted from a token's lifetime before it counts
// as expired.
const DefaultExpiryBuffer = 60 * time.Second

// StoredToken is a token response persisted by the manager with an absolute
// expiry.
type StoredToken struct {
	AccessToken  string
	TokenType    string
	ExpiresAt    time.Time
	RefreshToken string
	Scope        string
	IDToken      string
	Resource     string
	StoredAt     time.Time
}

// TokenManager caches tokens per resource and refreshes them transparently,
// deduplicating concurrent refreshes for the same resource.
type TokenManager struct {
	mux          sync.RWMutex
	tokens       map[string]*StoredToken
	client       *Client
	expiryBuffer time.Duration
	group        singleflight.Group
}

// ManagerOption mutates a TokenManager.
type ManagerOption func(m *TokenManager)

// WithExpiryBuffer overrides the refresh-ahead window.
func WithExpiryBuffer(buffer time.Duration) ManagerOption {
	return func(m *TokenManager) {
		m.expiryBuffer = buffer
	}
}

// NewTokenManager creates a TokenManager refreshing through the given client.
func NewTokenManager(client *Client, options ...ManagerOption) *TokenManager {
	ret := &TokenManager{
		tokens:       map[string]*StoredToken{},
		client:       client,
		expiryBuffer: DefaultExpiryBuffer,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func resourceKey(resource string) string {
	if resource == "" {
		return defaultResourceKey
	}
	return resource
}

// StoreToken records a token response under the resource key, computing the
// absolute expiry from expires_in (defaulting to one hour).
func (m *TokenManager) StoreToken(response *TokenResponse, resource string) *StoredToken {
	expiresIn := response.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	now := time.Now()
	stored := &StoredToken{
		AccessToken:  response.AccessToken,
		TokenType:    response.TokenType,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
		RefreshToken: response.RefreshToken,
		Scope:        response.Scope,
		IDToken:      response.IDToken,
		Resource:     resource,
		StoredAt:     now,
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	m.tokens[resourceKey(resource)] = stored
	return stored
}

// GetToken returns the stored token for a resource without validity checks.
func (m *TokenManager) GetToken(resource string) *StoredToken {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.tokens[resourceKey(resource)]
}

// RemoveToken evicts the stored token for a resource.
func (m *TokenManager) RemoveToken(resource string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.tokens, resourceKey(resource))
}

// Clear evicts all stored tokens.
func (m *TokenManager) Clear() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.tokens = map[string]*StoredToken{}
}

// GetValidAccessToken returns a live access token for the resource, refreshing
// when the stored one is within the expiry buffer. Concurrent callers for the
// same resource share a single in-flight refresh.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, resource string) (string, error) {
	stored := m.GetToken(resource)
	if stored == nil {
		return "", newTokenError(TokenErrorNoToken, "no token stored for resource", nil)
	}
	if time.Now().Add(m.expiryBuffer).Before(stored.ExpiresAt) {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		return "", newTokenError(TokenErrorExpired, "token expired and no refresh token available", nil)
	}

	result, err, _ := m.group.Do(resourceKey(resource), func() (interface{}, error) {
		// the winning caller may have refreshed already
		if current := m.GetToken(resource); current != nil &&
			time.Now().Add(m.expiryBuffer).Before(current.ExpiresAt) {
			return current.AccessToken, nil
		}
		response, err := m.client.RefreshToken(ctx, stored.RefreshToken, RefreshOptions{Resource: stored.Resource})
		if err != nil {
			var oauthErr *OAuthError
			if errors.As(err, &oauthErr) && oauthErr.Code == ErrCodeInvalidGrant {
				m.RemoveToken(resource)
			}
			return nil, newTokenError(TokenErrorExpired, "token refresh failed", err)
		}
		refreshed := m.StoreToken(response, resource)
		if refreshed.RefreshToken == "" {
			// provider did not rotate, keep the old refresh token
			m.mux.Lock()
			refreshed.RefreshToken = stored.RefreshToken
			m.mux.Unlock()
		}
		return refreshed.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

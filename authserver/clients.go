package authserver

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnknownClient is returned when a client id is not registered.
	ErrUnknownClient = errors.New("authserver: unknown client")
	// ErrClientAuthFailed is returned when client credentials do not match.
	ErrClientAuthFailed = errors.New("authserver: client authentication failed")
)

// Client is a registered OAuth client. Public clients have no secret and
// authenticate with PKCE alone.
type Client struct {
	ID           string
	secretHash   []byte
	RedirectURIs []string
	Public       bool
}

// ClientRegistry holds registered clients. Secrets are stored as bcrypt
// hashes only.
type ClientRegistry struct {
	mux     sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: map[string]*Client{}}
}

// Register adds a confidential client.
func (r *ClientRegistry) Register(id, secret string, redirectURIs []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.clients[id] = &Client{ID: id, secretHash: hash, RedirectURIs: redirectURIs}
	return nil
}

// RegisterPublic adds a public client without a secret.
func (r *ClientRegistry) RegisterPublic(id string, redirectURIs []string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.clients[id] = &Client{ID: id, RedirectURIs: redirectURIs, Public: true}
}

// Get returns a registered client.
func (r *ClientRegistry) Get(id string) (*Client, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	client, ok := r.clients[id]
	if !ok {
		return nil, ErrUnknownClient
	}
	return client, nil
}

// Authenticate checks client credentials. Public clients authenticate with an
// empty secret.
func (r *ClientRegistry) Authenticate(id, secret string) (*Client, error) {
	client, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if client.Public {
		if secret != "" {
			return nil, ErrClientAuthFailed
		}
		return client, nil
	}
	if err := bcrypt.CompareHashAndPassword(client.secretHash, []byte(secret)); err != nil {
		return nil, ErrClientAuthFailed
	}
	return client, nil
}

// ValidateRedirect reports whether the uri is registered for the client.
func (r *ClientRegistry) ValidateRedirect(id, uri string) bool {
	client, err := r.Get(id)
	if err != nil {
		return false
	}
	for _, registered := range client.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

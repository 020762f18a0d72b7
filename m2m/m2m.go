package m2m

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Auth methods for the token endpoint.
const (
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
)

// DefaultExpiryBuffer is subtracted from the token lifetime before it counts
// as expired.
const DefaultExpiryBuffer = 60 * time.Second

// Config configures a machine-to-machine client.
type Config struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	AuthMethod    string
	Scopes        []string
	Audience      string
	ExpiryBuffer  time.Duration
	HTTPClient    *http.Client
}

// AuthError is a failure obtaining a client-credentials token.
type AuthError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("m2m auth error %s: %s", e.Code, e.Description)
	}
	return "m2m auth error " + e.Code
}

// TokenOptions override the configured scopes or audience for one call.
// Overridden calls bypass the cache entirely.
type TokenOptions struct {
	Scopes   []string
	Audience string
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Client obtains and caches client-credentials access tokens.
type Client struct {
	config Config
	mux    sync.RWMutex
	cached *cachedToken
	group  singleflight.Group
}

// NewClient creates a Client, defaulting to basic authentication and a 60
// second expiry buffer.
func NewClient(config Config) (*Client, error) {
	if config.TokenEndpoint == "" {
		return nil, fmt.Errorf("m2m: token endpoint is required")
	}
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("m2m: client credentials are required")
	}
	switch config.AuthMethod {
	case "":
		config.AuthMethod = AuthMethodBasic
	case AuthMethodBasic, AuthMethodPost:
	default:
		return nil, fmt.Errorf("m2m: unsupported auth method %q", config.AuthMethod)
	}
	if config.ExpiryBuffer <= 0 {
		config.ExpiryBuffer = DefaultExpiryBuffer
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: config}, nil
}

// GetAccessToken returns a live access token, requesting a new one when the
// cache is empty or stale. Per-call overrides bypass the cache and are not
// cached; concurrent default-option calls share one in-flight request.
func (c *Client) GetAccessToken(ctx context.Context, options *TokenOptions) (string, error) {
	if options != nil && (len(options.Scopes) > 0 || options.Audience != "") {
		response, err := c.requestToken(ctx, options.Scopes, options.Audience)
		if err != nil {
			return "", err
		}
		return response.AccessToken, nil
	}
	if token, ok := c.cachedValid(); ok {
		return token, nil
	}
	result, err, _ := c.group.Do("default", func() (interface{}, error) {
		if token, ok := c.cachedValid(); ok {
			return token, nil
		}
		response, err := c.requestToken(ctx, c.config.Scopes, c.config.Audience)
		if err != nil {
			return nil, err
		}
		expiresIn := response.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		c.mux.Lock()
		c.cached = &cachedToken{
			accessToken: response.AccessToken,
			expiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
		}
		c.mux.Unlock()
		return response.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// IsTokenValid reports whether a cached token is live, accounting for the
// expiry buffer.
func (c *Client) IsTokenValid() bool {
	_, ok := c.cachedValid()
	return ok
}

// GetTokenExpiration returns the cached token's expiry, zero when absent.
func (c *Client) GetTokenExpiration() time.Time {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.cached == nil {
		return time.Time{}
	}
	return c.cached.expiresAt
}

// ClearCache drops the cached token.
func (c *Client) ClearCache() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.cached = nil
}

// GetConfig returns the configuration with the client secret elided.
func (c *Client) GetConfig() Config {
	redacted := c.config
	redacted.ClientSecret = ""
	return redacted
}

func (c *Client) cachedValid() (string, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.cached == nil {
		return "", false
	}
	if time.Now().Add(c.config.ExpiryBuffer).After(c.cached.expiresAt) {
		return "", false
	}
	return c.cached.accessToken, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

func (c *Client) requestToken(ctx context.Context, scopes []string, audience string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	if audience != "" {
		form.Set("audience", audience)
	}
	if c.config.AuthMethod == AuthMethodPost {
		form.Set("client_id", c.config.ClientID)
		form.Set("client_secret", c.config.ClientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.config.AuthMethod == AuthMethodBasic {
		req.Header.Set("Authorization", "Basic "+basicCredentials(c.config.ClientID, c.config.ClientSecret))
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, &AuthError{Code: "server_error", Description: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Code: "server_error", Description: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			ErrorURI         string `json:"error_uri"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
			return nil, &AuthError{Code: parsed.Error, Description: parsed.ErrorDescription, URI: parsed.ErrorURI}
		}
		return nil, &AuthError{Code: "server_error",
			Description: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)}
	}
	ret := &tokenResponse{}
	if err := json.Unmarshal(body, ret); err != nil {
		return nil, &AuthError{Code: "server_error", Description: "failed to parse token response"}
	}
	return ret, nil
}

// basicCredentials builds the basic auth payload, percent-encoding id and
// secret before base64 as RFC 6749 section 2.3.1 requires.
func basicCredentials(clientID, clientSecret string) string {
	credentials := url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)
	return base64.StdEncoding.EncodeToString([]byte(credentials))
}

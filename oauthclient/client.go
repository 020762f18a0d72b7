package oauthclient

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/pkce"
)

// DefaultSessionTTL bounds how long an authorization flow may stay pending.
const DefaultSessionTTL = 600 * time.Second

// Config configures the OAuth client.
type Config struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	Scopes                []string
	SessionTTL            time.Duration
	HTTPClient            *http.Client
	Logger                zerolog.Logger
}

// Client drives the authorization code flow with PKCE from the relying-party
// side.
type Client struct {
	config Config
}

// NewClient creates a Client, applying defaults for the HTTP client and
// session TTL.
func NewClient(config Config) *Client {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	return &Client{config: config}
}

// FlowSession is the client-side state of one pending authorization flow.
type FlowSession struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Resources    []string
}

// Expired reports whether the flow session has outlived its TTL.
func (s *FlowSession) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// AuthorizationOptions tune BuildAuthorizationURL.
type AuthorizationOptions struct {
	Scopes    []string
	Resources []string
	Audience  string
	Extra     url.Values
}

// newState returns a 256-bit random state encoded as unpadded base64url.
func newState() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("oauthclient: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// BuildAuthorizationURL composes the authorize URL and the flow session the
// caller must retain for the callback.
func (c *Client) BuildAuthorizationURL(options AuthorizationOptions) (string, *FlowSession, error) {
	verifier, err := pkce.GenerateVerifier(0)
	if err != nil {
		return "", nil, err
	}
	challenge, err := pkce.GenerateChallenge(verifier)
	if err != nil {
		return "", nil, err
	}
	now := time.Now()
	session := &FlowSession{
		State:        newState(),
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.config.SessionTTL),
		Resources:    options.Resources,
	}
	scopes := options.Scopes
	if len(scopes) == 0 {
		scopes = c.config.Scopes
	}
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("state", session.State)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", pkce.MethodS256)
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}
	// RFC 8707: one resource indicator per query parameter
	for _, resource := range options.Resources {
		query.Add("resource", resource)
	}
	if options.Audience != "" {
		query.Set("audience", options.Audience)
	}
	for key, values := range options.Extra {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	return c.config.AuthorizationEndpoint + "?" + query.Encode(), session, nil
}

// CallbackParams are the query parameters delivered to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// HandleCallback validates the callback against the flow session and
// exchanges the code. Validation order: session expiry, state comparison,
// provider error, exchange.
func (c *Client) HandleCallback(ctx context.Context, params CallbackParams, session *FlowSession) (*TokenResponse, error) {
	if session == nil || session.Expired() {
		return nil, &OAuthError{Code: ErrCodeSessionExpired, Description: "authorization session has expired"}
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(session.State)) != 1 {
		return nil, &OAuthError{Code: ErrCodeInvalidState, Description: "state parameter mismatch"}
	}
	if params.Error != "" {
		return nil, &OAuthError{Code: params.Error, Description: params.ErrorDescription, URI: params.ErrorURI}
	}
	var resource string
	if len(session.Resources) > 0 {
		resource = session.Resources[0]
	}
	return c.ExchangeCode(ctx, params.Code, session.CodeVerifier, resource)
}

// TokenResponse is a normalized token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// ExchangeCode posts the authorization code grant to the token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier, resource string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	form.Set("redirect_uri", c.config.RedirectURI)
	form.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}
	if resource != "" {
		form.Set("resource", resource)
	}
	return c.postToken(ctx, form)
}

// RefreshOptions tune a refresh request.
type RefreshOptions struct {
	Scopes   []string
	Resource string
}

// RefreshToken posts the refresh grant to the token endpoint. An
// invalid_grant error signals the refresh token has been revoked.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string, options RefreshOptions) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}
	if len(options.Scopes) > 0 {
		form.Set("scope", strings.Join(options.Scopes, " "))
	}
	if options.Resource != "" {
		form.Set("resource", options.Resource)
	}
	return c.postToken(ctx, form)
}

func (c *Client) postToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapTokenError(resp.StatusCode, body)
	}
	token := &TokenResponse{}
	if err := json.Unmarshal(body, token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	c.config.Logger.Debug().Str("endpoint", c.config.TokenEndpoint).Msg("token obtained")
	return token, nil
}

// mapTokenError converts an error body into an OAuthError when it is
// well-formed, otherwise a generic error carrying the status.
func mapTokenError(status int, body []byte) error {
	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return &OAuthError{Code: parsed.Error, Description: parsed.ErrorDescription, URI: parsed.ErrorURI}
	}
	return fmt.Errorf("token endpoint returned status %d", status)
}

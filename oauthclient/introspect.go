package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// IntrospectionResult is a parsed RFC 7662 introspection response.
type IntrospectionResult struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Expires   int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Issuer    string `json:"iss,omitempty"`
}

// IntrospectConfig configures introspection endpoint access.
type IntrospectConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// Introspect posts a token to an RFC 7662 introspection endpoint, using basic
// auth when client credentials are configured.
func Introspect(ctx context.Context, config IntrospectConfig, token, tokenTypeHint string) (*IntrospectionResult, error) {
	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if config.ClientID != "" {
		req.SetBasicAuth(config.ClientID, config.ClientSecret)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read introspection response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapTokenError(resp.StatusCode, body)
	}
	ret := &IntrospectionResult{}
	if err := json.Unmarshal(body, ret); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}
	return ret, nil
}

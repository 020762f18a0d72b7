package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// OAuthServerMetadata is the RFC 8414 authorization server metadata document.
type OAuthServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 protected resource metadata
// document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// BuildOAuthServerMetadata derives the authorization server metadata from the
// issuer URL.
func BuildOAuthServerMetadata(issuer string) (*OAuthServerMetadata, error) {
	if issuer == "" {
		return nil, errors.New("discovery: issuer is required")
	}
	issuer = strings.TrimRight(issuer, "/")
	return &OAuthServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token", "client_credentials"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
	}, nil
}

// ResourceConfig configures the protected resource metadata. Leaving the
// optional slices nil selects the defaults; an explicitly empty slice omits
// the field from the document.
type ResourceConfig struct {
	ResourceURL            string
	AuthorizationServers   []string
	ScopesSupported        []string
	BearerMethodsSupported []string
}

// BuildProtectedResourceMetadata builds the RFC 9728 document for a resource.
func BuildProtectedResourceMetadata(config ResourceConfig) (*ProtectedResourceMetadata, error) {
	if config.ResourceURL == "" {
		return nil, errors.New("discovery: resource URL is required")
	}
	if len(config.AuthorizationServers) == 0 {
		return nil, errors.New("discovery: at least one authorization server is required")
	}
	ret := &ProtectedResourceMetadata{
		Resource:             config.ResourceURL,
		AuthorizationServers: config.AuthorizationServers,
	}
	switch {
	case config.ScopesSupported == nil:
		ret.ScopesSupported = []string{"tools:read", "tools:execute", "logging:write"}
	case len(config.ScopesSupported) > 0:
		ret.ScopesSupported = config.ScopesSupported
	}
	switch {
	case config.BearerMethodsSupported == nil:
		ret.BearerMethodsSupported = []string{"header"}
	case len(config.BearerMethodsSupported) > 0:
		ret.BearerMethodsSupported = config.BearerMethodsSupported
	}
	return ret, nil
}

// ChallengeParams are the parameters of a Bearer WWW-Authenticate challenge.
type ChallengeParams struct {
	ResourceMetadataURL string
	Realm               string
	Error               string
	ErrorDescription    string
	Scope               string
}

// BuildWWWAuthenticate assembles an RFC 6750 Bearer challenge with quoted
// parameter values.
func BuildWWWAuthenticate(params ChallengeParams) string {
	var parts []string
	if params.Realm != "" {
		parts = append(parts, fmt.Sprintf("realm=%q", params.Realm))
	}
	if params.ResourceMetadataURL != "" {
		parts = append(parts, fmt.Sprintf("resource_metadata=%q", params.ResourceMetadataURL))
	}
	if params.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", params.Error))
	}
	if params.ErrorDescription != "" {
		parts = append(parts, fmt.Sprintf("error_description=%q", params.ErrorDescription))
	}
	if params.Scope != "" {
		parts = append(parts, fmt.Sprintf("scope=%q", params.Scope))
	}
	if len(parts) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(parts, ", ")
}

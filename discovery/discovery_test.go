package discovery

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOAuthServerMetadata(t *testing.T) {
	metadata, err := BuildOAuthServerMetadata("https://auth.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", metadata.Issuer)
	assert.Equal(t, "https://auth.example.com/authorize", metadata.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/token", metadata.TokenEndpoint)
	assert.Equal(t, []string{"code"}, metadata.ResponseTypesSupported)
	assert.Equal(t, []string{"S256"}, metadata.CodeChallengeMethodsSupported)
	assert.Equal(t, []string{"authorization_code", "refresh_token", "client_credentials"}, metadata.GrantTypesSupported)
	assert.Equal(t, []string{"client_secret_basic", "client_secret_post", "none"}, metadata.TokenEndpointAuthMethodsSupported)

	_, err = BuildOAuthServerMetadata("")
	assert.Error(t, err)
}

func TestBuildProtectedResourceMetadata(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		metadata, err := BuildProtectedResourceMetadata(ResourceConfig{
			ResourceURL:          "https://mcp.example.com",
			AuthorizationServers: []string{"https://auth.example.com"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"tools:read", "tools:execute", "logging:write"}, metadata.ScopesSupported)
		assert.Equal(t, []string{"header"}, metadata.BearerMethodsSupported)
	})
	t.Run("explicit empty omits fields", func(t *testing.T) {
		metadata, err := BuildProtectedResourceMetadata(ResourceConfig{
			ResourceURL:            "https://mcp.example.com",
			AuthorizationServers:   []string{"https://auth.example.com"},
			ScopesSupported:        []string{},
			BearerMethodsSupported: []string{},
		})
		require.NoError(t, err)
		data, err := json.Marshal(metadata)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "scopes_supported")
		assert.NotContains(t, string(data), "bearer_methods_supported")
	})
	t.Run("validation", func(t *testing.T) {
		_, err := BuildProtectedResourceMetadata(ResourceConfig{AuthorizationServers: []string{"https://a"}})
		assert.Error(t, err)
		_, err = BuildProtectedResourceMetadata(ResourceConfig{ResourceURL: "https://mcp.example.com"})
		assert.Error(t, err)
	})
}

func TestBuildWWWAuthenticate(t *testing.T) {
	header := BuildWWWAuthenticate(ChallengeParams{
		Realm:               "https://auth.example.com",
		ResourceMetadataURL: "https://mcp.example.com/.well-known/oauth-protected-resource",
		Error:               "insufficient_scope",
		ErrorDescription:    "more scopes needed",
		Scope:               "mcp:write",
	})
	assert.Equal(t, `Bearer realm="https://auth.example.com", `+
		`resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource", `+
		`error="insufficient_scope", error_description="more scopes needed", scope="mcp:write"`, header)

	assert.Equal(t, "Bearer", BuildWWWAuthenticate(ChallengeParams{}))
}

func TestParseWWWAuthenticate(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		header := BuildWWWAuthenticate(ChallengeParams{
			Realm:               "https://auth.example.com",
			ResourceMetadataURL: "https://mcp.example.com/meta",
			Error:               "invalid_token",
			ErrorDescription:    "expired",
			Scope:               "mcp:read mcp:write",
		})
		params := ParseWWWAuthenticate(header)
		require.NotNil(t, params)
		assert.Equal(t, "Bearer", params.Scheme)
		assert.Equal(t, "https://auth.example.com", params.Realm)
		assert.Equal(t, "https://mcp.example.com/meta", params.ResourceMetadataURL)
		assert.Equal(t, "invalid_token", params.Error)
		assert.Equal(t, "expired", params.ErrorDescription)
		assert.Equal(t, "mcp:read mcp:write", params.Scope)
		assert.True(t, params.IsOAuthChallenge())
	})
	t.Run("scheme only", func(t *testing.T) {
		params := ParseWWWAuthenticate("Basic")
		require.NotNil(t, params)
		assert.Equal(t, "Basic", params.Scheme)
		assert.False(t, params.IsOAuthChallenge())
	})
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, ParseWWWAuthenticate(""))
	})
}

func TestMetadataHandlers(t *testing.T) {
	t.Run("oauth server metadata", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		OAuthServerMetadataHandler("https://auth.example.com")(recorder, httptest.NewRequest("GET", "/.well-known/oauth-authorization-server", nil))
		assert.Equal(t, 200, recorder.Code)
		assert.Equal(t, "public, max-age=3600", recorder.Header().Get("Cache-Control"))

		var metadata OAuthServerMetadata
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &metadata))
		assert.Equal(t, "https://auth.example.com", metadata.Issuer)
	})
	t.Run("protected resource metadata", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		ProtectedResourceMetadataHandler(ResourceConfig{
			ResourceURL:          "https://mcp.example.com",
			AuthorizationServers: []string{"https://auth.example.com"},
		})(recorder, httptest.NewRequest("GET", "/.well-known/oauth-protected-resource", nil))
		assert.Equal(t, 200, recorder.Code)

		var metadata ProtectedResourceMetadata
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &metadata))
		assert.Equal(t, "https://mcp.example.com", metadata.Resource)
	})
}

func TestCreate401Response(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		Create401Response(recorder, "https://mcp.example.com/meta", "", "")
		assert.Equal(t, 401, recorder.Code)
		header := recorder.Header().Get("WWW-Authenticate")
		assert.Contains(t, header, `error="unauthorized"`)
		assert.Contains(t, header, `error_description="Authorization required"`)
		assert.Contains(t, header, `resource_metadata="https://mcp.example.com/meta"`)

		var body map[string]string
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, "unauthorized", body["error"])
	})
	t.Run("explicit error", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		Create401Response(recorder, "https://mcp.example.com/meta", "invalid_token", "token expired")
		assert.Contains(t, recorder.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	})
}

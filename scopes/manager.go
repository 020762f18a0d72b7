package scopes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcpref/mcpserver/protocol"
)

// defaultMethodScopes maps protocol methods to the scopes they require.
// Methods without an entry require no scopes.
var defaultMethodScopes = map[string][]string{
	protocol.MethodToolsList:          {"mcp:read"},
	protocol.MethodToolsCall:          {"mcp:write"},
	"resources/list":                  {"mcp:read"},
	"resources/read":                  {"mcp:read"},
	"prompts/list":                    {"mcp:read"},
	"prompts/get":                     {"mcp:read"},
	protocol.MethodCompletionComplete: {"mcp:read"},
	protocol.MethodLoggingSetLevel:    {"mcp:write"},
	protocol.MethodServerShutdown:     {"mcp:admin"},
}

// InsufficientScopeError reports a failed scope check.
type InsufficientScopeError struct {
	Required            []string
	Actual              []string
	Message             string
	resourceMetadataURL string
}

func (e *InsufficientScopeError) Error() string {
	return e.Message
}

// WWWAuthenticate builds the RFC 6750 challenge header value for this error.
func (e *InsufficientScopeError) WWWAuthenticate() string {
	header := "Bearer"
	if e.resourceMetadataURL != "" {
		header += fmt.Sprintf(" resource_metadata=%q,", e.resourceMetadataURL)
	}
	header += fmt.Sprintf(" error=%q, scope=%q", "insufficient_scope", ScopesToString(e.Required))
	return header
}

// Build403Response writes the full challenge response. When no resource
// metadata URL is configured the challenge simply omits the
// resource_metadata parameter.
func (e *InsufficientScopeError) Build403Response(rw http.ResponseWriter) error {
	rw.Header().Set("WWW-Authenticate", e.WWWAuthenticate())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusForbidden)
	return json.NewEncoder(rw).Encode(map[string]string{
		"error":             "insufficient_scope",
		"error_description": e.Message,
		"required_scope":    ScopesToString(e.Required),
	})
}

// Options configure a Manager.
type Options struct {
	MethodScopes        map[string][]string
	RequireToolScope    bool
	ResourceMetadataURL string
}

// Option mutates Options.
type Option func(o *Options)

// WithMethodScopes overrides the required scopes for individual methods while
// preserving the defaults for the rest.
func WithMethodScopes(overrides map[string][]string) Option {
	return func(o *Options) {
		for method, required := range overrides {
			o.MethodScopes[method] = required
		}
	}
}

// WithRequireToolScope toggles the per-tool scope requirement on tools/call.
func WithRequireToolScope(require bool) Option {
	return func(o *Options) {
		o.RequireToolScope = require
	}
}

// WithResourceMetadataURL sets the RFC 9728 metadata URL advertised in
// challenge headers.
func WithResourceMetadataURL(url string) Option {
	return func(o *Options) {
		o.ResourceMetadataURL = url
	}
}

// Manager enforces per-method scope policy.
type Manager struct {
	options Options
}

// NewManager creates a Manager with the default method policy and the
// per-tool scope requirement enabled.
func NewManager(options ...Option) *Manager {
	opts := Options{
		MethodScopes:     map[string][]string{},
		RequireToolScope: true,
	}
	for method, required := range defaultMethodScopes {
		opts.MethodScopes[method] = required
	}
	for _, option := range options {
		option(&opts)
	}
	return &Manager{options: opts}
}

// RequiredScopes returns the scopes a method call needs. For tools/call the
// set includes the tool-specific scope when a tool name is supplied and the
// per-tool requirement is enabled.
func (m *Manager) RequiredScopes(method, toolName string) []string {
	required := append([]string(nil), m.options.MethodScopes[method]...)
	if method == protocol.MethodToolsCall && toolName != "" && m.options.RequireToolScope {
		required = append(required, "tool:"+toolName)
	}
	return required
}

// ValidateMethodAccess checks the granted scopes against the method policy.
// A nil return means access is allowed.
func (m *Manager) ValidateMethodAccess(granted []string, method, toolName string) *InsufficientScopeError {
	required := m.RequiredScopes(method, toolName)
	if len(required) == 0 {
		return nil
	}
	result := CheckScopes(granted, required)
	if result.Allowed {
		return nil
	}
	return &InsufficientScopeError{
		Required:            result.Missing,
		Actual:              granted,
		Message:             result.Message,
		resourceMetadataURL: m.options.ResourceMetadataURL,
	}
}

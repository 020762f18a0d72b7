package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/discovery"
	"github.com/mcpref/mcpserver/scopes"
)

// clockSkew is tolerated when checking token expiry.
const clockSkew = 60 * time.Second

type contextKey string

// authInfoKey stores AuthInfo in the request context.
const authInfoKey = contextKey("auth-info")

// AuthInfo is the token identity attached to authenticated requests.
type AuthInfo struct {
	Subject   string
	ExpiresAt time.Time
	Scopes    []string
	Token     string
}

// AuthInfoFrom returns the AuthInfo attached to the context, if any.
func AuthInfoFrom(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey).(*AuthInfo)
	return info, ok
}

// Options configure the bearer auth middleware.
type Options struct {
	ResourceMetadataURL  string
	SkipPaths            []string
	AllowUnauthenticated bool
	Logger               zerolog.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithResourceMetadataURL sets the metadata URL advertised in 401 challenges.
func WithResourceMetadataURL(url string) Option {
	return func(o *Options) { o.ResourceMetadataURL = url }
}

// WithSkipPaths lists request paths that bypass authentication entirely.
func WithSkipPaths(paths ...string) Option {
	return func(o *Options) { o.SkipPaths = paths }
}

// WithAllowUnauthenticated passes requests without a bearer token through
// instead of rejecting them. Malformed or expired tokens are still rejected.
func WithAllowUnauthenticated(allow bool) Option {
	return func(o *Options) { o.AllowUnauthenticated = allow }
}

// WithLogger sets the middleware logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// BearerAuth extracts and structurally validates bearer tokens, attaching
// AuthInfo to the request context. Signature verification is a separate
// concern handled upstream by the token issuer's verifier when configured.
func BearerAuth(options ...Option) func(http.Handler) http.Handler {
	opts := Options{Logger: zerolog.Nop()}
	for _, option := range options {
		option(&opts)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			for _, path := range opts.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(rw, r)
					return
				}
			}
			header := r.Header.Get("Authorization")
			if header == "" {
				if opts.AllowUnauthenticated {
					next.ServeHTTP(rw, r)
					return
				}
				discovery.Create401Response(rw, opts.ResourceMetadataURL, "", "")
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				discovery.Create401Response(rw, opts.ResourceMetadataURL,
					"invalid_request", "Authorization header must use the Bearer scheme")
				return
			}
			info, err := decodeToken(token)
			if err != "" {
				opts.Logger.Debug().Str("reason", err).Msg("bearer token rejected")
				discovery.Create401Response(rw, opts.ResourceMetadataURL, "invalid_token", err)
				return
			}
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), authInfoKey, info)))
		})
	}
}

// decodeToken structurally decodes a JWT payload and enforces expiry with
// skew tolerance. Returns a rejection reason on failure.
func decodeToken(token string) (*AuthInfo, string) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, "token is not a well-formed JWT"
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, "token payload is not valid base64url"
	}
	var claims struct {
		Subject string  `json:"sub"`
		Expires float64 `json:"exp"`
		Scope   string  `json:"scope"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, "token payload is not valid JSON"
	}
	info := &AuthInfo{
		Subject: claims.Subject,
		Scopes:  scopes.ParseScopes(claims.Scope),
		Token:   token,
	}
	if claims.Expires > 0 {
		info.ExpiresAt = time.Unix(int64(claims.Expires), 0)
		if time.Now().After(info.ExpiresAt.Add(clockSkew)) {
			return nil, "token has expired"
		}
	}
	return info, ""
}

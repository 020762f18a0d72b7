package streamhttp

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/scopes"
	"github.com/mcpref/mcpserver/session"
	"github.com/mcpref/mcpserver/sse"
)

// Options exposes configurable attributes of the handler.
type Options struct {
	// URI of the endpoint.
	URI string

	// MaxBodyBytes caps the accepted POST body size.
	MaxBodyBytes int64

	// AllowedOrigins restricts browser origins. Empty or containing "*"
	// allows any origin.
	AllowedOrigins []string

	// Stateless disables sessions: every request runs against an ephemeral
	// ready session and SSE is refused.
	Stateless bool

	// KeepAliveInterval and BufferSize tune the SSE manager built by New
	// when none is supplied.
	KeepAliveInterval time.Duration
	BufferSize        int

	// Sessions and Streams override the managers built by New.
	Sessions *session.Manager
	Streams  *sse.Manager

	// Scopes, when set, gates dispatch on the bearer token scopes attached
	// by the auth middleware.
	Scopes *scopes.Manager

	Logger zerolog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithURI sets a custom endpoint path.
func WithURI(uri string) Option {
	return func(o *Options) { o.URI = uri }
}

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(limit int64) Option {
	return func(o *Options) { o.MaxBodyBytes = limit }
}

// WithAllowedOrigins sets the Origin allow list.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) { o.AllowedOrigins = origins }
}

// WithStateless switches the handler to stateless mode.
func WithStateless(stateless bool) Option {
	return func(o *Options) { o.Stateless = stateless }
}

// WithKeepAliveInterval sets the SSE keep-alive cadence. A negative value
// disables keep-alives; zero keeps the SSE manager default.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(o *Options) { o.KeepAliveInterval = interval }
}

// WithBufferSize sets the SSE replay buffer size per session.
func WithBufferSize(size int) Option {
	return func(o *Options) { o.BufferSize = size }
}

// WithSessionManager installs a custom session manager.
func WithSessionManager(sessions *session.Manager) Option {
	return func(o *Options) { o.Sessions = sessions }
}

// WithSSEManager installs a custom SSE manager.
func WithSSEManager(streams *sse.Manager) Option {
	return func(o *Options) { o.Streams = streams }
}

// WithScopes enables scope enforcement for dispatched methods.
func WithScopes(manager *scopes.Manager) Option {
	return func(o *Options) { o.Scopes = manager }
}

// WithLogger sets the handler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

package protocol

import (
	"encoding/json"
	"sync/atomic"

	"github.com/mcpref/mcpserver/jsonrpc"
)

// State is the lifecycle state of a protocol session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
)

// String returns the wire-visible name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session is the lifecycle view of a protocol session. The session package
// provides the canonical implementation; the lifecycle manager never holds
// sessions itself.
type Session interface {
	State() State
	SetState(state State)
	SetClient(info Implementation, capabilities Capabilities)
}

// Lifecycle drives the initialization handshake and gates dispatch on the
// session state. All methods are non-blocking and perform no I/O.
type Lifecycle struct {
	serverInfo   Implementation
	capabilities Capabilities
	instructions string
	version      string
	shuttingDown atomic.Bool
}

// Option mutates a Lifecycle during construction.
type Option func(l *Lifecycle)

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(instructions string) Option {
	return func(l *Lifecycle) {
		l.instructions = instructions
	}
}

// WithProtocolVersion overrides the supported protocol version.
func WithProtocolVersion(version string) Option {
	return func(l *Lifecycle) {
		l.version = version
	}
}

// New creates a Lifecycle advertising the supplied server identity and
// capabilities.
func New(serverInfo Implementation, capabilities Capabilities, options ...Option) *Lifecycle {
	ret := &Lifecycle{
		serverInfo:   serverInfo,
		capabilities: capabilities,
		version:      Version,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ServerInfo returns the advertised server identity.
func (l *Lifecycle) ServerInfo() Implementation {
	return l.serverInfo
}

// Capabilities returns the advertised server capabilities.
func (l *Lifecycle) Capabilities() Capabilities {
	return l.capabilities
}

// ProtocolVersion returns the supported protocol version.
func (l *Lifecycle) ProtocolVersion() string {
	return l.version
}

// HandleInitialize validates the initialize request and transitions the
// session from uninitialized to initializing.
func (l *Lifecycle) HandleInitialize(session Session, params json.RawMessage) (*InitializeResult, *jsonrpc.Error) {
	if l.shuttingDown.Load() || session.State() == StateShuttingDown {
		return nil, jsonrpc.NewInvalidRequest("server is shutting down", nil)
	}
	if session.State() != StateUninitialized {
		return nil, jsonrpc.NewInvalidRequest("server already initialized", nil)
	}
	parsed := &InitializeParams{}
	if len(params) == 0 {
		return nil, jsonrpc.NewInvalidParamsError("initialize params are required", nil)
	}
	if err := json.Unmarshal(params, parsed); err != nil {
		return nil, jsonrpc.NewInvalidParamsError("failed to parse initialize params: "+err.Error(), nil)
	}
	if parsed.ClientInfo == nil || parsed.ClientInfo.Name == "" || parsed.ClientInfo.Version == "" {
		return nil, jsonrpc.NewInvalidParamsError("clientInfo with name and version is required", nil)
	}
	if parsed.ProtocolVersion != l.version {
		return nil, jsonrpc.NewInvalidRequest("unsupported protocol version", map[string]interface{}{
			"supported": []string{l.version},
			"received":  parsed.ProtocolVersion,
		})
	}
	session.SetClient(*parsed.ClientInfo, parsed.Capabilities)
	session.SetState(StateInitializing)
	return &InitializeResult{
		ProtocolVersion: l.version,
		Capabilities:    l.capabilities,
		ServerInfo:      l.serverInfo,
		Instructions:    l.instructions,
	}, nil
}

// HandleInitialized transitions the session from initializing to ready.
func (l *Lifecycle) HandleInitialized(session Session) *jsonrpc.Error {
	if session.State() != StateInitializing {
		return jsonrpc.NewInvalidRequest("initialized notification is only valid while initializing", nil)
	}
	session.SetState(StateReady)
	return nil
}

// CheckPreInitialization returns an error when the method is not admissible in
// the session's current state, nil otherwise.
func (l *Lifecycle) CheckPreInitialization(session Session, method string) *jsonrpc.Error {
	if l.shuttingDown.Load() {
		return jsonrpc.NewInvalidRequest("server is shutting down", nil)
	}
	switch session.State() {
	case StateUninitialized:
		if method != MethodInitialize {
			return jsonrpc.NewInvalidRequest("server not initialized: call initialize first", nil)
		}
	case StateInitializing:
		if method != NotificationInitialized {
			return jsonrpc.NewInvalidRequest("server not initialized: initialization handshake in progress", nil)
		}
	case StateReady:
		return nil
	case StateShuttingDown:
		return jsonrpc.NewInvalidRequest("server is shutting down", nil)
	}
	return nil
}

// Reset restores the session to the uninitialized state and clears captured
// client details.
func (l *Lifecycle) Reset(session Session) {
	session.SetClient(Implementation{}, nil)
	session.SetState(StateUninitialized)
}

// InitiateShutdown marks the server as shutting down. It is idempotent and
// returns true on the first call only.
func (l *Lifecycle) InitiateShutdown() bool {
	return l.shuttingDown.CompareAndSwap(false, true)
}

// IsShuttingDown reports whether shutdown has been initiated.
func (l *Lifecycle) IsShuttingDown() bool {
	return l.shuttingDown.Load()
}

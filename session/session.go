package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/mcpref/mcpserver/protocol"
)

// StatelessID is the pseudo identifier used when the transport runs without
// session tracking.
const StatelessID = "stateless"

// Session tracks a single client connection across requests.
type Session struct {
	mux                sync.RWMutex
	id                 string
	state              protocol.State
	createdAt          time.Time
	lastActive         time.Time
	clientInfo         protocol.Implementation
	clientCapabilities protocol.Capabilities
}

// NewID returns a 256-bit random identifier encoded as unpadded base64url.
func NewID() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("session: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// New creates a session with a fresh identifier.
func New() *Session {
	now := time.Now()
	return &Session{id: NewID(), createdAt: now, lastActive: now}
}

// NewStateless returns the pseudo-session used in stateless mode. It is
// permanently ready so dispatch never gates on the handshake.
func NewStateless() *Session {
	now := time.Now()
	return &Session{id: StatelessID, state: protocol.StateReady, createdAt: now, lastActive: now}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() protocol.State {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.state
}

// SetState updates the lifecycle state.
func (s *Session) SetState(state protocol.State) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.state = state
}

// SetClient records the client identity and capabilities captured during the
// initialize handshake.
func (s *Session) SetClient(info protocol.Implementation, capabilities protocol.Capabilities) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.clientInfo = info
	s.clientCapabilities = capabilities
}

// ClientInfo returns the client identity declared during initialize.
func (s *Session) ClientInfo() protocol.Implementation {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.clientInfo
}

// ClientCapabilities returns the client capabilities declared during initialize.
func (s *Session) ClientCapabilities() protocol.Capabilities {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.clientCapabilities
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActive returns the time of the most recent request on this session.
func (s *Session) LastActive() time.Time {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.lastActive
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.lastActive = time.Now()
}

// record is the serializable form of a session used by durable stores.
type record struct {
	ID                 string                  `json:"id"`
	State              protocol.State          `json:"state"`
	CreatedAt          time.Time               `json:"createdAt"`
	LastActive         time.Time               `json:"lastActive"`
	ClientInfo         protocol.Implementation `json:"clientInfo"`
	ClientCapabilities protocol.Capabilities   `json:"clientCapabilities,omitempty"`
}

func (s *Session) snapshot() *record {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return &record{
		ID:                 s.id,
		State:              s.state,
		CreatedAt:          s.createdAt,
		LastActive:         s.lastActive,
		ClientInfo:         s.clientInfo,
		ClientCapabilities: s.clientCapabilities,
	}
}

func (r *record) session() *Session {
	return &Session{
		id:                 r.ID,
		state:              r.State,
		createdAt:          r.CreatedAt,
		lastActive:         r.LastActive,
		clientInfo:         r.ClientInfo,
		clientCapabilities: r.ClientCapabilities,
	}
}

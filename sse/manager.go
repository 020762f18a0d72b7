package sse

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configure a Manager.
type Options struct {
	BufferSize        int
	KeepAliveInterval time.Duration
	Logger            zerolog.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithBufferSize sets how many events per session are retained for replay.
func WithBufferSize(size int) Option {
	return func(o *Options) {
		o.BufferSize = size
	}
}

// WithKeepAliveInterval sets the keep-alive comment cadence. Zero disables
// keep-alives.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.KeepAliveInterval = interval
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

type entry struct {
	buffer *buffer
	stream *Stream
}

// Manager owns the per-session replay buffers and at most one live stream per
// session. Buffers survive stream replacement and are released when the
// session is dropped.
type Manager struct {
	mux     sync.Mutex
	entries map[string]*entry
	options Options
}

// NewManager creates a Manager with a 100-event replay buffer and 30 second
// keep-alives unless overridden.
func NewManager(options ...Option) *Manager {
	opts := Options{
		BufferSize:        100,
		KeepAliveInterval: 30 * time.Second,
		Logger:            zerolog.Nop(),
	}
	for _, option := range options {
		option(&opts)
	}
	return &Manager{entries: map[string]*entry{}, options: opts}
}

// CreateStream opens a fresh stream for the session, closing any prior one.
// The session's replay buffer is reused so earlier events remain replayable.
func (m *Manager) CreateStream(rw http.ResponseWriter, sessionID string) *Stream {
	m.mux.Lock()
	ent, ok := m.entries[sessionID]
	if !ok {
		ent = &entry{buffer: newBuffer(m.options.BufferSize)}
		m.entries[sessionID] = ent
	}
	prior := ent.stream
	stream := newStream(sessionID, ent.buffer, rw, m.options.KeepAliveInterval)
	ent.stream = stream
	m.mux.Unlock()

	if prior != nil {
		prior.Close()
		m.options.Logger.Debug().Str("session", sessionID).Msg("replaced sse stream")
	}
	return stream
}

// HandleReconnect opens a stream and replays buffered events newer than the
// supplied Last-Event-Id. An id that is malformed, belongs to another session
// or references an evicted sequence attaches silently without replay.
func (m *Manager) HandleReconnect(rw http.ResponseWriter, sessionID, lastEventID string) *Stream {
	stream := m.CreateStream(rw, sessionID)

	eventSession, seq, ok := ParseEventID(lastEventID)
	if !ok || eventSession != sessionID {
		return stream
	}
	m.mux.Lock()
	ent := m.entries[sessionID]
	m.mux.Unlock()
	if ent == nil || seq > ent.buffer.lastSeq() {
		return stream
	}
	for _, event := range ent.buffer.since(seq) {
		if err := stream.ReplayEvent(event); err != nil {
			m.options.Logger.Warn().Err(err).Str("session", sessionID).Msg("sse replay failed")
			break
		}
	}
	return stream
}

// SendEvent delivers data on the session's live stream, recording it for
// replay. It reports false when the session has no active stream.
func (m *Manager) SendEvent(sessionID string, data []byte) bool {
	return m.SendEventWithType(sessionID, "", data)
}

// SendEventWithType delivers a typed event on the session's live stream.
func (m *Manager) SendEventWithType(sessionID, eventType string, data []byte) bool {
	m.mux.Lock()
	ent := m.entries[sessionID]
	var stream *Stream
	if ent != nil {
		stream = ent.stream
	}
	m.mux.Unlock()
	if stream == nil || !stream.Active() {
		return false
	}
	if err := stream.SendWithType(eventType, data); err != nil {
		m.options.Logger.Warn().Err(err).Str("session", sessionID).Msg("sse send failed")
		stream.Close()
		return false
	}
	return true
}

// HasStream reports whether the session has an active stream.
func (m *Manager) HasStream(sessionID string) bool {
	m.mux.Lock()
	ent := m.entries[sessionID]
	m.mux.Unlock()
	return ent != nil && ent.stream != nil && ent.stream.Active()
}

// CloseStream closes the session's live stream, keeping the replay buffer.
func (m *Manager) CloseStream(sessionID string) {
	m.mux.Lock()
	ent := m.entries[sessionID]
	var stream *Stream
	if ent != nil {
		stream = ent.stream
		ent.stream = nil
	}
	m.mux.Unlock()
	if stream != nil {
		stream.Close()
	}
}

// ReleaseStream closes the given stream only while it is still the session's
// current one, keeping the replay buffer. A stream already replaced by a
// reconnect is left untouched so the replacement keeps running.
func (m *Manager) ReleaseStream(sessionID string, stream *Stream) {
	m.mux.Lock()
	ent := m.entries[sessionID]
	current := ent != nil && ent.stream == stream
	if current {
		ent.stream = nil
	}
	m.mux.Unlock()
	if current {
		stream.Close()
	}
}

// DropSession closes the session's stream and discards its replay buffer.
func (m *Manager) DropSession(sessionID string) {
	m.mux.Lock()
	ent := m.entries[sessionID]
	delete(m.entries, sessionID)
	m.mux.Unlock()
	if ent != nil && ent.stream != nil {
		ent.stream.Close()
	}
}

package sse

import (
	"net/http"
	"sync"
	"time"
)

// Stream is one live SSE connection bound to a session. Events written
// through it are recorded in the session's replay buffer.
type Stream struct {
	mux       sync.Mutex
	sessionID string
	buffer    *buffer
	writer    *FlushWriter
	done      chan struct{}
	closed    bool
}

func newStream(sessionID string, buf *buffer, rw http.ResponseWriter, keepAliveInterval time.Duration) *Stream {
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)

	ret := &Stream{
		sessionID: sessionID,
		buffer:    buf,
		writer:    NewFlushWriter(rw),
		done:      make(chan struct{}),
	}
	if keepAliveInterval > 0 {
		go ret.keepAliveLoop(keepAliveInterval)
	}
	return ret
}

// SessionID returns the owning session id.
func (s *Stream) SessionID() string {
	return s.sessionID
}

// Send writes a plain event and records it for replay.
func (s *Stream) Send(data []byte) error {
	return s.SendWithType("", data)
}

// SendWithType writes an event of the given type and records it for replay.
func (s *Stream) SendWithType(eventType string, data []byte) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return http.ErrBodyNotAllowed
	}
	event := s.buffer.append(eventType, data)
	_, err := s.writer.Write(frame(event.ID(s.sessionID), event.Type, event.Data))
	return err
}

// ReplayEvent rewrites a buffered event with its original id, without
// advancing the sequence.
func (s *Stream) ReplayEvent(event Event) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return http.ErrBodyNotAllowed
	}
	_, err := s.writer.Write(frame(event.ID(s.sessionID), event.Type, event.Data))
	return err
}

// Done is closed when the stream is no longer usable.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close marks the stream closed and releases the connection handler.
func (s *Stream) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Active reports whether the stream can still accept events.
func (s *Stream) Active() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return !s.closed
}

func (s *Stream) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mux.Lock()
			if s.closed {
				s.mux.Unlock()
				return
			}
			_, err := s.writer.Write(keepAlive)
			s.mux.Unlock()
			if err != nil {
				s.Close()
				return
			}
		}
	}
}

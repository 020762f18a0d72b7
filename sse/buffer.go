package sse

import (
	"strconv"
	"strings"
	"sync"
)

// Event is a single server-sent event retained for replay.
type Event struct {
	Seq  uint64
	Type string
	Data []byte
}

// ID formats the wire event id for a session.
func (e *Event) ID(sessionID string) string {
	return sessionID + ":" + strconv.FormatUint(e.Seq, 10)
}

// ParseEventID splits a wire event id into session id and sequence number.
// Session ids may themselves contain colons, so the sequence is everything
// after the final colon.
func ParseEventID(id string) (string, uint64, bool) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return id[:idx], seq, true
}

// buffer retains the most recent events of one session. It outlives individual
// streams and is discarded only when the session is destroyed.
type buffer struct {
	mux    sync.Mutex
	seq    uint64
	events []Event
	size   int
}

func newBuffer(size int) *buffer {
	if size <= 0 {
		size = 100
	}
	return &buffer{size: size}
}

// append assigns the next sequence number, records the event and returns it.
func (b *buffer) append(eventType string, data []byte) Event {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.seq++
	event := Event{Seq: b.seq, Type: eventType, Data: data}
	b.events = append(b.events, event)
	if len(b.events) > b.size {
		b.events = b.events[len(b.events)-b.size:]
	}
	return event
}

// since returns a copy of all retained events with a sequence greater than n.
func (b *buffer) since(n uint64) []Event {
	b.mux.Lock()
	defer b.mux.Unlock()
	var ret []Event
	for _, event := range b.events {
		if event.Seq > n {
			ret = append(ret, event)
		}
	}
	return ret
}

// lastSeq returns the most recently assigned sequence number.
func (b *buffer) lastSeq() uint64 {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.seq
}

package sse

import (
	"fmt"
	"net/http"
	"strings"
)

// FlushWriter wraps http.ResponseWriter and flushes every write so events are
// pushed to the client immediately.
type FlushWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func (w *FlushWriter) Write(p []byte) (int, error) {
	if w.flusher == nil {
		return 0, fmt.Errorf("streaming not supported: %T does not support flushing", w.writer)
	}
	n, err := w.writer.Write(p)
	if err == nil {
		w.flusher.Flush()
	}
	return n, err
}

// NewFlushWriter constructs a FlushWriter backed by the given ResponseWriter.
func NewFlushWriter(rw http.ResponseWriter) *FlushWriter {
	flusher, _ := rw.(http.Flusher)
	return &FlushWriter{writer: rw, flusher: flusher}
}

// frame formats a single SSE event. The event line is emitted only for typed
// events; plain messages rely on the protocol default.
func frame(id, event string, data []byte) []byte {
	if event != "" {
		return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", id, event, strings.TrimSpace(string(data))))
	}
	return []byte(fmt.Sprintf("id: %s\ndata: %s\n\n", id, strings.TrimSpace(string(data))))
}

// keepAlive is the comment frame sent on idle streams.
var keepAlive = []byte(": keep-alive\n\n")

package streamhttp

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/dispatch"
	"github.com/mcpref/mcpserver/jsonrpc"
	"github.com/mcpref/mcpserver/middleware"
	"github.com/mcpref/mcpserver/protocol"
	"github.com/mcpref/mcpserver/session"
	"github.com/mcpref/mcpserver/sse"
)

const (
	defaultURI          = "/mcp"
	defaultMaxBodyBytes = 100 * 1024
	sessionHeader       = "Mcp-Session-Id"
	versionHeader       = "MCP-Protocol-Version"
	sseMime             = "text/event-stream"
)

// Handler implements the server side of the streamable HTTP transport. A
// single endpoint carries the handshake, message exchange (POST), streaming
// (GET) and session termination (DELETE).
type Handler struct {
	Options
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	streams    *sse.Manager
}

// New constructs a Handler with default settings and the provided options.
func New(dispatcher *dispatch.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		Options: Options{
			URI:          defaultURI,
			MaxBodyBytes: defaultMaxBodyBytes,
			Logger:       zerolog.Nop(),
		},
	}
	for _, o := range opts {
		o(&h.Options)
	}
	h.dispatcher = dispatcher
	h.sessions = h.Options.Sessions
	if h.sessions == nil {
		h.sessions = session.NewManager(session.WithLogger(h.Logger))
	}
	h.streams = h.Options.Streams
	if h.streams == nil {
		streamOpts := []sse.Option{sse.WithLogger(h.Logger)}
		if h.Options.BufferSize > 0 {
			streamOpts = append(streamOpts, sse.WithBufferSize(h.Options.BufferSize))
		}
		if h.Options.KeepAliveInterval != 0 {
			interval := h.Options.KeepAliveInterval
			if interval < 0 {
				interval = 0
			}
			streamOpts = append(streamOpts, sse.WithKeepAliveInterval(interval))
		}
		h.streams = sse.NewManager(streamOpts...)
	}
	return h
}

// Sessions returns the session manager so embedders can inspect or destroy
// sessions out of band.
func (h *Handler) Sessions() *session.Manager {
	return h.sessions
}

// Streams returns the SSE manager used to push server-initiated messages.
func (h *Handler) Streams() *sse.Manager {
	return h.streams
}

// ServeHTTP implements http.Handler.
// POST – JSON-RPC inbound; initialize creates a session returned via header.
// GET – opens the long-lived SSE connection, resumable via Last-Event-Id.
// DELETE – terminates the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.URI != "" && !strings.HasSuffix(r.URL.Path, h.URI) {
		http.NotFound(w, r)
		return
	}
	if !originAllowed(h.AllowedOrigins, r.Header.Get("Origin")) {
		writeJSONError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		h.handleOPTIONS(w, r)
		return
	}
	if version := r.Header.Get(versionHeader); version != "" && version != protocol.Version {
		writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported %s header: %s", versionHeader, version))
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.handlePOST(w, r)
	case http.MethodGet:
		h.handleGET(w, r)
	case http.MethodDelete:
		h.handleDELETE(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handlePOST(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	_ = r.Body.Close()

	message, parseFailure := jsonrpc.ParseMessage(data)
	if parseFailure != nil {
		// client replies to server-initiated requests are accepted without a body
		if jsonrpc.DetectType(data) == jsonrpc.MessageTypeResponse {
			if _, err := jsonrpc.ParseResponse(data); err == nil {
				w.WriteHeader(http.StatusAccepted)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		body, _ := json.Marshal(parseFailure)
		_, _ = w.Write(body)
		return
	}
	if h.dispatcher == nil {
		writeJSONError(w, http.StatusInternalServerError, "no dispatcher configured")
		return
	}

	if h.Stateless {
		h.dispatchMessage(w, r, session.NewStateless(), message, false)
		return
	}
	if message.Method() == protocol.MethodInitialize {
		sess, err := h.sessions.Create(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		h.dispatchMessage(w, r, sess, message, true)
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", sessionHeader))
		return
	}
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
		return
	}
	_ = h.sessions.Touch(r.Context(), sess)
	if h.rejectInsufficientScope(w, r, message) {
		return
	}
	h.dispatchMessage(w, r, sess, message, false)
}

// rejectInsufficientScope enforces method-level scopes against the bearer
// token attached by the auth middleware. It reports true when the request was
// terminated with a 403.
func (h *Handler) rejectInsufficientScope(w http.ResponseWriter, r *http.Request, message *jsonrpc.Message) bool {
	if h.Scopes == nil {
		return false
	}
	info, ok := middleware.AuthInfoFrom(r.Context())
	if !ok {
		return false
	}
	if scopeErr := h.Scopes.ValidateMethodAccess(info.Scopes, message.Method(), ""); scopeErr != nil {
		h.Logger.Debug().Str("method", message.Method()).
			Str("subject", info.Subject).Msg("insufficient scope")
		_ = scopeErr.Build403Response(w)
		return true
	}
	return false
}

func (h *Handler) dispatchMessage(w http.ResponseWriter, r *http.Request, sess *session.Session, message *jsonrpc.Message, issueSessionHeader bool) {
	response := h.dispatcher.HandleMessage(r.Context(), sess, message)
	if issueSessionHeader {
		if response != nil && response.Error == nil {
			w.Header().Set(sessionHeader, sess.ID())
			_ = h.sessions.Update(r.Context(), sess)
		} else {
			h.sessions.Destroy(r.Context(), sess.ID())
		}
	} else if !h.Stateless {
		// notifications advance lifecycle state too, so persist before replying
		_ = h.sessions.Update(r.Context(), sess)
	}
	if message.Type != jsonrpc.MessageTypeRequest || response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to serialize response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleGET(w http.ResponseWriter, r *http.Request) {
	if h.Stateless {
		writeJSONError(w, http.StatusNotAcceptable, "SSE is not available in stateless mode")
		return
	}
	if !acceptsSSE(r.Header) {
		writeJSONError(w, http.StatusNotAcceptable, fmt.Sprintf("Accept header must include %s", sseMime))
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", sessionHeader))
		return
	}
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
		return
	}

	var stream *sse.Stream
	if lastEventID := r.Header.Get("Last-Event-Id"); lastEventID != "" {
		stream = h.streams.HandleReconnect(w, sessionID, lastEventID)
	} else {
		stream = h.streams.CreateStream(w, sessionID)
	}

	select {
	case <-r.Context().Done():
		// only tear down the stream this request owns; a reconnect may have
		// already attached a replacement
		h.streams.ReleaseStream(sessionID, stream)
	case <-stream.Done():
	}
}

func (h *Handler) handleDELETE(w http.ResponseWriter, r *http.Request) {
	if h.Stateless {
		writeJSONError(w, http.StatusBadRequest, "sessions are not used in stateless mode")
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", sessionHeader))
		return
	}
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
		return
	}
	h.sessions.Destroy(r.Context(), sessionID)
	h.streams.DropSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOPTIONS(w http.ResponseWriter, r *http.Request) {
	if reqMethod := r.Header.Get("Access-Control-Request-Method"); reqMethod != "" {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	}
	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Expose-Headers", sessionHeader)
}

func acceptsSSE(header http.Header) bool {
	for _, value := range header.Values("Accept") {
		if strings.Contains(value, sseMime) {
			return true
		}
	}
	return false
}

// isJSONContentType accepts application/json and any +json media subtype.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"error": message})
	_, _ = w.Write(body)
}

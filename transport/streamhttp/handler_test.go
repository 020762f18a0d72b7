package streamhttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpref/mcpserver/dispatch"
	"github.com/mcpref/mcpserver/middleware"
	"github.com/mcpref/mcpserver/protocol"
	"github.com/mcpref/mcpserver/scopes"
	"github.com/mcpref/mcpserver/session"
	"github.com/mcpref/mcpserver/sse"
)

func newTestHandler(t *testing.T, options ...Option) *Handler {
	t.Helper()
	lifecycle := protocol.New(
		protocol.Implementation{Name: "mcp-reference-server", Version: "1.0.0"},
		protocol.Capabilities{
			"tools":       map[string]interface{}{"listChanged": true},
			"logging":     map[string]interface{}{},
			"completions": map[string]interface{}{},
		},
	)
	registry := dispatch.NewRegistry()
	registry.Register(dispatch.EchoTool())
	dispatcher := dispatch.NewDispatcher(lifecycle, registry)
	options = append([]Option{WithSSEManager(sse.NewManager(sse.WithKeepAliveInterval(0)))}, options...)
	handler := New(dispatcher, options...)
	t.Cleanup(func() { handler.Sessions().Close() })
	return handler
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{"roots":{"listChanged":true}},"clientInfo":{"name":"t","version":"1"}}}`

func postJSON(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

// initializeSession performs the full handshake and returns the session id.
func initializeSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	recorder := postJSON(handler, initializeBody, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	sessionID := recorder.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	recorder = postJSON(handler, `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	require.Equal(t, http.StatusAccepted, recorder.Code)
	return sessionID
}

func TestHandler_InitializeHandshake(t *testing.T) {
	handler := newTestHandler(t)

	recorder := postJSON(handler, initializeBody, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("Mcp-Session-Id"))

	var parsed struct {
		Result struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
			Capabilities struct {
				Tools struct {
					ListChanged bool `json:"listChanged"`
				} `json:"tools"`
			} `json:"capabilities"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &parsed))
	assert.Equal(t, "2025-11-25", parsed.Result.ProtocolVersion)
	assert.Equal(t, "mcp-reference-server", parsed.Result.ServerInfo.Name)
	assert.True(t, parsed.Result.Capabilities.Tools.ListChanged)
}

func TestHandler_InitializeVersionMismatch(t *testing.T) {
	handler := newTestHandler(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-01-01","clientInfo":{"name":"t","version":"1"}}}`
	recorder := postJSON(handler, body, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	// failed handshake issues no session
	assert.Empty(t, recorder.Header().Get("Mcp-Session-Id"))
	assert.Contains(t, recorder.Body.String(), `-32600`)
	assert.Equal(t, 0, handler.Sessions().Count(context.Background()))
}

func TestHandler_PreInitRejection(t *testing.T) {
	handler := newTestHandler(t)
	sess, err := handler.Sessions().Create(context.Background())
	require.NoError(t, err)

	recorder := postJSON(handler, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sess.ID()})
	require.Equal(t, http.StatusOK, recorder.Code)

	var parsed struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &parsed))
	assert.Equal(t, -32600, parsed.Error.Code)
	assert.Contains(t, parsed.Error.Message, "not initialized")
}

func TestHandler_ToolsCall(t *testing.T) {
	handler := newTestHandler(t)
	sessionID := initializeSession(t, handler)

	recorder := postJSON(handler,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"text":"hi"`)
}

// The handshake must work against a store that round-trips session records
// instead of sharing pointers: the state change driven by
// notifications/initialized has to be persisted before the 202 goes out.
func TestHandler_RedisBackedSessions(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := session.NewManager(session.WithStore(session.NewRedisStore(client, "mcp:session:", time.Hour)))
	handler := newTestHandler(t, WithSessionManager(manager))

	sessionID := initializeSession(t, handler)

	recorder := postJSON(handler, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Contains(t, recorder.Body.String(), `"echo"`)
	assert.NotContains(t, recorder.Body.String(), `"error"`)
}

// Client replies to server-initiated requests carry no body of their own.
func TestHandler_ClientResponseAccepted(t *testing.T) {
	handler := newTestHandler(t)
	sessionID := initializeSession(t, handler)

	recorder := postJSON(handler, `{"jsonrpc":"2.0","id":9,"result":{}}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Empty(t, recorder.Body.String())
}

func TestHandler_HeaderValidation(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("wrong protocol version", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, map[string]string{"MCP-Protocol-Version": "2024-11-05"})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "MCP-Protocol-Version")
	})

	t.Run("matching protocol version", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, map[string]string{"MCP-Protocol-Version": "2025-11-25"})
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeBody))
		req.Header.Set("Content-Type", "text/plain")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, recorder.Code)
	})

	t.Run("json subtype accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeBody))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("missing session header", func(t *testing.T) {
		recorder := postJSON(handler, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Mcp-Session-Id")
	})

	t.Run("unknown session", func(t *testing.T) {
		recorder := postJSON(handler, `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			map[string]string{"Mcp-Session-Id": "nope"})
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestHandler_BodyLimits(t *testing.T) {
	handler := newTestHandler(t, WithMaxBodyBytes(64))

	recorder := postJSON(handler, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"filler":"`+strings.Repeat("x", 128)+`"}}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
}

func TestHandler_ParseFailure(t *testing.T) {
	handler := newTestHandler(t)

	recorder := postJSON(handler, `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "-32700")
}

func TestHandler_OriginPolicy(t *testing.T) {
	handler := newTestHandler(t, WithAllowedOrigins("https://app.example.com", "trusted.org"))

	t.Run("allowed origin", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, map[string]string{"Origin": "https://app.example.com"})
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, recorder.Header().Get("Access-Control-Expose-Headers"), "Mcp-Session-Id")
	})

	t.Run("subdomain of allowed registrable domain", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, map[string]string{"Origin": "https://deep.sub.trusted.org:8443"})
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("unknown origin refused", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, map[string]string{"Origin": "https://evil.test"})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("no origin header allowed", func(t *testing.T) {
		recorder := postJSON(handler, initializeBody, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, Mcp-Session-Id")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
		assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestHandler_Stateless(t *testing.T) {
	handler := newTestHandler(t, WithStateless(true))

	recorder := postJSON(handler, initializeBody, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	// no session is issued in stateless mode
	assert.Empty(t, recorder.Header().Get("Mcp-Session-Id"))

	// requests run against an ephemeral ready session, no header required
	recorder = postJSON(handler, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"echo"`)

	t.Run("sse refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Accept", "text/event-stream")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusNotAcceptable, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "stateless mode")
	})
}

func TestHandler_GETValidation(t *testing.T) {
	handler := newTestHandler(t)
	sessionID := initializeSession(t, handler)

	t.Run("missing accept header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusNotAcceptable, recorder.Code)
	})

	t.Run("missing session header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Accept", "text/event-stream")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Mcp-Session-Id", "nope")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestHandler_DeleteSession(t *testing.T) {
	handler := newTestHandler(t)
	sessionID := initializeSession(t, handler)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sessionID)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = postJSON(handler, `{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandler_NoDispatcher(t *testing.T) {
	handler := New(nil)
	t.Cleanup(func() { handler.Sessions().Close() })
	recorder := postJSON(handler, initializeBody, nil)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

// bearerToken builds a structurally valid JWT for the auth middleware, which
// decodes the payload without signature verification.
func bearerToken(t *testing.T, subject, scope string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]interface{}{
		"sub":   subject,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": scope,
	})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestHandler_InsufficientScope(t *testing.T) {
	metadataURL := "https://mcp.example.com/.well-known/oauth-protected-resource"
	handler := newTestHandler(t, WithScopes(scopes.NewManager(
		scopes.WithResourceMetadataURL(metadataURL),
	)))
	protected := middleware.BearerAuth()(handler)

	recorder := postJSON(handler, initializeBody, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	sessionID := recorder.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	recorder = postJSON(handler, `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	require.Equal(t, http.StatusAccepted, recorder.Code)

	token := bearerToken(t, "alice", "mcp:read")

	t.Run("read scope may list", func(t *testing.T) {
		recorder := postJSON(protected, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
			map[string]string{"Mcp-Session-Id": sessionID, "Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("read scope may not call", func(t *testing.T) {
		recorder := postJSON(protected,
			`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
			map[string]string{"Mcp-Session-Id": sessionID, "Authorization": "Bearer " + token})
		require.Equal(t, http.StatusForbidden, recorder.Code)

		challenge := recorder.Header().Get("WWW-Authenticate")
		assert.Contains(t, challenge, `error="insufficient_scope"`)
		assert.Contains(t, challenge, `scope="mcp:write"`)
		assert.Contains(t, challenge, metadataURL)

		var parsed struct {
			RequiredScope string `json:"required_scope"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &parsed))
		assert.Equal(t, "mcp:write", parsed.RequiredScope)
	})

	t.Run("write scope may call", func(t *testing.T) {
		writer := bearerToken(t, "bob", "mcp:write")
		recorder := postJSON(protected,
			`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
			map[string]string{"Mcp-Session-Id": sessionID, "Authorization": "Bearer " + writer})
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

// A scope manager without a resource metadata URL still terminates the
// request with a 403 challenge, minus the resource_metadata parameter.
func TestHandler_InsufficientScopeWithoutMetadataURL(t *testing.T) {
	handler := newTestHandler(t, WithScopes(scopes.NewManager()))
	protected := middleware.BearerAuth()(handler)
	sessionID := initializeSession(t, handler)

	token := bearerToken(t, "alice", "mcp:read")
	recorder := postJSON(protected,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		map[string]string{"Mcp-Session-Id": sessionID, "Authorization": "Bearer " + token})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	challenge := recorder.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, `error="insufficient_scope"`)
	assert.Contains(t, challenge, `scope="mcp:write"`)
	assert.NotContains(t, challenge, "resource_metadata")
	assert.Contains(t, recorder.Body.String(), "insufficient_scope")
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	ID   string
	Data string
}

// readEvents consumes count data-bearing events from an SSE body.
func readEvents(t *testing.T, reader *bufio.Reader, count int) []sseEvent {
	t.Helper()
	var events []sseEvent
	current := sseEvent{}
	for len(events) < count {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			current.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.Data != "" {
				events = append(events, current)
			}
			current = sseEvent{}
		}
	}
	return events
}

func openStream(t *testing.T, serverURL, sessionID, lastEventID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, serverURL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	if lastEventID != "" {
		req.Header.Set("Last-Event-Id", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp
}

func waitForStream(t *testing.T, handler *Handler, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !handler.Streams().HasStream(sessionID) {
		require.True(t, time.Now().Before(deadline), "stream was not established")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_SSEReconnect(t *testing.T) {
	handler := newTestHandler(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	body := bytes.NewReader([]byte(initializeBody))
	resp, err := http.Post(server.URL+"/mcp", "application/json", body)
	require.NoError(t, err)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	_ = resp.Body.Close()

	stream := openStream(t, server.URL, sessionID, "")
	waitForStream(t, handler, sessionID)

	for i := 1; i <= 5; i++ {
		require.True(t, handler.Streams().SendEvent(sessionID, []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}

	events := readEvents(t, bufio.NewReader(stream.Body), 5)
	require.Len(t, events, 5)
	assert.Equal(t, sessionID+":2", events[1].ID)

	// drop the connection after event 2 was observed, then resume
	_ = stream.Body.Close()

	resumed := openStream(t, server.URL, sessionID, sessionID+":2")
	defer func() { _ = resumed.Body.Close() }()

	replayed := readEvents(t, bufio.NewReader(resumed.Body), 3)
	require.Len(t, replayed, 3)
	for i, event := range replayed {
		assert.Equal(t, fmt.Sprintf("%s:%d", sessionID, i+3), event.ID)
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i+3), event.Data)
	}
}

// A dying GET request noticing its own disconnect must not tear down the
// stream a reconnect has already attached in its place.
func TestHandler_DisconnectKeepsReplacementStream(t *testing.T) {
	handler := newTestHandler(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Post(server.URL+"/mcp", "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	_ = resp.Body.Close()

	first := openStream(t, server.URL, sessionID, "")
	waitForStream(t, handler, sessionID)
	_ = first.Body.Close()

	second := openStream(t, server.URL, sessionID, "")
	defer func() { _ = second.Body.Close() }()
	waitForStream(t, handler, sessionID)

	// give the first request's goroutine time to observe its cancellation
	time.Sleep(50 * time.Millisecond)
	assert.True(t, handler.Streams().HasStream(sessionID))
	require.True(t, handler.Streams().SendEvent(sessionID, []byte(`{"n":1}`)))

	events := readEvents(t, bufio.NewReader(second.Body), 1)
	require.Len(t, events, 1)
	assert.Equal(t, sessionID+":1", events[0].ID)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "empty list allows all", origin: "https://anywhere.test", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anywhere.test", want: true},
		{name: "exact match", allowed: []string{"https://app.example.com"}, origin: "https://app.example.com", want: true},
		{name: "registrable domain match", allowed: []string{"example.com"}, origin: "https://deep.app.example.com", want: true},
		{name: "mismatch", allowed: []string{"https://app.example.com"}, origin: "https://evil.test", want: false},
		{name: "suffix trickery refused", allowed: []string{"example.com"}, origin: "https://notexample.com.evil.test", want: false},
		{name: "no origin header", allowed: []string{"https://app.example.com"}, origin: "", want: true},
		{name: "localhost exact only", allowed: []string{"localhost"}, origin: "http://localhost:3000", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.allowed, tt.origin))
		})
	}
}

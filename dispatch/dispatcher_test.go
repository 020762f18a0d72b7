package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpref/mcpserver/jsonrpc"
	"github.com/mcpref/mcpserver/protocol"
	"github.com/mcpref/mcpserver/session"
)

var testCursorSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestDispatcher(t *testing.T, options ...Option) *Dispatcher {
	t.Helper()
	lifecycle := protocol.New(
		protocol.Implementation{Name: "test-server", Version: "0.1.0"},
		protocol.Capabilities{"tools": map[string]interface{}{"listChanged": true}, "logging": map[string]interface{}{}, "completions": map[string]interface{}{}},
	)
	registry := NewRegistry()
	registry.Register(EchoTool())
	registry.Register(TimeTool())
	codec, err := NewCursorCodec(testCursorSecret)
	require.NoError(t, err)
	options = append([]Option{WithCursorCodec(codec)}, options...)
	return NewDispatcher(lifecycle, registry, options...)
}

func request(t *testing.T, id interface{}, method string, params interface{}) *jsonrpc.Message {
	t.Helper()
	req := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = data
	}
	return jsonrpc.NewRequestMessage(req)
}

func notification(t *testing.T, method string) *jsonrpc.Message {
	t.Helper()
	return jsonrpc.NewNotificationMessage(&jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: method})
}

func initialized(t *testing.T, dispatcher *Dispatcher) *session.Session {
	t.Helper()
	sess := session.New()
	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 1, protocol.MethodInitialize, map[string]interface{}{
		"protocolVersion": protocol.Version,
		"clientInfo":      map[string]string{"name": "client", "version": "1.0"},
	}))
	require.NotNil(t, response)
	require.Nil(t, response.Error)
	require.Nil(t, dispatcher.HandleMessage(context.Background(), sess, notification(t, protocol.NotificationInitialized)))
	require.Equal(t, protocol.StateReady, sess.State())
	return sess
}

func result(t *testing.T, response *jsonrpc.Response) map[string]interface{} {
	t.Helper()
	require.NotNil(t, response)
	require.Nil(t, response.Error)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(response.Result, &parsed))
	return parsed
}

func TestDispatcher_Initialize(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := session.New()

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 1, protocol.MethodInitialize, map[string]interface{}{
		"protocolVersion": protocol.Version,
		"clientInfo":      map[string]string{"name": "client", "version": "1.0"},
	}))
	parsed := result(t, response)
	assert.Equal(t, protocol.Version, parsed["protocolVersion"])
	assert.Equal(t, protocol.StateInitializing, sess.State())
}

func TestDispatcher_PreInitializationGating(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := session.New()

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 1, protocol.MethodToolsList, nil))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.InvalidRequest, response.Error.Code)
	assert.Contains(t, response.Error.Message, "not initialized")

	response = dispatcher.HandleMessage(context.Background(), sess, request(t, 2, protocol.MethodPing, nil))
	require.NotNil(t, response.Error)
	assert.Contains(t, response.Error.Message, "not initialized")
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, "resources/list", nil))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.MethodNotFound, response.Error.Code)
	data, ok := response.Error.Data.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "resources/list", data["method"])
}

func TestDispatcher_ToolsList(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	parsed := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsList, nil)))
	tools, ok := parsed["tools"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tools, 2)
	first := tools[0].(map[string]interface{})
	assert.Equal(t, "echo", first["name"])
	assert.NotContains(t, parsed, "nextCursor")
}

func TestDispatcher_ToolsListPagination(t *testing.T) {
	dispatcher := newTestDispatcher(t, WithPageSize(1))
	sess := initialized(t, dispatcher)

	page := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsList, nil)))
	require.Len(t, page["tools"], 1)
	cursor, ok := page["nextCursor"].(string)
	require.True(t, ok)
	require.NotEmpty(t, cursor)

	next := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 4, protocol.MethodToolsList, map[string]string{"cursor": cursor})))
	tools := next["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "current_time", tools[0].(map[string]interface{})["name"])
	assert.NotContains(t, next, "nextCursor")
}

func TestDispatcher_ToolsListForgedCursor(t *testing.T) {
	dispatcher := newTestDispatcher(t, WithPageSize(1))
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsList, map[string]string{"cursor": "MQ.Zm9yZ2Vk"}))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.InvalidParams, response.Error.Code)
	assert.Contains(t, response.Error.Message, "invalid cursor")
}

func TestDispatcher_ToolsCall(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	parsed := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsCall, map[string]interface{}{
		"name":      "echo",
		"arguments": map[string]string{"message": "hello"},
	})))
	content := parsed["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "hello", content[0].(map[string]interface{})["text"])
	assert.NotContains(t, parsed, "isError")
}

func TestDispatcher_ToolsCallUnknownTool(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsCall, map[string]interface{}{"name": "missing"}))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.InvalidParams, response.Error.Code)
}

func TestDispatcher_ToolsCallExecutionFailure(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	dispatcher.tools.Register(&Tool{
		Name:        "broken",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return nil, errors.New("backend unavailable")
		},
	})
	sess := initialized(t, dispatcher)

	// execution failures come back as a successful response with isError set
	parsed := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsCall, map[string]interface{}{"name": "broken"})))
	assert.Equal(t, true, parsed["isError"])
	content := parsed["content"].([]interface{})
	assert.Equal(t, "backend unavailable", content[0].(map[string]interface{})["text"])
}

func TestDispatcher_Completion(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	parsed := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodCompletionComplete, map[string]interface{}{
		"argument": map[string]string{"name": "path", "value": "/tm"},
	})))
	completion := parsed["completion"].(map[string]interface{})
	assert.Equal(t, false, completion["hasMore"])
}

func TestDispatcher_SetLogLevel(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodLoggingSetLevel, map[string]string{"level": "warning"}))
	require.Nil(t, response.Error)
	assert.Equal(t, "warning", dispatcher.LogLevel())

	response = dispatcher.HandleMessage(context.Background(), sess, request(t, 4, protocol.MethodLoggingSetLevel, map[string]string{"level": "loud"}))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.InvalidParams, response.Error.Code)
	assert.Equal(t, "warning", dispatcher.LogLevel())
}

func TestDispatcher_Shutdown(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodServerShutdown, nil))
	require.Nil(t, response.Error)
	assert.True(t, dispatcher.Lifecycle().IsShuttingDown())

	response = dispatcher.HandleMessage(context.Background(), sess, request(t, 4, protocol.MethodToolsList, nil))
	require.NotNil(t, response.Error)
	assert.Contains(t, response.Error.Message, "shutting down")
}

func TestDispatcher_CapabilityGating(t *testing.T) {
	lifecycle := protocol.New(
		protocol.Implementation{Name: "test-server", Version: "0.1.0"},
		protocol.Capabilities{"logging": map[string]interface{}{}},
	)
	dispatcher := NewDispatcher(lifecycle, NewRegistry())
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsList, nil))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.InvalidRequest, response.Error.Code)
	assert.Contains(t, response.Error.Message, "capability")
}

func TestDispatcher_Ping(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sess := initialized(t, dispatcher)

	response := dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodPing, nil))
	require.Nil(t, response.Error)
	assert.Equal(t, "{}", string(response.Result))
}

func TestSessionFrom(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	dispatcher.tools.Register(&Tool{
		Name:        "whoami",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
			sess, ok := SessionFrom(ctx)
			require.True(t, ok)
			return &ToolResult{Content: []Content{TextContent(sess.ID())}}, nil
		},
	})
	sess := initialized(t, dispatcher)

	parsed := result(t, dispatcher.HandleMessage(context.Background(), sess, request(t, 3, protocol.MethodToolsCall, map[string]interface{}{"name": "whoami"})))
	content := parsed["content"].([]interface{})
	assert.Equal(t, sess.ID(), content[0].(map[string]interface{})["text"])
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "echo", ToolName(request(t, 1, protocol.MethodToolsCall, map[string]string{"name": "echo"})))
	assert.Equal(t, "", ToolName(request(t, 1, protocol.MethodToolsList, nil)))
	assert.Equal(t, "", ToolName(request(t, 1, protocol.MethodToolsCall, nil)))
}

func TestCursorCodec(t *testing.T) {
	codec, err := NewCursorCodec(testCursorSecret)
	require.NoError(t, err)

	cursor := codec.Encode(42)
	offset, err := codec.Decode(cursor)
	require.NoError(t, err)
	assert.Equal(t, 42, offset)

	t.Run("rejects short secret", func(t *testing.T) {
		_, err := NewCursorCodec([]byte("short"))
		assert.Error(t, err)
	})

	t.Run("rejects tampering", func(t *testing.T) {
		_, err := codec.Decode(cursor + "x")
		assert.ErrorIs(t, err, errInvalidCursor)
	})

	t.Run("rejects foreign signature", func(t *testing.T) {
		other, err := NewCursorCodec([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)
		_, err = other.Decode(cursor)
		assert.ErrorIs(t, err, errInvalidCursor)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, cursor := range []string{"", "nodot", "a.b", fmt.Sprintf("%d.x", 1)} {
			_, err := codec.Decode(cursor)
			assert.Error(t, err)
		}
	})
}

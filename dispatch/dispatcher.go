package dispatch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/jsonrpc"
	"github.com/mcpref/mcpserver/protocol"
)

// Session is the dispatcher's view of a protocol session.
type Session interface {
	protocol.Session
	ID() string
	ClientCapabilities() protocol.Capabilities
}

// logLevels are the accepted logging/setLevel values, in severity order.
var logLevels = map[string]int{
	"debug": 0, "info": 1, "notice": 2, "warning": 3,
	"error": 4, "critical": 5, "alert": 6, "emergency": 7,
}

// Options configure a Dispatcher.
type Options struct {
	PageSize int
	Cursor   *CursorCodec
	Logger   zerolog.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithPageSize bounds tools/list pages.
func WithPageSize(size int) Option {
	return func(o *Options) { o.PageSize = size }
}

// WithCursorCodec installs the signed pagination cursor codec.
func WithCursorCodec(codec *CursorCodec) Option {
	return func(o *Options) { o.Cursor = codec }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Dispatcher routes parsed JSON-RPC messages to their protocol handlers,
// enforcing lifecycle state and capability gating along the way.
type Dispatcher struct {
	lifecycle *Lifecycle
	tools     *Registry
	options   Options
	logLevel  string
}

// Lifecycle aliases the protocol state machine for construction.
type Lifecycle = protocol.Lifecycle

// NewDispatcher creates a Dispatcher over a lifecycle and tool registry.
func NewDispatcher(lifecycle *Lifecycle, tools *Registry, options ...Option) *Dispatcher {
	opts := Options{PageSize: 50, Logger: zerolog.Nop()}
	for _, option := range options {
		option(&opts)
	}
	return &Dispatcher{
		lifecycle: lifecycle,
		tools:     tools,
		options:   opts,
		logLevel:  "info",
	}
}

// Lifecycle returns the protocol state machine.
func (d *Dispatcher) Lifecycle() *Lifecycle {
	return d.lifecycle
}

// SessionFrom returns the session a handler's context was dispatched under.
// Tool handlers use it to reach the calling session.
func SessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(jsonrpc.SessionKey).(Session)
	return sess, ok
}

// ToolName extracts the tool name from tools/call params, empty when absent.
func ToolName(message *jsonrpc.Message) string {
	if message.Method() != protocol.MethodToolsCall || message.Type != jsonrpc.MessageTypeRequest {
		return ""
	}
	var params struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(message.Request.Params, &params)
	return params.Name
}

// HandleMessage dispatches a request or notification. Requests yield a
// response; notifications yield nil.
func (d *Dispatcher) HandleMessage(ctx context.Context, session Session, message *jsonrpc.Message) *jsonrpc.Response {
	switch message.Type {
	case jsonrpc.MessageTypeRequest:
		return d.handleRequest(ctx, session, message.Request)
	case jsonrpc.MessageTypeNotification:
		d.handleNotification(session, message.Notification)
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) handleRequest(ctx context.Context, session Session, request *jsonrpc.Request) *jsonrpc.Response {
	if rpcErr := d.lifecycle.CheckPreInitialization(session, request.Method); rpcErr != nil {
		return jsonrpc.NewErrorResponse(request.Id, rpcErr)
	}
	if rpcErr := protocol.ValidateMethodCapability(d.lifecycle.Capabilities(), request.Method); rpcErr != nil {
		return jsonrpc.NewErrorResponse(request.Id, rpcErr)
	}
	ctx = context.WithValue(ctx, jsonrpc.SessionKey, session)
	result, rpcErr := d.route(ctx, session, request)
	if rpcErr != nil {
		d.options.Logger.Debug().Str("method", request.Method).Int("code", rpcErr.Code).Msg("request failed")
		return jsonrpc.NewErrorResponse(request.Id, rpcErr)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return jsonrpc.NewErrorResponse(request.Id, jsonrpc.NewInternalError(err.Error(), nil))
	}
	return jsonrpc.NewResponse(request.Id, data)
}

func (d *Dispatcher) route(ctx context.Context, session Session, request *jsonrpc.Request) (interface{}, *jsonrpc.Error) {
	switch request.Method {
	case protocol.MethodInitialize:
		return noNilResult(d.lifecycle.HandleInitialize(session, request.Params))
	case protocol.MethodPing:
		return struct{}{}, nil
	case protocol.MethodToolsList:
		return d.listTools(request.Params)
	case protocol.MethodToolsCall:
		return d.callTool(ctx, request.Params)
	case protocol.MethodCompletionComplete:
		return d.complete(request.Params)
	case protocol.MethodLoggingSetLevel:
		return d.setLogLevel(request.Params)
	case protocol.MethodServerShutdown:
		first := d.lifecycle.InitiateShutdown()
		d.options.Logger.Info().Bool("first", first).Msg("shutdown requested")
		return struct{}{}, nil
	default:
		return nil, jsonrpc.NewMethodNotFound(request.Method)
	}
}

func noNilResult(result *protocol.InitializeResult, rpcErr *jsonrpc.Error) (interface{}, *jsonrpc.Error) {
	if rpcErr != nil {
		return nil, rpcErr
	}
	return result, nil
}

func (d *Dispatcher) handleNotification(session Session, notification *jsonrpc.Notification) {
	if rpcErr := d.lifecycle.CheckPreInitialization(session, notification.Method); rpcErr != nil {
		d.options.Logger.Debug().Str("method", notification.Method).Msg("notification rejected pre-initialization")
		return
	}
	switch notification.Method {
	case protocol.NotificationInitialized:
		if rpcErr := d.lifecycle.HandleInitialized(session); rpcErr != nil {
			d.options.Logger.Debug().Msg("initialized notification in wrong state")
		}
	default:
		// unknown notifications are ignored per protocol
		d.options.Logger.Debug().Str("method", notification.Method).Msg("ignoring notification")
	}
}

type listToolsResult struct {
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

func (d *Dispatcher) listTools(params json.RawMessage) (interface{}, *jsonrpc.Error) {
	offset := 0
	if len(params) > 0 {
		var parsed struct {
			Cursor string `json:"cursor"`
		}
		if err := json.Unmarshal(params, &parsed); err != nil {
			return nil, jsonrpc.NewInvalidParamsError(err.Error(), nil)
		}
		if parsed.Cursor != "" {
			if d.options.Cursor == nil {
				return nil, jsonrpc.NewInvalidParamsError("pagination is not supported", nil)
			}
			decoded, err := d.options.Cursor.Decode(parsed.Cursor)
			if err != nil {
				return nil, jsonrpc.NewInvalidParamsError("invalid cursor", nil)
			}
			offset = decoded
		}
	}
	all := d.tools.List()
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + d.options.PageSize
	if end > len(all) {
		end = len(all)
	}
	result := &listToolsResult{Tools: all[offset:end]}
	if end < len(all) && d.options.Cursor != nil {
		result.NextCursor = d.options.Cursor.Encode(end)
	}
	return result, nil
}

func (d *Dispatcher) callTool(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.Error) {
	var parsed struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &parsed); err != nil {
		return nil, jsonrpc.NewInvalidParamsError(err.Error(), nil)
	}
	if parsed.Name == "" {
		return nil, jsonrpc.NewInvalidParamsError("tool name is required", nil)
	}
	tool, ok := d.tools.Get(parsed.Name)
	if !ok {
		return nil, jsonrpc.NewInvalidParamsError("unknown tool: "+parsed.Name, nil)
	}
	result, err := tool.Handler(ctx, parsed.Arguments)
	if err != nil {
		// execution failures travel inside the result, not as protocol errors
		return &ToolResult{
			Content: []Content{TextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return result, nil
}

func (d *Dispatcher) complete(params json.RawMessage) (interface{}, *jsonrpc.Error) {
	var parsed struct {
		Argument struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"argument"`
	}
	if err := json.Unmarshal(params, &parsed); err != nil {
		return nil, jsonrpc.NewInvalidParamsError(err.Error(), nil)
	}
	return map[string]interface{}{
		"completion": map[string]interface{}{
			"values":  []string{},
			"total":   0,
			"hasMore": false,
		},
	}, nil
}

func (d *Dispatcher) setLogLevel(params json.RawMessage) (interface{}, *jsonrpc.Error) {
	var parsed struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(params, &parsed); err != nil {
		return nil, jsonrpc.NewInvalidParamsError(err.Error(), nil)
	}
	if _, ok := logLevels[parsed.Level]; !ok {
		return nil, jsonrpc.NewInvalidParamsError("unknown log level: "+parsed.Level, nil)
	}
	d.logLevel = parsed.Level
	return struct{}{}, nil
}

// LogLevel returns the client-requested minimum log level.
func (d *Dispatcher) LogLevel() string {
	return d.logLevel
}

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent builds a text content block.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ToolResult is the outcome of a tool call. Execution failures are embedded
// with IsError set rather than surfaced as protocol errors.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ToolHandler executes a tool with raw JSON arguments.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (*ToolResult, error)

// Tool couples a tool descriptor with its handler.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Handler     ToolHandler            `json:"-"`
}

// Registry holds the registered tools in registration order so listings
// paginate deterministically.
type Registry struct {
	mux   sync.RWMutex
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool *Tool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.tools[tool.Name]; !ok {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		ret = append(ret, r.tools[name])
	}
	return ret
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.order)
}

// EchoTool returns a tool that echoes its message argument back.
func EchoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echoes the provided message back to the caller",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
			},
			"required": []string{"message"},
		},
		Handler: func(_ context.Context, arguments json.RawMessage) (*ToolResult, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if args.Message == "" {
				return &ToolResult{
					Content: []Content{TextContent("message is required")},
					IsError: true,
				}, nil
			}
			return &ToolResult{Content: []Content{TextContent(args.Message)}}, nil
		},
	}
}

// TimeTool returns a tool reporting the current server time in RFC 3339.
func TimeTool() *Tool {
	return &Tool{
		Name:        "current_time",
		Description: "Returns the current server time",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: []Content{TextContent(time.Now().Format(time.RFC3339))}}, nil
		},
	}
}

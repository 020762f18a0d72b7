package protocol

import "strings"

// Version is the protocol revision this server implements.
const Version = "2025-11-25"

// MethodInitialize and friends are the lifecycle method names.
const (
	MethodInitialize              = "initialize"
	NotificationInitialized       = "notifications/initialized"
	NotificationMessage           = "notifications/message"
	NotificationToolsListChanged  = "notifications/tools/listChanged"
	NotificationRootsListChanged  = "notifications/roots/listChanged"
	NotificationResourcesUpdated  = "notifications/resources/updated"
	NotificationCancelled         = "notifications/cancelled"
	MethodPing                    = "ping"
	MethodToolsList               = "tools/list"
	MethodToolsCall               = "tools/call"
	MethodCompletionComplete      = "completion/complete"
	MethodLoggingSetLevel         = "logging/setLevel"
	MethodServerShutdown          = "server/shutdown"
)

// Implementation identifies a protocol party.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is a nested feature-flag map declared during the initialize
// handshake, e.g. {"tools":{"listChanged":true}}.
type Capabilities map[string]interface{}

// Has walks a dot-separated path and reports whether the capability is
// present. Any present value other than false counts as present; an empty
// object is present.
func (c Capabilities) Has(path string) bool {
	if c == nil {
		return false
	}
	var current interface{} = map[string]interface{}(c)
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			if nested, ok := current.(Capabilities); ok {
				node = map[string]interface{}(nested)
			} else {
				return false
			}
		}
		current, ok = node[part]
		if !ok {
			return false
		}
	}
	if value, ok := current.(bool); ok {
		return value
	}
	return true
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities,omitempty"`
	ClientInfo      *Implementation `json:"clientInfo"`
}

// InitializeResult is the payload of a successful initialize response.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

package protocol

import (
	"fmt"

	"github.com/mcpref/mcpserver/jsonrpc"
)

// methodCapabilities maps request methods to the server capability path that
// must be declared for the method to be dispatched.
var methodCapabilities = map[string]string{
	MethodToolsList:          "tools",
	MethodToolsCall:          "tools",
	"resources/list":         "resources",
	"resources/read":         "resources",
	"resources/subscribe":    "resources.subscribe",
	"prompts/list":           "prompts",
	"prompts/get":            "prompts",
	MethodCompletionComplete: "completions",
	MethodLoggingSetLevel:    "logging",
}

// notificationCapabilities maps outgoing notifications to the client
// capability path required for the server to emit them.
var notificationCapabilities = map[string]string{
	NotificationRootsListChanged: "roots.listChanged",
}

// ValidateMethodCapability returns an invalid request error when the server
// does not declare the capability the method is gated on. Methods without an
// entry are always permitted.
func ValidateMethodCapability(server Capabilities, method string) *jsonrpc.Error {
	path, ok := methodCapabilities[method]
	if !ok {
		return nil
	}
	if !server.Has(path) {
		return jsonrpc.NewInvalidRequest(
			fmt.Sprintf("method %q requires the %q capability, which this server does not support", method, path), nil)
	}
	return nil
}

// ValidateNotificationCapability returns an invalid request error when the
// client did not declare the capability the notification is gated on.
func ValidateNotificationCapability(client Capabilities, method string) *jsonrpc.Error {
	path, ok := notificationCapabilities[method]
	if !ok {
		return nil
	}
	if !client.Has(path) {
		return jsonrpc.NewInvalidRequest(
			fmt.Sprintf("notification %q requires the client %q capability", method, path), nil)
	}
	return nil
}

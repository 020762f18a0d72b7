package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// MessageType is an enumeration of the types of messages in the JSON-RPC protocol.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeNotification MessageType = "notification"
	MessageTypeResponse     MessageType = "response"
)

// Message is a wrapper around the different types of JSON-RPC messages.
// Exactly one of the variant fields is populated, as indicated by Type.
type Message struct {
	Type         MessageType
	Request      *Request
	Notification *Notification
	Response     *Response
}

// Method returns the method of the underlying request or notification.
func (m *Message) Method() string {
	switch m.Type {
	case MessageTypeRequest:
		return m.Request.Method
	case MessageTypeNotification:
		return m.Notification.Method
	default:
		return ""
	}
}

// Id returns the request id when the message carries one.
func (m *Message) Id() RequestId {
	switch m.Type {
	case MessageTypeRequest:
		return m.Request.Id
	case MessageTypeResponse:
		return m.Response.Id
	default:
		return nil
	}
}

// MarshalJSON is a custom JSON marshaler for the Message type.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeRequest:
		return json.Marshal(m.Request)
	case MessageTypeNotification:
		return json.Marshal(m.Notification)
	case MessageTypeResponse:
		return json.Marshal(m.Response)
	default:
		return nil, errors.New("unknown message type, couldn't marshal")
	}
}

// NewRequestMessage creates a new JSON-RPC message of type Request.
func NewRequestMessage(request *Request) *Message {
	return &Message{Type: MessageTypeRequest, Request: request}
}

// NewNotificationMessage creates a new JSON-RPC message of type Notification.
func NewNotificationMessage(notification *Notification) *Message {
	return &Message{Type: MessageTypeNotification, Notification: notification}
}

// NewResponseMessage creates a new JSON-RPC message of type Response.
func NewResponseMessage(response *Response) *Message {
	return &Message{Type: MessageTypeResponse, Response: response}
}

// NewRequest creates a request with marshaled parameters.
func NewRequest(id RequestId, method string, parameters interface{}) (*Request, error) {
	req := &Request{Jsonrpc: Version, Id: id, Method: method}
	var err error
	if req.Params, err = asParameters(method, parameters); err != nil {
		return nil, err
	}
	return req, nil
}

// NewNotification creates a notification with marshaled parameters.
func NewNotification(method string, parameters interface{}) (*Notification, error) {
	notification := &Notification{Jsonrpc: Version, Method: method}
	var err error
	if notification.Params, err = asParameters(method, parameters); err != nil {
		return nil, err
	}
	return notification, nil
}

func asParameters(method string, parameters interface{}) (json.RawMessage, error) {
	switch actual := parameters.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(actual), nil
	case []byte:
		return actual, nil
	case json.RawMessage:
		return actual, nil
	default:
		data, err := json.Marshal(actual)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jsonrpc parameters: [method:%v] %w", method, err)
		}
		return data, nil
	}
}

type probe struct {
	Id     *json.RawMessage `json:"id"`
	Method string           `json:"method"`
	Result *json.RawMessage `json:"result"`
	Error  *json.RawMessage `json:"error"`
}

// DetectType classifies raw bytes as a request, notification or response
// without fully validating them.
func DetectType(data []byte) MessageType {
	aProbe := &probe{}
	_ = gojson.Unmarshal(data, aProbe)
	if aProbe.Method != "" {
		if aProbe.Id == nil {
			return MessageTypeNotification
		}
		return MessageTypeRequest
	}
	return MessageTypeResponse
}

// ParseMessage parses raw bytes into a request or notification message.
// On failure the second return value is a ready-to-send error response:
// a parse error with a null id for unparseable bytes, or an invalid request
// echoing the id when it could be recovered.
func ParseMessage(data []byte) (*Message, *Response) {
	if !gojson.Valid(data) {
		return nil, NewErrorResponse(nil, NewParsingError("failed to parse message", nil))
	}
	aProbe := &probe{}
	if err := gojson.Unmarshal(data, aProbe); err != nil {
		return nil, NewErrorResponse(nil, NewParsingError("failed to parse message", nil))
	}
	var echoId RequestId
	if aProbe.Id != nil {
		echoId, _ = parseRequestId(*aProbe.Id)
	}
	if aProbe.Method == "" {
		return nil, NewErrorResponse(echoId, NewInvalidRequest("message is not a request or notification", nil))
	}
	if aProbe.Id == nil {
		notification := &Notification{}
		if err := gojson.Unmarshal(data, notification); err != nil {
			return nil, NewErrorResponse(nil, NewInvalidRequest(err.Error(), nil))
		}
		return NewNotificationMessage(notification), nil
	}
	request := &Request{}
	if err := gojson.Unmarshal(data, request); err != nil {
		return nil, NewErrorResponse(echoId, NewInvalidRequest(err.Error(), nil))
	}
	return NewRequestMessage(request), nil
}

// ParseResponse parses raw bytes into a Response, validating that exactly one
// of result and error is present.
func ParseResponse(data []byte) (*Response, error) {
	response := &Response{}
	if err := gojson.Unmarshal(data, response); err != nil {
		return nil, err
	}
	return response, nil
}
